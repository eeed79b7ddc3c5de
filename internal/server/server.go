package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"echotrace/config"
	"echotrace/internal/chunker"
	"echotrace/internal/embedding"
	"echotrace/internal/index"
	"echotrace/internal/matcher"
	"echotrace/internal/refset"
	"echotrace/internal/service"
	"echotrace/internal/telemetry"
)

// App is the assembled pipeline. The CLI paths and the HTTP server share
// this wiring.
type App struct {
	Service          *service.Service
	Index            index.Index
	Metrics          *telemetry.Metrics
	DefaultThreshold float64
}

// Build assembles the pipeline from config.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	provider, err := embedding.NewOpenAIClient(embedding.OpenAIConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
		Timeout:    cfg.Embedding.Timeout,
	}, log.New(log.Writer(), "[EMBED] ", log.LstdFlags))
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}

	idx, err := buildIndex(ctx, cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("vector index: %w", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis connection failed (%s): %w", cfg.Redis.Addr(), err)
		}
	}

	refCfg := refset.DefaultConfig()
	refCfg.Waiter = refset.WaiterConfig{
		MaxRetries: cfg.Readiness.MaxRetries,
		BaseDelay:  cfg.Readiness.BaseDelay,
		Multiplier: cfg.Readiness.Multiplier,
	}
	registrar, err := refset.New(provider, idx, refCfg, rdb, log.New(log.Writer(), "[REFSET] ", log.LstdFlags))
	if err != nil {
		return nil, err
	}

	matchCfg := matcher.DefaultConfig()
	if cfg.Matching.TopK > 0 {
		matchCfg.TopK = cfg.Matching.TopK
	}
	if cfg.Matching.MaxConcurrency > 0 {
		matchCfg.MaxConcurrency = cfg.Matching.MaxConcurrency
	}
	if cfg.Matching.DefaultThreshold > 0 {
		matchCfg.DefaultThreshold = cfg.Matching.DefaultThreshold
	}
	m, err := matcher.New(provider, idx, matchCfg, log.New(log.Writer(), "[MATCHER] ", log.LstdFlags))
	if err != nil {
		return nil, err
	}

	chunkCfg := chunker.Config{
		MaxSegmentLength: cfg.Chunking.MaxSegmentLength,
		MaxChunkSize:     cfg.Chunking.MaxChunkSize,
		OverlapSize:      cfg.Chunking.OverlapSize,
		MinChunkSize:     cfg.Chunking.MinChunkSize,
	}

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.New()
	}

	svc, err := service.New(chunkCfg, registrar, m, metrics, log.New(log.Writer(), "[SERVICE] ", log.LstdFlags))
	if err != nil {
		return nil, err
	}

	return &App{Service: svc, Index: idx, Metrics: metrics, DefaultThreshold: matchCfg.DefaultThreshold}, nil
}

// Run assembles the pipeline and serves the HTTP API until the context is
// cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	app, err := Build(ctx, cfg)
	if err != nil {
		return err
	}

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e := newEcho(baseLogger)
	h := &Handler{Service: app.Service, Index: app.Index, DefaultThreshold: app.DefaultThreshold}
	h.Register(e.Group("/api"))
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if app.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(app.Metrics.Handler()))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- e.Start(cfg.Server.Address) }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}

// newEcho builds the echo instance with the shared middleware stack and the
// unified JSON error handler.
func newEcho(baseLogger *log.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))
	return e
}

func buildIndex(ctx context.Context, cfg config.IndexConfig) (index.Index, error) {
	switch cfg.Backend {
	case "pinecone":
		return index.NewPinecone(index.PineconeConfig{
			APIKey:    cfg.Pinecone.APIKey,
			Host:      cfg.Pinecone.Host,
			Namespace: cfg.Pinecone.Namespace,
			Timeout:   cfg.Pinecone.Timeout,
		})
	case "postgres":
		return index.NewPostgres(ctx, cfg.Postgres.DSN())
	case "memory":
		return index.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the matching service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Index     IndexConfig     `mapstructure:"index"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	Readiness ReadinessConfig `mapstructure:"readiness"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.Address) == "" {
		return fmt.Errorf("server.address required")
	}
	if _, _, err := net.SplitHostPort(s.Address); err != nil {
		return fmt.Errorf("server.address: %w", err)
	}
	return nil
}

// EmbeddingConfig configures the embedding provider
type EmbeddingConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	BatchSize  int           `mapstructure:"batch_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func (e EmbeddingConfig) Validate() error {
	if strings.TrimSpace(e.APIKey) == "" {
		return fmt.Errorf("embedding.api_key required")
	}
	if e.BatchSize < 0 {
		return fmt.Errorf("embedding.batch_size must be non-negative")
	}
	return nil
}

// IndexConfig selects and configures the vector index backend.
// Backend is one of "pinecone", "postgres" or "memory".
type IndexConfig struct {
	Backend  string         `mapstructure:"backend"`
	Pinecone PineconeConfig `mapstructure:"pinecone"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

func (i IndexConfig) Validate() error {
	switch i.Backend {
	case "pinecone":
		return i.Pinecone.Validate()
	case "postgres":
		return i.Postgres.Validate()
	case "memory":
		return nil
	default:
		return fmt.Errorf("index.backend must be pinecone, postgres or memory, got %q", i.Backend)
	}
}

// PineconeConfig contains hosted index connection settings
type PineconeConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	Host      string        `mapstructure:"host"`
	Namespace string        `mapstructure:"namespace"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

func (p PineconeConfig) Validate() error {
	if strings.TrimSpace(p.APIKey) == "" {
		return fmt.Errorf("index.pinecone.api_key required")
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("index.pinecone.host required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("index.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("index.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("index.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN assembles a connection string, preferring an explicit URL.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, sslmode)
}

// ChunkingConfig bounds transcript chunk sizes
type ChunkingConfig struct {
	MaxSegmentLength int `mapstructure:"max_segment_length"`
	MaxChunkSize     int `mapstructure:"max_chunk_size"`
	OverlapSize      int `mapstructure:"overlap_size"`
	MinChunkSize     int `mapstructure:"min_chunk_size"`
}

// MatchingConfig tunes the search pipeline
type MatchingConfig struct {
	TopK             int     `mapstructure:"top_k"`
	MaxConcurrency   int     `mapstructure:"max_concurrency"`
	DefaultThreshold float64 `mapstructure:"default_threshold"`
}

func (m MatchingConfig) Validate() error {
	if m.DefaultThreshold < 0 || m.DefaultThreshold > 1 {
		return fmt.Errorf("matching.default_threshold must be within [0, 1]")
	}
	return nil
}

// ReadinessConfig tunes the post-registration visibility probe
type ReadinessConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	Multiplier float64       `mapstructure:"multiplier"`
}

// RedisConfig contains Redis connection settings. Redis is optional; it only
// guards registration across instances.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("redis.host required when redis is enabled")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("redis.port required when redis is enabled")
	}
	return nil
}

// Addr joins host and port for the redis client.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Validate runs every section's checks so a bad deployment fails at startup.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Embedding.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := c.Matching.Validate(); err != nil {
		return err
	}
	return c.Redis.Validate()
}

// LoadConfig reads config.json from path or the usual locations, layers
// ECHOTRACE_* environment variables on top and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")

	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.default_timeout", "60s")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.batch_size", 100)
	v.SetDefault("embedding.timeout", "30s")
	v.SetDefault("index.backend", "memory")
	v.SetDefault("chunking.max_segment_length", 500)
	v.SetDefault("chunking.max_chunk_size", 1000)
	v.SetDefault("chunking.overlap_size", 200)
	v.SetDefault("chunking.min_chunk_size", 50)
	v.SetDefault("matching.top_k", 10)
	v.SetDefault("matching.max_concurrency", 8)
	v.SetDefault("matching.default_threshold", 0.7)
	v.SetDefault("readiness.max_retries", 10)
	v.SetDefault("readiness.base_delay", "1s")
	v.SetDefault("readiness.multiplier", 1.5)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("telemetry.enabled", true)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, ".."))
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("ECHOTRACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Env-only deployments run without a config file.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Package refset owns the single active reference set: registering a new
// reference recording clears the index and stores the new chunks. The set is
// an explicitly owned resource; registration is serialized against
// comparisons so queries never race a half-replaced index.
package refset

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"echotrace/internal/chunker"
	"echotrace/internal/embedding"
	"echotrace/internal/index"
)

// Config bounds registration.
type Config struct {
	UpsertBatchSize int
	Waiter          WaiterConfig
	// LockKey guards multi-instance registration when a Redis client is
	// supplied. In-process serialization is always on.
	LockKey string
	LockTTL time.Duration
}

// DefaultConfig mirrors the index's batch limits.
func DefaultConfig() Config {
	return Config{
		UpsertBatchSize: 100,
		Waiter:          DefaultWaiterConfig(),
		LockKey:         "refset:register:lock",
		LockTTL:         5 * time.Minute,
	}
}

// Validate checks the registration bounds.
func (c Config) Validate() error {
	if c.UpsertBatchSize <= 0 {
		return fmt.Errorf("refset.upsert_batch_size must be positive")
	}
	return nil
}

// Meta carries provenance recorded with every stored chunk.
type Meta struct {
	Source   string
	Language string
}

// Result reports a registration. Degraded means the readiness probe gave up:
// the write succeeded but query visibility was not confirmed.
type Result struct {
	ChunksStored int
	Skipped      int
	Degraded     bool
}

// Registrar replaces the reference set. The mutex is shared with the compare
// path through RLock/RUnlock so a clear-then-store never interleaves with
// queries from this process.
type Registrar struct {
	provider embedding.Provider
	idx      index.Index
	waiter   *Waiter
	cfg      Config
	logger   *log.Logger
	rdb      *redis.Client

	mu sync.RWMutex
}

// New builds a Registrar. rdb may be nil; the Redis lock is only an extra
// guard for multi-instance deployments.
func New(provider embedding.Provider, idx index.Index, cfg Config, rdb *redis.Client, logger *log.Logger) (*Registrar, error) {
	if provider == nil {
		return nil, fmt.Errorf("embedding provider required")
	}
	if idx == nil {
		return nil, fmt.Errorf("vector index required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[REFSET] ", log.LstdFlags)
	}
	return &Registrar{
		provider: provider,
		idx:      idx,
		waiter:   NewWaiter(cfg.Waiter, logger),
		cfg:      cfg,
		logger:   logger,
		rdb:      rdb,
	}, nil
}

// RLock serializes a comparison against registration. Callers must RUnlock.
func (r *Registrar) RLock()   { r.mu.RLock() }
func (r *Registrar) RUnlock() { r.mu.RUnlock() }

// Register replaces the active reference set with the supplied chunks:
// delete everything, embed in batch, upsert in bounded batches, then probe
// for query visibility. The clear-then-write is not transactional; the
// write lock keeps local comparisons out of the empty window.
func (r *Registrar) Register(ctx context.Context, chunks []chunker.Chunk, meta Meta) (Result, error) {
	var res Result
	if len(chunks) == 0 {
		return res, fmt.Errorf("no chunks to register")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rdb != nil {
		ok, err := r.rdb.SetNX(ctx, r.cfg.LockKey, "1", r.cfg.LockTTL).Result()
		if err != nil {
			return res, fmt.Errorf("acquire registration lock: %w", err)
		}
		if !ok {
			return res, fmt.Errorf("registration already in progress")
		}
		defer r.rdb.Del(context.WithoutCancel(ctx), r.cfg.LockKey)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := r.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return res, fmt.Errorf("embed reference chunks: %w", err)
	}

	registeredAt := time.Now().UTC().Format(time.RFC3339)
	records := make([]index.Record, 0, len(chunks))
	for i, vec := range vectors {
		if vec == nil {
			res.Skipped++
			r.logger.Printf("warn: skipping chunk %d: embedding unavailable", i)
			continue
		}
		c := chunks[i]
		records = append(records, index.Record{
			ID:     uuid.NewString(),
			Vector: vec,
			Metadata: index.Metadata{
				Text:         c.Text,
				StartTime:    c.StartTime,
				EndTime:      c.EndTime,
				SegmentIndex: c.SegmentIndex,
				ChunkType:    string(c.Type),
				ChunkIndex:   c.ChunkIndex,
				Language:     meta.Language,
				Source:       meta.Source,
				RegisteredAt: registeredAt,
			},
		})
	}
	if len(records) == 0 {
		return res, fmt.Errorf("no embeddable chunks in reference transcript")
	}

	if err := r.idx.DeleteAll(ctx); err != nil {
		return res, fmt.Errorf("clear reference set: %w", err)
	}

	for start := 0; start < len(records); start += r.cfg.UpsertBatchSize {
		end := start + r.cfg.UpsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := r.idx.Upsert(ctx, records[start:end]); err != nil {
			return res, fmt.Errorf("upsert reference batch: %w", err)
		}
	}
	res.ChunksStored = len(records)

	// Probe one representative id for the whole batch. Giving up never
	// fails the registration; the write already succeeded.
	if state := r.waiter.Wait(ctx, r.idx, records[0].ID); state != StateReady {
		res.Degraded = true
		r.logger.Printf("warn: possible query-visibility delay: %d vectors stored but probe %s", len(records), state)
	}

	r.logger.Printf("registered reference set: %d chunks stored, %d skipped, degraded=%t", res.ChunksStored, res.Skipped, res.Degraded)
	return res, nil
}

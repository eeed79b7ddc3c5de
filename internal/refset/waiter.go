package refset

import (
	"context"
	"log"
	"time"

	"echotrace/internal/index"
)

// WaitState is the terminal state of a readiness probe.
type WaitState int

const (
	// StatePolling means the probe is still running.
	StatePolling WaitState = iota
	// StateReady means the representative record became queryable.
	StateReady
	// StateGaveUp means the retry budget ran out. The write itself already
	// succeeded; only query visibility is unconfirmed.
	StateGaveUp
)

func (s WaitState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateGaveUp:
		return "gave_up"
	default:
		return "polling"
	}
}

// WaiterConfig bounds the readiness probe.
type WaiterConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
}

// DefaultWaiterConfig matches the index's observed indexing latency.
func DefaultWaiterConfig() WaiterConfig {
	return WaiterConfig{
		MaxRetries: 10,
		BaseDelay:  time.Second,
		Multiplier: 1.5,
	}
}

// Waiter polls the index after a batch write until a representative record
// is observably queryable. One record standing in for the whole batch is a
// heuristic, not a per-record guarantee.
type Waiter struct {
	cfg    WaiterConfig
	logger *log.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewWaiter builds a Waiter with real sleeping. Tests swap the sleeper.
func NewWaiter(cfg WaiterConfig, logger *log.Logger) *Waiter {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 1.5
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[REFSET] ", log.LstdFlags)
	}
	return &Waiter{cfg: cfg, logger: logger, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Wait probes fetch(id) with exponential backoff until the record is visible
// or the budget runs out. Probe errors are swallowed and retried; eventual
// consistency makes transient misses expected.
func (w *Waiter) Wait(ctx context.Context, idx index.Index, id string) WaitState {
	delay := w.cfg.BaseDelay
	for attempt := 0; attempt < w.cfg.MaxRetries; attempt++ {
		if _, ok, err := idx.Fetch(ctx, id); err == nil && ok {
			return StateReady
		}
		if err := w.sleep(ctx, delay); err != nil {
			w.logger.Printf("warn: readiness probe cancelled: %v", err)
			return StateGaveUp
		}
		delay = time.Duration(float64(delay) * w.cfg.Multiplier)
	}
	return StateGaveUp
}

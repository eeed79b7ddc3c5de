package index

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process cosine-similarity index used for tests and local
// runs. VisibilityDelay makes freshly upserted records invisible to Query and
// Fetch for a while, imitating the eventual consistency of the hosted
// backends so the readiness probe has something real to wait on.
type Memory struct {
	mu              sync.RWMutex
	records         map[string]Record
	visibleAt       map[string]time.Time
	VisibilityDelay time.Duration
	now             func() time.Time
}

// NewMemory builds an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{
		records:   make(map[string]Record),
		visibleAt: make(map[string]time.Time),
		now:       time.Now,
	}
}

func (m *Memory) Upsert(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	visible := m.now().Add(m.VisibilityDelay)
	for _, rec := range records {
		m.records[rec.ID] = rec
		m.visibleAt[rec.ID] = visible
	}
	return nil
}

func (m *Memory) Query(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	hits := make([]Hit, 0, len(m.records))
	for id, rec := range m.records {
		if now.Before(m.visibleAt[id]) {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: cosineSimilarity(vector, rec.Vector), Metadata: rec.Metadata})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *Memory) Fetch(ctx context.Context, id string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok || m.now().Before(m.visibleAt[id]) {
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (m *Memory) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]Record)
	m.visibleAt = make(map[string]time.Time)
	return nil
}

func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{VectorCount: int64(len(m.records))}, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Package matcher drives chunk-by-chunk semantic search over the reference
// index and reduces the raw hits into merged match intervals.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"echotrace/internal/chunker"
	"echotrace/internal/embedding"
	"echotrace/internal/index"
)

// ErrNoUsableEmbeddings signals that every chunk's embedding failed, which
// aborts the comparison. Individual failures only degrade it.
var ErrNoUsableEmbeddings = errors.New("no usable embeddings for any chunk")

// Config bounds the search.
type Config struct {
	TopK             int
	MaxConcurrency   int
	DefaultThreshold float64
	Thresholds       Thresholds
}

// DefaultConfig mirrors the production calibration.
func DefaultConfig() Config {
	return Config{
		TopK:             10,
		MaxConcurrency:   8,
		DefaultThreshold: 0.7,
		Thresholds:       DefaultThresholds(),
	}
}

// Validate checks the search bounds.
func (c Config) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("matching.top_k must be positive")
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("matching.max_concurrency must be positive")
	}
	if c.DefaultThreshold <= 0 || c.DefaultThreshold > 1 {
		return fmt.Errorf("matching.default_threshold must be in (0,1]")
	}
	return c.Thresholds.Validate()
}

// Candidate is one accepted (chunk, record) pair. Times locate the match in
// the reference recording, not the query chunk.
type Candidate struct {
	StartTime    float64
	EndTime      float64
	Text         string
	Confidence   float64
	SegmentIndex int
}

// Outcome aggregates a comparison pass. Candidates is unordered; callers
// merge it. Skipped counts chunks lost to embedding or query failures.
type Outcome struct {
	Candidates []Candidate
	Searched   int
	Skipped    int
}

// Degraded reports whether some chunks were dropped along the way.
func (o Outcome) Degraded() bool { return o.Skipped > 0 }

// Matcher runs the two-gate search pipeline.
type Matcher struct {
	provider embedding.Provider
	idx      index.Index
	cfg      Config
	logger   *log.Logger
}

// New builds a Matcher. The provider and index are required.
func New(provider embedding.Provider, idx index.Index, cfg Config, logger *log.Logger) (*Matcher, error) {
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
		logger = log.New(log.Writer(), "[MATCHER] ", log.LstdFlags)
	}
	return &Matcher{provider: provider, idx: idx, cfg: cfg, logger: logger}, nil
}

// Match searches the reference index for every chunk of the candidate
// transcript. threshold is the caller's semantic cutoff; non-positive values
// fall back to the configured default. Per-chunk work runs on a bounded
// worker pool; aggregation is commutative so concurrency never changes the
// result set, only latency.
func (m *Matcher) Match(ctx context.Context, chunks []chunker.Chunk, threshold float64) (Outcome, error) {
	var out Outcome
	if len(chunks) == 0 {
		return out, nil
	}
	if threshold <= 0 {
		threshold = m.cfg.DefaultThreshold
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := m.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return out, fmt.Errorf("embed chunks: %w", err)
	}

	type job struct {
		chunk  chunker.Chunk
		vector []float32
	}
	jobs := make([]job, 0, len(chunks))
	for i, vec := range vectors {
		if vec == nil {
			out.Skipped++
			m.logger.Printf("warn: skipping chunk %d: embedding unavailable", i)
			continue
		}
		jobs = append(jobs, job{chunk: chunks[i], vector: vec})
	}
	if len(jobs) == 0 {
		return out, ErrNoUsableEmbeddings
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		workers = m.cfg.MaxConcurrency
	)
	if workers > len(jobs) {
		workers = len(jobs)
	}
	sem := make(chan struct{}, workers)

	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(j job) {
			defer wg.Done()
			defer func() { <-sem }()

			cands, err := m.searchChunk(ctx, j.chunk, j.vector, threshold)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.Skipped++
				m.logger.Printf("warn: query for chunk %d failed: %v", j.chunk.ChunkIndex, err)
				return
			}
			out.Searched++
			out.Candidates = append(out.Candidates, cands...)
		}(j)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// searchChunk queries the index for one chunk and applies both gates. A
// record becomes a candidate only when it clears the semantic threshold AND
// the lexical word-overlap ratio for the chunk's length bucket.
func (m *Matcher) searchChunk(ctx context.Context, chunk chunker.Chunk, vector []float32, threshold float64) ([]Candidate, error) {
	hits, err := m.idx.Query(ctx, vector, m.cfg.TopK)
	if err != nil {
		return nil, err
	}

	textLen := len(chunk.Text)
	semanticCutoff := m.cfg.Thresholds.Semantic(textLen, threshold)
	lexicalCutoff := m.cfg.Thresholds.Lexical(textLen)

	var cands []Candidate
	for _, hit := range hits {
		if hit.Score < semanticCutoff {
			continue
		}
		if overlapRatio(chunk.Text, hit.Metadata.Text) < lexicalCutoff {
			continue
		}
		cands = append(cands, Candidate{
			StartTime:    hit.Metadata.StartTime,
			EndTime:      hit.Metadata.EndTime,
			Text:         hit.Metadata.Text,
			Confidence:   hit.Score,
			SegmentIndex: hit.Metadata.SegmentIndex,
		})
	}
	return cands, nil
}

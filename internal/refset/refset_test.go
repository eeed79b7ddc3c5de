package refset

import (
	"context"
	"errors"
	"testing"
	"time"

	"echotrace/internal/chunker"
	"echotrace/internal/index"
)

type stubProvider struct {
	failTexts map[string]bool
	err       error
}

func (s *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s *stubProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if s.failTexts[t] {
			continue
		}
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Waiter = WaiterConfig{MaxRetries: 2, BaseDelay: time.Millisecond, Multiplier: 1.5}
	return cfg
}

func someChunks() []chunker.Chunk {
	return []chunker.Chunk{
		{Text: "the quick brown fox", StartTime: 0, EndTime: 3, SegmentIndex: 0, Type: chunker.TypeSegment, ChunkIndex: 0},
		{Text: "jumps over the lazy dog", StartTime: 3, EndTime: 6, SegmentIndex: 1, Type: chunker.TypeSegment, ChunkIndex: 1},
	}
}

func TestRegisterStoresChunks(t *testing.T) {
	idx := index.NewMemory()
	r, err := New(&stubProvider{}, idx, fastConfig(), nil, testLogger())
	if err != nil {
		t.Fatalf("new registrar: %v", err)
	}

	res, err := r.Register(context.Background(), someChunks(), Meta{Source: "ref-a", Language: "en"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.ChunksStored != 2 || res.Skipped != 0 {
		t.Fatalf("result = %+v, want 2 stored, 0 skipped", res)
	}
	if res.Degraded {
		t.Fatal("registration degraded against an immediately consistent index")
	}

	stats, err := idx.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.VectorCount != 2 {
		t.Fatalf("vector count = %d, want 2", stats.VectorCount)
	}
}

func TestRegisterReplacesPriorSet(t *testing.T) {
	idx := index.NewMemory()
	r, err := New(&stubProvider{}, idx, fastConfig(), nil, testLogger())
	if err != nil {
		t.Fatalf("new registrar: %v", err)
	}

	if _, err := r.Register(context.Background(), someChunks(), Meta{Source: "ref-a"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	second := []chunker.Chunk{{Text: "completely different material", StartTime: 0, EndTime: 2, Type: chunker.TypeSegment}}
	if _, err := r.Register(context.Background(), second, Meta{Source: "ref-b"}); err != nil {
		t.Fatalf("second register: %v", err)
	}

	stats, _ := idx.Stats(context.Background())
	if stats.VectorCount != 1 {
		t.Fatalf("vector count after re-registration = %d, want 1", stats.VectorCount)
	}
	// Only the new source remains queryable.
	hits, err := idx.Query(context.Background(), []float32{float32(len("completely different material")), 1}, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for _, h := range hits {
		if h.Metadata.Source != "ref-b" {
			t.Fatalf("stale record from source %q survived re-registration", h.Metadata.Source)
		}
	}
}

func TestRegisterSkipsFailedEmbeddings(t *testing.T) {
	idx := index.NewMemory()
	provider := &stubProvider{failTexts: map[string]bool{"jumps over the lazy dog": true}}
	r, err := New(provider, idx, fastConfig(), nil, testLogger())
	if err != nil {
		t.Fatalf("new registrar: %v", err)
	}

	res, err := r.Register(context.Background(), someChunks(), Meta{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.ChunksStored != 1 || res.Skipped != 1 {
		t.Fatalf("result = %+v, want 1 stored, 1 skipped", res)
	}
}

func TestRegisterFailsWhenNothingEmbeds(t *testing.T) {
	provider := &stubProvider{failTexts: map[string]bool{
		"the quick brown fox":     true,
		"jumps over the lazy dog": true,
	}}
	r, err := New(provider, index.NewMemory(), fastConfig(), nil, testLogger())
	if err != nil {
		t.Fatalf("new registrar: %v", err)
	}
	if _, err := r.Register(context.Background(), someChunks(), Meta{}); err == nil {
		t.Fatal("expected error when no chunk embeds")
	}
}

func TestRegisterEmbedErrorAborts(t *testing.T) {
	provider := &stubProvider{err: errors.New("provider down")}
	r, err := New(provider, index.NewMemory(), fastConfig(), nil, testLogger())
	if err != nil {
		t.Fatalf("new registrar: %v", err)
	}
	if _, err := r.Register(context.Background(), someChunks(), Meta{}); err == nil {
		t.Fatal("expected error when the provider is down")
	}
}

func TestRegisterEmptyInput(t *testing.T) {
	r, err := New(&stubProvider{}, index.NewMemory(), fastConfig(), nil, testLogger())
	if err != nil {
		t.Fatalf("new registrar: %v", err)
	}
	if _, err := r.Register(context.Background(), nil, Meta{}); err == nil {
		t.Fatal("expected error for empty chunk list")
	}
}

func TestRegisterDegradesOnVisibilityDelay(t *testing.T) {
	idx := index.NewMemory()
	idx.VisibilityDelay = time.Hour

	r, err := New(&stubProvider{}, idx, fastConfig(), nil, testLogger())
	if err != nil {
		t.Fatalf("new registrar: %v", err)
	}
	r.waiter.sleep = noSleep(nil)

	res, err := r.Register(context.Background(), someChunks(), Meta{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !res.Degraded {
		t.Fatal("expected degraded result when the probe never sees the record")
	}
	if res.ChunksStored != 2 {
		t.Fatalf("chunks stored = %d, want 2", res.ChunksStored)
	}
}

func TestRegisterBatchesUpserts(t *testing.T) {
	var batches []int
	mem := index.NewMemory()
	idx := &batchCounter{Index: mem, batches: &batches}

	cfg := fastConfig()
	cfg.UpsertBatchSize = 2
	r, err := New(&stubProvider{}, idx, cfg, nil, testLogger())
	if err != nil {
		t.Fatalf("new registrar: %v", err)
	}

	chunks := make([]chunker.Chunk, 5)
	for i := range chunks {
		chunks[i] = chunker.Chunk{Text: string(rune('a'+i)) + " chunk", EndTime: float64(i + 1), ChunkIndex: i, Type: chunker.TypeSegment}
	}
	if _, err := r.Register(context.Background(), chunks, Meta{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	want := []int{2, 2, 1}
	if len(batches) != len(want) {
		t.Fatalf("batches = %v, want %v", batches, want)
	}
	for i := range want {
		if batches[i] != want[i] {
			t.Fatalf("batch %d size = %d, want %d", i, batches[i], want[i])
		}
	}
}

type batchCounter struct {
	index.Index
	batches *[]int
}

func (b *batchCounter) Upsert(ctx context.Context, records []index.Record) error {
	*b.batches = append(*b.batches, len(records))
	return b.Index.Upsert(ctx, records)
}

// Package index defines the vector index the reference set is stored in,
// plus the backends that implement it. The index must be treated as
// eventually consistent: a record that was durably upserted may not be
// visible to Query or Fetch immediately.
package index

import "context"

// Metadata is the payload stored alongside each vector. Times locate the
// chunk inside the reference recording.
type Metadata struct {
	Text         string  `json:"text"`
	StartTime    float64 `json:"start_time"`
	EndTime      float64 `json:"end_time"`
	SegmentIndex int     `json:"segment_index"`
	ChunkType    string  `json:"chunk_type,omitempty"`
	ChunkIndex   int     `json:"chunk_index,omitempty"`
	Language     string  `json:"language,omitempty"`
	Source       string  `json:"source,omitempty"`
	RegisteredAt string  `json:"registered_at,omitempty"`
}

// Record is one stored vector with its metadata.
type Record struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Hit is a query result. Score is a similarity in [0,1], higher is closer;
// backends that report distances convert before returning.
type Hit struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// Index is the vector store contract the pipeline depends on.
type Index interface {
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, topK int) ([]Hit, error)
	Fetch(ctx context.Context, id string) (Record, bool, error)
	DeleteAll(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
}

// Stats summarises index contents.
type Stats struct {
	VectorCount int64 `json:"vector_count"`
}

// Package embedding abstracts the text-to-vector provider the matching
// pipeline depends on.
package embedding

import "context"

// Provider converts text into embedding vectors.
//
// EmbedBatch degrades element-wise: a text whose embedding cannot be
// generated yields a nil vector at its position instead of failing the whole
// batch. Callers decide whether partial results are usable.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

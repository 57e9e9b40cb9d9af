// Package embedding provides text embedding and the persistent embedding cache.
package embedding

import "context"

// Embedder produces vector embeddings for text. Implementations return
// unit-normalized vectors of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

package ai

import "context"

// Embedder converts text into fixed-length float vectors.
// EmbedDocuments batches all texts into as few provider calls as possible;
// EmbedQuery embeds a single retrieval query.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

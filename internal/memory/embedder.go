package memory

import "context"

// Embedder defines the interface for generating text embeddings.
// Returned vectors are unit length.
type Embedder interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embedding vectors for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimension of the embedding vectors.
	Dimensions() int

	// Name identifies the embedding model. It is recorded in generation
	// manifests so that queries are embedded by the same model as the corpus.
	Name() string
}

package memory

import (
	"context"
	"fmt"
	"hash/fnv"
)

// HashEmbedder is a deterministic, offline embedder. Each token of the text
// is hashed into a signed bucket and the bag is normalized, so texts sharing
// tokens have a positive cosine similarity.
type HashEmbedder struct {
	dims      int
	tokenizer Tokenizer
}

// NewHashEmbedder creates a new HashEmbedder with the specified dimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &HashEmbedder{dims: dims, tokenizer: ScriptTokenizer{}}
}

// Embed generates a deterministic embedding vector for text.
// The same text will always produce the same vector.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	for _, tok := range e.tokenizer.Tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()

		bucket := int(sum % uint64(e.dims))
		if sum>>63 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}
	normalizeVector(vec)
	return vec, nil
}

// EmbedBatch generates embedding vectors for multiple texts.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dims
}

// Name returns the embedder name.
func (e *HashEmbedder) Name() string {
	return fmt.Sprintf("hash-%d", e.dims)
}

var _ Embedder = (*HashEmbedder)(nil)

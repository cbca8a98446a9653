package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HTTPEmbedder implements Embedder against an OpenAI-compatible
// /v1/embeddings endpoint (OpenAI, Ollama, vLLM, LM Studio ...).
type HTTPEmbedder struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	batchSize  int
	logger     zerolog.Logger
}

// HTTPEmbedderOptions holds configuration for HTTPEmbedder.
type HTTPEmbedderOptions struct {
	BaseURL    string        // Required, e.g. "http://localhost:11434"
	APIKey     string        // Optional bearer token
	Model      string        // Required
	Dimensions int           // Required; responses of another width are rejected
	BatchSize  int           // Default: 64
	Timeout    time.Duration // Default: 30s
	Logger     zerolog.Logger
}

// NewHTTPEmbedder creates a new HTTPEmbedder with the given options.
func NewHTTPEmbedder(opts HTTPEmbedderOptions) (*HTTPEmbedder, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("embedding endpoint is required")
	}
	if opts.Model == "" {
		return nil, errors.New("embedding model is required")
	}
	if opts.Dimensions <= 0 {
		return nil, errors.New("embedding dimensions must be positive")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &HTTPEmbedder{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		model:      opts.Model,
		dimensions: opts.Dimensions,
		batchSize:  opts.BatchSize,
		logger:     opts.Logger,
	}, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data  []embeddingData    `json:"data"`
	Model string             `json:"model"`
	Usage embeddingUsage     `json:"usage"`
	Error *embeddingAPIError `json:"error,omitempty"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type embeddingAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Embed generates an embedding vector for a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	results, err := e.embedInternal(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// EmbedBatch generates embedding vectors for multiple texts, splitting them
// into requests of at most batchSize inputs.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		embeddings, err := e.embedInternal(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		results = append(results, embeddings...)
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	return e.dimensions
}

// Name returns the model name.
func (e *HTTPEmbedder) Name() string {
	return e.model
}

func (e *HTTPEmbedder) embedInternal(ctx context.Context, input []string) ([][]float32, error) {
	jsonBody, err := json.Marshal(embeddingRequest{Model: e.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/v1/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &MemoryError{
			Op:  "http_request",
			Err: fmt.Errorf("%w: %v", ErrEmbeddingFailed, err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		var apiResp embeddingResponse
		if json.Unmarshal(body, &apiResp) == nil && apiResp.Error != nil {
			msg = fmt.Sprintf("[%d] %s", resp.StatusCode, apiResp.Error.Message)
		}
		sentinel := ErrEmbeddingFailed
		if resp.StatusCode == http.StatusTooManyRequests {
			sentinel = ErrRateLimited
		}
		return nil, &MemoryError{Op: "embedding", Err: fmt.Errorf("%w: %s", sentinel, msg)}
	}

	var apiResp embeddingResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(apiResp.Data) != len(input) {
		return nil, &MemoryError{
			Op:  "embedding",
			Err: fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingFailed, len(apiResp.Data), len(input)),
		}
	}

	embeddings := make([][]float32, len(input))
	for _, data := range apiResp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) {
			return nil, fmt.Errorf("invalid embedding index: %d", data.Index)
		}
		if len(data.Embedding) != e.dimensions {
			return nil, &MemoryError{
				Op:  "embedding",
				Err: fmt.Errorf("%w: model returned %d, configured %d", ErrInvalidDims, len(data.Embedding), e.dimensions),
			}
		}
		normalizeVector(data.Embedding)
		embeddings[data.Index] = data.Embedding
	}

	e.logger.Debug().
		Int("count", len(embeddings)).
		Int("promptTokens", apiResp.Usage.PromptTokens).
		Msg("embedding completed")

	return embeddings, nil
}

var _ Embedder = (*HTTPEmbedder)(nil)

package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Source supplies the messages an index is built from.
type Source interface {
	// ConversationIDs returns every conversation in stable store order.
	ConversationIDs(ctx context.Context) ([]string, error)

	// ConversationMessages returns the messages of one conversation.
	ConversationMessages(ctx context.Context, convID string) ([]Message, error)
}

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	Source    Source
	Embedder  Embedder
	Tokenizer Tokenizer
	Segmenter SegmenterOptions
	BM25      BM25Config
	Workers   int // Concurrent embedding batches. Default 4.
	BatchSize int // Texts per EmbedBatch call. Default 32.
	Logger    zerolog.Logger
}

// Builder produces generations from a Source. It is the offline side of the
// engine and never touches a live Engine directly.
type Builder struct {
	source    Source
	embedder  Embedder
	tokenizer Tokenizer
	segmenter *Segmenter
	bm25      BM25Config
	workers   int
	batchSize int
	logger    zerolog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(opts BuilderOptions) (*Builder, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("builder: source is required")
	}
	if opts.Embedder == nil {
		return nil, fmt.Errorf("builder: embedder is required")
	}
	if opts.Tokenizer == nil {
		opts.Tokenizer = ScriptTokenizer{}
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	return &Builder{
		source:    opts.Source,
		embedder:  opts.Embedder,
		tokenizer: opts.Tokenizer,
		segmenter: NewSegmenter(opts.Segmenter),
		bm25:      opts.BM25,
		workers:   opts.Workers,
		batchSize: opts.BatchSize,
		logger:    opts.Logger,
	}, nil
}

// Build segments every conversation, embeds and tokenizes the chunks and
// returns the resulting generation. An empty source yields a valid empty
// generation.
func (b *Builder) Build(ctx context.Context) (*Generation, error) {
	start := time.Now()

	chunks, err := b.collectChunks(ctx)
	if err != nil {
		return nil, &MemoryError{Op: "build", Err: err}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vecs, err := b.embedAll(ctx, texts)
	if err != nil {
		return nil, &MemoryError{Op: "build", Err: err}
	}
	vectors, err := NewVectorIndex(vecs, b.embedder.Dimensions())
	if err != nil {
		return nil, &MemoryError{Op: "build", Err: err}
	}

	corpus := make([][]string, len(texts))
	for i, t := range texts {
		corpus[i] = b.tokenizer.Tokenize(t)
	}
	lexical := NewLexicalIndex(corpus, b.bm25)

	gen, err := NewGeneration(Manifest{
		CreatedAt: time.Now().UTC(),
		Embedder:  b.embedder.Name(),
		Tokenizer: b.tokenizer.Name(),
	}, chunks, vectors, lexical)
	if err != nil {
		return nil, err
	}

	b.logger.Info().
		Int("chunks", len(chunks)).
		Dur("duration", time.Since(start)).
		Msg("builder: generation built")
	return gen, nil
}

// EmbedderName returns the name recorded in manifests of built generations.
func (b *Builder) EmbedderName() string { return b.embedder.Name() }

// TokenizerName returns the tokenizer recorded in manifests of built generations.
func (b *Builder) TokenizerName() string { return b.tokenizer.Name() }

// Rebuild builds a generation and publishes it through store.
func (b *Builder) Rebuild(ctx context.Context, store *GenerationStore) (*Generation, error) {
	gen, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.Save(gen); err != nil {
		return nil, err
	}
	return gen, nil
}

func (b *Builder) collectChunks(ctx context.Context) ([]Chunk, error) {
	convIDs, err := b.source.ConversationIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	var chunks []Chunk
	for _, convID := range convIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgs, err := b.source.ConversationMessages(ctx, convID)
		if err != nil {
			return nil, fmt.Errorf("messages of %s: %w", convID, err)
		}
		slices.SortStableFunc(msgs, func(x, y Message) int {
			return x.Timestamp.Compare(y.Timestamp)
		})
		convChunks := b.segmenter.Build(convID, msgs)
		b.logger.Debug().
			Str("conv", convID).
			Int("messages", len(msgs)).
			Int("chunks", len(convChunks)).
			Msg("builder: conversation segmented")
		chunks = append(chunks, convChunks...)
	}
	return chunks, nil
}

// embedAll embeds texts in parallel batches. Results are written by index so
// row i always belongs to texts[i].
func (b *Builder) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for lo := 0; lo < len(texts); lo += b.batchSize {
		hi := min(lo+b.batchSize, len(texts))
		g.Go(func() error {
			out, err := b.embedder.EmbedBatch(gctx, texts[lo:hi])
			if err != nil {
				return fmt.Errorf("%w: chunks %d-%d: %w", ErrEmbeddingFailed, lo, hi, err)
			}
			if len(out) != hi-lo {
				return fmt.Errorf("%w: chunks %d-%d: got %d vectors", ErrEmbeddingFailed, lo, hi, len(out))
			}
			copy(vecs[lo:hi], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vecs, nil
}

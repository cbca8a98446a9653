package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// HybridConfig holds configuration for hybrid search.
type HybridConfig struct {
	VectorWeight  float64 // Weight of cosine similarity (default 0.6)
	LexicalWeight float64 // Weight of max-normalized BM25 (default 0.4)
	CandidateK    int     // Candidates taken from each ranking before filtering (default 50)
	HighCutoff    float64 // Scores above this are high confidence (default 0.8)
	MediumCutoff  float64 // Scores above this are medium confidence (default 0.5)
}

// DefaultHybridConfig returns a HybridConfig with default values.
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		VectorWeight:  0.6,
		LexicalWeight: 0.4,
		CandidateK:    50,
		HighCutoff:    0.8,
		MediumCutoff:  0.5,
	}
}

// Confidence maps a fused score to its bucket.
func (c HybridConfig) Confidence(score float64) Confidence {
	switch {
	case score > c.HighCutoff:
		return ConfidenceHigh
	case score > c.MediumCutoff:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// EngineOptions holds options for creating an Engine.
type EngineOptions struct {
	Embedder  Embedder
	Tokenizer Tokenizer
	Config    HybridConfig
	Logger    zerolog.Logger
}

// Engine serves hybrid searches over the current generation. The generation
// is replaced atomically by Swap; a search captures it once and runs without
// locks, so a rebuild never blocks or tears an in-flight query.
type Engine struct {
	embedder  Embedder
	tokenizer Tokenizer
	config    HybridConfig
	logger    zerolog.Logger
	tracer    trace.Tracer

	current atomic.Pointer[Generation]
}

// NewEngine creates a new Engine with no generation loaded.
func NewEngine(opts EngineOptions) *Engine {
	config := opts.Config
	def := DefaultHybridConfig()
	if config.VectorWeight == 0 && config.LexicalWeight == 0 {
		config.VectorWeight, config.LexicalWeight = def.VectorWeight, def.LexicalWeight
	}
	if config.CandidateK <= 0 {
		config.CandidateK = def.CandidateK
	}
	if config.HighCutoff == 0 && config.MediumCutoff == 0 {
		config.HighCutoff, config.MediumCutoff = def.HighCutoff, def.MediumCutoff
	}
	if opts.Tokenizer == nil {
		opts.Tokenizer = ScriptTokenizer{}
	}

	return &Engine{
		embedder:  opts.Embedder,
		tokenizer: opts.Tokenizer,
		config:    config,
		logger:    opts.Logger,
		tracer:    otel.Tracer("recall/memory"),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() HybridConfig {
	return e.config
}

// Swap publishes gen as the generation for subsequent searches and returns
// the previous one. A generation whose vectors do not match the embedder's
// width, or whose manifest names another embedder or tokenizer, is refused.
func (e *Engine) Swap(gen *Generation) (*Generation, error) {
	if gen == nil {
		return nil, ErrNoGeneration
	}
	if gen.Len() > 0 && gen.Vectors.Dimensions() != e.embedder.Dimensions() {
		err := fmt.Errorf("%w: generation has %d, embedder produces %d",
			ErrInvalidDims, gen.Vectors.Dimensions(), e.embedder.Dimensions())
		return nil, &MemoryError{Op: "swap", ID: gen.ID(), Err: err}
	}
	if name := gen.Manifest.Embedder; name != "" && name != e.embedder.Name() {
		err := fmt.Errorf("%w: embedder %q, engine uses %q", ErrIndexMismatch, name, e.embedder.Name())
		return nil, &MemoryError{Op: "swap", ID: gen.ID(), Err: err}
	}
	if name := gen.Manifest.Tokenizer; name != "" && name != e.tokenizer.Name() {
		err := fmt.Errorf("%w: tokenizer %q, engine uses %q", ErrIndexMismatch, name, e.tokenizer.Name())
		return nil, &MemoryError{Op: "swap", ID: gen.ID(), Err: err}
	}

	prev := e.current.Swap(gen)
	e.logger.Info().
		Str("generation", gen.ID()).
		Int("chunks", gen.Len()).
		Msg("engine: generation swapped in")
	return prev, nil
}

// Generation returns the current generation, or nil before the first Swap.
func (e *Engine) Generation() *Generation {
	return e.current.Load()
}

// Search runs a hybrid search. A blank query, or an empty generation, yields
// no hits and no error. An embedding failure fails the whole search.
func (e *Engine) Search(ctx context.Context, q Query) ([]SearchHit, error) {
	ctx, span := e.tracer.Start(ctx, "memory.Search",
		trace.WithAttributes(
			attribute.Int("top_k", q.TopK),
			attribute.String("conv_id", q.ConvID),
		))
	defer span.End()

	hits, err := e.search(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("hits", len(hits)))
	return hits, nil
}

func (e *Engine) search(ctx context.Context, q Query) ([]SearchHit, error) {
	gen := e.current.Load()
	if gen == nil {
		return nil, ErrNoGeneration
	}

	text := Normalize(q.Text)
	if strings.TrimSpace(text) == "" || gen.Len() == 0 {
		return []SearchHit{}, nil
	}
	topK := q.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	start := time.Now()

	var sims, lex []float64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := e.embedder.Embed(gctx, text)
		if err != nil {
			return &MemoryError{Op: "search", ID: gen.ID(), Err: fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)}
		}
		sims, err = gen.Vectors.Similarities(vec)
		if err != nil {
			return &MemoryError{Op: "search", ID: gen.ID(), Err: err}
		}
		return nil
	})
	g.Go(func() error {
		lex = gen.Lexical.ScoreAll(e.tokenizer.Tokenize(text))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	keep := func(row int) bool {
		c := &gen.Chunks[row]
		if q.ConvID != "" && c.ConvID != q.ConvID {
			return false
		}
		return TimeOverlap(c.TimeStart, c.TimeEnd, q.Start, q.End)
	}

	maxLex := 0.0
	for _, s := range lex {
		maxLex = max(maxLex, s)
	}
	if maxLex <= 0 {
		maxLex = 1.0
	}

	fused := make(map[int]float64)
	for _, row := range topRows(sims, e.config.CandidateK) {
		if keep(row) {
			fused[row] += e.config.VectorWeight * sims[row]
		}
	}
	for _, row := range topRows(lex, e.config.CandidateK) {
		if keep(row) {
			fused[row] += e.config.LexicalWeight * (lex[row] / maxLex)
		}
	}

	rows := make([]int, 0, len(fused))
	for row := range fused {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		si, sj := fused[rows[i]], fused[rows[j]]
		if si != sj {
			return si > sj
		}
		return rows[i] < rows[j]
	})
	if len(rows) > topK {
		rows = rows[:topK]
	}

	hits := make([]SearchHit, len(rows))
	for i, row := range rows {
		c := gen.Chunks[row]
		score := fused[row]
		hits[i] = SearchHit{
			ChunkID:    c.ChunkID,
			ConvID:     c.ConvID,
			TimeStart:  c.TimeStart,
			TimeEnd:    c.TimeEnd,
			Score:      score,
			Confidence: e.config.Confidence(score),
			Text:       c.Text,
			MessageIDs: c.MessageIDs,
		}
	}

	e.logger.Debug().
		Str("generation", gen.ID()).
		Int("candidates", len(fused)).
		Int("hits", len(hits)).
		Dur("duration", time.Since(start)).
		Msg("engine: search completed")
	return hits, nil
}

// topRows returns the indexes of the k highest scores, highest first, ties
// broken by lower index.
func topRows(scores []float64, k int) []int {
	rows := make([]int, len(scores))
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return scores[rows[i]] > scores[rows[j]]
	})
	if len(rows) > k {
		rows = rows[:k]
	}
	return rows
}

// TimeOverlap reports whether [chunkStart, chunkEnd] intersects the query
// range. A nil bound leaves that side open.
func TimeOverlap(chunkStart, chunkEnd time.Time, start, end *time.Time) bool {
	if start == nil && end == nil {
		return true
	}
	if start != nil && chunkEnd.Before(*start) {
		return false
	}
	if end != nil && chunkStart.After(*end) {
		return false
	}
	return true
}

package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// testLogger returns a no-op logger for tests.
func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

var baseTime = time.Date(2026, 2, 19, 9, 0, 0, 0, time.UTC)

// fixedEmbedder returns the same vector for every text and counts calls.
type fixedEmbedder struct {
	vec   []float32
	err   error
	calls atomic.Int64
}

func (f *fixedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float32, len(f.vec))
	copy(out, f.vec)
	return out, nil
}

func (f *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fixedEmbedder) Dimensions() int { return len(f.vec) }
func (f *fixedEmbedder) Name() string    { return "fixed" }

var errEmbedDown = errors.New("embedding backend down")

// memSource is an in-memory Source.
type memSource struct {
	order []string
	msgs  map[string][]Message
}

func (s *memSource) add(convID string, msgs ...Message) {
	if s.msgs == nil {
		s.msgs = make(map[string][]Message)
	}
	if _, ok := s.msgs[convID]; !ok {
		s.order = append(s.order, convID)
	}
	s.msgs[convID] = append(s.msgs[convID], msgs...)
}

func (s *memSource) ConversationIDs(context.Context) ([]string, error) {
	return s.order, nil
}

func (s *memSource) ConversationMessages(_ context.Context, convID string) ([]Message, error) {
	return append([]Message(nil), s.msgs[convID]...), nil
}

// msg builds a message offset minutes after baseTime.
func msg(id, sender string, minutes int, text string) Message {
	return Message{ID: id, Sender: sender, Timestamp: baseTime.Add(time.Duration(minutes) * time.Minute), Text: text}
}

// testChunk builds a single-message chunk spanning the given minutes.
func testChunk(id, convID string, startMin, endMin int, text string) Chunk {
	return Chunk{
		ChunkID:    id,
		ConvID:     convID,
		TimeStart:  baseTime.Add(time.Duration(startMin) * time.Minute),
		TimeEnd:    baseTime.Add(time.Duration(endMin) * time.Minute),
		Text:       text,
		MessageIDs: []string{id},
	}
}

// newTestGeneration assembles a generation from explicit rows; row i of
// chunks, vecs and corpus describe the same chunk.
func newTestGeneration(t *testing.T, chunks []Chunk, vecs [][]float32, corpus [][]string, dims int) *Generation {
	t.Helper()
	vectors, err := NewVectorIndex(vecs, dims)
	require.NoError(t, err)
	gen, err := NewGeneration(Manifest{ID: "test", Embedder: "fixed", Tokenizer: TokenizerScript},
		chunks, vectors, NewLexicalIndex(corpus, DefaultBM25Config()))
	require.NoError(t, err)
	return gen
}

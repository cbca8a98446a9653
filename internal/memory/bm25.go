package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
)

// BM25Config configures BM25 scoring parameters.
type BM25Config struct {
	K1      float64 `json:"k1"`      // Term frequency saturation parameter (default 1.5)
	B       float64 `json:"b"`       // Document length normalization parameter (default 0.75)
	Epsilon float64 `json:"epsilon"` // Floor for negative IDF, as a fraction of the mean IDF (default 0.25)
}

// DefaultBM25Config returns the default BM25 configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{K1: 1.5, B: 0.75, Epsilon: 0.25}
}

// LexicalIndex is an in-memory BM25 (Okapi) index over tokenized documents.
// Document i corresponds to chunk i of the same generation. It is read-only
// after construction.
type LexicalIndex struct {
	config BM25Config
	docs   []map[string]int
	docLen []int
	avgdl  float64
	idf    map[string]float64
	avgIDF float64
}

// NewLexicalIndex builds an index over the given token lists.
func NewLexicalIndex(corpus [][]string, config BM25Config) *LexicalIndex {
	docs := make([]map[string]int, len(corpus))
	for i, toks := range corpus {
		tf := make(map[string]int, len(toks))
		for _, tok := range toks {
			tf[tok]++
		}
		docs[i] = tf
	}
	return newLexicalIndexFromFreqs(docs, config)
}

func newLexicalIndexFromFreqs(docs []map[string]int, config BM25Config) *LexicalIndex {
	def := DefaultBM25Config()
	if config.K1 == 0 {
		config.K1 = def.K1
	}
	if config.B == 0 {
		config.B = def.B
	}
	if config.Epsilon == 0 {
		config.Epsilon = def.Epsilon
	}

	idx := &LexicalIndex{
		config: config,
		docs:   docs,
		docLen: make([]int, len(docs)),
		idf:    make(map[string]float64),
	}
	idx.computeStats()
	return idx
}

func (idx *LexicalIndex) computeStats() {
	n := len(idx.docs)
	if n == 0 {
		return
	}

	df := make(map[string]int)
	total := 0
	for i, tf := range idx.docs {
		l := 0
		for term, c := range tf {
			l += c
			df[term]++
		}
		idx.docLen[i] = l
		total += l
	}
	idx.avgdl = float64(total) / float64(n)
	if len(df) == 0 {
		return
	}

	// Terms present in more than half the corpus get a negative raw IDF and
	// are floored at epsilon * mean IDF.
	var (
		sum      float64
		negative []string
	)
	for term, freq := range df {
		v := math.Log(float64(n)-float64(freq)+0.5) - math.Log(float64(freq)+0.5)
		idx.idf[term] = v
		sum += v
		if v < 0 {
			negative = append(negative, term)
		}
	}
	idx.avgIDF = sum / float64(len(df))
	floor := idx.config.Epsilon * idx.avgIDF
	for _, term := range negative {
		idx.idf[term] = floor
	}
}

// Docs returns the number of indexed documents.
func (idx *LexicalIndex) Docs() int {
	return len(idx.docs)
}

// ScoreAll returns the BM25 score of every document for the query tokens, in
// document order. Repeated query tokens contribute repeatedly.
func (idx *LexicalIndex) ScoreAll(tokens []string) []float64 {
	scores := make([]float64, len(idx.docs))
	if len(idx.docs) == 0 || len(tokens) == 0 {
		return scores
	}

	k1, b := idx.config.K1, idx.config.B
	avgdl := idx.avgdl
	if avgdl == 0 {
		avgdl = 1
	}
	for _, q := range tokens {
		idf, ok := idx.idf[q]
		if !ok {
			continue
		}
		for i, tf := range idx.docs {
			f := float64(tf[q])
			if f == 0 {
				continue
			}
			norm := k1 * (1 - b + b*float64(idx.docLen[i])/avgdl)
			scores[i] += idf * f * (k1 + 1) / (f + norm)
		}
	}
	return scores
}

// lexicalSnapshot is the persisted form: raw term frequencies per document.
// Derived statistics are recomputed on load.
type lexicalSnapshot struct {
	Version int              `json:"version"`
	Config  BM25Config       `json:"config"`
	Docs    []map[string]int `json:"docs"`
}

const lexicalSnapshotVersion = 1

// WriteTo serializes the index as JSON.
func (idx *LexicalIndex) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	err := json.NewEncoder(cw).Encode(lexicalSnapshot{
		Version: lexicalSnapshotVersion,
		Config:  idx.config,
		Docs:    idx.docs,
	})
	return cw.n, err
}

// ReadLexicalIndex decodes an index written by WriteTo.
func ReadLexicalIndex(r io.Reader) (*LexicalIndex, error) {
	var snap lexicalSnapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: lexical index: %w", ErrInvalidArtifact, err)
	}
	if snap.Version != lexicalSnapshotVersion {
		return nil, fmt.Errorf("%w: lexical index version %d", ErrInvalidArtifact, snap.Version)
	}
	for i := range snap.Docs {
		if snap.Docs[i] == nil {
			snap.Docs[i] = map[string]int{}
		}
	}
	return newLexicalIndexFromFreqs(snap.Docs, snap.Config), nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

package memory

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-ego/gse"
	"github.com/rs/zerolog"
)

// Tokenizer splits text into lexical index terms. Implementations normalize
// their input, so raw and normalized text yield the same tokens.
type Tokenizer interface {
	Tokenize(text string) []string
	Name() string
}

// Tokenizer kinds accepted by NewTokenizer.
const (
	TokenizerAuto    = "auto"
	TokenizerSegment = "gse"
	TokenizerScript  = "script"
)

// NewTokenizer returns the tokenizer for kind. "auto" prefers the dictionary
// segmenter and falls back to the script tokenizer when its dictionary cannot
// be loaded.
func NewTokenizer(kind string, logger zerolog.Logger) (Tokenizer, error) {
	switch kind {
	case TokenizerScript:
		return ScriptTokenizer{}, nil
	case TokenizerSegment:
		tok, err := NewSegmentTokenizer()
		if err != nil {
			return nil, err
		}
		return tok, nil
	case "", TokenizerAuto:
		tok, err := NewSegmentTokenizer()
		if err != nil {
			logger.Warn().Err(err).Msg("tokenizer: dictionary segmenter unavailable, using script tokenizer")
			return ScriptTokenizer{}, nil
		}
		return tok, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrNoTokenizer, kind)
	}
}

var (
	hanBlockRe = regexp.MustCompile(`[\x{4e00}-\x{9fff}]+`)
	wordRe     = regexp.MustCompile(`[A-Za-z0-9_]+`)
)

// ScriptTokenizer splits CJK runs into character bigrams (single characters
// stay whole) followed by lowercased ASCII words.
type ScriptTokenizer struct{}

// Name returns the tokenizer name.
func (ScriptTokenizer) Name() string { return TokenizerScript }

// Tokenize implements Tokenizer.
func (ScriptTokenizer) Tokenize(text string) []string {
	t := Normalize(text)

	var toks []string
	for _, block := range hanBlockRe.FindAllString(t, -1) {
		runes := []rune(block)
		if len(runes) == 1 {
			toks = append(toks, block)
			continue
		}
		for i := 0; i+1 < len(runes); i++ {
			toks = append(toks, string(runes[i:i+2]))
		}
	}
	for _, w := range wordRe.FindAllString(t, -1) {
		toks = append(toks, strings.ToLower(w))
	}
	if len(toks) == 0 {
		return runeTokens(t)
	}
	return toks
}

// SegmentTokenizer cuts text with the gse dictionary segmenter. Cut only
// reads the loaded dictionary, so one instance serves concurrent queries.
type SegmentTokenizer struct {
	seg gse.Segmenter
}

var (
	sharedSegOnce sync.Once
	sharedSeg     *SegmentTokenizer
	sharedSegErr  error
)

// NewSegmentTokenizer returns the process-wide segmenter, loading the
// embedded dictionary on first use.
func NewSegmentTokenizer() (*SegmentTokenizer, error) {
	sharedSegOnce.Do(func() {
		st := &SegmentTokenizer{}
		if err := st.seg.LoadDictEmbed(); err != nil {
			sharedSegErr = fmt.Errorf("%w: load gse dictionary: %w", ErrNoTokenizer, err)
			return
		}
		sharedSeg = st
	})
	return sharedSeg, sharedSegErr
}

// Name returns the tokenizer name.
func (*SegmentTokenizer) Name() string { return TokenizerSegment }

// Tokenize implements Tokenizer.
func (st *SegmentTokenizer) Tokenize(text string) []string {
	t := Normalize(text)
	if t == "" {
		return nil
	}

	words := st.seg.Cut(t, true)

	toks := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		toks = append(toks, strings.ToLower(w))
	}
	if len(toks) == 0 {
		return runeTokens(t)
	}
	return toks
}

func runeTokens(t string) []string {
	if t == "" {
		return nil
	}
	toks := make([]string, 0, len(t))
	for _, r := range t {
		toks = append(toks, string(r))
	}
	return toks
}

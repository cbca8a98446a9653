package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptTokenizer(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"今天天气不错", []string{"今天", "天天", "天气", "气不", "不错"}},
		{"好 Go", []string{"好", "go"}},
		{"混合English和中文", []string{"混合", "和", "中文", "english"}},
		{"Release_v2 上线", []string{"上线", "release_v2"}},
		{"!!!", []string{"!", "!"}},
		{"", nil},
	}

	tok := ScriptTokenizer{}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tok.Tokenize(tt.input), "Tokenize(%q)", tt.input)
	}
}

func TestNewTokenizer(t *testing.T) {
	tok, err := NewTokenizer(TokenizerScript, testLogger())
	require.NoError(t, err)
	assert.Equal(t, TokenizerScript, tok.Name())

	_, err = NewTokenizer("whitespace", testLogger())
	assert.ErrorIs(t, err, ErrNoTokenizer)

	tok, err = NewTokenizer(TokenizerAuto, testLogger())
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Tokenize("项目周报"))
}

func TestSegmentTokenizer(t *testing.T) {
	tok, err := NewSegmentTokenizer()
	if err != nil {
		t.Skipf("gse dictionary unavailable: %v", err)
	}

	toks := tok.Tokenize("Hello 世界，明天开会")
	assert.Contains(t, toks, "hello")
	assert.NotContains(t, toks, "")
	assert.NotContains(t, toks, " ")
	assert.Equal(t, toks, tok.Tokenize(Normalize("Hello 世界，明天开会")))
}

func TestNewTokenizer_SegmentResult(t *testing.T) {
	tok, err := NewTokenizer(TokenizerSegment, testLogger())
	if err != nil {
		assert.ErrorIs(t, err, ErrNoTokenizer)
		assert.True(t, tok == nil, "tokenizer must be a nil interface on error")
		return
	}
	require.NotNil(t, tok)
	assert.Equal(t, TokenizerSegment, tok.Name())
}

func TestSegmentTokenizer_Concurrent(t *testing.T) {
	tok, err := NewSegmentTokenizer()
	if err != nil {
		t.Skipf("gse dictionary unavailable: %v", err)
	}
	want := tok.Tokenize("明天下午和客户开会讨论报价")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				assert.Equal(t, want, tok.Tokenize("明天下午和客户开会讨论报价"))
			}
		}()
	}
	wg.Wait()
}

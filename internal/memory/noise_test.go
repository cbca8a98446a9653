package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNoise(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", true},
		{"   ", true},
		{"嗯", true},
		{"好的", true},
		{"ok", true},
		{"没问题", true},
		{"thanks", true},
		{"😂😂", true},
		{"!! ??", true},
		{"20万", false},
		{"3k", false},
		{"2026-02-19", false},
		{"10:30", false},
		{"#周报", false},
		{"@alice", false},
		{"在吗", false},
		{"好的好的", false},
		{"明天下午去看房", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsNoise(tt.text), "IsNoise(%q)", tt.text)
	}
}

func TestIsNoise_NormalizedInput(t *testing.T) {
	// Fullwidth filler becomes ascii filler once normalized.
	assert.True(t, IsNoise(Normalize("ＯＫ")))
	assert.False(t, IsNoise(Normalize("２０万")))
}

package recall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateInput(t *testing.T) {
	cst := time.FixedZone("CST", 8*3600)

	tests := []struct {
		in    string
		isEnd bool
		want  time.Time
	}{
		{"2026-02-16", false, time.Date(2026, 2, 16, 0, 0, 0, 0, cst)},
		{"2026-02-16", true, time.Date(2026, 2, 16, 23, 59, 59, 0, cst)},
		{"2026-02-16T10:30:00", false, time.Date(2026, 2, 16, 10, 30, 0, 0, cst)},
		{"2026-02-16 10:30:00", true, time.Date(2026, 2, 16, 10, 30, 0, 0, cst)},
		{"2026-02-16T10:30", false, time.Date(2026, 2, 16, 10, 30, 0, 0, cst)},
		{"2026-02-16T02:30:00Z", false, time.Date(2026, 2, 16, 10, 30, 0, 0, cst)},
	}

	for _, tt := range tests {
		got, err := ParseDateInput(tt.in, tt.isEnd, cst)
		require.NoError(t, err, tt.in)
		require.NotNil(t, got, tt.in)
		assert.True(t, tt.want.Equal(*got), "%s: got %s, want %s", tt.in, got, tt.want)
	}
}

func TestParseDateInput_Empty(t *testing.T) {
	got, err := ParseDateInput("  ", false, time.UTC)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseDateInput_Invalid(t *testing.T) {
	for _, in := range []string{"2026/02/16", "yesterday", "2026-13-01"} {
		_, err := ParseDateInput(in, false, time.UTC)
		assert.Error(t, err, in)
	}
}

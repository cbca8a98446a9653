package timerange

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNumeral(t *testing.T) {
	tests := []struct {
		token string
		want  int
		ok    bool
	}{
		{"3", 3, true},
		{"30", 30, true},
		{" 7 ", 7, true},
		{"零", 0, true},
		{"两", 2, true},
		{"十", 10, true},
		{"十一", 11, true},
		{"十二", 12, true},
		{"二十", 20, true},
		{"二十一", 21, true},
		{"九十九", 99, true},
		{"two", 2, true},
		{"Ten", 10, true},
		{"a", 1, true},
		{"", 0, false},
		{"百", 0, false},
		{"十十", 10, true},
		{"十十十", 10, true},
		{"零十", 0, true},
		{"十零", 10, true},
		{"三四", 0, false},
		{"二十三四", 0, false},
		{"3a", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseNumeral(tt.token)
		assert.Equal(t, tt.ok, ok, "ParseNumeral(%q) ok", tt.token)
		if tt.ok {
			assert.Equal(t, tt.want, got, "ParseNumeral(%q)", tt.token)
		}
	}
}

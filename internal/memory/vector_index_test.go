package memory

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorIndex(t *testing.T) {
	idx, err := NewVectorIndex([][]float32{{1, 0}, {0, 1}, {0.6, 0.8}}, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Rows())
	assert.Equal(t, 2, idx.Dimensions())
	assert.Equal(t, []float32{0, 1}, idx.Row(1))

	sims, err := idx.Similarities([]float32{1, 0})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 0, 0.6}, sims, 1e-6)

	_, err = idx.Similarities([]float32{1, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidDims)

	_, err = NewVectorIndex([][]float32{{1, 0}, {1}}, 2)
	assert.ErrorIs(t, err, ErrInvalidDims)
}

func TestVectorIndex_Persistence(t *testing.T) {
	idx, err := NewVectorIndex([][]float32{{0.1, -0.2, 0.3}, {1, 0, 0}}, 3)
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := idx.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(4+12+2*3*4), n)

	loaded, err := ReadVectorIndex(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, idx.Rows(), loaded.Rows())
	assert.Equal(t, idx.Row(0), loaded.Row(0))
	assert.Equal(t, idx.Row(1), loaded.Row(1))

	t.Run("truncated", func(t *testing.T) {
		_, err := ReadVectorIndex(bytes.NewReader(buf.Bytes()[:buf.Len()-3]))
		assert.ErrorIs(t, err, ErrInvalidArtifact)
	})

	t.Run("header overflows", func(t *testing.T) {
		_, err := ReadVectorIndex(bytes.NewReader(vectorHeader(1, 0xFFFFFFFF, 0xFFFFFFFF)))
		assert.ErrorIs(t, err, ErrInvalidArtifact)
	})

	t.Run("header larger than body", func(t *testing.T) {
		_, err := ReadVectorIndex(bytes.NewReader(vectorHeader(1, 1<<14, 1<<14)))
		assert.ErrorIs(t, err, ErrInvalidArtifact)
	})

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte("XXXX"), buf.Bytes()[4:]...)
		_, err := ReadVectorIndex(bytes.NewReader(bad))
		assert.ErrorIs(t, err, ErrInvalidArtifact)
	})
}

func TestVectorIndex_Empty(t *testing.T) {
	idx, err := NewVectorIndex(nil, 8)
	require.NoError(t, err)
	assert.Zero(t, idx.Rows())

	var buf bytes.Buffer
	_, err = idx.WriteTo(&buf)
	require.NoError(t, err)

	loaded, err := ReadVectorIndex(&buf)
	require.NoError(t, err)
	assert.Zero(t, loaded.Rows())
	assert.Equal(t, 8, loaded.Dimensions())
}

// vectorHeader encodes an embeddings header with no values after it.
func vectorHeader(version, rows, dims uint32) []byte {
	b := []byte("RCLV")
	for _, v := range []uint32{version, rows, dims} {
		b = binary.LittleEndian.AppendUint32(b, v)
	}
	return b
}

package memory

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// VectorIndex holds one unit-length embedding per chunk in a row-major
// float32 matrix. Row i corresponds to chunk i of the same generation.
type VectorIndex struct {
	dims int
	data []float32
}

// NewVectorIndex creates an index from rows of equal length. Rows are copied.
func NewVectorIndex(rows [][]float32, dims int) (*VectorIndex, error) {
	data := make([]float32, 0, len(rows)*dims)
	for i, row := range rows {
		if len(row) != dims {
			return nil, fmt.Errorf("%w: row %d has %d dims, want %d", ErrInvalidDims, i, len(row), dims)
		}
		data = append(data, row...)
	}
	return &VectorIndex{dims: dims, data: data}, nil
}

// Rows returns the number of vectors.
func (v *VectorIndex) Rows() int {
	if v.dims == 0 {
		return 0
	}
	return len(v.data) / v.dims
}

// Dimensions returns the vector width.
func (v *VectorIndex) Dimensions() int {
	return v.dims
}

// Row returns a view of row i.
func (v *VectorIndex) Row(i int) []float32 {
	return v.data[i*v.dims : (i+1)*v.dims]
}

// Similarities returns the dot product of query with every row. Rows and the
// query are unit length, so this is cosine similarity.
func (v *VectorIndex) Similarities(query []float32) ([]float64, error) {
	if len(query) != v.dims {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d", ErrInvalidDims, len(query), v.dims)
	}
	rows := v.Rows()
	sims := make([]float64, rows)
	for r := 0; r < rows; r++ {
		row := v.data[r*v.dims : (r+1)*v.dims]
		var dot float64
		for i, x := range row {
			dot += float64(x) * float64(query[i])
		}
		sims[r] = dot
	}
	return sims, nil
}

// On-disk layout: magic, version, rows, dims (uint32 little endian each)
// followed by rows*dims float32 values.
var vectorMagic = [4]byte{'R', 'C', 'L', 'V'}

const (
	// maxVectorValues caps rows*dims read from a header (4 GiB of float32).
	maxVectorValues = 1 << 30
	vectorReadChunk = 1 << 16
)

const vectorFormatVersion uint32 = 1

// WriteTo serializes the matrix.
func (v *VectorIndex) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	cw := &countingWriter{w: bw}

	header := []uint32{vectorFormatVersion, uint32(v.Rows()), uint32(v.dims)}
	if _, err := cw.Write(vectorMagic[:]); err != nil {
		return cw.n, err
	}
	if err := binary.Write(cw, binary.LittleEndian, header); err != nil {
		return cw.n, err
	}
	buf := make([]byte, 4)
	for _, x := range v.data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
		if _, err := cw.Write(buf); err != nil {
			return cw.n, err
		}
	}
	return cw.n, bw.Flush()
}

// ReadVectorIndex decodes a matrix written by WriteTo.
func ReadVectorIndex(r io.Reader) (*VectorIndex, error) {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: embeddings header: %w", ErrInvalidArtifact, err)
	}
	if magic != vectorMagic {
		return nil, fmt.Errorf("%w: embeddings magic %q", ErrInvalidArtifact, magic[:])
	}
	var header [3]uint32
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: embeddings header: %w", ErrInvalidArtifact, err)
	}
	if header[0] != vectorFormatVersion {
		return nil, fmt.Errorf("%w: embeddings version %d", ErrInvalidArtifact, header[0])
	}
	count := uint64(header[1]) * uint64(header[2])
	if count > maxVectorValues {
		return nil, fmt.Errorf("%w: embeddings header claims %d x %d values",
			ErrInvalidArtifact, header[1], header[2])
	}
	dims := int(header[2])

	// Grow with the values actually read; the header is untrusted.
	data := make([]float32, 0, min(count, vectorReadChunk))
	buf := make([]byte, 4)
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("%w: embeddings truncated at value %d: %w", ErrInvalidArtifact, i, err)
		}
		data = append(data, math.Float32frombits(binary.LittleEndian.Uint32(buf)))
	}
	return &VectorIndex{dims: dims, data: data}, nil
}

// normalizeVector scales vec to unit length in place. Zero vectors are left
// unchanged.
func normalizeVector(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	n := math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / n)
	}
}

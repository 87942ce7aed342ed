package services

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
)

// On-disk layout, little endian: magic, version, dim (uint32), n (uint32),
// then n*dim float32 values in catalog order.
var indexMagic = [4]byte{'S', 'I', 'D', 'X'}

const (
	indexVersion    = 1
	indexHeaderSize = 16
)

// Neighbor is one search hit: a catalog position and its squared L2 distance.
type Neighbor struct {
	Position int
	Distance float64
}

// FlatIndex is an exact nearest-neighbour index under squared L2 distance.
// Vector i belongs to catalog row i. It is immutable once built.
type FlatIndex struct {
	dim  int
	n    int
	data []float32
}

// BuildIndex copies vectors into a flat index. Every vector must have the
// same, non-zero dimension.
func BuildIndex(vectors [][]float32) (*FlatIndex, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no vectors", ErrIndexBuild)
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-dimension vectors", ErrIndexBuild)
	}
	data := make([]float32, 0, dim*len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		data = append(data, v...)
	}
	return &FlatIndex{dim: dim, n: len(vectors), data: data}, nil
}

func (i *FlatIndex) Len() int { return i.n }

func (i *FlatIndex) Dimension() int { return i.dim }

// Search returns the k closest positions, nearest first. Equal distances are
// ordered by position. k larger than the index returns every entry.
func (i *FlatIndex) Search(query []float32, k int) ([]Neighbor, error) {
	if len(query) != i.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", ErrDimensionMismatch, len(query), i.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	neighbors := make([]Neighbor, i.n)
	for pos := 0; pos < i.n; pos++ {
		neighbors[pos] = Neighbor{Position: pos, Distance: squaredL2(query, i.vector(pos))}
	}
	sort.Slice(neighbors, func(a, b int) bool {
		if neighbors[a].Distance != neighbors[b].Distance {
			return neighbors[a].Distance < neighbors[b].Distance
		}
		return neighbors[a].Position < neighbors[b].Position
	})

	if k > len(neighbors) {
		k = len(neighbors)
	}
	return neighbors[:k], nil
}

func (i *FlatIndex) vector(pos int) []float32 {
	return i.data[pos*i.dim : (pos+1)*i.dim]
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for j := range a {
		d := float64(a[j]) - float64(b[j])
		sum += d * d
	}
	return sum
}

func (i *FlatIndex) MarshalBinary() ([]byte, error) {
	out := make([]byte, indexHeaderSize+4*len(i.data))
	copy(out[0:4], indexMagic[:])
	binary.LittleEndian.PutUint32(out[4:8], indexVersion)
	binary.LittleEndian.PutUint32(out[8:12], uint32(i.dim))
	binary.LittleEndian.PutUint32(out[12:16], uint32(i.n))
	off := indexHeaderSize
	for _, v := range i.data {
		binary.LittleEndian.PutUint32(out[off:], math.Float32bits(v))
		off += 4
	}
	return out, nil
}

func (i *FlatIndex) UnmarshalBinary(data []byte) error {
	if len(data) < indexHeaderSize {
		return fmt.Errorf("%w: truncated header", ErrIndexLoad)
	}
	if [4]byte(data[0:4]) != indexMagic {
		return fmt.Errorf("%w: not an index file", ErrIndexLoad)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != indexVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrIndexLoad, v)
	}
	dim := int(binary.LittleEndian.Uint32(data[8:12]))
	n := int(binary.LittleEndian.Uint32(data[12:16]))
	if dim == 0 || n == 0 {
		return fmt.Errorf("%w: empty index (dim=%d, n=%d)", ErrIndexLoad, dim, n)
	}
	// compare by division so a forged header cannot overflow the size
	payload := len(data) - indexHeaderSize
	if payload%4 != 0 || n > payload/4/dim || payload/4 != dim*n {
		return fmt.Errorf("%w: size %d bytes does not hold %d vectors of dimension %d", ErrIndexLoad, len(data), n, dim)
	}

	values := make([]float32, dim*n)
	off := indexHeaderSize
	for j := range values {
		values[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		off += 4
	}
	i.dim, i.n, i.data = dim, n, values
	return nil
}

// Save writes the index to path through a temporary file so a crash never
// leaves a half-written index behind.
func (i *FlatIndex) Save(path string) error {
	data, err := i.MarshalBinary()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp index file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close index: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move index into place: %w", err)
	}
	return nil
}

// LoadIndex reads an index written by Save.
func LoadIndex(path string) (*FlatIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrIndexLoad, path)
		}
		return nil, fmt.Errorf("%w: %w", ErrIndexLoad, err)
	}
	idx := &FlatIndex{}
	if err := idx.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return idx, nil
}

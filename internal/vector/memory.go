package vector

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/hyperjump/kotae/pkg/utils"
)

// FlatIndex is an exact vector index using brute-force inner product search.
// Every stored vector is L2-normalized, so scores are cosine similarities.
// The dimension is fixed by the first inserted vector.
type FlatIndex struct {
	dimensions int
	ids        []int64
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewFlatIndex returns an empty index. Its dimension is set by the first Add.
func NewFlatIndex() *FlatIndex {
	return &FlatIndex{}
}

// Add inserts vectors under the given IDs. The whole batch is validated before anything is
// inserted: on error the index is unchanged.
func (m *FlatIndex) Add(ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	if len(vectors) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dim := m.dimensions
	if dim == 0 {
		dim = len(vectors[0])
	}
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		nv, err := normalize(v, dim)
		if err != nil {
			return fmt.Errorf("vector %d: %w", i, err)
		}
		normalized[i] = nv
	}
	m.dimensions = dim
	m.ids = append(m.ids, ids...)
	m.vectors = append(m.vectors, normalized...)
	return nil
}

// Search returns up to k hits ordered by descending score; equal scores are ordered by lower ID.
// An empty index or a non-positive k yields no hits.
func (m *FlatIndex) Search(query []float32, k int) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.ids) == 0 {
		return []Result{}, nil
	}
	q, err := normalize(query, m.dimensions)
	if err != nil {
		return nil, err
	}
	scores := make([]Result, len(m.ids))
	for i, vec := range m.vectors {
		scores[i] = Result{ID: m.ids[i], Score: InnerProduct(q, vec)}
	}
	slices.SortFunc(scores, func(a, b Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k], nil
}

// Size returns the number of vectors in the index.
func (m *FlatIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Dimensions returns the vector dimension, or 0 for an index that has never been written.
func (m *FlatIndex) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimensions
}

// IDs returns a copy of the stored IDs in insertion order.
func (m *FlatIndex) IDs() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.ids)
}

// Clone returns an independent copy. Stored vectors are never mutated, so they are shared.
func (m *FlatIndex) Clone() *FlatIndex {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &FlatIndex{
		dimensions: m.dimensions,
		ids:        slices.Clone(m.ids),
		vectors:    slices.Clone(m.vectors),
	}
}

func normalize(v []float32, dim int) ([]float32, error) {
	if len(v) != dim {
		return nil, &DimensionMismatchError{Expected: dim, Got: len(v)}
	}
	out := make([]float32, dim)
	copy(out, v)
	if !utils.NormalizeL2(out) {
		return nil, ErrZeroVector
	}
	return out, nil
}

const (
	indexMagic   = "KVIX"
	indexVersion = uint32(1)
)

// MarshalBinary encodes the index. Format (little endian): magic "KVIX", version u32,
// dimension u32, count u32, then per vector: id i64, dimension float32 values.
func (m *FlatIndex) MarshalBinary() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var buf bytes.Buffer
	buf.Grow(16 + len(m.ids)*(8+m.dimensions*4))
	buf.WriteString(indexMagic)
	header := []uint32{indexVersion, uint32(m.dimensions), uint32(len(m.ids))}
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, id := range m.ids {
		if err := binary.Write(&buf, binary.LittleEndian, id); err != nil {
			return nil, fmt.Errorf("write id: %w", err)
		}
		buf.Write(float32SliceToBytes(m.vectors[i]))
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary replaces the index contents with the decoded data.
// Malformed input returns an error wrapping ErrCorruptIndex and leaves the index unchanged.
func (m *FlatIndex) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	magic := make([]byte, len(indexMagic))
	if _, err := r.Read(magic); err != nil || string(magic) != indexMagic {
		return fmt.Errorf("%w: bad magic", ErrCorruptIndex)
	}
	var header [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("%w: read header: %v", ErrCorruptIndex, err)
	}
	if header[0] != indexVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, header[0])
	}
	dim, n := int(header[1]), int(header[2])
	if want := int64(n) * int64(8+dim*4); int64(r.Len()) != want {
		return fmt.Errorf("%w: payload is %d bytes, expected %d", ErrCorruptIndex, r.Len(), want)
	}
	ids := make([]int64, n)
	vectors := make([][]float32, n)
	buf := make([]byte, dim*4)
	for i := 0; i < n; i++ {
		if err := binary.Read(r, binary.LittleEndian, &ids[i]); err != nil {
			return fmt.Errorf("%w: read id: %v", ErrCorruptIndex, err)
		}
		if _, err := r.Read(buf); err != nil && dim > 0 {
			return fmt.Errorf("%w: read vector: %v", ErrCorruptIndex, err)
		}
		vectors[i] = bytesToFloat32Slice(buf)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dimensions = dim
	m.ids = ids
	m.vectors = vectors
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

package embedding

import (
	"context"
	"hash/fnv"

	"github.com/hyperjump/kotae/pkg/utils"
)

const defaultMockDimensions = 384

// MockEmbedder derives vectors from a hash of the text. Equal texts get equal unit vectors;
// nothing about the vectors is semantic. Use it offline and in tests.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns a deterministic offline embedder. Non-positive dimensions default to 384.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = defaultMockDimensions
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed derives a unit vector from a hash of text, so equal texts embed equally.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ServiceError{Op: "embed", Err: err}
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	state := h.Sum64()

	vec := make([]float32, e.dimensions)
	for i := range vec {
		state = splitmix(state)
		// Map the top 24 bits into [-1, 1) and keep a small positive bias so the vector never vanishes.
		vec[i] = float32(state>>40)/float32(1<<23) - 1 + 0.05
	}
	if !utils.NormalizeL2(vec) {
		vec[0] = 1
	}
	return vec, nil
}

// Dimensions reports the vector width.
func (e *MockEmbedder) Dimensions() int { return e.dimensions }

// Close is a no-op.
func (e *MockEmbedder) Close() error { return nil }

func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Package vector provides an exact inner-product vector index over L2-normalized vectors.
package vector

import (
	"errors"
	"fmt"
)

// ErrZeroVector is returned when a vector with zero (or non-finite) L2 norm is inserted or queried.
// Zero vectors have no direction and cannot be normalized.
var ErrZeroVector = errors.New("vector has zero norm")

// ErrCorruptIndex is returned when a serialized index cannot be decoded.
var ErrCorruptIndex = errors.New("corrupt vector index")

// DimensionMismatchError reports a vector whose length differs from the index dimension.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: got %d, expected %d", e.Got, e.Expected)
}

// Result is a single search hit. ID is the slot of the chunk in its collection.
type Result struct {
	ID    int64
	Score float64 // inner product of normalized vectors (cosine similarity)
}

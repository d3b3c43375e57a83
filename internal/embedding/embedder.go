// Package embedding turns text into vectors through a remote embedding service.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmbeddingService is wrapped by every failure to obtain an embedding from the service.
var ErrEmbeddingService = errors.New("embedding service error")

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions returns the vector length, or 0 if no embedding has been produced yet.
	Dimensions() int
	Close() error
}

// ServiceError is an embedding call that failed: network error, timeout, non-success
// status or a malformed response.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("embedding service: %s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() []error {
	return []error{ErrEmbeddingService, e.Err}
}

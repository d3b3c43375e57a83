package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/hyperjump/kotae/internal/blob"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/snapshot"
	"github.com/hyperjump/kotae/internal/storage"
)

// statusFor maps a domain error to an HTTP status and the message shown to the client.
// Upstream service failures are reported without their details.
func statusFor(err error) (int, string) {
	var missing *rag.MissingInputError
	switch {
	case errors.As(err, &missing):
		return http.StatusBadRequest, missing.Error()
	case errors.Is(err, blob.ErrInvalidKey):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, rag.ErrCollectionNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, blob.ErrNotFound),
		errors.Is(err, snapshot.ErrSnapshotNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, rag.ErrNoIndexLoaded):
		return http.StatusConflict, "No embedding loaded"
	case errors.Is(err, snapshot.ErrCorruptSnapshot):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	case errors.Is(err, embedding.ErrEmbeddingService):
		return http.StatusBadGateway, "embedding service unavailable"
	case errors.Is(err, generation.ErrGenerationService):
		return http.StatusBadGateway, "generation service unavailable"
	case errors.Is(err, rag.ErrEmptyAnswer):
		return http.StatusBadGateway, "No answer generated"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

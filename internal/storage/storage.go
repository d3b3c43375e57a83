// Package storage persists collection metadata and chat transcripts.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrNotFound is returned when a collection does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines collection and transcript persistence operations.
type Storage interface {
	// Collection operations
	GetCollection(ctx context.Context, owner, name string) (*models.Collection, error)
	// UpsertCollection creates the collection or updates its artifact keys. c.ID and
	// timestamps are filled from the stored row.
	UpsertCollection(ctx context.Context, c *models.Collection) error
	ListCollections(ctx context.Context, owner string) ([]*models.Collection, error)
	// DeleteCollection removes the collection and its transcript.
	DeleteCollection(ctx context.Context, owner, name string) error

	// Transcript operations
	AppendMessages(ctx context.Context, msgs ...*models.Message) error
	ListMessages(ctx context.Context, collectionID string) ([]*models.Message, error)

	// Stats
	CountCollections(ctx context.Context) (int64, error)

	Close() error
}

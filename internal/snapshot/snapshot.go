// Package snapshot persists a collection's index and chunk store as a pair of blobs and
// loads them back, refusing pairs that do not belong together.
package snapshot

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/blob"
	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// ErrSnapshotNotFound is returned when neither artifact exists.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrCorruptSnapshot is wrapped by every CorruptSnapshotError.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// CorruptSnapshotError reports a snapshot whose artifacts are missing, undecodable or
// inconsistent with each other.
type CorruptSnapshotError struct {
	Location Location
	Reason   string
}

func (e *CorruptSnapshotError) Error() string {
	return fmt.Sprintf("corrupt snapshot at %s: %s", e.Location.IndexKey, e.Reason)
}

func (e *CorruptSnapshotError) Unwrap() error {
	return ErrCorruptSnapshot
}

// Location names the two artifacts of one snapshot.
type Location struct {
	IndexKey  string
	ChunksKey string
}

// LocationFor returns where the given generation of a collection's snapshot lives.
func LocationFor(owner, collection, generation string) Location {
	return Location{
		IndexKey:  blob.IndexKey(owner, collection, generation),
		ChunksKey: blob.ChunksKey(owner, collection, generation),
	}
}

// Both artifacts carry the same generation so a mismatched pair is detected on load.
type indexArtifact struct {
	Generation string
	Count      int
	Index      []byte
}

type chunksArtifact struct {
	Generation string
	Chunks     []models.Chunk
}

// Store saves and loads snapshots through a blob store.
type Store struct {
	blobs  blob.Store
	logger *zap.Logger
}

// NewStore returns a snapshot store over blobs. logger may be nil.
func NewStore(blobs blob.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{blobs: blobs, logger: logger}
}

// Save writes c as a new generation of the collection's snapshot and returns its location.
// Earlier generations are left in place; the caller records the new location and then
// deletes the one it replaces. When either write fails, whatever was written is removed
// and no earlier generation is touched.
func (s *Store) Save(ctx context.Context, c *corpus.Corpus, owner, collection string) (Location, error) {
	indexBytes, err := c.MarshalIndex()
	if err != nil {
		return Location{}, fmt.Errorf("failed to serialize index: %w", err)
	}
	gen := uuid.New().String()
	chunksBlob, err := encode(chunksArtifact{Generation: gen, Chunks: c.Chunks()})
	if err != nil {
		return Location{}, fmt.Errorf("failed to serialize chunks: %w", err)
	}
	indexBlob, err := encode(indexArtifact{Generation: gen, Count: c.Size(), Index: indexBytes})
	if err != nil {
		return Location{}, fmt.Errorf("failed to serialize index: %w", err)
	}

	loc := LocationFor(owner, collection, gen)
	if err := s.blobs.Put(ctx, loc.ChunksKey, chunksBlob); err != nil {
		s.discard(ctx, loc)
		return Location{}, fmt.Errorf("failed to write chunk store: %w", err)
	}
	if err := s.blobs.Put(ctx, loc.IndexKey, indexBlob); err != nil {
		s.discard(ctx, loc)
		return Location{}, fmt.Errorf("failed to write index: %w", err)
	}
	s.logger.Debug("snapshot saved",
		zap.String("index_key", loc.IndexKey),
		zap.Int("chunks", c.Size()),
		zap.String("generation", gen))
	return loc, nil
}

// discard removes a half-written generation. It runs even when ctx is already cancelled.
func (s *Store) discard(ctx context.Context, loc Location) {
	if err := s.Delete(context.WithoutCancel(ctx), loc); err != nil {
		s.logger.Warn("failed to remove unfinished snapshot", zap.String("index_key", loc.IndexKey), zap.Error(err))
	}
}

// Load reads the pair at loc. It returns ErrSnapshotNotFound when neither artifact exists and
// a *CorruptSnapshotError when only one exists, either fails to decode, their generations
// differ or their sizes disagree.
func (s *Store) Load(ctx context.Context, loc Location) (*corpus.Corpus, error) {
	indexBlob, indexErr := s.blobs.Get(ctx, loc.IndexKey)
	chunksBlob, chunksErr := s.blobs.Get(ctx, loc.ChunksKey)
	indexMissing := errors.Is(indexErr, blob.ErrNotFound)
	chunksMissing := errors.Is(chunksErr, blob.ErrNotFound)
	switch {
	case indexMissing && chunksMissing:
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, loc.IndexKey)
	case indexMissing:
		return nil, &CorruptSnapshotError{Location: loc, Reason: "index artifact is missing"}
	case chunksMissing:
		return nil, &CorruptSnapshotError{Location: loc, Reason: "chunk store artifact is missing"}
	case indexErr != nil:
		return nil, fmt.Errorf("failed to read index: %w", indexErr)
	case chunksErr != nil:
		return nil, fmt.Errorf("failed to read chunk store: %w", chunksErr)
	}

	var ia indexArtifact
	if err := decode(indexBlob, &ia); err != nil {
		return nil, &CorruptSnapshotError{Location: loc, Reason: "index does not decode: " + err.Error()}
	}
	var ca chunksArtifact
	if err := decode(chunksBlob, &ca); err != nil {
		return nil, &CorruptSnapshotError{Location: loc, Reason: "chunk store does not decode: " + err.Error()}
	}
	if ia.Count != len(ca.Chunks) {
		return nil, &CorruptSnapshotError{Location: loc,
			Reason: fmt.Sprintf("index has %d vectors but chunk store has %d chunks", ia.Count, len(ca.Chunks))}
	}
	if ia.Generation != ca.Generation {
		return nil, &CorruptSnapshotError{Location: loc, Reason: "index and chunk store were written by different saves"}
	}
	c, err := corpus.Decode(ia.Index, ca.Chunks)
	if err != nil {
		return nil, &CorruptSnapshotError{Location: loc, Reason: err.Error()}
	}
	s.logger.Debug("snapshot loaded", zap.String("index_key", loc.IndexKey), zap.Int("chunks", c.Size()))
	return c, nil
}

// Delete removes both artifacts.
func (s *Store) Delete(ctx context.Context, loc Location) error {
	if err := s.blobs.Delete(ctx, loc.IndexKey); err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	if err := s.blobs.Delete(ctx, loc.ChunksKey); err != nil {
		return fmt.Errorf("failed to delete chunk store: %w", err)
	}
	return nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

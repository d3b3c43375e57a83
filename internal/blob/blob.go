// Package blob stores opaque artifacts (raw documents, index snapshots) under slash-separated keys.
package blob

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned when no object exists under a key.
var ErrNotFound = errors.New("blob not found")

// ErrInvalidKey is returned for empty keys or keys that escape the store root.
var ErrInvalidKey = errors.New("invalid blob key")

// Store is a key/value store for binary objects.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// List returns the keys that start with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

const documentsName = "documents"

// CollectionPrefix returns the prefix under which every artifact of a collection lives.
func CollectionPrefix(owner, collection string) string {
	return owner + "/" + collection + "/"
}

// IndexKey returns the key of the vector index written by one snapshot generation.
// Every save uses a fresh generation, so a save never overwrites the pair it replaces.
func IndexKey(owner, collection, generation string) string {
	return CollectionPrefix(owner, collection) + "index-" + generation + ".bin"
}

// ChunksKey returns the key of the chunk store written by one snapshot generation.
func ChunksKey(owner, collection, generation string) string {
	return CollectionPrefix(owner, collection) + "chunks-" + generation + ".gob"
}

// DocumentKey returns the key of an uploaded raw document.
func DocumentKey(owner, collection, filename string) string {
	return CollectionPrefix(owner, collection) + documentsName + "/" + path.Base(filename)
}

// DocumentsPrefix returns the prefix of a collection's raw documents.
func DocumentsPrefix(owner, collection string) string {
	return CollectionPrefix(owner, collection) + documentsName + "/"
}

// ValidateKey rejects empty keys, absolute keys and keys with ".." segments.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." {
			return ErrInvalidKey
		}
	}
	return nil
}

// ValidateName rejects owner, collection and file names that cannot be used as a single key segment.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\") {
		return ErrInvalidKey
	}
	return nil
}

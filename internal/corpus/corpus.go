// Package corpus pairs a vector index with its chunk store and keeps them aligned:
// the chunk at slot i always corresponds to vector ID i.
package corpus

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// ErrMisaligned is returned when an index and chunk store do not describe the same slots.
var ErrMisaligned = errors.New("index and chunk store are misaligned")

// Hit is a search result resolved to its chunk.
type Hit struct {
	Slot  int64
	Score float64
	Chunk models.Chunk
}

// Corpus is an append-only vector index plus the chunks it indexes.
// Reads are safe for concurrent use; Append must not run concurrently with itself.
// Published corpora are treated as immutable: writers Clone, Append, then swap.
type Corpus struct {
	index  *vector.FlatIndex
	chunks []models.Chunk
}

// New returns an empty corpus.
func New() *Corpus {
	return &Corpus{index: vector.NewFlatIndex()}
}

// Decode rebuilds a corpus from a serialized index (see MarshalIndex) and its chunk array,
// checking that the index holds exactly IDs 0..len(chunks)-1 in order. The decoded index is
// owned by the corpus and never handed out.
func Decode(indexData []byte, chunks []models.Chunk) (*Corpus, error) {
	index := vector.NewFlatIndex()
	if err := index.UnmarshalBinary(indexData); err != nil {
		return nil, err
	}
	if index.Size() != len(chunks) {
		return nil, fmt.Errorf("%w: index has %d vectors, chunk store has %d chunks", ErrMisaligned, index.Size(), len(chunks))
	}
	for i, id := range index.IDs() {
		if id != int64(i) {
			return nil, fmt.Errorf("%w: slot %d holds vector ID %d", ErrMisaligned, i, id)
		}
	}
	return &Corpus{index: index, chunks: slices.Clone(chunks)}, nil
}

// Append adds chunks and their vectors, assigning IDs [Size(), Size()+len(chunks)).
// On error nothing is added.
func (c *Corpus) Append(chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks but %d vectors", ErrMisaligned, len(chunks), len(vectors))
	}
	base := int64(len(c.chunks))
	ids := make([]int64, len(chunks))
	for i := range ids {
		ids[i] = base + int64(i)
	}
	if err := c.index.Add(ids, vectors); err != nil {
		return fmt.Errorf("failed to index vectors: %w", err)
	}
	c.chunks = append(c.chunks, chunks...)
	return nil
}

// Search returns the k chunks most similar to query, best first.
func (c *Corpus) Search(query []float32, k int) ([]Hit, error) {
	results, err := c.index.Search(query, k)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		if r.ID < 0 || r.ID >= int64(len(c.chunks)) {
			return nil, fmt.Errorf("%w: vector ID %d has no chunk", ErrMisaligned, r.ID)
		}
		hits = append(hits, Hit{Slot: r.ID, Score: r.Score, Chunk: c.chunks[r.ID]})
	}
	return hits, nil
}

// Size returns the number of chunks (and vectors).
func (c *Corpus) Size() int {
	return len(c.chunks)
}

// Dimensions returns the vector dimension, or 0 for an empty corpus.
func (c *Corpus) Dimensions() int {
	return c.index.Dimensions()
}

// Chunk returns the chunk in slot.
func (c *Corpus) Chunk(slot int) (models.Chunk, bool) {
	if slot < 0 || slot >= len(c.chunks) {
		return models.Chunk{}, false
	}
	return c.chunks[slot], true
}

// Chunks returns a copy of all chunks in slot order.
func (c *Corpus) Chunks() []models.Chunk {
	return slices.Clone(c.chunks)
}

// MarshalIndex serializes the vector index. Decode reverses it.
func (c *Corpus) MarshalIndex() ([]byte, error) {
	return c.index.MarshalBinary()
}

// IDs returns the vector IDs in slot order.
func (c *Corpus) IDs() []int64 {
	return c.index.IDs()
}

// Filenames returns the distinct source filenames in first-seen order.
func (c *Corpus) Filenames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, ch := range c.chunks {
		if !seen[ch.SourceFilename] {
			seen[ch.SourceFilename] = true
			names = append(names, ch.SourceFilename)
		}
	}
	return names
}

// HasFile reports whether any chunk came from filename.
func (c *Corpus) HasFile(filename string) bool {
	return slices.ContainsFunc(c.chunks, func(ch models.Chunk) bool { return ch.SourceFilename == filename })
}

// Clone returns a copy that can be appended to without affecting c.
func (c *Corpus) Clone() *Corpus {
	return &Corpus{index: c.index.Clone(), chunks: slices.Clone(c.chunks)}
}

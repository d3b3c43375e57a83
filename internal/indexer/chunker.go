package indexer

import (
	"iter"
	"unicode/utf8"

	"github.com/hyperjump/kotae/internal/models"
)

// FallbackChunkSize is used when a non-positive chunk size is requested.
const FallbackChunkSize = 500

// Split yields consecutive, non-overlapping spans of text, each exactly size characters long
// except possibly the last. Sizes count characters (runes), not bytes or tokens. A non-positive
// size falls back to FallbackChunkSize. Empty text yields nothing.
// The sequence is lazy and can be ranged over more than once.
func Split(text string, size int) iter.Seq[string] {
	if size <= 0 {
		size = FallbackChunkSize
	}
	return func(yield func(string) bool) {
		rest := text
		for rest != "" {
			end, n := 0, 0
			for end < len(rest) && n < size {
				_, w := utf8.DecodeRuneInString(rest[end:])
				end += w
				n++
			}
			if !yield(rest[:end]) {
				return
			}
			rest = rest[end:]
		}
	}
}

// Chunker turns extracted document text into chunks of a fixed character size.
type Chunker struct {
	chunkSize int
}

// NewChunker creates a chunker with the given size in characters.
func NewChunker(chunkSize int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = FallbackChunkSize
	}
	return &Chunker{chunkSize: chunkSize}
}

// Size returns the effective chunk size.
func (c *Chunker) Size() int {
	return c.chunkSize
}

// Chunk splits text into chunks attributed to filename, numbered from 0 in order.
func (c *Chunker) Chunk(filename, text string) []models.Chunk {
	var chunks []models.Chunk
	for span := range Split(text, c.chunkSize) {
		chunks = append(chunks, models.Chunk{
			Text:           span,
			SourceFilename: filename,
			ChunkIndex:     uint32(len(chunks)),
		})
	}
	return chunks
}

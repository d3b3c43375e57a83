// Package models defines core data structures for chunks, collections, answers and chat transcripts.
package models

// Chunk is a contiguous span of text from one source file. Chunks are immutable once created;
// the chunk at slot i of a collection corresponds to vector ID i.
type Chunk struct {
	Text           string `json:"text"`
	SourceFilename string `json:"source_filename"`
	ChunkIndex     uint32 `json:"chunk_index"`
}

// IngestFile is one uploaded document: its original filename and raw bytes.
type IngestFile struct {
	Filename string `json:"filename"`
	Content  []byte `json:"-"`
}

// IngestProgress reports embedding progress for an ingestion batch.
type IngestProgress struct {
	Done  int    `json:"done"`
	Total int    `json:"total"`
	Stage string `json:"stage"`
}

// SkippedFile names a file that was not added to the collection and why.
type SkippedFile struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// IngestReport summarizes one ingestion batch.
type IngestReport struct {
	Collection  string        `json:"collection"`
	Added       []string      `json:"added"`
	Skipped     []SkippedFile `json:"skipped"`
	ChunksAdded int           `json:"chunks_added"`
	IndexSize   int           `json:"index_size"`
}

// Ingestion stages reported through IngestProgress.
const (
	StageExtracting = "extracting"
	StageEmbedding  = "embedding"
	StageSaving     = "saving"
	StageDone       = "done"
)

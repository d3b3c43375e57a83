package models

import "time"

// EvidenceItem is a verbatim quote from a generated answer together with the chunk it came from.
type EvidenceItem struct {
	QuotedText     string `json:"quoted_text"`
	SourceFilename string `json:"source_filename"`
	ChunkIndex     uint32 `json:"chunk_index"`
}

// Answer is the result of a question: generated text plus attributed evidence.
type Answer struct {
	Answer   string         `json:"answer"`
	Evidence []EvidenceItem `json:"evidence"`
}

// Collection is the metadata row for a named, owner-scoped set of ingested documents.
type Collection struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	IndexKey  string    `json:"index_key"`
	ChunksKey string    `json:"chunks_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message roles in a chat transcript.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// Message is one entry of a collection's chat transcript.
type Message struct {
	ID           string         `json:"id"`
	CollectionID string         `json:"collection_id"`
	OwnerID      string         `json:"owner_id"`
	Role         string         `json:"role"`
	Content      string         `json:"content"`
	Evidence     []EvidenceItem `json:"evidence,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

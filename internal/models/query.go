package models

import (
	"errors"
	"strings"
)

// DefaultTopK is the number of chunks retrieved for a grounded answer when none is given.
const DefaultTopK = 6

// AskRequest is a question against one collection.
type AskRequest struct {
	Question   string `json:"question"`
	Collection string `json:"collection"`
	// OpenMode skips retrieval and answers from general knowledge with no evidence.
	OpenMode bool `json:"open_mode,omitempty"`
	TopK     int  `json:"top_k,omitempty"`
}

// Validate trims the request and reports the first missing field.
func (r *AskRequest) Validate() error {
	r.Question = strings.TrimSpace(r.Question)
	r.Collection = strings.TrimSpace(r.Collection)
	if r.Question == "" {
		return errors.New("question is required")
	}
	if r.Collection == "" {
		return errors.New("collection is required")
	}
	if r.TopK < 0 {
		return errors.New("top_k must not be negative")
	}
	return nil
}

// EffectiveTopK returns TopK, or def when TopK is unset.
func (r *AskRequest) EffectiveTopK(def int) int {
	if r.TopK > 0 {
		return r.TopK
	}
	if def > 0 {
		return def
	}
	return DefaultTopK
}

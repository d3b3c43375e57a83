package rag

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/models"
)

// DefaultMinQuoteLength is the shortest quote, in characters, kept as evidence.
const DefaultMinQuoteLength = 20

// quoteRe matches non-greedy double-quoted spans, across newlines. Curly quotes count too.
var quoteRe = regexp.MustCompile(`(?s)["“](.+?)["”]`)

// Quotes returns the trimmed double-quoted spans of answer in order of appearance.
func Quotes(answer string) []string {
	matches := quoteRe.FindAllStringSubmatch(answer, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

// ExtractEvidence attributes quotes in answer to retrieved chunks. Quotes shorter than
// minLen characters are dropped; each remaining quote is matched against the hits in
// retrieval order and attributed to the first chunk that contains it verbatim.
// Quotes that appear in no retrieved chunk are dropped. The answer itself is not modified.
func ExtractEvidence(answer string, hits []corpus.Hit, minLen int) []models.EvidenceItem {
	if minLen <= 0 {
		minLen = DefaultMinQuoteLength
	}
	evidence := []models.EvidenceItem{}
	for _, q := range Quotes(answer) {
		if utf8.RuneCountInString(q) < minLen {
			continue
		}
		for _, h := range hits {
			if strings.Contains(h.Chunk.Text, q) {
				evidence = append(evidence, models.EvidenceItem{
					QuotedText:     q,
					SourceFilename: h.Chunk.SourceFilename,
					ChunkIndex:     h.Chunk.ChunkIndex,
				})
				break
			}
		}
	}
	return evidence
}

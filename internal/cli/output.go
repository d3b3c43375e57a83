// Package cli renders answers, collections and ingestion reports for the kotae command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const rule = "─────────────────────────────────────────────────────────"

// ParseFormat returns the OutputFormat named by s. An empty string means text.
func ParseFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer and its evidence.
func WriteAnswer(w io.Writer, answer *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, answer)
	}
	fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(answer.Answer))
	if len(answer.Evidence) == 0 {
		fmt.Fprintln(w)
		return nil
	}
	fmt.Fprintf(w, "\n--- Evidence (%d) ---\n", len(answer.Evidence))
	for _, ev := range answer.Evidence {
		writeEvidence(w, ev)
	}
	fmt.Fprintln(w)
	return nil
}

func writeEvidence(w io.Writer, ev models.EvidenceItem) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%s #%d\n", ev.SourceFilename, ev.ChunkIndex)
	fmt.Fprintf(w, "  \"%s\"\n", utils.Truncate(ev.QuotedText, 200))
}

// WriteCollections writes the owner's collections.
func WriteCollections(w io.Writer, colls []*models.Collection, format OutputFormat) error {
	if format == OutputJSON {
		if colls == nil {
			colls = []*models.Collection{}
		}
		return writeJSON(w, map[string]interface{}{"collections": colls})
	}
	if len(colls) == 0 {
		fmt.Fprintln(w, "No collections.")
		return nil
	}
	for _, c := range colls {
		fmt.Fprintf(w, "%-24s updated %s\n", c.Name, c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// WriteReport writes an ingestion report.
func WriteReport(w io.Writer, report *models.IngestReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "Collection %s: %d file(s) added, %d chunk(s) added, %d chunk(s) total\n",
		report.Collection, len(report.Added), report.ChunksAdded, report.IndexSize)
	for _, name := range report.Added {
		fmt.Fprintf(w, "  + %s\n", name)
	}
	for _, s := range report.Skipped {
		fmt.Fprintf(w, "  - %s (%s)\n", s.Filename, s.Reason)
	}
	return nil
}

// WriteMessages writes a chat transcript in order.
func WriteMessages(w io.Writer, msgs []*models.Message, format OutputFormat) error {
	if format == OutputJSON {
		if msgs == nil {
			msgs = []*models.Message{}
		}
		return writeJSON(w, map[string]interface{}{"messages": msgs})
	}
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages.")
		return nil
	}
	for _, m := range msgs {
		fmt.Fprintf(w, "[%s] %s: %s\n", m.CreatedAt.Format("2006-01-02 15:04"), m.Role, m.Content)
		for _, ev := range m.Evidence {
			fmt.Fprintf(w, "    %s #%d: \"%s\"\n", ev.SourceFilename, ev.ChunkIndex, utils.Truncate(ev.QuotedText, 80))
		}
	}
	return nil
}

// WriteChunks writes a chunk preview of one file.
func WriteChunks(w io.Writer, filename string, chunks []models.Chunk, format OutputFormat) error {
	if format == OutputJSON {
		if chunks == nil {
			chunks = []models.Chunk{}
		}
		return writeJSON(w, map[string]interface{}{"filename": filename, "chunks": chunks})
	}
	fmt.Fprintf(w, "%s: %d chunk(s)\n", filename, len(chunks))
	for _, ch := range chunks {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "#%d (%d chars)\n%s\n", ch.ChunkIndex, len([]rune(ch.Text)), utils.Truncate(ch.Text, 300))
	}
	return nil
}

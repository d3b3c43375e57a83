package e2e

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"strings"
)

const excerptRule = "---------------------"

// EncodeAs returns text packaged as a file of the given extension. Plain text is returned as
// is; .docx and .csv get a minimal valid container.
func EncodeAs(ext, title, text string) []byte {
	switch ext {
	case ".docx":
		return minimalDocx(text)
	case ".csv":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		_ = w.Write([]string{"topic", "summary"})
		_ = w.Write([]string{title, text})
		w.Flush()
		return buf.Bytes()
	default:
		return []byte(text)
	}
}

func minimalDocx(text string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

// QuotingGenerator stands in for the language model. For a grounded prompt it answers with
// the first sentence of at least 20 characters from the first excerpt, in double quotes, so
// evidence attribution can be checked. Open prompts get a fixed reply.
type QuotingGenerator struct{}

func (QuotingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	parts := strings.SplitN(prompt, excerptRule+"\n", 3)
	if len(parts) < 3 {
		return "From general knowledge: it depends.", nil
	}
	// Excerpts are in retrieval order, so the first match comes from the best hit.
	for _, line := range strings.Split(parts[1], "\n") {
		for _, sentence := range strings.Split(line, ". ") {
			sentence = strings.TrimSpace(strings.TrimSuffix(sentence, "."))
			if len([]rune(sentence)) >= 20 {
				return "According to the excerpts the answer is below.\nEvidence:\n\"" + sentence + "\"", nil
			}
		}
	}
	return "The excerpts do not cover this.", nil
}

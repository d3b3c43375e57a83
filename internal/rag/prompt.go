package rag

import (
	"strings"

	"github.com/hyperjump/kotae/internal/corpus"
)

const excerptRule = "---------------------"

// GroundedPrompt builds the retrieval prompt: the retrieved chunk texts verbatim and in
// retrieval order, followed by instructions to answer only from them and to quote the
// excerpts used.
func GroundedPrompt(question string, hits []corpus.Hit) string {
	var b strings.Builder
	b.WriteString("Below are excerpts extracted from original documents:\n")
	b.WriteString(excerptRule + "\n")
	for i, h := range hits {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(h.Chunk.Text)
	}
	b.WriteString("\n" + excerptRule + "\n")
	b.WriteString("Based solely on the above content, answer the following question.\n")
	b.WriteString(`After your answer, include an "Evidence" section in which you quote the exact excerpts you used, in double quotes.` + "\n")
	b.WriteString("If the relevant evidence is not available, state so.\n")
	b.WriteString("Query: " + question + "\n")
	b.WriteString("Answer:\n")
	return b.String()
}

// OpenPrompt builds the general-knowledge prompt used when retrieval is skipped.
func OpenPrompt(question string) string {
	return "Answer the following question as best you can using your general knowledge:\n\n" + question + "\n\nAnswer:"
}

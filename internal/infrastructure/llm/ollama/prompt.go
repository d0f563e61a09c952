package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

// buildEvidencePrompt lays out the question, page-tagged excerpts and image
// markers. Image payloads travel separately in the request's images field,
// in the same order as the markers.
func buildEvidencePrompt(evidence domain.Evidence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nContext:\n", evidence.Question)

	if len(evidence.TextChunks) > 0 {
		b.WriteString("Text excerpts:\n")
		for i, chunk := range evidence.TextChunks {
			if i > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "[Page %d]: %s", chunk.Page, chunk.Content)
		}
		b.WriteString("\n")
	}

	for i, img := range evidence.Images {
		fmt.Fprintf(&b, "\n[Image %d from page %d]\n", i+1, img.Page)
	}

	b.WriteString("\nAnswer the question based on the provided context. If the context does not contain the answer, say \"I don't know\".")
	return b.String()
}

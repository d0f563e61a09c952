package chunking

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

// Splitter cuts text into windows of at most ChunkSize runes that overlap by
// Overlap runes. A window end is pulled back to the last whitespace in its
// final fifth so words are not cut when avoidable.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "new splitter", fmt.Errorf("chunk size %d must be positive", chunkSize))
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "new splitter", fmt.Errorf("overlap %d must be in [0, %d)", overlap, chunkSize))
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}, nil
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/(s.ChunkSize-s.Overlap)+1)
	for start := 0; start < len(runes); {
		end := start + s.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = softBoundary(runes, start, end, s.ChunkSize/5)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - s.Overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out
}

// softBoundary moves end back to just after the last whitespace within slack
// runes, or returns end unchanged.
func softBoundary(runes []rune, start, end, slack int) int {
	for i := end; i > end-slack && i > start+1; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

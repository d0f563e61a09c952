package chunking

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

func TestNewSplitterValidates(t *testing.T) {
	for _, tc := range [][2]int{{0, 0}, {-5, 0}, {100, 100}, {100, 150}, {100, -1}} {
		if _, err := NewSplitter(tc[0], tc[1]); !domain.IsKind(err, domain.ErrInvalidConfig) {
			t.Fatalf("NewSplitter(%d, %d): expected ErrInvalidConfig, got %v", tc[0], tc[1], err)
		}
	}
	if _, err := NewSplitter(1000, 200); err != nil {
		t.Fatalf("defaults must be valid: %v", err)
	}
}

func TestSplitRespectsSizeAndOverlap(t *testing.T) {
	s, err := NewSplitter(50, 10)
	if err != nil {
		t.Fatalf("NewSplitter: %v", err)
	}
	text := strings.Repeat("mitochondria make energy ", 20)
	chunks := s.Split(text)
	if len(chunks) < 10 {
		t.Fatalf("expected many chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if utf8.RuneCountInString(c) > 50 {
			t.Fatalf("chunk %d longer than 50 runes: %q", i, c)
		}
	}
	if !strings.HasSuffix(strings.Join(chunks, " "), "energy") {
		t.Fatalf("expected the tail of the text to be covered")
	}
}

func TestSplitPrefersWhitespace(t *testing.T) {
	s, err := NewSplitter(20, 0)
	if err != nil {
		t.Fatalf("NewSplitter: %v", err)
	}
	chunks := s.Split("alpha beta gamma delta epsilon zeta")
	for _, c := range chunks {
		for _, w := range strings.Fields(c) {
			if !strings.Contains("alpha beta gamma delta epsilon zeta", w) || len(w) < 4 {
				t.Fatalf("word cut in chunk %q", c)
			}
		}
	}
}

func TestSplitShortAndEmpty(t *testing.T) {
	s, _ := NewSplitter(100, 20)
	if got := s.Split(""); got != nil {
		t.Fatalf("expected nil for empty text, got %v", got)
	}
	if got := s.Split("   "); len(got) != 0 {
		t.Fatalf("expected no chunks for blank text, got %v", got)
	}
	if got := s.Split("short text"); len(got) != 1 || got[0] != "short text" {
		t.Fatalf("expected one chunk, got %v", got)
	}
}

func TestSplitHandlesMultibyteRunes(t *testing.T) {
	s, _ := NewSplitter(4, 1)
	chunks := s.Split("ёжикёжик")
	for _, c := range chunks {
		if !utf8.ValidString(c) || utf8.RuneCountInString(c) > 4 {
			t.Fatalf("invalid chunk %q", c)
		}
	}
}

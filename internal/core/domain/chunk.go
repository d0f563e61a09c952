package domain

import "math"

type ChunkKind string

const (
	ChunkText  ChunkKind = "text"
	ChunkImage ChunkKind = "image"
)

func (k ChunkKind) Valid() bool {
	return k == ChunkText || k == ChunkImage
}

// Chunk is an atomic retrievable unit. For image chunks Content holds the
// image store key, never raw bytes.
type Chunk struct {
	ID        string    `json:"id"`
	Kind      ChunkKind `json:"kind"`
	Page      int       `json:"page"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
}

func (c Chunk) IsText() bool { return c.Kind == ChunkText }

// Corpus is the full ingested state of one slot. It is never mutated after
// construction; ingestion builds a new one and swaps it in.
type Corpus struct {
	Slot      string
	Dimension int
	Chunks    []Chunk
	Images    map[string]string
}

func (c *Corpus) TextChunks() []Chunk {
	if c == nil {
		return nil
	}
	out := make([]Chunk, 0, len(c.Chunks))
	for _, ch := range c.Chunks {
		if ch.IsText() {
			out = append(out, ch)
		}
	}
	return out
}

func (c *Corpus) ImageCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, ch := range c.Chunks {
		if ch.Kind == ChunkImage {
			n++
		}
	}
	return n
}

// SplitByKind separates retrieved chunks into text and image chunks, keeping order.
func SplitByKind(chunks []Chunk) (text []Chunk, images []Chunk) {
	for _, ch := range chunks {
		switch ch.Kind {
		case ChunkText:
			text = append(text, ch)
		case ChunkImage:
			images = append(images, ch)
		}
	}
	return text, images
}

// UnitNormTolerance bounds how far an ingested embedding's L2 norm may stray
// from 1.
const UnitNormTolerance = 1e-3

// ValidateChunks checks ids, kinds and that every embedding is a unit vector
// with dim entries.
func ValidateChunks(chunks []Chunk, dim int) error {
	seen := make(map[string]struct{}, len(chunks))
	for i, ch := range chunks {
		if ch.ID == "" {
			return WrapError(ErrInvalidInput, "validate chunks", errorf("chunk %d has empty id", i))
		}
		if _, dup := seen[ch.ID]; dup {
			return WrapError(ErrInvalidInput, "validate chunks", errorf("duplicate chunk id %q", ch.ID))
		}
		seen[ch.ID] = struct{}{}
		if !ch.Kind.Valid() {
			return WrapError(ErrInvalidInput, "validate chunks", errorf("chunk %q has unknown kind %q", ch.ID, ch.Kind))
		}
		if ch.Page < 0 {
			return WrapError(ErrInvalidInput, "validate chunks", errorf("chunk %q has negative page", ch.ID))
		}
		if len(ch.Embedding) != dim {
			return WrapError(ErrDimensionMismatch, "validate chunks", errorf("chunk %q: got %d, want %d", ch.ID, len(ch.Embedding), dim))
		}
		if n := Norm(ch.Embedding); math.Abs(n-1) > UnitNormTolerance {
			return WrapError(ErrInvalidInput, "validate chunks", errorf("chunk %q embedding norm %.4f is not 1", ch.ID, n))
		}
	}
	return nil
}

func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns v scaled to unit L2 norm. Zero vectors are returned unchanged.
func Normalize(v []float32) []float32 {
	norm := Norm(v)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Dot is cosine similarity for unit vectors.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

package embedcache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/lifeforge-rag/internal/core/ports"
)

// Recorder counts cache lookups.
type Recorder interface {
	ObserveEmbedCache(hit bool)
}

// Embedder memoizes vectors per input text in front of another embedder.
// Vectors are shared between callers and must not be modified.
type Embedder struct {
	inner    ports.Embedder
	cache    *lru.Cache[string, []float32]
	recorder Recorder
}

func New(inner ports.Embedder, size int, recorder Recorder) (*Embedder, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{inner: inner, cache: cache, recorder: recorder}, nil
}

// Embed serves cached texts and embeds the rest in a single inner call.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if v, ok := e.lookup(text); ok {
			out[i] = v
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := e.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embedding cache: inner returned %d vectors for %d texts", len(vectors), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = vectors[j]
		e.cache.Add(missTexts[j], vectors[j])
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.lookup(text); ok {
		return v, nil
	}
	v, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Add(text, v)
	return v, nil
}

func (e *Embedder) Len() int { return e.cache.Len() }

func (e *Embedder) lookup(text string) ([]float32, bool) {
	v, ok := e.cache.Get(text)
	if e.recorder != nil {
		e.recorder.ObserveEmbedCache(ok)
	}
	return v, ok
}

var _ ports.Embedder = (*Embedder)(nil)

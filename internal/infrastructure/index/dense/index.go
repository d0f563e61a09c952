package dense

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/philippgille/chromem-go"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

const collectionName = "chunks"

// Index is an exact nearest-neighbour index over unit-normalized chunk
// embeddings, held in an in-memory chromem-go collection.
//
// chromem ranks by cosine similarity. For unit vectors the squared L2
// distance is 2 - 2*cos, which is what SearchByVector reports.
type Index struct {
	dim    int
	db     *chromem.DB
	col    *chromem.Collection
	chunks map[string]domain.Chunk
	order  []string
}

// precomputedOnly is installed as the collection embedding function; every
// document and query arrives with its vector already computed.
func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, errors.New("dense index: embeddings must be precomputed")
}

// Build creates an index over chunks. Every chunk must carry a dim-sized embedding.
func Build(ctx context.Context, chunks []domain.Chunk, dim int) (*Index, error) {
	if dim <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build dense index", fmt.Errorf("dimension %d", dim))
	}
	if err := domain.ValidateChunks(chunks, dim); err != nil {
		return nil, err
	}

	db := chromem.NewDB()
	col, err := db.CreateCollection(collectionName, nil, precomputedOnly)
	if err != nil {
		return nil, fmt.Errorf("create chromem collection: %w", err)
	}

	idx := &Index{
		dim:    dim,
		db:     db,
		col:    col,
		chunks: make(map[string]domain.Chunk, len(chunks)),
		order:  make([]string, 0, len(chunks)),
	}
	if len(chunks) == 0 {
		return idx, nil
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, ch := range chunks {
		docs = append(docs, chromem.Document{
			ID:        ch.ID,
			Content:   documentContent(ch),
			Embedding: ch.Embedding,
			Metadata: map[string]string{
				"kind": string(ch.Kind),
				"page": fmt.Sprint(ch.Page),
			},
		})
		idx.chunks[ch.ID] = ch
		idx.order = append(idx.order, ch.ID)
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("add chunks to chromem collection: %w", err)
	}
	return idx, nil
}

// documentContent never returns an empty string; chromem rejects documents
// that have neither content nor embedding and an empty text chunk is legal.
func documentContent(ch domain.Chunk) string {
	if ch.Content != "" {
		return ch.Content
	}
	return ch.ID
}

func (idx *Index) Dimension() int { return idx.dim }

func (idx *Index) Len() int { return len(idx.order) }

// Chunks returns every indexed chunk, embeddings included, in build order.
func (idx *Index) Chunks() []domain.Chunk {
	out := make([]domain.Chunk, 0, len(idx.order))
	for _, id := range idx.order {
		out = append(out, idx.chunks[id])
	}
	return out
}

// SearchByVector returns up to k nearest chunks by squared L2 distance,
// nearest first. An empty index yields an empty result.
func (idx *Index) SearchByVector(ctx context.Context, vector []float32, k int) ([]domain.ScoredChunk, error) {
	if len(vector) != idx.dim {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "dense search", fmt.Errorf("got %d, want %d", len(vector), idx.dim))
	}
	n := idx.col.Count()
	if k <= 0 || n == 0 || isZero(vector) {
		return []domain.ScoredChunk{}, nil
	}
	if k > n {
		k = n
	}

	results, err := idx.col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]domain.ScoredChunk, 0, len(results))
	for _, r := range results {
		ch, ok := idx.chunks[r.ID]
		if !ok {
			continue
		}
		out = append(out, domain.ScoredChunk{
			Chunk:    ch,
			Distance: SquaredL2FromCosine(float64(r.Similarity)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})
	return out, nil
}

// SquaredL2FromCosine maps cosine similarity of two unit vectors to their
// squared Euclidean distance.
func SquaredL2FromCosine(cos float64) float64 {
	d := 2 - 2*cos
	if d < 0 || math.IsNaN(d) {
		return 0
	}
	return d
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

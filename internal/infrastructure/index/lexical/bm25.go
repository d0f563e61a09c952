package lexical

import (
	"math"
	"sort"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

type Params struct {
	K1              float64
	B               float64
	RemoveStopwords bool
}

func DefaultParams() Params {
	return Params{K1: 1.5, B: 0.75}
}

type posting struct {
	doc int
	tf  float64
}

// Index is an in-memory Okapi BM25 inverted index over text chunks.
type Index struct {
	params   Params
	docs     []domain.Chunk
	docLen   []float64
	avgLen   float64
	idf      map[string]float64
	postings map[string][]posting
}

// Build indexes the text chunks of chunks. It returns nil when there is no
// text chunk to index; image chunks are skipped.
func Build(chunks []domain.Chunk, params Params) *Index {
	idx := &Index{
		params:   params,
		idf:      make(map[string]float64),
		postings: make(map[string][]posting),
	}

	var totalLen float64
	for _, ch := range chunks {
		if !ch.IsText() {
			continue
		}
		docID := len(idx.docs)
		idx.docs = append(idx.docs, ch)

		tokens := tokenize(ch.Content, params.RemoveStopwords)
		idx.docLen = append(idx.docLen, float64(len(tokens)))
		totalLen += float64(len(tokens))

		tf := make(map[string]float64, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term, freq := range tf {
			idx.postings[term] = append(idx.postings[term], posting{doc: docID, tf: freq})
		}
	}
	if len(idx.docs) == 0 {
		return nil
	}
	idx.avgLen = totalLen / float64(len(idx.docs))
	idx.computeIDF()
	return idx
}

// computeIDF uses the non-negative form log(1 + (N-df+0.5)/(df+0.5)), so a
// matching term always adds a positive weight, even in one-chunk corpora.
func (idx *Index) computeIDF() {
	n := float64(len(idx.docs))
	for term, postings := range idx.postings {
		df := float64(len(postings))
		idx.idf[term] = math.Log1p((n - df + 0.5) / (df + 0.5))
	}
}

func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.docs)
}

// Scores returns the BM25 score of every indexed chunk, in index order.
func (idx *Index) Scores(query string) []float64 {
	scores := make([]float64, len(idx.docs))
	k1, b := idx.params.K1, idx.params.B
	for _, term := range tokenize(query, idx.params.RemoveStopwords) {
		w, ok := idx.idf[term]
		if !ok {
			continue
		}
		for _, p := range idx.postings[term] {
			norm := 1 - b
			if idx.avgLen > 0 {
				norm += b * idx.docLen[p.doc] / idx.avgLen
			}
			scores[p.doc] += w * (p.tf * (k1 + 1)) / (p.tf + k1*norm)
		}
	}
	return scores
}

// Search returns the k best-scoring text chunks, best first. Chunks without a
// matching term still fill the list after every match. Equal scores keep
// ingestion order.
func (idx *Index) Search(query string, k int) []domain.Chunk {
	if idx == nil || k <= 0 {
		return nil
	}
	scores := idx.Scores(query)
	order := make([]int, 0, len(scores))
	for i, s := range scores {
		if !math.IsNaN(s) && !math.IsInf(s, 0) {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	if len(order) > k {
		order = order[:k]
	}
	out := make([]domain.Chunk, 0, len(order))
	for _, i := range order {
		out = append(out, idx.docs[i])
	}
	return out
}

package usecase

import (
	"sort"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

const defaultRRFK = 60

// rankedList is one retriever's output, best first, with its fusion weight.
type rankedList struct {
	chunks []domain.Chunk
	weight float64
}

type fusedCandidate struct {
	chunk     domain.Chunk
	score     float64
	firstSeen int
}

// fuseWeightedRRF merges ranked lists with weighted reciprocal rank fusion:
// each list adds weight/(rrfK+rank+1) to every chunk it contains, ranks
// starting at 0. Chunks are merged by id. Equal scores keep first-seen order
// across the lists in the order given.
func fuseWeightedRRF(lists []rankedList, rrfK int) []domain.RankedChunk {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	size := 0
	for _, l := range lists {
		size += len(l.chunks)
	}
	acc := make(map[string]*fusedCandidate, size)
	seen := 0
	for _, l := range lists {
		for rank, chunk := range l.chunks {
			candidate, ok := acc[chunk.ID]
			if !ok {
				candidate = &fusedCandidate{chunk: chunk, firstSeen: seen}
				acc[chunk.ID] = candidate
				seen++
			} else {
				candidate.chunk = preferRicherChunk(candidate.chunk, chunk)
			}
			candidate.score += l.weight / float64(rrfK+rank+1)
		}
	}

	ordered := make([]*fusedCandidate, 0, len(acc))
	for _, c := range acc {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].score != ordered[j].score {
			return ordered[i].score > ordered[j].score
		}
		return ordered[i].firstSeen < ordered[j].firstSeen
	})

	out := make([]domain.RankedChunk, 0, len(ordered))
	for _, c := range ordered {
		out = append(out, domain.RankedChunk{Chunk: c.chunk, Score: c.score})
	}
	return out
}

// rankedFromScored keeps dense hits as fused entries in distance order,
// scoring them with their similarity.
func rankedFromScored(hits []domain.ScoredChunk, similarity func(float64) float64) []domain.RankedChunk {
	out := make([]domain.RankedChunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.RankedChunk{Chunk: h.Chunk, Score: similarity(h.Distance)})
	}
	return out
}

func trimCandidates(chunks []domain.RankedChunk, limit int) []domain.RankedChunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}

func chunksOf(hits []domain.ScoredChunk) []domain.Chunk {
	out := make([]domain.Chunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Chunk)
	}
	return out
}

// preferRicherChunk keeps the embedding when only one list carried it; the
// lexical index stores chunks exactly as ingested, so both usually agree.
func preferRicherChunk(current, candidate domain.Chunk) domain.Chunk {
	if len(current.Embedding) == 0 && len(candidate.Embedding) > 0 {
		current.Embedding = candidate.Embedding
	}
	if current.Content == "" && candidate.Content != "" {
		current.Content = candidate.Content
	}
	return current
}

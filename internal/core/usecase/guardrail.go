package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
	"github.com/kirillkom/lifeforge-rag/internal/core/ports"
)

// confidenceSaturation is the number of text chunks that counts as full
// corroboration.
const confidenceSaturation = 5.0

// Admit reports whether retrieval is relevant enough to generate an answer.
// The threshold itself is admitted.
func Admit(topSimilarity, threshold float64) bool {
	return topSimilarity >= threshold
}

// Confidence blends the best match (70%) with the amount of text evidence (30%).
func Confidence(topSimilarity float64, numTextChunks int) float64 {
	s := math.Max(0, math.Min(topSimilarity, 1))
	n := math.Max(0, math.Min(float64(numTextChunks)/confidenceSaturation, 1))
	return round3(0.7*s + 0.3*n)
}

// Grounding is the best cosine similarity between the answer and any text
// chunk. Chunks that carry no stored embedding are embedded in one batch.
func Grounding(ctx context.Context, embedder ports.Embedder, answer string, textChunks []domain.Chunk) (float64, error) {
	if strings.TrimSpace(answer) == "" || len(textChunks) == 0 {
		return 0, nil
	}

	answerVector, err := embedder.EmbedQuery(ctx, answer)
	if err != nil {
		return 0, fmt.Errorf("embed answer: %w", err)
	}

	vectors := make([][]float32, len(textChunks))
	var missing []int
	for i, ch := range textChunks {
		if len(ch.Embedding) == len(answerVector) {
			vectors[i] = ch.Embedding
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) > 0 {
		texts := make([]string, 0, len(missing))
		for _, i := range missing {
			texts = append(texts, textChunks[i].Content)
		}
		embedded, err := embedder.Embed(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed chunks for grounding: %w", err)
		}
		if len(embedded) != len(missing) {
			return 0, fmt.Errorf("embed chunks for grounding: got %d vectors for %d chunks", len(embedded), len(missing))
		}
		for j, i := range missing {
			vectors[i] = embedded[j]
		}
	}

	best := math.Inf(-1)
	for _, v := range vectors {
		if sim := domain.Dot(answerVector, v); sim > best {
			best = sim
		}
	}
	return round3(math.Max(0, math.Min(best, 1))), nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

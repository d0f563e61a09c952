package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
	"github.com/kirillkom/lifeforge-rag/internal/core/ports"
)

// RetrievalConfig holds the fusion and admission settings.
type RetrievalConfig struct {
	HybridEnabled          bool
	LexicalWeight          float64
	DenseWeight            float64
	KTotal                 int
	KLexicalCandidates     int
	KDenseCandidates       int
	RRFK                   int
	MinSimilarity          float64
	HallucinationThreshold float64
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		HybridEnabled:          true,
		LexicalWeight:          0.4,
		DenseWeight:            0.6,
		KTotal:                 5,
		KLexicalCandidates:     10,
		KDenseCandidates:       10,
		RRFK:                   defaultRRFK,
		MinSimilarity:          0.3,
		HallucinationThreshold: 0.5,
	}
}

// FusionRetriever produces one ranked chunk list per question from a slot
// snapshot, fusing lexical and dense candidates when possible.
type FusionRetriever struct {
	embedder ports.Embedder
	cfg      RetrievalConfig
}

func NewFusionRetriever(embedder ports.Embedder, cfg RetrievalConfig) *FusionRetriever {
	return &FusionRetriever{embedder: embedder, cfg: cfg}
}

func (r *FusionRetriever) Config() RetrievalConfig { return r.cfg }

// Retrieve ranks chunks of snap for question. k <= 0 means KTotal.
func (r *FusionRetriever) Retrieve(
	ctx context.Context,
	snap ports.SlotSnapshot,
	question string,
	k int,
	useHybrid bool,
) (*domain.RetrievalResult, error) {
	if k <= 0 {
		k = r.cfg.KTotal
	}
	lexIndex, hasLexical := snap.Lexical()
	mode := domain.ResolveMode(r.cfg.HybridEnabled, useHybrid, hasLexical)

	queryVector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var docs []domain.RankedChunk
	switch mode {
	case domain.ModeHybrid:
		docs, err = r.hybrid(ctx, snap.Dense(), lexIndex, question, queryVector, k)
	default:
		docs, err = r.denseOnly(ctx, snap.Dense(), queryVector, k)
	}
	if err != nil {
		return nil, err
	}

	topSimilarity, err := r.topSimilarity(ctx, snap.Dense(), queryVector)
	if err != nil {
		return nil, err
	}

	return &domain.RetrievalResult{
		Mode:          mode,
		Docs:          docs,
		TopSimilarity: topSimilarity,
	}, nil
}

func (r *FusionRetriever) denseOnly(ctx context.Context, dense ports.DenseIndex, vector []float32, k int) ([]domain.RankedChunk, error) {
	hits, err := dense.SearchByVector(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}
	return rankedFromScored(hits, Similarity), nil
}

func (r *FusionRetriever) hybrid(
	ctx context.Context,
	dense ports.DenseIndex,
	lexIndex ports.LexicalIndex,
	question string,
	vector []float32,
	k int,
) ([]domain.RankedChunk, error) {
	lexical := lexIndex.Search(question, maxInt(r.cfg.KLexicalCandidates, k))

	hits, err := dense.SearchByVector(ctx, vector, maxInt(r.cfg.KDenseCandidates, k))
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}

	fused := fuseWeightedRRF([]rankedList{
		{chunks: lexical, weight: r.cfg.LexicalWeight},
		{chunks: chunksOf(hits), weight: r.cfg.DenseWeight},
	}, r.cfg.RRFK)
	return trimCandidates(fused, k), nil
}

// topSimilarity always comes from a separate nearest-neighbour query so the
// value means the same thing in both modes.
func (r *FusionRetriever) topSimilarity(ctx context.Context, dense ports.DenseIndex, vector []float32) (float64, error) {
	hits, err := dense.SearchByVector(ctx, vector, 1)
	if err != nil {
		return 0, fmt.Errorf("dense top similarity: %w", err)
	}
	if len(hits) == 0 {
		return 0, nil
	}
	return Similarity(hits[0].Distance), nil
}

// Similarity maps a squared L2 distance to (0, 1].
func Similarity(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

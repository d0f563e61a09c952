package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
	"github.com/kirillkom/lifeforge-rag/internal/core/ports"
)

type QueryUseCase struct {
	store     ports.CorpusStore
	retriever *FusionRetriever
	embedder  ports.Embedder
	generator ports.AnswerGenerator
	logs      ports.QueryLogStore
	registry  ports.DocumentRegistry
	metrics   ports.QueryMetrics
	logger    *slog.Logger
	now       func() time.Time
}

// QueryOption configures optional collaborators of QueryUseCase.
type QueryOption func(*QueryUseCase)

// WithQueryLog records every outcome; failures to record are only logged.
func WithQueryLog(logs ports.QueryLogStore, registry ports.DocumentRegistry) QueryOption {
	return func(uc *QueryUseCase) {
		uc.logs = logs
		uc.registry = registry
	}
}

func WithQueryMetrics(m ports.QueryMetrics) QueryOption {
	return func(uc *QueryUseCase) { uc.metrics = m }
}

func WithQueryLogger(logger *slog.Logger) QueryOption {
	return func(uc *QueryUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

func NewQueryUseCase(
	store ports.CorpusStore,
	embedder ports.Embedder,
	generator ports.AnswerGenerator,
	cfg RetrievalConfig,
	opts ...QueryOption,
) *QueryUseCase {
	uc := &QueryUseCase{
		store:     store,
		retriever: NewFusionRetriever(embedder, cfg),
		embedder:  embedder,
		generator: generator,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Retrieve ranks chunks of the slot without generating an answer.
func (uc *QueryUseCase) Retrieve(ctx context.Context, req domain.RetrievalRequest) (*domain.RetrievalResult, error) {
	snap, err := uc.snapshot(req)
	if err != nil {
		return nil, err
	}
	return uc.retriever.Retrieve(ctx, snap, req.Question, req.K, req.UseHybrid)
}

// Query retrieves evidence, applies the admission guardrail, generates an
// answer and annotates it with confidence and grounding.
func (uc *QueryUseCase) Query(ctx context.Context, req domain.RetrievalRequest) (*domain.QueryOutcome, error) {
	started := uc.now()
	snap, err := uc.snapshot(req)
	if err != nil {
		return nil, err
	}

	result, err := uc.retriever.Retrieve(ctx, snap, req.Question, req.K, req.UseHybrid)
	if err != nil {
		return nil, err
	}

	cfg := uc.retriever.Config()
	if !Admit(result.TopSimilarity, cfg.MinSimilarity) {
		outcome := domain.RejectedOutcome(req.Slot, result.Mode, result.TopSimilarity)
		uc.logger.Info("query_rejected",
			"slot", req.Slot,
			"mode", result.Mode,
			"top_similarity", result.TopSimilarity,
			"threshold", cfg.MinSimilarity,
		)
		uc.record(ctx, req, outcome, started)
		return outcome, nil
	}

	docs := result.Chunks()
	textChunks, imageChunks := domain.SplitByKind(docs)
	evidence := domain.Evidence{
		Question:   req.Question,
		TextChunks: textChunks,
		Images:     resolveImages(snap.Corpus(), imageChunks),
	}

	answer, err := uc.generator.GenerateAnswer(ctx, evidence)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	grounding, err := Grounding(ctx, uc.embedder, answer, textChunks)
	if err != nil {
		return nil, fmt.Errorf("answer grounding: %w", err)
	}

	outcome := &domain.QueryOutcome{
		Slot:            req.Slot,
		Mode:            result.Mode,
		Answer:          answer,
		Sources:         domain.SourcesOf(docs),
		Docs:            docs,
		NumTextChunks:   len(textChunks),
		NumImages:       len(imageChunks),
		TopSimilarity:   result.TopSimilarity,
		Confidence:      Confidence(result.TopSimilarity, len(textChunks)),
		AnswerGrounding: grounding,
		IsHallucination: grounding < cfg.HallucinationThreshold,
	}
	uc.logger.Info("query_admitted",
		"slot", req.Slot,
		"mode", outcome.Mode,
		"top_similarity", outcome.TopSimilarity,
		"confidence", outcome.Confidence,
		"answer_grounding", outcome.AnswerGrounding,
		"is_hallucination", outcome.IsHallucination,
		"num_text_chunks", outcome.NumTextChunks,
		"num_images", outcome.NumImages,
	)
	uc.record(ctx, req, outcome, started)
	return outcome, nil
}

func (uc *QueryUseCase) snapshot(req domain.RetrievalRequest) (ports.SlotSnapshot, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "query", fmt.Errorf("question is empty"))
	}
	if err := domain.ValidateSlot(req.Slot); err != nil {
		return nil, err
	}
	snap, ok := uc.store.Snapshot(req.Slot)
	if !ok {
		return nil, domain.WrapError(domain.ErrSlotNotReady, "query", fmt.Errorf("slot %q", req.Slot))
	}
	return snap, nil
}

// record stores the query log and metrics. It never fails the query.
func (uc *QueryUseCase) record(ctx context.Context, req domain.RetrievalRequest, outcome *domain.QueryOutcome, started time.Time) {
	elapsed := uc.now().Sub(started)
	if uc.metrics != nil {
		uc.metrics.ObserveQuery(string(outcome.Mode), outcome.Rejected, outcome.IsHallucination, elapsed.Seconds())
	}
	if uc.logs == nil {
		return
	}

	entry := domain.QueryLog{
		Slot:            req.Slot,
		Timestamp:       started.UTC(),
		Query:           req.Question,
		Mode:            string(outcome.Mode),
		AnswerLength:    len([]rune(outcome.Answer)),
		NumTextChunks:   outcome.NumTextChunks,
		NumImages:       outcome.NumImages,
		TopSimilarity:   outcome.TopSimilarity,
		Confidence:      outcome.Confidence,
		AnswerGrounding: outcome.AnswerGrounding,
		IsHallucination: outcome.IsHallucination,
		Rejected:        outcome.Rejected,
		SourcePages:     sourcePages(outcome.Sources),
		LatencyMS:       float64(elapsed.Microseconds()) / 1000,
	}
	if uc.registry != nil {
		doc, err := uc.registry.LatestDocument(ctx, req.Slot)
		switch {
		case err == nil && doc != nil:
			entry.DocumentID = &doc.ID
		case err != nil && !domain.IsKind(err, domain.ErrDocumentNotFound):
			uc.logger.Warn("query_log_document_lookup_failed", "slot", req.Slot, "error", err)
		}
	}
	if err := uc.logs.SaveQueryLog(ctx, entry); err != nil {
		uc.logger.Warn("query_log_failed", "slot", req.Slot, "error", err)
	}
}

// resolveImages looks up base64 payloads for retrieved image chunks. Chunks
// whose image is missing from the slot are skipped.
func resolveImages(corpus *domain.Corpus, imageChunks []domain.Chunk) []domain.EvidenceImage {
	if corpus == nil || len(imageChunks) == 0 {
		return nil
	}
	out := make([]domain.EvidenceImage, 0, len(imageChunks))
	for _, ch := range imageChunks {
		b64, ok := corpus.Images[ch.Content]
		if !ok {
			b64, ok = corpus.Images[ch.ID]
		}
		if !ok || b64 == "" {
			continue
		}
		out = append(out, domain.EvidenceImage{ID: ch.ID, Page: ch.Page, Base64: b64})
	}
	return out
}

func sourcePages(sources []domain.Source) []int {
	pages := make([]int, 0, len(sources))
	seen := make(map[int]struct{}, len(sources))
	for _, s := range sources {
		if _, ok := seen[s.Page]; ok {
			continue
		}
		seen[s.Page] = struct{}{}
		pages = append(pages, s.Page)
	}
	return pages
}

var _ ports.QueryService = (*QueryUseCase)(nil)

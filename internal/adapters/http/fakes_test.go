package httpadapter

import (
	"context"
	"io"
	"net/http"

	"github.com/kirillkom/lifeforge-rag/internal/config"
	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

type queryFake struct {
	err     error
	lastReq domain.RetrievalRequest
}

func (f *queryFake) Query(_ context.Context, req domain.RetrievalRequest) (*domain.QueryOutcome, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.QueryOutcome{
		Slot:          req.Slot,
		Mode:          domain.ModeHybrid,
		Answer:        "ATP is made in mitochondria.",
		Sources:       []domain.Source{{ID: "p0-t0", Page: 0, Kind: domain.ChunkText}},
		NumTextChunks: 1,
		TopSimilarity: 0.8,
		Confidence:    0.62,
	}, nil
}

func (f *queryFake) Retrieve(_ context.Context, req domain.RetrievalRequest) (*domain.RetrievalResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RetrievalResult{
		Mode:          domain.ModeDenseOnly,
		Docs:          []domain.RankedChunk{{Chunk: domain.Chunk{ID: "p0-t0", Kind: domain.ChunkText, Content: "cells", Embedding: []float32{1, 0}}, Score: 0.5}},
		TopSimilarity: 0.7,
	}, nil
}

type ingestFake struct {
	err     error
	lastReq domain.IngestRequest
}

func (f *ingestFake) Ingest(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.IngestResult{Slot: req.Slot, NumChunks: len(req.Chunks), NumText: len(req.Chunks)}, nil
}

type uploaderFake struct {
	queued   bool
	err      error
	slot     string
	filename string
	body     []byte
}

func (f *uploaderFake) Upload(_ context.Context, slot, filename string, body io.Reader) (*domain.UploadResult, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.slot, f.filename, f.body = slot, filename, raw
	if f.err != nil {
		return nil, f.err
	}
	return &domain.UploadResult{Slot: slot, Filename: filename, StorageKey: "k-" + filename, Queued: f.queued}, nil
}

type slotsFake struct{}

func (slotsFake) Stats(slot string) domain.SlotStats {
	return domain.SlotStats{Slot: slot, Ready: slot == "standard", NumChunks: 3, NumText: 3, HasLexical: true, Dimension: 4}
}

type evalFake struct {
	err       error
	lastLimit int
}

func (f *evalFake) ListDocuments(context.Context) ([]domain.DocumentRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.DocumentRecord{{ID: 1, Slot: "standard", Filename: "bio.pdf", NumChunks: 3}}, nil
}

func (f *evalFake) RecentQueryLogs(_ context.Context, limit int) ([]domain.QueryLog, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []domain.QueryLog{{ID: 1, Slot: "standard", Query: "q"}}, nil
}

func (f *evalFake) EvalSummary(context.Context) (domain.EvalSummary, error) {
	if f.err != nil {
		return domain.EvalSummary{}, f.err
	}
	return domain.EvalSummary{TotalQueries: 4, RejectionRate: 0.25}, nil
}

type testServices struct {
	query    *queryFake
	ingest   *ingestFake
	uploader *uploaderFake
	eval     *evalFake
}

func newTestServices() *testServices {
	return &testServices{
		query:    &queryFake{},
		ingest:   &ingestFake{},
		uploader: &uploaderFake{},
		eval:     &evalFake{},
	}
}

func (s *testServices) handler(cfg config.Config) http.Handler {
	return NewRouter(cfg, Services{
		Query:    s.query,
		Ingest:   s.ingest,
		Uploader: s.uploader,
		Slots:    slotsFake{},
		Eval:     s.eval,
	}).Handler()
}

func newTestHandler(cfg config.Config) http.Handler {
	return newTestServices().handler(cfg)
}

func testConfig() config.Config {
	return config.Config{KTotal: 5, DefaultSlots: []string{"standard", "agentic"}}
}

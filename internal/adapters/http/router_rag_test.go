package httpadapter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

func TestQueryRagDefaultsSlotAndHybrid(t *testing.T) {
	svc := newTestServices()
	res := postJSON(t, svc.handler(testConfig()), "/v1/rag/query", map[string]any{"question": "what makes ATP?"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	got := svc.query.lastReq
	if got.Slot != "standard" || !got.UseHybrid || got.K != 0 {
		t.Fatalf("unexpected request: %+v", got)
	}

	var outcome domain.QueryOutcome
	if err := json.Unmarshal(res.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if outcome.Mode != domain.ModeHybrid || len(outcome.Sources) != 1 || outcome.Sources[0].Kind != domain.ChunkText {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestRetrieveRagHonoursOptions(t *testing.T) {
	svc := newTestServices()
	res := postJSON(t, svc.handler(testConfig()), "/v1/rag/retrieve", map[string]any{
		"question": "q", "slot": "agentic", "k": 3, "use_hybrid": false,
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	got := svc.query.lastReq
	if got.Slot != "agentic" || got.UseHybrid || got.K != 3 {
		t.Fatalf("unexpected request: %+v", got)
	}

	var result domain.RetrievalView
	if err := json.Unmarshal(res.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Mode != domain.ModeDenseOnly || len(result.Docs) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if doc := result.Docs[0]; doc.ID != "p0-t0" || doc.Content != "cells" || doc.Score != 0.5 {
		t.Fatalf("unexpected doc: %+v", doc)
	}
	if strings.Contains(res.Body.String(), "embedding") {
		t.Fatalf("embeddings must not be returned: %s", res.Body.String())
	}
}

func TestSlotStatsEndpoint(t *testing.T) {
	handler := newTestHandler(testConfig())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/slots/standard", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var stats domain.SlotStats
	if err := json.Unmarshal(res.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !stats.Ready || stats.Slot != "standard" {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/slots/.hidden", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("invalid slot: expected 400, got %d", res.Code)
	}
}

func TestEvaluationEndpoints(t *testing.T) {
	svc := newTestServices()
	handler := svc.handler(testConfig())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("documents: expected 200, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/query-logs?limit=5000", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("logs: expected 200, got %d", res.Code)
	}
	if svc.eval.lastLimit != maxLogsLimit {
		t.Fatalf("expected limit capped at %d, got %d", maxLogsLimit, svc.eval.lastLimit)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/query-logs?limit=abc", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/eval/summary", nil))
	var summary domain.EvalSummary
	if err := json.Unmarshal(res.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.TotalQueries != 4 || summary.RejectionRate != 0.25 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

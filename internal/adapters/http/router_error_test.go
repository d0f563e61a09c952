package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
)

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrInvalidInput, "q", errors.New("x")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrDimensionMismatch, "q", errors.New("x")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrDocumentNotFound, "q", errors.New("x")), http.StatusNotFound},
		{fmt.Errorf("query: %w", domain.WrapError(domain.ErrSlotNotReady, "q", errors.New("x"))), http.StatusConflict},
		{domain.WrapError(domain.ErrTemporary, "q", errors.New("x")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestQueryRagMapsSlotNotReadyTo409(t *testing.T) {
	svc := newTestServices()
	svc.query.err = domain.WrapError(domain.ErrSlotNotReady, "query", errors.New(`slot "agentic"`))

	res := postJSON(t, svc.handler(testConfig()), "/v1/rag/query", map[string]any{"question": "test", "slot": "agentic"})
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
}

func TestQueryRagMapsTemporaryTo503(t *testing.T) {
	svc := newTestServices()
	svc.query.err = domain.WrapError(domain.ErrTemporary, "ollama", errors.New("503"))

	res := postJSON(t, svc.handler(testConfig()), "/v1/rag/query", map[string]any{"question": "test"})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
	if res.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After on 503")
	}
}

func TestQueryRagRejectsBadBodies(t *testing.T) {
	handler := newTestHandler(testConfig())

	req := httptest.NewRequest(http.MethodPost, "/v1/rag/query", bytes.NewReader([]byte("{")))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("invalid json: expected 400, got %d", res.Code)
	}

	if res := postJSON(t, handler, "/v1/rag/query", map[string]any{"question": "   "}); res.Code != http.StatusBadRequest {
		t.Fatalf("blank question: expected 400, got %d", res.Code)
	}
	if res := postJSON(t, handler, "/v1/rag/query", map[string]any{"question": "q", "k": -1}); res.Code != http.StatusBadRequest {
		t.Fatalf("negative k: expected 400, got %d", res.Code)
	}
}

func TestEvalSummaryMapsInternalErrorTo500(t *testing.T) {
	svc := newTestServices()
	svc.eval.err = errors.New("db down")

	req := httptest.NewRequest(http.MethodGet, "/v1/eval/summary", nil)
	res := httptest.NewRecorder()
	svc.handler(testConfig()).ServeHTTP(res, req)
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
}

func TestWrongMethodIs405(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/rag/query", nil)
	res := httptest.NewRecorder()
	newTestHandler(testConfig()).ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

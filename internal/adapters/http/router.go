package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/lifeforge-rag/internal/config"
	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
	"github.com/kirillkom/lifeforge-rag/internal/core/ports"
	"github.com/kirillkom/lifeforge-rag/internal/observability/metrics"
)

const (
	backpressureWait   = 50 * time.Millisecond
	multipartMemory    = 32 << 20
	defaultLogsLimit   = 50
	maxLogsLimit       = 1000
	fallbackSlotName   = "standard"
	maxJSONIngestBytes = 256 << 20
)

// Services are the inbound ports served over HTTP.
type Services struct {
	Query    ports.QueryService
	Ingest   ports.CorpusIngestor
	Uploader ports.DocumentUploader
	Slots    ports.SlotReader
	Eval     ports.EvaluationReader
}

type Router struct {
	cfg     config.Config
	svc     Services
	metrics *metrics.HTTPServerMetrics
	logger  *slog.Logger
}

type RouterOption func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) { rt.metrics = m }
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

func NewRouter(cfg config.Config, svc Services, opts ...RouterOption) *Router {
	rt := &Router{
		cfg:    cfg,
		svc:    svc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.HandleFunc("POST /v1/slots/{slot}/chunks", rt.ingestChunks)
	mux.HandleFunc("POST /v1/slots/{slot}/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/slots/{slot}", rt.slotStats)
	mux.HandleFunc("POST /v1/rag/query", rt.queryRAG)
	mux.HandleFunc("POST /v1/rag/retrieve", rt.retrieveRAG)
	mux.HandleFunc("GET /v1/documents", rt.listDocuments)
	mux.HandleFunc("GET /v1/query-logs", rt.queryLogs)
	mux.HandleFunc("GET /v1/eval/summary", rt.evalSummary)

	var shed shedRecorder
	var handler http.Handler = mux
	if rt.metrics != nil {
		shed = rt.metrics
	}
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureWait, shed)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, shed)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chunkPayload struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Page      int       `json:"page"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
}

type ingestChunksRequest struct {
	Filename string            `json:"filename"`
	Chunks   []chunkPayload    `json:"chunks"`
	Images   map[string]string `json:"images"`
}

func (rt *Router) ingestChunks(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Ingest == nil {
		writeError(w, http.StatusNotImplemented, "ingestion is not configured")
		return
	}

	var req ingestChunksRequest
	if !decodeJSON(w, r, maxJSONIngestBytes, &req) {
		return
	}

	chunks := make([]domain.Chunk, 0, len(req.Chunks))
	for _, c := range req.Chunks {
		kind := domain.ChunkKind(strings.ToLower(strings.TrimSpace(c.Kind)))
		if kind == "" {
			kind = domain.ChunkText
		}
		chunks = append(chunks, domain.Chunk{
			ID:        c.ID,
			Kind:      kind,
			Page:      c.Page,
			Content:   c.Content,
			Embedding: c.Embedding,
		})
	}

	result, err := rt.svc.Ingest.Ingest(r.Context(), domain.IngestRequest{
		Slot:     r.PathValue("slot"),
		Filename: req.Filename,
		Chunks:   chunks,
		Images:   req.Images,
	})
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Uploader == nil {
		writeError(w, http.StatusNotImplemented, "document upload is not configured")
		return
	}
	if rt.cfg.APIUploadMaxBytes > 0 {
		if r.ContentLength > rt.cfg.APIUploadMaxBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.APIUploadMaxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	result, err := rt.svc.Uploader.Upload(r.Context(), r.PathValue("slot"), fileHeader.Filename, file)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

func (rt *Router) slotStats(w http.ResponseWriter, r *http.Request) {
	slot := r.PathValue("slot")
	if err := domain.ValidateSlot(slot); err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	if rt.svc.Slots == nil {
		writeError(w, http.StatusNotImplemented, "slot store is not configured")
		return
	}
	writeJSON(w, http.StatusOK, rt.svc.Slots.Stats(slot))
}

type ragRequest struct {
	Question  string `json:"question"`
	Slot      string `json:"slot"`
	K         int    `json:"k"`
	UseHybrid *bool  `json:"use_hybrid"`
}

func (rt *Router) retrievalRequest(w http.ResponseWriter, r *http.Request) (domain.RetrievalRequest, bool) {
	var req ragRequest
	if !decodeJSON(w, r, 1<<20, &req) {
		return domain.RetrievalRequest{}, false
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return domain.RetrievalRequest{}, false
	}
	if req.K < 0 {
		writeError(w, http.StatusBadRequest, "k must be positive")
		return domain.RetrievalRequest{}, false
	}

	slot := strings.TrimSpace(req.Slot)
	if slot == "" {
		slot = rt.defaultSlot()
	}
	useHybrid := true
	if req.UseHybrid != nil {
		useHybrid = *req.UseHybrid
	}
	return domain.RetrievalRequest{
		Slot:      slot,
		Question:  req.Question,
		K:         req.K,
		UseHybrid: useHybrid,
	}, true
}

func (rt *Router) queryRAG(w http.ResponseWriter, r *http.Request) {
	req, ok := rt.retrievalRequest(w, r)
	if !ok {
		return
	}
	outcome, err := rt.svc.Query.Query(r.Context(), req)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) retrieveRAG(w http.ResponseWriter, r *http.Request) {
	req, ok := rt.retrievalRequest(w, r)
	if !ok {
		return
	}
	result, err := rt.svc.Query.Retrieve(r.Context(), req)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result.View())
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := rt.svc.Eval.ListDocuments(r.Context())
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) queryLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLogsLimit)
	}
	logs, err := rt.svc.Eval.RecentQueryLogs(r.Context(), limit)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (rt *Router) evalSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := rt.svc.Eval.EvalSummary(r.Context())
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) defaultSlot() string {
	if len(rt.cfg.DefaultSlots) > 0 {
		return rt.cfg.DefaultSlots[0]
	}
	return fallbackSlotName
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

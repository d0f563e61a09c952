package usecase

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
	"github.com/kirillkom/lifeforge-rag/internal/core/ports"
)

const testDim = 64

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// hashEmbedder is a deterministic bag-of-words embedder: every token adds
// one to a hashed coordinate, then the vector is normalized.
type hashEmbedder struct {
	mu         sync.Mutex
	embedCalls int
	queryCalls int
	err        error
}

func hashVector(text string) []float32 {
	v := make([]float32, testDim)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		v[h.Sum32()%testDim]++
	}
	return domain.Normalize(v)
}

func (e *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.embedCalls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t)
	}
	return out, nil
}

func (e *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.queryCalls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return hashVector(text), nil
}

type generatorFake struct {
	answer   string
	err      error
	calls    int
	evidence domain.Evidence
}

// GenerateAnswer returns the configured answer, or the first text excerpt.
func (g *generatorFake) GenerateAnswer(_ context.Context, evidence domain.Evidence) (string, error) {
	g.calls++
	g.evidence = evidence
	if g.err != nil {
		return "", g.err
	}
	if g.answer != "" {
		return g.answer, nil
	}
	if len(evidence.TextChunks) > 0 {
		return evidence.TextChunks[0].Content, nil
	}
	return "I don't know", nil
}

type queryLogFake struct {
	entries []domain.QueryLog
	err     error
}

func (f *queryLogFake) SaveQueryLog(_ context.Context, entry domain.QueryLog) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *queryLogFake) RecentQueryLogs(context.Context, int) ([]domain.QueryLog, error) {
	return f.entries, nil
}

func (f *queryLogFake) EvalSummary(context.Context) (domain.EvalSummary, error) {
	return domain.EvalSummary{}, errors.New("not implemented")
}

type registryFake struct {
	records []domain.DocumentRecord
	err     error
}

func (f *registryFake) SaveDocument(_ context.Context, rec domain.DocumentRecord) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	rec.ID = int64(len(f.records) + 1)
	f.records = append(f.records, rec)
	return rec.ID, nil
}

func (f *registryFake) ListDocuments(context.Context) ([]domain.DocumentRecord, error) {
	return f.records, nil
}

func (f *registryFake) LatestDocument(_ context.Context, slot string) (*domain.DocumentRecord, error) {
	for i := len(f.records) - 1; i >= 0; i-- {
		if f.records[i].Slot == slot {
			rec := f.records[i]
			return &rec, nil
		}
	}
	return nil, domain.WrapError(domain.ErrDocumentNotFound, "latest document", errors.New(slot))
}

type eventsFake struct {
	jobs    []domain.IngestJob
	updates []domain.SlotUpdated
	err     error
}

func (f *eventsFake) PublishIngestJob(_ context.Context, job domain.IngestJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *eventsFake) PublishSlotUpdated(_ context.Context, event domain.SlotUpdated) error {
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, event)
	return nil
}

// lexicalSpy counts searches against the wrapped lexical index.
type lexicalSpy struct {
	inner ports.LexicalIndex
	calls int
}

func (s *lexicalSpy) Search(query string, k int) []domain.Chunk {
	s.calls++
	return s.inner.Search(query, k)
}

type spySnapshot struct {
	ports.SlotSnapshot
	spy *lexicalSpy
}

func (s spySnapshot) Lexical() (ports.LexicalIndex, bool) {
	inner, ok := s.SlotSnapshot.Lexical()
	if !ok {
		return nil, false
	}
	s.spy.inner = inner
	return s.spy, true
}

type spyStore struct {
	ports.CorpusStore
	spy *lexicalSpy
}

func (s spyStore) Snapshot(slot string) (ports.SlotSnapshot, bool) {
	snap, ok := s.CorpusStore.Snapshot(slot)
	if !ok {
		return nil, false
	}
	return spySnapshot{SlotSnapshot: snap, spy: s.spy}, true
}

func textChunk(id string, page int, content string) domain.Chunk {
	return domain.Chunk{ID: id, Kind: domain.ChunkText, Page: page, Content: content, Embedding: hashVector(content)}
}

func imageChunk(id string, page int, seed int) domain.Chunk {
	v := make([]float32, testDim)
	v[seed%testDim] = 1
	v[(seed*7+3)%testDim] = 0.5
	return domain.Chunk{ID: id, Kind: domain.ChunkImage, Page: page, Content: id, Embedding: domain.Normalize(v)}
}

func fiveTextChunks() []domain.Chunk {
	return []domain.Chunk{
		textChunk("p0-t0", 0, "Mitochondria produce cellular energy through respiration."),
		textChunk("p0-t1", 0, "Chloroplasts capture sunlight during photosynthesis."),
		textChunk("p1-t0", 1, "Ribosomes translate messenger RNA into proteins."),
		textChunk("p1-t1", 1, "The Golgi apparatus packages lipids for secretion."),
		textChunk("p2-t0", 2, "Lysosomes digest worn organelles with enzymes."),
	}
}

package domain

// RetrievalMode is resolved once per query from configuration, the caller's
// preference and whether the slot has a lexical index.
type RetrievalMode string

const (
	ModeHybrid    RetrievalMode = "hybrid"
	ModeDenseOnly RetrievalMode = "dense_only"
)

// ResolveMode picks hybrid only when it is enabled, requested and possible.
func ResolveMode(hybridEnabled, useHybrid, hasLexical bool) RetrievalMode {
	if hybridEnabled && useHybrid && hasLexical {
		return ModeHybrid
	}
	return ModeDenseOnly
}

// ScoredChunk is a dense search hit. Distance is squared L2 between unit vectors.
type ScoredChunk struct {
	Chunk    Chunk
	Distance float64
}

// RankedChunk is a fused hit; higher Score is more relevant.
type RankedChunk struct {
	Chunk Chunk
	Score float64
}

type RetrievalRequest struct {
	Slot      string
	Question  string
	K         int
	UseHybrid bool
}

type RetrievalResult struct {
	Mode          RetrievalMode
	Docs          []RankedChunk
	TopSimilarity float64
}

// RankedDoc is a ranked chunk as callers see it. Embeddings stay internal.
type RankedDoc struct {
	ID      string    `json:"id"`
	Kind    ChunkKind `json:"kind"`
	Page    int       `json:"page"`
	Content string    `json:"content"`
	Score   float64   `json:"score"`
}

type RetrievalView struct {
	Mode          RetrievalMode `json:"mode"`
	Docs          []RankedDoc   `json:"docs"`
	TopSimilarity float64       `json:"top_similarity"`
}

func (r RetrievalResult) View() RetrievalView {
	docs := make([]RankedDoc, 0, len(r.Docs))
	for _, d := range r.Docs {
		docs = append(docs, RankedDoc{
			ID:      d.Chunk.ID,
			Kind:    d.Chunk.Kind,
			Page:    d.Chunk.Page,
			Content: d.Chunk.Content,
			Score:   d.Score,
		})
	}
	return RetrievalView{Mode: r.Mode, Docs: docs, TopSimilarity: r.TopSimilarity}
}

func (r RetrievalResult) Chunks() []Chunk {
	out := make([]Chunk, 0, len(r.Docs))
	for _, d := range r.Docs {
		out = append(out, d.Chunk)
	}
	return out
}

// Evidence is what the generation step receives.
type Evidence struct {
	Question   string
	TextChunks []Chunk
	Images     []EvidenceImage
}

type EvidenceImage struct {
	ID     string
	Page   int
	Base64 string
}

type Source struct {
	ID   string    `json:"id"`
	Page int       `json:"page"`
	Kind ChunkKind `json:"type"`
}

// InsufficientInformationAnswer is returned when the admission guardrail rejects a query.
const InsufficientInformationAnswer = "I don't have enough information in the ingested document to answer that question."

type QueryOutcome struct {
	Slot            string        `json:"slot"`
	Mode            RetrievalMode `json:"mode"`
	Answer          string        `json:"answer"`
	Sources         []Source      `json:"sources"`
	Docs            []Chunk       `json:"-"`
	NumTextChunks   int           `json:"num_text_chunks"`
	NumImages       int           `json:"num_images"`
	TopSimilarity   float64       `json:"top_similarity"`
	Confidence      float64       `json:"confidence"`
	AnswerGrounding float64       `json:"answer_grounding"`
	IsHallucination bool          `json:"is_hallucination"`
	Rejected        bool          `json:"rejected"`
}

// RejectedOutcome is the fixed short-circuit result of a failed admission check.
func RejectedOutcome(slot string, mode RetrievalMode, topSimilarity float64) *QueryOutcome {
	return &QueryOutcome{
		Slot:          slot,
		Mode:          mode,
		Answer:        InsufficientInformationAnswer,
		Sources:       []Source{},
		TopSimilarity: topSimilarity,
		Rejected:      true,
	}
}

func SourcesOf(chunks []Chunk) []Source {
	out := make([]Source, 0, len(chunks))
	for _, ch := range chunks {
		out = append(out, Source{ID: ch.ID, Page: ch.Page, Kind: ch.Kind})
	}
	return out
}

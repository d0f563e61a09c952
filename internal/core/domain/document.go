package domain

import (
	"regexp"
	"time"
)

// DocumentRecord registers one ingestion into a slot.
type DocumentRecord struct {
	ID         int64     `json:"id"`
	Slot       string    `json:"slot"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploaded_at"`
	NumChunks  int       `json:"num_chunks"`
	NumImages  int       `json:"num_images"`
}

type QueryLog struct {
	ID              int64     `json:"id"`
	DocumentID      *int64    `json:"document_id,omitempty"`
	Slot            string    `json:"slot"`
	Timestamp       time.Time `json:"timestamp"`
	Query           string    `json:"query"`
	Mode            string    `json:"mode"`
	AnswerLength    int       `json:"answer_length"`
	NumTextChunks   int       `json:"num_text_chunks"`
	NumImages       int       `json:"num_images"`
	TopSimilarity   float64   `json:"top_similarity"`
	Confidence      float64   `json:"confidence"`
	AnswerGrounding float64   `json:"answer_grounding"`
	IsHallucination bool      `json:"is_hallucination"`
	Rejected        bool      `json:"rejected"`
	SourcePages     []int     `json:"source_pages"`
	LatencyMS       float64   `json:"latency_ms"`
}

type EvalSummary struct {
	TotalQueries       int     `json:"total_queries"`
	HallucinationRate  float64 `json:"hallucination_rate"`
	RejectionRate      float64 `json:"rejection_rate"`
	AvgConfidence      float64 `json:"avg_confidence"`
	AvgTopSimilarity   float64 `json:"avg_top_similarity"`
	AvgAnswerGrounding float64 `json:"avg_answer_grounding"`
	AvgLatencyMS       float64 `json:"avg_latency_ms"`
}

// IngestJob asks a worker to extract, embed and ingest a stored PDF into a slot.
type IngestJob struct {
	Slot       string    `json:"slot"`
	Filename   string    `json:"filename"`
	StorageKey string    `json:"storage_key"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// SlotUpdated is broadcast after a slot snapshot has been replaced on disk.
type SlotUpdated struct {
	Slot       string `json:"slot"`
	InstanceID string `json:"instance_id"`
	NumChunks  int    `json:"num_chunks"`
}

type SlotStats struct {
	Slot       string `json:"slot"`
	Ready      bool   `json:"ready"`
	NumChunks  int    `json:"num_chunks"`
	NumText    int    `json:"num_text_chunks"`
	NumImages  int    `json:"num_images"`
	HasLexical bool   `json:"has_lexical"`
	Dimension  int    `json:"dimension"`
}

type IngestRequest struct {
	Slot     string
	Filename string
	Chunks   []Chunk
	Images   map[string]string
}

type IngestResult struct {
	Slot       string `json:"slot"`
	DocumentID int64  `json:"document_id,omitempty"`
	NumChunks  int    `json:"num_chunks"`
	NumText    int    `json:"num_text_chunks"`
	NumImages  int    `json:"num_images"`
	HasLexical bool   `json:"has_lexical"`
}

// PageText is the extracted text of one zero-based source page.
type PageText struct {
	Page int
	Text string
}

var slotNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ValidateSlot checks that slot can be used as a storage directory name.
func ValidateSlot(slot string) error {
	if !slotNamePattern.MatchString(slot) {
		return WrapError(ErrInvalidInput, "validate slot", errorf("bad slot name %q", slot))
	}
	return nil
}

// UploadResult reports a stored upload. Result is set when the document was
// processed inline; Queued is set when a worker will process it.
type UploadResult struct {
	Slot       string        `json:"slot"`
	Filename   string        `json:"filename"`
	StorageKey string        `json:"storage_key"`
	Queued     bool          `json:"queued"`
	Result     *IngestResult `json:"result,omitempty"`
}

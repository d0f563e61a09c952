package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
	"github.com/kirillkom/lifeforge-rag/internal/core/ports"
)

const defaultRecentLimit = 50

type QueryLogRepository struct {
	db *sql.DB
}

func NewQueryLogRepository(db *sql.DB) *QueryLogRepository {
	return &QueryLogRepository{db: db}
}

var _ ports.QueryLogStore = (*QueryLogRepository)(nil)

func (r *QueryLogRepository) SaveQueryLog(ctx context.Context, entry domain.QueryLog) error {
	pages := entry.SourcePages
	if pages == nil {
		pages = []int{}
	}
	pagesJSON, err := json.Marshal(pages)
	if err != nil {
		return fmt.Errorf("marshal source pages: %w", err)
	}
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO rag_query_logs (
	document_id, slot, ts, query, mode, answer_length, num_text_chunks, num_images,
	top_similarity, confidence, answer_grounding, is_hallucination, rejected, source_pages, latency_ms
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		entry.DocumentID, entry.Slot, ts, entry.Query, entry.Mode, entry.AnswerLength, entry.NumTextChunks, entry.NumImages,
		entry.TopSimilarity, entry.Confidence, entry.AnswerGrounding, entry.IsHallucination, entry.Rejected, pagesJSON, entry.LatencyMS,
	)
	if err != nil {
		return fmt.Errorf("insert query log: %w", err)
	}
	return nil
}

func (r *QueryLogRepository) RecentQueryLogs(ctx context.Context, limit int) ([]domain.QueryLog, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, slot, ts, query, mode, answer_length, num_text_chunks, num_images,
	top_similarity, confidence, answer_grounding, is_hallucination, rejected, source_pages, latency_ms
FROM rag_query_logs
ORDER BY id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list query logs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.QueryLog, 0, limit)
	for rows.Next() {
		var (
			entry      domain.QueryLog
			documentID sql.NullInt64
			pagesRaw   []byte
		)
		if err := rows.Scan(
			&entry.ID, &documentID, &entry.Slot, &entry.Timestamp, &entry.Query, &entry.Mode,
			&entry.AnswerLength, &entry.NumTextChunks, &entry.NumImages,
			&entry.TopSimilarity, &entry.Confidence, &entry.AnswerGrounding,
			&entry.IsHallucination, &entry.Rejected, &pagesRaw, &entry.LatencyMS,
		); err != nil {
			return nil, fmt.Errorf("scan query log: %w", err)
		}
		if documentID.Valid {
			id := documentID.Int64
			entry.DocumentID = &id
		}
		if len(pagesRaw) > 0 {
			if err := json.Unmarshal(pagesRaw, &entry.SourcePages); err != nil {
				return nil, fmt.Errorf("unmarshal source pages: %w", err)
			}
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query logs: %w", err)
	}
	return out, nil
}

// EvalSummary aggregates every stored query log. Rates and averages are
// rounded to 4 decimals and are zero when no queries were logged.
func (r *QueryLogRepository) EvalSummary(ctx context.Context) (domain.EvalSummary, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	AVG(CASE WHEN is_hallucination THEN 1.0 ELSE 0.0 END),
	AVG(CASE WHEN rejected THEN 1.0 ELSE 0.0 END),
	AVG(confidence),
	AVG(top_similarity),
	AVG(answer_grounding),
	AVG(latency_ms)
FROM rag_query_logs
`)

	var (
		total                                     int
		halluc, rejected, conf, topSim, grounding sql.NullFloat64
		latency                                   sql.NullFloat64
	)
	if err := row.Scan(&total, &halluc, &rejected, &conf, &topSim, &grounding, &latency); err != nil {
		return domain.EvalSummary{}, fmt.Errorf("scan eval summary: %w", err)
	}
	return domain.EvalSummary{
		TotalQueries:       total,
		HallucinationRate:  round4(halluc),
		RejectionRate:      round4(rejected),
		AvgConfidence:      round4(conf),
		AvgTopSimilarity:   round4(topSim),
		AvgAnswerGrounding: round4(grounding),
		AvgLatencyMS:       round4(latency),
	}, nil
}

func round4(v sql.NullFloat64) float64 {
	if !v.Valid {
		return 0
	}
	return math.Round(v.Float64*1e4) / 1e4
}

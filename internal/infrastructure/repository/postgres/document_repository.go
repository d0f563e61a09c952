package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/lifeforge-rag/internal/core/domain"
	"github.com/kirillkom/lifeforge-rag/internal/core/ports"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

var _ ports.DocumentRegistry = (*DocumentRepository)(nil)

func (r *DocumentRepository) SaveDocument(ctx context.Context, rec domain.DocumentRecord) (int64, error) {
	uploadedAt := rec.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}

	var id int64
	err := r.db.QueryRowContext(ctx, `
INSERT INTO rag_documents (slot, filename, uploaded_at, num_chunks, num_images)
VALUES ($1,$2,$3,$4,$5)
RETURNING id
`, rec.Slot, rec.Filename, uploadedAt, rec.NumChunks, rec.NumImages).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

func (r *DocumentRepository) ListDocuments(ctx context.Context) ([]domain.DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, slot, filename, uploaded_at, num_chunks, num_images
FROM rag_documents
ORDER BY uploaded_at DESC, id DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DocumentRecord, 0)
	for rows.Next() {
		var rec domain.DocumentRecord
		if err := rows.Scan(&rec.ID, &rec.Slot, &rec.Filename, &rec.UploadedAt, &rec.NumChunks, &rec.NumImages); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepository) LatestDocument(ctx context.Context, slot string) (*domain.DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, slot, filename, uploaded_at, num_chunks, num_images
FROM rag_documents
WHERE slot = $1
ORDER BY id DESC
LIMIT 1
`, slot)

	var rec domain.DocumentRecord
	err := row.Scan(&rec.ID, &rec.Slot, &rec.Filename, &rec.UploadedAt, &rec.NumChunks, &rec.NumImages)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "latest document", fmt.Errorf("slot %s", slot))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &rec, nil
}

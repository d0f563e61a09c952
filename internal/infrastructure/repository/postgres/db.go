package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS rag_documents (
	id BIGSERIAL PRIMARY KEY,
	slot TEXT NOT NULL,
	filename TEXT NOT NULL,
	uploaded_at TIMESTAMPTZ NOT NULL,
	num_chunks INTEGER NOT NULL DEFAULT 0,
	num_images INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_rag_documents_slot_id ON rag_documents(slot, id DESC);

CREATE TABLE IF NOT EXISTS rag_query_logs (
	id BIGSERIAL PRIMARY KEY,
	document_id BIGINT REFERENCES rag_documents(id) ON DELETE SET NULL,
	slot TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	query TEXT NOT NULL,
	mode TEXT NOT NULL,
	answer_length INTEGER NOT NULL DEFAULT 0,
	num_text_chunks INTEGER NOT NULL DEFAULT 0,
	num_images INTEGER NOT NULL DEFAULT 0,
	top_similarity DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	answer_grounding DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_hallucination BOOLEAN NOT NULL DEFAULT FALSE,
	rejected BOOLEAN NOT NULL DEFAULT FALSE,
	source_pages JSONB NOT NULL DEFAULT '[]'::jsonb,
	latency_ms DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_rag_query_logs_ts ON rag_query_logs(ts DESC);
`

// EnsureSchema creates the registry and query log tables.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

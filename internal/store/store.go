// Package store appends result rows to a SQL database. Rows are written once
// per pipeline run and never read back by the service.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/hyperifyio/serpctx/internal/model"
)

const schema = `CREATE TABLE IF NOT EXISTS search_results (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	url TEXT NOT NULL,
	title TEXT NOT NULL,
	snippet TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	embedding TEXT,
	created_at TIMESTAMP NOT NULL
)`

const insertRow = `INSERT INTO search_results (id, query, url, title, snippet, score, embedding, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// Writer persists organic results keyed by their originating query.
type Writer struct {
	db  *sqlx.DB
	now func() time.Time
}

// New wraps an open database.
func New(db *sqlx.DB) *Writer {
	return &Writer{db: db, now: time.Now}
}

// Open connects to driver ("postgres" or "sqlite") at dsn and ensures the
// schema exists.
func Open(ctx context.Context, driver, dsn string) (*Writer, error) {
	driver = normalizeDriver(driver)
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// A single connection keeps :memory: databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	w := New(db)
	if err := w.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func normalizeDriver(d string) string {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "postgresql", "pg":
		return "postgres"
	case "sqlite3":
		return "sqlite"
	default:
		return strings.ToLower(strings.TrimSpace(d))
	}
}

// EnsureSchema creates the results table when missing.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveResults writes one row per result in a single transaction. Repeated
// calls for the same query append new rows.
func (w *Writer) SaveResults(ctx context.Context, query string, results []model.OrganicResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt := w.db.Rebind(insertRow)
	createdAt := w.now().UTC()
	for _, r := range results {
		emb, err := encodeEmbedding(r.Embedding)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, stmt, uuid.NewString(), query, r.URL, r.Title, r.Snippet, r.CredibilityScore, emb, createdAt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert result: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (w *Writer) Close() error {
	return w.db.Close()
}

func encodeEmbedding(v []float32) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode embedding: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// Package store keeps a SQLite ledger of processed documents and pipeline
// runs, so repeated invocations over a corpus can skip unchanged documents
// and the diagnostics of every run stay queryable.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Document statuses.
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("txt2kgx: not found in ledger")

// Document represents a row in the documents table.
type Document struct {
	ID          int64  `json:"id"`
	Path        string `json:"path"`
	Filename    string `json:"filename"`
	Format      string `json:"format"`
	ContentHash string `json:"content_hash"`
	Status      string `json:"status"`
	Nodes       int    `json:"nodes"`
	Edges       int    `json:"edges"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Run represents a row in the runs table.
type Run struct {
	ID         int64  `json:"id"`
	NodesFile  string `json:"nodes_file"`
	EdgesFile  string `json:"edges_file"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
}

// Outcome is the result of one document within a run.
type Outcome struct {
	ID          int64           `json:"id"`
	RunID       int64           `json:"run_id"`
	DocumentID  int64           `json:"document_id"`
	Status      string          `json:"status"`
	Error       string          `json:"error,omitempty"`
	Diagnostics json.RawMessage `json:"diagnostics,omitempty"`
	CreatedAt   string          `json:"created_at"`
}

// Store wraps the SQLite ledger database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the ledger at dbPath.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashContent returns the hex SHA-256 of data.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// --- Document operations ---

// UpsertDocument inserts or updates a document record keyed by path.
// Returns the document ID.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) (int64, error) {
	if doc.Status == "" {
		doc.Status = StatusPending
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (path, filename, format, content_hash, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			filename = excluded.filename,
			format = excluded.format,
			content_hash = excluded.content_hash,
			status = excluded.status,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`, doc.Path, doc.Filename, doc.Format, doc.ContentHash, doc.Status).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetDocumentByPath retrieves a document by its file path.
func (s *Store) GetDocumentByPath(ctx context.Context, path string) (*Document, error) {
	doc := &Document{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, path, filename, format, content_hash, status, nodes, edges, created_at, updated_at
		FROM documents WHERE path = ?
	`, path).Scan(&doc.ID, &doc.Path, &doc.Filename, &doc.Format, &doc.ContentHash,
		&doc.Status, &doc.Nodes, &doc.Edges, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns all documents ordered by path.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, filename, format, content_hash, status, nodes, edges, created_at, updated_at
		FROM documents ORDER BY path
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Path, &d.Filename, &d.Format, &d.ContentHash,
			&d.Status, &d.Nodes, &d.Edges, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// AlreadyProcessed reports whether path was processed successfully with the
// same content hash.
func (s *Store) AlreadyProcessed(ctx context.Context, path, hash string) (bool, error) {
	doc, err := s.GetDocumentByPath(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return doc.Status == StatusDone && doc.ContentHash == hash, nil
}

// --- Run operations ---

// StartRun records the start of a pipeline run and returns its ID.
func (s *Store) StartRun(ctx context.Context, nodesFile, edgesFile string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (nodes_file, edges_file) VALUES (?, ?)", nodesFile, edgesFile)
	if err != nil {
		return 0, fmt.Errorf("starting run: %w", err)
	}
	return res.LastInsertId()
}

// FinishRun stamps the run as finished and stores its per-status counts.
func (s *Store) FinishRun(ctx context.Context, runID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = CURRENT_TIMESTAMP,
			succeeded = (SELECT COUNT(*) FROM outcomes WHERE run_id = ? AND status = ?),
			failed = (SELECT COUNT(*) FROM outcomes WHERE run_id = ? AND status = ?),
			skipped = (SELECT COUNT(*) FROM outcomes WHERE run_id = ? AND status = ?)
		WHERE id = ?
	`, runID, StatusDone, runID, StatusFailed, runID, StatusSkipped, runID)
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", runID, err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id int64) (*Run, error) {
	r := &Run{}
	var finished sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, nodes_file, edges_file, started_at, finished_at, succeeded, failed, skipped
		FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.NodesFile, &r.EdgesFile, &r.StartedAt, &finished,
		&r.Succeeded, &r.Failed, &r.Skipped)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	r.FinishedAt = finished.String
	return r, nil
}

// RecordOutcome stores a document's result in a run and updates the
// document's status and output counts in the same transaction.
// diagnostics is marshalled to JSON when non-nil.
func (s *Store) RecordOutcome(ctx context.Context, o Outcome, diagnostics any, nodes, edges int) (int64, error) {
	if diagnostics != nil && o.Diagnostics == nil {
		data, err := json.Marshal(diagnostics)
		if err != nil {
			return 0, fmt.Errorf("encoding diagnostics: %w", err)
		}
		o.Diagnostics = data
	}

	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var diag, errText sql.NullString
		if len(o.Diagnostics) > 0 {
			diag = sql.NullString{String: string(o.Diagnostics), Valid: true}
		}
		if o.Error != "" {
			errText = sql.NullString{String: o.Error, Valid: true}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO outcomes (run_id, document_id, status, error, diagnostics)
			VALUES (?, ?, ?, ?, ?)
		`, o.RunID, o.DocumentID, o.Status, errText, diag)
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}

		if o.Status == StatusSkipped {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE documents SET status = ?, nodes = ?, edges = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, o.Status, nodes, edges, o.DocumentID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("recording outcome: %w", err)
	}
	return id, nil
}

// ListOutcomes returns the outcomes of a run in insertion order.
func (s *Store) ListOutcomes(ctx context.Context, runID int64) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, document_id, status, error, diagnostics, created_at
		FROM outcomes WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o             Outcome
			errText, diag sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.RunID, &o.DocumentID, &o.Status, &errText, &diag, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Error = errText.String
		if diag.Valid {
			o.Diagnostics = json.RawMessage(diag.String)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

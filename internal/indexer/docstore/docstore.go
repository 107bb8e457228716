// Package docstore keeps the text and analyzed length of every indexed
// document in SQLite, so feedback term counting and length statistics
// survive process restarts.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS documents (
	id     TEXT PRIMARY KEY,
	title  TEXT NOT NULL,
	body   TEXT NOT NULL,
	length INTEGER NOT NULL
)`

// Document is a stored document.
type Document struct {
	ID     string
	Title  string
	Body   string
	Length int
}

// Text is what the analyzer saw when the document was indexed.
func (d Document) Text() string {
	return d.Title + " " + d.Body
}

// Store is a SQLite-backed document store.
type Store struct {
	db *sql.DB
}

// Open creates or opens the store at path. An empty path opens an in-memory
// database.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating docstore directory: %w", err)
		}
		dsn = path
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening docstore: %w", err)
	}
	// One connection: a single writer, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating docstore schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Put stores doc. A document with the same id is never overwritten.
func (s *Store) Put(ctx context.Context, doc Document) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, body, length) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		doc.ID, doc.Title, doc.Body, doc.Length,
	)
	if err != nil {
		return fmt.Errorf("storing document %s: %w", doc.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storing document %s: %w", doc.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, apperrors.ErrDocumentExists)
	}
	return nil
}

// Get returns the document with the given id.
func (s *Store) Get(ctx context.Context, id string) (Document, error) {
	doc := Document{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT title, body, length FROM documents WHERE id = ?`, id,
	).Scan(&doc.Title, &doc.Body, &doc.Length)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("document %s: %w", id, apperrors.ErrDocumentNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("loading document %s: %w", id, err)
	}
	return doc, nil
}

// Lengths returns the analyzed length of every stored document.
func (s *Store) Lengths(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, length FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("listing document lengths: %w", err)
	}
	defer rows.Close()
	lengths := make(map[string]int)
	for rows.Next() {
		var (
			id     string
			length int
		)
		if err := rows.Scan(&id, &length); err != nil {
			return nil, fmt.Errorf("scanning document length: %w", err)
		}
		lengths[id] = length
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing document lengths: %w", err)
	}
	return lengths, nil
}

// Each calls fn for every stored document in id order and stops at the
// first error fn returns. The store has a single connection, so fn must not
// call back into it.
func (s *Store) Each(ctx context.Context, fn func(Document) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, body, length FROM documents ORDER BY id`)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Body, &doc.Length); err != nil {
			return fmt.Errorf("scanning document: %w", err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

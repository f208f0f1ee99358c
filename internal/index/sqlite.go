package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, FTS5 built in

	"github.com/malaya-ai/malaya/libs/query-engine/internal/normalize"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL,
	url          TEXT NOT NULL DEFAULT '',
	domain       TEXT NOT NULL DEFAULT '',
	published_at TEXT
);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
	title,
	content,
	content='documents',
	content_rowid='rowid',
	tokenize='unicode61 remove_diacritics 2'
);

CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
	INSERT INTO documents_fts(rowid, title, content) VALUES (new.rowid, new.title, new.content);
END;

CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
	INSERT INTO documents_fts(documents_fts, rowid, title, content) VALUES ('delete', old.rowid, old.title, old.content);
END;

CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE ON documents BEGIN
	INSERT INTO documents_fts(documents_fts, rowid, title, content) VALUES ('delete', old.rowid, old.title, old.content);
	INSERT INTO documents_fts(rowid, title, content) VALUES (new.rowid, new.title, new.content);
END;
`

// SQLiteConfig holds SQLite lexical index settings.
type SQLiteConfig struct {
	Path         string
	MaxOpenConns int
}

// SQLiteIndex is a LexicalIndex backed by an SQLite FTS5 table ranked with bm25.
type SQLiteIndex struct {
	db *sql.DB
}

var _ LexicalIndex = (*SQLiteIndex)(nil)

// OpenSQLite opens or creates the index database at cfg.Path.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLiteIndex, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

// Upsert inserts or replaces documents by ID in one transaction.
func (s *SQLiteIndex) Upsert(ctx context.Context, docs ...Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, title, content, url, domain, published_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			url = excluded.url,
			domain = excluded.domain,
			published_at = excluded.published_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		d, err := prepare(d)
		if err != nil {
			return fmt.Errorf("document %q: %w", d.ID, err)
		}
		var published sql.NullString
		if d.PublishedAt != nil {
			published = sql.NullString{String: d.PublishedAt.UTC().Format(time.RFC3339), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Title, d.Content, d.URL, d.Domain, published); err != nil {
			return fmt.Errorf("upsert %q: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// Search matches any query word. Score is the negated bm25 rank, so higher
// is better. A query with no words returns no hits.
func (s *SQLiteIndex) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.title, d.content, d.url, d.domain, d.published_at, bm25(documents_fts) AS rank
		FROM documents_fts
		JOIN documents d ON d.rowid = documents_fts.rowid
		WHERE documents_fts MATCH ?
		ORDER BY rank, d.id
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h         Hit
			published sql.NullString
			rank      float64
		)
		if err := rows.Scan(&h.ID, &h.Title, &h.Content, &h.URL, &h.Domain, &published, &rank); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if published.Valid {
			if t, err := time.Parse(time.RFC3339, published.String); err == nil {
				h.PublishedAt = &t
			}
		}
		h.Score = -rank
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Count returns the number of indexed documents.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// ftsQuery turns free text into an FTS5 OR query of quoted words, which keeps
// operator characters in user input from being parsed as syntax.
func ftsQuery(text string) string {
	words := normalize.Words(text)
	parts := make([]string, 0, len(words))
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.ReplaceAll(w, `"`, "")
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		parts = append(parts, `"`+w+`"`)
	}
	return strings.Join(parts, " OR ")
}

package index

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/normalize"
)

// PostgresConfig holds Postgres lexical index settings.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	TextConfig      string // text search configuration, e.g. "simple"
}

// PostgresIndex is a LexicalIndex backed by a tsvector column ranked with
// ts_rank_cd.
type PostgresIndex struct {
	db         *sql.DB
	textConfig string
}

var _ LexicalIndex = (*PostgresIndex)(nil)

var textConfigPattern = regexp.MustCompile(`^[a-z_]+$`)

// OpenPostgres connects and creates the documents table if needed.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresIndex, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	if cfg.TextConfig == "" {
		cfg.TextConfig = "simple"
	}
	// Interpolated into DDL, so restrict it to an identifier.
	if !textConfigPattern.MatchString(cfg.TextConfig) {
		return nil, fmt.Errorf("invalid text search config: %q", cfg.TextConfig)
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &PostgresIndex{db: db, textConfig: cfg.TextConfig}
	if err := p.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresIndex) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS documents (
			id           TEXT PRIMARY KEY,
			title        TEXT NOT NULL DEFAULT '',
			content      TEXT NOT NULL,
			url          TEXT NOT NULL DEFAULT '',
			domain       TEXT NOT NULL DEFAULT '',
			published_at TIMESTAMPTZ,
			tsv          TSVECTOR GENERATED ALWAYS AS (
				to_tsvector('%[1]s'::regconfig, title || ' ' || content)
			) STORED
		);
		CREATE INDEX IF NOT EXISTS documents_tsv_idx ON documents USING GIN (tsv);
	`, p.textConfig)
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate documents: %w", err)
	}
	return nil
}

// Upsert inserts or replaces documents by ID in one transaction.
func (p *PostgresIndex) Upsert(ctx context.Context, docs ...Document) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO documents (id, title, content, url, domain, published_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			url = EXCLUDED.url,
			domain = EXCLUDED.domain,
			published_at = EXCLUDED.published_at
	`
	for _, d := range docs {
		d, err := prepare(d)
		if err != nil {
			return fmt.Errorf("document %q: %w", d.ID, err)
		}
		if _, err := tx.ExecContext(ctx, query, d.ID, d.Title, d.Content, d.URL, d.Domain, d.PublishedAt); err != nil {
			return fmt.Errorf("upsert %q: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// Search matches any query word; Score is ts_rank_cd.
func (p *PostgresIndex) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	tsq := tsQuery(query)
	if tsq == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, content, url, domain, published_at, ts_rank_cd(tsv, q) AS rank
		FROM documents, to_tsquery($1::regconfig, $2) q
		WHERE tsv @@ q
		ORDER BY rank DESC, id
		LIMIT $3
	`, p.textConfig, tsq, limit)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h         Hit
			published sql.NullTime
		)
		if err := rows.Scan(&h.ID, &h.Title, &h.Content, &h.URL, &h.Domain, &published, &h.Score); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if published.Valid {
			t := published.Time
			h.PublishedAt = &t
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Count returns the number of indexed documents.
func (p *PostgresIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// Close closes the connection pool.
func (p *PostgresIndex) Close() error {
	return p.db.Close()
}

// tsQuery ORs the query words. Words come from the tokenizer, so they carry
// no tsquery operators; joiners are dropped for the same reason.
func tsQuery(text string) string {
	words := normalize.Words(text)
	parts := make([]string, 0, len(words))
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.NewReplacer("-", " ", "'", " ", "’", " ").Replace(w)
		for _, f := range strings.Fields(w) {
			if !seen[f] {
				seen[f] = true
				parts = append(parts, f)
			}
		}
	}
	return strings.Join(parts, " | ")
}

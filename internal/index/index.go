// Package index holds the local lexical and vector indexes searched by the
// hybrid retriever.
package index

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

// Common errors
var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrEmptyDocument     = errors.New("document id and content are required")
)

// Document is a unit of local knowledge.
type Document struct {
	ID          string     `json:"id"`
	Title       string     `json:"title,omitempty"`
	Content     string     `json:"content"`
	URL         string     `json:"url,omitempty"`
	Domain      string     `json:"domain,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Hit is a search match with the index's raw score; higher is better.
type Hit struct {
	Document
	Score float64
}

// LexicalIndex is a keyword index over documents.
type LexicalIndex interface {
	Upsert(ctx context.Context, docs ...Document) error
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// VectorIndex is a nearest-neighbour index over document embeddings.
type VectorIndex interface {
	Upsert(ctx context.Context, entries ...VectorEntry) error
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// VectorEntry is a document with its embedding.
type VectorEntry struct {
	Document
	Vector []float32 `json:"vector"`
}

// prepare validates a document and fills its domain from the URL.
func prepare(d Document) (Document, error) {
	if strings.TrimSpace(d.ID) == "" || strings.TrimSpace(d.Content) == "" {
		return d, ErrEmptyDocument
	}
	if d.Domain == "" {
		d.Domain = Host(d.URL)
	}
	return d, nil
}

// Host returns the lowercased host of rawURL without a leading "www.", or ""
// when rawURL has no host.
func Host(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Package websearch queries a live web search upstream behind a result cache
// and a circuit breaker.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Result is one web search hit.
type Result struct {
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	URL         string     `json:"url"`
	Domain      string     `json:"domain"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Searcher is a web search upstream. No results is an empty slice and a nil
// error; failures use the typed errors below.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

var (
	// ErrQuota means the upstream refused the call for rate or quota reasons.
	ErrQuota = errors.New("web search quota exceeded")
	// ErrCircuitOpen means the breaker short-circuited the call.
	ErrCircuitOpen = errors.New("web search circuit open")
)

// StatusError is an unexpected upstream HTTP status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("web search upstream: HTTP %d %s", e.StatusCode, e.Status)
}

// TransportError is a failure to reach or read from the upstream.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("web search %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Package lexicontest provides a small, fixed lexicon for tests.
package lexicontest

import (
	_ "embed"
	"testing"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/lexicon"
)

//go:embed fixture.json
var fixture []byte

// Fixture returns the raw fixture document.
func Fixture() []byte {
	out := make([]byte, len(fixture))
	copy(out, fixture)
	return out
}

// Store loads the fixture lexicon or fails the test.
func Store(tb testing.TB) *lexicon.Store {
	tb.Helper()
	store, err := lexicon.LoadBytes("fixture.json", fixture)
	if err != nil {
		tb.Fatalf("load fixture lexicon: %v", err)
	}
	return store
}

package lexicon_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/lexicon"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/observability"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shortforms.json")
	write := func(version, canonical string) {
		body := `{"version": "` + version + `", "shortforms": [
		  {"surface_form": "xde", "canonical_form": "` + canonical + `", "category": "shortform", "status": "active"}]}`
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	write("v1", "tiada")

	w, err := lexicon.NewWatcher([]string{dir}, observability.NopLogger(), 50*time.Millisecond)
	require.NoError(t, err)

	var mu sync.Mutex
	var reloaded []*lexicon.Store

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(s *lexicon.Store) {
			mu.Lock()
			reloaded = append(reloaded, s)
			mu.Unlock()
		})
	}()

	// An invalid dataset is rejected and not handed to the owner.
	require.NoError(t, os.WriteFile(path, []byte(`{"shortforms": [{"surface_form": "xde"}]}`), 0o644))
	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, reloaded)
	mu.Unlock()

	write("v2", "tidak ada")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reloaded) > 0 && reloaded[len(reloaded)-1].Version() == "v2"
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	latest := reloaded[len(reloaded)-1]
	mu.Unlock()
	e, ok := latest.Lookup("xde", lexicon.CategoryShortform)
	require.True(t, ok)
	assert.Equal(t, "tidak ada", e.CanonicalForm)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestNewWatcher_MissingSource(t *testing.T) {
	_, err := lexicon.NewWatcher([]string{filepath.Join(t.TempDir(), "nope")}, nil, 0)
	require.Error(t, err)
}

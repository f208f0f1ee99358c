package websearch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveFile(t *testing.T, status int, name string) *httptest.Server {
	t.Helper()
	var body []byte
	if name != "" {
		var err error
		body, err = os.ReadFile(filepath.Join("testdata", name))
		require.NoError(t, err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "perdana menteri malaysia", r.PostForm.Get("q"))
		assert.Equal(t, "my-en", r.PostForm.Get("kl"))
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDuckDuckGo_Search(t *testing.T) {
	srv := serveFile(t, http.StatusOK, "ddg_results.html")
	ddg := NewDuckDuckGo(DuckDuckGoConfig{Endpoint: srv.URL})

	results, err := ddg.Search(context.Background(), "perdana menteri malaysia", 10)
	require.NoError(t, err)
	require.Len(t, results, 3, "ads are skipped")

	wiki := results[0]
	assert.Equal(t, "https://ms.wikipedia.org/wiki/Perdana_Menteri_Malaysia", wiki.URL)
	assert.Equal(t, "Perdana Menteri Malaysia - Wikipedia", wiki.Title)
	assert.Equal(t, "Perdana Menteri Malaysia ialah ketua kerajaan Malaysia.", wiki.Content)
	assert.Equal(t, "ms.wikipedia.org", wiki.Domain)
	require.NotNil(t, wiki.PublishedAt)
	assert.True(t, wiki.PublishedAt.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)))

	assert.Equal(t, "bernama.com", results[1].Domain)
	assert.Equal(t, "Berita terkini Bernama", results[1].Content, "title stands in for a missing snippet")
	assert.Nil(t, results[1].PublishedAt)
	assert.Equal(t, "pmo.gov.my", results[2].Domain)

	limited, err := ddg.Search(context.Background(), "perdana menteri malaysia", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDuckDuckGo_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div class="no-results">No results.</div></body></html>`))
	}))
	defer srv.Close()

	results, err := NewDuckDuckGo(DuckDuckGoConfig{Endpoint: srv.URL}).Search(context.Background(), "zzzz", 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestDuckDuckGo_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		file   string
		check  func(t *testing.T, err error)
	}{
		{"rate limited", http.StatusTooManyRequests, "", func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrQuota)
		}},
		{"forbidden", http.StatusForbidden, "", func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrQuota)
		}},
		{"bot check page", http.StatusAccepted, "ddg_anomaly.html", func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrQuota)
		}},
		{"server error", http.StatusInternalServerError, "", func(t *testing.T, err error) {
			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
			assert.NotErrorIs(t, err, ErrQuota)
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := serveFile(t, tc.status, tc.file)
			_, err := NewDuckDuckGo(DuckDuckGoConfig{Endpoint: srv.URL}).Search(context.Background(), "perdana menteri malaysia", 5)
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestDuckDuckGo_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewDuckDuckGo(DuckDuckGoConfig{Endpoint: url}).Search(context.Background(), "x", 5)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "request", te.Op)
}

func TestResolveRedirect(t *testing.T) {
	tests := map[string]string{
		"//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fa&rut=x": "https://example.com/a",
		"https://example.com/b":                                        "https://example.com/b",
		"//example.com/c":                                              "https://example.com/c",
	}
	for in, want := range tests {
		assert.Equal(t, want, resolveRedirect(in), in)
	}
}

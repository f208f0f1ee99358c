package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: url, APIKey: "test-key", Retry: fastRetry}, nil)
	require.NoError(t, err)
	return c
}

func reply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "gen-1",
		"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
	})
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantModel string
		wantErr   error
	}{
		{"default model", Config{APIKey: "k"}, defaultModel, nil},
		{"custom model", Config{APIKey: "k", Model: "meta/llama"}, "meta/llama", nil},
		{"missing key", Config{}, "", ErrNoAPIKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.cfg, nil)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, c.Model())
			assert.Equal(t, DefaultRetryConfig(), c.retry)
		})
	}
}

func TestClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, defaultModel, req.Model)
		assert.False(t, req.Stream)
		assert.Len(t, req.Messages, 2)

		reply(w, "  Perdana Menteri Malaysia ialah ketua kerajaan. ")
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv.URL).Generate(context.Background(), []Message{
		{Role: "system", Content: "Jawab dalam Bahasa Melayu."},
		{Role: "user", Content: "siapa PM malaysia sekarang?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Perdana Menteri Malaysia ialah ketua kerajaan.", out)
}

func TestClient_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		reply(w, "ok")
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv.URL).Generate(context.Background(), []Message{{Role: "user", Content: "hai"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
		check     func(t *testing.T, err error)
	}{
		{"bad request is not retried", http.StatusBadRequest, 1, func(t *testing.T, err error) {
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
			assert.Equal(t, "invalid model", apiErr.Message)
		}},
		{"rate limit exhausts retries", http.StatusTooManyRequests, 3, func(t *testing.T, err error) {
			assert.ErrorContains(t, err, "after 2 retries")
			assert.ErrorContains(t, err, "HTTP 429")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("invalid model"))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL).Generate(context.Background(), []Message{{Role: "user", Content: "x"}})
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Generate(context.Background(), nil)
	assert.ErrorContains(t, err, "no choices")
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(t, srv.URL).Generate(ctx, []Message{{Role: "user", Content: "x"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second}
	assert.Equal(t, time.Second, calculateBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, calculateBackoff(1, cfg))
	assert.Equal(t, 4*time.Second, calculateBackoff(2, cfg))
	assert.Equal(t, 5*time.Second, calculateBackoff(3, cfg))
}

func TestShouldRetry(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, shouldRetry(code), code)
	}
	for _, code := range []int{400, 401, 403, 404} {
		assert.False(t, shouldRetry(code), code)
	}
}

package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestMemoryClient_GetSetExpiry(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryClient(10, WithClock(clock.Now))
	defer c.Close()
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "web:pm malaysia", []byte("payload"), time.Minute))
	got, err := c.Get(ctx, "web:pm malaysia")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	clock.Advance(59 * time.Second)
	_, err = c.Get(ctx, "web:pm malaysia")
	assert.NoError(t, err)

	clock.Advance(time.Second)
	_, err = c.Get(ctx, "web:pm malaysia")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_ReturnsCopies(t *testing.T) {
	c := NewMemoryClient(10)
	defer c.Close()
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", value, time.Minute))
	value[0] = 'x'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	got[1] = 'y'
	again, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryClient_EvictsSoonestExpiry(t *testing.T) {
	c := NewMemoryClient(2)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, c.Set(ctx, "long", []byte("2"), time.Hour))
	require.NoError(t, c.Set(ctx, "new", []byte("3"), time.Hour))

	assert.Equal(t, 2, c.Len())
	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "long")
	assert.NoError(t, err)

	// Overwriting an existing key does not evict.
	require.NoError(t, c.Set(ctx, "long", []byte("22"), time.Hour))
	assert.Equal(t, 2, c.Len())
}

func TestMemoryClient_DeleteByPrefix(t *testing.T) {
	c := NewMemoryClient(10)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, Key("web", "a"), []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, Key("web", "b"), []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, Key("other", "a"), []byte("3"), time.Minute))

	require.NoError(t, c.DeleteByPrefix(ctx, "web:"))
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Delete(ctx, "other:a"))
	assert.Equal(t, 0, c.Len())
}

func TestMemoryClient_RemoveExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := NewMemoryClient(10, WithClock(clock.Now))
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Hour))
	clock.Advance(2 * time.Second)

	c.removeExpired()
	assert.Equal(t, 1, c.Len())
}

func TestJSONHelpers(t *testing.T) {
	c := NewMemoryClient(10)
	defer c.Close()
	ctx := context.Background()

	type payload struct {
		Query string   `json:"query"`
		URLs  []string `json:"urls"`
	}

	in := payload{Query: "pm malaysia", URLs: []string{"https://a.gov.my"}}
	require.NoError(t, SetJSON(ctx, c, "p", in, time.Minute))

	var out payload
	require.NoError(t, GetJSON(ctx, c, "p", &out))
	assert.Equal(t, in, out)

	assert.ErrorIs(t, GetJSON(ctx, c, "absent", &out), ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "garbage", []byte("{not json"), time.Minute))
	err := GetJSON(ctx, c, "garbage", &out)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_CloseIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewMemoryClient(1)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

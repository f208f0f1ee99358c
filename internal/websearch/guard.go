package websearch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/cache"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/observability"
)

// GuardConfig holds breaker and cache settings.
type GuardConfig struct {
	// FailureThreshold consecutive failures inside Window open the circuit.
	FailureThreshold int
	Window           time.Duration
	// Cooldown is how long the circuit stays open before one probe is allowed.
	Cooldown   time.Duration
	CacheTTL   time.Duration
	MaxResults int
}

// Guard wraps a Searcher with a result cache and a circuit breaker. Cache
// hits never reach the breaker, so they neither count as failures nor as
// half-open probes.
type Guard struct {
	searcher Searcher
	cache    cache.Client
	breaker  *gobreaker.CircuitBreaker[[]Result]
	cfg      GuardConfig
	logger   *observability.Logger
}

var _ Searcher = (*Guard)(nil)

// NewGuard creates a Guard. A nil cache disables caching.
func NewGuard(searcher Searcher, c cache.Client, logger *observability.Logger, cfg GuardConfig) *Guard {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	g := &Guard{
		searcher: searcher,
		cache:    c,
		cfg:      cfg,
		logger:   logger.WithComponent("websearch"),
	}

	threshold := uint32(cfg.FailureThreshold)
	g.breaker = gobreaker.NewCircuitBreaker[[]Result](gobreaker.Settings{
		Name:        "web_search",
		MaxRequests: 1,
		Interval:    cfg.Window,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerGone)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			g.logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("web search circuit state changed")
			observability.ObserveBreakerTransition(to.String())
		},
	})
	return g
}

// Call searches with the configured result limit.
func (g *Guard) Call(ctx context.Context, query string) ([]Result, error) {
	return g.Search(ctx, query, g.cfg.MaxResults)
}

// Search returns cached results when present, otherwise calls the upstream
// through the breaker. While open it returns ErrCircuitOpen without any
// network call.
func (g *Guard) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	key := CacheKey(query, maxResults)
	if key == "" {
		return []Result{}, nil
	}
	log := g.logger.WithContext(ctx)

	if g.cache != nil {
		var cached []Result
		err := cache.GetJSON(ctx, g.cache, key, &cached)
		switch {
		case err == nil:
			observability.ObserveWebCache(true)
			return cached, nil
		case errors.Is(err, cache.ErrCacheMiss):
			observability.ObserveWebCache(false)
		default:
			log.Warn().Err(err).Msg("web search cache read failed")
		}
	}

	// A caller that already gave up never takes a breaker slot, so it can
	// neither trip the circuit nor spend the half-open probe.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results, err := g.breaker.Execute(func() ([]Result, error) {
		probe := g.breaker.State() == gobreaker.StateHalfOpen
		res, err := g.searcher.Search(ctx, query, maxResults)
		if err != nil && !probe && errors.Is(err, context.Canceled) {
			return nil, callerGone{err}
		}
		return res, err
	})
	var gone callerGone
	if errors.As(err, &gone) {
		err = gone.err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		log.Debug().Str("state", g.breaker.State().String()).Msg("web search short-circuited")
		return nil, ErrCircuitOpen
	}
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []Result{}
	}

	if g.cache != nil && g.cfg.CacheTTL > 0 {
		if err := cache.SetJSON(ctx, g.cache, key, results, g.cfg.CacheTTL); err != nil {
			log.Warn().Err(err).Msg("web search cache write failed")
		}
	}
	return results, nil
}

// errCallerGone marks a closed-state call cancelled by its caller. It is
// not counted as an upstream failure. A cancelled half-open probe is, so only
// a probe that actually succeeds closes the circuit.
var errCallerGone = errors.New("caller cancelled")

type callerGone struct{ err error }

func (c callerGone) Error() string { return c.err.Error() }

func (c callerGone) Is(target error) bool { return target == errCallerGone }

func (c callerGone) Unwrap() error { return c.err }

// State returns the breaker state: "closed", "half-open" or "open".
func (g *Guard) State() string {
	return g.breaker.State().String()
}

// Purge drops every cached search result. The breaker is left as is.
func (g *Guard) Purge(ctx context.Context) error {
	if g.cache == nil {
		return nil
	}
	if err := g.cache.DeleteByPrefix(ctx, cacheNamespace+":"); err != nil {
		return fmt.Errorf("purge web search cache: %w", err)
	}
	g.logger.WithContext(ctx).Info().Msg("web search cache purged")
	return nil
}

const cacheNamespace = "web"

// CacheKey is the cache key for a query: lowercased with whitespace folded.
// Empty for a blank query.
func CacheKey(query string, maxResults int) string {
	q := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	if q == "" {
		return ""
	}
	return cache.Key(cacheNamespace, strconv.Itoa(maxResults), q)
}

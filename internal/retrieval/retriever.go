package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/intent"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/observability"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/websearch"
)

// SourceSettings holds per-source weight and timeout.
type SourceSettings struct {
	Weight  float64
	Timeout time.Duration
}

// Config holds retriever settings.
type Config struct {
	TopK           int
	PerSourceLimit int
	Sources        map[SourceName]SourceSettings
	TrustedDomains []string
	BlockedDomains []string
	TrustedBoost   float64
	Freshness      Freshness
	// LocalSufficientScore is the local confidence at or above which web
	// search is skipped for non-factual queries.
	LocalSufficientScore float64
	FallbackMinScore     float64
	// FallbackMinConfidence drops local candidates whose own confidence is
	// below it on ambiguous_fallback turns, before normalization lifts every
	// source's best hit to 1.
	FallbackMinConfidence float64
}

// DefaultConfig returns default retriever settings.
func DefaultConfig() Config {
	return Config{
		TopK:           5,
		PerSourceLimit: 10,
		Sources: map[SourceName]SourceSettings{
			SourceLexical: {Weight: 0.3, Timeout: 300 * time.Millisecond},
			SourceVector:  {Weight: 0.4, Timeout: 500 * time.Millisecond},
			SourceWeb:     {Weight: 0.3, Timeout: 3 * time.Second},
		},
		TrustedBoost:          1.2,
		Freshness:             Freshness{Bonus: 0.2, HalfLife: 30 * 24 * time.Hour},
		LocalSufficientScore:  0.75,
		FallbackMinScore:      0.35,
		FallbackMinConfidence: 0.3,
	}
}

// Request is one retrieval call.
type Request struct {
	Query  string
	K      int
	Reason intent.Reason
}

// Response is the result of a retrieval. Source failures never surface as
// errors; when every invoked source fails Results is empty and Degraded set.
type Response struct {
	Results    []FusedResult   `json:"results"`
	Degraded   bool            `json:"degraded"`
	Outcomes   []SourceOutcome `json:"outcomes"`
	WebInvoked bool            `json:"web_invoked"`
	Latency    time.Duration   `json:"latency"`
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithClock sets the clock used for freshness scoring.
func WithClock(now func() time.Time) Option {
	return func(r *Retriever) { r.now = now }
}

// Retriever fans a query out to its sources and fuses the results.
type Retriever struct {
	logger  *observability.Logger
	sources Sources
	config  Config
	policy  DomainPolicy
	now     func() time.Time
}

// New creates a Retriever.
func New(logger *observability.Logger, sources Sources, config Config, opts ...Option) *Retriever {
	def := DefaultConfig()
	if config.TopK <= 0 {
		config.TopK = def.TopK
	}
	if config.PerSourceLimit <= 0 {
		config.PerSourceLimit = def.PerSourceLimit
	}
	if config.Sources == nil {
		config.Sources = def.Sources
	}
	if config.TrustedBoost <= 0 {
		config.TrustedBoost = def.TrustedBoost
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	r := &Retriever{
		logger:  logger.WithComponent("retrieval"),
		sources: sources,
		config:  config,
		policy:  NewDomainPolicy(config.TrustedDomains, config.BlockedDomains),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type fetchResult struct {
	outcome    SourceOutcome
	candidates []Candidate
}

// Retrieve runs the query against the sources. Factual queries query the web
// concurrently with the local sources; other queries fall back to the web
// only when the local sources are not confident enough.
func (r *Retriever) Retrieve(ctx context.Context, req Request) *Response {
	start := time.Now()
	log := r.logger.WithContext(ctx).WithOperation("retrieve")

	k := req.K
	if k <= 0 {
		k = r.config.TopK
	}
	resp := &Response{Results: []FusedResult{}}
	if strings.TrimSpace(req.Query) == "" {
		resp.Latency = time.Since(start)
		return resp
	}

	local := r.sources.local()
	var fetched []fetchResult

	if req.Reason == intent.ReasonFactual && r.sources.Web != nil {
		resp.WebInvoked = true
		fetched = r.fanOut(ctx, req.Query, append(local, r.sources.Web))
	} else {
		fetched = r.fanOut(ctx, req.Query, local)
		if r.sources.Web != nil {
			confidence := localConfidence(fetched)
			if confidence < r.config.LocalSufficientScore {
				resp.WebInvoked = true
				fetched = append(fetched, r.fanOut(ctx, req.Query, []Source{r.sources.Web})...)
			} else {
				log.Debug().Float64("confidence", confidence).Msg("Local results sufficient, web search skipped")
				fetched = append(fetched, fetchResult{outcome: SourceOutcome{Source: SourceWeb, Outcome: OutcomeSkipped}})
			}
		}
	}

	lists := make([][]Candidate, 0, len(fetched))
	invoked, failed := 0, 0
	for _, f := range fetched {
		resp.Outcomes = append(resp.Outcomes, f.outcome)
		if f.outcome.Outcome == OutcomeSkipped {
			continue
		}
		invoked++
		if f.outcome.Outcome.Failed() {
			failed++
		}
		lists = append(lists, f.candidates)
	}

	if invoked > 0 && failed == invoked {
		resp.Degraded = true
		observability.ObserveDegraded()
		log.Warn().Int("sources", invoked).Msg("All retrieval sources failed")
	}

	minScore := 0.0
	if req.Reason == intent.ReasonAmbiguousFallback {
		minScore = r.config.FallbackMinScore
		for i, list := range lists {
			lists[i] = confident(list, r.config.FallbackMinConfidence)
		}
	}
	resp.Results = Fuse(lists, FusionConfig{
		Weights:      r.weights(),
		Policy:       r.policy,
		TrustedBoost: r.config.TrustedBoost,
		Freshness:    r.config.Freshness,
		MinScore:     minScore,
		K:            k,
		Now:          r.now(),
	})
	resp.Latency = time.Since(start)

	log.Info().
		Str("reason", string(req.Reason)).
		Int("results", len(resp.Results)).
		Bool("web_invoked", resp.WebInvoked).
		Bool("degraded", resp.Degraded).
		Dur("latency", resp.Latency).
		Msg("Retrieval complete")
	return resp
}

// fanOut queries sources concurrently, each under its own timeout. Results
// are returned in the order of sources.
func (r *Retriever) fanOut(ctx context.Context, query string, sources []Source) []fetchResult {
	out := make([]fetchResult, len(sources))
	if len(sources) == 0 {
		return out
	}

	var phase time.Duration
	for _, s := range sources {
		phase = max(phase, r.timeout(s.Name()))
	}
	ctx, cancel := context.WithTimeout(ctx, phase)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range sources {
		i, s := i, s
		g.Go(func() error {
			out[i] = r.fetch(gctx, query, s)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Retriever) fetch(ctx context.Context, query string, s Source) (res fetchResult) {
	name := s.Name()
	ctx, cancel := context.WithTimeout(ctx, r.timeout(name))
	defer cancel()

	start := time.Now()
	defer func() {
		res.outcome.Latency = time.Since(start)
		observability.ObserveSource(string(name), string(res.outcome.Outcome), res.outcome.Latency)
		r.logOutcome(ctx, res.outcome)
	}()

	// The source runs on its own goroutine so one that ignores its context
	// cannot hold the turn past the deadline. Its late result lands in the
	// buffered channel and is dropped.
	type reply struct {
		candidates []Candidate
		err        error
	}
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- reply{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		candidates, err := s.Fetch(ctx, query, r.config.PerSourceLimit)
		done <- reply{candidates: candidates, err: err}
	}()

	var got reply
	select {
	case got = <-done:
		if got.err == nil && ctx.Err() != nil {
			got.err = ctx.Err()
		}
	case <-ctx.Done():
		got.err = ctx.Err()
	}
	if got.err != nil {
		return fetchResult{outcome: failedOutcome(name, classify(got.err), got.err)}
	}

	oc := SourceOutcome{Source: name, Outcome: OutcomeOK, Candidates: len(got.candidates)}
	if len(got.candidates) == 0 {
		oc.Outcome = OutcomeEmpty
	}
	return fetchResult{outcome: oc, candidates: got.candidates}
}

func (r *Retriever) logOutcome(ctx context.Context, oc SourceOutcome) {
	log := r.logger.WithContext(ctx).WithOperation("retrieve")
	switch {
	case oc.Outcome == OutcomeCircuitOpen:
		log.Debug().Str("source", string(oc.Source)).Msg("Source skipped, circuit open")
	case oc.Outcome.Failed():
		log.Warn().
			Str("source", string(oc.Source)).
			Str("outcome", string(oc.Outcome)).
			Err(oc.Err).
			Dur("latency", oc.Latency).
			Msg("Retrieval source failed")
	default:
		log.Debug().
			Str("source", string(oc.Source)).
			Int("candidates", oc.Candidates).
			Dur("latency", oc.Latency).
			Msg("Retrieval source done")
	}
}

func failedOutcome(name SourceName, kind Outcome, err error) SourceOutcome {
	return SourceOutcome{
		Source:  name,
		Outcome: kind,
		Err:     &SourceError{Source: name, Kind: kind, Err: err},
	}
}

func classify(err error) Outcome {
	switch {
	case errors.Is(err, websearch.ErrCircuitOpen):
		return OutcomeCircuitOpen
	case errors.Is(err, websearch.ErrQuota):
		return OutcomeQuota
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeFailure
	}
}

// localConfidence is the best confidence of the local candidates.
func localConfidence(fetched []fetchResult) float64 {
	best := 0.0
	for _, f := range fetched {
		for _, c := range f.candidates {
			if conf, ok := confidence(c); ok {
				best = max(best, conf)
			}
		}
	}
	return best
}

// confidence maps a local candidate's raw score onto [0,1]: cosine for vector
// hits, raw/(1+raw) for lexical scores. Web ranks carry no confidence.
func confidence(c Candidate) (float64, bool) {
	switch c.Source {
	case SourceVector:
		return c.RawScore, true
	case SourceLexical:
		if c.RawScore > 0 {
			return c.RawScore / (1 + c.RawScore), true
		}
		return 0, true
	default:
		return 0, false
	}
}

// confident keeps the candidates whose confidence is at least floor.
// Candidates without one pass through to the fused threshold.
func confident(list []Candidate, floor float64) []Candidate {
	if floor <= 0 {
		return list
	}
	out := list[:0:0]
	for _, c := range list {
		if conf, ok := confidence(c); !ok || conf >= floor {
			out = append(out, c)
		}
	}
	return out
}

func (r *Retriever) timeout(name SourceName) time.Duration {
	if s, ok := r.config.Sources[name]; ok && s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultConfig().Sources[name].Timeout
}

func (r *Retriever) weights() map[SourceName]float64 {
	w := make(map[SourceName]float64, len(r.config.Sources))
	for name, s := range r.config.Sources {
		w[name] = s.Weight
	}
	return w
}

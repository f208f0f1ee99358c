// Package engine assembles the query engine from configuration: lexicon,
// normalizer, dialect analyzer, intent gate, hybrid retriever with its local
// indexes and guarded web search, and the reply generator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/cache"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/config"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/embedding"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/index"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/intent"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/lexicon"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/llm"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/normalize"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/observability"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/pipeline"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/retrieval"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/websearch"
)

// Re-exported so callers need not import internal packages.
type (
	Turn     = pipeline.Turn
	Outcome  = pipeline.Outcome
	Reply    = pipeline.Reply
	Handoff  = pipeline.Handoff
	Decision = intent.Decision
)

// Engine is a ready-to-use query engine. Close releases its indexes and cache.
type Engine struct {
	cfg      *config.Config
	logger   *observability.Logger
	pipeline *pipeline.Pipeline

	cache    cache.Client
	lexical  index.LexicalIndex
	vector   *index.MemoryVectorIndex
	embedder embedding.Embedder
	guard    *websearch.Guard
	closers  []io.Closer
}

type options struct {
	logger    *observability.Logger
	searcher  websearch.Searcher
	embedder  embedding.Embedder
	generator llm.Generator
	skipSeed  bool
	lexOnly   bool
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger. The default logs per the observability config.
func WithLogger(l *observability.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSearcher replaces the DuckDuckGo upstream. It is still wrapped by the
// cache and circuit breaker.
func WithSearcher(s websearch.Searcher) Option {
	return func(o *options) { o.searcher = s }
}

// WithEmbedder replaces the configured embedder.
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithGenerator replaces the configured reply generator.
func WithGenerator(g llm.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithoutSeed skips loading the seed corpus into empty indexes.
func WithoutSeed() Option {
	return func(o *options) { o.skipSeed = true }
}

// LexiconOnly builds just the lexicon-backed stages. Understand then never
// retrieves and no index, cache or network client is opened.
func LexiconOnly() Option {
	return func(o *options) { o.lexOnly = true }
}

// New builds an engine. A lexicon that fails validation is an error; the
// caller decides whether that is fatal.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Engine, err error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = observability.NewLogger(observability.LogConfig{
			Level:       cfg.Observability.LogLevel,
			Format:      cfg.Observability.LogFormat,
			ServiceName: cfg.Observability.ServiceName,
		})
	}

	e := &Engine{cfg: cfg, logger: o.logger}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	store, err := lexicon.Load(cfg.Lexicon.Paths, lexicon.WithMinActiveTerms(cfg.Lexicon.MinActiveTerms))
	if err != nil {
		return nil, fmt.Errorf("load lexicon: %w", err)
	}
	st := store.Stats()
	e.logger.Info().
		Str("version", st.Version).
		Int("active_dialects", st.ActiveDialects).
		Strs("sources", store.Sources()).
		Msg("Lexicon loaded")

	if o.lexOnly {
		e.pipeline = pipeline.New(store, nil, o.generator, e.logger, pipelineConfig(cfg))
		return e, nil
	}

	if err := e.openCache(ctx); err != nil {
		return nil, err
	}
	if err := e.openIndexes(ctx, o.embedder); err != nil {
		return nil, err
	}
	if !o.skipSeed {
		if err := e.seed(ctx); err != nil {
			return nil, err
		}
	}

	retriever := retrieval.New(e.logger, e.sources(o.searcher), retrievalConfig(cfg))

	generator := o.generator
	if generator == nil && cfg.LLM.APIKey != "" {
		client, err := llm.NewClient(llm.Config{
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			APIKey:      cfg.LLM.APIKey,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
			Retry: llm.RetryConfig{
				MaxRetries:     cfg.LLM.MaxRetries,
				InitialBackoff: time.Second,
				MaxBackoff:     30 * time.Second,
			},
		}, e.logger)
		if err != nil {
			return nil, fmt.Errorf("create llm client: %w", err)
		}
		generator = client
	}

	e.pipeline = pipeline.New(store, retriever, generator, e.logger, pipelineConfig(cfg))
	return e, nil
}

func (e *Engine) openCache(ctx context.Context) error {
	switch e.cfg.Cache.Driver {
	case "redis":
		rc, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     e.cfg.Cache.Redis.Addr,
			Password: e.cfg.Cache.Redis.Password,
			DB:       e.cfg.Cache.Redis.DB,
			PoolSize: e.cfg.Cache.Redis.PoolSize,
		})
		if err != nil {
			return fmt.Errorf("open redis cache: %w", err)
		}
		e.cache = rc
	default:
		e.cache = cache.NewMemoryClient(e.cfg.Cache.MaxEntries)
	}
	e.closers = append(e.closers, e.cache)
	return nil
}

func (e *Engine) openIndexes(ctx context.Context, embedder embedding.Embedder) error {
	ic := e.cfg.Index
	switch ic.LexicalDriver {
	case "postgres":
		pg, err := index.OpenPostgres(ctx, index.PostgresConfig{
			DSN:             ic.Postgres.DSN,
			MaxOpenConns:    ic.Postgres.MaxOpenConns,
			MaxIdleConns:    ic.Postgres.MaxIdleConns,
			ConnMaxLifetime: ic.Postgres.ConnMaxLifetime,
			TextConfig:      ic.Postgres.TextConfig,
		})
		if err != nil {
			return fmt.Errorf("open postgres index: %w", err)
		}
		e.lexical = pg
	default:
		lite, err := index.OpenSQLite(ctx, index.SQLiteConfig{
			Path:         ic.SQLite.Path,
			MaxOpenConns: ic.SQLite.MaxOpenConns,
		})
		if err != nil {
			return fmt.Errorf("open sqlite index: %w", err)
		}
		e.lexical = lite
	}
	e.closers = append(e.closers, e.lexical)

	if embedder == nil {
		ec := e.cfg.Embedding
		if ec.APIKey != "" {
			client, err := embedding.NewClient(embedding.Config{
				APIKey:    ec.APIKey,
				Model:     ec.Model,
				BaseURL:   ec.BaseURL,
				Dimension: ec.Dimension,
				Timeout:   ec.Timeout,
			})
			if err != nil {
				return fmt.Errorf("create embedding client: %w", err)
			}
			embedder = client
		} else {
			e.logger.Warn().Msg("No embedding API key, using local hash embeddings")
			embedder = embedding.NewHashEmbedder(ec.Dimension)
		}
	}
	e.embedder = embedder

	if ic.VectorPath != "" {
		if _, err := os.Stat(ic.VectorPath); err == nil {
			vec, err := index.LoadMemoryVectorIndex(ctx, ic.VectorPath)
			if err != nil {
				return fmt.Errorf("load vector index: %w", err)
			}
			if vec.Dimension() != 0 && vec.Dimension() != embedder.Dimension() {
				return fmt.Errorf("vector index %s: %w: index %d, embedder %d",
					ic.VectorPath, index.ErrDimensionMismatch, vec.Dimension(), embedder.Dimension())
			}
			e.vector = vec
		}
	}
	if e.vector == nil {
		e.vector = index.NewMemoryVectorIndex(embedder.Dimension())
	}
	e.closers = append(e.closers, e.vector)
	return nil
}

// seed loads the seed corpus when the lexical index is empty.
func (e *Engine) seed(ctx context.Context) error {
	path := e.cfg.Index.SeedPath
	if path == "" {
		return nil
	}
	n, err := e.lexical.Count(ctx)
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}
	if n > 0 {
		if vn, _ := e.vector.Count(ctx); vn > 0 {
			return nil
		}
	}
	docs, err := index.LoadSeed(path)
	if err != nil {
		return err
	}
	return e.BuildIndex(ctx, docs, nil)
}

// BuildIndex writes docs to the lexical and vector indexes and saves the
// vector snapshot when a vector path is configured. progress may be nil.
func (e *Engine) BuildIndex(ctx context.Context, docs []index.Document, progress func(done, total int)) error {
	if e.lexical == nil {
		return errors.New("engine has no indexes")
	}
	var opts []index.PopulateOption
	if progress != nil {
		opts = append(opts, index.WithProgress(progress))
	}
	if err := index.Populate(ctx, docs, e.lexical, e.vector, e.embedder, opts...); err != nil {
		return fmt.Errorf("populate indexes: %w", err)
	}
	if path := e.cfg.Index.VectorPath; path != "" {
		if err := e.vector.Save(path); err != nil {
			return fmt.Errorf("save vector index: %w", err)
		}
	}
	e.logger.Info().Int("documents", len(docs)).Msg("Indexes populated")
	return nil
}

func (e *Engine) sources(searcher websearch.Searcher) retrieval.Sources {
	var s retrieval.Sources
	if e.cfg.Source(config.SourceLexical).Enabled {
		s.Lexical = retrieval.LexicalSource(e.lexical)
	}
	if e.cfg.Source(config.SourceVector).Enabled {
		s.Vector = retrieval.VectorSource(e.embedder, e.vector)
	}
	if e.cfg.Source(config.SourceWeb).Enabled {
		ws := e.cfg.WebSearch
		if searcher == nil {
			searcher = websearch.NewDuckDuckGo(websearch.DuckDuckGoConfig{
				Endpoint:  ws.Endpoint,
				UserAgent: ws.UserAgent,
				Timeout:   ws.Timeout,
			})
		}
		e.guard = websearch.NewGuard(searcher, e.cache, e.logger, websearch.GuardConfig{
			FailureThreshold: ws.Breaker.FailureThreshold,
			Window:           ws.Breaker.Window,
			Cooldown:         ws.Breaker.Cooldown,
			CacheTTL:         ws.CacheTTL,
			MaxResults:       ws.MaxResults,
		})
		s.Web = retrieval.WebSource(e.guard)
	}
	return s
}

func retrievalConfig(cfg *config.Config) retrieval.Config {
	rc := cfg.Retrieval
	sources := make(map[retrieval.SourceName]retrieval.SourceSettings, len(rc.Sources))
	for name, s := range rc.Sources {
		sources[retrieval.SourceName(name)] = retrieval.SourceSettings{Weight: s.Weight, Timeout: s.Timeout}
	}
	return retrieval.Config{
		TopK:                  rc.TopK,
		PerSourceLimit:        rc.PerSourceLimit,
		Sources:               sources,
		TrustedDomains:        rc.TrustedDomains,
		BlockedDomains:        rc.BlockedDomains,
		TrustedBoost:          rc.TrustedBoost,
		Freshness:             retrieval.Freshness{Bonus: rc.FreshnessBonus, HalfLife: rc.FreshnessHalfLife},
		LocalSufficientScore:  rc.LocalSufficientScore,
		FallbackMinScore:      rc.FallbackMinScore,
		FallbackMinConfidence: rc.FallbackMinConfidence,
	}
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	ic := cfg.Intent
	pc := pipeline.Config{
		Normalizer: []normalize.Option{normalize.WithMaxPasses(cfg.Normalizer.MaxPasses)},
		Gate: intent.Config{
			Greetings:        ic.Greetings,
			SmallTalk:        ic.SmallTalk,
			Interrogatives:   ic.Interrogatives,
			FactualKeywords:  ic.FactualKeywords,
			DateReferences:   ic.DateReferences,
			CasualMarkers:    ic.CasualMarkers,
			OpinionMarkers:   ic.OpinionMarkers,
			FollowUps:        ic.FollowUps,
			MaxFollowUpWords: ic.MaxFollowUpWords,
		},
		K: cfg.Retrieval.TopK,
	}
	if len(cfg.Normalizer.Stoplist) > 0 {
		pc.Normalizer = append(pc.Normalizer, normalize.WithStoplist(cfg.Normalizer.Stoplist))
	}
	return pc
}

// Analyze runs normalization, dialect analysis and the intent gate without
// retrieving.
func (e *Engine) Analyze(ctx context.Context, turn Turn) (*Outcome, error) {
	return e.pipeline.Analyze(ctx, turn)
}

// Understand analyzes a turn and retrieves context when warranted.
func (e *Engine) Understand(ctx context.Context, turn Turn) (*Outcome, error) {
	return e.pipeline.Understand(ctx, turn)
}

// Respond understands a turn and generates a reply.
func (e *Engine) Respond(ctx context.Context, turn Turn) (*Reply, error) {
	return e.pipeline.Respond(ctx, turn)
}

// Lexicon returns the lexicon store in use.
func (e *Engine) Lexicon() *lexicon.Store {
	return e.pipeline.Store()
}

// WebCircuitState returns the web search breaker state, or "" when web
// search is disabled.
func (e *Engine) WebCircuitState() string {
	if e.guard == nil {
		return ""
	}
	return e.guard.State()
}

// PurgeWebCache drops cached web search results. A no-op when web search is
// disabled.
func (e *Engine) PurgeWebCache(ctx context.Context) error {
	if e.guard == nil {
		return nil
	}
	return e.guard.Purge(ctx)
}

// Watch reloads the lexicon when its files change, until ctx is done.
// Rejected reloads keep the current lexicon.
func (e *Engine) Watch(ctx context.Context) error {
	w, err := lexicon.NewWatcher(e.cfg.Lexicon.Paths, e.logger, 0,
		lexicon.WithMinActiveTerms(e.cfg.Lexicon.MinActiveTerms))
	if err != nil {
		return err
	}
	err = w.Run(ctx, e.pipeline.Reload)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases resources in reverse order of acquisition.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

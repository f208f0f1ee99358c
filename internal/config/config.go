// Package config provides unified configuration loading for the query engine.
// Supports YAML files, .env files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the query engine.
type Config struct {
	Lexicon       LexiconConfig       `yaml:"lexicon"`
	Normalizer    NormalizerConfig    `yaml:"normalizer"`
	Intent        IntentConfig        `yaml:"intent"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Index         IndexConfig         `yaml:"index"`
	WebSearch     WebSearchConfig     `yaml:"web_search"`
	Cache         CacheConfig         `yaml:"cache"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	LLM           LLMConfig           `yaml:"llm"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// LexiconConfig holds lexicon dataset settings.
type LexiconConfig struct {
	Paths          []string `yaml:"paths"`
	MinActiveTerms int      `yaml:"min_active_terms"`
	Watch          bool     `yaml:"watch"`
}

// NormalizerConfig holds text normalizer settings.
type NormalizerConfig struct {
	MaxPasses int      `yaml:"max_passes"`
	Stoplist  []string `yaml:"stoplist"` // replaces the built-in discourse stoplist when set
}

// IntentConfig holds keyword overrides for the intent gate. Empty lists keep the defaults.
type IntentConfig struct {
	Greetings        []string `yaml:"greetings"`
	SmallTalk        []string `yaml:"small_talk"`
	Interrogatives   []string `yaml:"interrogatives"`
	FactualKeywords  []string `yaml:"factual_keywords"`
	DateReferences   []string `yaml:"date_references"`
	CasualMarkers    []string `yaml:"casual_markers"`
	OpinionMarkers   []string `yaml:"opinion_markers"`
	FollowUps        []string `yaml:"follow_ups"`
	MaxFollowUpWords int      `yaml:"max_follow_up_words"`
}

// RetrievalConfig holds hybrid retrieval settings.
type RetrievalConfig struct {
	TopK                  int                     `yaml:"top_k"`
	PerSourceLimit        int                     `yaml:"per_source_limit"`
	Sources               map[string]SourceConfig `yaml:"sources"`
	TrustedDomains        []string                `yaml:"trusted_domains"`
	BlockedDomains        []string                `yaml:"blocked_domains"`
	TrustedBoost          float64                 `yaml:"trusted_boost"`
	FreshnessBonus        float64                 `yaml:"freshness_bonus"`
	FreshnessHalfLife     time.Duration           `yaml:"freshness_half_life"`
	LocalSufficientScore  float64                 `yaml:"local_sufficient_score"`
	FallbackMinScore      float64                 `yaml:"fallback_min_score"`
	FallbackMinConfidence float64                 `yaml:"fallback_min_confidence"`
}

// SourceConfig holds per-source retrieval settings.
type SourceConfig struct {
	Enabled bool          `yaml:"enabled"`
	Weight  float64       `yaml:"weight"`
	Timeout time.Duration `yaml:"timeout"`
}

// IndexConfig holds local index settings.
type IndexConfig struct {
	LexicalDriver string         `yaml:"lexical_driver"` // sqlite or postgres
	SQLite        SQLiteConfig   `yaml:"sqlite"`
	Postgres      PostgresConfig `yaml:"postgres"`
	VectorPath    string         `yaml:"vector_path"`
	SeedPath      string         `yaml:"seed_path"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	TextConfig      string        `yaml:"text_config"` // to_tsvector configuration
}

// WebSearchConfig holds live web search settings.
type WebSearchConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	UserAgent  string        `yaml:"user_agent"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
	Breaker    BreakerConfig `yaml:"breaker"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Window           time.Duration `yaml:"window"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Driver     string      `yaml:"driver"` // memory or redis
	MaxEntries int         `yaml:"max_entries"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"-"`
	Dimension int           `yaml:"dimension"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LLMConfig holds generation collaborator settings.
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"-"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Source names used as keys of RetrievalConfig.Sources.
const (
	SourceLexical = "lexical"
	SourceVector  = "vector"
	SourceWeb     = "web"
)

// Load reads configuration from a YAML file and applies .env and environment overrides.
func Load(path string) (*Config, error) {
	// Missing .env files are fine.
	_ = godotenv.Load()
	if path != "" {
		_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))
	}

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		defaultPaths := cfg.Lexicon.Paths
		cfg.Lexicon.Paths = nil

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		// Paths from the file are relative to the file.
		if len(cfg.Lexicon.Paths) == 0 {
			cfg.Lexicon.Paths = defaultPaths
		} else {
			for i, p := range cfg.Lexicon.Paths {
				cfg.Lexicon.Paths[i] = ResolveRelativePath(path, p)
			}
		}
		if cfg.Index.SeedPath != "" {
			cfg.Index.SeedPath = ResolveRelativePath(path, cfg.Index.SeedPath)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Lexicon: LexiconConfig{
			Paths:          []string{"data/lexicon"},
			MinActiveTerms: 5,
		},
		Normalizer: NormalizerConfig{
			MaxPasses: 4,
		},
		Retrieval: RetrievalConfig{
			TopK:           5,
			PerSourceLimit: 10,
			Sources: map[string]SourceConfig{
				SourceLexical: {Enabled: true, Weight: 0.3, Timeout: 500 * time.Millisecond},
				SourceVector:  {Enabled: true, Weight: 0.4, Timeout: 2 * time.Second},
				SourceWeb:     {Enabled: true, Weight: 0.3, Timeout: 4 * time.Second},
			},
			TrustedDomains: []string{
				"gov.my", "bernama.com", "wikipedia.org", "parlimen.gov.my",
				"dosm.gov.my", "bnm.gov.my",
			},
			BlockedDomains:        []string{},
			TrustedBoost:          1.3,
			FreshnessBonus:        0.2,
			FreshnessHalfLife:     30 * 24 * time.Hour,
			LocalSufficientScore:  0.75,
			FallbackMinScore:      0.35,
			FallbackMinConfidence: 0.3,
		},
		Index: IndexConfig{
			LexicalDriver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/query-engine.db",
				MaxOpenConns: 1,
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
				TextConfig:      "simple",
			},
		},
		WebSearch: WebSearchConfig{
			Endpoint:   "https://html.duckduckgo.com/html/",
			UserAgent:  "Mozilla/5.0 (compatible; malaya-query-engine/1.0)",
			MaxResults: 5,
			Timeout:    4 * time.Second,
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				Window:           60 * time.Second,
				Cooldown:         30 * time.Second,
			},
			CacheTTL: 10 * time.Minute,
		},
		Cache: CacheConfig{
			Driver:     "memory",
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Embedding: EmbeddingConfig{
			BaseURL:   "https://openrouter.ai/api/v1",
			Model:     "qwen/qwen3-embedding-8b",
			Dimension: 768,
			Timeout:   30 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "google/gemini-2.5-flash",
			Temperature: 0.4,
			MaxTokens:   1024,
			Timeout:     60 * time.Second,
			MaxRetries:  3,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "query-engine",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.Lexicon.Paths) == 0 {
		return fmt.Errorf("lexicon.paths must not be empty")
	}

	if c.Lexicon.MinActiveTerms < 1 {
		return fmt.Errorf("lexicon.min_active_terms must be >= 1")
	}

	if c.Normalizer.MaxPasses < 1 {
		return fmt.Errorf("normalizer.max_passes must be >= 1")
	}

	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 50 {
		return fmt.Errorf("retrieval.top_k must be between 1 and 50")
	}

	for name, src := range c.Retrieval.Sources {
		switch name {
		case SourceLexical, SourceVector, SourceWeb:
		default:
			return fmt.Errorf("unknown retrieval source: %s", name)
		}
		if src.Weight < 0 {
			return fmt.Errorf("retrieval source %s: weight must be >= 0", name)
		}
		if src.Enabled && src.Timeout <= 0 {
			return fmt.Errorf("retrieval source %s: timeout must be positive", name)
		}
	}

	if c.Retrieval.TrustedBoost < 1 {
		return fmt.Errorf("retrieval.trusted_boost must be >= 1")
	}

	if c.Retrieval.FreshnessBonus < 0 {
		return fmt.Errorf("retrieval.freshness_bonus must be >= 0")
	}

	if c.Retrieval.FreshnessBonus > 0 && c.Retrieval.FreshnessHalfLife <= 0 {
		return fmt.Errorf("retrieval.freshness_half_life must be positive")
	}

	if !inUnitRange(c.Retrieval.LocalSufficientScore) || !inUnitRange(c.Retrieval.FallbackMinScore) ||
		!inUnitRange(c.Retrieval.FallbackMinConfidence) {
		return fmt.Errorf("retrieval thresholds must be within [0, 1]")
	}

	if c.Index.LexicalDriver != "sqlite" && c.Index.LexicalDriver != "postgres" {
		return fmt.Errorf("invalid lexical index driver: %s", c.Index.LexicalDriver)
	}

	if c.Index.LexicalDriver == "postgres" && c.Index.Postgres.DSN == "" {
		return fmt.Errorf("index.postgres.dsn is required for the postgres driver")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.WebSearch.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("web_search.breaker.failure_threshold must be >= 1")
	}

	if c.WebSearch.Breaker.Cooldown <= 0 {
		return fmt.Errorf("web_search.breaker.cooldown must be positive")
	}

	if c.WebSearch.MaxResults < 1 {
		return fmt.Errorf("web_search.max_results must be >= 1")
	}

	return nil
}

// Source returns the settings for a retrieval source; unknown names are disabled.
func (c *Config) Source(name string) SourceConfig {
	if src, ok := c.Retrieval.Sources[name]; ok {
		return src
	}
	return SourceConfig{}
}

// LexicalDSN returns the connection string for the configured lexical index.
func (c *Config) LexicalDSN() string {
	if c.Index.LexicalDriver == "sqlite" {
		return c.Index.SQLite.Path
	}
	return c.Index.Postgres.DSN
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LEXICON_PATHS"); v != "" {
		cfg.Lexicon.Paths = splitList(v)
	}

	if v := os.Getenv("LEXICON_MIN_ACTIVE_TERMS"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			cfg.Lexicon.MinActiveTerms = n
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Index.LexicalDriver = "sqlite"
			cfg.Index.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Index.LexicalDriver = "postgres"
			cfg.Index.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = v
	}

	if v := os.Getenv("WEB_SEARCH_ENDPOINT"); v != "" {
		cfg.WebSearch.Endpoint = v
	}

	if v := os.Getenv("WEB_SEARCH_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			web := cfg.Retrieval.Sources[SourceWeb]
			web.Enabled = enabled
			cfg.Retrieval.Sources[SourceWeb] = web
		}
	}

	if v := os.Getenv("RETRIEVAL_BLOCKED_DOMAINS"); v != "" {
		cfg.Retrieval.BlockedDomains = append(cfg.Retrieval.BlockedDomains, splitList(v)...)
	}

	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
		cfg.LLM.APIKey = v
	}

	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}

// Package pipeline runs one conversational turn through normalization,
// dialect analysis, the intent gate and, when warranted, hybrid retrieval,
// and hands the result to the reply generator.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/dialect"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/intent"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/lexicon"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/llm"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/normalize"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/observability"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/retrieval"
)

// ErrNoGenerator is returned by Respond when no generator is configured.
var ErrNoGenerator = errors.New("no reply generator configured")

// Retriever is the retrieval collaborator.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) *retrieval.Response
}

// Turn is one user message with the conversation so far, oldest first.
type Turn struct {
	Text    string        `json:"text"`
	History []intent.Turn `json:"history,omitempty"`
}

// ContextItem is one retrieved passage handed to the generator.
type ContextItem struct {
	DocID   string         `json:"doc_id"`
	Title   string         `json:"title,omitempty"`
	Content string         `json:"content"`
	URL     string         `json:"url,omitempty"`
	Sources []string       `json:"sources"`
	Tier    retrieval.Tier `json:"domain_tier"`
	Score   float64        `json:"score"`
}

// Handoff is what the generator receives for a turn.
type Handoff struct {
	NormalizedText string          `json:"normalized_text"`
	Context        []ContextItem   `json:"context"`
	DialectHint    string          `json:"dialect_hint,omitempty"`
	ParticleHint   string          `json:"particle_hint,omitempty"`
	Degraded       bool            `json:"degraded"`
	Decision       intent.Decision `json:"decision"`
}

// Outcome is the full analysis of a turn.
type Outcome struct {
	TraceID       string                `json:"trace_id"`
	Normalization normalize.Result      `json:"normalization"`
	Dialects      []dialect.Match       `json:"dialects"`
	Particles     []dialect.ParticleHit `json:"particles"`
	Decision      intent.Decision       `json:"decision"`
	// Retrieval is nil when the gate skipped retrieval.
	Retrieval *retrieval.Response `json:"retrieval,omitempty"`
	Handoff   Handoff             `json:"handoff"`
	Latency   time.Duration       `json:"latency"`
}

// Reply is the generated answer for a turn.
type Reply struct {
	TraceID  string  `json:"trace_id"`
	Text     string  `json:"text"`
	Degraded bool    `json:"degraded"`
	Handoff  Handoff `json:"handoff"`
}

// Config holds pipeline settings.
type Config struct {
	Normalizer []normalize.Option
	Gate       intent.Config
	// K overrides the retriever's result count when > 0.
	K int
	// HistoryTurns bounds how many prior turns are used for context.
	HistoryTurns int
}

type components struct {
	store      *lexicon.Store
	normalizer *normalize.Normalizer
	analyzer   *dialect.Analyzer
	gate       *intent.Gate
}

// Pipeline runs turns. The lexicon-backed components are swapped as a unit on
// Reload; in-flight turns keep the set they started with.
type Pipeline struct {
	comps     atomic.Pointer[components]
	cfg       Config
	retriever Retriever
	generator llm.Generator
	logger    *observability.Logger
}

// New creates a pipeline. retriever and generator may be nil: retrieval is
// then skipped and Respond fails with ErrNoGenerator.
func New(store *lexicon.Store, retriever Retriever, generator llm.Generator, logger *observability.Logger, cfg Config) *Pipeline {
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 6
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	p := &Pipeline{
		cfg:       cfg,
		retriever: retriever,
		generator: generator,
		logger:    logger.WithComponent("pipeline"),
	}
	p.Reload(store)
	return p
}

// Reload swaps in components built on store.
func (p *Pipeline) Reload(store *lexicon.Store) {
	p.comps.Store(&components{
		store:      store,
		normalizer: normalize.New(store, p.cfg.Normalizer...),
		analyzer:   dialect.New(store),
		gate:       intent.NewGate(store, p.cfg.Gate),
	})
}

// Store returns the lexicon store currently in use.
func (p *Pipeline) Store() *lexicon.Store {
	return p.comps.Load().store
}

// Analyze normalizes a turn, detects dialect and particles and runs the
// intent gate. It never retrieves.
func (p *Pipeline) Analyze(ctx context.Context, turn Turn) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, traceID := withTrace(ctx)
	c := p.comps.Load()

	history := recent(turn.History, p.cfg.HistoryTurns)
	norm := c.normalizer.NormalizeWithHints(turn.Text, normalize.Hints{Context: contextWords(history)})
	dialects := c.analyzer.DetectDialect(turn.Text)
	particles := c.analyzer.AnalyzeParticles(turn.Text)

	for i, h := range history {
		history[i].Text = c.normalizer.Normalize(h.Text).StandardForm
	}
	decision := c.gate.Decide(intent.Input{
		Normalized:    norm.StandardForm,
		RetrievalForm: norm.RetrievalForm,
		Dialects:      dialects,
		Particles:     particles,
		Recent:        history,
	})

	out := &Outcome{
		TraceID:       traceID,
		Normalization: norm,
		Dialects:      dialects,
		Particles:     particles,
		Decision:      decision,
	}
	out.Handoff = buildHandoff(out)
	out.Latency = time.Since(start)

	p.logger.WithContext(ctx).WithOperation("analyze").Debug().
		Str("reason", string(decision.Reason)).
		Float64("confidence", decision.Confidence).
		Strs("signals", decision.Signals).
		Int("substitutions", len(norm.Substitutions)).
		Msg("Turn analyzed")
	return out, nil
}

// Understand analyzes a turn and retrieves context when the gate asks for it.
func (p *Pipeline) Understand(ctx context.Context, turn Turn) (*Outcome, error) {
	start := time.Now()
	ctx, _ = withTrace(ctx)

	out, err := p.Analyze(ctx, turn)
	if err != nil {
		return nil, err
	}
	observability.ObserveIntent(string(out.Decision.Reason))

	if out.Decision.ShouldRetrieve && p.retriever != nil {
		out.Retrieval = p.retriever.Retrieve(ctx, retrieval.Request{
			Query:  out.Normalization.RetrievalForm,
			K:      p.cfg.K,
			Reason: out.Decision.Reason,
		})
		out.Handoff = buildHandoff(out)
	}
	out.Latency = time.Since(start)

	p.logger.WithContext(ctx).WithOperation("understand").Info().
		Str("reason", string(out.Decision.Reason)).
		Bool("retrieve", out.Decision.ShouldRetrieve).
		Int("context_items", len(out.Handoff.Context)).
		Bool("degraded", out.Handoff.Degraded).
		Dur("latency", out.Latency).
		Msg("Turn understood")
	return out, nil
}

// Respond understands a turn and asks the generator for a reply.
func (p *Pipeline) Respond(ctx context.Context, turn Turn) (*Reply, error) {
	if p.generator == nil {
		return nil, ErrNoGenerator
	}
	ctx, traceID := withTrace(ctx)

	out, err := p.Understand(ctx, turn)
	if err != nil {
		return nil, err
	}

	text, err := p.generator.Generate(ctx, Messages(out.Handoff, turn, p.cfg.HistoryTurns))
	if err != nil {
		p.logger.WithContext(ctx).WithOperation("respond").Error().Err(err).Msg("Reply generation failed")
		return nil, fmt.Errorf("generate reply: %w", err)
	}
	return &Reply{
		TraceID:  traceID,
		Text:     text,
		Degraded: out.Handoff.Degraded,
		Handoff:  out.Handoff,
	}, nil
}

func buildHandoff(out *Outcome) Handoff {
	h := Handoff{
		NormalizedText: out.Normalization.StandardForm,
		Context:        []ContextItem{},
		DialectHint:    dialect.DialectHint(out.Dialects),
		ParticleHint:   dialect.ParticleHint(out.Particles),
		Decision:       out.Decision,
	}
	if out.Retrieval == nil {
		return h
	}
	h.Degraded = out.Retrieval.Degraded
	for _, r := range out.Retrieval.Results {
		sources := make([]string, len(r.ContributingSources))
		for i, s := range r.ContributingSources {
			sources[i] = string(s)
		}
		h.Context = append(h.Context, ContextItem{
			DocID:   r.DocID,
			Title:   r.Title,
			Content: r.Content,
			URL:     r.URL,
			Sources: sources,
			Tier:    r.DomainTier,
			Score:   r.FusedScore,
		})
	}
	return h
}

// withTrace returns ctx carrying a trace ID, minting one when absent.
func withTrace(ctx context.Context) (context.Context, string) {
	if id := observability.TraceIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return observability.ContextWithTraceID(ctx, id), id
}

// recent returns a copy of the last n turns.
func recent(history []intent.Turn, n int) []intent.Turn {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	return append([]intent.Turn(nil), history...)
}

func contextWords(history []intent.Turn) []string {
	var words []string
	for _, h := range history {
		words = append(words, normalize.Words(h.Text)...)
	}
	return words
}

// Messages renders a handoff as chat messages: a system message carrying the
// hints and retrieved context, the recent history, then the user's text.
func Messages(h Handoff, turn Turn, historyTurns int) []llm.Message {
	var sb strings.Builder
	sb.WriteString("Anda pembantu perbualan Bahasa Melayu. Balas dalam gaya dan loghat pengguna.\n")
	fmt.Fprintf(&sb, "Teks ternormal: %s\n", h.NormalizedText)
	if h.DialectHint != "" {
		fmt.Fprintf(&sb, "Petunjuk loghat: %s\n", h.DialectHint)
	}
	if h.ParticleHint != "" {
		fmt.Fprintf(&sb, "Petunjuk nada: %s\n", h.ParticleHint)
	}
	if len(h.Context) > 0 {
		sb.WriteString("Gunakan konteks berikut jika relevan:\n")
		for i, c := range h.Context {
			fmt.Fprintf(&sb, "[%d] %s", i+1, c.Content)
			if c.URL != "" {
				fmt.Fprintf(&sb, " (%s)", c.URL)
			}
			sb.WriteByte('\n')
		}
	}
	if h.Degraded {
		sb.WriteString("Carian maklumat gagal; jawab berdasarkan pengetahuan sedia ada dan nyatakan ketidakpastian.\n")
	}

	msgs := []llm.Message{{Role: "system", Content: strings.TrimRight(sb.String(), "\n")}}
	for _, t := range recent(turn.History, historyTurns) {
		role := t.Role
		if role != intent.RoleAssistant {
			role = intent.RoleUser
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Text})
	}
	return append(msgs, llm.Message{Role: intent.RoleUser, Content: turn.Text})
}

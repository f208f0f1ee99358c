// Package intent decides per turn whether a query needs external retrieval.
package intent

import (
	"strings"
	"unicode"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/dialect"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/lexicon"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/normalize"
)

// Reason is the rule that produced a decision.
type Reason string

const (
	ReasonGreeting          Reason = "greeting"
	ReasonChitchat          Reason = "chitchat"
	ReasonOpinion           Reason = "opinion"
	ReasonFactual           Reason = "factual"
	ReasonAmbiguousFallback Reason = "ambiguous_fallback"
)

// Decision is computed once per turn and never cached.
type Decision struct {
	ShouldRetrieve bool     `json:"should_retrieve"`
	Reason         Reason   `json:"reason_code"`
	Confidence     float64  `json:"confidence"`
	Signals        []string `json:"signals,omitempty"`
}

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a prior conversation turn, oldest first.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Input is everything the gate looks at for one turn.
type Input struct {
	Normalized    string
	RetrievalForm string
	Dialects      []dialect.Match
	Particles     []dialect.ParticleHit
	Recent        []Turn
}

// Config overrides the keyword sets. Empty lists keep the defaults.
type Config struct {
	Greetings       []string
	SmallTalk       []string
	Interrogatives  []string
	FactualKeywords []string
	DateReferences  []string
	CasualMarkers   []string
	OpinionMarkers  []string
	FollowUps       []string
	// MaxFollowUpWords bounds how short a follow-up must be to inherit factual intent.
	MaxFollowUpWords int
}

// Gate is a pure, deterministic rule cascade.
type Gate struct {
	store *lexicon.Store

	greetings      *wordSet
	smallTalk      *wordSet
	fillers        *wordSet
	interrogatives *wordSet
	factual        *wordSet
	dates          *wordSet
	casual         *wordSet
	opinion        *wordSet
	followUps      *wordSet

	maxFollowUpWords int
}

// NewGate builds a gate. The store supplies the particle inventory.
func NewGate(store *lexicon.Store, cfg Config) *Gate {
	casual := pick(cfg.CasualMarkers, DefaultCasualMarkers)
	g := &Gate{
		store:            store,
		greetings:        newWordSet(pick(cfg.Greetings, DefaultGreetings)),
		smallTalk:        newWordSet(pick(cfg.SmallTalk, DefaultSmallTalk)),
		fillers:          newWordSet(casual, greetingFillers, DefaultStoplistWords()),
		interrogatives:   newWordSet(pick(cfg.Interrogatives, DefaultInterrogatives)),
		factual:          newWordSet(pick(cfg.FactualKeywords, DefaultFactualKeywords)),
		dates:            newWordSet(pick(cfg.DateReferences, DefaultDateReferences)),
		casual:           newWordSet(casual),
		opinion:          newWordSet(pick(cfg.OpinionMarkers, DefaultOpinionMarkers)),
		followUps:        newWordSet(pick(cfg.FollowUps, DefaultFollowUps)),
		maxFollowUpWords: cfg.MaxFollowUpWords,
	}
	if g.maxFollowUpWords <= 0 {
		g.maxFollowUpWords = 3
	}
	return g
}

// DefaultStoplistWords are the discourse fillers shared with the normalizer.
func DefaultStoplistWords() []string {
	return normalize.DefaultStoplist
}

// Decide applies the rules in order; the first match wins. Never fails:
// anything unmatched resolves to a retrieving fallback.
func (g *Gate) Decide(in Input) Decision {
	words := normalize.Words(in.Normalized)

	// 1. greeting, farewell or small talk
	if reason, ok := g.greeting(words); ok {
		conf := 0.95
		if reason == ReasonChitchat {
			conf = 0.9
		}
		return Decision{Reason: reason, Confidence: conf}
	}

	sig := g.signals(in.Normalized, words)

	// 2. casual register with nothing to look up
	if g.isCasual(in, words) && !sig.interrogative() && len(sig.entities) == 0 && len(sig.numerals) == 0 {
		if op := g.opinion.find(words); len(op) > 0 {
			return Decision{Reason: ReasonOpinion, Confidence: 0.8, Signals: prefixed("opinion", op)}
		}
		return Decision{Reason: ReasonChitchat, Confidence: 0.8, Signals: []string{"casual"}}
	}

	// 3. interrogative plus a factual anchor
	if sig.interrogative() && sig.anchors() > 0 {
		conf := 0.6 + 0.1*float64(sig.anchors())
		if conf > 0.95 {
			conf = 0.95
		}
		return Decision{ShouldRetrieve: true, Reason: ReasonFactual, Confidence: round2(conf), Signals: sig.list()}
	}

	// 3b. short follow-up to an anchored factual question
	if g.isFollowUp(words) {
		if prev, ok := lastUserTurn(in.Recent); ok {
			prevWords := normalize.Words(prev)
			ps := g.signals(prev, prevWords)
			if ps.interrogative() && ps.anchors() > 0 {
				signals := append([]string{"follow_up"}, ps.list()...)
				return Decision{ShouldRetrieve: true, Reason: ReasonFactual, Confidence: 0.6, Signals: signals}
			}
		}
	}

	// 4. retrieve, but downstream applies a stricter acceptance threshold
	return Decision{ShouldRetrieve: true, Reason: ReasonAmbiguousFallback, Confidence: 0.4, Signals: sig.list()}
}

func (g *Gate) greeting(words []string) (Reason, bool) {
	if len(words) == 0 {
		return "", false
	}
	greet, small := 0, 0
	for i := 0; i < len(words); {
		if n := g.greetings.matchAt(words, i); n > 0 {
			greet++
			i += n
			continue
		}
		if n := g.smallTalk.matchAt(words, i); n > 0 {
			small++
			i += n
			continue
		}
		if g.fillers.has(words[i]) {
			i++
			continue
		}
		if _, ok := g.store.Particle(words[i]); ok {
			i++
			continue
		}
		return "", false
	}
	switch {
	case greet > 0:
		return ReasonGreeting, true
	case small > 0:
		return ReasonChitchat, true
	}
	return "", false
}

func (g *Gate) isCasual(in Input, words []string) bool {
	if len(in.Dialects) > 0 || len(in.Particles) > 0 {
		return true
	}
	for _, w := range words {
		if g.casual.has(w) {
			return true
		}
		if _, ok := g.store.Particle(w); ok {
			return true
		}
	}
	return false
}

func (g *Gate) isFollowUp(words []string) bool {
	if len(words) == 0 || len(words) > g.maxFollowUpWords {
		return false
	}
	matched := false
	for i := 0; i < len(words); {
		if n := g.followUps.matchAt(words, i); n > 0 {
			matched = true
			i += n
			continue
		}
		if g.fillers.has(words[i]) {
			i++
			continue
		}
		if _, ok := g.store.Particle(words[i]); ok {
			i++
			continue
		}
		return false
	}
	return matched
}

type signals struct {
	questionMark   bool
	interrogatives []string
	entities       []string
	numerals       []string
	dates          []string
	keywords       []string
}

func (g *Gate) signals(text string, words []string) signals {
	s := signals{
		questionMark:   strings.HasSuffix(strings.TrimSpace(text), "?"),
		interrogatives: g.interrogatives.find(words),
		dates:          g.dates.find(words),
		keywords:       g.factual.find(words),
	}

	scanned := normalize.Scan(text)
	for i, w := range scanned {
		switch {
		case hasDigit(w.Text):
			s.numerals = append(s.numerals, w.Text)
		case isAcronym(w.Text):
			s.entities = append(s.entities, w.Text)
		case isCapitalized(w.Text) && i > 0 && !scanned[i-1].Final:
			// sentence-initial capitals are not evidence of a name
			s.entities = append(s.entities, w.Text)
		}
	}
	return s
}

func (s signals) interrogative() bool {
	return s.questionMark || len(s.interrogatives) > 0
}

// anchors counts the kinds of factual anchor present.
func (s signals) anchors() int {
	n := 0
	for _, group := range [][]string{s.entities, s.numerals, s.dates, s.keywords} {
		if len(group) > 0 {
			n++
		}
	}
	return n
}

func (s signals) list() []string {
	var out []string
	if s.questionMark {
		out = append(out, "question_mark")
	}
	out = append(out, prefixed("interrogative", s.interrogatives)...)
	out = append(out, prefixed("entity", s.entities)...)
	out = append(out, prefixed("numeral", s.numerals)...)
	out = append(out, prefixed("date", s.dates)...)
	out = append(out, prefixed("keyword", s.keywords)...)
	return out
}

func prefixed(kind string, items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, kind+":"+it)
	}
	return out
}

func lastUserTurn(turns []Turn) (string, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser && strings.TrimSpace(turns[i].Text) != "" {
			return turns[i].Text, true
		}
	}
	return "", false
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

// isAcronym matches PM, SPR, KWSP: two or more letters, all upper case.
func isAcronym(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= 2
}

func isCapitalized(s string) bool {
	for i, r := range s {
		if i == 0 {
			if !unicode.IsUpper(r) {
				return false
			}
			continue
		}
		if unicode.IsLower(r) {
			return true
		}
	}
	return false
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

// Package normalize rewrites shortform and dialect spellings into standard
// Malay and derives a particle-free form for retrieval.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/lexicon"
)

// DefaultMaxPasses bounds the substitution passes per input.
const DefaultMaxPasses = 4

// DefaultStoplist holds discourse particles, softeners and fillers removed
// from the retrieval form. Active lexicon particles are removed as well.
var DefaultStoplist = []string{
	"la", "lah", "leh", "lor", "loh", "meh", "mah", "hor", "ah", "eh",
	"weh", "wei", "oi", "bro", "sis", "beb", "kot", "kut", "kan", "je",
	"jer", "jek", "gak", "pun", "hmm", "hm", "erm", "uh", "haha", "hahaha",
	"lol", "ok", "okay",
}

// Span is a half-open byte range.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Substitution records one rewrite. Span indexes the text the pass ran over:
// the canonicalized input for pass 1, the previous pass output after that.
type Substitution struct {
	Span      Span             `json:"span"`
	Surface   string           `json:"surface"`
	Canonical string           `json:"canonical"`
	Category  lexicon.Category `json:"category,omitempty"` // empty for elongation collapse
	Pass      int              `json:"pass"`
}

// Result is the outcome of normalizing one input.
type Result struct {
	Original      string         `json:"original"`
	StandardForm  string         `json:"standard_form"`
	RetrievalForm string         `json:"retrieval_form"`
	Substitutions []Substitution `json:"applied_substitutions"`
}

// Hints carries disambiguation context for ambiguous entries.
type Hints struct {
	// Context holds words from the surrounding conversation.
	Context []string
}

// Normalizer is a pure function over an immutable lexicon store.
type Normalizer struct {
	store     *lexicon.Store
	maxPasses int
	stoplist  map[string]struct{}
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithMaxPasses sets the pass bound. The store's chain depth still applies
// when larger.
func WithMaxPasses(n int) Option {
	return func(nz *Normalizer) {
		if n > 0 {
			nz.maxPasses = n
		}
	}
}

// WithStoplist replaces the default retrieval stoplist.
func WithStoplist(words []string) Option {
	return func(nz *Normalizer) {
		if len(words) == 0 {
			return
		}
		nz.stoplist = toSet(words)
	}
}

// New creates a Normalizer over store.
func New(store *lexicon.Store, opts ...Option) *Normalizer {
	nz := &Normalizer{
		store:     store,
		maxPasses: DefaultMaxPasses,
		stoplist:  toSet(DefaultStoplist),
	}
	for _, opt := range opts {
		opt(nz)
	}
	if depth := store.MaxChainDepth() + 1; depth > nz.maxPasses {
		nz.maxPasses = depth
	}
	return nz
}

// Normalize normalizes text using default senses for ambiguous entries.
func (nz *Normalizer) Normalize(text string) Result {
	return nz.NormalizeWithHints(text, Hints{})
}

// NormalizeWithHints normalizes text, letting hints select ambiguous senses.
// Unknown tokens pass through unchanged.
func (nz *Normalizer) NormalizeWithHints(text string, hints Hints) Result {
	current := Canonicalize(text)
	var subs []Substitution

	context := make([]string, 0, len(hints.Context))
	for _, c := range hints.Context {
		context = append(context, strings.ToLower(c))
	}

	for pass := 1; pass <= nz.maxPasses; pass++ {
		out, applied := nz.pass(current, pass, context)
		if len(applied) == 0 {
			break
		}
		subs = append(subs, applied...)
		current = out
	}

	return Result{
		Original:      text,
		StandardForm:  current,
		RetrievalForm: nz.RetrievalForm(current),
		Substitutions: subs,
	}
}

// RetrievalForm drops stoplisted words, lexicon particles and punctuation
// from a standard form and single-spaces the rest.
func (nz *Normalizer) RetrievalForm(standard string) string {
	var kept []string
	for _, t := range tokenize(standard) {
		if !t.word {
			continue
		}
		lower := strings.ToLower(t.text)
		if _, stop := nz.stoplist[lower]; stop {
			continue
		}
		if _, particle := nz.store.Particle(lower); particle {
			continue
		}
		kept = append(kept, t.text)
	}
	return strings.Join(kept, " ")
}

func (nz *Normalizer) pass(text string, pass int, context []string) (string, []Substitution) {
	toks := tokenize(text)
	var b strings.Builder
	b.Grow(len(text))
	var subs []Substitution

	for i := 0; i < len(toks); {
		t := toks[i]
		if !t.word {
			b.WriteString(t.text)
			i++
			continue
		}

		if last, e, ok := nz.match(toks, i); ok {
			span := Span{Start: t.start, End: toks[last].end}
			surface := text[span.Start:span.End]
			replacement := matchCase(surface, e.Resolve(context))
			b.WriteString(replacement)
			if replacement != surface {
				subs = append(subs, Substitution{
					Span:      span,
					Surface:   surface,
					Canonical: replacement,
					Category:  e.Category,
					Pass:      pass,
				})
			}
			i = last + 1
			continue
		}

		if elongated(t.text) {
			replacement := collapseRuns(t.text, 1)
			if double := collapseRuns(t.text, 2); nz.store.KnownWord(double) {
				replacement = double
			}
			b.WriteString(replacement)
			subs = append(subs, Substitution{
				Span:      Span{Start: t.start, End: t.end},
				Surface:   t.text,
				Canonical: replacement,
				Pass:      pass,
			})
			i++
			continue
		}

		b.WriteString(t.text)
		i++
	}

	return b.String(), subs
}

// match finds the longest lexicon phrase starting at word token i. Phrases
// only span whitespace separators. Returns the index of the last word token.
func (nz *Normalizer) match(toks []token, i int) (int, *lexicon.Entry, bool) {
	words := []int{i}
	for j := i; len(words) < nz.store.MaxPhraseWords(); {
		if j+2 >= len(toks) || toks[j+1].word || !isBlank(toks[j+1].text) || !toks[j+2].word {
			break
		}
		j += 2
		words = append(words, j)
	}

	forms := make([][]string, len(words))
	for k, idx := range words {
		forms[k] = lookupForms(toks[idx].text)
	}

	for n := len(words); n >= 1; n-- {
		tried := make(map[string]struct{}, 3)
		for variant := 0; variant < 3; variant++ {
			parts := make([]string, n)
			for k := 0; k < n; k++ {
				f := forms[k]
				if variant < len(f) {
					parts[k] = f[variant]
				} else {
					parts[k] = f[len(f)-1]
				}
			}
			key := strings.Join(parts, " ")
			if _, seen := tried[key]; seen {
				continue
			}
			tried[key] = struct{}{}
			if e, ok := nz.store.Rewrite(key); ok {
				return words[n-1], e, true
			}
		}
	}
	return 0, nil, false
}

// matchCase carries a leading capital from the original onto the replacement.
func matchCase(original, replacement string) string {
	first, _ := utf8.DecodeRuneInString(original)
	if !unicode.IsUpper(first) {
		return replacement
	}
	r, size := utf8.DecodeRuneInString(replacement)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return replacement
	}
	return string(unicode.ToUpper(r)) + replacement[size:]
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return set
}

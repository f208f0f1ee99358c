// Package lexicon loads and indexes the versioned shortform, dialect, particle
// and ambiguous-term tables used by normalization and dialect detection.
package lexicon

import "strings"

// Category of a lexicon entry.
type Category string

const (
	CategoryShortform Category = "shortform"
	CategoryDialect   Category = "dialect"
	CategoryParticle  Category = "particle"
	CategoryAmbiguous Category = "ambiguous"
)

func (c Category) valid() bool {
	switch c {
	case CategoryShortform, CategoryDialect, CategoryParticle, CategoryAmbiguous:
		return true
	}
	return false
}

// Status of an entry or dialect group. Draft data is loaded but never applied.
type Status string

const (
	StatusActive Status = "active"
	StatusDraft  Status = "draft"
)

func (s Status) valid() bool {
	return s == StatusActive || s == StatusDraft
}

// ParticleFunction is the pragmatic role of a discourse particle.
type ParticleFunction string

const (
	FunctionSoftener     ParticleFunction = "softener"
	FunctionEmphasis     ParticleFunction = "emphasis"
	FunctionUncertainty  ParticleFunction = "uncertainty"
	FunctionConfirmation ParticleFunction = "confirmation"
)

func (f ParticleFunction) valid() bool {
	switch f {
	case FunctionSoftener, FunctionEmphasis, FunctionUncertainty, FunctionConfirmation:
		return true
	}
	return false
}

// Sense is one reading of an ambiguous term. Exactly one sense per entry is the default.
type Sense struct {
	Meaning      string
	ContextHints []string
	Default      bool
}

// MatchesHint reports whether any of the context terms selects this sense.
func (s Sense) MatchesHint(terms []string) bool {
	for _, hint := range s.ContextHints {
		for _, term := range terms {
			if hint == strings.ToLower(term) {
				return true
			}
		}
	}
	return false
}

// Entry is a single lexicon mapping. Entries are immutable once loaded.
type Entry struct {
	SurfaceForm   string
	CanonicalForm string
	DialectCode   string // empty unless Category is dialect
	Category      Category
	Senses        []Sense
	Status        Status
	Function      ParticleFunction // particles only
	Source        string
}

// Active reports whether the entry participates in normalization and detection.
func (e *Entry) Active() bool {
	return e.Status == StatusActive
}

// DefaultSense returns the declared default sense of an ambiguous entry.
func (e *Entry) DefaultSense() (Sense, bool) {
	for _, s := range e.Senses {
		if s.Default {
			return s, true
		}
	}
	return Sense{}, false
}

// Resolve picks the canonical text for this entry. Ambiguous entries use the
// first sense selected by the context terms, else the default sense.
func (e *Entry) Resolve(context []string) string {
	if e.Category != CategoryAmbiguous {
		return e.CanonicalForm
	}
	if len(context) > 0 {
		for _, s := range e.Senses {
			if s.MatchesHint(context) {
				return s.Meaning
			}
		}
	}
	if s, ok := e.DefaultSense(); ok {
		return s.Meaning
	}
	return e.CanonicalForm
}

// DialectProfile describes a dialect and the terms that indicate it.
type DialectProfile struct {
	Code           string
	DisplayName    string
	Description    string
	IndicatorTerms []string
	MinMatchCount  int
	Status         Status
}

// Stats summarises a loaded store.
type Stats struct {
	Version        string
	Sources        int
	Entries        map[Category]int
	DraftEntries   int
	ActiveDialects int
	DraftDialects  int
}

// NormalizeKey lowercases and single-spaces a surface form or phrase.
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// WordCount returns the number of whitespace-separated words in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Package dialect detects regional dialects and discourse particles. Its
// output is advisory metadata for response shaping and never alters text.
package dialect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/lexicon"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/normalize"
)

// Match is a detected dialect with the distinct indicator terms found.
type Match struct {
	Profile lexicon.DialectProfile `json:"profile"`
	Count   int                    `json:"match_count"`
	Terms   []string               `json:"terms"`
}

// Position locates a particle among the words of the input.
type Position struct {
	Index int  `json:"index"`
	Final bool `json:"final"`
}

// ParticleHit is one particle occurrence.
type ParticleHit struct {
	Particle string                   `json:"particle"`
	Function lexicon.ParticleFunction `json:"function"`
	Position Position                 `json:"position"`
}

// Analyzer runs dialect and particle detection over an immutable store.
type Analyzer struct {
	store *lexicon.Store
}

// New creates an Analyzer.
func New(store *lexicon.Store) *Analyzer {
	return &Analyzer{store: store}
}

// DetectDialect returns every active dialect whose distinct indicator hits
// reach its min_match_count, by count descending then declaration order.
func (a *Analyzer) DetectDialect(text string) []Match {
	grams := a.ngrams(normalize.Scan(text))
	if len(grams) == 0 {
		return nil
	}

	var matches []Match
	for _, p := range a.store.Dialects() {
		var terms []string
		for _, term := range p.IndicatorTerms {
			if _, ok := grams[term]; ok {
				terms = append(terms, term)
			}
		}
		if len(terms) >= p.MinMatchCount && len(terms) > 0 {
			matches = append(matches, Match{Profile: p, Count: len(terms), Terms: terms})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Count > matches[j].Count
	})
	return matches
}

// ngrams indexes every word sequence up to the longest indicator phrase,
// within whitespace-only segments, in all elongation forms.
func (a *Analyzer) ngrams(words []normalize.Word) map[string]struct{} {
	maxN := a.store.MaxPhraseWords()
	grams := make(map[string]struct{})

	forms := make([][]string, len(words))
	for i, w := range words {
		forms[i] = normalize.Forms(w.Text)
	}

	for i := range words {
		for n := 1; n <= maxN && i+n <= len(words); n++ {
			if words[i+n-1].Segment != words[i].Segment {
				break
			}
			for variant := 0; variant < 3; variant++ {
				parts := make([]string, n)
				for k := 0; k < n; k++ {
					f := forms[i+k]
					if variant < len(f) {
						parts[k] = f[variant]
					} else {
						parts[k] = f[len(f)-1]
					}
				}
				grams[strings.Join(parts, " ")] = struct{}{}
			}
		}
	}
	return grams
}

// AnalyzeParticles annotates each active particle in text with its function.
func (a *Analyzer) AnalyzeParticles(text string) []ParticleHit {
	var hits []ParticleHit
	for _, w := range normalize.Scan(text) {
		for _, form := range normalize.Forms(w.Text) {
			e, ok := a.store.Particle(form)
			if !ok {
				continue
			}
			hits = append(hits, ParticleHit{
				Particle: e.SurfaceForm,
				Function: e.Function,
				Position: Position{Index: w.Index, Final: w.Final},
			})
			break
		}
	}
	return hits
}

var functionGuidance = map[lexicon.ParticleFunction]string{
	lexicon.FunctionSoftener:     "casual, softened tone",
	lexicon.FunctionEmphasis:     "emphatic",
	lexicon.FunctionUncertainty:  "speaker is unsure",
	lexicon.FunctionConfirmation: "speaker seeks confirmation",
}

// ParticleHint renders particle hits as a short response-shaping hint.
// Empty when there are no hits.
func ParticleHint(hits []ParticleHit) string {
	if len(hits) == 0 {
		return ""
	}

	var tones, particles []string
	seenFn := make(map[lexicon.ParticleFunction]bool)
	seenP := make(map[string]bool)
	for _, h := range hits {
		if !seenFn[h.Function] {
			seenFn[h.Function] = true
			tones = append(tones, functionGuidance[h.Function])
		}
		if !seenP[h.Particle] {
			seenP[h.Particle] = true
			particles = append(particles, h.Particle)
		}
	}
	return fmt.Sprintf("tone: %s (particles: %s)", strings.Join(tones, "; "), strings.Join(particles, ", "))
}

// DialectHint renders detected dialects as a short response-shaping hint.
// Empty when nothing was detected.
func DialectHint(matches []Match) string {
	if len(matches) == 0 {
		return ""
	}
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, fmt.Sprintf("%s (%s, %d terms)", m.Profile.DisplayName, m.Profile.Code, m.Count))
	}
	return "dialect: " + strings.Join(parts, "; ")
}

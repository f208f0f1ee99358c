package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/lexicon"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/lexicon/lexicontest"
)

func codes(matches []Match) []string {
	var out []string
	for _, m := range matches {
		out = append(out, m.Profile.Code)
	}
	return out
}

func TestAnalyzer_DetectDialect(t *testing.T) {
	a := New(lexicontest.Store(t))

	tests := []struct {
		name   string
		input  string
		want   []string
		counts []int
	}{
		{"phrase indicator counts", "ambo tok leh pergi", []string{"kelantan"}, []int{2}},
		{"below min match count", "ambo nak pi", []string{"kedah"}, []int{1}},
		{"ranked by count", "hang pi mana, awat ambo demo", []string{"kedah", "kelantan"}, []int{3, 2}},
		{"tie keeps declaration order", "ambo demo hang cheq", []string{"kelantan", "kedah"}, []int{2, 2}},
		{"distinct terms only", "ambo ambo ambo", nil, nil},
		{"elongated indicators", "AMBOOO demooo", []string{"kelantan"}, []int{2}},
		{"phrase split by punctuation", "tok, leh ambo", nil, nil},
		{"draft dialect never detected", "sia bilang ko sia bilang", nil, nil},
		{"no dialect", "siapa perdana menteri malaysia", nil, nil},
		{"empty", "", nil, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			matches := a.DetectDialect(tc.input)
			assert.Equal(t, tc.want, codes(matches))
			for i, m := range matches {
				assert.Equal(t, tc.counts[i], m.Count)
				assert.Len(t, m.Terms, m.Count)
			}
		})
	}
}

func TestAnalyzer_DetectDialect_Deterministic(t *testing.T) {
	a := New(lexicontest.Store(t))
	first := a.DetectDialect("ambo demo hang cheq awat")
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, a.DetectDialect("ambo demo hang cheq awat"))
	}
}

func TestAnalyzer_AnalyzeParticles(t *testing.T) {
	a := New(lexicontest.Store(t))

	hits := a.AnalyzeParticles("xleh la bro, aku xde duit skrg. nnt la kita jmpa")
	require.Len(t, hits, 2)
	assert.Equal(t, ParticleHit{Particle: "la", Function: lexicon.FunctionSoftener, Position: Position{Index: 1}}, hits[0])
	assert.Equal(t, 8, hits[1].Position.Index)
	assert.False(t, hits[1].Position.Final)

	hits = a.AnalyzeParticles("betul kan? mahal kot")
	require.Len(t, hits, 2)
	assert.Equal(t, lexicon.FunctionConfirmation, hits[0].Function)
	assert.True(t, hits[0].Position.Final)
	assert.Equal(t, lexicon.FunctionUncertainty, hits[1].Function)
	assert.True(t, hits[1].Position.Final)

	hits = a.AnalyzeParticles("Lahhh")
	require.Len(t, hits, 1)
	assert.Equal(t, "lah", hits[0].Particle)

	assert.Empty(t, a.AnalyzeParticles("sedap gak"), "draft particles are ignored")
}

func TestHints(t *testing.T) {
	assert.Empty(t, ParticleHint(nil))
	assert.Empty(t, DialectHint(nil))

	hits := []ParticleHit{
		{Particle: "la", Function: lexicon.FunctionSoftener},
		{Particle: "kan", Function: lexicon.FunctionConfirmation},
		{Particle: "la", Function: lexicon.FunctionSoftener},
	}
	assert.Equal(t, "tone: casual, softened tone; speaker seeks confirmation (particles: la, kan)", ParticleHint(hits))

	a := New(lexicontest.Store(t))
	hint := DialectHint(a.DetectDialect("hang pi mana, awat"))
	assert.Equal(t, "dialect: Utara (kedah, 3 terms)", hint)
}

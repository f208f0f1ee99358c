package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/dialect"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/lexicon/lexicontest"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/normalize"
)

// understand runs the same preprocessing the pipeline does before the gate.
func understand(t *testing.T, text string) Input {
	t.Helper()
	store := lexicontest.Store(t)
	res := normalize.New(store).Normalize(text)
	a := dialect.New(store)
	return Input{
		Normalized:    res.StandardForm,
		RetrievalForm: res.RetrievalForm,
		Dialects:      a.DetectDialect(text),
		Particles:     a.AnalyzeParticles(text),
	}
}

func TestGate_Scenarios(t *testing.T) {
	g := NewGate(lexicontest.Store(t), Config{})

	t.Run("casual shortform chat needs no retrieval", func(t *testing.T) {
		in := understand(t, "xleh la bro, aku xde duit skrg. nnt la kita jmpa")
		for _, want := range []string{"tak boleh", "tiada", "sekarang", "nanti"} {
			assert.Contains(t, in.Normalized, want)
		}

		d := g.Decide(in)
		assert.Equal(t, ReasonChitchat, d.Reason)
		assert.False(t, d.ShouldRetrieve)
	})

	t.Run("factual question about an institution", func(t *testing.T) {
		in := understand(t, "sape PM malaysia sekarang?")
		assert.Equal(t, "siapa PM malaysia sekarang?", in.Normalized)

		d := g.Decide(in)
		assert.Equal(t, ReasonFactual, d.Reason)
		assert.True(t, d.ShouldRetrieve)
		assert.Contains(t, d.Signals, "entity:PM")
		assert.Contains(t, d.Signals, "keyword:malaysia")
	})
}

func TestGate_Decide(t *testing.T) {
	g := NewGate(lexicontest.Store(t), Config{})

	tests := []struct {
		name     string
		in       Input
		reason   Reason
		retrieve bool
		conf     float64
	}{
		{"greeting with filler", Input{Normalized: "hai semua!"}, ReasonGreeting, false, 0.95},
		{"multi-word greeting", Input{Normalized: "Selamat pagi"}, ReasonGreeting, false, 0.95},
		{"farewell", Input{Normalized: "ok bye"}, ReasonGreeting, false, 0.95},
		{"thanks", Input{Normalized: "terima kasih bro"}, ReasonChitchat, false, 0.9},
		{"how are you", Input{Normalized: "apa khabar?"}, ReasonChitchat, false, 0.9},
		{"greeting then question", Input{Normalized: "hai, siapa menteri kewangan?"}, ReasonFactual, true, 0.7},
		{"opinion", Input{Normalized: "aku rasa nasi lemak tu best gila"}, ReasonOpinion, false, 0.8},
		{
			"dialect register",
			Input{Normalized: "saya tidak boleh pergi", Dialects: []dialect.Match{{Count: 2}}},
			ReasonChitchat, false, 0.8,
		},
		{"casual question still looks up", Input{Normalized: "bro, siapa PM?"}, ReasonFactual, true, 0.8},
		{"numeral anchor", Input{Normalized: "berapa harga minyak 2024?"}, ReasonFactual, true, 0.8},
		{"date anchor", Input{Normalized: "apa berlaku semalam di Kuala Lumpur"}, ReasonFactual, true, 0.9},
		{"question without anchor", Input{Normalized: "apa maksud cinta?"}, ReasonAmbiguousFallback, true, 0.4},
		{"statement without signals", Input{Normalized: "nasi lemak"}, ReasonAmbiguousFallback, true, 0.4},
		{"empty", Input{}, ReasonAmbiguousFallback, true, 0.4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := g.Decide(tc.in)
			assert.Equal(t, tc.reason, d.Reason)
			assert.Equal(t, tc.retrieve, d.ShouldRetrieve)
			assert.InDelta(t, tc.conf, d.Confidence, 1e-9)
		})
	}
}

func TestGate_FollowUp(t *testing.T) {
	g := NewGate(lexicontest.Store(t), Config{})

	anchored := []Turn{
		{Role: RoleUser, Text: "siapa PM malaysia sekarang?"},
		{Role: RoleAssistant, Text: "Perdana Menteri Malaysia ialah ..."},
	}
	d := g.Decide(Input{Normalized: "kenapa?", Recent: anchored})
	assert.Equal(t, ReasonFactual, d.Reason)
	assert.True(t, d.ShouldRetrieve)
	assert.InDelta(t, 0.6, d.Confidence, 1e-9)
	require.NotEmpty(t, d.Signals)
	assert.Equal(t, "follow_up", d.Signals[0])

	chatty := []Turn{{Role: RoleUser, Text: "aku penat la"}}
	d = g.Decide(Input{Normalized: "kenapa?", Recent: chatty})
	assert.Equal(t, ReasonAmbiguousFallback, d.Reason)

	d = g.Decide(Input{Normalized: "kenapa orang suka makan durian?", Recent: anchored})
	assert.Equal(t, ReasonAmbiguousFallback, d.Reason, "long turns are judged on their own")
}

func TestGate_Deterministic(t *testing.T) {
	g := NewGate(lexicontest.Store(t), Config{})
	in := Input{Normalized: "hai, siapa PM malaysia 2024?"}
	first := g.Decide(in)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, g.Decide(in))
	}
}

func TestGate_ConfigOverrides(t *testing.T) {
	store := lexicontest.Store(t)

	g := NewGate(store, Config{Greetings: []string{"salam sejahtera"}})
	assert.Equal(t, ReasonGreeting, g.Decide(Input{Normalized: "salam sejahtera"}).Reason)
	assert.Equal(t, ReasonAmbiguousFallback, g.Decide(Input{Normalized: "hai"}).Reason)

	in := Input{Normalized: "apa resepi rendang?"}
	assert.Equal(t, ReasonAmbiguousFallback, NewGate(store, Config{}).Decide(in).Reason)
	assert.Equal(t, ReasonFactual, NewGate(store, Config{FactualKeywords: []string{"resepi"}}).Decide(in).Reason)
}

func TestSignals(t *testing.T) {
	assert.True(t, isAcronym("PM"))
	assert.True(t, isAcronym("PRU15"))
	assert.False(t, isAcronym("A"))
	assert.False(t, isAcronym("Pm"))

	assert.True(t, isCapitalized("Anwar"))
	assert.False(t, isCapitalized("anwar"))
	assert.False(t, isCapitalized("PM"))

	g := NewGate(lexicontest.Store(t), Config{})
	s := g.signals("Siapa menang di Johor?", normalize.Words("Siapa menang di Johor?"))
	assert.Equal(t, []string{"Johor"}, s.entities, "sentence-initial capital is ignored")
}

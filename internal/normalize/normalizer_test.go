package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/lexicon"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/lexicon/lexicontest"
)

func TestNormalizer_Normalize(t *testing.T) {
	nz := New(lexicontest.Store(t))

	tests := []struct {
		name      string
		input     string
		standard  string
		retrieval string
	}{
		{
			name:      "casual shortforms",
			input:     "xleh la bro, aku xde duit skrg. nnt la kita jmpa",
			standard:  "tak boleh la bro, aku tiada duit sekarang. nanti la kita jumpa",
			retrieval: "tak boleh aku tiada duit sekarang nanti kita jumpa",
		},
		{
			name:      "factual question",
			input:     "sape PM malaysia skrg?",
			standard:  "siapa PM malaysia sekarang?",
			retrieval: "siapa PM malaysia sekarang",
		},
		{
			name:      "dialect phrase beats single word",
			input:     "ambo tok leh pergi",
			standard:  "saya tidak boleh pergi",
			retrieval: "saya tidak boleh pergi",
		},
		{
			name:      "single word when phrase absent",
			input:     "ambo tok pergi",
			standard:  "saya tidak pergi",
			retrieval: "saya tidak pergi",
		},
		{
			name:      "phrase does not span punctuation",
			input:     "tok, leh",
			standard:  "tidak, leh",
			retrieval: "tidak",
		},
		{
			name:      "capitalisation preserved",
			input:     "Xde masalah",
			standard:  "Tiada masalah",
			retrieval: "Tiada masalah",
		},
		{
			name:      "elongated shortform",
			input:     "skrgggg jugak",
			standard:  "sekarang jugak",
			retrieval: "sekarang jugak",
		},
		{
			name:      "elongated unknown collapses to single",
			input:     "bestttt gilerrr",
			standard:  "best giler",
			retrieval: "best giler",
		},
		{
			name:      "double collapse kept when known",
			input:     "maaaaf ye",
			standard:  "maaf ye",
			retrieval: "maaf ye",
		},
		{
			name:      "repeated single letter untouched",
			input:     "buka www bernama",
			standard:  "buka www bernama",
			retrieval: "buka www bernama",
		},
		{
			name:      "chained shortforms reach fixpoint",
			input:     "camtu ke",
			standard:  "macam tu ke",
			retrieval: "macam tu ke",
		},
		{
			name:      "ambiguous default sense",
			input:     "sedap tp mahal",
			standard:  "sedap tapi mahal",
			retrieval: "sedap tapi mahal",
		},
		{
			name:      "draft entries never applied",
			input:     "otw sia datang",
			standard:  "otw sia datang",
			retrieval: "otw sia datang",
		},
		{
			name:      "unknown passes through",
			input:     "Komputer riba baharu",
			standard:  "Komputer riba baharu",
			retrieval: "Komputer riba baharu",
		},
		{
			name:      "NFKC canonicalisation",
			input:     "ｘｄｅ duit",
			standard:  "tiada duit",
			retrieval: "tiada duit",
		},
		{
			name:      "empty",
			input:     "",
			standard:  "",
			retrieval: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := nz.Normalize(tc.input)
			assert.Equal(t, tc.input, res.Original)
			assert.Equal(t, tc.standard, res.StandardForm)
			assert.Equal(t, tc.retrieval, res.RetrievalForm)
		})
	}
}

func TestNormalizer_Idempotent(t *testing.T) {
	nz := New(lexicontest.Store(t))

	inputs := []string{
		"xleh la bro, aku xde duit skrg. nnt la kita jmpa",
		"sape PM malaysia skrg?",
		"ambo tok leh pergi, demo guano?",
		"camtu ke wei",
		"XLEH!!! skrgggg",
		"maaaaf tp x sengaja",
		"hang pi mana, awat x mai?",
		"ｘｄｅ\u0007 duit",
		"",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			first := nz.Normalize(in)
			second := nz.Normalize(first.StandardForm)
			assert.Equal(t, first.StandardForm, second.StandardForm)
			assert.Empty(t, second.Substitutions)
		})
	}
}

func TestNormalizer_ChainAcrossWordBoundary(t *testing.T) {
	doc := `{"shortforms": [
	  {"surface_form": "gi", "canonical_form": "pergi", "category": "shortform", "status": "active"},
	  {"surface_form": "pergi sana", "canonical_form": "ke sana", "category": "shortform", "status": "active"}]}`
	store, err := lexicon.LoadBytes("chain.json", []byte(doc))
	require.NoError(t, err)
	nz := New(store, WithMaxPasses(1))

	first := nz.Normalize("jom gi sana")
	assert.Equal(t, "jom ke sana", first.StandardForm)
	assert.Len(t, first.Substitutions, 2)
	assert.Equal(t, first.StandardForm, nz.Normalize(first.StandardForm).StandardForm)
}

func TestNormalizer_Substitutions(t *testing.T) {
	nz := New(lexicontest.Store(t))

	res := nz.Normalize("xleh la, ambo tok leh")
	require.Len(t, res.Substitutions, 3)

	first := res.Substitutions[0]
	assert.Equal(t, Span{Start: 0, End: 4}, first.Span)
	assert.Equal(t, "xleh", first.Surface)
	assert.Equal(t, "tak boleh", first.Canonical)
	assert.Equal(t, lexicon.CategoryShortform, first.Category)
	assert.Equal(t, 1, first.Pass)

	phrase := res.Substitutions[2]
	assert.Equal(t, "tok leh", phrase.Surface)
	assert.Equal(t, "tidak boleh", phrase.Canonical)
	assert.Equal(t, lexicon.CategoryDialect, phrase.Category)
	assert.Equal(t, Span{Start: 14, End: 21}, phrase.Span)

	chained := nz.Normalize("camtu")
	require.Len(t, chained.Substitutions, 2)
	assert.Equal(t, 1, chained.Substitutions[0].Pass)
	assert.Equal(t, "mcm tu", chained.Substitutions[0].Canonical)
	assert.Equal(t, 2, chained.Substitutions[1].Pass)
	assert.Equal(t, "mcm", chained.Substitutions[1].Surface)

	elong := nz.Normalize("bestttt")
	require.Len(t, elong.Substitutions, 1)
	assert.Empty(t, elong.Substitutions[0].Category)
}

func TestNormalizer_Hints(t *testing.T) {
	nz := New(lexicontest.Store(t))

	res := nz.NormalizeWithHints("tp dekat mana", Hints{Context: []string{"nak", "letak", "Kereta"}})
	assert.Equal(t, "tempat dekat mana", res.StandardForm)

	res = nz.NormalizeWithHints("tp dekat mana", Hints{Context: []string{"makan"}})
	assert.Equal(t, "tapi dekat mana", res.StandardForm)
}

func TestNormalizer_Options(t *testing.T) {
	store := lexicontest.Store(t)

	nz := New(store, WithStoplist([]string{"aku"}))
	res := nz.Normalize("aku xde bro")
	assert.Equal(t, "tiada bro", res.RetrievalForm)

	// The chain depth of the store overrides a too-small pass bound.
	nz = New(store, WithMaxPasses(1))
	assert.Equal(t, "macam tu", nz.Normalize("camtu").StandardForm)
}

func TestTokenize(t *testing.T) {
	toks := tokenize("x'de, kata-kata -lah")
	var words []string
	for _, tk := range toks {
		if tk.word {
			words = append(words, tk.text)
		}
	}
	assert.Equal(t, []string{"x'de", "kata-kata", "lah"}, words)

	// Tokens cover the input exactly.
	var rebuilt string
	for _, tk := range toks {
		rebuilt += tk.text
	}
	assert.Equal(t, "x'de, kata-kata -lah", rebuilt)
}

func TestElongation(t *testing.T) {
	tests := []struct {
		word   string
		long   bool
		double string
		single string
	}{
		{"sekarangggg", true, "sekarangg", "sekarang"},
		{"saatttt", true, "saatt", "saat"},
		{"maaaaf", true, "maaf", "maf"},
		{"www", false, "ww", "w"},
		{"maaf", false, "maaf", "maaf"},
		{"100000", false, "100000", "100000"},
	}

	for _, tc := range tests {
		t.Run(tc.word, func(t *testing.T) {
			assert.Equal(t, tc.long, elongated(tc.word))
			assert.Equal(t, tc.double, collapseRuns(tc.word, 2))
			assert.Equal(t, tc.single, collapseRuns(tc.word, 1))
		})
	}
}

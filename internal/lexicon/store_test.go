package lexicon_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/lexicon"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/lexicon/lexicontest"
)

func TestStore_Lookup(t *testing.T) {
	store := lexicontest.Store(t)

	tests := []struct {
		name      string
		surface   string
		category  lexicon.Category
		wantFound bool
		wantCanon string
	}{
		{"shortform", "xleh", lexicon.CategoryShortform, true, "tak boleh"},
		{"case insensitive", "SKRG", lexicon.CategoryShortform, true, "sekarang"},
		{"draft shortform hidden", "otw", lexicon.CategoryShortform, false, ""},
		{"wrong category", "xleh", lexicon.CategoryDialect, false, ""},
		{"dialect first declared", "demo", lexicon.CategoryDialect, true, "awak"},
		{"draft dialect hidden", "sia", lexicon.CategoryDialect, false, ""},
		{"ambiguous default", "tp", lexicon.CategoryAmbiguous, true, "tapi"},
		{"particle", "lah", lexicon.CategoryParticle, true, "lah"},
		{"draft particle hidden", "gak", lexicon.CategoryParticle, false, ""},
		{"unknown", "komputer", lexicon.CategoryShortform, false, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, ok := store.Lookup(tc.surface, tc.category)
			assert.Equal(t, tc.wantFound, ok)
			if tc.wantFound {
				require.NotNil(t, e)
				assert.Equal(t, tc.wantCanon, e.CanonicalForm)
				assert.True(t, e.Active())
			}
		})
	}
}

func TestStore_LookupDialect(t *testing.T) {
	store := lexicontest.Store(t)

	e, ok := store.LookupDialect("Kedah", "awat")
	require.True(t, ok)
	assert.Equal(t, "kenapa", e.CanonicalForm)
	assert.Equal(t, "kedah", e.DialectCode)

	_, ok = store.LookupDialect("kelantan", "awat")
	assert.False(t, ok)

	_, ok = store.LookupDialect("sabah", "sia")
	assert.False(t, ok, "draft dialect entries are not indexed")
}

func TestStore_EntriesForDialect(t *testing.T) {
	store := lexicontest.Store(t)

	assert.Empty(t, store.EntriesForDialect("sabah"))

	draft := store.EntriesForDialect("sabah", lexicon.IncludeDraft())
	require.Len(t, draft, 2)
	assert.Equal(t, "sia", draft[0].SurfaceForm)
	assert.Equal(t, lexicon.StatusDraft, draft[0].Status)

	kelantan := store.EntriesForDialect("kelantan")
	require.Len(t, kelantan, 7)
	assert.Equal(t, "demo", kelantan[0].SurfaceForm)
	assert.Equal(t, "tok leh", kelantan[6].SurfaceForm)
}

func TestStore_Dialects(t *testing.T) {
	store := lexicontest.Store(t)

	active := store.Dialects()
	require.Len(t, active, 2)
	assert.Equal(t, "kelantan", active[0].Code)
	assert.Equal(t, 2, active[0].MinMatchCount)
	assert.Contains(t, active[0].IndicatorTerms, "tok leh")

	assert.Equal(t, "kedah", active[1].Code)
	assert.Equal(t, 1, active[1].MinMatchCount)
	assert.Equal(t, []string{"hang", "cheq", "awat", "pi", "mai"}, active[1].IndicatorTerms,
		"indicator terms default to entry surfaces")

	all := store.Dialects(lexicon.IncludeDraft())
	require.Len(t, all, 3)
	assert.Equal(t, "sabah", all[2].Code)

	// Returned profiles are copies.
	active[0].IndicatorTerms[0] = "mutated"
	assert.Equal(t, "demo", store.Dialects()[0].IndicatorTerms[0])
}

func TestStore_Metadata(t *testing.T) {
	store := lexicontest.Store(t)

	assert.Equal(t, "fixture-1", store.Version())
	assert.Equal(t, 2, store.MaxPhraseWords())
	assert.Equal(t, 2, store.MaxChainDepth(), "camtu -> mcm tu -> macam tu")

	assert.True(t, store.KnownWord("maaf"))
	assert.True(t, store.KnownWord("Sekarang"))
	assert.True(t, store.KnownWord("ambo"))
	assert.False(t, store.KnownWord("maaaf"))

	assert.ElementsMatch(t, []string{"lah", "la", "kan", "meh", "kot", "wei"}, store.Particles())

	p, ok := store.Particle("KOT")
	require.True(t, ok)
	assert.Equal(t, lexicon.FunctionUncertainty, p.Function)

	st := store.Stats()
	assert.Equal(t, 2, st.ActiveDialects)
	assert.Equal(t, 1, st.DraftDialects)
	assert.Equal(t, 14, st.Entries[lexicon.CategoryShortform])
	assert.Equal(t, 12, st.Entries[lexicon.CategoryDialect])
	assert.Equal(t, 4, st.DraftEntries) // otw, gak, sia, bilang
}

func TestStore_RewritePrecedence(t *testing.T) {
	doc := `{
	  "shortforms": [{"surface_form": "tp", "canonical_form": "tepi", "category": "shortform", "status": "active"}],
	  "ambiguous": [{"surface_form": "tp", "category": "ambiguous", "status": "active",
	    "senses": [{"meaning": "tapi", "default": true}, {"meaning": "tempat", "context_hint": "parking"}]}]
	}`
	store, err := lexicon.LoadBytes("precedence.json", []byte(doc))
	require.NoError(t, err)

	e, ok := store.Rewrite("tp")
	require.True(t, ok)
	assert.Equal(t, lexicon.CategoryAmbiguous, e.Category)
	assert.Equal(t, "tapi", e.Resolve(nil))
	assert.Equal(t, "tempat", e.Resolve([]string{"Parking"}))
	assert.Equal(t, "tapi", e.Resolve([]string{"makan"}))
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		opts     []lexicon.LoadOption
		wantKind lexicon.LoadErrorKind
		wantLoc  string
	}{
		{
			name:     "missing category",
			doc:      `{"shortforms": [{"surface_form": "xde", "canonical_form": "tiada", "status": "active"}]}`,
			wantKind: lexicon.LoadErrorMissingField,
			wantLoc:  "shortforms[0]",
		},
		{
			name:     "missing status",
			doc:      `{"shortforms": [{"surface_form": "xde", "canonical_form": "tiada", "category": "shortform"}]}`,
			wantKind: lexicon.LoadErrorMissingField,
			wantLoc:  "shortforms[0]",
		},
		{
			name:     "missing canonical",
			doc:      `{"shortforms": [{"surface_form": "xde", "category": "shortform", "status": "active"}]}`,
			wantKind: lexicon.LoadErrorMissingField,
		},
		{
			name:     "category mismatch",
			doc:      `{"shortforms": [{"surface_form": "lah", "function": "softener", "category": "particle", "status": "active"}]}`,
			wantKind: lexicon.LoadErrorInvalidValue,
		},
		{
			name:     "unknown particle function",
			doc:      `{"particles": [{"surface_form": "lah", "function": "sarcasm", "category": "particle", "status": "active"}]}`,
			wantKind: lexicon.LoadErrorInvalidValue,
		},
		{
			name: "duplicate surface in partition",
			doc: `{"shortforms": [
			  {"surface_form": "xde", "canonical_form": "tiada", "category": "shortform", "status": "active"},
			  {"surface_form": "XDE", "canonical_form": "tidak ada", "category": "shortform", "status": "draft"}]}`,
			wantKind: lexicon.LoadErrorDuplicate,
			wantLoc:  "shortforms[1]",
		},
		{
			name: "ambiguous without default",
			doc: `{"ambiguous": [{"surface_form": "tp", "category": "ambiguous", "status": "active",
			  "senses": [{"meaning": "tapi"}, {"meaning": "tempat"}]}]}`,
			wantKind: lexicon.LoadErrorInvalidValue,
		},
		{
			name:     "dialect group missing status",
			doc:      `{"dialects": {"kedah": {"entries": [{"dialect_word": "hang", "standard_malay": "awak"}]}}}`,
			wantKind: lexicon.LoadErrorMissingField,
			wantLoc:  "dialects.kedah",
		},
		{
			name:     "active dialect with no entries",
			doc:      `{"dialects": {"kedah": {"_status": "active", "entries": []}}}`,
			wantKind: lexicon.LoadErrorDialectPolicy,
		},
		{
			name: "active dialect below min active terms",
			doc: `{"dialects": {"kedah": {"_status": "active", "indicator_terms": ["hang"],
			  "entries": [{"dialect_word": "hang", "standard_malay": "awak"}]}}}`,
			opts:     []lexicon.LoadOption{lexicon.WithMinActiveTerms(3)},
			wantKind: lexicon.LoadErrorDialectPolicy,
		},
		{
			name: "min match count exceeds indicators",
			doc: `{"dialects": {"kedah": {"_status": "active", "min_match_count": 3,
			  "entries": [{"dialect_word": "hang", "standard_malay": "awak"}]}}}`,
			wantKind: lexicon.LoadErrorInvalidValue,
		},
		{
			name: "unknown dialect code in generic entries",
			doc: `{"entries": [{"surface_form": "hang", "canonical_form": "awak", "category": "dialect",
			  "status": "active", "dialect_code": "perlis"}]}`,
			wantKind: lexicon.LoadErrorInvalidValue,
		},
		{
			name: "two word cycle",
			doc: `{"shortforms": [
			  {"surface_form": "a1", "canonical_form": "b1", "category": "shortform", "status": "active"},
			  {"surface_form": "b1", "canonical_form": "a1", "category": "shortform", "status": "active"}]}`,
			wantKind: lexicon.LoadErrorCycle,
		},
		{
			name: "expansion contains its own surface",
			doc: `{"shortforms": [
			  {"surface_form": "tak", "canonical_form": "tak boleh", "category": "shortform", "status": "active"}]}`,
			wantKind: lexicon.LoadErrorCycle,
		},
		{
			name: "cycle across word boundary",
			doc: `{"shortforms": [
			  {"surface_form": "gi", "canonical_form": "pergi", "category": "shortform", "status": "active"},
			  {"surface_form": "pergi sana", "canonical_form": "gi sana", "category": "shortform", "status": "active"}]}`,
			wantKind: lexicon.LoadErrorCycle,
		},
		{
			name: "phrase overlapping start of expansion",
			doc: `{"shortforms": [
			  {"surface_form": "x", "canonical_form": "sana ke", "category": "shortform", "status": "active"},
			  {"surface_form": "pi sana", "canonical_form": "pi x", "category": "shortform", "status": "active"}]}`,
			wantKind: lexicon.LoadErrorCycle,
		},
		{
			name:     "syntax error",
			doc:      `{"shortforms": [`,
			wantKind: lexicon.LoadErrorSyntax,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := lexicon.LoadBytes("bad.json", []byte(tc.doc), tc.opts...)
			require.Error(t, err)
			assert.Nil(t, store)

			var le *lexicon.LoadError
			require.True(t, errors.As(err, &le), "expected *LoadError, got %T", err)
			assert.Equal(t, tc.wantKind, le.Kind, le.Error())
			assert.Equal(t, "bad.json", le.Source)
			if tc.wantLoc != "" {
				assert.Equal(t, tc.wantLoc, le.Locator)
			}
		})
	}
}

func TestLoad_ChainAcrossWordBoundary(t *testing.T) {
	doc := `{"shortforms": [
	  {"surface_form": "gi", "canonical_form": "pergi", "category": "shortform", "status": "active"},
	  {"surface_form": "pergi sana", "canonical_form": "ke sana", "category": "shortform", "status": "active"}]}`
	store, err := lexicon.LoadBytes("chain.json", []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 2, store.MaxChainDepth())
}

func TestLoad_DraftDialectSkipsPolicy(t *testing.T) {
	doc := `{"dialects": {"perak": {"_status": "draft", "_description": "pending review", "entries": []}}}`
	store, err := lexicon.LoadBytes("draft.json", []byte(doc), lexicon.WithMinActiveTerms(10))
	require.NoError(t, err)
	assert.Empty(t, store.Dialects())
	assert.Len(t, store.Dialects(lexicon.IncludeDraft()), 1)
}

func TestLoad_DraftGroupForcesDraftEntries(t *testing.T) {
	doc := `{"dialects": {"sabah": {"_status": "draft",
	  "entries": [{"dialect_word": "sia", "standard_malay": "saya", "status": "active"}]}}}`
	store, err := lexicon.LoadBytes("draft.json", []byte(doc))
	require.NoError(t, err)

	_, ok := store.Rewrite("sia")
	assert.False(t, ok)
	entries := store.EntriesForDialect("sabah", lexicon.IncludeDraft())
	require.Len(t, entries, 1)
	assert.Equal(t, lexicon.StatusDraft, entries[0].Status)
}

func TestLoad_FilesAndDirectories(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	write("01-shortforms.json", `{"version": "2025.10", "shortforms": [
	  {"surface_form": "xde", "canonical_form": "tiada", "category": "shortform", "status": "active"}]}`)
	write("02-dialects.json", `{"version": "kd-3", "dialects": {"kedah": {"_status": "active",
	  "entries": [{"dialect_word": "hang", "standard_malay": "awak"}]}},
	  "entries": [{"surface_form": "cheq", "canonical_form": "saya", "category": "dialect", "status": "active", "dialect_code": "kedah"}]}`)
	write("notes.txt", "ignored")

	store, err := lexicon.Load([]string{dir}, lexicon.WithMinActiveTerms(2))
	require.NoError(t, err)
	assert.Equal(t, "2025.10+kd-3", store.Version())
	assert.Len(t, store.Sources(), 2)

	e, ok := store.LookupDialect("kedah", "cheq")
	require.True(t, ok)
	assert.Equal(t, "saya", e.CanonicalForm)

	// Duplicate dialect across files.
	other := write("03-dup.json", `{"dialects": {"kedah": {"_status": "draft", "entries": []}}}`)
	_, err = lexicon.Load([]string{dir})
	var le *lexicon.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, lexicon.LoadErrorDuplicate, le.Kind)
	assert.Equal(t, other, le.Source)

	_, err = lexicon.Load([]string{filepath.Join(dir, "missing.json")})
	require.ErrorAs(t, err, &le)
	assert.Equal(t, lexicon.LoadErrorIO, le.Kind)

	_, err = lexicon.Load([]string{t.TempDir()})
	require.ErrorAs(t, err, &le)
	assert.Equal(t, lexicon.LoadErrorIO, le.Kind)
}

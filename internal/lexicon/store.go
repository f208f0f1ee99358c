package lexicon

import (
	"fmt"
	"strings"
)

// DefaultMinActiveTerms is the minimum entry count for an active dialect when
// no LoadOption overrides it.
const DefaultMinActiveTerms = 1

// Store is an immutable, indexed lexicon. Safe for concurrent reads.
type Store struct {
	version string
	sources []string

	entries        []*Entry
	byCategory     map[Category]map[string]*Entry
	byDialect      map[string]map[string]*Entry
	dialectEntries map[string][]*Entry
	dialects       []*DialectProfile
	rewrites       map[string]*Entry
	particles      map[string]*Entry
	known          map[string]struct{}

	maxPhraseWords int
	maxChainDepth  int
}

type loadOptions struct {
	minActiveTerms int
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

// WithMinActiveTerms sets the minimum number of active entries a dialect needs
// to be marked active.
func WithMinActiveTerms(n int) LoadOption {
	return func(o *loadOptions) {
		if n > 0 {
			o.minActiveTerms = n
		}
	}
}

type queryOptions struct {
	includeDraft bool
}

// QueryOption configures dialect and entry listings.
type QueryOption func(*queryOptions)

// IncludeDraft includes draft data in listings. For tooling and reports only.
func IncludeDraft() QueryOption {
	return func(o *queryOptions) { o.includeDraft = true }
}

// Load reads lexicon files (or directories of *.json files) and validates them.
// Any validation failure returns a *LoadError and no store.
func Load(sources []string, opts ...LoadOption) (*Store, error) {
	files, err := expandSources(sources)
	if err != nil {
		return nil, err
	}

	b := newBuilder(opts)
	for _, f := range files {
		doc, err := readDocument(f)
		if err != nil {
			return nil, err
		}
		if err := b.add(f, doc); err != nil {
			return nil, err
		}
	}
	return b.build()
}

// LoadBytes builds a store from a single in-memory JSON document.
func LoadBytes(source string, data []byte, opts ...LoadOption) (*Store, error) {
	doc, err := parseDocument(source, data)
	if err != nil {
		return nil, err
	}
	b := newBuilder(opts)
	if err := b.add(source, doc); err != nil {
		return nil, err
	}
	return b.build()
}

type partitionKey struct {
	dialect  string
	category Category
	surface  string
}

type builder struct {
	opts      loadOptions
	store     *Store
	seen      map[partitionKey]string
	dialectAt map[string]string
	versions  []string
	// dialect entries declared in generic arrays, resolved after all sources
	pending []pendingEntry
}

type pendingEntry struct {
	entry   *Entry
	locator string
}

func newBuilder(opts []LoadOption) *builder {
	o := loadOptions{minActiveTerms: DefaultMinActiveTerms}
	for _, opt := range opts {
		opt(&o)
	}
	return &builder{
		opts: o,
		store: &Store{
			byCategory:     make(map[Category]map[string]*Entry),
			byDialect:      make(map[string]map[string]*Entry),
			dialectEntries: make(map[string][]*Entry),
			rewrites:       make(map[string]*Entry),
			particles:      make(map[string]*Entry),
			known:          make(map[string]struct{}),
			maxPhraseWords: 1,
		},
		seen:      make(map[partitionKey]string),
		dialectAt: make(map[string]string),
	}
}

func (b *builder) add(source string, doc *rawDocument) error {
	b.store.sources = append(b.store.sources, source)
	if doc.Version != "" {
		b.versions = append(b.versions, doc.Version)
	}

	arrays := []struct {
		name     string
		category Category
		items    []rawEntry
	}{
		{"shortforms", CategoryShortform, doc.Shortforms},
		{"particles", CategoryParticle, doc.Particles},
		{"ambiguous", CategoryAmbiguous, doc.Ambiguous},
		{"entries", "", doc.Entries},
	}

	for _, arr := range arrays {
		for i, raw := range arr.items {
			locator := fmt.Sprintf("%s[%d]", arr.name, i)
			e, err := b.entryFromArray(source, locator, arr.category, raw)
			if err != nil {
				return err
			}
			if e.Category == CategoryDialect {
				b.pending = append(b.pending, pendingEntry{entry: e, locator: locator})
				continue
			}
			if err := b.insert(e, locator); err != nil {
				return err
			}
		}
	}

	for _, group := range doc.Dialects {
		if err := b.addDialect(source, group); err != nil {
			return err
		}
	}

	for _, w := range doc.Vocabulary {
		b.store.addKnown(w)
	}
	return nil
}

func (b *builder) entryFromArray(source, locator string, want Category, raw rawEntry) (*Entry, error) {
	if raw.Category == "" {
		return nil, loadErr(LoadErrorMissingField, source, locator, "missing required field %q", "category")
	}
	category := Category(strings.ToLower(raw.Category))
	if !category.valid() {
		return nil, loadErr(LoadErrorInvalidValue, source, locator, "unknown category %q", raw.Category)
	}
	if want != "" && category != want {
		return nil, loadErr(LoadErrorInvalidValue, source, locator, "category %q listed under %s", raw.Category, want)
	}
	if raw.Status == "" {
		return nil, loadErr(LoadErrorMissingField, source, locator, "missing required field %q", "status")
	}
	status := Status(strings.ToLower(raw.Status))
	if !status.valid() {
		return nil, loadErr(LoadErrorInvalidValue, source, locator, "unknown status %q", raw.Status)
	}
	if category == CategoryDialect && raw.DialectCode == "" {
		return nil, loadErr(LoadErrorMissingField, source, locator, "dialect entry missing %q", "dialect_code")
	}
	return buildEntry(source, locator, category, status, strings.ToLower(raw.DialectCode), raw)
}

func buildEntry(source, locator string, category Category, status Status, dialect string, raw rawEntry) (*Entry, error) {
	surface := NormalizeKey(raw.surface())
	if surface == "" {
		return nil, loadErr(LoadErrorMissingField, source, locator, "missing surface_form/dialect_word")
	}

	e := &Entry{
		SurfaceForm: surface,
		DialectCode: dialect,
		Category:    category,
		Status:      status,
		Source:      source,
	}

	switch category {
	case CategoryParticle:
		fn := ParticleFunction(strings.ToLower(raw.Function))
		if fn == "" {
			fn = ParticleFunction(strings.ToLower(raw.canonical()))
		}
		if fn == "" {
			return nil, loadErr(LoadErrorMissingField, source, locator, "particle %q missing function", surface)
		}
		if !fn.valid() {
			return nil, loadErr(LoadErrorInvalidValue, source, locator, "particle %q has unknown function %q", surface, fn)
		}
		e.Function = fn
		e.CanonicalForm = surface

	case CategoryAmbiguous:
		if len(raw.Senses) == 0 {
			return nil, loadErr(LoadErrorMissingField, source, locator, "ambiguous entry %q has no senses", surface)
		}
		defaults := 0
		for i, rs := range raw.Senses {
			meaning := strings.TrimSpace(rs.Meaning)
			if meaning == "" {
				return nil, loadErr(LoadErrorMissingField, source, fmt.Sprintf("%s.senses[%d]", locator, i), "sense missing meaning")
			}
			hints := make([]string, 0, len(rs.ContextHint))
			for _, h := range rs.ContextHint {
				if h = NormalizeKey(h); h != "" {
					hints = append(hints, h)
				}
			}
			isDefault := rs.Default || len(raw.Senses) == 1
			if isDefault {
				defaults++
			}
			e.Senses = append(e.Senses, Sense{Meaning: meaning, ContextHints: hints, Default: isDefault})
		}
		if defaults != 1 {
			return nil, loadErr(LoadErrorInvalidValue, source, locator, "ambiguous entry %q must declare exactly one default sense, found %d", surface, defaults)
		}
		def, _ := e.DefaultSense()
		e.CanonicalForm = def.Meaning

	default:
		canonical := strings.Join(strings.Fields(raw.canonical()), " ")
		if canonical == "" {
			return nil, loadErr(LoadErrorMissingField, source, locator, "entry %q missing canonical_form/standard_malay", surface)
		}
		e.CanonicalForm = canonical
	}

	return e, nil
}

func (b *builder) addDialect(source string, group rawDialect) error {
	code := strings.ToLower(strings.TrimSpace(group.Code))
	locator := "dialects." + group.Code
	if code == "" {
		return loadErr(LoadErrorMissingField, source, "dialects", "dialect group with empty code")
	}
	if prev, dup := b.dialectAt[code]; dup {
		return loadErr(LoadErrorDuplicate, source, locator, "dialect %q already declared in %s", code, prev)
	}
	b.dialectAt[code] = source

	if group.Status == "" {
		return loadErr(LoadErrorMissingField, source, locator, "missing required field %q", "_status")
	}
	status := Status(strings.ToLower(group.Status))
	if !status.valid() {
		return loadErr(LoadErrorInvalidValue, source, locator, "unknown _status %q", group.Status)
	}

	minMatch := 1
	if group.MinMatchCount != nil {
		if *group.MinMatchCount < 0 {
			return loadErr(LoadErrorInvalidValue, source, locator, "min_match_count must be >= 1")
		}
		if *group.MinMatchCount > 0 {
			minMatch = *group.MinMatchCount
		}
	}

	profile := &DialectProfile{
		Code:          code,
		DisplayName:   group.DisplayName,
		Description:   group.Description,
		MinMatchCount: minMatch,
		Status:        status,
	}
	if profile.DisplayName == "" {
		profile.DisplayName = group.Code
	}

	for i, raw := range group.Entries {
		entryLoc := fmt.Sprintf("%s.entries[%d]", locator, i)
		if raw.Category != "" && Category(strings.ToLower(raw.Category)) != CategoryDialect {
			return loadErr(LoadErrorInvalidValue, source, entryLoc, "category %q inside dialect group", raw.Category)
		}
		entryStatus := status
		if raw.Status != "" {
			s := Status(strings.ToLower(raw.Status))
			if !s.valid() {
				return loadErr(LoadErrorInvalidValue, source, entryLoc, "unknown status %q", raw.Status)
			}
			// A draft group keeps every entry draft.
			if status == StatusActive {
				entryStatus = s
			}
		}
		e, err := buildEntry(source, entryLoc, CategoryDialect, entryStatus, code, raw)
		if err != nil {
			return err
		}
		if err := b.insert(e, entryLoc); err != nil {
			return err
		}
	}

	seenTerm := make(map[string]struct{})
	for _, t := range group.Indicators {
		term := NormalizeKey(t)
		if term == "" {
			continue
		}
		if _, ok := seenTerm[term]; ok {
			continue
		}
		seenTerm[term] = struct{}{}
		profile.IndicatorTerms = append(profile.IndicatorTerms, term)
	}

	b.store.dialects = append(b.store.dialects, profile)
	return nil
}

func (b *builder) insert(e *Entry, locator string) error {
	key := partitionKey{dialect: e.DialectCode, category: e.Category, surface: e.SurfaceForm}
	if prev, dup := b.seen[key]; dup {
		return loadErr(LoadErrorDuplicate, e.Source, locator,
			"surface %q repeated in partition (%s, %q); first declared at %s", e.SurfaceForm, e.Category, e.DialectCode, prev)
	}
	b.seen[key] = e.Source + ": " + locator

	s := b.store
	s.entries = append(s.entries, e)
	if e.Category == CategoryDialect {
		s.dialectEntries[e.DialectCode] = append(s.dialectEntries[e.DialectCode], e)
	}
	return nil
}

func (b *builder) build() (*Store, error) {
	s := b.store

	for _, p := range b.pending {
		if _, ok := b.dialectAt[p.entry.DialectCode]; !ok {
			return nil, loadErr(LoadErrorInvalidValue, p.entry.Source, p.locator, "unknown dialect_code %q", p.entry.DialectCode)
		}
		if err := b.insert(p.entry, p.locator); err != nil {
			return nil, err
		}
	}

	profiles := make(map[string]*DialectProfile, len(s.dialects))
	for _, p := range s.dialects {
		profiles[p.Code] = p
	}

	// Dialect activation policy.
	for _, p := range s.dialects {
		var active []*Entry
		for _, e := range s.dialectEntries[p.Code] {
			if e.Active() {
				active = append(active, e)
			}
		}
		if p.Status == StatusDraft {
			for _, e := range s.dialectEntries[p.Code] {
				e.Status = StatusDraft
			}
			continue
		}
		if len(active) < b.opts.minActiveTerms {
			return nil, loadErr(LoadErrorDialectPolicy, b.dialectAt[p.Code], "dialects."+p.Code,
				"active dialect has %d active entries, below min_active_terms %d; mark it draft", len(active), b.opts.minActiveTerms)
		}
		if len(p.IndicatorTerms) == 0 {
			for _, e := range active {
				p.IndicatorTerms = append(p.IndicatorTerms, e.SurfaceForm)
			}
		}
		if len(p.IndicatorTerms) == 0 {
			return nil, loadErr(LoadErrorDialectPolicy, b.dialectAt[p.Code], "dialects."+p.Code, "active dialect declares zero indicator terms")
		}
		if p.MinMatchCount > len(p.IndicatorTerms) {
			return nil, loadErr(LoadErrorInvalidValue, b.dialectAt[p.Code], "dialects."+p.Code,
				"min_match_count %d exceeds %d indicator terms", p.MinMatchCount, len(p.IndicatorTerms))
		}
		for _, t := range p.IndicatorTerms {
			s.addKnown(t)
			if n := WordCount(t); n > s.maxPhraseWords {
				s.maxPhraseWords = n
			}
		}
	}

	// Indexes hold active entries only.
	for _, e := range s.entries {
		if !e.Active() {
			continue
		}
		if e.Category == CategoryDialect {
			if p := profiles[e.DialectCode]; p == nil || p.Status != StatusActive {
				continue
			}
			if s.byDialect[e.DialectCode] == nil {
				s.byDialect[e.DialectCode] = make(map[string]*Entry)
			}
			s.byDialect[e.DialectCode][e.SurfaceForm] = e
		}

		if s.byCategory[e.Category] == nil {
			s.byCategory[e.Category] = make(map[string]*Entry)
		}
		if _, taken := s.byCategory[e.Category][e.SurfaceForm]; !taken {
			s.byCategory[e.Category][e.SurfaceForm] = e
		}

		s.addKnown(e.SurfaceForm)
		s.addKnown(e.CanonicalForm)
		for _, sense := range e.Senses {
			s.addKnown(sense.Meaning)
		}

		if e.Category == CategoryParticle {
			s.particles[e.SurfaceForm] = e
			continue
		}
		if n := WordCount(e.SurfaceForm); n > s.maxPhraseWords {
			s.maxPhraseWords = n
		}
	}

	// Rewrite precedence: ambiguous, then shortform, then dialects in declaration order.
	for _, category := range []Category{CategoryAmbiguous, CategoryShortform} {
		for surface, e := range s.byCategory[category] {
			if _, taken := s.rewrites[surface]; !taken {
				s.rewrites[surface] = e
			}
		}
	}
	for _, p := range s.dialects {
		for _, e := range s.dialectEntries[p.Code] {
			if _, ok := s.byDialect[p.Code][e.SurfaceForm]; !ok {
				continue
			}
			if _, taken := s.rewrites[e.SurfaceForm]; !taken {
				s.rewrites[e.SurfaceForm] = e
			}
		}
	}

	depth, err := s.checkRewriteGraph()
	if err != nil {
		return nil, err
	}
	s.maxChainDepth = depth

	s.version = strings.Join(b.versions, "+")
	return s, nil
}

// checkRewriteGraph rejects substitution cycles, which would make normalization
// non-idempotent, and returns the longest substitution chain.
func (s *Store) checkRewriteGraph() (int, error) {
	var phrases [][]string
	for surface := range s.rewrites {
		if words := strings.Fields(surface); len(words) > 1 {
			phrases = append(phrases, words)
		}
	}

	edges := make(map[string][]string, len(s.rewrites))
	for surface, e := range s.rewrites {
		targets := []string{e.CanonicalForm}
		for _, sense := range e.Senses {
			targets = append(targets, sense.Meaning)
		}
		seen := make(map[string]struct{})
		link := func(next string) {
			if _, dup := seen[next]; dup {
				return
			}
			seen[next] = struct{}{}
			edges[surface] = append(edges[surface], next)
		}
		for _, t := range targets {
			key := NormalizeKey(t)
			if key == surface {
				continue
			}
			words := strings.Fields(key)
			for _, gram := range ngrams(words, s.maxPhraseWords) {
				if _, ok := s.rewrites[gram]; ok {
					link(gram)
				}
			}
			// A phrase can also match across the edge of a replacement,
			// joining its first or last words to the text around it.
			for _, phrase := range phrases {
				if straddles(phrase, words) {
					link(strings.Join(phrase, " "))
				}
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(edges))
	depth := make(map[string]int, len(edges))

	var visit func(node string, path []string) error
	visit = func(node string, path []string) error {
		state[node] = visiting
		path = append(path, node)
		best := 0
		for _, next := range edges[node] {
			switch state[next] {
			case visiting:
				e := s.rewrites[node]
				return loadErr(LoadErrorCycle, e.Source, strings.Join(append(path, next), " -> "),
					"substitution cycle")
			case unvisited:
				if err := visit(next, path); err != nil {
					return err
				}
			}
			if d := depth[next] + 1; d > best {
				best = d
			}
		}
		depth[node] = best
		state[node] = done
		return nil
	}

	longest := 0
	for node := range s.rewrites {
		if state[node] == unvisited {
			if err := visit(node, nil); err != nil {
				return 0, err
			}
		}
		if depth[node] > longest {
			longest = depth[node]
		}
	}
	return longest + 1, nil
}

// straddles reports whether phrase can overlap target while running past
// its start or end, with every overlapping word equal.
func straddles(phrase, target []string) bool {
	for off := 1 - len(phrase); off < len(target); off++ {
		if off >= 0 && off+len(phrase) <= len(target) {
			continue // contained; covered by ngrams
		}
		overlap := true
		for j, w := range phrase {
			if i := off + j; i >= 0 && i < len(target) && target[i] != w {
				overlap = false
				break
			}
		}
		if overlap {
			return true
		}
	}
	return false
}

func ngrams(words []string, maxN int) []string {
	var out []string
	for n := 1; n <= maxN && n <= len(words); n++ {
		for i := 0; i+n <= len(words); i++ {
			out = append(out, strings.Join(words[i:i+n], " "))
		}
	}
	return out
}

func (s *Store) addKnown(text string) {
	for _, w := range strings.Fields(strings.ToLower(text)) {
		s.known[w] = struct{}{}
	}
}

// Lookup returns the active entry for surface in category. Dialect lookups
// return the first declared dialect that defines the surface.
func (s *Store) Lookup(surface string, category Category) (*Entry, bool) {
	e, ok := s.byCategory[category][NormalizeKey(surface)]
	return e, ok
}

// LookupDialect returns the active entry for surface in one dialect.
func (s *Store) LookupDialect(code, surface string) (*Entry, bool) {
	e, ok := s.byDialect[strings.ToLower(code)][NormalizeKey(surface)]
	return e, ok
}

// Rewrite returns the substitution entry for a word or phrase key, if any.
// Only active shortform, dialect and ambiguous entries are considered.
func (s *Store) Rewrite(key string) (*Entry, bool) {
	e, ok := s.rewrites[key]
	return e, ok
}

// Particle returns the active particle entry for a word.
func (s *Store) Particle(word string) (*Entry, bool) {
	e, ok := s.particles[strings.ToLower(word)]
	return e, ok
}

// Particles returns the surfaces of all active particles.
func (s *Store) Particles() []string {
	out := make([]string, 0, len(s.particles))
	for p := range s.particles {
		out = append(out, p)
	}
	return out
}

// EntriesForDialect lists a dialect's entries in declaration order. Draft
// entries are excluded unless IncludeDraft is passed.
func (s *Store) EntriesForDialect(code string, opts ...QueryOption) []Entry {
	q := applyQuery(opts)
	var out []Entry
	for _, e := range s.dialectEntries[strings.ToLower(code)] {
		if e.Active() || q.includeDraft {
			out = append(out, *e)
		}
	}
	return out
}

// Dialects lists dialect profiles in declaration order, active only by default.
func (s *Store) Dialects(opts ...QueryOption) []DialectProfile {
	q := applyQuery(opts)
	var out []DialectProfile
	for _, p := range s.dialects {
		if p.Status == StatusActive || q.includeDraft {
			cp := *p
			cp.IndicatorTerms = append([]string(nil), p.IndicatorTerms...)
			out = append(out, cp)
		}
	}
	return out
}

// KnownWord reports whether w appears anywhere in the active lexicon or its vocabulary.
func (s *Store) KnownWord(w string) bool {
	_, ok := s.known[strings.ToLower(w)]
	return ok
}

// MaxPhraseWords is the word length of the longest active surface or indicator phrase.
func (s *Store) MaxPhraseWords() int {
	return s.maxPhraseWords
}

// MaxChainDepth is the longest chain of substitutions that can feed each other.
// Normalization reaches a fixpoint within this many passes.
func (s *Store) MaxChainDepth() int {
	return s.maxChainDepth
}

// Version returns the dataset version(s), joined with '+'.
func (s *Store) Version() string {
	return s.version
}

// Sources returns the files the store was built from.
func (s *Store) Sources() []string {
	return append([]string(nil), s.sources...)
}

// Stats summarises the store contents.
func (s *Store) Stats() Stats {
	st := Stats{
		Version: s.version,
		Sources: len(s.sources),
		Entries: make(map[Category]int),
	}
	for _, e := range s.entries {
		if e.Active() {
			st.Entries[e.Category]++
		} else {
			st.DraftEntries++
		}
	}
	for _, p := range s.dialects {
		if p.Status == StatusActive {
			st.ActiveDialects++
		} else {
			st.DraftDialects++
		}
	}
	return st
}

func applyQuery(opts []QueryOption) queryOptions {
	var q queryOptions
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

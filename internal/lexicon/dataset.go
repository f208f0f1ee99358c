package lexicon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// rawDocument is one lexicon JSON file.
type rawDocument struct {
	Version    string         `json:"version"`
	Shortforms []rawEntry     `json:"shortforms"`
	Particles  []rawEntry     `json:"particles"`
	Ambiguous  []rawEntry     `json:"ambiguous"`
	Entries    []rawEntry     `json:"entries"`
	Dialects   rawDialectList `json:"dialects"`
	Vocabulary []string       `json:"vocabulary"`
}

type rawEntry struct {
	SurfaceForm   string     `json:"surface_form"`
	DialectWord   string     `json:"dialect_word"`
	CanonicalForm string     `json:"canonical_form"`
	StandardMalay string     `json:"standard_malay"`
	Category      string     `json:"category"`
	Status        string     `json:"status"`
	DialectCode   string     `json:"dialect_code"`
	Function      string     `json:"function"`
	Senses        []rawSense `json:"senses"`
}

func (r rawEntry) surface() string {
	if r.SurfaceForm != "" {
		return r.SurfaceForm
	}
	return r.DialectWord
}

func (r rawEntry) canonical() string {
	if r.CanonicalForm != "" {
		return r.CanonicalForm
	}
	return r.StandardMalay
}

type rawSense struct {
	Meaning     string   `json:"meaning"`
	ContextHint hintList `json:"context_hint"`
	Default     bool     `json:"default"`
}

// hintList accepts either a single string or an array of strings.
type hintList []string

func (h *hintList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*h = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*h = hintList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*h = list
	return nil
}

type rawDialect struct {
	Code          string     `json:"-"`
	Status        string     `json:"_status"`
	Description   string     `json:"_description"`
	DisplayName   string     `json:"display_name"`
	MinMatchCount *int       `json:"min_match_count"`
	Indicators    []string   `json:"indicator_terms"`
	Entries       []rawEntry `json:"entries"`
}

// rawDialectList keeps dialect groups in document order; declaration order
// breaks ties in dialect detection.
type rawDialectList []rawDialect

func (l *rawDialectList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("dialects must be an object keyed by dialect code")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		code, _ := keyTok.(string)

		var group rawDialect
		if err := dec.Decode(&group); err != nil {
			return fmt.Errorf("dialect %q: %w", code, err)
		}
		group.Code = code
		*l = append(*l, group)
	}

	_, err = dec.Token()
	return err
}

// expandSources resolves files and directories (non-recursive, *.json, sorted).
func expandSources(sources []string) ([]string, error) {
	var files []string
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			return nil, &LoadError{Kind: LoadErrorIO, Source: src, Message: "stat source", Err: err}
		}
		if !info.IsDir() {
			files = append(files, src)
			continue
		}

		matches, err := filepath.Glob(filepath.Join(src, "*.json"))
		if err != nil {
			return nil, &LoadError{Kind: LoadErrorIO, Source: src, Message: "list directory", Err: err}
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}

	if len(files) == 0 {
		return nil, loadErr(LoadErrorIO, strings.Join(sources, ","), "", "no lexicon files found")
	}
	return files, nil
}

func readDocument(path string) (*rawDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Kind: LoadErrorIO, Source: path, Message: "read file", Err: err}
	}
	return parseDocument(path, data)
}

func parseDocument(source string, data []byte) (*rawDocument, error) {
	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Kind: LoadErrorSyntax, Source: source, Message: "parse JSON", Err: err}
	}
	return &doc, nil
}

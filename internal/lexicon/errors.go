package lexicon

import "fmt"

// LoadErrorKind classifies dataset validation failures.
type LoadErrorKind string

const (
	LoadErrorIO            LoadErrorKind = "io"
	LoadErrorSyntax        LoadErrorKind = "syntax"
	LoadErrorMissingField  LoadErrorKind = "missing_field"
	LoadErrorInvalidValue  LoadErrorKind = "invalid_value"
	LoadErrorDuplicate     LoadErrorKind = "duplicate_surface"
	LoadErrorDialectPolicy LoadErrorKind = "dialect_policy"
	LoadErrorCycle         LoadErrorKind = "substitution_cycle"
)

// LoadError reports a malformed or incomplete lexicon dataset. A store is
// never returned alongside a LoadError.
type LoadError struct {
	Kind    LoadErrorKind
	Source  string // file path
	Locator string // e.g. shortforms[3] or dialects.kelantan.entries[0]
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	loc := e.Source
	if e.Locator != "" {
		loc += ": " + e.Locator
	}
	if e.Err != nil {
		return fmt.Sprintf("lexicon [%s] %s: %s: %v", e.Kind, loc, e.Message, e.Err)
	}
	return fmt.Sprintf("lexicon [%s] %s: %s", e.Kind, loc, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func loadErr(kind LoadErrorKind, source, locator, format string, args ...interface{}) *LoadError {
	return &LoadError{
		Kind:    kind,
		Source:  source,
		Locator: locator,
		Message: fmt.Sprintf(format, args...),
	}
}

// Package retrieval fuses lexical, vector and live web results into one
// bounded, ranked context list.
package retrieval

import (
	"fmt"
	"time"
)

// SourceName identifies a retrieval source.
type SourceName string

const (
	SourceLexical SourceName = "lexical"
	SourceVector  SourceName = "vector"
	SourceWeb     SourceName = "web"
)

// Tier is the trust classification of a candidate's domain.
type Tier string

const (
	TierTrusted Tier = "trusted"
	TierNeutral Tier = "neutral"
	TierBlocked Tier = "blocked"
)

// Candidate is one result from one source. RawScore is the source's own
// score, higher is better; NormalizedScore is set during fusion.
type Candidate struct {
	Source          SourceName `json:"source"`
	DocID           string     `json:"doc_id"`
	Title           string     `json:"title,omitempty"`
	Content         string     `json:"content"`
	URL             string     `json:"url,omitempty"`
	Domain          string     `json:"domain,omitempty"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	RawScore        float64    `json:"raw_score"`
	NormalizedScore float64    `json:"normalized_score"`
}

// FusedResult is a deduplicated document with its combined score.
type FusedResult struct {
	DocID               string       `json:"doc_id"`
	Title               string       `json:"title,omitempty"`
	Content             string       `json:"content"`
	URL                 string       `json:"url,omitempty"`
	Domain              string       `json:"domain,omitempty"`
	PublishedAt         *time.Time   `json:"published_at,omitempty"`
	FusedScore          float64      `json:"fused_score"`
	ContributingSources []SourceName `json:"contributing_sources"`
	DomainTier          Tier         `json:"domain_tier"`
}

// Outcome is how a single source call ended.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeEmpty       Outcome = "empty"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeFailure     Outcome = "failure"
	OutcomeQuota       Outcome = "quota"
	OutcomeCircuitOpen Outcome = "circuit_open"
	OutcomeSkipped     Outcome = "skipped"
)

// Failed reports whether the source produced nothing because of an error.
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeTimeout, OutcomeFailure, OutcomeQuota, OutcomeCircuitOpen:
		return true
	}
	return false
}

// SourceOutcome records one source call of a retrieval.
type SourceOutcome struct {
	Source     SourceName    `json:"source"`
	Outcome    Outcome       `json:"outcome"`
	Candidates int           `json:"candidates"`
	Latency    time.Duration `json:"latency"`
	Err        *SourceError  `json:"error,omitempty"`
}

// SourceError wraps the error of a failed source call.
type SourceError struct {
	Source SourceName `json:"source"`
	Kind   Outcome    `json:"kind"`
	Err    error      `json:"-"`
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s source %s: %v", e.Source, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// MarshalText lets SourceError render as its message in JSON output.
func (e *SourceError) MarshalText() ([]byte, error) {
	return []byte(e.Error()), nil
}

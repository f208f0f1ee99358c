package retrieval

import (
	"math"
	"sort"
	"time"
)

// FusionConfig holds the scoring parameters of Fuse.
type FusionConfig struct {
	Weights      map[SourceName]float64
	Policy       DomainPolicy
	TrustedBoost float64
	Freshness    Freshness
	// MinScore drops fused results below it when > 0.
	MinScore float64
	K        int
	Now      time.Time
}

type fusedEntry struct {
	result FusedResult
	order  int
	base   float64
	seen   map[SourceName]bool
}

// Fuse combines candidate lists into at most K results. Lists are processed
// in the given order, which also decides ties.
//
// Blocked candidates are dropped first. Each remaining list is reduced to the
// best candidate per dedup key and min-max normalized to [0,1]. A document's
// fused score is the weighted sum of its normalized scores across sources,
// multiplied by the trusted boost and the freshness multiplier.
func Fuse(lists [][]Candidate, cfg FusionConfig) []FusedResult {
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}
	boost := cfg.TrustedBoost
	if boost <= 0 {
		boost = 1
	}

	entries := map[string]*fusedEntry{}
	var order []*fusedEntry

	for _, list := range lists {
		for _, c := range normalize(bestPerKey(dropBlocked(list, cfg.Policy))) {
			key := dedupKey(c)
			e, ok := entries[key]
			if !ok {
				e = &fusedEntry{
					result: FusedResult{
						DocID:       c.DocID,
						Title:       c.Title,
						Content:     c.Content,
						URL:         c.URL,
						Domain:      c.Domain,
						PublishedAt: c.PublishedAt,
						DomainTier:  cfg.Policy.Tier(c.Domain),
					},
					order: len(order),
					seen:  map[SourceName]bool{},
				}
				entries[key] = e
				order = append(order, e)
			}
			fillMissing(&e.result, c, cfg.Policy)

			e.base += weight(cfg.Weights, c.Source) * c.NormalizedScore
			if !e.seen[c.Source] {
				e.seen[c.Source] = true
				e.result.ContributingSources = append(e.result.ContributingSources, c.Source)
			}
		}
	}

	results := make([]FusedResult, 0, len(order))
	for _, e := range order {
		score := e.base
		if e.result.DomainTier == TierTrusted {
			score *= boost
		}
		score *= cfg.Freshness.Multiplier(e.result.PublishedAt, cfg.Now)
		e.result.FusedScore = round(score)
		if cfg.MinScore > 0 && e.result.FusedScore < cfg.MinScore {
			continue
		}
		results = append(results, e.result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		return len(results[i].ContributingSources) > len(results[j].ContributingSources)
	})

	if cfg.K > 0 && len(results) > cfg.K {
		results = results[:cfg.K]
	}
	return results
}

func dropBlocked(list []Candidate, policy DomainPolicy) []Candidate {
	out := make([]Candidate, 0, len(list))
	for _, c := range list {
		if policy.Tier(c.Domain) != TierBlocked {
			out = append(out, c)
		}
	}
	return out
}

// bestPerKey keeps the highest raw score per dedup key, at the position of
// the first occurrence.
func bestPerKey(list []Candidate) []Candidate {
	pos := map[string]int{}
	out := make([]Candidate, 0, len(list))
	for _, c := range list {
		key := dedupKey(c)
		if i, ok := pos[key]; ok {
			if c.RawScore > out[i].RawScore {
				out[i] = c
			}
			continue
		}
		pos[key] = len(out)
		out = append(out, c)
	}
	return out
}

// normalize min-max scales raw scores to [0,1]. Equal scores map to 1.
func normalize(list []Candidate) []Candidate {
	if len(list) == 0 {
		return list
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range list {
		lo = math.Min(lo, c.RawScore)
		hi = math.Max(hi, c.RawScore)
	}
	out := make([]Candidate, len(list))
	for i, c := range list {
		if hi == lo {
			c.NormalizedScore = 1
		} else {
			c.NormalizedScore = (c.RawScore - lo) / (hi - lo)
		}
		out[i] = c
	}
	return out
}

func fillMissing(r *FusedResult, c Candidate, policy DomainPolicy) {
	if r.URL == "" && c.URL != "" {
		r.URL = c.URL
	}
	if r.Title == "" {
		r.Title = c.Title
	}
	if r.PublishedAt == nil {
		r.PublishedAt = c.PublishedAt
	}
	if r.Domain == "" && c.Domain != "" {
		r.Domain = c.Domain
		r.DomainTier = policy.Tier(c.Domain)
	}
}

func weight(weights map[SourceName]float64, s SourceName) float64 {
	if w, ok := weights[s]; ok {
		return w
	}
	return 1
}

func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

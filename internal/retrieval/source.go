package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/embedding"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/index"
	"github.com/malaya-ai/malaya/libs/query-engine/internal/websearch"
)

// Source produces scored candidates for a query.
type Source interface {
	Name() SourceName
	Fetch(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// Sources are the collaborators of a Retriever. A nil field disables that
// source.
type Sources struct {
	Lexical Source
	Vector  Source
	Web     Source
}

func (s Sources) local() []Source {
	var out []Source
	if s.Lexical != nil {
		out = append(out, s.Lexical)
	}
	if s.Vector != nil {
		out = append(out, s.Vector)
	}
	return out
}

type lexicalSource struct {
	idx index.LexicalIndex
}

// LexicalSource adapts a keyword index. Raw scores are the index's relevance
// scores (bm25 or ts_rank_cd, higher is better).
func LexicalSource(idx index.LexicalIndex) Source {
	return &lexicalSource{idx: idx}
}

func (s *lexicalSource) Name() SourceName { return SourceLexical }

func (s *lexicalSource) Fetch(ctx context.Context, query string, limit int) ([]Candidate, error) {
	hits, err := s.idx.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return fromHits(SourceLexical, hits), nil
}

type vectorSource struct {
	embedder embedding.Embedder
	idx      index.VectorIndex
}

// VectorSource embeds the query and searches a vector index. Raw scores are
// cosine similarities.
func VectorSource(embedder embedding.Embedder, idx index.VectorIndex) Source {
	return &vectorSource{embedder: embedder, idx: idx}
}

func (s *vectorSource) Name() SourceName { return SourceVector }

func (s *vectorSource) Fetch(ctx context.Context, query string, limit int) ([]Candidate, error) {
	vec, err := s.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.idx.Search(ctx, vec, limit)
	if err != nil {
		return nil, err
	}
	return fromHits(SourceVector, hits), nil
}

func fromHits(source SourceName, hits []index.Hit) []Candidate {
	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		domain := h.Domain
		if domain == "" {
			domain = index.Host(h.URL)
		}
		out = append(out, Candidate{
			Source:      source,
			DocID:       h.ID,
			Title:       h.Title,
			Content:     h.Content,
			URL:         h.URL,
			Domain:      domain,
			PublishedAt: h.PublishedAt,
			RawScore:    h.Score,
		})
	}
	return out
}

type webSource struct {
	searcher websearch.Searcher
}

// WebSource adapts a live web searcher. Web results carry no score, so the
// raw score is derived from rank: 1/(rank+1).
func WebSource(searcher websearch.Searcher) Source {
	return &webSource{searcher: searcher}
}

func (s *webSource) Name() SourceName { return SourceWeb }

func (s *webSource) Fetch(ctx context.Context, query string, limit int) ([]Candidate, error) {
	results, err := s.searcher.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(results))
	for i, r := range results {
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		domain := r.Domain
		if domain == "" {
			domain = index.Host(r.URL)
		}
		id := r.URL
		if id == "" {
			id = "web:" + Fingerprint(r.Content)
		}
		out = append(out, Candidate{
			Source:      SourceWeb,
			DocID:       id,
			Title:       r.Title,
			Content:     r.Content,
			URL:         r.URL,
			Domain:      domain,
			PublishedAt: r.PublishedAt,
			RawScore:    1 / float64(i+1),
		})
	}
	return out, nil
}

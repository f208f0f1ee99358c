package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/embedding"
)

// LoadSeed reads a JSON array of documents.
func LoadSeed(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	for i, d := range docs {
		if docs[i], err = prepare(d); err != nil {
			return nil, fmt.Errorf("seed %s[%d]: %w", path, i, err)
		}
	}
	return docs, nil
}

// embedRequestSize bounds the texts sent per embedding request.
const embedRequestSize = 32

// PopulateOption configures Populate.
type PopulateOption func(*populateOptions)

type populateOptions struct {
	batchSize int
	progress  func(done, total int)
}

// WithBatchSize sets how many documents are written and embedded at a time.
func WithBatchSize(n int) PopulateOption {
	return func(o *populateOptions) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithProgress is called after each batch with the documents done so far.
func WithProgress(fn func(done, total int)) PopulateOption {
	return func(o *populateOptions) { o.progress = fn }
}

// Populate writes docs to the lexical index and, when vec and emb are both
// set, embeds title and content into the vector index. Work is done in
// batches; a failed batch stops the run with earlier batches kept.
func Populate(ctx context.Context, docs []Document, lex LexicalIndex, vec VectorIndex, emb embedding.Embedder, opts ...PopulateOption) error {
	o := populateOptions{batchSize: 64}
	for _, opt := range opts {
		opt(&o)
	}

	for start := 0; start < len(docs); start += o.batchSize {
		end := min(start+o.batchSize, len(docs))
		if err := populateBatch(ctx, docs[start:end], lex, vec, emb); err != nil {
			return fmt.Errorf("documents %d-%d: %w", start, end-1, err)
		}
		if o.progress != nil {
			o.progress(end, len(docs))
		}
	}
	return nil
}

func populateBatch(ctx context.Context, docs []Document, lex LexicalIndex, vec VectorIndex, emb embedding.Embedder) error {
	if lex != nil {
		if err := lex.Upsert(ctx, docs...); err != nil {
			return fmt.Errorf("lexical upsert: %w", err)
		}
	}
	if vec == nil || emb == nil {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Title + "\n" + d.Content
	}
	vectors, err := embedding.EmbedBatch(ctx, emb, texts, embedRequestSize)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}

	entries := make([]VectorEntry, len(docs))
	for i, d := range docs {
		entries[i] = VectorEntry{Document: d, Vector: vectors[i]}
	}
	if err := vec.Upsert(ctx, entries...); err != nil {
		return fmt.Errorf("vector upsert: %w", err)
	}
	return nil
}

// Package ferret implements a positional inverted index for full-text search:
// analysis, pluggable posting storage, plain TF-IDF ranking, a boolean query
// grammar, and term-at-a-time/document-at-a-time evaluation strategies.
//
// ═══════════════════════════════════════════════════════════════════════════════
// WHAT IS AN INVERTED INDEX?
// ═══════════════════════════════════════════════════════════════════════════════
// An inverted index is like the index at the back of a book, but for search engines.
//
// Example: Given these documents:
//   Doc 1: "the quick brown fox"
//   Doc 2: "the lazy dog"
//   Doc 3: "quick brown dogs"
//
// The inverted index would look like:
//   "quick"  → [Doc1:Pos1, Doc3:Pos0]
//   "brown"  → [Doc1:Pos2, Doc3:Pos1]
//   "fox"    → [Doc1:Pos3]
//   "lazy"   → [Doc2:Pos1]
//   "dog"    → [Doc2:Pos2]
//   "dogs"   → [Doc3:Pos2]
//
// This allows us to:
// 1. Find documents containing a word instantly (without scanning all docs)
// 2. Find phrases by checking if word positions are consecutive
// 3. Rank results by TF-IDF
//
// ═══════════════════════════════════════════════════════════════════════════════

package ferret

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Errors raised by the in-memory store's cursor primitives.
var (
	ErrNoPostingList = errors.New("no posting list exists for token")
	ErrNoNextElement = errors.New("no next element found")
	ErrNoPrevElement = errors.New("no previous element found")
)

// Config configures an Index at creation time.
type Config struct {
	Analyzer AnalyzerConfig
}

// DefaultIndexConfig returns the standard index configuration.
func DefaultIndexConfig() Config {
	return Config{Analyzer: DefaultConfig()}
}

// Index orchestrates analysis, storage, scoring, and query evaluation. It
// never touches a backend's internals directly - everything goes through the
// Store interface, so the same Index type runs unmodified against any of the
// four reference backends.
type Index struct {
	mu sync.Mutex // serializes writers; see Store for per-backend read concurrency

	name    string
	store   Store
	cfg     Config
	idf     *idfCache
	metrics *MetricsRecorder
}

// Option configures optional Index behavior at Open time.
type Option func(*Index) error

// Open creates or attaches to an index backed by store. name labels the
// index in log lines and in the Prometheus collector's "index" label; it is
// not passed to store (the remote-KV backend takes its key prefix from
// rediskv.New).
func Open(name string, store Store, cfg Config, opts ...Option) (*Index, error) {
	if name == "" {
		return nil, &ConfigError{Msg: "index name must not be empty"}
	}
	if store == nil {
		return nil, &ConfigError{Msg: "store must not be nil"}
	}

	ctx := context.Background()
	persisted, found, err := store.GetAnalyzerConfig(ctx)
	if err != nil {
		return nil, &BackendError{Op: "GetAnalyzerConfig", Err: err}
	}
	if !found {
		if err := store.PutAnalyzerConfig(ctx, cfg.Analyzer); err != nil {
			return nil, &BackendError{Op: "PutAnalyzerConfig", Err: err}
		}
	} else if persisted != cfg.Analyzer {
		return nil, &ConfigError{Msg: "analyzer config does not match the config this index was created with"}
	}

	ix := &Index{
		name:    name,
		store:   store,
		cfg:     cfg,
		idf:     newIDFCache(),
		metrics: NewMetricsRecorder(1000),
	}
	for _, opt := range opts {
		if err := opt(ix); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

// AddDocument analyzes text, records its postings, and bumps the index-wide
// counters. Returns ErrAlreadyExists if docID was already indexed - see
// DESIGN.md for why duplicates are rejected instead of silently replaced.
func (ix *Index) AddDocument(ctx context.Context, docID, text string, meta map[string]any) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	start := ix.metrics.clock()

	slog.Info("indexing document", slog.String("docID", docID), slog.String("index", ix.name))

	tokens := AnalyzeWithConfig(text, ix.cfg.Analyzer)

	doc := StoredDocument{
		DocID:    docID,
		Body:     text,
		Metadata: meta,
		Length:   len(tokens),
	}
	if err := ix.store.PutDocument(ctx, doc); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return ErrAlreadyExists
		}
		return &BackendError{Op: "PutDocument", Err: err}
	}

	postings := make(map[string][]int)
	for position, token := range tokens {
		postings[token] = append(postings[token], position)
	}

	counters, err := ix.store.GetCounters(ctx)
	if err != nil {
		return &BackendError{Op: "GetCounters", Err: err}
	}

	var newTerms int64
	for term := range postings {
		df, err := ix.store.DocumentFrequency(ctx, term)
		if err != nil {
			return &BackendError{Op: "DocumentFrequency", Err: err}
		}
		if df == 0 {
			newTerms++
		}
	}

	if err := ix.store.PutPostings(ctx, docID, postings); err != nil {
		return &BackendError{Op: "PutPostings", Err: err}
	}

	counters.DocCount++
	counters.TermCount += newTerms
	if err := ix.store.PutCounters(ctx, counters); err != nil {
		return &BackendError{Op: "PutCounters", Err: err}
	}

	ix.metrics.RecordIngest(ix.metrics.since(start))
	return nil
}

// Store exposes the backing posting store, primarily for backend-specific
// administrative tasks (e.g. closing a *sql.DB) that don't belong on Index.
func (ix *Index) Store() Store {
	return ix.store
}

// Metrics returns a snapshot of ingest/query timing statistics.
func (ix *Index) Metrics() Metrics {
	return ix.metrics.Snapshot()
}

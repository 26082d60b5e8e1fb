package ferret

import "context"

// ═══════════════════════════════════════════════════════════════════════════════
// POSTING STORE: the pluggable persistence boundary
// ═══════════════════════════════════════════════════════════════════════════════
// Everything above Store (the analyzer, the scorer, the query parser and
// evaluator) is backend-agnostic. Store is the one seam a new backend has to
// fill in: four reference implementations ship with this module (in-memory,
// embedded KV, remote KV, relational - see store_memory.go and the
// store/badgerstore, store/rediskv, store/sqlstore packages), and any other
// durable key/value or SQL engine can be wired in by implementing this
// interface.
//
// Every method takes a context so a slow backend (a network round trip to
// Redis, a disk read from Badger, a query against SQLite) is a cancellable
// suspension point - the evaluator checks ctx between posting-list fetches.
// ═══════════════════════════════════════════════════════════════════════════════

// StoredDocument is the durable record for one indexed document.
type StoredDocument struct {
	DocID    string
	Body     string
	Metadata map[string]any
	Length   int // number of analyzed tokens
}

// Counters are the two index-wide numbers every scoring and evaluation
// decision depends on: the document count (N) and the distinct term count
// (V, informational only - it is never part of the TF-IDF formula but every
// backend still tracks it for diagnostics and snapshots).
type Counters struct {
	DocCount  int64
	TermCount int64
}

// Store is the posting-store abstraction spec'd in the positional
// inverted-index design: a minimal set of operations sufficient to build
// ranked, phrase, and boolean search on top of any of the four backends.
type Store interface {
	// PutDocument persists a document's body, metadata, and length. Returns
	// ErrAlreadyExists if docID is already present - the engine is
	// append-only.
	PutDocument(ctx context.Context, doc StoredDocument) error

	// PutPostings atomically records, for one document, the positions at
	// which each term occurred. Must be called for a docID already written
	// by PutDocument (or in the same logical transaction as it); backends
	// that support it perform both writes atomically.
	PutPostings(ctx context.Context, docID string, postings map[string][]int) error

	// GetDocument returns a previously stored document, or ErrNotFound.
	GetDocument(ctx context.Context, docID string) (StoredDocument, error)

	// GetPostingList returns, for a term, the set of document ids in which
	// it occurs. An unknown term returns an empty, non-nil slice (no error -
	// absence from a posting list is not a failure).
	GetPostingList(ctx context.Context, term string) ([]string, error)

	// GetTFAndPositions returns the term frequency and sorted position list
	// for one term in one document. Returns ErrNotFound if the term never
	// occurred in that document.
	GetTFAndPositions(ctx context.Context, term, docID string) (tf int, positions []int, err error)

	// DocumentFrequency returns df(t): the number of documents containing
	// term. Zero for an unknown term.
	DocumentFrequency(ctx context.Context, term string) (int64, error)

	// GetCounters returns the index-wide N/V snapshot. The ranked evaluators
	// read this once per query so a single query sees internally consistent
	// counters even while concurrent writers proceed.
	GetCounters(ctx context.Context) (Counters, error)

	// PutCounters persists an updated N/V snapshot. Called by the index core
	// after every successful AddDocument.
	PutCounters(ctx context.Context, c Counters) error

	// IterDocuments calls fn once per known document id, in unspecified
	// order. Used by boolean NOT evaluation (all docs minus a subset) on
	// every backend except the in-memory one, which negates over its
	// bitmaps. Stops and returns fn's error if it returns non-nil.
	IterDocuments(ctx context.Context, fn func(docID string) error) error

	// GetAnalyzerConfig returns the analyzer configuration persisted by the
	// first Open of this index, and false if none has been persisted yet.
	GetAnalyzerConfig(ctx context.Context) (cfg AnalyzerConfig, found bool, err error)

	// PutAnalyzerConfig persists the analyzer configuration a new index was
	// opened with. Called once, by the first Open against an empty backend.
	PutAnalyzerConfig(ctx context.Context, cfg AnalyzerConfig) error
}

// Hit is one scored or unscored result from a search operation: the matched
// document's id, body, and metadata, plus its score. Boolean and phrase
// results carry a fixed Score of 1.0; ranked results carry an actual TF-IDF
// sum. DocID is always the tie-break key for equal scores.
type Hit struct {
	DocID    string
	Body     string
	Metadata map[string]any
	Score    float64
}

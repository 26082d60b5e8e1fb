// Package rediskv implements ferret.Store against a remote Redis instance
// via github.com/redis/go-redis/v9 - the networked, shared-cache backend in
// the posting-store lineup.
package rediskv

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/ferretdex/ferret"
)

// ═══════════════════════════════════════════════════════════════════════════════
// KEY LAYOUT
// ═══════════════════════════════════════════════════════════════════════════════
// Every key is namespaced under "<index>:" so multiple indexes can share one
// Redis instance:
//
//	<index>:doc:<id>       hash  {body, meta, length}
//	<index>:term:<t>       hash  docID -> JSON-encoded []int positions
//	<index>:docs           set   every known doc id (for IterDocuments/NOT)
//	<index>:metadata       hash  {doc_count, term_count}
//	<index>:analyzer       hash  {stemming, stopwords}, set once on first Open
//
// Using a per-term hash (rather than one giant sorted set) keeps df(t) a
// single HLEN call and keeps GetTFAndPositions a single HGET.
// ═══════════════════════════════════════════════════════════════════════════════

// Store wraps a *redis.Client scoped to one index name.
type Store struct {
	client *redis.Client
	prefix string
}

// New wraps client for index name, namespacing every key under "<name>:".
func New(client *redis.Client, name string) *Store {
	return &Store{client: client, prefix: name + ":"}
}

func (s *Store) docKey(docID string) string { return s.prefix + "doc:" + docID }
func (s *Store) termKey(term string) string { return s.prefix + "term:" + term }
func (s *Store) docsSetKey() string         { return s.prefix + "docs" }
func (s *Store) metadataKey() string        { return s.prefix + "metadata" }
func (s *Store) analyzerKey() string        { return s.prefix + "analyzer" }

func (s *Store) PutDocument(ctx context.Context, doc ferret.StoredDocument) error {
	exists, err := s.client.Exists(ctx, s.docKey(doc.DocID)).Result()
	if err != nil {
		return &ferret.BackendError{Op: "PutDocument", Err: err}
	}
	if exists > 0 {
		return ferret.ErrAlreadyExists
	}

	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return &ferret.BackendError{Op: "PutDocument", Err: err}
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.docKey(doc.DocID), map[string]any{
		"body":   doc.Body,
		"meta":   string(metaJSON),
		"length": doc.Length,
	})
	pipe.SAdd(ctx, s.docsSetKey(), doc.DocID)
	if _, err := pipe.Exec(ctx); err != nil {
		return &ferret.BackendError{Op: "PutDocument", Err: err}
	}
	return nil
}

func (s *Store) PutPostings(ctx context.Context, docID string, postings map[string][]int) error {
	pipe := s.client.TxPipeline()
	for term, positions := range postings {
		encoded, err := json.Marshal(positions)
		if err != nil {
			return &ferret.BackendError{Op: "PutPostings", Err: err}
		}
		pipe.HSet(ctx, s.termKey(term), docID, string(encoded))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return &ferret.BackendError{Op: "PutPostings", Err: err}
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, docID string) (ferret.StoredDocument, error) {
	result, err := s.client.HGetAll(ctx, s.docKey(docID)).Result()
	if err != nil {
		return ferret.StoredDocument{}, &ferret.BackendError{Op: "GetDocument", Err: err}
	}
	if len(result) == 0 {
		return ferret.StoredDocument{}, ferret.ErrNotFound
	}

	var meta map[string]any
	if m := result["meta"]; m != "" && m != "null" {
		if err := json.Unmarshal([]byte(m), &meta); err != nil {
			return ferret.StoredDocument{}, &ferret.BackendError{Op: "GetDocument", Err: err}
		}
	}
	length, _ := strconv.Atoi(result["length"])

	return ferret.StoredDocument{
		DocID:    docID,
		Body:     result["body"],
		Metadata: meta,
		Length:   length,
	}, nil
}

func (s *Store) GetPostingList(ctx context.Context, term string) ([]string, error) {
	docIDs, err := s.client.HKeys(ctx, s.termKey(term)).Result()
	if err != nil {
		return nil, &ferret.BackendError{Op: "GetPostingList", Err: err}
	}
	return docIDs, nil
}

func (s *Store) GetTFAndPositions(ctx context.Context, term, docID string) (int, []int, error) {
	raw, err := s.client.HGet(ctx, s.termKey(term), docID).Result()
	if err == redis.Nil {
		return 0, nil, ferret.ErrNotFound
	}
	if err != nil {
		return 0, nil, &ferret.BackendError{Op: "GetTFAndPositions", Err: err}
	}

	var positions []int
	if err := json.Unmarshal([]byte(raw), &positions); err != nil {
		return 0, nil, &ferret.BackendError{Op: "GetTFAndPositions", Err: err}
	}
	return len(positions), positions, nil
}

func (s *Store) DocumentFrequency(ctx context.Context, term string) (int64, error) {
	n, err := s.client.HLen(ctx, s.termKey(term)).Result()
	if err != nil {
		return 0, &ferret.BackendError{Op: "DocumentFrequency", Err: err}
	}
	return n, nil
}

func (s *Store) GetCounters(ctx context.Context) (ferret.Counters, error) {
	result, err := s.client.HGetAll(ctx, s.metadataKey()).Result()
	if err != nil {
		return ferret.Counters{}, &ferret.BackendError{Op: "GetCounters", Err: err}
	}
	docCount, _ := strconv.ParseInt(result["doc_count"], 10, 64)
	termCount, _ := strconv.ParseInt(result["term_count"], 10, 64)
	return ferret.Counters{DocCount: docCount, TermCount: termCount}, nil
}

func (s *Store) PutCounters(ctx context.Context, c ferret.Counters) error {
	err := s.client.HSet(ctx, s.metadataKey(), map[string]any{
		"doc_count":  c.DocCount,
		"term_count": c.TermCount,
	}).Err()
	if err != nil {
		return &ferret.BackendError{Op: "PutCounters", Err: err}
	}
	return nil
}

func (s *Store) GetAnalyzerConfig(ctx context.Context) (ferret.AnalyzerConfig, bool, error) {
	result, err := s.client.HGetAll(ctx, s.analyzerKey()).Result()
	if err != nil {
		return ferret.AnalyzerConfig{}, false, &ferret.BackendError{Op: "GetAnalyzerConfig", Err: err}
	}
	if len(result) == 0 {
		return ferret.AnalyzerConfig{}, false, nil
	}
	return ferret.AnalyzerConfig{
		EnableStemming:  result["stemming"] == "1",
		EnableStopwords: result["stopwords"] == "1",
	}, true, nil
}

func (s *Store) PutAnalyzerConfig(ctx context.Context, cfg ferret.AnalyzerConfig) error {
	err := s.client.HSet(ctx, s.analyzerKey(), map[string]any{
		"stemming":  boolFlag(cfg.EnableStemming),
		"stopwords": boolFlag(cfg.EnableStopwords),
	}).Err()
	if err != nil {
		return &ferret.BackendError{Op: "PutAnalyzerConfig", Err: err}
	}
	return nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (s *Store) IterDocuments(ctx context.Context, fn func(docID string) error) error {
	var cursor uint64
	for {
		ids, next, err := s.client.SScan(ctx, s.docsSetKey(), cursor, "", 0).Result()
		if err != nil {
			return &ferret.BackendError{Op: "IterDocuments", Err: err}
		}
		for _, id := range ids {
			if err := fn(id); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

package ferret

import (
	"context"
	"errors"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TOP-LEVEL QUERY ENTRY POINTS
// ═══════════════════════════════════════════════════════════════════════════════
// Search/PhraseSearch/BooleanSearch are the three evaluation modes. None of
// them interpret query structure beyond dispatching to the right evaluator:
// the index core orchestrates, the evaluator decides how.
// ═══════════════════════════════════════════════════════════════════════════════

// Search runs a ranked TF-IDF search over query's analyzed terms using the
// term-at-a-time strategy, returning at most topK hits sorted by descending
// score (ties broken by ascending doc id). Pass topK <= 0 for no limit.
func (ix *Index) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	start := ix.metrics.clock()
	terms := AnalyzeWithConfig(query, ix.cfg.Analyzer)
	hits, err := ix.EvaluateTAAT(ctx, terms, topK)
	ix.metrics.RecordQuery(ix.metrics.since(start))
	return hits, err
}

// SearchDAAT is Search's document-at-a-time counterpart; see
// EvaluateTAAT/EvaluateDAAT for why the two must agree on results.
func (ix *Index) SearchDAAT(ctx context.Context, query string, topK int) ([]Hit, error) {
	start := ix.metrics.clock()
	terms := AnalyzeWithConfig(query, ix.cfg.Analyzer)
	hits, err := ix.EvaluateDAAT(ctx, terms, topK)
	ix.metrics.RecordQuery(ix.metrics.since(start))
	return hits, err
}

// PostingListProbe exposes one term's raw posting list: every document it
// occurs in, mapped to its sorted position list. It bypasses scoring
// entirely, for diagnostics and tests.
func (ix *Index) PostingListProbe(ctx context.Context, term string) (map[string][]int, error) {
	docIDs, err := ix.store.GetPostingList(ctx, term)
	if err != nil {
		return nil, &BackendError{Op: "GetPostingList", Err: err}
	}

	postings := make(map[string][]int, len(docIDs))
	for _, docID := range docIDs {
		_, positions, err := ix.store.GetTFAndPositions(ctx, term, docID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		postings[docID] = positions
	}
	return postings, nil
}

// materializeHits fills in each hit's Body and Metadata from the document
// store. Every evaluation mode returns full result records, not bare ids -
// callers get the document back without a second round of point lookups.
func (ix *Index) materializeHits(ctx context.Context, hits []Hit) ([]Hit, error) {
	for i := range hits {
		doc, err := ix.store.GetDocument(ctx, hits[i].DocID)
		if err != nil {
			return nil, &BackendError{Op: "GetDocument", Err: err}
		}
		hits[i].Body = doc.Body
		hits[i].Metadata = doc.Metadata
	}
	return hits, nil
}

// dedupeTerms collapses duplicate query terms to one occurrence each,
// preserving first-seen order. Ranked evaluation gives set semantics to
// query terms: "learning learning" scores the same as "learning".
func dedupeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	deduped := make([]string, 0, len(terms))
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		deduped = append(deduped, term)
	}
	return deduped
}

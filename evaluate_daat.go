package ferret

import (
	"context"
	"errors"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DAAT: Document-At-A-Time ranked evaluation
// ═══════════════════════════════════════════════════════════════════════════════
// Instead of accumulating across terms, DAAT first unions every term's
// candidate document set (one bitmap-style union), then scores each
// candidate document exactly once by summing its contribution from every
// query term - the expensive per-term point lookups run only for documents
// that can possibly match.
//
// TAAT and DAAT must agree up to floating-point summation order: both sum
// the same tfn(t,d)*idf(t) terms for the same (term, doc) pairs, just in a
// different loop order.
// ═══════════════════════════════════════════════════════════════════════════════

// EvaluateDAAT runs a ranked search over terms using the document-at-a-time
// strategy: union candidate documents first, then score each one fully
// before moving to the next.
func (ix *Index) EvaluateDAAT(ctx context.Context, terms []string, topK int) ([]Hit, error) {
	terms = dedupeTerms(terms)

	counters, err := ix.store.GetCounters(ctx)
	if err != nil {
		return nil, &BackendError{Op: "GetCounters", Err: err}
	}

	idfByTerm := make(map[string]float64, len(terms))
	for _, term := range terms {
		idfValue, err := ix.idf.idf(ctx, ix.store, counters, term)
		if err != nil {
			return nil, err
		}
		idfByTerm[term] = idfValue
	}

	candidates := make(map[string]struct{})
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		docIDs, err := ix.store.GetPostingList(ctx, term)
		if err != nil {
			return nil, &BackendError{Op: "GetPostingList", Err: err}
		}
		for _, docID := range docIDs {
			candidates[docID] = struct{}{}
		}
	}

	accumulator := make(map[string]float64, len(candidates))
	for docID := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		doc, err := ix.store.GetDocument(ctx, docID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		var score float64
		for _, term := range terms {
			idfValue := idfByTerm[term]
			if idfValue == 0 {
				continue
			}
			tf, _, err := ix.store.GetTFAndPositions(ctx, term, docID)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			score += tfn(tf, doc.Length) * idfValue
		}
		if score > 0 {
			accumulator[docID] = score
		}
	}

	return ix.materializeHits(ctx, topHits(accumulator, topK))
}

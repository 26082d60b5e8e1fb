package ferret

import (
	"context"
	"errors"
	"sort"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TAAT: Term-At-A-Time ranked evaluation
// ═══════════════════════════════════════════════════════════════════════════════
// The outer loop walks query terms one at a time; for each term we fetch its
// full posting list and accumulate a partial score into every document that
// contains it: an outer loop over query terms, an inner loop over that
// term's postings, accumulating into a map keyed by document id. A term
// whose idf is 0 (it occurs in every document) is skipped, so it adds no
// document to the accumulator.
// ═══════════════════════════════════════════════════════════════════════════════

// EvaluateTAAT runs a ranked search over terms using the term-at-a-time
// strategy: one accumulator map, one term fully processed before the next.
func (ix *Index) EvaluateTAAT(ctx context.Context, terms []string, topK int) ([]Hit, error) {
	terms = dedupeTerms(terms)
	accumulator := make(map[string]float64)

	counters, err := ix.store.GetCounters(ctx)
	if err != nil {
		return nil, &BackendError{Op: "GetCounters", Err: err}
	}

	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		idfValue, err := ix.idf.idf(ctx, ix.store, counters, term)
		if err != nil {
			return nil, err
		}
		if idfValue == 0 {
			continue
		}

		docIDs, err := ix.store.GetPostingList(ctx, term)
		if err != nil {
			return nil, &BackendError{Op: "GetPostingList", Err: err}
		}

		for _, docID := range docIDs {
			tf, _, err := ix.store.GetTFAndPositions(ctx, term, docID)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			doc, err := ix.store.GetDocument(ctx, docID)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			accumulator[docID] += tfn(tf, doc.Length) * idfValue
		}
	}

	return ix.materializeHits(ctx, topHits(accumulator, topK))
}

// topHits converts a doc_id->score accumulator into a sorted, truncated Hit
// slice: descending score, ascending doc_id tie-break.
func topHits(accumulator map[string]float64, topK int) []Hit {
	hits := make([]Hit, 0, len(accumulator))
	for docID, score := range accumulator {
		hits = append(hits, Hit{DocID: docID, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

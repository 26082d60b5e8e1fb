package ferret

import (
	"context"
	"sort"

	"github.com/RoaringBitmap/roaring"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BOOLEAN EVALUATION: walking a QueryNode tree
// ═══════════════════════════════════════════════════════════════════════════════
// TERM and PHRASE leaves run ranked/phrase search and contribute their
// matching document ids; NOT/AND/OR combine child document-id sets via set
// difference/intersection/union. A TERM leaf contributes only documents
// that ranked search scores above zero, so a term occurring in every
// document (idf 0) contributes no ids. Every result in a boolean query carries a
// flat score of 1.0 - only the document-id set matters, and ties break on
// ascending doc_id.
//
// On the in-memory backend the NOT case runs over roaring.Bitmap set
// algebra; other backends fall back to plain Go sets since they have no
// bitmap representation.
// ═══════════════════════════════════════════════════════════════════════════════

// BooleanSearch parses query per the boolean grammar and evaluates it.
func (ix *Index) BooleanSearch(ctx context.Context, query string) ([]Hit, error) {
	start := ix.metrics.clock()
	hits, err := ix.booleanSearch(ctx, query)
	ix.metrics.RecordQuery(ix.metrics.since(start))
	return hits, err
}

func (ix *Index) booleanSearch(ctx context.Context, query string) ([]Hit, error) {
	node, err := ParseQuery(query)
	if err != nil {
		return nil, err
	}

	docIDs, err := ix.evalNode(ctx, node)
	if err != nil {
		return nil, err
	}

	sort.Strings(docIDs)
	hits := make([]Hit, len(docIDs))
	for i, id := range docIDs {
		hits[i] = Hit{DocID: id, Score: 1.0}
	}
	return ix.materializeHits(ctx, hits)
}

func (ix *Index) evalNode(ctx context.Context, node QueryNode) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch n := node.(type) {
	case *TermNode:
		hits, err := ix.EvaluateTAAT(ctx, AnalyzeWithConfig(n.Term, ix.cfg.Analyzer), 0)
		if err != nil {
			return nil, err
		}
		return hitDocIDs(hits), nil

	case *PhraseNode:
		hits, err := ix.phraseSearch(ctx, n.Phrase, 0)
		if err != nil {
			return nil, err
		}
		return hitDocIDs(hits), nil

	case *NotNode:
		child, err := ix.evalNode(ctx, n.Child)
		if err != nil {
			return nil, err
		}
		return ix.allDocIDsExcept(ctx, child)

	case *AndNode:
		left, err := ix.evalNode(ctx, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := ix.evalNode(ctx, n.Right)
		if err != nil {
			return nil, err
		}
		return intersectSorted(left, right), nil

	case *OrNode:
		left, err := ix.evalNode(ctx, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := ix.evalNode(ctx, n.Right)
		if err != nil {
			return nil, err
		}
		return unionSorted(left, right), nil

	default:
		return nil, &ConfigError{Msg: "unknown query node type"}
	}
}

func hitDocIDs(hits []Hit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.DocID
	}
	return ids
}

// allDocIDsExcept returns every known document id not present in exclude,
// using roaring-bitmap AndNot when the backend is the in-memory store and a
// plain set difference otherwise.
func (ix *Index) allDocIDsExcept(ctx context.Context, exclude []string) ([]string, error) {
	if mem, ok := ix.store.(*memoryStore); ok {
		return negateOverMemory(mem, exclude), nil
	}

	excludeSet := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excludeSet[id] = struct{}{}
	}

	var result []string
	err := ix.store.IterDocuments(ctx, func(docID string) error {
		if _, excluded := excludeSet[docID]; !excluded {
			result = append(result, docID)
		}
		return nil
	})
	if err != nil {
		return nil, &BackendError{Op: "IterDocuments", Err: err}
	}
	return result, nil
}

func negateOverMemory(mem *memoryStore, exclude []string) []string {
	mem.mu.RLock()
	allDocs := roaring.NewBitmap()
	for ord := range mem.docByOrdinal {
		allDocs.Add(uint32(ord))
	}
	excludeBitmap := roaring.NewBitmap()
	for _, id := range exclude {
		if ord, ok := mem.ordinalFor(id); ok {
			excludeBitmap.Add(uint32(ord))
		}
	}
	mem.mu.RUnlock()

	result := roaring.AndNot(allDocs, excludeBitmap)
	var out []string
	iter := result.Iterator()
	for iter.HasNext() {
		out = append(out, mem.docIDForOrdinal(int(iter.Next())))
	}
	return out
}

func intersectSorted(a, b []string) []string {
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	var out []string
	seen := make(map[string]struct{})
	for _, id := range b {
		if _, ok := set[id]; ok {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}

func unionSorted(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, id := range append(append([]string{}, a...), b...) {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

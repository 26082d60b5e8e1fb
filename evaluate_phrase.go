package ferret

import (
	"context"
	"errors"
	"sort"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PHRASE SEARCH: Finding Multi-Word Sequences
// ═══════════════════════════════════════════════════════════════════════════════
// Phrase search finds exact sequences of words: all terms present in a
// document, at strictly consecutive positions. Every match scores a flat
// 1.0 - phrase search does not rank by proximity or TF-IDF.
//
// Two evaluation paths:
//
//   - memoryStore: a galloping cursor walk over the term's cross-document
//     skip list (nextPhrase/findPhraseEnd/findPhraseStart/isValidPhrase).
//   - any other Store: candidate-set intersection via GetPostingList, then
//     a direct adjacency-by-+1 check over GetTFAndPositions, since a
//     remote/relational backend has no cross-document ordered cursor to
//     gallop over.
// ═══════════════════════════════════════════════════════════════════════════════

// PhraseSearch finds every document containing phrase as an exact,
// consecutive sequence of analyzed terms, returning at most topK hits
// (ascending doc id, since every phrase hit scores a flat 1.0). Pass
// topK <= 0 for no limit.
func (ix *Index) PhraseSearch(ctx context.Context, phrase string, topK int) ([]Hit, error) {
	start := ix.metrics.clock()
	hits, err := ix.phraseSearch(ctx, phrase, topK)
	ix.metrics.RecordQuery(ix.metrics.since(start))
	return hits, err
}

func (ix *Index) phraseSearch(ctx context.Context, phrase string, topK int) ([]Hit, error) {
	terms := AnalyzeWithConfig(phrase, ix.cfg.Analyzer)
	if len(terms) == 0 {
		return nil, nil
	}

	var hits []Hit
	var err error
	switch {
	case len(terms) == 1:
		hits, err = ix.singleTermPhraseHits(ctx, terms[0])
	default:
		if mem, ok := ix.store.(*memoryStore); ok {
			hits = phraseSearchMemory(mem, terms)
		} else {
			hits, err = ix.phraseSearchGeneric(ctx, terms)
		}
	}
	if err != nil {
		return nil, err
	}
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return ix.materializeHits(ctx, hits)
}

func (ix *Index) singleTermPhraseHits(ctx context.Context, term string) ([]Hit, error) {
	docIDs, err := ix.store.GetPostingList(ctx, term)
	if err != nil {
		return nil, &BackendError{Op: "GetPostingList", Err: err}
	}
	hits := make([]Hit, 0, len(docIDs))
	for _, docID := range docIDs {
		hits = append(hits, Hit{DocID: docID, Score: 1.0})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].DocID < hits[j].DocID })
	return hits, nil
}

// phraseSearchGeneric intersects every term's candidate document set, then
// checks position adjacency directly - no cross-document cursor required.
func (ix *Index) phraseSearchGeneric(ctx context.Context, terms []string) ([]Hit, error) {
	candidateSets := make([][]string, len(terms))
	for i, term := range terms {
		docIDs, err := ix.store.GetPostingList(ctx, term)
		if err != nil {
			return nil, &BackendError{Op: "GetPostingList", Err: err}
		}
		candidateSets[i] = docIDs
	}

	common := intersectStrings(candidateSets)

	var hits []Hit
	for _, docID := range common {
		matched, err := ix.docMatchesPhrase(ctx, terms, docID)
		if err != nil {
			return nil, err
		}
		if matched {
			hits = append(hits, Hit{DocID: docID, Score: 1.0})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].DocID < hits[j].DocID })
	return hits, nil
}

// docMatchesPhrase reports whether terms occur consecutively (start,
// start+1, start+2, ...) anywhere in docID. A term absent from the document
// is simply no match; any other read failure aborts the query.
func (ix *Index) docMatchesPhrase(ctx context.Context, terms []string, docID string) (bool, error) {
	_, firstPositions, err := ix.store.GetTFAndPositions(ctx, terms[0], docID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	positionsByTerm := make(map[string][]int, len(terms)-1)
	for _, term := range terms[1:] {
		_, positions, err := ix.store.GetTFAndPositions(ctx, term, docID)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		positionsByTerm[term] = positions
	}

	for _, start := range firstPositions {
		matched := true
		for i := 1; i < len(terms); i++ {
			if !containsInt(positionsByTerm[terms[i]], start+i) {
				matched = false
				break
			}
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

func containsInt(haystack []int, needle int) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

// intersectStrings returns the elements common to every slice in sets.
func intersectStrings(sets [][]string) []string {
	if len(sets) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, set := range sets {
		seen := make(map[string]struct{}, len(set))
		for _, v := range set {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			counts[v]++
		}
	}
	var common []string
	for v, c := range counts {
		if c == len(sets) {
			common = append(common, v)
		}
	}
	return common
}

// ═══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY FAST PATH: gallop across the cross-document position stream
// ═══════════════════════════════════════════════════════════════════════════════

func phraseSearchMemory(mem *memoryStore, terms []string) []Hit {
	seen := make(map[string]struct{})
	var hits []Hit

	currentPos := beginPosition
	for currentPos != endPosition {
		phraseStart, _ := nextPhrase(mem, terms, currentPos)
		if phraseStart == endPosition {
			break
		}

		docID := mem.docIDForOrdinal(phraseStart.doc)
		if _, dup := seen[docID]; !dup {
			seen[docID] = struct{}{}
			hits = append(hits, Hit{DocID: docID, Score: 1.0})
		}
		currentPos = phraseStart
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].DocID < hits[j].DocID })
	return hits
}

// nextPhrase finds the next occurrence of terms (an exact, consecutive
// sequence) starting the search at startPos: hop forward through each term
// to find a candidate end, walk backward to find the candidate start,
// validate consecutiveness, and retry from the candidate start if the walk
// produced a false match.
func nextPhrase(mem *memoryStore, terms []string, startPos postingPosition) (start, end postingPosition) {
	endPos := findPhraseEnd(mem, terms, startPos)
	if endPos == endPosition {
		return endPosition, endPosition
	}

	phraseStart := findPhraseStart(mem, terms, endPos)

	if isValidPhrase(phraseStart, endPos, len(terms)) {
		return phraseStart, endPos
	}

	return nextPhrase(mem, terms, phraseStart)
}

func findPhraseEnd(mem *memoryStore, terms []string, startPos postingPosition) postingPosition {
	currentPos := startPos
	for _, term := range terms {
		currentPos, _ = mem.next(term, currentPos)
		if currentPos == endPosition {
			return endPosition
		}
	}
	return currentPos
}

func findPhraseStart(mem *memoryStore, terms []string, endPos postingPosition) postingPosition {
	currentPos := endPos
	for i := len(terms) - 2; i >= 0; i-- {
		currentPos, _ = mem.previous(terms[i], currentPos)
	}
	return currentPos
}

func isValidPhrase(start, end postingPosition, termCount int) bool {
	expectedDistance := termCount - 1
	actualDistance := end.offset - start.offset
	return start.doc == end.doc && actualDistance == expectedDistance
}

package ferret

import (
	"context"
	"math"
	"sync"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SCORING: Plain TF-IDF
// ═══════════════════════════════════════════════════════════════════════════════
// This engine deliberately does NOT implement BM25, term-frequency saturation,
// or length-normalization curves. The formulas are exactly:
//
//	idf(t)      = ln(N / df(t))          (0 if df(t) == 0)
//	tfn(t, d)   = tf(t, d) / length(d)    (0 if length(d) == 0)
//	score(q, d) = sum over unique query terms t of tfn(t, d) * idf(t)
//
// No smoothing, no saturation, no document-length curve beyond the plain
// tf/length normalization above.
// ═══════════════════════════════════════════════════════════════════════════════

// idfCacheEntry pairs a cached IDF value with the (N, df) snapshot it was
// computed from. A write invalidates entries lazily: instead of clearing
// the whole cache on every AddDocument, we recompute only when the stored
// snapshot no longer matches the store's current counters - cheaper when
// writes are frequent relative to reads.
type idfCacheEntry struct {
	value   float64
	nAtFit  int64
	dfAtFit int64
}

// idfCache memoizes per-term IDF values against the (N, df) pair they were
// computed from.
type idfCache struct {
	mu      sync.Mutex
	entries map[string]idfCacheEntry
}

func newIDFCache() *idfCache {
	return &idfCache{entries: make(map[string]idfCacheEntry)}
}

// idf returns ln(N/df(t)), using the cache when the given (N, df) pair
// still matches what was cached. The caller supplies counters it read once
// at the start of its query, so every term scored within one evaluation
// sees the same N even while concurrent writers proceed.
func (c *idfCache) idf(ctx context.Context, store Store, counters Counters, term string) (float64, error) {
	df, err := store.DocumentFrequency(ctx, term)
	if err != nil {
		return 0, &BackendError{Op: "DocumentFrequency", Err: err}
	}

	c.mu.Lock()
	if cached, ok := c.entries[term]; ok && cached.nAtFit == counters.DocCount && cached.dfAtFit == df {
		c.mu.Unlock()
		return cached.value, nil
	}
	c.mu.Unlock()

	value := computeIDF(counters.DocCount, df)

	c.mu.Lock()
	c.entries[term] = idfCacheEntry{value: value, nAtFit: counters.DocCount, dfAtFit: df}
	c.mu.Unlock()

	return value, nil
}

// computeIDF implements idf(t) = ln(N/df(t)), with df == 0 mapping to 0
// rather than a division-by-zero/NaN, per the invariant that an unseen term
// contributes nothing to a ranked score.
func computeIDF(n, df int64) float64 {
	if df <= 0 || n <= 0 {
		return 0
	}
	return math.Log(float64(n) / float64(df))
}

// tfn implements tfn(t, d) = tf/length(d), with length(d) == 0 mapping to 0.
func tfn(tf, length int) float64 {
	if length <= 0 {
		return 0
	}
	return float64(tf) / float64(length)
}

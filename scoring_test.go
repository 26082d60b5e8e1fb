package ferret

import (
	"context"
	"math"
	"testing"
)

func TestComputeIDF_UnseenTermIsZero(t *testing.T) {
	if got := computeIDF(10, 0); got != 0 {
		t.Errorf("computeIDF(10, 0) = %v, want 0", got)
	}
}

func TestComputeIDF_EmptyIndexIsZero(t *testing.T) {
	if got := computeIDF(0, 0); got != 0 {
		t.Errorf("computeIDF(0, 0) = %v, want 0", got)
	}
}

func TestComputeIDF_MatchesLogFormula(t *testing.T) {
	got := computeIDF(100, 10)
	want := math.Log(10)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("computeIDF(100, 10) = %v, want %v", got, want)
	}
}

func TestTfn_EmptyDocumentIsZero(t *testing.T) {
	if got := tfn(5, 0); got != 0 {
		t.Errorf("tfn(5, 0) = %v, want 0", got)
	}
}

func TestTfn_MatchesFormula(t *testing.T) {
	got := tfn(3, 10)
	want := 0.3
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("tfn(3, 10) = %v, want %v", got, want)
	}
}

func TestIDFCache_ReturnsSameValueUntilCountersChange(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	doc := StoredDocument{DocID: "d1", Body: "quick brown fox", Length: 3}
	if err := store.PutDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if err := store.PutPostings(ctx, "d1", map[string][]int{"quick": {0}}); err != nil {
		t.Fatal(err)
	}
	if err := store.PutCounters(ctx, Counters{DocCount: 4, TermCount: 1}); err != nil {
		t.Fatal(err)
	}

	cache := newIDFCache()
	first, err := cache.idf(ctx, store, Counters{DocCount: 4, TermCount: 1}, "quick")
	if err != nil {
		t.Fatal(err)
	}
	want := math.Log(4.0 / 1.0)
	if math.Abs(first-want) > 1e-9 {
		t.Errorf("idf() = %v, want %v", first, want)
	}

	again, err := cache.idf(ctx, store, Counters{DocCount: 4, TermCount: 1}, "quick")
	if err != nil {
		t.Fatal(err)
	}
	if again != first {
		t.Errorf("idf() with unchanged counters = %v, want cached %v", again, first)
	}

	// Counters change (a new document was added by the caller's index core);
	// the cache must notice and recompute rather than serve the stale value.
	if err := store.PutCounters(ctx, Counters{DocCount: 8, TermCount: 1}); err != nil {
		t.Fatal(err)
	}
	second, err := cache.idf(ctx, store, Counters{DocCount: 8, TermCount: 1}, "quick")
	if err != nil {
		t.Fatal(err)
	}
	want2 := math.Log(8.0 / 1.0)
	if math.Abs(second-want2) > 1e-9 {
		t.Errorf("idf() after counters change = %v, want %v", second, want2)
	}
}

package ferret

import (
	"context"
	"errors"
	"sort"
	"testing"
)

func seedBooleanIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Open("boolean-test", NewMemoryStore(), Config{Analyzer: AnalyzerConfig{}})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ctx := context.Background()
	docs := map[string]string{
		"d1": "cats and dogs are popular pets",
		"d2": "dogs love to play fetch",
		"d3": "cats prefer to sleep all day",
		"d4": "birds can fly but cats cannot",
	}
	for _, id := range []string{"d1", "d2", "d3", "d4"} {
		if err := ix.AddDocument(ctx, id, docs[id], nil); err != nil {
			t.Fatalf("AddDocument(%s) error = %v", id, err)
		}
	}
	return ix
}

func docIDsOf(hits []Hit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.DocID
	}
	sort.Strings(ids)
	return ids
}

func assertDocIDs(t *testing.T, got []Hit, want []string) {
	t.Helper()
	gotIDs := docIDsOf(got)
	sort.Strings(want)
	if len(gotIDs) != len(want) {
		t.Fatalf("got %v, want %v", gotIDs, want)
	}
	for i := range gotIDs {
		if gotIDs[i] != want[i] {
			t.Fatalf("got %v, want %v", gotIDs, want)
		}
	}
}

func TestBooleanSearch_And(t *testing.T) {
	ix := seedBooleanIndex(t)
	ctx := context.Background()

	hits, err := ix.BooleanSearch(ctx, "cats AND dogs")
	if err != nil {
		t.Fatalf("BooleanSearch() error = %v", err)
	}
	assertDocIDs(t, hits, []string{"d1"})
}

func TestBooleanSearch_Or(t *testing.T) {
	ix := seedBooleanIndex(t)
	ctx := context.Background()

	hits, err := ix.BooleanSearch(ctx, "cats OR dogs")
	if err != nil {
		t.Fatalf("BooleanSearch() error = %v", err)
	}
	assertDocIDs(t, hits, []string{"d1", "d2", "d3", "d4"})
}

func TestBooleanSearch_Not(t *testing.T) {
	ix := seedBooleanIndex(t)
	ctx := context.Background()

	hits, err := ix.BooleanSearch(ctx, "cats AND NOT dogs")
	if err != nil {
		t.Fatalf("BooleanSearch() error = %v", err)
	}
	assertDocIDs(t, hits, []string{"d3", "d4"})
}

func TestBooleanSearch_ParenthesizedExpression(t *testing.T) {
	ix := seedBooleanIndex(t)
	ctx := context.Background()

	hits, err := ix.BooleanSearch(ctx, `(cats OR birds) AND NOT dogs`)
	if err != nil {
		t.Fatalf("BooleanSearch() error = %v", err)
	}
	assertDocIDs(t, hits, []string{"d3", "d4"})
}

func TestBooleanSearch_PhraseLeaf(t *testing.T) {
	ix := seedBooleanIndex(t)
	ctx := context.Background()

	hits, err := ix.BooleanSearch(ctx, `"love to play"`)
	if err != nil {
		t.Fatalf("BooleanSearch() error = %v", err)
	}
	assertDocIDs(t, hits, []string{"d2"})
}

func TestBooleanSearch_FlatScore(t *testing.T) {
	ix := seedBooleanIndex(t)
	ctx := context.Background()

	hits, err := ix.BooleanSearch(ctx, "cats OR dogs")
	if err != nil {
		t.Fatalf("BooleanSearch() error = %v", err)
	}
	for _, h := range hits {
		if h.Score != 1.0 {
			t.Errorf("hit %s score = %v, want 1.0 (boolean search does not rank)", h.DocID, h.Score)
		}
	}
}

func TestBooleanSearch_ResultsAreAscendingDocID(t *testing.T) {
	ix := seedBooleanIndex(t)
	ctx := context.Background()

	hits, err := ix.BooleanSearch(ctx, "cats OR dogs")
	if err != nil {
		t.Fatalf("BooleanSearch() error = %v", err)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i-1].DocID >= hits[i].DocID {
			t.Errorf("hits not ascending: %s before %s", hits[i-1].DocID, hits[i].DocID)
		}
	}
}

func TestBooleanSearch_InvalidQueryReturnsParseError(t *testing.T) {
	ix := seedBooleanIndex(t)
	ctx := context.Background()

	_, err := ix.BooleanSearch(ctx, "cats AND")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("BooleanSearch() error = %v, want *ParseError", err)
	}
}

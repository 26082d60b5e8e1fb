package sqlstore

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/ferretdex/ferret"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v, want nil", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PutGetDocument(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	doc := ferret.StoredDocument{
		DocID:    "doc1",
		Body:     "the quick brown fox",
		Metadata: map[string]any{"source": "test"},
		Length:   4,
	}
	if err := s.PutDocument(ctx, doc); err != nil {
		t.Fatalf("PutDocument() error = %v, want nil", err)
	}

	got, err := s.GetDocument(ctx, "doc1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v, want nil", err)
	}
	if got.Body != doc.Body || got.Length != doc.Length {
		t.Errorf("GetDocument() = %+v, want %+v", got, doc)
	}
	if got.Metadata["source"] != "test" {
		t.Errorf("GetDocument() metadata = %+v, want source=test", got.Metadata)
	}
}

func TestStore_PutDocument_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	doc := ferret.StoredDocument{DocID: "doc1", Body: "x", Length: 1}
	if err := s.PutDocument(ctx, doc); err != nil {
		t.Fatalf("first PutDocument() error = %v, want nil", err)
	}
	err := s.PutDocument(ctx, doc)
	if !errors.Is(err, ferret.ErrAlreadyExists) {
		t.Fatalf("second PutDocument() error = %v, want ErrAlreadyExists", err)
	}
}

func TestStore_GetDocument_NotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.GetDocument(ctx, "missing")
	if !errors.Is(err, ferret.ErrNotFound) {
		t.Fatalf("GetDocument() error = %v, want ErrNotFound", err)
	}
}

func TestStore_PutPostingsAndLookups(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	doc := ferret.StoredDocument{DocID: "doc1", Body: "quick brown fox quick", Length: 4}
	if err := s.PutDocument(ctx, doc); err != nil {
		t.Fatalf("PutDocument() error = %v", err)
	}
	postings := map[string][]int{
		"quick": {0, 3},
		"brown": {1},
		"fox":   {2},
	}
	if err := s.PutPostings(ctx, "doc1", postings); err != nil {
		t.Fatalf("PutPostings() error = %v", err)
	}

	tf, positions, err := s.GetTFAndPositions(ctx, "quick", "doc1")
	if err != nil {
		t.Fatalf("GetTFAndPositions() error = %v", err)
	}
	if tf != 2 || len(positions) != 2 || positions[0] != 0 || positions[1] != 3 {
		t.Errorf("GetTFAndPositions() = (%d, %v), want (2, [0 3])", tf, positions)
	}

	df, err := s.DocumentFrequency(ctx, "quick")
	if err != nil {
		t.Fatalf("DocumentFrequency() error = %v", err)
	}
	if df != 1 {
		t.Errorf("DocumentFrequency(quick) = %d, want 1", df)
	}

	list, err := s.GetPostingList(ctx, "brown")
	if err != nil {
		t.Fatalf("GetPostingList() error = %v", err)
	}
	if len(list) != 1 || list[0] != "doc1" {
		t.Errorf("GetPostingList(brown) = %v, want [doc1]", list)
	}
}

func TestStore_Counters_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	want := ferret.Counters{DocCount: 3, TermCount: 7}
	if err := s.PutCounters(ctx, want); err != nil {
		t.Fatalf("PutCounters() error = %v", err)
	}
	got, err := s.GetCounters(ctx)
	if err != nil {
		t.Fatalf("GetCounters() error = %v", err)
	}
	if got != want {
		t.Errorf("GetCounters() = %+v, want %+v", got, want)
	}
}

func TestStore_GetAnalyzerConfig_NotFoundInitially(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, found, err := s.GetAnalyzerConfig(ctx)
	if err != nil {
		t.Fatalf("GetAnalyzerConfig() error = %v, want nil", err)
	}
	if found {
		t.Errorf("GetAnalyzerConfig() found = true, want false on a fresh store")
	}
}

func TestStore_AnalyzerConfig_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	want := ferret.AnalyzerConfig{EnableStemming: true, EnableStopwords: false}
	if err := s.PutAnalyzerConfig(ctx, want); err != nil {
		t.Fatalf("PutAnalyzerConfig() error = %v", err)
	}
	got, found, err := s.GetAnalyzerConfig(ctx)
	if err != nil {
		t.Fatalf("GetAnalyzerConfig() error = %v", err)
	}
	if !found {
		t.Fatalf("GetAnalyzerConfig() found = false, want true after Put")
	}
	if got != want {
		t.Errorf("GetAnalyzerConfig() = %+v, want %+v", got, want)
	}
}

func TestStore_IterDocuments(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	ids := []string{"doc1", "doc2", "doc3"}
	for _, id := range ids {
		if err := s.PutDocument(ctx, ferret.StoredDocument{DocID: id, Body: id, Length: 1}); err != nil {
			t.Fatalf("PutDocument(%s) error = %v", id, err)
		}
	}

	var seen []string
	err := s.IterDocuments(ctx, func(docID string) error {
		seen = append(seen, docID)
		return nil
	})
	if err != nil {
		t.Fatalf("IterDocuments() error = %v, want nil", err)
	}
	sort.Strings(seen)
	want := []string{"doc1", "doc2", "doc3"}
	if len(seen) != len(want) {
		t.Fatalf("IterDocuments() visited %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("IterDocuments()[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestStore_SchemaIsIdempotent(t *testing.T) {
	// Open() runs the CREATE ... IF NOT EXISTS schema every time; running it
	// again against a populated database must not fail or wipe existing
	// rows. :memory: gives each Open() a fresh database, so the migration is
	// re-run on the already open store instead of opening the DSN twice.
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.PutDocument(ctx, ferret.StoredDocument{DocID: "doc1", Body: "x", Length: 1}); err != nil {
		t.Fatalf("PutDocument() error = %v", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		t.Fatalf("re-running schema error = %v, want nil", err)
	}
	if _, err := s.GetDocument(ctx, "doc1"); err != nil {
		t.Fatalf("GetDocument() error = %v, want nil", err)
	}
}

func TestStore_RankedSearch_MatchesEngineRanking(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	ix, err := ferret.Open("ranked", s, ferret.Config{Analyzer: ferret.AnalyzerConfig{}})
	if err != nil {
		t.Fatalf("Open() error = %v, want nil", err)
	}
	docs := map[string]string{
		"d1": "the quick brown fox jumps over the lazy dog",
		"d2": "the lazy dog sleeps all day",
		"d3": "quick foxes are clever and quick",
		"d4": "completely unrelated content about boats",
	}
	for _, id := range []string{"d1", "d2", "d3", "d4"} {
		if err := ix.AddDocument(ctx, id, docs[id], nil); err != nil {
			t.Fatalf("AddDocument(%s) error = %v, want nil", id, err)
		}
	}

	terms := []string{"quick", "lazy", "dog"}
	engine, err := ix.EvaluateTAAT(ctx, terms, 0)
	if err != nil {
		t.Fatalf("EvaluateTAAT() error = %v, want nil", err)
	}
	serverSide, err := s.RankedSearch(ctx, terms, 0)
	if err != nil {
		t.Fatalf("RankedSearch() error = %v, want nil", err)
	}

	if len(serverSide) != len(engine) {
		t.Fatalf("RankedSearch() returned %d hits, engine returned %d", len(serverSide), len(engine))
	}
	for i := range engine {
		if serverSide[i].DocID != engine[i].DocID {
			t.Errorf("hit %d: server-side=%s engine=%s", i, serverSide[i].DocID, engine[i].DocID)
		}
		if diff := serverSide[i].Score - engine[i].Score; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("hit %d score: server-side=%v engine=%v", i, serverSide[i].Score, engine[i].Score)
		}
		if serverSide[i].Body != docs[serverSide[i].DocID] {
			t.Errorf("hit %d body = %q, want the stored document body", i, serverSide[i].Body)
		}
	}
}

func TestStore_RankedSearch_TopKTruncates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	ix, err := ferret.Open("ranked-topk", s, ferret.Config{Analyzer: ferret.AnalyzerConfig{}})
	if err != nil {
		t.Fatalf("Open() error = %v, want nil", err)
	}
	for _, id := range []string{"d1", "d2", "d3"} {
		if err := ix.AddDocument(ctx, id, "shared term plus filler "+id, nil); err != nil {
			t.Fatalf("AddDocument(%s) error = %v, want nil", id, err)
		}
	}
	if err := ix.AddDocument(ctx, "d4", "nothing in common", nil); err != nil {
		t.Fatalf("AddDocument(d4) error = %v, want nil", err)
	}

	hits, err := s.RankedSearch(ctx, []string{"shared"}, 2)
	if err != nil {
		t.Fatalf("RankedSearch() error = %v, want nil", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2 (topK truncation)", len(hits))
	}
}

func TestStore_RankedSearch_UnknownTermsYieldNoHits(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	hits, err := s.RankedSearch(ctx, []string{"elephant"}, 0)
	if err != nil {
		t.Fatalf("RankedSearch() error = %v, want nil", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits, want 0", len(hits))
	}
}

func TestStore_GetTFAndPositions_CorruptTFIsInvariantViolation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	doc := ferret.StoredDocument{DocID: "doc1", Body: "quick brown fox", Length: 3}
	if err := s.PutDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if err := s.PutPostings(ctx, "doc1", map[string][]int{"quick": {0}}); err != nil {
		t.Fatal(err)
	}

	// Corrupt the stored tf so it disagrees with the position list.
	if _, err := s.db.ExecContext(ctx,
		`UPDATE postings SET tf = 5 WHERE term = 'quick' AND doc_id = 'doc1'`); err != nil {
		t.Fatal(err)
	}

	_, _, err := s.GetTFAndPositions(ctx, "quick", "doc1")
	var invErr *ferret.InvariantViolation
	if !errors.As(err, &invErr) {
		t.Fatalf("GetTFAndPositions() error = %v (%T), want *ferret.InvariantViolation", err, err)
	}
}

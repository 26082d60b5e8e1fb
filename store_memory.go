package ferret

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// ═══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY STORE: the reference Store implementation
// ═══════════════════════════════════════════════════════════════════════════════
// Hybrid storage:
//
//	memoryStore
//	├── docBitmaps: map[string]*roaring.Bitmap       (DOCUMENT-LEVEL)
//	│   term -> bitmap of document ordinals, for O(1) df() and set algebra
//	├── postingsList: map[string]*positionStream     (POSITION-LEVEL)
//	│   term -> ordered cross-document position stream, for phrase search
//	│   and the First/Last/Next/Previous cursor primitives
//	└── documents: map[string]StoredDocument    body/metadata/length
//
// Document ids are caller-supplied strings (per the storage schema every
// backend shares - documents(doc_id PK, ...)), but roaring bitmaps and
// postingPosition need small integers. docOrdinal/docByOrdinal translate
// between the two; the mapping is internal and never surfaces through the
// Store interface.
// ═══════════════════════════════════════════════════════════════════════════════

type memoryStore struct {
	mu sync.RWMutex

	docBitmaps   map[string]*roaring.Bitmap
	postingsList map[string]*positionStream

	documents    map[string]StoredDocument
	docOrdinal   map[string]int
	docByOrdinal []string

	counters    Counters
	analyzerCfg *AnalyzerConfig
}

// NewMemoryStore creates an empty in-memory posting store.
func NewMemoryStore() Store {
	return &memoryStore{
		docBitmaps:   make(map[string]*roaring.Bitmap),
		postingsList: make(map[string]*positionStream),
		documents:    make(map[string]StoredDocument),
		docOrdinal:   make(map[string]int),
	}
}

func (s *memoryStore) ordinalFor(docID string) (int, bool) {
	ord, ok := s.docOrdinal[docID]
	return ord, ok
}

func (s *memoryStore) assignOrdinal(docID string) int {
	ord := len(s.docByOrdinal)
	s.docOrdinal[docID] = ord
	s.docByOrdinal = append(s.docByOrdinal, docID)
	return ord
}

func (s *memoryStore) PutDocument(_ context.Context, doc StoredDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[doc.DocID]; exists {
		return ErrAlreadyExists
	}

	s.assignOrdinal(doc.DocID)
	s.documents[doc.DocID] = doc
	return nil
}

func (s *memoryStore) PutPostings(_ context.Context, docID string, postings map[string][]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ord, exists := s.ordinalFor(docID)
	if !exists {
		return &BackendError{Op: "PutPostings", Err: fmt.Errorf("document %q not yet stored", docID)}
	}

	for term, positions := range postings {
		if s.docBitmaps[term] == nil {
			s.docBitmaps[term] = roaring.NewBitmap()
		}
		s.docBitmaps[term].Add(uint32(ord))

		stream, ok := s.postingsList[term]
		if !ok {
			stream = newPositionStream()
			s.postingsList[term] = stream
		}
		for _, pos := range positions {
			stream.insert(postingPosition{doc: ord, offset: pos})
		}
	}

	return nil
}

func (s *memoryStore) GetDocument(_ context.Context, docID string) (StoredDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, exists := s.documents[docID]
	if !exists {
		return StoredDocument{}, ErrNotFound
	}
	return doc, nil
}

func (s *memoryStore) GetPostingList(_ context.Context, term string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bitmap, exists := s.docBitmaps[term]
	if !exists {
		return []string{}, nil
	}

	docIDs := make([]string, 0, bitmap.GetCardinality())
	iter := bitmap.Iterator()
	for iter.HasNext() {
		ord := int(iter.Next())
		docIDs = append(docIDs, s.docByOrdinal[ord])
	}
	return docIDs, nil
}

func (s *memoryStore) GetTFAndPositions(_ context.Context, term, docID string) (int, []int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ord, exists := s.ordinalFor(docID)
	if !exists {
		return 0, nil, ErrNotFound
	}

	stream, exists := s.postingsList[term]
	if !exists {
		return 0, nil, ErrNotFound
	}

	var positions []int
	for current := stream.head.next[0]; current != nil; current = current.next[0] {
		if current.pos.doc == ord {
			positions = append(positions, current.pos.offset)
		}
	}

	if len(positions) == 0 {
		return 0, nil, ErrNotFound
	}

	sort.Ints(positions)
	return len(positions), positions, nil
}

func (s *memoryStore) DocumentFrequency(_ context.Context, term string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bitmap, exists := s.docBitmaps[term]
	if !exists {
		return 0, nil
	}
	return int64(bitmap.GetCardinality()), nil
}

func (s *memoryStore) GetCounters(_ context.Context) (Counters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters, nil
}

func (s *memoryStore) PutCounters(_ context.Context, c Counters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = c
	return nil
}

func (s *memoryStore) GetAnalyzerConfig(_ context.Context) (AnalyzerConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.analyzerCfg == nil {
		return AnalyzerConfig{}, false, nil
	}
	return *s.analyzerCfg, true, nil
}

func (s *memoryStore) PutAnalyzerConfig(_ context.Context, cfg AnalyzerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyzerCfg = &cfg
	return nil
}

func (s *memoryStore) IterDocuments(_ context.Context, fn func(docID string) error) error {
	s.mu.RLock()
	docIDs := make([]string, 0, len(s.documents))
	for docID := range s.documents {
		docIDs = append(docIDs, docID)
	}
	s.mu.RUnlock()

	for _, docID := range docIDs {
		if err := fn(docID); err != nil {
			return err
		}
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// CURSOR PRIMITIVES: first/last/next/previous over a term's global position
// stream. These are internal to the in-memory backend (other backends have no
// cross-document skip list) and exist solely to drive the phrase-search
// engine in evaluate_phrase.go.
// ═══════════════════════════════════════════════════════════════════════════════

func (s *memoryStore) first(token string) (postingPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream, exists := s.postingsList[token]
	if !exists {
		return endPosition, ErrNoPostingList
	}
	return stream.head.next[0].pos, nil
}

func (s *memoryStore) last(token string) (postingPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream, exists := s.postingsList[token]
	if !exists {
		return endPosition, ErrNoPostingList
	}
	return stream.last(), nil
}

func (s *memoryStore) next(token string, currentPos postingPosition) (postingPosition, error) {
	if currentPos == beginPosition {
		return s.first(token)
	}
	if currentPos == endPosition {
		return endPosition, nil
	}

	s.mu.RLock()
	stream, exists := s.postingsList[token]
	s.mu.RUnlock()
	if !exists {
		return endPosition, ErrNoPostingList
	}

	nextPos, _ := stream.findGreaterThan(currentPos)
	return nextPos, nil
}

func (s *memoryStore) previous(token string, currentPos postingPosition) (postingPosition, error) {
	if currentPos == endPosition {
		return s.last(token)
	}
	if currentPos == beginPosition {
		return beginPosition, nil
	}

	s.mu.RLock()
	stream, exists := s.postingsList[token]
	s.mu.RUnlock()
	if !exists {
		return beginPosition, ErrNoPostingList
	}

	prevPos, _ := stream.findLessThan(currentPos)
	return prevPos, nil
}

// docIDForOrdinal resolves a skip-list Position's integer document ordinal
// back to the caller-facing document id string.
func (s *memoryStore) docIDForOrdinal(ord int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ord < 0 || ord >= len(s.docByOrdinal) {
		return ""
	}
	return s.docByOrdinal[ord]
}

// Package badgerstore implements ferret.Store on top of an embedded
// github.com/dgraph-io/badger/v4 database - the local, single-process
// durable backend in the posting-store lineup.
package badgerstore

import (
	"context"
	"encoding/json"

	"github.com/dgraph-io/badger/v4"

	"github.com/ferretdex/ferret"
)

// ═══════════════════════════════════════════════════════════════════════════════
// KEYSPACE
// ═══════════════════════════════════════════════════════════════════════════════
// Badger is a flat ordered key/value store, so every logical table from the
// relational backend's schema collapses to a key prefix here:
//
//	doc:<id>        -> JSON-encoded document body + metadata
//	doclen:<id>     -> big-endian uint32 token count
//	term:<t>         -> JSON-encoded map[docID][]int (positions per document)
//	__metadata__     -> JSON-encoded ferret.Counters
//	__analyzer__     -> JSON-encoded ferret.AnalyzerConfig, set once on first Open
//
// Badger's own LSM tree gives us the ordered iteration IterDocuments needs
// (prefix scan over "doc:") and crash-safe durability via its value log, so
// there is no separate WAL to manage here - that's the whole reason to reach
// for badger instead of re-implementing one.
// ═══════════════════════════════════════════════════════════════════════════════

const (
	docPrefix    = "doc:"
	docLenPrefix = "doclen:"
	termPrefix   = "term:"
	metadataKey  = "__metadata__"
	analyzerKey  = "__analyzer__"
)

// Store wraps a *badger.DB to implement ferret.Store.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) a badger database at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, &ferret.BackendError{Op: "badger.Open", Err: err}
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a badger database that never touches disk, for tests
// and short-lived indexes.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, &ferret.BackendError{Op: "badger.Open", Err: err}
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type docRecord struct {
	Body     string         `json:"body"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *Store) PutDocument(_ context.Context, doc ferret.StoredDocument) error {
	key := []byte(docPrefix + doc.DocID)

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return ferret.ErrAlreadyExists
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		rec := docRecord{Body: doc.Body, Metadata: doc.Metadata}
		encoded, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := txn.Set(key, encoded); err != nil {
			return err
		}

		lenBuf := encodeUint32(uint32(doc.Length))
		return txn.Set([]byte(docLenPrefix+doc.DocID), lenBuf)
	})

	if err == ferret.ErrAlreadyExists {
		return ferret.ErrAlreadyExists
	}
	if err != nil {
		return &ferret.BackendError{Op: "PutDocument", Err: err}
	}
	return nil
}

func (s *Store) PutPostings(_ context.Context, docID string, postings map[string][]int) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for term, positions := range postings {
			key := []byte(termPrefix + term)
			byDoc := make(map[string][]int)

			item, err := txn.Get(key)
			switch {
			case err == nil:
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &byDoc)
				}); err != nil {
					return err
				}
			case err == badger.ErrKeyNotFound:
				// first occurrence of this term
			default:
				return err
			}

			byDoc[docID] = positions
			encoded, err := json.Marshal(byDoc)
			if err != nil {
				return err
			}
			if err := txn.Set(key, encoded); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &ferret.BackendError{Op: "PutPostings", Err: err}
	}
	return nil
}

func (s *Store) GetDocument(_ context.Context, docID string) (ferret.StoredDocument, error) {
	var doc ferret.StoredDocument
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(docPrefix + docID))
		if err == badger.ErrKeyNotFound {
			return ferret.ErrNotFound
		}
		if err != nil {
			return err
		}

		var rec docRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return err
		}

		lenItem, err := txn.Get([]byte(docLenPrefix + docID))
		if err != nil {
			return err
		}
		var length uint32
		if err := lenItem.Value(func(val []byte) error {
			length = decodeUint32(val)
			return nil
		}); err != nil {
			return err
		}

		doc = ferret.StoredDocument{DocID: docID, Body: rec.Body, Metadata: rec.Metadata, Length: int(length)}
		return nil
	})

	if err == ferret.ErrNotFound {
		return ferret.StoredDocument{}, ferret.ErrNotFound
	}
	if err != nil {
		return ferret.StoredDocument{}, &ferret.BackendError{Op: "GetDocument", Err: err}
	}
	return doc, nil
}

func (s *Store) termPostings(term string) (map[string][]int, error) {
	byDoc := make(map[string][]int)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(termPrefix + term))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &byDoc)
		})
	})
	return byDoc, err
}

func (s *Store) GetPostingList(_ context.Context, term string) ([]string, error) {
	byDoc, err := s.termPostings(term)
	if err != nil {
		return nil, &ferret.BackendError{Op: "GetPostingList", Err: err}
	}
	docIDs := make([]string, 0, len(byDoc))
	for id := range byDoc {
		docIDs = append(docIDs, id)
	}
	return docIDs, nil
}

func (s *Store) GetTFAndPositions(_ context.Context, term, docID string) (int, []int, error) {
	byDoc, err := s.termPostings(term)
	if err != nil {
		return 0, nil, &ferret.BackendError{Op: "GetTFAndPositions", Err: err}
	}
	positions, ok := byDoc[docID]
	if !ok {
		return 0, nil, ferret.ErrNotFound
	}
	return len(positions), positions, nil
}

func (s *Store) DocumentFrequency(_ context.Context, term string) (int64, error) {
	byDoc, err := s.termPostings(term)
	if err != nil {
		return 0, &ferret.BackendError{Op: "DocumentFrequency", Err: err}
	}
	return int64(len(byDoc)), nil
}

func (s *Store) GetCounters(_ context.Context) (ferret.Counters, error) {
	var counters ferret.Counters
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metadataKey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &counters)
		})
	})
	if err != nil {
		return ferret.Counters{}, &ferret.BackendError{Op: "GetCounters", Err: err}
	}
	return counters, nil
}

func (s *Store) PutCounters(_ context.Context, c ferret.Counters) error {
	encoded, err := json.Marshal(c)
	if err != nil {
		return &ferret.BackendError{Op: "PutCounters", Err: err}
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(metadataKey), encoded)
	})
	if err != nil {
		return &ferret.BackendError{Op: "PutCounters", Err: err}
	}
	return nil
}

func (s *Store) GetAnalyzerConfig(_ context.Context) (ferret.AnalyzerConfig, bool, error) {
	var cfg ferret.AnalyzerConfig
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(analyzerKey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cfg)
		})
	})
	if err != nil {
		return ferret.AnalyzerConfig{}, false, &ferret.BackendError{Op: "GetAnalyzerConfig", Err: err}
	}
	return cfg, found, nil
}

func (s *Store) PutAnalyzerConfig(_ context.Context, cfg ferret.AnalyzerConfig) error {
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return &ferret.BackendError{Op: "PutAnalyzerConfig", Err: err}
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(analyzerKey), encoded)
	})
	if err != nil {
		return &ferret.BackendError{Op: "PutAnalyzerConfig", Err: err}
	}
	return nil
}

func (s *Store) IterDocuments(_ context.Context, fn func(docID string) error) error {
	var docIDs []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(docPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			docIDs = append(docIDs, string(key[len(docPrefix):]))
		}
		return nil
	})
	if err != nil {
		return &ferret.BackendError{Op: "IterDocuments", Err: err}
	}

	for _, docID := range docIDs {
		if err := fn(docID); err != nil {
			return err
		}
	}
	return nil
}

func encodeUint32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func decodeUint32(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

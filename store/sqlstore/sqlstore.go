// Package sqlstore implements ferret.Store against a relational database
// via database/sql and the pure-Go modernc.org/sqlite driver - the
// relational backend in the posting-store lineup, usable with any
// database/sql driver that speaks enough standard SQL for the schema below.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ferretdex/ferret"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SCHEMA
// ═══════════════════════════════════════════════════════════════════════════════
//
//	documents(doc_id TEXT PRIMARY KEY, body TEXT, metadata TEXT, length INTEGER)
//	postings(term TEXT, doc_id TEXT, tf INTEGER, positions TEXT,
//	         PRIMARY KEY (term, doc_id))
//	  + btree index on postings.term (SQLite has no GIN/GiST, so a plain
//	    btree index is what term-prefixed posting scans get)
//	metadata(key TEXT PRIMARY KEY, value TEXT)  -- doc_count / term_count
//
// positions is stored as a JSON array rather than a normalized child table:
// every read of a posting needs the whole position list at once (phrase
// search, TF-IDF), never a single position, so normalizing it would only
// add join cost with no query this backend needs to run.
// ═══════════════════════════════════════════════════════════════════════════════

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id   TEXT PRIMARY KEY,
	body     TEXT NOT NULL,
	metadata TEXT,
	length   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS postings (
	term      TEXT NOT NULL,
	doc_id    TEXT NOT NULL,
	tf        INTEGER NOT NULL,
	positions TEXT NOT NULL,
	PRIMARY KEY (term, doc_id)
);

CREATE INDEX IF NOT EXISTS idx_postings_term ON postings (term);

CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store wraps a *sql.DB to implement ferret.Store.
type Store struct {
	db *sql.DB
}

// Config controls the connection pool the store owns for its lifetime.
type Config struct {
	MaxOpenConns int
	MaxIdleConns int
}

// DefaultConfig returns the standard pool configuration.
func DefaultConfig() Config {
	return Config{MaxOpenConns: 8, MaxIdleConns: 4}
}

// Open opens (creating and migrating if necessary) a SQLite database at
// dsn, e.g. "file:ferret.db?_pragma=busy_timeout(5000)", with the default
// pool configuration.
func Open(dsn string) (*Store, error) {
	return OpenWithConfig(dsn, DefaultConfig())
}

// OpenWithConfig is Open with an explicit pool configuration.
func OpenWithConfig(dsn string, cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &ferret.BackendError{Op: "sql.Open", Err: err}
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &ferret.BackendError{Op: "migrate schema", Err: err}
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) PutDocument(ctx context.Context, doc ferret.StoredDocument) error {
	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return &ferret.BackendError{Op: "PutDocument", Err: err}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (doc_id, body, metadata, length) VALUES (?, ?, ?, ?)`,
		doc.DocID, doc.Body, string(metaJSON), doc.Length)
	if err != nil {
		if isUniqueViolation(err) {
			return ferret.ErrAlreadyExists
		}
		return &ferret.BackendError{Op: "PutDocument", Err: err}
	}
	return nil
}

func (s *Store) PutPostings(ctx context.Context, docID string, postings map[string][]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ferret.BackendError{Op: "PutPostings", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO postings (term, doc_id, tf, positions) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return &ferret.BackendError{Op: "PutPostings", Err: err}
	}
	defer stmt.Close()

	for term, positions := range postings {
		encoded, err := json.Marshal(positions)
		if err != nil {
			return &ferret.BackendError{Op: "PutPostings", Err: err}
		}
		if _, err := stmt.ExecContext(ctx, term, docID, len(positions), string(encoded)); err != nil {
			return &ferret.BackendError{Op: "PutPostings", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &ferret.BackendError{Op: "PutPostings", Err: err}
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, docID string) (ferret.StoredDocument, error) {
	var body, metaJSON string
	var length int
	err := s.db.QueryRowContext(ctx,
		`SELECT body, metadata, length FROM documents WHERE doc_id = ?`, docID).
		Scan(&body, &metaJSON, &length)
	if errors.Is(err, sql.ErrNoRows) {
		return ferret.StoredDocument{}, ferret.ErrNotFound
	}
	if err != nil {
		return ferret.StoredDocument{}, &ferret.BackendError{Op: "GetDocument", Err: err}
	}

	var meta map[string]any
	if metaJSON != "" && metaJSON != "null" {
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return ferret.StoredDocument{}, &ferret.BackendError{Op: "GetDocument", Err: err}
		}
	}

	return ferret.StoredDocument{DocID: docID, Body: body, Metadata: meta, Length: length}, nil
}

func (s *Store) GetPostingList(ctx context.Context, term string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc_id FROM postings WHERE term = ?`, term)
	if err != nil {
		return nil, &ferret.BackendError{Op: "GetPostingList", Err: err}
	}
	defer rows.Close()

	docIDs := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &ferret.BackendError{Op: "GetPostingList", Err: err}
		}
		docIDs = append(docIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &ferret.BackendError{Op: "GetPostingList", Err: err}
	}
	return docIDs, nil
}

func (s *Store) GetTFAndPositions(ctx context.Context, term, docID string) (int, []int, error) {
	var tf int
	var positionsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT tf, positions FROM postings WHERE term = ? AND doc_id = ?`, term, docID).
		Scan(&tf, &positionsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, ferret.ErrNotFound
	}
	if err != nil {
		return 0, nil, &ferret.BackendError{Op: "GetTFAndPositions", Err: err}
	}

	var positions []int
	if err := json.Unmarshal([]byte(positionsJSON), &positions); err != nil {
		return 0, nil, &ferret.BackendError{Op: "GetTFAndPositions", Err: err}
	}
	// tf and positions are stored as separate columns; if they ever disagree
	// the table has been corrupted and results computed from it cannot be
	// trusted.
	if tf != len(positions) {
		return 0, nil, &ferret.InvariantViolation{
			Msg: fmt.Sprintf("posting (%s, %s): tf = %d but %d positions stored", term, docID, tf, len(positions)),
		}
	}
	return tf, positions, nil
}

func (s *Store) DocumentFrequency(ctx context.Context, term string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM postings WHERE term = ?`, term).Scan(&n)
	if err != nil {
		return 0, &ferret.BackendError{Op: "DocumentFrequency", Err: err}
	}
	return n, nil
}

func (s *Store) GetCounters(ctx context.Context) (ferret.Counters, error) {
	var counters ferret.Counters
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metadata WHERE key IN ('doc_count', 'term_count')`)
	if err != nil {
		return ferret.Counters{}, &ferret.BackendError{Op: "GetCounters", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return ferret.Counters{}, &ferret.BackendError{Op: "GetCounters", Err: err}
		}
		var n int64
		if err := json.Unmarshal([]byte(value), &n); err != nil {
			continue
		}
		switch key {
		case "doc_count":
			counters.DocCount = n
		case "term_count":
			counters.TermCount = n
		}
	}
	if err := rows.Err(); err != nil {
		return ferret.Counters{}, &ferret.BackendError{Op: "GetCounters", Err: err}
	}
	return counters, nil
}

func (s *Store) PutCounters(ctx context.Context, c ferret.Counters) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ferret.BackendError{Op: "PutCounters", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`)
	if err != nil {
		return &ferret.BackendError{Op: "PutCounters", Err: err}
	}
	defer stmt.Close()

	docCountJSON, _ := json.Marshal(c.DocCount)
	termCountJSON, _ := json.Marshal(c.TermCount)

	if _, err := stmt.ExecContext(ctx, "doc_count", string(docCountJSON)); err != nil {
		return &ferret.BackendError{Op: "PutCounters", Err: err}
	}
	if _, err := stmt.ExecContext(ctx, "term_count", string(termCountJSON)); err != nil {
		return &ferret.BackendError{Op: "PutCounters", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &ferret.BackendError{Op: "PutCounters", Err: err}
	}
	return nil
}

func (s *Store) GetAnalyzerConfig(ctx context.Context) (ferret.AnalyzerConfig, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = 'analyzer_config'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return ferret.AnalyzerConfig{}, false, nil
	}
	if err != nil {
		return ferret.AnalyzerConfig{}, false, &ferret.BackendError{Op: "GetAnalyzerConfig", Err: err}
	}
	var cfg ferret.AnalyzerConfig
	if err := json.Unmarshal([]byte(value), &cfg); err != nil {
		return ferret.AnalyzerConfig{}, false, &ferret.BackendError{Op: "GetAnalyzerConfig", Err: err}
	}
	return cfg, true, nil
}

func (s *Store) PutAnalyzerConfig(ctx context.Context, cfg ferret.AnalyzerConfig) error {
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return &ferret.BackendError{Op: "PutAnalyzerConfig", Err: err}
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO metadata (key, value) VALUES ('analyzer_config', ?)`, string(encoded))
	if err != nil {
		return &ferret.BackendError{Op: "PutAnalyzerConfig", Err: err}
	}
	return nil
}

// RankedSearch executes a ranked TF-IDF query server-side: a first phase
// reads N and then each distinct term's document frequency (one query
// each), then a single aggregation
// query sums tf/length * idf per document, ordering by descending score with
// an ascending doc_id tie-break. It produces the same ranking as the
// engine's TAAT/DAAT evaluators, just without one posting fetch per
// (term, document) pair.
func (s *Store) RankedSearch(ctx context.Context, terms []string, topK int) ([]ferret.Hit, error) {
	counters, err := s.GetCounters(ctx)
	if err != nil {
		return nil, err
	}

	idfByTerm := make(map[string]float64, len(terms))
	for _, term := range terms {
		if _, dup := idfByTerm[term]; dup {
			continue
		}
		df, err := s.DocumentFrequency(ctx, term)
		if err != nil {
			return nil, err
		}
		if df == 0 || counters.DocCount == 0 {
			continue
		}
		idf := math.Log(float64(counters.DocCount) / float64(df))
		if idf == 0 {
			continue
		}
		idfByTerm[term] = idf
	}
	if len(idfByTerm) == 0 {
		return []ferret.Hit{}, nil
	}

	var (
		caseArms     strings.Builder
		placeholders strings.Builder
		args         []any
	)
	for term, idf := range idfByTerm {
		caseArms.WriteString(" WHEN ? THEN ?")
		args = append(args, term, idf)
	}
	first := true
	for term := range idfByTerm {
		if !first {
			placeholders.WriteString(", ")
		}
		first = false
		placeholders.WriteString("?")
		args = append(args, term)
	}

	query := `
		SELECT p.doc_id, d.body, d.metadata,
		       SUM((CAST(p.tf AS REAL) / d.length) * CASE p.term` + caseArms.String() + ` END) AS score
		FROM postings p
		JOIN documents d ON d.doc_id = p.doc_id
		WHERE p.term IN (` + placeholders.String() + `) AND d.length > 0
		GROUP BY p.doc_id
		ORDER BY score DESC, p.doc_id ASC`
	if topK > 0 {
		query += "\n\t\tLIMIT ?"
		args = append(args, topK)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ferret.BackendError{Op: "RankedSearch", Err: err}
	}
	defer rows.Close()

	var hits []ferret.Hit
	for rows.Next() {
		var (
			hit      ferret.Hit
			metaJSON string
		)
		if err := rows.Scan(&hit.DocID, &hit.Body, &metaJSON, &hit.Score); err != nil {
			return nil, &ferret.BackendError{Op: "RankedSearch", Err: err}
		}
		if metaJSON != "" && metaJSON != "null" {
			if err := json.Unmarshal([]byte(metaJSON), &hit.Metadata); err != nil {
				return nil, &ferret.BackendError{Op: "RankedSearch", Err: err}
			}
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, &ferret.BackendError{Op: "RankedSearch", Err: err}
	}
	return hits, nil
}

func (s *Store) IterDocuments(ctx context.Context, fn func(docID string) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT doc_id FROM documents`)
	if err != nil {
		return &ferret.BackendError{Op: "IterDocuments", Err: err}
	}

	var docIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return &ferret.BackendError{Op: "IterDocuments", Err: err}
		}
		docIDs = append(docIDs, id)
	}
	rowsErr := rows.Err()
	rows.Close()
	if rowsErr != nil {
		return &ferret.BackendError{Op: "IterDocuments", Err: rowsErr}
	}

	for _, docID := range docIDs {
		if err := fn(docID); err != nil {
			return err
		}
	}
	return nil
}

// isUniqueViolation reports whether err came from a PRIMARY KEY/UNIQUE
// constraint violation. modernc.org/sqlite reports these as a plain error
// whose text contains the SQLite constraint message, since it doesn't
// expose a typed error the way some cgo-based drivers do.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}

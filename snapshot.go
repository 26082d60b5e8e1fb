package ferret

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT: whole-index binary persistence for the in-memory backend
// ═══════════════════════════════════════════════════════════════════════════════
// Format (little detail, version-tagged so a future format change can still
// read old snapshots or fail loudly instead of misreading them):
//
//	uint32  format version
//	uint8   EnableStemming
//	uint8   EnableStopwords
//	int64   DocCount
//	int64   TermCount
//	uint32  document count
//	  per document: string docID, string body, string metadataJSON, uint32 length
//	uint32  term count
//	  per term: string term, uint32 posting count
//	    per posting: string docID, uint32 position count, []uint32 positions
//	uint32  ingest sample count, then int64 nanoseconds per sample
//	uint32  query sample count, then int64 nanoseconds per sample
//
// The format does not encode the skip list's internal node/tower pointer
// structure - Restore rebuilds the skip lists and bitmaps from the plain
// (term, docID, positions) triples via the same PutPostings path
// AddDocument uses, so there is no pointer graph to reconstruct.
// ═══════════════════════════════════════════════════════════════════════════════

const snapshotFormatVersion uint32 = 1

// Snapshot serializes the index's in-memory store and writes it to path.
// Returns ConfigError if the index is not backed by the in-memory store -
// the other three backends are durable by construction and don't need this
// path.
func (ix *Index) Snapshot(path string) error {
	data, err := ix.snapshotBytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &BackendError{Op: "WriteFile", Err: err}
	}
	return nil
}

// snapshotBytes encodes the index's in-memory store into the binary format
// described above, without touching the filesystem.
func (ix *Index) snapshotBytes() ([]byte, error) {
	mem, ok := ix.store.(*memoryStore)
	if !ok {
		return nil, &ConfigError{Msg: "Snapshot is only supported for the in-memory store"}
	}

	mem.mu.RLock()
	defer mem.mu.RUnlock()

	var buf bytes.Buffer
	w := &snapshotWriter{buf: &buf}

	w.writeUint32(snapshotFormatVersion)
	w.writeBool(ix.cfg.Analyzer.EnableStemming)
	w.writeBool(ix.cfg.Analyzer.EnableStopwords)
	w.writeInt64(mem.counters.DocCount)
	w.writeInt64(mem.counters.TermCount)

	w.writeUint32(uint32(len(mem.docByOrdinal)))
	for _, docID := range mem.docByOrdinal {
		doc := mem.documents[docID]
		metaJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encoding metadata for %q: %w", docID, err)
		}
		w.writeString(doc.DocID)
		w.writeString(doc.Body)
		w.writeString(string(metaJSON))
		w.writeUint32(uint32(doc.Length))
	}

	w.writeUint32(uint32(len(mem.postingsList)))
	for term, stream := range mem.postingsList {
		byDoc := make(map[int][]int)
		for current := stream.head.next[0]; current != nil; current = current.next[0] {
			ord := current.pos.doc
			byDoc[ord] = append(byDoc[ord], current.pos.offset)
		}

		w.writeString(term)
		w.writeUint32(uint32(len(byDoc)))
		for ord, positions := range byDoc {
			w.writeString(mem.docByOrdinal[ord])
			w.writeUint32(uint32(len(positions)))
			for _, pos := range positions {
				w.writeUint32(uint32(pos))
			}
		}
	}

	ingest, query := ix.metrics.series()
	w.writeUint32(uint32(len(ingest)))
	for _, d := range ingest {
		w.writeInt64(int64(d))
	}
	w.writeUint32(uint32(len(query)))
	for _, d := range query {
		w.writeInt64(int64(d))
	}

	if w.err != nil {
		return nil, w.err
	}
	return buf.Bytes(), nil
}

// Restore reads a snapshot from path, produced by Snapshot, and rebuilds an
// Index backed by a fresh in-memory store.
func Restore(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &BackendError{Op: "ReadFile", Err: err}
	}
	return restoreBytes(data)
}

// restoreBytes decodes the binary format written by snapshotBytes.
func restoreBytes(data []byte) (*Index, error) {
	r := &snapshotReader{data: data}

	version := r.readUint32()
	if version != snapshotFormatVersion {
		return nil, &ConfigError{Msg: fmt.Sprintf("unsupported snapshot format version %d", version)}
	}

	cfg := Config{Analyzer: AnalyzerConfig{
		EnableStemming:  r.readBool(),
		EnableStopwords: r.readBool(),
	}}

	counters := Counters{
		DocCount:  r.readInt64(),
		TermCount: r.readInt64(),
	}

	mem := NewMemoryStore().(*memoryStore)

	docCount := r.readUint32()
	for i := uint32(0); i < docCount; i++ {
		docID := r.readString()
		body := r.readString()
		metaJSON := r.readString()
		length := r.readUint32()

		var meta map[string]any
		if metaJSON != "" && metaJSON != "null" {
			if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
				return nil, fmt.Errorf("decoding metadata for %q: %w", docID, err)
			}
		}

		mem.assignOrdinal(docID)
		mem.documents[docID] = StoredDocument{
			DocID:    docID,
			Body:     body,
			Metadata: meta,
			Length:   int(length),
		}
	}

	termCount := r.readUint32()
	for i := uint32(0); i < termCount; i++ {
		term := r.readString()
		postingCount := r.readUint32()
		postings := make(map[string][]int, postingCount)
		for j := uint32(0); j < postingCount; j++ {
			docID := r.readString()
			posCount := r.readUint32()
			positions := make([]int, posCount)
			for k := uint32(0); k < posCount; k++ {
				positions[k] = int(r.readUint32())
			}
			postings[docID] = positions
		}
		for docID, positions := range postings {
			if err := mem.PutPostings(context.Background(), docID, map[string][]int{term: positions}); err != nil {
				return nil, err
			}
		}
	}

	metrics := NewMetricsRecorder(1000)
	ingestCount := r.readUint32()
	for i := uint32(0); i < ingestCount; i++ {
		metrics.RecordIngest(time.Duration(r.readInt64()))
	}
	queryCount := r.readUint32()
	for i := uint32(0); i < queryCount; i++ {
		metrics.RecordQuery(time.Duration(r.readInt64()))
	}

	if r.err != nil {
		return nil, r.err
	}

	mem.counters = counters
	mem.analyzerCfg = &cfg.Analyzer

	return &Index{
		name:    "restored",
		store:   mem,
		cfg:     cfg,
		idf:     newIDFCache(),
		metrics: metrics,
	}, nil
}

// ── low-level binary helpers ──────────────────────────────────────────────

type snapshotWriter struct {
	buf *bytes.Buffer
	err error
}

func (w *snapshotWriter) writeUint32(v uint32) {
	if w.err != nil {
		return
	}
	w.err = binary.Write(w.buf, binary.LittleEndian, v)
}

func (w *snapshotWriter) writeInt64(v int64) {
	if w.err != nil {
		return
	}
	w.err = binary.Write(w.buf, binary.LittleEndian, v)
}

func (w *snapshotWriter) writeBool(v bool) {
	var b byte
	if v {
		b = 1
	}
	if w.err != nil {
		return
	}
	w.err = w.buf.WriteByte(b)
}

func (w *snapshotWriter) writeString(s string) {
	if w.err != nil {
		return
	}
	w.writeUint32(uint32(len(s)))
	if w.err != nil {
		return
	}
	_, w.err = w.buf.WriteString(s)
}

type snapshotReader struct {
	data []byte
	pos  int
	err  error
}

func (r *snapshotReader) readUint32() uint32 {
	if r.err != nil || r.pos+4 > len(r.data) {
		if r.err == nil {
			r.err = fmt.Errorf("ferret: truncated snapshot")
		}
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v
}

func (r *snapshotReader) readInt64() int64 {
	if r.err != nil || r.pos+8 > len(r.data) {
		if r.err == nil {
			r.err = fmt.Errorf("ferret: truncated snapshot")
		}
		return 0
	}
	v := int64(binary.LittleEndian.Uint64(r.data[r.pos : r.pos+8]))
	r.pos += 8
	return v
}

func (r *snapshotReader) readBool() bool {
	if r.err != nil || r.pos+1 > len(r.data) {
		if r.err == nil {
			r.err = fmt.Errorf("ferret: truncated snapshot")
		}
		return false
	}
	v := r.data[r.pos] != 0
	r.pos++
	return v
}

func (r *snapshotReader) readString() string {
	n := r.readUint32()
	if r.err != nil {
		return ""
	}
	if r.pos+int(n) > len(r.data) {
		r.err = fmt.Errorf("ferret: truncated snapshot")
		return ""
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s
}

package database

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/google/uuid"
)

// indexEntry is the per-record metadata kept next to the graph node.
type indexEntry struct {
	RecordID  uuid.UUID
	SubjectID uuid.UUID
}

// HNSWIndex wraps an HNSW graph over active biometric embeddings. Graph
// nodes are keyed by the record id string; deactivated records are removed
// from the id map, which filters them out of search results (the graph
// itself does not support deletion).
type HNSWIndex struct {
	graph    *hnsw.Graph[string]
	idToRec  map[string]indexEntry
	mu       sync.RWMutex
	path     string // optional persistence path
}

// NewHNSWIndex creates a new empty index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		idToRec: make(map[string]indexEntry),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// BuildFromRecords builds the index from the active enrollments.
func (h *HNSWIndex) BuildFromRecords(records []BiometricRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(records) == 0 {
		h.graph = nil
		h.idToRec = make(map[string]indexEntry)
		return nil
	}

	g := newGraph()
	h.idToRec = make(map[string]indexEntry, len(records))

	for i := range records {
		rec := &records[i]
		if len(rec.Embedding) == 0 {
			continue
		}
		key := rec.ID.String()
		g.Add(hnsw.MakeNode(key, rec.Embedding))
		h.idToRec[key] = indexEntry{RecordID: rec.ID, SubjectID: rec.SubjectID}
	}

	h.graph = g
	return nil
}

// Add indexes a single enrollment.
func (h *HNSWIndex) Add(rec *BiometricRecord) {
	if len(rec.Embedding) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		h.graph = newGraph()
	}
	key := rec.ID.String()
	h.graph.Add(hnsw.MakeNode(key, rec.Embedding))
	h.idToRec[key] = indexEntry{RecordID: rec.ID, SubjectID: rec.SubjectID}
}

// Remove drops a deactivated record from search results.
func (h *HNSWIndex) Remove(recordID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.idToRec, recordID.String())
}

// Search finds the k nearest active enrollments. Results are ordered by
// descending similarity; equal similarities are broken by ascending record
// id so the top match is deterministic.
func (h *HNSWIndex) Search(query []float32, k int) ([]SubjectMatch, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, errors.New("index not initialized")
	}

	// Over-fetch so deactivated records filtered below don't starve the result.
	searchK := max(k*HNSWSearchMultiplier, HNSWMinSearchK)
	neighbors := h.graph.Search(query, searchK)

	matches := make([]SubjectMatch, 0, k)
	for _, n := range neighbors {
		entry, ok := h.idToRec[n.Key]
		if !ok {
			continue
		}
		matches = append(matches, SubjectMatch{
			RecordID:   entry.RecordID,
			SubjectID:  entry.SubjectID,
			Similarity: CosineSimilarity(query, n.Value),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].RecordID.String() < matches[j].RecordID.String()
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Covers reports whether the index holds exactly the given records, by id.
// A loaded index that fails this check lags behind the database and must
// be rebuilt before it can serve searches.
func (h *HNSWIndex) Covers(records []BiometricRecord) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.idToRec) != len(records) {
		return false
	}
	for i := range records {
		if _, ok := h.idToRec[records[i].ID.String()]; !ok {
			return false
		}
	}
	return true
}

// Count returns the number of indexed enrollments.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToRec)
}

// IsEmpty returns true if no graph data is loaded.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil
}

// SetPath sets the path for saving/loading the index.
func (h *HNSWIndex) SetPath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = path
}

// Save persists the graph and entry map to disk. A no-op without a path.
func (h *HNSWIndex) Save() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.path == "" {
		return nil
	}
	if h.graph == nil {
		// Remove stale files if the index is empty (best-effort cleanup).
		_ = os.Remove(h.path)
		_ = os.Remove(h.path + ".entries")
		return nil
	}

	f, err := os.Create(h.path)
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}

	var buf bytes.Buffer
	entries := make([]indexEntry, 0, len(h.idToRec))
	for _, e := range h.idToRec {
		entries = append(entries, e)
	}
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return fmt.Errorf("encoding index entries: %w", err)
	}
	if err := os.WriteFile(h.path+".entries", buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing index entries: %w", err)
	}
	return nil
}

// Load restores a persisted index. Missing files are not an error; the
// caller falls back to BuildFromRecords.
func (h *HNSWIndex) Load(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.path = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	g := newGraph()
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening HNSW index file: %w", err)
	}
	defer f.Close()
	if err := g.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("importing HNSW graph: %w", err)
	}

	data, err := os.ReadFile(path + ".entries")
	if err != nil {
		return fmt.Errorf("reading index entries: %w", err)
	}
	var entries []indexEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		return fmt.Errorf("decoding index entries: %w", err)
	}

	h.graph = g
	h.idToRec = make(map[string]indexEntry, len(entries))
	for _, e := range entries {
		h.idToRec[e.RecordID.String()] = e
	}
	return nil
}

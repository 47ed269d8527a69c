package database

import (
	"fmt"
	"sync"

	"github.com/coder/hnsw"
)

// HNSW index parameters for 512-dim face embeddings
const (
	// hnswMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	hnswMaxNeighbors = 16

	// hnswSearchMultiplier is the factor to request more candidates from HNSW
	// to ensure we have enough after distance filtering.
	hnswSearchMultiplier = 3
)

// SimilarFace is one approximate-nearest-neighbor hit from the enrollment
// index. Distance is the exact cosine distance to the query, not the
// approximate graph distance.
type SimilarFace struct {
	CadetID  int64   `json:"cadet_id"`
	Distance float64 `json:"distance"`
}

// EnrollmentIndex wraps an HNSW graph over all enrolled face embeddings,
// keyed by cadet ID. It backs duplicate-enrollment warnings and the
// similar-faces endpoint; exact matching still goes through the candidate
// scan so index staleness can never change an attendance decision.
type EnrollmentIndex struct {
	graph   *hnsw.Graph[int64]
	idToEmb map[int64][]float32
	mu      sync.RWMutex
}

// NewEnrollmentIndex creates a new empty enrollment index.
func NewEnrollmentIndex() *EnrollmentIndex {
	return &EnrollmentIndex{
		idToEmb: make(map[int64][]float32),
	}
}

// Build replaces the index contents with the given enrolled embeddings.
// Called at startup and after bulk imports.
func (h *EnrollmentIndex) Build(embeddings []EnrolledEmbedding) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(embeddings) == 0 {
		h.graph = nil
		h.idToEmb = make(map[int64][]float32)
		return
	}

	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors) // standard HNSW formula
	g.Distance = hnsw.CosineDistance

	h.idToEmb = make(map[int64][]float32, len(embeddings))

	for i := range embeddings {
		emb := &embeddings[i]
		if len(emb.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(emb.CadetID, emb.Embedding))
		h.idToEmb[emb.CadetID] = emb.Embedding
	}

	h.graph = g
}

// Upsert adds or replaces a single cadet's embedding in the index.
func (h *EnrollmentIndex) Upsert(cadetID int64, embedding []float32) {
	if len(embedding) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		g := hnsw.NewGraph[int64]()
		g.M = hnswMaxNeighbors
		g.Ml = 1.0 / float64(hnswMaxNeighbors)
		g.Distance = hnsw.CosineDistance
		h.graph = g
	}

	if _, ok := h.idToEmb[cadetID]; ok {
		h.graph.Delete(cadetID)
	}
	h.graph.Add(hnsw.MakeNode(cadetID, embedding))
	h.idToEmb[cadetID] = embedding
}

// Delete removes a cadet's embedding from the index. No-op if absent.
func (h *EnrollmentIndex) Delete(cadetID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.idToEmb[cadetID]; !ok {
		return
	}
	if h.graph != nil {
		h.graph.Delete(cadetID)
	}
	delete(h.idToEmb, cadetID)
}

// Count returns the number of indexed embeddings.
func (h *EnrollmentIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToEmb)
}

// Search finds up to k enrolled faces within maxDistance (exclusive cosine
// distance) of the query. Results are re-ranked by exact cosine distance.
func (h *EnrollmentIndex) Search(query []float32, k int, maxDistance float64) ([]SimilarFace, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, fmt.Errorf("index not initialized")
	}

	// Search with more candidates for better recall after filtering
	searchK := k * hnswSearchMultiplier
	if searchK < 100 {
		searchK = 100
	}

	neighbors := h.graph.Search(query, searchK)

	results := make([]SimilarFace, 0, k)
	for _, n := range neighbors {
		emb, ok := h.idToEmb[n.Key]
		if !ok || len(emb) == 0 {
			continue
		}
		dist := float64(hnsw.CosineDistance(query, emb))
		if dist >= maxDistance {
			continue
		}
		results = append(results, SimilarFace{CadetID: n.Key, Distance: dist})
		if len(results) >= k {
			break
		}
	}

	return results, nil
}

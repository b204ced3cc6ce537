// Package vector provides the tenant-scoped embedding index used by the
// similarity layer. Distance is cosine distance (1 - cosine similarity):
// policy-text embeddings are direction-dominant, magnitude is an artifact of
// text length.
package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"policyscope/internal/domain"
)

// Match is one nearest-neighbor result.
type Match struct {
	PolicyID string
	Distance float64
}

// Index stores one embedding per policy, scoped by tenant, and answers
// nearest-neighbor queries. Re-adding an existing policy id replaces its
// vector (last writer wins).
type Index interface {
	Add(ctx context.Context, tenantID, policyID string, embedding []float32) error
	Remove(ctx context.Context, tenantID, policyID string) error
	// Query returns up to k matches ordered by ascending distance, ties by
	// ascending policy id. It does not exclude any ids; callers filter
	// self-matches. Fails with a not-found error when the tenant has zero
	// indexed vectors.
	Query(ctx context.Context, tenantID string, embedding []float32, k int) ([]Match, error)
}

// MemoryIndex is an in-memory Index for development and tests. The postgres
// store provides the pgvector-backed equivalent.
type MemoryIndex struct {
	mu      sync.RWMutex
	tenants map[string]map[string][]float32
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{tenants: make(map[string]map[string][]float32)}
}

// Add inserts or replaces the embedding for a policy.
func (idx *MemoryIndex) Add(ctx context.Context, tenantID, policyID string, embedding []float32) error {
	if len(embedding) == 0 {
		return domain.InvalidArgument("empty embedding for policy %s", policyID)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	vectors, ok := idx.tenants[tenantID]
	if !ok {
		vectors = make(map[string][]float32)
		idx.tenants[tenantID] = vectors
	}
	for _, existing := range vectors {
		if len(existing) != len(embedding) {
			return domain.InvalidArgument(
				"embedding dimension %d does not match tenant index dimension %d",
				len(embedding), len(existing))
		}
		break
	}

	copied := make([]float32, len(embedding))
	copy(copied, embedding)
	vectors[policyID] = copied
	return nil
}

// Remove drops a policy's vector. Removing an unknown id is a no-op.
func (idx *MemoryIndex) Remove(ctx context.Context, tenantID, policyID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if vectors, ok := idx.tenants[tenantID]; ok {
		delete(vectors, policyID)
	}
	return nil
}

// Query returns the k nearest vectors in the tenant's index.
func (idx *MemoryIndex) Query(ctx context.Context, tenantID string, embedding []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, domain.InvalidArgument("k must be positive, got %d", k)
	}
	if len(embedding) == 0 {
		return nil, domain.InvalidArgument("empty query embedding")
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	vectors, ok := idx.tenants[tenantID]
	if !ok || len(vectors) == 0 {
		return nil, domain.NotFound("tenant %s has no indexed vectors", tenantID)
	}

	matches := make([]Match, 0, len(vectors))
	for id, vec := range vectors {
		matches = append(matches, Match{PolicyID: id, Distance: CosineDistance(embedding, vec)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].PolicyID < matches[j].PolicyID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// CosineDistance computes 1 - cosine similarity. Vectors of mismatched
// dimension or zero magnitude are maximally distant.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Float rounding can push |sim| past 1 for near-parallel vectors.
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return 1 - sim
}

package vector

import (
	"context"
	"math"
	"testing"
)

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{
			name:     "identical vectors",
			a:        []float32{1, 2, 3},
			b:        []float32{1, 2, 3},
			expected: 0,
		},
		{
			name:     "orthogonal vectors",
			a:        []float32{1, 0},
			b:        []float32{0, 1},
			expected: 1,
		},
		{
			name:     "opposite vectors",
			a:        []float32{1, 0},
			b:        []float32{-1, 0},
			expected: 2,
		},
		{
			name:     "scaled vectors are identical in direction",
			a:        []float32{1, 2, 3},
			b:        []float32{2, 4, 6},
			expected: 0,
		},
		{
			name:     "zero vector is maximally distant",
			a:        []float32{0, 0},
			b:        []float32{1, 1},
			expected: 1,
		},
		{
			name:     "dimension mismatch is maximally distant",
			a:        []float32{1, 2},
			b:        []float32{1, 2, 3},
			expected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDistance(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("CosineDistance() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCosineDistanceSymmetric(t *testing.T) {
	a := []float32{0.3, -0.7, 0.2, 0.9}
	b := []float32{0.1, 0.4, -0.5, 0.8}

	if d1, d2 := CosineDistance(a, b), CosineDistance(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Errorf("distance not symmetric: %v vs %v", d1, d2)
	}
}

func TestMemoryIndexQuery(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	vectors := map[string][]float32{
		"p1": {1, 0, 0},
		"p2": {0.9, 0.1, 0},
		"p3": {0, 1, 0},
		"p4": {0, 0, 1},
	}
	for id, vec := range vectors {
		if err := idx.Add(ctx, "tenant-a", id, vec); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}

	matches, err := idx.Query(ctx, "tenant-a", []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}
	if matches[0].PolicyID != "p1" {
		t.Errorf("nearest = %s, want p1", matches[0].PolicyID)
	}
	if matches[1].PolicyID != "p2" {
		t.Errorf("second = %s, want p2", matches[1].PolicyID)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Distance < matches[i-1].Distance {
			t.Errorf("matches not ordered by ascending distance: %v", matches)
		}
	}
}

func TestMemoryIndexQueryTieBreak(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	// Equidistant vectors must come back in ascending policy-id order.
	idx.Add(ctx, "t", "p-b", []float32{1, 0})
	idx.Add(ctx, "t", "p-a", []float32{1, 0})
	idx.Add(ctx, "t", "p-c", []float32{1, 0})

	matches, err := idx.Query(ctx, "t", []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := []string{"p-a", "p-b", "p-c"}
	for i, m := range matches {
		if m.PolicyID != want[i] {
			t.Errorf("matches[%d] = %s, want %s", i, m.PolicyID, want[i])
		}
	}
}

func TestMemoryIndexEmptyTenant(t *testing.T) {
	idx := NewMemoryIndex()
	_, err := idx.Query(context.Background(), "nobody", []float32{1}, 5)
	if err == nil {
		t.Fatal("expected error for empty tenant")
	}
}

func TestMemoryIndexTenantIsolation(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	idx.Add(ctx, "tenant-a", "pa", []float32{1, 0})
	idx.Add(ctx, "tenant-b", "pb", []float32{1, 0})

	matches, err := idx.Query(ctx, "tenant-a", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for _, m := range matches {
		if m.PolicyID == "pb" {
			t.Error("query leaked another tenant's vector")
		}
	}
}

func TestMemoryIndexIdempotentAdd(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	idx.Add(ctx, "t", "p1", []float32{1, 0})
	idx.Add(ctx, "t", "p1", []float32{0, 1}) // replace, not duplicate

	matches, err := idx.Query(ctx, "t", []float32{0, 1}, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d entries after re-add, want 1", len(matches))
	}
	if matches[0].Distance > 1e-9 {
		t.Errorf("vector was not replaced: distance %v", matches[0].Distance)
	}
}

func TestMemoryIndexDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	idx.Add(ctx, "t", "p1", []float32{1, 0, 0})
	if err := idx.Add(ctx, "t", "p2", []float32{1, 0}); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestMemoryIndexRemove(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	idx.Add(ctx, "t", "p1", []float32{1, 0})
	idx.Add(ctx, "t", "p2", []float32{0, 1})
	if err := idx.Remove(ctx, "t", "p1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	matches, err := idx.Query(ctx, "t", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for _, m := range matches {
		if m.PolicyID == "p1" {
			t.Error("removed vector still returned")
		}
	}
}

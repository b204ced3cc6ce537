package duplicate

import (
	"context"
	"testing"

	"policyscope/internal/domain"
)

func dupPolicy(id, app string, embedding []float32) *domain.Policy {
	return &domain.Policy{
		ID:            id,
		TenantID:      "t1",
		ApplicationID: app,
		Subject:       "role:admin",
		Resource:      "orders",
		Action:        "read",
		Effect:        domain.EffectAllow,
		Embedding:     embedding,
		Status:        domain.PolicyStatusApproved,
	}
}

func TestDetectCrossApplicationDuplicates(t *testing.T) {
	d := NewDetector(0)
	policies := []*domain.Policy{
		dupPolicy("p1", "app-a", []float32{1, 0, 0}),
		dupPolicy("p2", "app-b", []float32{1, 0.01, 0}),
		dupPolicy("p3", "app-c", []float32{1, 0.02, 0}),
		dupPolicy("p4", "app-a", []float32{0, 1, 0}), // unrelated
	}

	groups := d.Detect(context.Background(), "t1", policies)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	g := groups[0]
	if len(g.PolicyIDs) != 3 {
		t.Errorf("group size = %d, want 3", len(g.PolicyIDs))
	}
	want := []string{"p1", "p2", "p3"}
	for i, id := range g.PolicyIDs {
		if id != want[i] {
			t.Errorf("PolicyIDs[%d] = %s, want %s (sorted)", i, id, want[i])
		}
	}
	if g.PotentialSavings != 2 {
		t.Errorf("potential savings = %d, want 2", g.PotentialSavings)
	}
	if len(g.Applications) != 3 {
		t.Errorf("applications = %v, want 3 entries", g.Applications)
	}
	if g.SimilarityScore < DefaultThreshold || g.SimilarityScore > 1 {
		t.Errorf("similarity score %v outside [threshold,1]", g.SimilarityScore)
	}
}

func TestDetectIgnoresSameApplicationPairs(t *testing.T) {
	d := NewDetector(0)
	policies := []*domain.Policy{
		dupPolicy("p1", "app-a", []float32{1, 0}),
		dupPolicy("p2", "app-a", []float32{1, 0.001}),
	}

	if groups := d.Detect(context.Background(), "t1", policies); len(groups) != 0 {
		t.Errorf("got %d groups for same-application pair, want 0", len(groups))
	}
}

func TestDetectThresholdStrictness(t *testing.T) {
	d := NewDetector(0)
	policies := []*domain.Policy{
		dupPolicy("p1", "app-a", []float32{1, 0}),
		dupPolicy("p2", "app-b", []float32{1, 0.5}), // similar but not near-identical
	}

	if groups := d.Detect(context.Background(), "t1", policies); len(groups) != 0 {
		t.Errorf("got %d groups below the duplicate threshold, want 0", len(groups))
	}
}

func TestDetectTransitiveClustering(t *testing.T) {
	// p1-p2 and p2-p3 are above threshold; p1-p3 may not be. Connected
	// components still place all three in one group.
	d := NewDetector(0.95)
	policies := []*domain.Policy{
		dupPolicy("p1", "app-a", []float32{1, 0}),
		dupPolicy("p2", "app-b", []float32{1, 0.2}),
		dupPolicy("p3", "app-c", []float32{1, 0.4}),
	}

	groups := d.Detect(context.Background(), "t1", policies)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if len(groups[0].PolicyIDs) != 3 {
		t.Errorf("group size = %d, want 3 via transitivity", len(groups[0].PolicyIDs))
	}
}

func TestDetectSkipsInactive(t *testing.T) {
	d := NewDetector(0)
	inactive := dupPolicy("p1", "app-a", []float32{1, 0})
	inactive.Status = domain.PolicyStatusInactive
	policies := []*domain.Policy{
		inactive,
		dupPolicy("p2", "app-b", []float32{1, 0}),
	}

	if groups := d.Detect(context.Background(), "t1", policies); len(groups) != 0 {
		t.Errorf("inactive policies must not form groups, got %d", len(groups))
	}
}

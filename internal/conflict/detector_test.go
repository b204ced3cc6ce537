package conflict

import (
	"context"
	"testing"

	"policyscope/internal/domain"
)

func policy(id, subject, resource, action string, effect domain.PolicyEffect, conditions map[string]any) *domain.Policy {
	return &domain.Policy{
		ID:            id,
		TenantID:      "t1",
		ApplicationID: "app-1",
		Subject:       subject,
		Resource:      resource,
		ResourceType:  resource,
		Action:        action,
		Effect:        effect,
		Conditions:    conditions,
		Status:        domain.PolicyStatusApproved,
	}
}

func TestDetectContradictoryEffect(t *testing.T) {
	d := NewDetector(nil)
	policies := []*domain.Policy{
		policy("p1", "role:manager", "orders", "approve", domain.EffectAllow, nil),
		policy("p2", "role:manager", "orders", "approve", domain.EffectDeny, nil),
	}

	conflicts := d.Detect(context.Background(), "t1", policies)
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want exactly 1", len(conflicts))
	}
	c := conflicts[0]
	if c.ConflictType != domain.ConflictContradictoryEffect {
		t.Errorf("type = %s, want contradictory_effect", c.ConflictType)
	}
	if c.Severity != domain.SeverityHigh {
		t.Errorf("severity = %s, want high", c.Severity)
	}
	if c.Status != domain.FindingOpen {
		t.Errorf("status = %s, want open", c.Status)
	}
	if c.AIRecommendation == "" {
		t.Error("template recommendation missing")
	}
}

func TestDetectNeverEmitsBothDirections(t *testing.T) {
	d := NewDetector(nil)
	policies := []*domain.Policy{
		policy("p1", "role:manager", "orders", "approve", domain.EffectAllow, nil),
		policy("p2", "role:manager", "orders", "approve", domain.EffectDeny, nil),
	}

	// Run with both input orders; the pair key must be identical.
	c1 := d.Detect(context.Background(), "t1", policies)
	c2 := d.Detect(context.Background(), "t1", []*domain.Policy{policies[1], policies[0]})
	if len(c1) != 1 || len(c2) != 1 {
		t.Fatalf("got %d and %d conflicts, want 1 each", len(c1), len(c2))
	}
	if c1[0].PairKey() != c2[0].PairKey() {
		t.Errorf("pair keys differ by input order: %s vs %s", c1[0].PairKey(), c2[0].PairKey())
	}
}

func TestDetectDifferentResourcesNoConflict(t *testing.T) {
	d := NewDetector(nil)
	policies := []*domain.Policy{
		policy("p1", "role:manager", "orders", "approve", domain.EffectAllow, nil),
		policy("p2", "role:manager", "invoices", "approve", domain.EffectDeny, nil),
	}

	if conflicts := d.Detect(context.Background(), "t1", policies); len(conflicts) != 0 {
		t.Errorf("got %d conflicts across different resources, want 0", len(conflicts))
	}
}

func TestDetectOverlappingScope(t *testing.T) {
	d := NewDetector(nil)

	t.Run("conditional versus unconditional", func(t *testing.T) {
		policies := []*domain.Policy{
			policy("p1", "role:manager", "orders", "approve", domain.EffectAllow, map[string]any{"amount": "< 1000"}),
			policy("p2", "role:manager", "orders", "approve", domain.EffectAllow, nil),
		}
		conflicts := d.Detect(context.Background(), "t1", policies)
		if len(conflicts) != 1 {
			t.Fatalf("got %d conflicts, want 1", len(conflicts))
		}
		if conflicts[0].ConflictType != domain.ConflictOverlappingScope {
			t.Errorf("type = %s, want overlapping_scope", conflicts[0].ConflictType)
		}
		if conflicts[0].Severity != domain.SeverityMedium {
			t.Errorf("severity = %s, want medium", conflicts[0].Severity)
		}
	})

	t.Run("stylistic condition difference is low severity", func(t *testing.T) {
		policies := []*domain.Policy{
			policy("p1", "role:manager", "orders", "approve", domain.EffectAllow, map[string]any{"amount": "< 1000"}),
			policy("p2", "role:manager", "orders", "approve", domain.EffectAllow, map[string]any{"amount": "<  1000"}),
		}
		conflicts := d.Detect(context.Background(), "t1", policies)
		if len(conflicts) != 1 {
			t.Fatalf("got %d conflicts, want 1", len(conflicts))
		}
		if conflicts[0].Severity != domain.SeverityLow {
			t.Errorf("severity = %s, want low for stylistic difference", conflicts[0].Severity)
		}
	})

	t.Run("materially different conditions are medium severity", func(t *testing.T) {
		policies := []*domain.Policy{
			policy("p1", "role:manager", "orders", "approve", domain.EffectAllow, map[string]any{"amount": "< 1000"}),
			policy("p2", "role:manager", "orders", "approve", domain.EffectAllow, map[string]any{"region": "emea", "department": "sales"}),
		}
		conflicts := d.Detect(context.Background(), "t1", policies)
		if len(conflicts) != 1 {
			t.Fatalf("got %d conflicts, want 1", len(conflicts))
		}
		if conflicts[0].Severity != domain.SeverityMedium {
			t.Errorf("severity = %s, want medium", conflicts[0].Severity)
		}
	})
}

func TestDetectPrivilegeEscalation(t *testing.T) {
	d := NewDetector(nil)
	policies := []*domain.Policy{
		policy("p1", "role:clerk", "payments", "read", domain.EffectAllow, map[string]any{"own": true}),
		policy("p2", "authenticated", "payments", "*", domain.EffectAllow, nil),
	}

	conflicts := d.Detect(context.Background(), "t1", policies)
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(conflicts))
	}
	if conflicts[0].ConflictType != domain.ConflictPrivilegeEscalation {
		t.Errorf("type = %s, want privilege_escalation_risk", conflicts[0].ConflictType)
	}
}

func TestDetectIgnoresInactivePolicies(t *testing.T) {
	d := NewDetector(nil)
	inactive := policy("p1", "role:manager", "orders", "approve", domain.EffectAllow, nil)
	inactive.Status = domain.PolicyStatusInactive
	policies := []*domain.Policy{
		inactive,
		policy("p2", "role:manager", "orders", "approve", domain.EffectDeny, nil),
	}

	if conflicts := d.Detect(context.Background(), "t1", policies); len(conflicts) != 0 {
		t.Errorf("got %d conflicts involving inactive policy, want 0", len(conflicts))
	}
}

func TestDetectIdenticalGrantsNotConflicting(t *testing.T) {
	d := NewDetector(nil)
	policies := []*domain.Policy{
		policy("p1", "role:manager", "orders", "approve", domain.EffectAllow, map[string]any{"amount": "< 1000"}),
		policy("p2", "role:manager", "orders", "approve", domain.EffectAllow, map[string]any{"amount": "< 1000"}),
	}

	// Exact duplicates are the duplicate detector's concern, not a conflict.
	if conflicts := d.Detect(context.Background(), "t1", policies); len(conflicts) != 0 {
		t.Errorf("got %d conflicts for identical policies, want 0", len(conflicts))
	}
}

package enforcement

import (
	"context"
	"testing"

	"policyscope/internal/domain"
)

func enfPolicy(id, app, subject, resourceType, action string, conditions map[string]any) *domain.Policy {
	return &domain.Policy{
		ID:            id,
		TenantID:      "t1",
		ApplicationID: app,
		Subject:       subject,
		Resource:      resourceType,
		ResourceType:  resourceType,
		Action:        action,
		Effect:        domain.EffectAllow,
		Conditions:    conditions,
		Status:        domain.PolicyStatusApproved,
	}
}

func TestDetectDivergentShapes(t *testing.T) {
	d := NewDetector(nil)
	policies := []*domain.Policy{
		// app-a: manager role + amount condition + specific action.
		enfPolicy("p1", "app-a", "role:manager", "payments", "approve", map[string]any{"amount": "< 1000"}),
		// app-b: any authenticated subject, wildcard action, no conditions.
		enfPolicy("p2", "app-b", "authenticated", "payments", "*", nil),
	}

	findings := d.Detect(context.Background(), "t1", policies)
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(findings))
	}
	f := findings[0]
	if f.ResourceType != "payments" {
		t.Errorf("resource type = %s, want payments", f.ResourceType)
	}
	if len(f.AffectedApplicationIDs) != 1 || f.AffectedApplicationIDs[0] != "app-b" {
		t.Errorf("affected = %v, want [app-b]", f.AffectedApplicationIDs)
	}
	// Recommendation follows the most restrictive shape.
	if f.RecommendedPolicy.Subject != "role:manager" {
		t.Errorf("recommended subject = %s, want role:manager", f.RecommendedPolicy.Subject)
	}
	if len(f.RecommendedPolicy.Conditions) == 0 {
		t.Error("recommended policy should keep the conditions of the strictest shape")
	}
	if f.Severity != domain.SeverityHigh {
		t.Errorf("severity = %s, want high for a wide, widespread gap", f.Severity)
	}
	if f.Status != domain.FindingOpen {
		t.Errorf("status = %s, want open", f.Status)
	}
}

func TestDetectConsistentShapesNoFinding(t *testing.T) {
	d := NewDetector(nil)
	policies := []*domain.Policy{
		enfPolicy("p1", "app-a", "role:manager", "payments", "approve", map[string]any{"amount": "< 1000"}),
		enfPolicy("p2", "app-b", "role:manager", "payments", "approve", map[string]any{"amount": "< 500"}),
	}

	if findings := d.Detect(context.Background(), "t1", policies); len(findings) != 0 {
		t.Errorf("got %d findings for consistent shapes, want 0", len(findings))
	}
}

func TestDetectSingleApplicationIgnored(t *testing.T) {
	d := NewDetector(nil)
	policies := []*domain.Policy{
		enfPolicy("p1", "app-a", "role:manager", "payments", "approve", map[string]any{"amount": "< 1000"}),
		enfPolicy("p2", "app-a", "authenticated", "payments", "*", nil),
	}

	// Only one application uses the resource type; nothing to compare.
	if findings := d.Detect(context.Background(), "t1", policies); len(findings) != 0 {
		t.Errorf("got %d findings for single-application resource type, want 0", len(findings))
	}
}

func TestDetectWeakestPolicyDefinesExposure(t *testing.T) {
	d := NewDetector(nil)
	policies := []*domain.Policy{
		enfPolicy("p1", "app-a", "role:manager", "payments", "approve", map[string]any{"amount": "< 1000"}),
		// app-b has a strict policy AND a wide-open one; the open one counts.
		enfPolicy("p2", "app-b", "role:manager", "payments", "approve", map[string]any{"amount": "< 1000"}),
		enfPolicy("p3", "app-b", "public", "payments", "*", nil),
	}

	findings := d.Detect(context.Background(), "t1", policies)
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(findings))
	}
	if len(findings[0].AffectedApplicationIDs) != 1 || findings[0].AffectedApplicationIDs[0] != "app-b" {
		t.Errorf("affected = %v, want [app-b]", findings[0].AffectedApplicationIDs)
	}
}

func TestSeverityScaling(t *testing.T) {
	tests := []struct {
		name              string
		under, total, gap int
		expected          domain.Severity
	}{
		{"wide and widespread", 2, 3, 4, domain.SeverityHigh},
		{"wide but isolated", 1, 4, 4, domain.SeverityMedium},
		{"narrow but widespread", 2, 3, 2, domain.SeverityMedium},
		{"narrow and isolated", 1, 4, 2, domain.SeverityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := severity(tt.under, tt.total, tt.gap); got != tt.expected {
				t.Errorf("severity(%d,%d,%d) = %s, want %s", tt.under, tt.total, tt.gap, got, tt.expected)
			}
		})
	}
}

func TestDetectSkipsDenyPolicies(t *testing.T) {
	d := NewDetector(nil)
	deny := enfPolicy("p1", "app-a", "public", "payments", "*", nil)
	deny.Effect = domain.EffectDeny
	policies := []*domain.Policy{
		deny,
		enfPolicy("p2", "app-b", "role:manager", "payments", "approve", map[string]any{"amount": "< 1000"}),
	}

	// A deny rule is not an exposure; only allow shapes are compared.
	if findings := d.Detect(context.Background(), "t1", policies); len(findings) != 0 {
		t.Errorf("got %d findings, want 0", len(findings))
	}
}

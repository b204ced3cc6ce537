// Package conflict detects contradictions between policies that address the
// same resource. Detection is a pure function over a snapshot of the
// tenant's policies; the engine facade commits the findings atomically.
package conflict

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"policyscope/internal/domain"
	"policyscope/internal/explain"
)

// stylisticConditionSimilarity is the levenshtein similarity above which two
// differing condition documents are treated as stylistic variants only.
const stylisticConditionSimilarity = 0.8

// broadSubjects match any caller rather than a specific role.
var broadSubjects = map[string]bool{
	"*":             true,
	"any":           true,
	"all":           true,
	"anyone":        true,
	"authenticated": true,
	"public":        true,
}

// Detector flags conflicting policy pairs within one tenant.
type Detector struct {
	explainer *explain.Service
}

// NewDetector creates a conflict detector. explainer may be nil; the
// templated recommendation is used either way when generation fails.
func NewDetector(explainer *explain.Service) *Detector {
	if explainer == nil {
		explainer = explain.NewService(nil, nil)
	}
	return &Detector{explainer: explainer}
}

// Detect compares the tenant's policies pairwise within per-resource buckets
// and returns each detected conflict exactly once, keyed by the unordered
// pair. Input order does not affect the output.
func (d *Detector) Detect(ctx context.Context, tenantID string, policies []*domain.Policy) []*domain.Conflict {
	buckets := make(map[string][]*domain.Policy)
	for _, p := range policies {
		if p.Status == domain.PolicyStatusRejected || p.Status == domain.PolicyStatusInactive {
			continue
		}
		buckets[p.Resource] = append(buckets[p.Resource], p)
	}

	seen := make(map[string]bool)
	var conflicts []*domain.Conflict
	now := time.Now()

	resources := make([]string, 0, len(buckets))
	for r := range buckets {
		resources = append(resources, r)
	}
	sort.Strings(resources)

	for _, resource := range resources {
		bucket := buckets[resource]
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].ID < bucket[j].ID })

		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				a, b := bucket[i], bucket[j]
				key := domain.PairKey(a.ID, b.ID)
				if seen[key] {
					continue
				}

				kind, severity, description := classify(a, b)
				if kind == "" {
					continue
				}
				seen[key] = true

				c := &domain.Conflict{
					ID:           uuid.NewString(),
					TenantID:     tenantID,
					PolicyAID:    a.ID,
					PolicyBID:    b.ID,
					ConflictType: kind,
					Severity:     severity,
					Description:  description,
					Status:       domain.FindingOpen,
					CreatedAt:    now,
				}
				c.AIRecommendation = d.explainer.Recommend(ctx,
					recommendationPrompt(a, b, c),
					templateRecommendation(a, b, kind))
				conflicts = append(conflicts, c)
			}
		}
	}
	return conflicts
}

// classify returns the conflict type, severity, and description for a pair,
// or an empty type when the pair does not conflict. Both policies address the
// same resource.
func classify(a, b *domain.Policy) (domain.ConflictType, domain.Severity, string) {
	sameSubject := normalize(a.Subject) == normalize(b.Subject)
	sameAction := normalize(a.Action) == normalize(b.Action)

	if sameSubject && sameAction {
		if a.Effect != b.Effect {
			return domain.ConflictContradictoryEffect, domain.SeverityHigh,
				fmt.Sprintf("policies %s and %s address %s %s on %q with opposite effects (%s vs %s)",
					a.ID, b.ID, a.Subject, a.Action, a.Resource, a.Effect, b.Effect)
		}
		switch {
		case a.HasConditions() != b.HasConditions():
			broad, narrow := a, b
			if broad.HasConditions() {
				broad, narrow = b, a
			}
			return domain.ConflictOverlappingScope, domain.SeverityMedium,
				fmt.Sprintf("policy %s applies unconditionally while %s restricts the same access with conditions; it is ambiguous which applies",
					broad.ID, narrow.ID)
		case a.HasConditions() && b.HasConditions():
			condA, condB := serializeConditions(a.Conditions), serializeConditions(b.Conditions)
			if condA == condB {
				return "", "", "" // true duplicates are the duplicate detector's concern
			}
			if conditionSimilarity(condA, condB) >= stylisticConditionSimilarity {
				return domain.ConflictOverlappingScope, domain.SeverityLow,
					fmt.Sprintf("policies %s and %s differ only stylistically in their conditions", a.ID, b.ID)
			}
			return domain.ConflictOverlappingScope, domain.SeverityMedium,
				fmt.Sprintf("policies %s and %s grant the same access under materially different conditions", a.ID, b.ID)
		default:
			return "", "", "" // identical unconditional grants, not a conflict
		}
	}

	// Same resource, different subject or action: a broad grant next to a
	// narrow one is an escalation path.
	if a.Effect == domain.EffectAllow && b.Effect == domain.EffectAllow {
		if broader, narrower, ok := broaderOf(a, b); ok {
			return domain.ConflictPrivilegeEscalation, domain.SeverityMedium,
				fmt.Sprintf("policy %s grants broader access to %q than %s without matching restrictions",
					broader.ID, a.Resource, narrower.ID)
		}
	}
	return "", "", ""
}

// broaderOf reports which of the pair grants strictly broader access:
// a wildcard action against a specific one, or a broad subject against a
// scoped role, with no compensating conditions on the broad side.
func broaderOf(a, b *domain.Policy) (broader, narrower *domain.Policy, ok bool) {
	scoreA := breadth(a)
	scoreB := breadth(b)
	if scoreA == scoreB {
		return nil, nil, false
	}
	if scoreA > scoreB {
		broader, narrower = a, b
	} else {
		broader, narrower = b, a
	}
	if broader.HasConditions() {
		return nil, nil, false
	}
	return broader, narrower, true
}

func breadth(p *domain.Policy) int {
	score := 0
	action := normalize(p.Action)
	if action == "*" || action == "all" || action == "manage" {
		score += 2
	}
	subject := strings.TrimPrefix(normalize(p.Subject), "role:")
	if broadSubjects[subject] {
		score += 2
	}
	if !p.HasConditions() {
		score++
	}
	return score
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// serializeConditions renders a condition document deterministically.
func serializeConditions(conditions map[string]any) string {
	keys := make([]string, 0, len(conditions))
	for k := range conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, conditions[k]))
	}
	return strings.Join(parts, ",")
}

func conditionSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

func recommendationPrompt(a, b *domain.Policy, c *domain.Conflict) string {
	return fmt.Sprintf(
		"Two access policies on resource %q conflict (%s, severity %s). Policy A: %s %s %s effect=%s conditions=%s. Policy B: %s %s %s effect=%s conditions=%s. Recommend a resolution.",
		a.Resource, c.ConflictType, c.Severity,
		a.Subject, a.Action, a.Resource, a.Effect, serializeConditions(a.Conditions),
		b.Subject, b.Action, b.Resource, b.Effect, serializeConditions(b.Conditions))
}

func templateRecommendation(a, b *domain.Policy, kind domain.ConflictType) string {
	switch kind {
	case domain.ConflictContradictoryEffect:
		return fmt.Sprintf("Review which effect is intended for %s %s on %q and remove the contradicting policy; prefer the deny rule until confirmed.", a.Subject, a.Action, a.Resource)
	case domain.ConflictPrivilegeEscalation:
		return fmt.Sprintf("Scope the broader grant on %q down to the narrower policy's subject and conditions, or add matching restrictions.", a.Resource)
	default:
		return fmt.Sprintf("Align the conditions of policies %s and %s, or merge them into a single rule.", a.ID, b.ID)
	}
}

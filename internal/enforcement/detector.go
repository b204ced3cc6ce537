// Package enforcement detects resource types protected inconsistently across
// a tenant's applications: the same kind of resource guarded by a manager
// role and an amount condition in one application and open to any
// authenticated subject in another.
package enforcement

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"policyscope/internal/domain"
	"policyscope/internal/explain"
)

// meaningfulGap is the minimum restrictiveness spread between the strictest
// and loosest application before a finding is emitted.
const meaningfulGap = 2

var broadSubjects = map[string]bool{
	"*":             true,
	"any":           true,
	"all":           true,
	"anyone":        true,
	"authenticated": true,
	"public":        true,
}

// Detector compares protection shapes per resource type across applications.
type Detector struct {
	explainer *explain.Service
}

// NewDetector creates an enforcement detector. explainer may be nil.
func NewDetector(explainer *explain.Service) *Detector {
	if explainer == nil {
		explainer = explain.NewService(nil, nil)
	}
	return &Detector{explainer: explainer}
}

// appShape summarizes how one application protects a resource type. The
// application's exposure is defined by its least restrictive allow policy.
type appShape struct {
	appID    string
	score    int
	weakest  *domain.Policy
	policies []*domain.Policy
}

// Detect returns one finding per resource type whose protection shapes
// diverge meaningfully between applications. The recommended policy is the
// most restrictive observed shape, the safe default.
func (d *Detector) Detect(ctx context.Context, tenantID string, policies []*domain.Policy) []*domain.InconsistentEnforcement {
	byType := make(map[string]map[string][]*domain.Policy) // resource type -> app -> policies
	for _, p := range policies {
		if p.Status == domain.PolicyStatusRejected || p.Status == domain.PolicyStatusInactive {
			continue
		}
		if p.Effect != domain.EffectAllow || p.ResourceType == "" {
			continue
		}
		apps, ok := byType[p.ResourceType]
		if !ok {
			apps = make(map[string][]*domain.Policy)
			byType[p.ResourceType] = apps
		}
		apps[p.ApplicationID] = append(apps[p.ApplicationID], p)
	}

	types := make([]string, 0, len(byType))
	for rt := range byType {
		types = append(types, rt)
	}
	sort.Strings(types)

	var findings []*domain.InconsistentEnforcement
	now := time.Now()

	for _, rt := range types {
		apps := byType[rt]
		if len(apps) < 2 {
			continue
		}

		shapes := make([]appShape, 0, len(apps))
		for appID, appPolicies := range apps {
			shapes = append(shapes, summarize(appID, appPolicies))
		}
		sort.Slice(shapes, func(i, j int) bool { return shapes[i].appID < shapes[j].appID })

		strictest := shapes[0]
		loosest := shapes[0]
		for _, s := range shapes[1:] {
			if s.score > strictest.score {
				strictest = s
			}
			if s.score < loosest.score {
				loosest = s
			}
		}
		gap := strictest.score - loosest.score
		if gap < meaningfulGap {
			continue
		}

		var affected, allIDs []string
		under := 0
		for _, s := range shapes {
			for _, p := range s.policies {
				allIDs = append(allIDs, p.ID)
			}
			if s.score < strictest.score {
				affected = append(affected, s.appID)
				under++
			}
		}
		sort.Strings(affected)
		sort.Strings(allIDs)

		recommended := mostRestrictive(shapes)
		f := &domain.InconsistentEnforcement{
			ID:                     uuid.NewString(),
			TenantID:               tenantID,
			ResourceType:           rt,
			AffectedApplicationIDs: affected,
			PolicyIDs:              allIDs,
			Severity:               severity(under, len(shapes), gap),
			Status:                 domain.FindingOpen,
			RecommendedPolicy: domain.RecommendedPolicy{
				Subject:    recommended.Subject,
				Action:     recommended.Action,
				Effect:     recommended.Effect,
				Conditions: recommended.Conditions,
			},
			CreatedAt: now,
		}
		f.Description = d.describe(ctx, f, strictest, affected)
		findings = append(findings, f)
	}
	return findings
}

// summarize reduces an application's policies on one resource type to its
// weakest protection shape.
func summarize(appID string, policies []*domain.Policy) appShape {
	sort.Slice(policies, func(i, j int) bool { return policies[i].ID < policies[j].ID })

	shape := appShape{appID: appID, policies: policies}
	for _, p := range policies {
		score := restrictiveness(p)
		if shape.weakest == nil || score < shape.score {
			shape.weakest = p
			shape.score = score
		}
	}
	return shape
}

// restrictiveness scores one policy's protection shape: specific subject
// role, condition presence, and action granularity.
func restrictiveness(p *domain.Policy) int {
	score := 0
	subject := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(p.Subject)), "role:")
	if !broadSubjects[subject] {
		score += 2
	}
	if p.HasConditions() {
		score += 2
	}
	action := strings.ToLower(strings.TrimSpace(p.Action))
	if action != "*" && action != "all" && action != "manage" {
		score++
	}
	return score
}

// mostRestrictive picks the single most restrictive policy across all
// applications, ties broken by ascending policy id.
func mostRestrictive(shapes []appShape) *domain.Policy {
	var best *domain.Policy
	bestScore := -1
	for _, s := range shapes {
		for _, p := range s.policies {
			score := restrictiveness(p)
			if score > bestScore || (score == bestScore && p.ID < best.ID) {
				best = p
				bestScore = score
			}
		}
	}
	return best
}

// severity scales with how many applications under-protect relative to the
// strictest one and how wide the gap is.
func severity(under, total, gap int) domain.Severity {
	wide := gap >= 3
	widespread := under*2 >= total
	switch {
	case wide && widespread:
		return domain.SeverityHigh
	case wide || widespread:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func (d *Detector) describe(ctx context.Context, f *domain.InconsistentEnforcement, strictest appShape, affected []string) string {
	fallback := fmt.Sprintf(
		"resource type %q is protected inconsistently: application %s requires %s with %s, while %s under-protect; standardize on the most restrictive shape",
		f.ResourceType, strictest.appID, strictest.weakest.Subject, conditionsSummary(strictest.weakest), strings.Join(affected, ", "))
	prompt := fmt.Sprintf(
		"Resource type %q is enforced inconsistently across applications %s. The strictest shape requires subject %s, action %s, conditions %v. Describe the risk briefly.",
		f.ResourceType, strings.Join(affected, ", "), f.RecommendedPolicy.Subject, f.RecommendedPolicy.Action, f.RecommendedPolicy.Conditions)
	return d.explainer.Recommend(ctx, prompt, fallback)
}

func conditionsSummary(p *domain.Policy) string {
	if !p.HasConditions() {
		return "no conditions"
	}
	keys := make([]string, 0, len(p.Conditions))
	for k := range p.Conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "conditions on " + strings.Join(keys, ", ")
}

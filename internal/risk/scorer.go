// Package risk scores scanned policies on a 0-100 scale. The scorer is an
// injectable capability so deployments can swap the heuristic without
// touching the auto-approval engine.
package risk

import (
	"strings"

	"policyscope/internal/domain"
)

// Scorer computes a risk score in [0,100] for a policy. Higher is riskier.
type Scorer interface {
	Score(p *domain.Policy) float64
}

// ScorerFunc adapts a plain function to the Scorer interface.
type ScorerFunc func(p *domain.Policy) float64

func (f ScorerFunc) Score(p *domain.Policy) float64 { return f(p) }

// broadActions grant sweeping capabilities regardless of resource.
var broadActions = map[string]bool{
	"*":      true,
	"all":    true,
	"any":    true,
	"manage": true,
	"admin":  true,
}

// mutatingActions change state and carry more risk than reads.
var mutatingActions = map[string]bool{
	"write":   true,
	"create":  true,
	"update":  true,
	"delete":  true,
	"destroy": true,
	"approve": true,
	"execute": true,
}

// sensitiveKeywords mark resources whose exposure is costly.
var sensitiveKeywords = []string{
	"payment", "billing", "invoice", "financial",
	"credential", "secret", "token", "password", "key",
	"user", "account", "admin",
	"pii", "ssn", "medical", "salary",
	"audit", "security",
}

// broadSubjects match any caller rather than a specific role.
var broadSubjects = map[string]bool{
	"*":             true,
	"any":           true,
	"all":           true,
	"anyone":        true,
	"authenticated": true,
	"public":        true,
}

// HeuristicScorer is the default risk model: a function of action breadth,
// condition presence, resource sensitivity, and subject breadth.
type HeuristicScorer struct{}

// NewHeuristicScorer creates the default scorer.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{}
}

// Score computes the heuristic risk score.
func (s *HeuristicScorer) Score(p *domain.Policy) float64 {
	score := 10.0

	action := strings.ToLower(strings.TrimSpace(p.Action))
	switch {
	case broadActions[action]:
		score += 30
	case mutatingActions[action]:
		score += 15
	default:
		score += 5
	}

	if !p.HasConditions() {
		score += 20
	}

	resource := strings.ToLower(p.Resource + " " + p.ResourceType)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(resource, kw) {
			score += 25
			break
		}
	}

	subject := strings.ToLower(strings.TrimSpace(p.Subject))
	subject = strings.TrimPrefix(subject, "role:")
	if broadSubjects[subject] {
		score += 15
	}

	if score > 100 {
		score = 100
	}
	return score
}

// Package approval implements the auto-approval engine: newly scanned
// policies are accepted without human review when their risk is low enough
// and enough similar policies were approved before. Both gates are required;
// neither similarity nor low risk alone is sufficient.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"policyscope/internal/domain"
	"policyscope/internal/risk"
	"policyscope/internal/similarity"
	"policyscope/internal/telemetry"
)

// DefaultSimilarityFloor is the score floor (on the [0,1] scale) above which
// an approved policy counts as historical precedent.
const DefaultSimilarityFloor = 0.70

// Engine evaluates scanned policies against the tenant's auto-approval
// settings.
type Engine struct {
	store           domain.Store
	similarity      *similarity.Service
	scorer          risk.Scorer
	similarityFloor float64
	metrics         *telemetry.Metrics
}

// NewEngine creates an auto-approval engine. A similarityFloor of 0 selects
// the default; metrics may be nil.
func NewEngine(store domain.Store, sim *similarity.Service, scorer risk.Scorer, similarityFloor float64, metrics *telemetry.Metrics) *Engine {
	if similarityFloor <= 0 {
		similarityFloor = DefaultSimilarityFloor
	}
	return &Engine{
		store:           store,
		similarity:      sim,
		scorer:          scorer,
		similarityFloor: similarityFloor,
		metrics:         metrics,
	}
}

// Evaluate runs the auto-approval decision for one scanned policy. It always
// writes an audit decision and bumps the tenant counters, even when the
// feature is disabled: the audit trail is a product requirement.
func (e *Engine) Evaluate(ctx context.Context, tenantID, policyID string) (*domain.AutoApprovalDecision, error) {
	policy, err := e.store.GetPolicy(ctx, tenantID, policyID)
	if err != nil {
		return nil, err
	}

	settings, err := e.store.GetSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	riskScore := e.scorer.Score(policy)

	decision := &domain.AutoApprovalDecision{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		PolicyID:  policyID,
		RiskScore: riskScore,
		CreatedAt: time.Now(),
	}

	if !settings.Enabled {
		decision.AutoApproved = false
		decision.Reasoning = "auto-approval disabled for tenant"
		return e.commit(ctx, policy, decision, riskScore)
	}

	matches, err := e.similarity.FindSimilar(ctx, similarity.Query{
		TenantID:      tenantID,
		PolicyID:      policyID,
		MinSimilarity: e.similarityFloor,
		ApprovedOnly:  true,
	})
	if err != nil {
		if !domain.IsNotFound(err) {
			return nil, err
		}
		// A tenant with no indexed history simply has no precedent.
		matches = nil
	}

	decision.SimilarPoliciesCount = len(matches)
	for _, m := range matches {
		decision.MatchedPatterns = append(decision.MatchedPatterns,
			fmt.Sprintf("%s: %s %s %s (%.1f%%)",
				m.Policy.ID, m.Policy.Subject, m.Policy.Action, m.Policy.Resource, m.Score))
	}

	riskOK := riskScore <= settings.RiskThreshold
	precedentOK := len(matches) >= settings.MinHistoricalApprovals
	decision.AutoApproved = riskOK && precedentOK
	decision.Reasoning = buildReasoning(riskScore, settings, len(matches), e.similarityFloor, riskOK, precedentOK)

	return e.commit(ctx, policy, decision, riskScore)
}

// commit persists the decision, bumps the counters, and moves the policy to
// its post-evaluation status.
func (e *Engine) commit(ctx context.Context, policy *domain.Policy, decision *domain.AutoApprovalDecision, riskScore float64) (*domain.AutoApprovalDecision, error) {
	if err := e.store.CreateDecision(ctx, decision); err != nil {
		return nil, fmt.Errorf("persist decision: %w", err)
	}
	if err := e.store.BumpCounters(ctx, decision.TenantID, decision.AutoApproved); err != nil {
		return nil, fmt.Errorf("update counters: %w", err)
	}

	status := domain.PolicyStatusPendingReview
	outcome := "pending_review"
	if decision.AutoApproved {
		status = domain.PolicyStatusAutoApproved
		outcome = "auto_approved"
	}
	if err := e.store.UpdatePolicyStatus(ctx, decision.TenantID, decision.PolicyID, status, riskScore); err != nil {
		return nil, fmt.Errorf("update policy status: %w", err)
	}

	if e.metrics != nil {
		e.metrics.Evaluations.WithLabelValues(decision.TenantID, outcome).Inc()
		if decision.AutoApproved {
			e.metrics.AutoApprovals.WithLabelValues(decision.TenantID).Inc()
		}
	}
	slog.Info("auto-approval evaluated",
		"tenant_id", decision.TenantID,
		"policy_id", decision.PolicyID,
		"auto_approved", decision.AutoApproved,
		"risk_score", riskScore,
		"similar_count", decision.SimilarPoliciesCount,
	)
	return decision, nil
}

func buildReasoning(riskScore float64, settings *domain.AutoApprovalSettings, similarCount int, floor float64, riskOK, precedentOK bool) string {
	riskPart := fmt.Sprintf("risk score %.1f within threshold %.1f", riskScore, settings.RiskThreshold)
	if !riskOK {
		riskPart = fmt.Sprintf("risk score %.1f exceeds threshold %.1f", riskScore, settings.RiskThreshold)
	}

	precedentPart := fmt.Sprintf("%d approved policies at >=%.0f%% similarity meet minimum %d",
		similarCount, floor*100, settings.MinHistoricalApprovals)
	if !precedentOK {
		precedentPart = fmt.Sprintf("insufficient historical approvals (%d < %d) at >=%.0f%% similarity",
			similarCount, settings.MinHistoricalApprovals, floor*100)
	}

	verdict := "auto-approved"
	if !(riskOK && precedentOK) {
		verdict = "routed to human review"
	}
	return fmt.Sprintf("%s: %s; %s", verdict, riskPart, precedentPart)
}

// GetMetrics returns the persisted counters plus the derived approval rate.
// Pure read, no recomputation.
func (e *Engine) GetMetrics(ctx context.Context, tenantID string) (*domain.AutoApprovalMetrics, error) {
	settings, err := e.store.GetSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &domain.AutoApprovalMetrics{
		TenantID:               tenantID,
		Enabled:                settings.Enabled,
		RiskThreshold:          settings.RiskThreshold,
		MinHistoricalApprovals: settings.MinHistoricalApprovals,
		TotalAutoApprovals:     settings.TotalAutoApprovals,
		TotalPoliciesScanned:   settings.TotalPoliciesScanned,
		AutoApprovalRate:       settings.Rate(),
	}, nil
}

// UpdateSettings validates and persists tenant settings. Counters are
// preserved: settings updates never reset the audit totals.
func (e *Engine) UpdateSettings(ctx context.Context, settings *domain.AutoApprovalSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	current, err := e.store.GetSettings(ctx, settings.TenantID)
	if err != nil {
		return err
	}
	settings.TotalAutoApprovals = current.TotalAutoApprovals
	settings.TotalPoliciesScanned = current.TotalPoliciesScanned
	return e.store.SaveSettings(ctx, settings)
}

// Package engine is the facade of the policy intelligence engine: it wires
// the similarity layer and the five detectors together, owns the tenant
// advisory lock, and commits batch findings atomically.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"policyscope/internal/approval"
	"policyscope/internal/conflict"
	"policyscope/internal/domain"
	"policyscope/internal/duplicate"
	"policyscope/internal/enforcement"
	"policyscope/internal/explain"
	"policyscope/internal/intake"
	"policyscope/internal/risk"
	"policyscope/internal/rolemap"
	"policyscope/internal/similarity"
	"policyscope/internal/telemetry"
	"policyscope/internal/vector"
)

// Options configure engine thresholds. Zero values select defaults.
type Options struct {
	// SimilarityFloor is the [0,1] score above which an approved policy
	// counts as auto-approval precedent. Default 0.70.
	SimilarityFloor float64
	// DuplicateThreshold is the [0,1] score above which policies are
	// duplicates. Tuned independently of the similarity floor and stricter
	// than it. Default 0.90.
	DuplicateThreshold float64
	// RoleSimilarityThreshold for role-name clustering. Default 0.80.
	RoleSimilarityThreshold float64
	// Scorer overrides the default heuristic risk model.
	Scorer risk.Scorer
	// Explainer generates finding recommendations; nil means template-only.
	Explainer explain.Generator
	// Metrics may be nil.
	Metrics *telemetry.Metrics
}

// Engine exposes every operation of the policy intelligence engine.
type Engine struct {
	store      domain.Store
	index      vector.Index
	intake     *intake.Service
	similarity *similarity.Service
	approval   *approval.Engine
	conflicts  *conflict.Detector
	duplicates *duplicate.Detector
	shapes     *enforcement.Detector
	roles      *rolemap.Discoverer
	metrics    *telemetry.Metrics
}

// New wires the engine over a store and a vector index.
func New(store domain.Store, index vector.Index, opts Options) (*Engine, error) {
	scorer := opts.Scorer
	if scorer == nil {
		scorer = risk.NewHeuristicScorer()
	}
	explainer := explain.NewService(opts.Explainer, opts.Metrics)

	intakeSvc, err := intake.NewService(store, index)
	if err != nil {
		return nil, err
	}
	simSvc := similarity.NewService(store, index, opts.Metrics)

	return &Engine{
		store:      store,
		index:      index,
		intake:     intakeSvc,
		similarity: simSvc,
		approval:   approval.NewEngine(store, simSvc, scorer, opts.SimilarityFloor, opts.Metrics),
		conflicts:  conflict.NewDetector(explainer),
		duplicates: duplicate.NewDetector(opts.DuplicateThreshold),
		shapes:     enforcement.NewDetector(explainer),
		roles:      rolemap.NewDiscoverer(opts.RoleSimilarityThreshold),
		metrics:    opts.Metrics,
	}, nil
}

// IngestPolicy accepts a scanner-produced policy into the engine.
func (e *Engine) IngestPolicy(ctx context.Context, p *domain.Policy) error {
	return e.intake.Ingest(ctx, p)
}

// SimilarPolicies returns policies similar to the given one, excluding the
// policy itself and anything rejected or consolidated away.
func (e *Engine) SimilarPolicies(ctx context.Context, tenantID, policyID string, limit int, minSimilarity float64) ([]domain.SimilarPolicy, error) {
	return e.similarity.FindSimilar(ctx, similarity.Query{
		TenantID:      tenantID,
		PolicyID:      policyID,
		Limit:         limit,
		MinSimilarity: minSimilarity,
		ActiveOnly:    true,
	})
}

// EvaluateAutoApproval runs the auto-approval decision for one policy.
func (e *Engine) EvaluateAutoApproval(ctx context.Context, tenantID, policyID string) (*domain.AutoApprovalDecision, error) {
	return e.approval.Evaluate(ctx, tenantID, policyID)
}

// AutoApprovalMetrics returns the persisted counters and derived rate.
func (e *Engine) AutoApprovalMetrics(ctx context.Context, tenantID string) (*domain.AutoApprovalMetrics, error) {
	return e.approval.GetMetrics(ctx, tenantID)
}

// UpdateAutoApprovalSettings validates and persists tenant settings.
func (e *Engine) UpdateAutoApprovalSettings(ctx context.Context, settings *domain.AutoApprovalSettings) error {
	return e.approval.UpdateSettings(ctx, settings)
}

// DetectConflicts runs conflict detection over the tenant's policies and
// replaces the tenant's open conflicts atomically.
func (e *Engine) DetectConflicts(ctx context.Context, tenantID string) ([]*domain.Conflict, error) {
	var conflicts []*domain.Conflict
	err := e.store.WithTenantLock(ctx, tenantID, func(ctx context.Context) error {
		policies, err := e.store.ListPolicies(ctx, tenantID, domain.PolicyFilter{ActiveOnly: true})
		if err != nil {
			return err
		}
		conflicts = e.conflicts.Detect(ctx, tenantID, policies)
		return e.store.ReplaceOpenConflicts(ctx, tenantID, conflicts)
	})
	e.observeRun("conflict", err)
	if err != nil {
		return nil, err
	}
	for _, c := range conflicts {
		e.observeFinding("conflict", c.Severity)
	}
	return conflicts, nil
}

// ResolveConflict applies a resolution strategy to an open conflict.
// Strategy custom requires notes.
func (e *Engine) ResolveConflict(ctx context.Context, conflictID string, strategy domain.ResolutionStrategy, notes string) (*domain.Conflict, error) {
	switch strategy {
	case domain.ResolutionKeepA, domain.ResolutionKeepB, domain.ResolutionMerge:
	case domain.ResolutionCustom:
		if notes == "" {
			return nil, domain.InvalidArgument("resolution_notes required for custom strategy")
		}
	default:
		return nil, domain.InvalidArgument("unknown resolution strategy %q", strategy)
	}

	c, err := e.store.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}

	err = e.store.WithTenantLock(ctx, c.TenantID, func(ctx context.Context) error {
		// Re-read under the lock; a concurrent resolution may have won.
		c, err = e.store.GetConflict(ctx, conflictID)
		if err != nil {
			return err
		}
		if c.Status != domain.FindingOpen {
			return domain.PreconditionFailed("conflict %s is already %s", conflictID, c.Status)
		}
		now := time.Now()
		c.Status = domain.FindingResolved
		c.ResolutionStrategy = strategy
		c.ResolutionNotes = notes
		c.ResolvedAt = &now
		return e.store.UpdateConflict(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.ConflictResolutions.WithLabelValues(string(strategy)).Inc()
	}
	return c, nil
}

// DetectDuplicates clusters near-identical cross-application policies. The
// groups are ephemeral: nothing is persisted until Consolidate is called.
func (e *Engine) DetectDuplicates(ctx context.Context, tenantID string) ([]domain.DuplicateGroup, error) {
	var groups []domain.DuplicateGroup
	err := e.store.WithTenantLock(ctx, tenantID, func(ctx context.Context) error {
		policies, err := e.store.ListPolicies(ctx, tenantID, domain.PolicyFilter{ActiveOnly: true})
		if err != nil {
			return err
		}
		groups = e.duplicates.Detect(ctx, tenantID, policies)
		return nil
	})
	e.observeRun("duplicate", err)
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// Consolidate deactivates every policy in policyIDs except keepPolicyID and
// returns the removed ids. Destructive and therefore explicit: detection
// never triggers it.
func (e *Engine) Consolidate(ctx context.Context, tenantID string, policyIDs []string, keepPolicyID string) ([]string, error) {
	if len(policyIDs) < 2 {
		return nil, domain.InvalidArgument("consolidation needs at least two policies")
	}
	keep := false
	removed := make([]string, 0, len(policyIDs)-1)
	for _, id := range policyIDs {
		if id == keepPolicyID {
			keep = true
			continue
		}
		removed = append(removed, id)
	}
	if !keep {
		return nil, domain.InvalidArgument("keep_policy_id %s not in policy_ids", keepPolicyID)
	}
	sort.Strings(removed)

	err := e.store.WithTenantLock(ctx, tenantID, func(ctx context.Context) error {
		if err := e.store.DeactivatePolicies(ctx, tenantID, removed); err != nil {
			return err
		}
		for _, id := range removed {
			if err := e.index.Remove(ctx, tenantID, id); err != nil {
				return fmt.Errorf("deindex policy %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.PoliciesConsolidated.WithLabelValues(tenantID).Add(float64(len(removed)))
	}
	slog.Info("policies consolidated",
		"tenant_id", tenantID,
		"kept", keepPolicyID,
		"removed", len(removed),
	)
	return removed, nil
}

// DetectInconsistencies compares protection shapes per resource type across
// the tenant's applications and replaces open findings atomically.
func (e *Engine) DetectInconsistencies(ctx context.Context, tenantID string) ([]*domain.InconsistentEnforcement, error) {
	var findings []*domain.InconsistentEnforcement
	err := e.store.WithTenantLock(ctx, tenantID, func(ctx context.Context) error {
		policies, err := e.store.ListPolicies(ctx, tenantID, domain.PolicyFilter{ActiveOnly: true})
		if err != nil {
			return err
		}
		findings = e.shapes.Detect(ctx, tenantID, policies)
		return e.store.ReplaceOpenFindings(ctx, tenantID, findings)
	})
	e.observeRun("enforcement", err)
	if err != nil {
		return nil, err
	}
	for _, f := range findings {
		e.observeFinding("enforcement", f.Severity)
	}
	return findings, nil
}

// UpdateFindingStatus resolves or dismisses an open enforcement finding.
func (e *Engine) UpdateFindingStatus(ctx context.Context, findingID string, status domain.FindingStatus) (*domain.InconsistentEnforcement, error) {
	if status != domain.FindingResolved && status != domain.FindingDismissed {
		return nil, domain.InvalidArgument("finding status must be resolved or dismissed, got %q", status)
	}

	f, err := e.store.GetFinding(ctx, findingID)
	if err != nil {
		return nil, err
	}
	err = e.store.WithTenantLock(ctx, f.TenantID, func(ctx context.Context) error {
		f, err = e.store.GetFinding(ctx, findingID)
		if err != nil {
			return err
		}
		if f.Status != domain.FindingOpen {
			return domain.PreconditionFailed("finding %s is already %s", findingID, f.Status)
		}
		f.Status = status
		return e.store.UpdateFinding(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// DiscoverRoleMappings clusters role-name variants and replaces the tenant's
// suggested mappings. Approved and applied mappings survive rediscovery.
func (e *Engine) DiscoverRoleMappings(ctx context.Context, tenantID string, minApplications int) ([]*domain.RoleMapping, error) {
	var mappings []*domain.RoleMapping
	err := e.store.WithTenantLock(ctx, tenantID, func(ctx context.Context) error {
		policies, err := e.store.ListPolicies(ctx, tenantID, domain.PolicyFilter{ActiveOnly: true})
		if err != nil {
			return err
		}
		mappings, err = e.roles.Discover(ctx, tenantID, policies, minApplications)
		if err != nil {
			return err
		}
		return e.store.ReplaceSuggestedMappings(ctx, tenantID, mappings)
	})
	e.observeRun("rolemap", err)
	if err != nil {
		return nil, err
	}
	return mappings, nil
}

// ApproveRoleMapping moves a suggested mapping to approved.
func (e *Engine) ApproveRoleMapping(ctx context.Context, mappingID, approvedBy string) (*domain.RoleMapping, error) {
	if approvedBy == "" {
		return nil, domain.InvalidArgument("approved_by is required")
	}

	m, err := e.store.GetRoleMapping(ctx, mappingID)
	if err != nil {
		return nil, err
	}
	err = e.store.WithTenantLock(ctx, m.TenantID, func(ctx context.Context) error {
		m, err = e.store.GetRoleMapping(ctx, mappingID)
		if err != nil {
			return err
		}
		if m.Status != domain.RoleMappingSuggested {
			return domain.PreconditionFailed("role mapping %s is %s, not suggested", mappingID, m.Status)
		}
		now := time.Now()
		m.Status = domain.RoleMappingApproved
		m.ApprovedBy = approvedBy
		m.ApprovedAt = &now
		return e.store.UpdateRoleMapping(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// MarkRoleMappingApplied records that an approved mapping has been
// propagated to policies. Propagation itself happens outside this engine.
func (e *Engine) MarkRoleMappingApplied(ctx context.Context, mappingID string) (*domain.RoleMapping, error) {
	m, err := e.store.GetRoleMapping(ctx, mappingID)
	if err != nil {
		return nil, err
	}
	err = e.store.WithTenantLock(ctx, m.TenantID, func(ctx context.Context) error {
		m, err = e.store.GetRoleMapping(ctx, mappingID)
		if err != nil {
			return err
		}
		if m.Status != domain.RoleMappingApproved {
			return domain.PreconditionFailed("role mapping %s is %s, not approved", mappingID, m.Status)
		}
		now := time.Now()
		m.Status = domain.RoleMappingApplied
		m.AppliedAt = &now
		return e.store.UpdateRoleMapping(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (e *Engine) observeRun(detector string, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.DetectorRuns.WithLabelValues(detector).Inc()
	if err != nil {
		e.metrics.DetectorErrors.WithLabelValues(detector).Inc()
	}
}

func (e *Engine) observeFinding(detector string, severity domain.Severity) {
	if e.metrics == nil {
		return
	}
	e.metrics.DetectorFindings.WithLabelValues(detector, string(severity)).Inc()
}

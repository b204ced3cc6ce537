package domain

import "context"

// PolicyFilter narrows policy listings. Zero values mean "no filter".
type PolicyFilter struct {
	Status        PolicyStatus
	ApplicationID string
	Resource      string
	ResourceType  string
	// ActiveOnly excludes rejected and inactive policies.
	ActiveOnly bool
}

// Matches reports whether p passes the filter.
func (f PolicyFilter) Matches(p *Policy) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.ApplicationID != "" && p.ApplicationID != f.ApplicationID {
		return false
	}
	if f.Resource != "" && p.Resource != f.Resource {
		return false
	}
	if f.ResourceType != "" && p.ResourceType != f.ResourceType {
		return false
	}
	if f.ActiveOnly && (p.Status == PolicyStatusRejected || p.Status == PolicyStatusInactive) {
		return false
	}
	return true
}

// PolicyRepository persists scanned policies. All reads and writes are
// tenant-scoped; implementations must never return another tenant's rows.
type PolicyRepository interface {
	CreatePolicy(ctx context.Context, p *Policy) error
	GetPolicy(ctx context.Context, tenantID, id string) (*Policy, error)
	ListPolicies(ctx context.Context, tenantID string, filter PolicyFilter) ([]*Policy, error)
	// UpdatePolicyStatus also records the risk score computed at evaluation
	// time; embedding and tenant binding are immutable.
	UpdatePolicyStatus(ctx context.Context, tenantID, id string, status PolicyStatus, riskScore float64) error
	// DeactivatePolicies marks the given policies inactive in one atomic
	// write. Used only by consolidation.
	DeactivatePolicies(ctx context.Context, tenantID string, ids []string) error
}

// SettingsRepository persists per-tenant auto-approval settings.
type SettingsRepository interface {
	// GetSettings returns the tenant's settings, or the documented default
	// when the tenant has none persisted. Never returns not-found.
	GetSettings(ctx context.Context, tenantID string) (*AutoApprovalSettings, error)
	SaveSettings(ctx context.Context, s *AutoApprovalSettings) error
	// BumpCounters increments total_policies_scanned, and total_auto_approvals
	// when approved is true, atomically.
	BumpCounters(ctx context.Context, tenantID string, approved bool) error
}

// DecisionRepository persists the append-only auto-approval audit trail.
type DecisionRepository interface {
	CreateDecision(ctx context.Context, d *AutoApprovalDecision) error
	ListDecisions(ctx context.Context, tenantID string, limit int) ([]*AutoApprovalDecision, error)
}

// ConflictRepository persists conflict findings.
type ConflictRepository interface {
	// ReplaceOpenConflicts commits a detection run atomically: the tenant's
	// previous open conflicts are removed and the new set inserted, all or
	// nothing. Resolved and dismissed conflicts are untouched.
	ReplaceOpenConflicts(ctx context.Context, tenantID string, conflicts []*Conflict) error
	GetConflict(ctx context.Context, id string) (*Conflict, error)
	UpdateConflict(ctx context.Context, c *Conflict) error
	ListConflicts(ctx context.Context, tenantID string, status FindingStatus) ([]*Conflict, error)
}

// EnforcementRepository persists inconsistent-enforcement findings with the
// same replace-open batch semantics as conflicts.
type EnforcementRepository interface {
	ReplaceOpenFindings(ctx context.Context, tenantID string, findings []*InconsistentEnforcement) error
	GetFinding(ctx context.Context, id string) (*InconsistentEnforcement, error)
	UpdateFinding(ctx context.Context, f *InconsistentEnforcement) error
	ListFindings(ctx context.Context, tenantID string, status FindingStatus) ([]*InconsistentEnforcement, error)
}

// RoleMappingRepository persists discovered role mappings. Approved and
// applied mappings survive rediscovery; suggested ones are replaced.
type RoleMappingRepository interface {
	ReplaceSuggestedMappings(ctx context.Context, tenantID string, mappings []*RoleMapping) error
	GetRoleMapping(ctx context.Context, id string) (*RoleMapping, error)
	UpdateRoleMapping(ctx context.Context, m *RoleMapping) error
	ListRoleMappings(ctx context.Context, tenantID string) ([]*RoleMapping, error)
}

// Store aggregates every repository the engine needs plus the tenant lock
// used to serialize batch detections against consolidation/resolution writes.
type Store interface {
	PolicyRepository
	SettingsRepository
	DecisionRepository
	ConflictRepository
	EnforcementRepository
	RoleMappingRepository

	// WithTenantLock runs fn while holding the tenant's advisory lock.
	WithTenantLock(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error
}

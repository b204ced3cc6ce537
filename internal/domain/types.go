// Package domain contains the core entities of the policy intelligence
// engine: scanned policies, auto-approval settings and decisions, and the
// findings produced by the batch detectors.
package domain

import (
	"time"
)

// PolicyStatus is the lifecycle state of a scanned policy.
type PolicyStatus string

const (
	PolicyStatusScanned       PolicyStatus = "scanned"
	PolicyStatusPendingReview PolicyStatus = "pending_review"
	PolicyStatusAutoApproved  PolicyStatus = "auto_approved"
	PolicyStatusApproved      PolicyStatus = "approved"
	PolicyStatusRejected      PolicyStatus = "rejected"
	PolicyStatusInactive      PolicyStatus = "inactive"
)

// IsApproved reports whether the status counts as historical precedent for
// auto-approval. Both human approval and prior auto-approval qualify.
func (s PolicyStatus) IsApproved() bool {
	return s == PolicyStatusApproved || s == PolicyStatusAutoApproved
}

// PolicyEffect is the effect of a policy rule.
type PolicyEffect string

const (
	EffectAllow PolicyEffect = "allow"
	EffectDeny  PolicyEffect = "deny"
)

// Policy is an access-control rule extracted from a scanned source
// repository. The embedding is computed once at ingestion by the external
// scanning pipeline and is immutable afterwards, as is the tenant binding.
type Policy struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	ApplicationID string         `json:"application_id"`
	Subject       string         `json:"subject"`
	Resource      string         `json:"resource"`
	ResourceType  string         `json:"resource_type"`
	Action        string         `json:"action"`
	Effect        PolicyEffect   `json:"effect"`
	Conditions    map[string]any `json:"conditions,omitempty"`
	Embedding     []float32      `json:"-"`
	RiskScore     float64        `json:"risk_score"`
	Status        PolicyStatus   `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// HasConditions reports whether the policy carries any condition document.
func (p *Policy) HasConditions() bool {
	return len(p.Conditions) > 0
}

// AutoApprovalSettings is the per-tenant auto-approval configuration plus its
// running counters. One record per tenant; DefaultAutoApprovalSettings is
// used when a tenant has none persisted.
type AutoApprovalSettings struct {
	TenantID               string  `json:"tenant_id"`
	Enabled                bool    `json:"enabled"`
	RiskThreshold          float64 `json:"risk_threshold"`           // 0-100
	MinHistoricalApprovals int     `json:"min_historical_approvals"` // >= 1
	TotalAutoApprovals     int64   `json:"total_auto_approvals"`
	TotalPoliciesScanned   int64   `json:"total_policies_scanned"`
}

// DefaultAutoApprovalSettings returns the settings used for tenants that have
// never configured auto-approval. Disabled by default: auto-approval is an
// opt-in feature.
func DefaultAutoApprovalSettings(tenantID string) *AutoApprovalSettings {
	return &AutoApprovalSettings{
		TenantID:               tenantID,
		Enabled:                false,
		RiskThreshold:          30,
		MinHistoricalApprovals: 3,
	}
}

// Validate checks the configurable fields against their declared ranges.
func (s *AutoApprovalSettings) Validate() error {
	if s.RiskThreshold < 0 || s.RiskThreshold > 100 {
		return InvalidArgument("risk_threshold %.2f outside [0,100]", s.RiskThreshold)
	}
	if s.MinHistoricalApprovals < 1 {
		return InvalidArgument("min_historical_approvals %d must be >= 1", s.MinHistoricalApprovals)
	}
	return nil
}

// Rate returns the auto-approval rate, 0 when nothing has been scanned yet.
func (s *AutoApprovalSettings) Rate() float64 {
	if s.TotalPoliciesScanned == 0 {
		return 0
	}
	return float64(s.TotalAutoApprovals) / float64(s.TotalPoliciesScanned)
}

// AutoApprovalDecision is the append-only audit record written for every
// evaluated policy, including evaluations that short-circuit because the
// feature is disabled.
type AutoApprovalDecision struct {
	ID                   string    `json:"id"`
	TenantID             string    `json:"tenant_id"`
	PolicyID             string    `json:"policy_id"`
	AutoApproved         bool      `json:"auto_approved"`
	Reasoning            string    `json:"reasoning"`
	RiskScore            float64   `json:"risk_score"`
	SimilarPoliciesCount int       `json:"similar_policies_count"`
	MatchedPatterns      []string  `json:"matched_patterns,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// AutoApprovalMetrics is the read model returned by the metrics endpoint.
type AutoApprovalMetrics struct {
	TenantID               string  `json:"tenant_id"`
	Enabled                bool    `json:"enabled"`
	RiskThreshold          float64 `json:"risk_threshold"`
	MinHistoricalApprovals int     `json:"min_historical_approvals"`
	TotalAutoApprovals     int64   `json:"total_auto_approvals"`
	TotalPoliciesScanned   int64   `json:"total_policies_scanned"`
	AutoApprovalRate       float64 `json:"auto_approval_rate"`
}

// Severity of a detector finding.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// FindingStatus is the review state of a persisted finding.
type FindingStatus string

const (
	FindingOpen      FindingStatus = "open"
	FindingResolved  FindingStatus = "resolved"
	FindingDismissed FindingStatus = "dismissed"
)

// ConflictType classifies how two policies contradict each other.
type ConflictType string

const (
	ConflictContradictoryEffect ConflictType = "contradictory_effect"
	ConflictOverlappingScope    ConflictType = "overlapping_scope"
	ConflictPrivilegeEscalation ConflictType = "privilege_escalation_risk"
)

// ResolutionStrategy for a conflict.
type ResolutionStrategy string

const (
	ResolutionKeepA  ResolutionStrategy = "keep_a"
	ResolutionKeepB  ResolutionStrategy = "keep_b"
	ResolutionMerge  ResolutionStrategy = "merge"
	ResolutionCustom ResolutionStrategy = "custom"
)

// Conflict is an undirected pair of policies whose effects or scopes
// contradict. PolicyAID is always the smaller id of the pair so that (a,b)
// and (b,a) map to the same record.
type Conflict struct {
	ID                 string             `json:"id"`
	TenantID           string             `json:"tenant_id"`
	PolicyAID          string             `json:"policy_a_id"`
	PolicyBID          string             `json:"policy_b_id"`
	ConflictType       ConflictType       `json:"conflict_type"`
	Severity           Severity           `json:"severity"`
	Description        string             `json:"description"`
	AIRecommendation   string             `json:"ai_recommendation,omitempty"`
	Status             FindingStatus      `json:"status"`
	ResolutionStrategy ResolutionStrategy `json:"resolution_strategy,omitempty"`
	ResolutionNotes    string             `json:"resolution_notes,omitempty"`
	ResolvedAt         *time.Time         `json:"resolved_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

// PairKey returns the canonical unordered pair key of the conflict.
func (c *Conflict) PairKey() string {
	return PairKey(c.PolicyAID, c.PolicyBID)
}

// PairKey builds the canonical key for an unordered policy pair.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// DuplicateGroup is an ephemeral cluster of near-identical policies spanning
// multiple applications. It is not persisted unless consolidated.
type DuplicateGroup struct {
	PolicyIDs        []string `json:"policy_ids"`
	Applications     []string `json:"applications"`
	SimilarityScore  float64  `json:"similarity_score"` // [0,1], minimum pairwise within the group
	PotentialSavings int      `json:"potential_savings"`
}

// RecommendedPolicy is the standardized protection shape suggested by the
// inconsistent-enforcement detector: the most restrictive shape observed.
type RecommendedPolicy struct {
	Subject    string         `json:"subject"`
	Action     string         `json:"action"`
	Effect     PolicyEffect   `json:"effect"`
	Conditions map[string]any `json:"conditions,omitempty"`
}

// InconsistentEnforcement records a resource type protected differently
// across a tenant's applications.
type InconsistentEnforcement struct {
	ID                     string            `json:"id"`
	TenantID               string            `json:"tenant_id"`
	ResourceType           string            `json:"resource_type"`
	AffectedApplicationIDs []string          `json:"affected_application_ids"`
	PolicyIDs              []string          `json:"policy_ids"`
	Severity               Severity          `json:"severity"`
	Description            string            `json:"description"`
	RecommendedPolicy      RecommendedPolicy `json:"recommended_policy"`
	Status                 FindingStatus     `json:"status"`
	CreatedAt              time.Time         `json:"created_at"`
}

// RoleMappingStatus is the two-step approval workflow state of a mapping.
type RoleMappingStatus string

const (
	RoleMappingSuggested RoleMappingStatus = "suggested"
	RoleMappingApproved  RoleMappingStatus = "approved"
	RoleMappingApplied   RoleMappingStatus = "applied"
)

// RoleMapping normalizes semantically equivalent role-name variants observed
// across applications to one canonical role.
type RoleMapping struct {
	ID                   string            `json:"id"`
	TenantID             string            `json:"tenant_id"`
	StandardRole         string            `json:"standard_role"`
	VariantRoles         []string          `json:"variant_roles"`
	AffectedApplications []string          `json:"affected_applications"`
	ConfidenceScore      float64           `json:"confidence_score"` // 0-100
	Status               RoleMappingStatus `json:"status"`
	ApprovedBy           string            `json:"approved_by,omitempty"`
	ApprovedAt           *time.Time        `json:"approved_at,omitempty"`
	AppliedAt            *time.Time        `json:"applied_at,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
}

// SimilarPolicy is one similarity-search result: a policy and its normalized
// score on the 0-100 scale.
type SimilarPolicy struct {
	Policy *Policy `json:"policy"`
	Score  float64 `json:"score"`
}

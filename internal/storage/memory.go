// Package storage provides data storage implementations.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"policyscope/internal/domain"
)

// MemoryStore provides in-memory storage for development and testing. It
// implements domain.Store with the same semantics as the PostgreSQL store,
// including the per-tenant advisory lock.
type MemoryStore struct {
	policies    map[string]map[string]*domain.Policy // tenant -> id -> policy
	settings    map[string]*domain.AutoApprovalSettings
	decisions   []*domain.AutoApprovalDecision
	conflicts   map[string]*domain.Conflict
	enforcement map[string]*domain.InconsistentEnforcement
	roleMaps    map[string]*domain.RoleMapping
	mu          sync.RWMutex

	tenantLocks map[string]*sync.Mutex
	lockMu      sync.Mutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		policies:    make(map[string]map[string]*domain.Policy),
		settings:    make(map[string]*domain.AutoApprovalSettings),
		conflicts:   make(map[string]*domain.Conflict),
		enforcement: make(map[string]*domain.InconsistentEnforcement),
		roleMaps:    make(map[string]*domain.RoleMapping),
		tenantLocks: make(map[string]*sync.Mutex),
	}
}

// =============================================================================
// PolicyRepository
// =============================================================================

func (s *MemoryStore) CreatePolicy(ctx context.Context, p *domain.Policy) error {
	if p.ID == "" || p.TenantID == "" {
		return domain.InvalidArgument("policy id and tenant_id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.policies[p.TenantID]
	if !ok {
		tenant = make(map[string]*domain.Policy)
		s.policies[p.TenantID] = tenant
	}
	tenant[p.ID] = clonePolicy(p)
	return nil
}

func (s *MemoryStore) GetPolicy(ctx context.Context, tenantID, id string) (*domain.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.policies[tenantID][id]; ok {
		return clonePolicy(p), nil
	}
	return nil, domain.NotFound("policy %s not found in tenant %s", id, tenantID)
}

func (s *MemoryStore) ListPolicies(ctx context.Context, tenantID string, filter domain.PolicyFilter) ([]*domain.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Policy
	for _, p := range s.policies[tenantID] {
		if filter.Matches(p) {
			result = append(result, clonePolicy(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) UpdatePolicyStatus(ctx context.Context, tenantID, id string, status domain.PolicyStatus, riskScore float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.policies[tenantID][id]
	if !ok {
		return domain.NotFound("policy %s not found in tenant %s", id, tenantID)
	}
	p.Status = status
	p.RiskScore = riskScore
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) DeactivatePolicies(ctx context.Context, tenantID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant := s.policies[tenantID]
	for _, id := range ids {
		if _, ok := tenant[id]; !ok {
			return domain.NotFound("policy %s not found in tenant %s", id, tenantID)
		}
	}
	now := time.Now()
	for _, id := range ids {
		tenant[id].Status = domain.PolicyStatusInactive
		tenant[id].UpdatedAt = now
	}
	return nil
}

// =============================================================================
// SettingsRepository
// =============================================================================

func (s *MemoryStore) GetSettings(ctx context.Context, tenantID string) (*domain.AutoApprovalSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cfg, ok := s.settings[tenantID]; ok {
		copied := *cfg
		return &copied, nil
	}
	return domain.DefaultAutoApprovalSettings(tenantID), nil
}

func (s *MemoryStore) SaveSettings(ctx context.Context, cfg *domain.AutoApprovalSettings) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *cfg
	s.settings[cfg.TenantID] = &copied
	return nil
}

func (s *MemoryStore) BumpCounters(ctx context.Context, tenantID string, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.settings[tenantID]
	if !ok {
		cfg = domain.DefaultAutoApprovalSettings(tenantID)
		s.settings[tenantID] = cfg
	}
	cfg.TotalPoliciesScanned++
	if approved {
		cfg.TotalAutoApprovals++
	}
	return nil
}

// =============================================================================
// DecisionRepository
// =============================================================================

func (s *MemoryStore) CreateDecision(ctx context.Context, d *domain.AutoApprovalDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *d
	s.decisions = append(s.decisions, &copied)
	return nil
}

func (s *MemoryStore) ListDecisions(ctx context.Context, tenantID string, limit int) ([]*domain.AutoApprovalDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AutoApprovalDecision
	// Newest first.
	for i := len(s.decisions) - 1; i >= 0; i-- {
		if s.decisions[i].TenantID != tenantID {
			continue
		}
		copied := *s.decisions[i]
		result = append(result, &copied)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// =============================================================================
// ConflictRepository
// =============================================================================

func (s *MemoryStore) ReplaceOpenConflicts(ctx context.Context, tenantID string, conflicts []*domain.Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.conflicts {
		if c.TenantID == tenantID && c.Status == domain.FindingOpen {
			delete(s.conflicts, id)
		}
	}
	for _, c := range conflicts {
		copied := *c
		s.conflicts[c.ID] = &copied
	}
	return nil
}

func (s *MemoryStore) GetConflict(ctx context.Context, id string) (*domain.Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.conflicts[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, domain.NotFound("conflict %s not found", id)
}

func (s *MemoryStore) UpdateConflict(ctx context.Context, c *domain.Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conflicts[c.ID]; !ok {
		return domain.NotFound("conflict %s not found", c.ID)
	}
	copied := *c
	s.conflicts[c.ID] = &copied
	return nil
}

func (s *MemoryStore) ListConflicts(ctx context.Context, tenantID string, status domain.FindingStatus) ([]*domain.Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Conflict
	for _, c := range s.conflicts {
		if c.TenantID != tenantID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		copied := *c
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// EnforcementRepository
// =============================================================================

func (s *MemoryStore) ReplaceOpenFindings(ctx context.Context, tenantID string, findings []*domain.InconsistentEnforcement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, f := range s.enforcement {
		if f.TenantID == tenantID && f.Status == domain.FindingOpen {
			delete(s.enforcement, id)
		}
	}
	for _, f := range findings {
		copied := *f
		s.enforcement[f.ID] = &copied
	}
	return nil
}

func (s *MemoryStore) GetFinding(ctx context.Context, id string) (*domain.InconsistentEnforcement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f, ok := s.enforcement[id]; ok {
		copied := *f
		return &copied, nil
	}
	return nil, domain.NotFound("enforcement finding %s not found", id)
}

func (s *MemoryStore) UpdateFinding(ctx context.Context, f *domain.InconsistentEnforcement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.enforcement[f.ID]; !ok {
		return domain.NotFound("enforcement finding %s not found", f.ID)
	}
	copied := *f
	s.enforcement[f.ID] = &copied
	return nil
}

func (s *MemoryStore) ListFindings(ctx context.Context, tenantID string, status domain.FindingStatus) ([]*domain.InconsistentEnforcement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.InconsistentEnforcement
	for _, f := range s.enforcement {
		if f.TenantID != tenantID {
			continue
		}
		if status != "" && f.Status != status {
			continue
		}
		copied := *f
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// RoleMappingRepository
// =============================================================================

func (s *MemoryStore) ReplaceSuggestedMappings(ctx context.Context, tenantID string, mappings []*domain.RoleMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, m := range s.roleMaps {
		if m.TenantID == tenantID && m.Status == domain.RoleMappingSuggested {
			delete(s.roleMaps, id)
		}
	}
	for _, m := range mappings {
		copied := *m
		s.roleMaps[m.ID] = &copied
	}
	return nil
}

func (s *MemoryStore) GetRoleMapping(ctx context.Context, id string) (*domain.RoleMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, ok := s.roleMaps[id]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, domain.NotFound("role mapping %s not found", id)
}

func (s *MemoryStore) UpdateRoleMapping(ctx context.Context, m *domain.RoleMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roleMaps[m.ID]; !ok {
		return domain.NotFound("role mapping %s not found", m.ID)
	}
	copied := *m
	s.roleMaps[m.ID] = &copied
	return nil
}

func (s *MemoryStore) ListRoleMappings(ctx context.Context, tenantID string) ([]*domain.RoleMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RoleMapping
	for _, m := range s.roleMaps {
		if m.TenantID == tenantID {
			copied := *m
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// Tenant lock
// =============================================================================

// WithTenantLock serializes batch detections against consolidation and
// resolution writes within one tenant.
func (s *MemoryStore) WithTenantLock(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	s.lockMu.Lock()
	lock, ok := s.tenantLocks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		s.tenantLocks[tenantID] = lock
	}
	s.lockMu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

func clonePolicy(p *domain.Policy) *domain.Policy {
	copied := *p
	if p.Embedding != nil {
		copied.Embedding = make([]float32, len(p.Embedding))
		copy(copied.Embedding, p.Embedding)
	}
	if p.Conditions != nil {
		copied.Conditions = make(map[string]any, len(p.Conditions))
		for k, v := range p.Conditions {
			copied.Conditions[k] = v
		}
	}
	return &copied
}

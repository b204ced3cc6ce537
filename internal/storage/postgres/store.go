package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"policyscope/internal/config"
	"policyscope/internal/domain"
)

// Store implements domain.Store on PostgreSQL. Batch finding replacement runs
// in one transaction; the tenant advisory lock uses pg_advisory_lock on a
// dedicated connection so it holds across the statements of a detection run.
type Store struct {
	db *DB
}

// NewStore connects, applies the schema, and returns the store.
func NewStore(cfg *config.DatabaseConfig) (*Store, error) {
	db, err := InitDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// Index returns the pgvector-backed embedding index sharing this connection
// pool.
func (s *Store) Index() *Index {
	return &Index{db: s.db.DB}
}

// =============================================================================
// PolicyRepository
// =============================================================================

func (s *Store) CreatePolicy(ctx context.Context, p *domain.Policy) error {
	conditions, err := json.Marshal(p.Conditions)
	if err != nil {
		return domain.InvalidArgument("conditions not serializable: %v", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policies (
			id, tenant_id, application_id, subject, resource, resource_type,
			action, effect, conditions, embedding, risk_score, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::vector, $11, $12, $13, $14)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			subject = EXCLUDED.subject,
			resource = EXCLUDED.resource,
			resource_type = EXCLUDED.resource_type,
			action = EXCLUDED.action,
			effect = EXCLUDED.effect,
			conditions = EXCLUDED.conditions,
			embedding = EXCLUDED.embedding,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`,
		p.ID, p.TenantID, p.ApplicationID, p.Subject, p.Resource, p.ResourceType,
		p.Action, string(p.Effect), conditions, pgvector.NewVector(p.Embedding),
		p.RiskScore, string(p.Status), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert policy: %w", err)
	}
	return nil
}

const policyColumns = `
	id, tenant_id, application_id, subject, resource, resource_type,
	action, effect, conditions, embedding, risk_score, status,
	created_at, updated_at`

func (s *Store) GetPolicy(ctx context.Context, tenantID, id string) (*domain.Policy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)

	p, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("policy %s not found in tenant %s", id, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	return p, nil
}

func (s *Store) ListPolicies(ctx context.Context, tenantID string, filter domain.PolicyFilter) ([]*domain.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies WHERE tenant_id = $1`
	args := []any{tenantID}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.ApplicationID != "" {
		args = append(args, filter.ApplicationID)
		query += fmt.Sprintf(" AND application_id = $%d", len(args))
	}
	if filter.Resource != "" {
		args = append(args, filter.Resource)
		query += fmt.Sprintf(" AND resource = $%d", len(args))
	}
	if filter.ResourceType != "" {
		args = append(args, filter.ResourceType)
		query += fmt.Sprintf(" AND resource_type = $%d", len(args))
	}
	if filter.ActiveOnly {
		query += " AND status NOT IN ('rejected', 'inactive')"
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var result []*domain.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) UpdatePolicyStatus(ctx context.Context, tenantID, id string, status domain.PolicyStatus, riskScore float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE policies SET status = $1, risk_score = $2, updated_at = NOW()
		WHERE tenant_id = $3 AND id = $4
	`, string(status), riskScore, tenantID, id)
	if err != nil {
		return fmt.Errorf("update policy status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("policy %s not found in tenant %s", id, tenantID)
	}
	return nil
}

func (s *Store) DeactivatePolicies(ctx context.Context, tenantID string, ids []string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE policies SET status = 'inactive', updated_at = NOW()
		WHERE tenant_id = $1 AND id = ANY($2)
	`, tenantID, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("deactivate policies: %w", err)
	}
	if n, _ := res.RowsAffected(); n != int64(len(ids)) {
		return domain.NotFound("only %d of %d policies found in tenant %s", n, len(ids), tenantID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*domain.Policy, error) {
	var p domain.Policy
	var effect, status string
	var conditions []byte
	var embedding pgvector.Vector

	err := row.Scan(
		&p.ID, &p.TenantID, &p.ApplicationID, &p.Subject, &p.Resource,
		&p.ResourceType, &p.Action, &effect, &conditions, &embedding,
		&p.RiskScore, &status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Effect = domain.PolicyEffect(effect)
	p.Status = domain.PolicyStatus(status)
	p.Embedding = embedding.Slice()
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &p.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions: %w", err)
		}
	}
	return &p, nil
}

// =============================================================================
// SettingsRepository
// =============================================================================

func (s *Store) GetSettings(ctx context.Context, tenantID string) (*domain.AutoApprovalSettings, error) {
	cfg := &domain.AutoApprovalSettings{TenantID: tenantID}
	err := s.db.QueryRowContext(ctx, `
		SELECT enabled, risk_threshold, min_historical_approvals,
		       total_auto_approvals, total_policies_scanned
		FROM auto_approval_settings WHERE tenant_id = $1
	`, tenantID).Scan(
		&cfg.Enabled, &cfg.RiskThreshold, &cfg.MinHistoricalApprovals,
		&cfg.TotalAutoApprovals, &cfg.TotalPoliciesScanned,
	)
	if err == sql.ErrNoRows {
		return domain.DefaultAutoApprovalSettings(tenantID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return cfg, nil
}

func (s *Store) SaveSettings(ctx context.Context, cfg *domain.AutoApprovalSettings) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auto_approval_settings (
			tenant_id, enabled, risk_threshold, min_historical_approvals,
			total_auto_approvals, total_policies_scanned
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			risk_threshold = EXCLUDED.risk_threshold,
			min_historical_approvals = EXCLUDED.min_historical_approvals
	`, cfg.TenantID, cfg.Enabled, cfg.RiskThreshold, cfg.MinHistoricalApprovals,
		cfg.TotalAutoApprovals, cfg.TotalPoliciesScanned)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (s *Store) BumpCounters(ctx context.Context, tenantID string, approved bool) error {
	inc := 0
	if approved {
		inc = 1
	}
	def := domain.DefaultAutoApprovalSettings(tenantID)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auto_approval_settings (
			tenant_id, enabled, risk_threshold, min_historical_approvals,
			total_auto_approvals, total_policies_scanned
		) VALUES ($1, $2, $3, $4, $5, 1)
		ON CONFLICT (tenant_id) DO UPDATE SET
			total_policies_scanned = auto_approval_settings.total_policies_scanned + 1,
			total_auto_approvals = auto_approval_settings.total_auto_approvals + $5
	`, tenantID, def.Enabled, def.RiskThreshold, def.MinHistoricalApprovals, inc)
	if err != nil {
		return fmt.Errorf("bump counters: %w", err)
	}
	return nil
}

// =============================================================================
// DecisionRepository
// =============================================================================

func (s *Store) CreateDecision(ctx context.Context, d *domain.AutoApprovalDecision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auto_approval_decisions (
			id, tenant_id, policy_id, auto_approved, reasoning, risk_score,
			similar_policies_count, matched_patterns, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, d.ID, d.TenantID, d.PolicyID, d.AutoApproved, d.Reasoning, d.RiskScore,
		d.SimilarPoliciesCount, pq.Array(d.MatchedPatterns), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (s *Store) ListDecisions(ctx context.Context, tenantID string, limit int) ([]*domain.AutoApprovalDecision, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, policy_id, auto_approved, reasoning, risk_score,
		       similar_policies_count, matched_patterns, created_at
		FROM auto_approval_decisions
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var result []*domain.AutoApprovalDecision
	for rows.Next() {
		var d domain.AutoApprovalDecision
		if err := rows.Scan(
			&d.ID, &d.TenantID, &d.PolicyID, &d.AutoApproved, &d.Reasoning,
			&d.RiskScore, &d.SimilarPoliciesCount, pq.Array(&d.MatchedPatterns),
			&d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		result = append(result, &d)
	}
	return result, rows.Err()
}

// =============================================================================
// ConflictRepository
// =============================================================================

func (s *Store) ReplaceOpenConflicts(ctx context.Context, tenantID string, conflicts []*domain.Conflict) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conflicts WHERE tenant_id = $1 AND status = 'open'`, tenantID); err != nil {
		return fmt.Errorf("clear open conflicts: %w", err)
	}
	for _, c := range conflicts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conflicts (
				id, tenant_id, policy_a_id, policy_b_id, conflict_type, severity,
				description, ai_recommendation, status, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, c.ID, c.TenantID, c.PolicyAID, c.PolicyBID, string(c.ConflictType),
			string(c.Severity), c.Description, c.AIRecommendation,
			string(c.Status), c.CreatedAt); err != nil {
			return fmt.Errorf("insert conflict: %w", err)
		}
	}
	return tx.Commit()
}

const conflictColumns = `
	id, tenant_id, policy_a_id, policy_b_id, conflict_type, severity,
	description, ai_recommendation, status, resolution_strategy,
	resolution_notes, resolved_at, created_at`

func (s *Store) GetConflict(ctx context.Context, id string) (*domain.Conflict, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conflictColumns+` FROM conflicts WHERE id = $1`, id)
	c, err := scanConflict(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("conflict %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get conflict: %w", err)
	}
	return c, nil
}

func (s *Store) UpdateConflict(ctx context.Context, c *domain.Conflict) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conflicts SET
			status = $1, resolution_strategy = $2, resolution_notes = $3, resolved_at = $4
		WHERE id = $5
	`, string(c.Status), nullString(string(c.ResolutionStrategy)),
		nullString(c.ResolutionNotes), c.ResolvedAt, c.ID)
	if err != nil {
		return fmt.Errorf("update conflict: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("conflict %s not found", c.ID)
	}
	return nil
}

func (s *Store) ListConflicts(ctx context.Context, tenantID string, status domain.FindingStatus) ([]*domain.Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE tenant_id = $1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, string(status))
		query += " AND status = $2"
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	var result []*domain.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func scanConflict(row rowScanner) (*domain.Conflict, error) {
	var c domain.Conflict
	var conflictType, severity, status string
	var recommendation, strategy, notes sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(
		&c.ID, &c.TenantID, &c.PolicyAID, &c.PolicyBID, &conflictType,
		&severity, &c.Description, &recommendation, &status, &strategy,
		&notes, &resolvedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.ConflictType = domain.ConflictType(conflictType)
	c.Severity = domain.Severity(severity)
	c.Status = domain.FindingStatus(status)
	c.AIRecommendation = recommendation.String
	c.ResolutionStrategy = domain.ResolutionStrategy(strategy.String)
	c.ResolutionNotes = notes.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	return &c, nil
}

// =============================================================================
// EnforcementRepository
// =============================================================================

func (s *Store) ReplaceOpenFindings(ctx context.Context, tenantID string, findings []*domain.InconsistentEnforcement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM enforcement_findings WHERE tenant_id = $1 AND status = 'open'`, tenantID); err != nil {
		return fmt.Errorf("clear open findings: %w", err)
	}
	for _, f := range findings {
		recommended, err := json.Marshal(f.RecommendedPolicy)
		if err != nil {
			return fmt.Errorf("encode recommended policy: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO enforcement_findings (
				id, tenant_id, resource_type, affected_application_ids,
				policy_ids, severity, description, recommended_policy,
				status, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, f.ID, f.TenantID, f.ResourceType, pq.Array(f.AffectedApplicationIDs),
			pq.Array(f.PolicyIDs), string(f.Severity), f.Description,
			recommended, string(f.Status), f.CreatedAt); err != nil {
			return fmt.Errorf("insert finding: %w", err)
		}
	}
	return tx.Commit()
}

const findingColumns = `
	id, tenant_id, resource_type, affected_application_ids, policy_ids,
	severity, description, recommended_policy, status, created_at`

func (s *Store) GetFinding(ctx context.Context, id string) (*domain.InconsistentEnforcement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+findingColumns+` FROM enforcement_findings WHERE id = $1`, id)
	f, err := scanFinding(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("enforcement finding %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get finding: %w", err)
	}
	return f, nil
}

func (s *Store) UpdateFinding(ctx context.Context, f *domain.InconsistentEnforcement) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE enforcement_findings SET status = $1 WHERE id = $2`,
		string(f.Status), f.ID)
	if err != nil {
		return fmt.Errorf("update finding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("enforcement finding %s not found", f.ID)
	}
	return nil
}

func (s *Store) ListFindings(ctx context.Context, tenantID string, status domain.FindingStatus) ([]*domain.InconsistentEnforcement, error) {
	query := `SELECT ` + findingColumns + ` FROM enforcement_findings WHERE tenant_id = $1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, string(status))
		query += " AND status = $2"
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var result []*domain.InconsistentEnforcement
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func scanFinding(row rowScanner) (*domain.InconsistentEnforcement, error) {
	var f domain.InconsistentEnforcement
	var severity, status string
	var recommended []byte

	err := row.Scan(
		&f.ID, &f.TenantID, &f.ResourceType, pq.Array(&f.AffectedApplicationIDs),
		pq.Array(&f.PolicyIDs), &severity, &f.Description, &recommended,
		&status, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.Severity = domain.Severity(severity)
	f.Status = domain.FindingStatus(status)
	if len(recommended) > 0 {
		if err := json.Unmarshal(recommended, &f.RecommendedPolicy); err != nil {
			return nil, fmt.Errorf("decode recommended policy: %w", err)
		}
	}
	return &f, nil
}

// =============================================================================
// RoleMappingRepository
// =============================================================================

func (s *Store) ReplaceSuggestedMappings(ctx context.Context, tenantID string, mappings []*domain.RoleMapping) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM role_mappings WHERE tenant_id = $1 AND status = 'suggested'`, tenantID); err != nil {
		return fmt.Errorf("clear suggested mappings: %w", err)
	}
	for _, m := range mappings {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO role_mappings (
				id, tenant_id, standard_role, variant_roles,
				affected_applications, confidence_score, status, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, m.ID, m.TenantID, m.StandardRole, pq.Array(m.VariantRoles),
			pq.Array(m.AffectedApplications), m.ConfidenceScore,
			string(m.Status), m.CreatedAt); err != nil {
			return fmt.Errorf("insert role mapping: %w", err)
		}
	}
	return tx.Commit()
}

const roleMappingColumns = `
	id, tenant_id, standard_role, variant_roles, affected_applications,
	confidence_score, status, approved_by, approved_at, applied_at, created_at`

func (s *Store) GetRoleMapping(ctx context.Context, id string) (*domain.RoleMapping, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+roleMappingColumns+` FROM role_mappings WHERE id = $1`, id)
	m, err := scanRoleMapping(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("role mapping %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get role mapping: %w", err)
	}
	return m, nil
}

func (s *Store) UpdateRoleMapping(ctx context.Context, m *domain.RoleMapping) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE role_mappings SET
			status = $1, approved_by = $2, approved_at = $3, applied_at = $4
		WHERE id = $5
	`, string(m.Status), nullString(m.ApprovedBy), m.ApprovedAt, m.AppliedAt, m.ID)
	if err != nil {
		return fmt.Errorf("update role mapping: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("role mapping %s not found", m.ID)
	}
	return nil
}

func (s *Store) ListRoleMappings(ctx context.Context, tenantID string) ([]*domain.RoleMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roleMappingColumns+` FROM role_mappings WHERE tenant_id = $1 ORDER BY id`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list role mappings: %w", err)
	}
	defer rows.Close()

	var result []*domain.RoleMapping
	for rows.Next() {
		m, err := scanRoleMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role mapping: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func scanRoleMapping(row rowScanner) (*domain.RoleMapping, error) {
	var m domain.RoleMapping
	var status string
	var approvedBy sql.NullString
	var approvedAt, appliedAt sql.NullTime

	err := row.Scan(
		&m.ID, &m.TenantID, &m.StandardRole, pq.Array(&m.VariantRoles),
		pq.Array(&m.AffectedApplications), &m.ConfidenceScore, &status,
		&approvedBy, &approvedAt, &appliedAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Status = domain.RoleMappingStatus(status)
	m.ApprovedBy = approvedBy.String
	if approvedAt.Valid {
		t := approvedAt.Time
		m.ApprovedAt = &t
	}
	if appliedAt.Valid {
		t := appliedAt.Time
		m.AppliedAt = &t
	}
	return &m, nil
}

// =============================================================================
// Tenant lock
// =============================================================================

// WithTenantLock holds a session-level advisory lock keyed by the tenant id
// on a dedicated connection for the duration of fn. Serializes detection runs
// against consolidation and resolution writes across processes.
func (s *Store) WithTenantLock(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return domain.DependencyUnavailable("acquire connection", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(hashtext($1))`, tenantID); err != nil {
		return domain.DependencyUnavailable("acquire tenant lock", err)
	}
	defer func() {
		// Unlock on a background context so cancellation cannot leak the lock;
		// closing the connection releases it regardless.
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, tenantID)
	}()

	return fn(ctx)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

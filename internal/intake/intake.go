// Package intake is the seam between the external scanning pipeline and the
// engine: scanner-produced policies are validated, persisted, and indexed
// here. The engine never computes embeddings; they arrive attached.
package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"policyscope/internal/domain"
	"policyscope/internal/vector"
)

// conditionsSchema constrains scanner-supplied condition documents: a flat
// object of scalar or list values. Nested objects indicate a scanner
// extraction bug and are rejected before they can poison the detectors.
const conditionsSchema = `{
	"type": "object",
	"additionalProperties": {
		"type": ["string", "number", "boolean", "array"],
		"items": {"type": ["string", "number", "boolean"]}
	}
}`

// Service validates and ingests scanned policies.
type Service struct {
	store  domain.PolicyRepository
	index  vector.Index
	schema *gojsonschema.Schema
}

// NewService creates an intake service.
func NewService(store domain.PolicyRepository, index vector.Index) (*Service, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(conditionsSchema))
	if err != nil {
		return nil, fmt.Errorf("compile conditions schema: %w", err)
	}
	return &Service{store: store, index: index, schema: schema}, nil
}

// Ingest validates the scanned policy, persists it, and indexes its
// embedding. Re-ingesting the same policy id replaces its vector rather than
// duplicating it. Missing ids are assigned; status defaults to scanned.
func (s *Service) Ingest(ctx context.Context, p *domain.Policy) error {
	if err := s.validate(p); err != nil {
		return err
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = domain.PolicyStatusScanned
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	if err := s.store.CreatePolicy(ctx, p); err != nil {
		return fmt.Errorf("persist policy: %w", err)
	}
	if err := s.index.Add(ctx, p.TenantID, p.ID, p.Embedding); err != nil {
		return fmt.Errorf("index embedding: %w", err)
	}

	slog.Debug("policy ingested",
		"tenant_id", p.TenantID,
		"policy_id", p.ID,
		"application_id", p.ApplicationID,
		"resource", p.Resource,
	)
	return nil
}

func (s *Service) validate(p *domain.Policy) error {
	switch {
	case p.TenantID == "":
		return domain.InvalidArgument("tenant_id is required")
	case p.ApplicationID == "":
		return domain.InvalidArgument("application_id is required")
	case p.Subject == "":
		return domain.InvalidArgument("subject is required")
	case p.Resource == "":
		return domain.InvalidArgument("resource is required")
	case p.Action == "":
		return domain.InvalidArgument("action is required")
	case len(p.Embedding) == 0:
		return domain.InvalidArgument("embedding is required; the scanning pipeline computes it")
	}
	if p.Effect == "" {
		p.Effect = domain.EffectAllow
	}
	if p.Effect != domain.EffectAllow && p.Effect != domain.EffectDeny {
		return domain.InvalidArgument("effect %q must be allow or deny", p.Effect)
	}

	if len(p.Conditions) > 0 {
		doc, err := json.Marshal(p.Conditions)
		if err != nil {
			return domain.InvalidArgument("conditions not serializable: %v", err)
		}
		result, err := s.schema.Validate(gojsonschema.NewBytesLoader(doc))
		if err != nil {
			return domain.InvalidArgument("conditions validation failed: %v", err)
		}
		if !result.Valid() {
			return domain.InvalidArgument("conditions malformed: %s", result.Errors()[0].String())
		}
	}
	return nil
}

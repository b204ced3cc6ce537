package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"policyscope/internal/domain"
	"policyscope/internal/vector"
)

// Index implements vector.Index on the policies table: the embedding column
// is the index, there is no separate vector store to drift out of sync.
type Index struct {
	db *sql.DB
}

var _ vector.Index = (*Index)(nil)

// Add replaces a policy's embedding. The intake path writes the embedding via
// CreatePolicy already, so this is an idempotent upsert of the column.
func (idx *Index) Add(ctx context.Context, tenantID, policyID string, embedding []float32) error {
	if len(embedding) == 0 {
		return domain.InvalidArgument("empty embedding for policy %s", policyID)
	}

	res, err := idx.db.ExecContext(ctx, `
		UPDATE policies SET embedding = $1::vector, updated_at = NOW()
		WHERE tenant_id = $2 AND id = $3
	`, pgvector.NewVector(embedding), tenantID, policyID)
	if err != nil {
		return fmt.Errorf("index embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("policy %s not found in tenant %s", policyID, tenantID)
	}
	return nil
}

// Remove clears a policy's embedding so it disappears from similarity
// results. Removing an unknown id is a no-op.
func (idx *Index) Remove(ctx context.Context, tenantID, policyID string) error {
	_, err := idx.db.ExecContext(ctx, `
		UPDATE policies SET embedding = NULL, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, policyID)
	if err != nil {
		return fmt.Errorf("deindex embedding: %w", err)
	}
	return nil
}

// Query returns the k nearest policies by cosine distance.
func (idx *Index) Query(ctx context.Context, tenantID string, embedding []float32, k int) ([]vector.Match, error) {
	if k <= 0 {
		return nil, domain.InvalidArgument("k must be positive, got %d", k)
	}
	if len(embedding) == 0 {
		return nil, domain.InvalidArgument("empty query embedding")
	}

	rows, err := idx.db.QueryContext(ctx, `
		SELECT id, embedding <=> $1::vector AS distance
		FROM policies
		WHERE tenant_id = $2 AND embedding IS NOT NULL
		ORDER BY distance ASC, id ASC
		LIMIT $3
	`, pgvector.NewVector(embedding), tenantID, k)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	defer rows.Close()

	var matches []vector.Match
	for rows.Next() {
		var m vector.Match
		if err := rows.Scan(&m.PolicyID, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, domain.NotFound("tenant %s has no indexed vectors", tenantID)
	}
	return matches, nil
}

// Package similarity converts raw vector-index distances into the normalized
// 0-100 similarity scores every detector in the engine shares.
package similarity

import (
	"context"
	"sort"
	"time"

	"policyscope/internal/domain"
	"policyscope/internal/telemetry"
	"policyscope/internal/vector"
)

// Query describes one similarity lookup.
type Query struct {
	TenantID string
	PolicyID string
	// Limit caps the number of results. Zero means no cap.
	Limit int
	// MinSimilarity in [0,1]; results scoring below MinSimilarity*100 are
	// dropped before the limit applies.
	MinSimilarity float64
	// ApprovedOnly restricts results to approved or auto-approved policies.
	// The auto-approval engine sets this: pending or rejected policies must
	// never count as precedent.
	ApprovedOnly bool
	// ActiveOnly excludes rejected and inactive (consolidated) policies.
	ActiveOnly bool
}

// Service answers similarity queries over the tenant's vector index.
type Service struct {
	policies domain.PolicyRepository
	index    vector.Index
	metrics  *telemetry.Metrics
}

// NewService creates a similarity service. metrics may be nil.
func NewService(policies domain.PolicyRepository, index vector.Index, metrics *telemetry.Metrics) *Service {
	return &Service{policies: policies, index: index, metrics: metrics}
}

// FindSimilar returns policies similar to the query policy, strictly
// descending by score with ties broken by ascending policy id. The source
// policy is never part of its own results.
func (s *Service) FindSimilar(ctx context.Context, q Query) ([]domain.SimilarPolicy, error) {
	if q.MinSimilarity < 0 || q.MinSimilarity > 1 {
		return nil, domain.InvalidArgument("min_similarity %.3f outside [0,1]", q.MinSimilarity)
	}

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.SimilarityQueries.WithLabelValues(q.TenantID).Inc()
			s.metrics.SimilarityLatency.WithLabelValues(q.TenantID).Observe(time.Since(start).Seconds())
		}
	}()

	source, err := s.policies.GetPolicy(ctx, q.TenantID, q.PolicyID)
	if err != nil {
		return nil, err
	}
	if len(source.Embedding) == 0 {
		return nil, domain.NotFound("policy %s has no embedding", q.PolicyID)
	}

	// The index cannot apply policy-status filters, so overfetch and widen
	// until the filtered set satisfies the limit or the index is exhausted.
	k := 64
	if q.Limit > 0 && q.Limit*4 > k {
		k = q.Limit * 4
	}
	for {
		matches, err := s.index.Query(ctx, q.TenantID, source.Embedding, k)
		if err != nil {
			return nil, err
		}

		results, err := s.filter(ctx, q, matches)
		if err != nil {
			return nil, err
		}

		exhausted := len(matches) < k
		if exhausted || (q.Limit > 0 && len(results) >= q.Limit) {
			sortResults(results)
			if q.Limit > 0 && len(results) > q.Limit {
				results = results[:q.Limit]
			}
			return results, nil
		}
		k *= 4
	}
}

// Score converts a cosine distance to the 0-100 scale, clamped.
func Score(distance float64) float64 {
	score := (1 - distance) * 100
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func (s *Service) filter(ctx context.Context, q Query, matches []vector.Match) ([]domain.SimilarPolicy, error) {
	results := make([]domain.SimilarPolicy, 0, len(matches))
	for _, m := range matches {
		if m.PolicyID == q.PolicyID {
			continue
		}
		score := Score(m.Distance)
		if score < q.MinSimilarity*100 {
			continue
		}

		p, err := s.policies.GetPolicy(ctx, q.TenantID, m.PolicyID)
		if err != nil {
			if domain.IsNotFound(err) {
				// Index can briefly lead the policy store; skip orphans.
				continue
			}
			return nil, err
		}
		if q.ApprovedOnly && !p.Status.IsApproved() {
			continue
		}
		if q.ActiveOnly && (p.Status == domain.PolicyStatusRejected || p.Status == domain.PolicyStatusInactive) {
			continue
		}
		results = append(results, domain.SimilarPolicy{Policy: p, Score: score})
	}
	return results, nil
}

func sortResults(results []domain.SimilarPolicy) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Policy.ID < results[j].Policy.ID
	})
}

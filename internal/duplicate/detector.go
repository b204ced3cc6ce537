// Package duplicate clusters near-identical policies across applications.
// Same-application duplicates are not flagged; the point is redundancy
// across applications. Clustering is connected components over the
// similarity graph, computed with an iterative union-find.
package duplicate

import (
	"context"
	"sort"

	"policyscope/internal/domain"
	"policyscope/internal/vector"
)

// DefaultThreshold is the normalized similarity above which two policies are
// considered duplicates. Deliberately stricter than the auto-approval
// similarity floor: duplicates require near-identical semantics.
const DefaultThreshold = 0.90

// Detector clusters duplicate policies within one tenant.
type Detector struct {
	threshold float64
}

// NewDetector creates a duplicate detector. A threshold of 0 selects the
// default.
func NewDetector(threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold}
}

// Detect returns the duplicate groups among the given policies. Groups list
// their member ids ascending and are ordered by their first member id;
// similarity_score is the weakest cross-application link in the group.
func (d *Detector) Detect(ctx context.Context, tenantID string, policies []*domain.Policy) []domain.DuplicateGroup {
	candidates := make([]*domain.Policy, 0, len(policies))
	for _, p := range policies {
		if p.Status == domain.PolicyStatusRejected || p.Status == domain.PolicyStatusInactive {
			continue
		}
		if len(p.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, p)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	uf := newUnionFind()
	minEdge := make(map[string]float64) // component root -> weakest edge

	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			a, b := candidates[i], candidates[j]
			if a.ApplicationID == b.ApplicationID {
				continue
			}
			sim := 1 - vector.CosineDistance(a.Embedding, b.Embedding)
			if sim < d.threshold {
				continue
			}

			ra, rb := uf.find(a.ID), uf.find(b.ID)
			edgeMin := sim
			if m, ok := minEdge[ra]; ok && m < edgeMin {
				edgeMin = m
			}
			if m, ok := minEdge[rb]; ok && m < edgeMin {
				edgeMin = m
			}
			delete(minEdge, ra)
			delete(minEdge, rb)
			root := uf.union(a.ID, b.ID)
			minEdge[root] = edgeMin
		}
	}

	byID := make(map[string]*domain.Policy, len(candidates))
	components := make(map[string][]string)
	for _, p := range candidates {
		byID[p.ID] = p
		if !uf.contains(p.ID) {
			continue
		}
		root := uf.find(p.ID)
		components[root] = append(components[root], p.ID)
	}

	var groups []domain.DuplicateGroup
	for root, ids := range components {
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)

		appSet := make(map[string]bool)
		for _, id := range ids {
			appSet[byID[id].ApplicationID] = true
		}
		apps := make([]string, 0, len(appSet))
		for app := range appSet {
			apps = append(apps, app)
		}
		sort.Strings(apps)

		groups = append(groups, domain.DuplicateGroup{
			PolicyIDs:        ids,
			Applications:     apps,
			SimilarityScore:  minEdge[root],
			PotentialSavings: len(ids) - 1,
		})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].PolicyIDs[0] < groups[j].PolicyIDs[0] })
	return groups
}

// unionFind is an iterative disjoint-set over policy ids.
type unionFind struct {
	parent map[string]string
	rank   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string), rank: make(map[string]int)}
}

func (u *unionFind) contains(x string) bool {
	_, ok := u.parent[x]
	return ok
}

func (u *unionFind) find(x string) string {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
	}
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	// Path compression.
	for u.parent[x] != root {
		u.parent[x], x = root, u.parent[x]
	}
	return root
}

func (u *unionFind) union(a, b string) string {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return ra
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
	return ra
}

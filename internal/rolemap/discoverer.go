// Package rolemap clusters role-name variants observed across applications
// into canonical roles. Role names are short strings, so lexical similarity
// (Levenshtein plus token overlap over normalized text) is sufficient; no
// embedding lookup is involved.
package rolemap

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"policyscope/internal/domain"
)

// DefaultSimilarityThreshold is the lexical similarity above which two role
// names are considered variants of the same role.
const DefaultSimilarityThreshold = 0.80

var separatorPattern = regexp.MustCompile(`[\s_\-.:/]+`)

// Discoverer clusters role-name variants within one tenant.
type Discoverer struct {
	threshold float64
}

// NewDiscoverer creates a discoverer. A threshold of 0 selects the default.
func NewDiscoverer(threshold float64) *Discoverer {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Discoverer{threshold: threshold}
}

type variant struct {
	name  string
	count int
	apps  map[string]bool
}

// Discover extracts role-name variants from the policies' subject fields,
// clusters them, and returns one suggested mapping per cluster observed in at
// least minApplications distinct applications.
func (d *Discoverer) Discover(ctx context.Context, tenantID string, policies []*domain.Policy, minApplications int) ([]*domain.RoleMapping, error) {
	if minApplications < 1 {
		return nil, domain.InvalidArgument("min_applications %d must be >= 1", minApplications)
	}

	variants := make(map[string]*variant)
	for _, p := range policies {
		if p.Status == domain.PolicyStatusRejected || p.Status == domain.PolicyStatusInactive {
			continue
		}
		name := roleName(p.Subject)
		if name == "" {
			continue
		}
		v, ok := variants[name]
		if !ok {
			v = &variant{name: name, apps: make(map[string]bool)}
			variants[name] = v
		}
		v.count++
		v.apps[p.ApplicationID] = true
	}

	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)

	// Connected components over the lexical similarity graph.
	parent := make(map[string]string, len(names))
	for _, n := range names {
		parent[n] = n
	}
	find := func(x string) string {
		root := x
		for parent[root] != root {
			root = parent[root]
		}
		for parent[x] != root {
			parent[x], x = root, parent[x]
		}
		return root
	}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if Similarity(names[i], names[j]) >= d.threshold {
				parent[find(names[j])] = find(names[i])
			}
		}
	}

	clusters := make(map[string][]string)
	for _, n := range names {
		root := find(n)
		clusters[root] = append(clusters[root], n)
	}

	var mappings []*domain.RoleMapping
	now := time.Now()
	roots := make([]string, 0, len(clusters))
	for root := range clusters {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	for _, root := range roots {
		members := clusters[root]
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)

		appSet := make(map[string]bool)
		for _, name := range members {
			for app := range variants[name].apps {
				appSet[app] = true
			}
		}
		if len(appSet) < minApplications {
			continue
		}
		apps := make([]string, 0, len(appSet))
		for app := range appSet {
			apps = append(apps, app)
		}
		sort.Strings(apps)

		mappings = append(mappings, &domain.RoleMapping{
			ID:                   uuid.NewString(),
			TenantID:             tenantID,
			StandardRole:         canonical(members, variants),
			VariantRoles:         members,
			AffectedApplications: apps,
			ConfidenceScore:      d.confidence(members),
			Status:               domain.RoleMappingSuggested,
			CreatedAt:            now,
		})
	}
	return mappings, nil
}

// canonical elects the most frequent variant; ties go to the alphabetically
// first name for determinism.
func canonical(members []string, variants map[string]*variant) string {
	best := members[0]
	for _, name := range members[1:] {
		if variants[name].count > variants[best].count {
			best = name
		}
	}
	return best
}

// confidence is the proportion of within-cluster pairs exceeding the
// similarity threshold, scaled to 0-100.
func (d *Discoverer) confidence(members []string) float64 {
	pairs, passing := 0, 0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			pairs++
			if Similarity(members[i], members[j]) >= d.threshold {
				passing++
			}
		}
	}
	if pairs == 0 {
		return 0
	}
	return float64(passing) / float64(pairs) * 100
}

// Similarity scores two role names in [0,1]. Either the edit-distance ratio
// or the token overlap may establish the match: "admin_user" and "Admin"
// share no edit proximity worth speaking of but overlap completely on
// tokens.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1
	}
	lev := levenshteinSimilarity(na, nb)
	overlap := tokenOverlap(na, nb)
	if overlap > lev {
		return overlap
	}
	return lev
}

// Normalize prepares a role name for comparison: NFKC, lower case, word
// separators collapsed to single spaces.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	s = separatorPattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func levenshteinSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

// tokenOverlap is the overlap coefficient over word sets: intersection size
// divided by the smaller set's size.
func tokenOverlap(a, b string) float64 {
	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(tokensA))
	for _, t := range tokensA {
		setA[t] = true
	}
	setB := make(map[string]bool, len(tokensB))
	for _, t := range tokensB {
		setB[t] = true
	}

	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	smaller := len(setA)
	if len(setB) < smaller {
		smaller = len(setB)
	}
	return float64(intersection) / float64(smaller)
}

// roleName extracts the role variant from a policy subject. Broad subjects
// ("*", "authenticated") are not roles and yield "".
func roleName(subject string) string {
	s := strings.TrimSpace(subject)
	s = strings.TrimPrefix(s, "role:")
	switch Normalize(s) {
	case "", "*", "any", "all", "anyone", "authenticated", "public":
		return ""
	}
	return s
}

// Package dedup collapses normalized items that represent the same underlying
// request. Exact duplicates (same identity, or same normalized title from any
// source) are removed keeping the most complete recent item; fuzzy repeats are
// only reported, never removed.
package dedup

import (
	"sort"
	"strings"

	"github.com/feedlens/feedlens/pkg/domain"
	"github.com/feedlens/feedlens/pkg/normalize"
)

// DefaultSimilarityThreshold is the token-Jaccard cutoff for repeat reporting
const DefaultSimilarityThreshold = 0.7

// Dedupe returns the surviving set after removing exact and identity
// duplicates. It is a pure function of the input set: any permutation of the
// same items yields the same survivors, in identity order.
func Dedupe(items []domain.NormalizedItem) []domain.NormalizedItem {
	// union-find over two equivalence keys: identity and normalized title
	byIdentity := make(map[string]int)
	byTitleKey := make(map[string]int)
	parent := make([]int, len(items))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	for i, it := range items {
		if j, ok := byIdentity[it.Identity]; ok {
			union(j, i)
		} else {
			byIdentity[it.Identity] = i
		}
		if tk := titleKey(it); tk != "" {
			if j, ok := byTitleKey[tk]; ok {
				union(j, i)
			} else {
				byTitleKey[tk] = i
			}
		}
	}

	groups := make(map[int][]domain.NormalizedItem)
	for i, it := range items {
		r := find(i)
		groups[r] = append(groups[r], it)
	}

	survivors := make([]domain.NormalizedItem, 0, len(groups))
	for _, group := range groups {
		survivors = append(survivors, resolve(group))
	}
	sort.Slice(survivors, func(i, j int) bool { return survivors[i].Identity < survivors[j].Identity })
	return survivors
}

// resolve picks the group survivor: latest created_at wins, ties go to the
// longer body, remaining ties to the smaller identity so the choice never
// depends on input order. Losers are dropped entirely, not merged.
func resolve(group []domain.NormalizedItem) domain.NormalizedItem {
	best := group[0]
	for _, it := range group[1:] {
		switch {
		case it.CreatedAt.After(best.CreatedAt):
			best = it
		case it.CreatedAt.Equal(best.CreatedAt) && len(it.Body) > len(best.Body):
			best = it
		case it.CreatedAt.Equal(best.CreatedAt) && len(it.Body) == len(best.Body) && it.Identity < best.Identity:
			best = it
		}
	}
	return best
}

// SimilarPair reports two distinct items whose titles look like the same
// recurring request
type SimilarPair struct {
	A, B       string // identities
	Similarity float64
}

// SimilarPairs finds cross-item title similarity above the threshold using
// token Jaccard. Reported pairs stay in the set; this feeds repeat-request
// analytics, not removal.
func SimilarPairs(items []domain.NormalizedItem, threshold float64) []SimilarPair {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	tokens := make([]map[string]struct{}, len(items))
	for i, it := range items {
		tokens[i] = tokenize(it.Title)
	}

	var pairs []SimilarPair
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if items[i].Identity == items[j].Identity {
				continue
			}
			sim := jaccard(tokens[i], tokens[j])
			if sim >= threshold {
				a, b := items[i].Identity, items[j].Identity
				if b < a {
					a, b = b, a
				}
				pairs = append(pairs, SimilarPair{A: a, B: b, Similarity: sim})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}

// titleKey joins duplicates across sources: the same request posted on two
// platforms carries the same normalized title, while identity keeps its
// source component for idempotent re-collection. An empty key means the raw
// title was unusable; such items are never unioned on title.
func titleKey(it domain.NormalizedItem) string {
	return normalize.NormalizeTitle(it.Title)
}

func tokenize(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(normalize.NormalizeTitle(s)) {
		set[tok] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

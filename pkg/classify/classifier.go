// Package classify assigns category, domain, audience, priority, sentiment
// and a confidence score to normalized feedback items. The matching is pure
// and table-driven: same item plus same tables always yields the same result.
package classify

import (
	"sort"
	"strings"

	"github.com/feedlens/feedlens/pkg/domain"
)

// Uncategorized is assigned when no subcategory clears the minimum score
const Uncategorized = "Uncategorized"

// DefaultDomain is assigned when neither the winning subcategory nor the
// domain keyword tables produce a match
const DefaultDomain = "General"

// Classifier scores items against loaded keyword tables. Safe for concurrent
// use, performs no I/O.
type Classifier struct {
	tables *Tables
}

// New creates a classifier over the given tables
func New(tables *Tables) *Classifier {
	return &Classifier{tables: tables}
}

// TablesVersion reports the version string of the loaded tables
func (c *Classifier) TablesVersion() string { return c.tables.Version }

// Classify computes the full classification tuple for an item. The four
// sub-classifications are independent: a miss on one never blocks the others,
// each falls back to its defined default.
func (c *Classifier) Classify(item domain.NormalizedItem) domain.Classification {
	text := strings.ToLower(item.Title + "\n" + item.Body)

	res := domain.Classification{
		Category:  Uncategorized,
		Domain:    DefaultDomain,
		Audience:  c.audience(text),
		Priority:  domain.PriorityMedium,
		Sentiment: c.sentiment(text),
	}
	res.ImpactType = c.impactType(text)

	cat, sub, score, matched := c.bestSubcategory(text)
	if sub != nil && score >= c.tables.MinScore {
		res.Category = cat.Name
		res.Subcategory = sub.Name
		res.Confidence = clamp01(score)
		res.MatchedKeywords = matched
		if sub.Domain != "" {
			res.Domain = sub.Domain
		} else if d := c.bestDomain(text); d != "" {
			res.Domain = d
		}
		if sub.Priority != "" {
			res.Priority = domain.Priority(sub.Priority)
		}
	} else if d := c.bestDomain(text); d != "" {
		res.Domain = d
	}

	// explicit severity cues override whatever the subcategory declares
	if p, ok := c.severity(text); ok {
		res.Priority = p
	}

	return res
}

// bestSubcategory scores every subcategory as matchedWeight/totalWeight and
// returns the winner. Ties break by declaration order: the first-listed
// subcategory wins, keeping results deterministic.
func (c *Classifier) bestSubcategory(text string) (bestCat *Category, bestSub *Subcategory, bestScore float64, matched []string) {
	for ci := range c.tables.Categories {
		cat := &c.tables.Categories[ci]
		for si := range cat.Subcategories {
			sub := &cat.Subcategories[si]
			score, kws := scoreKeywords(text, sub.Keywords)
			if score > bestScore {
				bestCat, bestSub, bestScore, matched = cat, sub, score, kws
			}
		}
	}
	return bestCat, bestSub, bestScore, matched
}

// bestDomain picks the highest-scoring cross-cutting domain, empty when
// nothing matches. Ties break by declaration order.
func (c *Classifier) bestDomain(text string) string {
	var best string
	var bestScore float64
	for i := range c.tables.Domains {
		score, _ := scoreKeywords(text, c.tables.Domains[i].Keywords)
		if score > bestScore {
			best, bestScore = c.tables.Domains[i].Name, score
		}
	}
	return best
}

// audience picks the cue list with the most hits, Customer when nothing
// matches. Iteration over the fixed audience order keeps ties deterministic.
func (c *Classifier) audience(text string) domain.Audience {
	order := []domain.Audience{domain.AudienceDeveloper, domain.AudienceCustomer, domain.AudienceISV}
	best := domain.AudienceCustomer
	bestHits := 0
	for _, a := range order {
		hits := countHits(text, c.tables.Audience[string(a)])
		if hits > bestHits {
			best, bestHits = a, hits
		}
	}
	return best
}

// severity maps explicit severity cues to a priority, critical first
func (c *Classifier) severity(text string) (domain.Priority, bool) {
	switch {
	case countHits(text, c.tables.Severity.Critical) > 0:
		return domain.PriorityCritical, true
	case countHits(text, c.tables.Severity.High) > 0:
		return domain.PriorityHigh, true
	case countHits(text, c.tables.Severity.Low) > 0:
		return domain.PriorityLow, true
	}
	return "", false
}

// sentiment counts positive vs negative cue words, Neutral inside the margin
func (c *Classifier) sentiment(text string) domain.Sentiment {
	pos := countHits(text, c.tables.Sentiment.Positive)
	neg := countHits(text, c.tables.Sentiment.Negative)
	switch {
	case pos-neg >= c.tables.Sentiment.Margin:
		return domain.SentimentPositive
	case neg-pos >= c.tables.Sentiment.Margin:
		return domain.SentimentNegative
	}
	return domain.SentimentNeutral
}

// impactType checks cue lists in fixed order: bug beats feature beats question
func (c *Classifier) impactType(text string) domain.ImpactType {
	switch {
	case countHits(text, c.tables.Impact.Bug) > 0:
		return domain.ImpactBug
	case countHits(text, c.tables.Impact.Feature) > 0:
		return domain.ImpactFeatureRequest
	case countHits(text, c.tables.Impact.Question) > 0:
		return domain.ImpactQuestion
	}
	return domain.ImpactFeedback
}

// scoreKeywords computes matchedWeight/totalWeight over case-insensitive
// substring matches and returns the sorted matched terms for auditability
func scoreKeywords(text string, keywords []Keyword) (float64, []string) {
	var total, hit float64
	var matched []string
	for _, kw := range keywords {
		total += kw.Weight
		if strings.Contains(text, strings.ToLower(kw.Term)) {
			hit += kw.Weight
			matched = append(matched, kw.Term)
		}
	}
	if total == 0 || hit == 0 {
		return 0, nil
	}
	sort.Strings(matched)
	return hit / total, matched
}

func countHits(text string, cues []string) int {
	n := 0
	for _, cue := range cues {
		if strings.Contains(text, strings.ToLower(cue)) {
			n++
		}
	}
	return n
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

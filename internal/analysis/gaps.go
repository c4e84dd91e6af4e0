package analysis

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/cluvo-ai/cluvo/internal/model"
)

// GapStrategy derives market gaps from analyzed competitors.
type GapStrategy interface {
	Gaps(competitors []model.CompetitorAnalysis) []model.MarketGap
}

// GapWeights weigh cluster share against price spread.
type GapWeights struct {
	Share  float64
	Spread float64
}

// DefaultGapWeights are used when ClusterGapStrategy.Weights is nil.
var DefaultGapWeights = map[model.GapCategory]GapWeights{
	model.GapPricing:     {Share: 0.6, Spread: 0.4},
	model.GapFeature:     {Share: 0.8, Spread: 0.2},
	model.GapSegment:     {Share: 0.8, Spread: 0.2},
	model.GapPositioning: {Share: 0.8, Spread: 0.2},
}

var themeKeywords = map[model.GapCategory][]string{
	model.GapPricing: {
		"price", "pricing", "expensive", "cost", "fee", "fees", "overpriced", "pricey", "billing", "contract",
	},
	model.GapFeature: {
		"feature", "integration", "integrations", "api", "missing", "lacks", "lack", "limited",
		"mobile", "reporting", "customization", "customisation", "automation", "clunky", "outdated",
	},
	model.GapSegment: {
		"enterprise", "enterprises", "small business", "small businesses", "smb", "smbs", "startup", "startups",
		"freelancer", "freelancers", "large companies", "complex", "overkill", "not suited", "only",
	},
	model.GapPositioning: {
		"brand", "awareness", "generic", "undifferentiated", "commodity", "marketing", "reputation",
		"support", "trust", "confusing", "positioning",
	},
}

var gapActions = map[model.GapCategory]string{
	model.GapPricing:     "Offer transparent, lower-entry pricing (free tier or per-seat plans) aimed at the underserved price band",
	model.GapFeature:     "Prioritize the missing capabilities in the MVP and market them explicitly against incumbents",
	model.GapSegment:     "Design onboarding and packaging for the segment incumbents serve poorly",
	model.GapPositioning: "Differentiate messaging on trust and support quality where incumbents are weak",
}

// ClusterGapStrategy clusters competitors by shared weakness themes. For a
// cluster C of N competitors:
//
//	s = |C| / N
//	p = (max - min) / max over the known monthly prices in C (0 with fewer than two)
//	opportunity = round1(10 * (ws*s + wp*p)), clamped to [0, 10]
type ClusterGapStrategy struct {
	Weights map[model.GapCategory]GapWeights
}

type cluster struct {
	members []int
	themes  []string
}

// Gaps implements GapStrategy. Gaps are sorted by score, then by category
// order.
func (c ClusterGapStrategy) Gaps(competitors []model.CompetitorAnalysis) []model.MarketGap {
	n := len(competitors)
	if n == 0 {
		return nil
	}
	weights := c.Weights
	if weights == nil {
		weights = DefaultGapWeights
	}

	clusters := map[model.GapCategory]*cluster{}
	for i, ca := range competitors {
		for _, cat := range model.GapCategories {
			themes := matchThemes(cat, signals(cat, ca))
			if len(themes) == 0 {
				continue
			}
			cl := clusters[cat]
			if cl == nil {
				cl = &cluster{}
				clusters[cat] = cl
			}
			cl.members = append(cl.members, i)
			cl.themes = append(cl.themes, themes...)
		}
	}

	var gaps []model.MarketGap
	for _, cat := range model.GapCategories {
		cl := clusters[cat]
		if cl == nil {
			continue
		}
		w := weights[cat]
		share := float64(len(cl.members)) / float64(n)
		spread := priceSpread(competitors, cl.members)
		score := math.Round(10*(w.Share*share+w.Spread*spread)*10) / 10

		names := make([]string, len(cl.members))
		for i, idx := range cl.members {
			names[i] = competitors[idx].Basic.Name
		}
		gaps = append(gaps, model.MarketGap{
			Category:          cat,
			Description:       describeGap(cat, len(cl.members), n, cl.themes, spread),
			OpportunityScore:  math.Max(0, math.Min(10, score)),
			RecommendedAction: gapActions[cat],
			Competitors:       names,
		})
	}

	sort.SliceStable(gaps, func(i, j int) bool {
		if gaps[i].OpportunityScore != gaps[j].OpportunityScore {
			return gaps[i].OpportunityScore > gaps[j].OpportunityScore
		}
		return slices.Index(model.GapCategories, gaps[i].Category) < slices.Index(model.GapCategories, gaps[j].Category)
	})
	return gaps
}

// signals returns the texts scanned for cat: weaknesses and complaints,
// plus a synthetic pricing signal for sales-led pricing.
func signals(cat model.GapCategory, ca model.CompetitorAnalysis) []string {
	out := append([]string(nil), ca.Weaknesses...)
	if ca.Sentiment != nil {
		out = append(out, ca.Sentiment.KeyComplaints...)
	}
	if cat == model.GapPricing && ca.Pricing != nil && ca.Pricing.PricingModel == "custom" {
		out = append(out, "opaque pricing")
	}
	return out
}

// matchThemes returns the texts that mention one of cat's keywords as a
// whole word or phrase.
func matchThemes(cat model.GapCategory, texts []string) []string {
	var out []string
	for _, t := range texts {
		padded := " " + normalize(t) + " "
		for _, kw := range themeKeywords[cat] {
			if strings.Contains(padded, " "+kw+" ") {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func priceSpread(competitors []model.CompetitorAnalysis, members []int) float64 {
	var prices []float64
	for _, i := range members {
		if p := competitors[i].Pricing; p != nil && p.MonthlyPrice != nil && *p.MonthlyPrice > 0 {
			prices = append(prices, *p.MonthlyPrice)
		}
	}
	if len(prices) < 2 {
		return 0
	}
	lo, hi := slices.Min(prices), slices.Max(prices)
	return (hi - lo) / hi
}

var gapLabels = map[model.GapCategory]string{
	model.GapPricing:     "pricing",
	model.GapFeature:     "product",
	model.GapSegment:     "segment fit",
	model.GapPositioning: "positioning",
}

func describeGap(cat model.GapCategory, size, n int, themes []string, spread float64) string {
	desc := fmt.Sprintf("%d of %d competitors show %s weaknesses", size, n, gapLabels[cat])
	if ex := cleanList(themes); len(ex) > 0 {
		desc += ": " + strings.Join(firstN(ex, 2), "; ")
	}
	if spread > 0 {
		desc += fmt.Sprintf(" (price spread %.0f%%)", spread*100)
	}
	return desc
}

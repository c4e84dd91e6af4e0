package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/cluvo-ai/cluvo/internal/model"
)

// KeyInsights returns the deterministic facts of the report. The same
// competitors and gaps always produce the same strings.
func KeyInsights(competitors []model.CompetitorAnalysis, gaps []model.MarketGap) []string {
	var out []string
	n := len(competitors)

	counts := map[model.CompetitorCategory]int{}
	for _, c := range competitors {
		counts[c.Basic.Category]++
	}
	out = append(out, fmt.Sprintf("Identified %d competitor%s: %d direct, %d indirect, %d substitute.",
		n, plural(n), counts[model.CategoryDirect], counts[model.CategoryIndirect], counts[model.CategorySubstitute]))

	var prices []float64
	free, freeKnown := 0, 0
	for _, c := range competitors {
		if c.Pricing == nil {
			continue
		}
		if c.Pricing.MonthlyPrice != nil {
			prices = append(prices, *c.Pricing.MonthlyPrice)
		}
		if c.Pricing.FreeTier != nil {
			freeKnown++
			if *c.Pricing.FreeTier {
				free++
			}
		}
	}
	if len(prices) > 0 {
		sum, lo, hi := 0.0, math.Inf(1), math.Inf(-1)
		for _, p := range prices {
			sum += p
			lo = math.Min(lo, p)
			hi = math.Max(hi, p)
		}
		out = append(out, fmt.Sprintf("Average monthly price across %d competitor%s with known pricing: $%.2f (range $%.2f-$%.2f).",
			len(prices), plural(len(prices)), sum/float64(len(prices)), lo, hi))
	} else {
		out = append(out, "No competitor monthly pricing could be determined.")
	}
	if freeKnown > 0 {
		out = append(out, fmt.Sprintf("%d of %d competitors offer a free tier.", free, n))
	}

	if len(gaps) == 0 {
		out = append(out, "No market gaps identified.")
	} else {
		byCat := map[model.GapCategory]int{}
		for _, g := range gaps {
			byCat[g.Category]++
		}
		var parts []string
		for _, cat := range model.GapCategories {
			if byCat[cat] > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", byCat[cat], cat))
			}
		}
		out = append(out, fmt.Sprintf("Identified %d market gap%s: %s.", len(gaps), plural(len(gaps)), strings.Join(parts, ", ")))

		top := gaps[0]
		for _, g := range gaps[1:] {
			if g.OpportunityScore > top.OpportunityScore {
				top = g
			}
		}
		out = append(out, fmt.Sprintf("Top opportunity: %s (score %.1f/10).", top.Category, top.OpportunityScore))
	}

	var scraped, estimated, missing int
	for _, c := range competitors {
		for _, f := range model.AllFacets {
			switch c.Provenance[f] {
			case model.ProvenanceScraped:
				scraped++
			case model.ProvenanceAIEstimated:
				estimated++
			default:
				missing++
			}
		}
	}
	if n > 0 {
		out = append(out, fmt.Sprintf("Data coverage: %d facets scraped, %d AI-estimated, %d missing.", scraped, estimated, missing))
	}
	return out
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

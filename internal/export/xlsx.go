// Package export renders competitor reports for offline use.
package export

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/cluvo-ai/cluvo/internal/model"
)

// Sheet names in workbook order.
const (
	SheetSummary     = "Summary"
	SheetCompetitors = "Competitors"
	SheetGaps        = "Market Gaps"
)

var competitorHeader = []string{
	"Name", "Domain", "Category", "Description",
	"Monthly Price", "Pricing Model", "Free Tier",
	"Funding Total", "Last Round", "Employees", "Founded", "Location",
	"Sentiment Score", "Review Score", "Reddit Mentions", "Twitter Mentions",
	"Strengths", "Weaknesses", "Opportunities", "Threats",
	"Evidence Score", "Evidence Tier",
	"Financial Source", "Pricing Source", "Sentiment Source",
}

var gapHeader = []string{"Category", "Description", "Opportunity Score", "Recommended Action", "Competitors"}

// WriteXLSX writes rep as a three-sheet workbook.
func WriteXLSX(w io.Writer, rep *model.CompetitorReport) error {
	if rep == nil {
		return eris.New("export: nil report")
	}
	f := xlsx.NewFile()

	summary, err := f.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}
	writeSummary(summary, rep)

	comps, err := f.AddSheet(SheetCompetitors)
	if err != nil {
		return eris.Wrap(err, "export: add competitors sheet")
	}
	addStrings(comps, competitorHeader...)
	for i := range rep.Competitors {
		writeCompetitor(comps.AddRow(), &rep.Competitors[i])
	}

	gaps, err := f.AddSheet(SheetGaps)
	if err != nil {
		return eris.Wrap(err, "export: add gaps sheet")
	}
	addStrings(gaps, gapHeader...)
	for _, g := range rep.MarketGaps {
		row := gaps.AddRow()
		row.AddCell().SetString(string(g.Category))
		row.AddCell().SetString(g.Description)
		row.AddCell().SetFloat(g.OpportunityScore)
		row.AddCell().SetString(g.RecommendedAction)
		row.AddCell().SetString(strings.Join(g.Competitors, ", "))
	}

	return eris.Wrap(f.Write(w), "export: write workbook")
}

func writeSummary(sh *xlsx.Sheet, rep *model.CompetitorReport) {
	addStrings(sh, "Run ID", rep.RunID)
	addStrings(sh, "Business Idea", rep.BusinessIdea)
	addStrings(sh, "Target Market", rep.Input.TargetMarket)
	addStrings(sh, "Business Model", rep.Input.BusinessModel)
	addStrings(sh, "Geographic Focus", rep.Input.GeographicFocus)
	addStrings(sh, "Industry", rep.Input.Industry)
	addStrings(sh, "Status", string(rep.Status))

	row := sh.AddRow()
	row.AddCell().SetString("Total Competitors")
	row.AddCell().SetInt(rep.TotalCompetitors)
	row = sh.AddRow()
	row.AddCell().SetString("Estimated Cost (USD)")
	row.AddCell().SetFloat(rep.EstimatedCostUSD)
	row = sh.AddRow()
	row.AddCell().SetString("Execution Time (s)")
	row.AddCell().SetFloat(rep.ExecutionTime)
	row = sh.AddRow()
	row.AddCell().SetString("LLM Calls")
	row.AddCell().SetInt(rep.Usage.Calls)

	sh.AddRow()
	addStrings(sh, "Key Insights")
	for _, s := range rep.KeyInsights {
		addStrings(sh, "", s)
	}
	addStrings(sh, "Positioning Recommendations")
	for _, s := range rep.PositioningRecommendations {
		addStrings(sh, "", s)
	}
	if len(rep.Warnings) > 0 {
		addStrings(sh, "Warnings")
		for _, s := range rep.Warnings {
			addStrings(sh, "", s)
		}
	}
}

func writeCompetitor(row *xlsx.Row, c *model.CompetitorAnalysis) {
	str := func(s string) { row.AddCell().SetString(s) }
	num := func(v *float64) {
		cell := row.AddCell()
		if v != nil {
			cell.SetFloat(*v)
		}
	}
	integer := func(v *int) {
		cell := row.AddCell()
		if v != nil {
			cell.SetInt(*v)
		}
	}

	str(c.Basic.Name)
	str(c.Basic.Domain)
	str(string(c.Basic.Category))
	str(c.Basic.Description)

	p := c.Pricing
	if p == nil {
		p = &model.PricingData{}
	}
	num(p.MonthlyPrice)
	str(p.PricingModel)
	switch {
	case p.FreeTier == nil:
		str("")
	case *p.FreeTier:
		str("yes")
	default:
		str("no")
	}

	fin := c.Financial
	if fin == nil {
		fin = &model.FinancialData{}
	}
	str(fin.FundingTotal)
	str(fin.LastFundingRound)
	integer(fin.EmployeeCount)
	integer(fin.FoundedYear)
	str(fin.Location)

	s := c.Sentiment
	if s == nil {
		s = &model.MarketSentiment{}
	}
	num(s.OverallScore)
	num(s.ReviewScore)
	row.AddCell().SetInt(s.RedditMentions)
	row.AddCell().SetInt(s.TwitterMentions)

	str(strings.Join(c.Strengths, "\n"))
	str(strings.Join(c.Weaknesses, "\n"))
	str(strings.Join(c.Opportunities, "\n"))
	str(strings.Join(c.Threats, "\n"))

	row.AddCell().SetFloat(c.EvidenceScore)
	str(string(c.EvidenceTier))
	for _, facet := range model.AllFacets {
		src := string(c.Provenance[facet])
		if u := c.Sources[facet]; u != "" {
			src += " (" + u + ")"
		}
		str(src)
	}
}

func addStrings(sh *xlsx.Sheet, values ...string) {
	row := sh.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

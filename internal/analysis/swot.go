package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/cluvo-ai/cluvo/internal/llm"
	"github.com/cluvo-ai/cluvo/internal/model"
)

var swotSchema = llm.MustSchema("swot", `{
	"type": "object",
	"required": ["strengths", "weaknesses"],
	"properties": {
		"strengths": {"type": "array", "items": {"type": "string"}, "maxItems": 8},
		"weaknesses": {"type": "array", "items": {"type": "string"}, "maxItems": 8},
		"opportunities": {"type": "array", "items": {"type": "string"}, "maxItems": 8},
		"threats": {"type": "array", "items": {"type": "string"}, "maxItems": 8}
	}
}`)

const swotSystem = `You are a competitive strategy analyst. Assess a competitor from the
point of view of a founder entering the same market. Be specific: cite prices,
segments and features from the data where possible. Keep each entry under
20 words.`

func (s *Stage) swot(ctx context.Context, in model.BusinessInput, ca model.CompetitorAnalysis) (model.SWOT, error) {
	if s.llm == nil {
		return model.SWOT{}, eris.New("analysis: no completer configured")
	}
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	data, err := json.Marshal(struct {
		Basic     model.CompetitorBasic  `json:"basic_info"`
		Financial *model.FinancialData   `json:"financial_data,omitempty"`
		Pricing   *model.PricingData     `json:"pricing_data,omitempty"`
		Sentiment *model.MarketSentiment `json:"market_sentiment,omitempty"`
	}{ca.Basic, ca.Financial, ca.Pricing, ca.Sentiment})
	if err != nil {
		return model.SWOT{}, err
	}

	sw, err := llm.CompleteInto[model.SWOT](ctx, s.llm, llm.Prompt{
		Stage:  "swot",
		System: swotSystem,
		User: fmt.Sprintf("Our idea: %s\n\nCompetitor data:\n%s\n\nList strengths, weaknesses, opportunities for us and threats to us.",
			in.IdeaDescription, data),
	}, swotSchema)
	if err != nil {
		return model.SWOT{}, err
	}
	sw.Strengths = cleanList(sw.Strengths)
	sw.Weaknesses = cleanList(sw.Weaknesses)
	sw.Opportunities = cleanList(sw.Opportunities)
	sw.Threats = cleanList(sw.Threats)
	if len(sw.Strengths)+len(sw.Weaknesses) == 0 {
		return model.SWOT{}, llm.Malformed(llm.ProviderOf(s.llm), eris.New("analysis: empty swot"))
	}
	return sw, nil
}

// FallbackSWOT derives a SWOT from the collected facets alone.
func FallbackSWOT(ca model.CompetitorAnalysis) model.SWOT {
	var sw model.SWOT
	name := ca.Basic.Name

	if p := ca.Pricing; p != nil {
		if p.FreeTier != nil && *p.FreeTier {
			sw.Strengths = append(sw.Strengths, "Free tier lowers adoption friction")
		}
		if p.MonthlyPrice != nil && *p.MonthlyPrice >= 50 {
			sw.Weaknesses = append(sw.Weaknesses, fmt.Sprintf("Premium pricing ($%.0f/mo) is expensive for small teams", *p.MonthlyPrice))
			sw.Opportunities = append(sw.Opportunities, fmt.Sprintf("Undercut %s with a lower entry price", name))
		}
		if p.PricingModel == "custom" {
			sw.Weaknesses = append(sw.Weaknesses, "Opaque sales-led pricing with no public plans")
			sw.Opportunities = append(sw.Opportunities, "Win buyers who want transparent self-serve pricing")
		}
	}

	if f := ca.Financial; f != nil {
		if f.EmployeeCount != nil && *f.EmployeeCount >= 200 {
			sw.Strengths = append(sw.Strengths, fmt.Sprintf("Established team of about %d employees", *f.EmployeeCount))
			sw.Threats = append(sw.Threats, fmt.Sprintf("%s has the resources to copy new features quickly", name))
		}
		if f.FundingTotal != "" {
			sw.Strengths = append(sw.Strengths, "Well funded ("+f.FundingTotal+")")
		}
	}

	if m := ca.Sentiment; m != nil {
		if m.OverallScore != nil {
			switch {
			case *m.OverallScore >= 0.3:
				sw.Strengths = append(sw.Strengths, "Positive customer sentiment")
			case *m.OverallScore <= -0.1:
				sw.Weaknesses = append(sw.Weaknesses, "Negative customer sentiment and support complaints")
				sw.Opportunities = append(sw.Opportunities, fmt.Sprintf("Target customers unhappy with %s", name))
			}
		}
		if m.ReviewScore != nil && *m.ReviewScore >= 4 {
			sw.Strengths = append(sw.Strengths, fmt.Sprintf("Strong review score (%.1f/5)", *m.ReviewScore))
		}
		sw.Strengths = append(sw.Strengths, firstN(m.KeyPraises, 2)...)
		sw.Weaknesses = append(sw.Weaknesses, firstN(m.KeyComplaints, 2)...)
	}

	if ca.Basic.Category == model.CategoryDirect {
		sw.Threats = append(sw.Threats, "Competes directly for the same customers")
	}
	if len(sw.Strengths) == 0 && len(sw.Weaknesses) == 0 {
		sw.Weaknesses = append(sw.Weaknesses, "Little public information available")
	}

	sw.Strengths = cleanList(sw.Strengths)
	sw.Weaknesses = cleanList(sw.Weaknesses)
	sw.Opportunities = cleanList(sw.Opportunities)
	sw.Threats = cleanList(sw.Threats)
	return sw
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func firstN(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}

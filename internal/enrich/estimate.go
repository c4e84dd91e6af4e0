package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cluvo-ai/cluvo/internal/llm"
	"github.com/cluvo-ai/cluvo/internal/model"
	"github.com/cluvo-ai/cluvo/internal/source"
)

var estimateSchema = llm.MustSchema("facet_estimate", `{
	"type": "object",
	"properties": {
		"financial_data": {
			"type": ["object", "null"],
			"properties": {
				"funding_total": {"type": ["string", "null"]},
				"last_funding_round": {"type": ["string", "null"]},
				"employee_count": {"type": ["integer", "null"], "minimum": 0},
				"valuation": {"type": ["string", "null"]},
				"founded_year": {"type": ["integer", "null"], "minimum": 1800, "maximum": 2100},
				"location": {"type": ["string", "null"]}
			}
		},
		"pricing_data": {
			"type": ["object", "null"],
			"properties": {
				"monthly_price": {"type": ["number", "null"], "minimum": 0},
				"pricing_model": {"type": ["string", "null"]},
				"free_tier": {"type": ["boolean", "null"]},
				"pricing_details": {"type": ["array", "null"], "items": {"type": ["string", "null"]}}
			}
		},
		"market_sentiment": {
			"type": ["object", "null"],
			"properties": {
				"overall_score": {"type": ["number", "null"], "minimum": -1, "maximum": 1},
				"review_score": {"type": ["number", "null"], "minimum": 0, "maximum": 5},
				"key_complaints": {"type": ["array", "null"], "items": {"type": ["string", "null"]}},
				"key_praises": {"type": ["array", "null"], "items": {"type": ["string", "null"]}}
			}
		}
	}
}`)

const estimateSystem = `You are a market research analyst. Estimate missing facts about a
competitor from general knowledge. Only answer for the facets requested and
use null for anything you do not know. Never invent precise funding amounts
you are unsure about.`

type estimateResponse struct {
	Financial *model.FinancialData   `json:"financial_data"`
	Pricing   *model.PricingData     `json:"pricing_data"`
	Sentiment *model.MarketSentiment `json:"market_sentiment"`
}

// LLMEstimator asks a language model for the facets no source provided.
type LLMEstimator struct {
	llm llm.Completer
}

// NewLLMEstimator creates an estimator.
func NewLLMEstimator(c llm.Completer) *LLMEstimator {
	return &LLMEstimator{llm: c}
}

// Estimate implements Estimator. Facets not in missing are discarded even
// when the model returns them.
func (e *LLMEstimator) Estimate(ctx context.Context, known model.CompetitorAnalysis, missing []model.Facet) (*source.Record, error) {
	knownJSON, err := json.Marshal(struct {
		Basic     model.CompetitorBasic  `json:"basic_info"`
		Financial *model.FinancialData   `json:"financial_data,omitempty"`
		Pricing   *model.PricingData     `json:"pricing_data,omitempty"`
		Sentiment *model.MarketSentiment `json:"market_sentiment,omitempty"`
	}{known.Basic, known.Financial, known.Pricing, known.Sentiment})
	if err != nil {
		return nil, err
	}

	names := make([]string, len(missing))
	for i, f := range missing {
		names[i] = string(f)
	}
	user := fmt.Sprintf("Competitor (known data):\n%s\n\nEstimate these facets: %s.",
		knownJSON, strings.Join(names, ", "))

	resp, err := llm.CompleteInto[estimateResponse](ctx, e.llm, llm.Prompt{
		Stage:  "estimation",
		System: estimateSystem,
		User:   user,
	}, estimateSchema)
	if err != nil {
		return nil, err
	}

	rec := &source.Record{}
	for _, f := range missing {
		switch f {
		case model.FacetFinancial:
			rec.Financial = resp.Financial
		case model.FacetPricing:
			rec.Pricing = resp.Pricing
		case model.FacetSentiment:
			rec.Sentiment = resp.Sentiment
		}
	}
	return rec, nil
}

// Package report turns analyzed competitors and market gaps into the
// report's key insights and positioning recommendations.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cluvo-ai/cluvo/internal/llm"
	"github.com/cluvo-ai/cluvo/internal/model"
)

// Result is the stage output.
type Result struct {
	KeyInsights []string
	Positioning []string
	Warnings    []string
}

// Stage builds report content.
type Stage struct {
	llm     llm.Completer
	maxRecs int
	timeout time.Duration
}

// New creates a Stage. maxRecs defaults to 5.
func New(c llm.Completer, maxRecs int, timeout time.Duration) *Stage {
	if maxRecs <= 0 {
		maxRecs = 5
	}
	return &Stage{llm: c, maxRecs: maxRecs, timeout: timeout}
}

// Build computes the deterministic insights and asks for positioning
// recommendations, falling back to gap-derived ones.
func (s *Stage) Build(ctx context.Context, in model.BusinessInput, competitors []model.CompetitorAnalysis, gaps []model.MarketGap) Result {
	res := Result{KeyInsights: KeyInsights(competitors, gaps)}

	recs, err := s.positioning(ctx, in, competitors, gaps, res.KeyInsights)
	if err != nil {
		zap.L().Warn("report: positioning failed, using gap-derived recommendations", zap.Error(err))
		res.Warnings = append(res.Warnings, "positioning recommendations derived from market gaps")
		recs = FallbackPositioning(gaps, s.maxRecs)
	}
	res.Positioning = recs
	return res
}

var positioningSchema = llm.MustSchema("positioning", `{
	"type": "object",
	"required": ["recommendations"],
	"properties": {
		"recommendations": {"type": "array", "items": {"type": "string"}, "minItems": 1}
	}
}`)

type positioningResponse struct {
	Recommendations []string `json:"recommendations"`
}

const positioningSystem = `You are a go-to-market strategist. Recommend how a new entrant should
position itself against the competitors described. Each recommendation is one
actionable sentence.`

func (s *Stage) positioning(ctx context.Context, in model.BusinessInput, competitors []model.CompetitorAnalysis, gaps []model.MarketGap, insights []string) ([]string, error) {
	if s.llm == nil {
		return nil, eris.New("report: no completer configured")
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	type brief struct {
		Name       string   `json:"name"`
		Category   string   `json:"category"`
		Strengths  []string `json:"strengths"`
		Weaknesses []string `json:"weaknesses"`
	}
	briefs := make([]brief, len(competitors))
	for i, c := range competitors {
		briefs[i] = brief{c.Basic.Name, string(c.Basic.Category), c.Strengths, c.Weaknesses}
	}
	payload, err := json.Marshal(map[string]any{"competitors": briefs, "market_gaps": gaps})
	if err != nil {
		return nil, err
	}

	user := fmt.Sprintf("Our idea: %s\n\nKey facts:\n- %s\n\nAnalysis:\n%s\n\nGive at most %d positioning recommendations.",
		in.IdeaDescription, strings.Join(insights, "\n- "), payload, s.maxRecs)
	resp, err := llm.CompleteInto[positioningResponse](ctx, s.llm, llm.Prompt{Stage: "report", System: positioningSystem, User: user}, positioningSchema)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, r := range resp.Recommendations {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
		if len(out) == s.maxRecs {
			break
		}
	}
	if len(out) == 0 {
		return nil, llm.Malformed(llm.ProviderOf(s.llm), eris.New("report: no recommendations"))
	}
	return out, nil
}

// FallbackPositioning derives recommendations from the highest-scoring gaps.
func FallbackPositioning(gaps []model.MarketGap, limit int) []string {
	if len(gaps) == 0 {
		return []string{"Differentiate on a narrowly defined customer segment and validate it through customer interviews before building breadth."}
	}
	var out []string
	for _, g := range gaps {
		if len(out) == limit {
			break
		}
		out = append(out, fmt.Sprintf("%s (%s, opportunity %.1f/10).", g.RecommendedAction, strings.ToLower(string(g.Category)), g.OpportunityScore))
	}
	return out
}

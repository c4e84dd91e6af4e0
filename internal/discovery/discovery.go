// Package discovery finds competitors for a business idea by asking an
// ordered list of LLM strategies until enough distinct competitors are
// known.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cluvo-ai/cluvo/internal/chain"
	"github.com/cluvo-ai/cluvo/internal/llm"
	"github.com/cluvo-ai/cluvo/internal/model"
)

// Strategy is one way of asking for competitors.
type Strategy struct {
	Name      string
	Completer llm.Completer
	Prompt    func(in model.BusinessInput, want int) llm.Prompt
}

// StrategyOutcome reports how a strategy went.
type StrategyOutcome struct {
	Name     string        `json:"name"`
	Found    int           `json:"found"`
	Added    int           `json:"added"`
	Err      string        `json:"error,omitempty"`
	Skipped  bool          `json:"skipped,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Result is the deduplicated competitor set plus a trace of the strategies.
type Result struct {
	Competitors []model.CompetitorBasic `json:"competitors"`
	Strategies  []StrategyOutcome       `json:"strategies"`
}

// Options bounds the stage.
type Options struct {
	MinCompetitors int
	MaxCompetitors int
	// Timeout applies to each strategy call.
	Timeout time.Duration
}

// Stage runs discovery strategies in order.
type Stage struct {
	strategies []Strategy
	opts       Options
}

// New creates a Stage. Bounds default to 3-5.
func New(strategies []Strategy, opts Options) *Stage {
	if opts.MinCompetitors <= 0 {
		opts.MinCompetitors = 3
	}
	if opts.MaxCompetitors < opts.MinCompetitors {
		opts.MaxCompetitors = max(5, opts.MinCompetitors)
	}
	return &Stage{strategies: strategies, opts: opts}
}

// DefaultStrategies returns the primary categorized-list strategy and the
// alternative-solutions fallback. The fallback uses search when non-nil.
func DefaultStrategies(primary, search llm.Completer) []Strategy {
	fallback := primary
	if search != nil {
		fallback = search
	}
	return []Strategy{
		{Name: "primary", Completer: primary, Prompt: primaryPrompt},
		{Name: "fallback", Completer: fallback, Prompt: fallbackPrompt},
	}
}

// Discover returns at most MaxCompetitors distinct competitors. It stops as
// soon as MinCompetitors are known. LLM failures never fail the stage; an
// empty Result means every strategy came up short.
func (s *Stage) Discover(ctx context.Context, in model.BusinessInput) Result {
	log := zap.L().With(zap.String("stage", "discovery"))
	set := newCompetitorSet()
	found := map[string]int{}
	added := map[string]int{}

	links := make([]chain.Link[int], len(s.strategies))
	for i, st := range s.strategies {
		links[i] = chain.Link[int]{Name: st.Name, Run: func(ctx context.Context) (int, error) {
			if st.Completer == nil {
				return 0, chain.ErrSkip
			}
			list, err := s.ask(ctx, st, in)
			if err != nil {
				return 0, err
			}
			found[st.Name] = len(list)
			for _, c := range list {
				if set.add(c) {
					added[st.Name]++
				}
			}
			if set.len() < s.opts.MinCompetitors {
				return set.len(), eris.Errorf("discovery: %s left %d competitor(s), want %d",
					st.Name, set.len(), s.opts.MinCompetitors)
			}
			return set.len(), nil
		}}
	}

	_, trace, err := chain.First(ctx, links...)
	if err != nil {
		log.Warn("discovery: strategies came up short", zap.Int("found", set.len()), zap.Error(err))
	}

	res := Result{Competitors: set.list(s.opts.MaxCompetitors)}
	for _, a := range trace {
		out := StrategyOutcome{
			Name:     a.Name,
			Found:    found[a.Name],
			Added:    added[a.Name],
			Skipped:  a.Skipped,
			Duration: a.Duration,
		}
		if a.Err != nil && !a.Skipped {
			out.Err = a.Err.Error()
		}
		res.Strategies = append(res.Strategies, out)
	}
	log.Info("discovery: done",
		zap.Int("competitors", len(res.Competitors)),
		zap.String("winner", trace.Winner()),
	)
	return res
}

type competitorList struct {
	Competitors []struct {
		Name        string `json:"name"`
		Domain      string `json:"domain"`
		Description string `json:"description"`
		Category    string `json:"category"`
	} `json:"competitors"`
}

var listSchema = llm.MustSchema("competitor_list", `{
	"type": "object",
	"required": ["competitors"],
	"properties": {
		"competitors": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"domain": {"type": ["string", "null"]},
					"description": {"type": ["string", "null"]},
					"category": {"type": ["string", "null"]}
				}
			}
		}
	}
}`)

func (s *Stage) ask(ctx context.Context, st Strategy, in model.BusinessInput) ([]model.CompetitorBasic, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	p := st.Prompt(in, s.opts.MaxCompetitors)
	p.Stage = "discovery"
	resp, err := llm.CompleteInto[competitorList](ctx, st.Completer, p, listSchema)
	if err != nil {
		return nil, err
	}
	out := make([]model.CompetitorBasic, 0, len(resp.Competitors))
	for _, c := range resp.Competitors {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		out = append(out, model.CompetitorBasic{
			Name:        name,
			Domain:      model.NormalizeDomain(c.Domain),
			Description: strings.TrimSpace(c.Description),
			Category:    model.ParseCategory(c.Category),
		})
	}
	return out, nil
}

const systemPrompt = `You are a market research analyst. You identify real, currently
operating companies that compete with a business idea. Never invent companies.`

func describe(in model.BusinessInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Business idea: %s\n", in.IdeaDescription)
	for _, kv := range [][2]string{
		{"Target market", in.TargetMarket},
		{"Business model", in.BusinessModel},
		{"Geographic focus", in.GeographicFocus},
		{"Industry", in.Industry},
	} {
		if v := strings.TrimSpace(kv[1]); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", kv[0], v)
		}
	}
	return b.String()
}

func primaryPrompt(in model.BusinessInput, want int) llm.Prompt {
	return llm.Prompt{
		System: systemPrompt,
		User: describe(in) + fmt.Sprintf(`
List up to %d competitors. Categorize each as "direct" (same product, same
customers), "indirect" (different product, same need) or "substitute"
(a different way customers solve the problem today). Give each company's
primary website domain and a one-sentence description.`, want),
	}
}

func fallbackPrompt(in model.BusinessInput, want int) llm.Prompt {
	return llm.Prompt{
		System: systemPrompt,
		User: describe(in) + fmt.Sprintf(`
What do customers use today instead of this product? Name up to %d
alternative solutions, including established software vendors, services
and marketplaces. Give each company's website domain, a one-sentence
description and a category of "direct", "indirect" or "substitute".`, want),
	}
}

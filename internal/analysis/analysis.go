// Package analysis produces per-competitor SWOTs, evidence scores and the
// market gaps across the competitor set.
package analysis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cluvo-ai/cluvo/internal/llm"
	"github.com/cluvo-ai/cluvo/internal/model"
	"github.com/cluvo-ai/cluvo/internal/scoring"
)

// Options tunes the stage.
type Options struct {
	// MaxConcurrent bounds SWOT calls in flight. Default 5.
	MaxConcurrent int
	// Timeout applies to each SWOT call.
	Timeout time.Duration
}

// Result is the stage output.
type Result struct {
	Competitors []model.CompetitorAnalysis
	Gaps        []model.MarketGap
	Warnings    []string
}

// Stage runs the analysis.
type Stage struct {
	llm    llm.Completer
	gaps   GapStrategy
	engine *scoring.Engine
	opts   Options
}

// New creates a Stage. A nil completer means every SWOT uses the
// deterministic fallback; a nil strategy means ClusterGapStrategy.
func New(c llm.Completer, gaps GapStrategy, engine *scoring.Engine, opts Options) *Stage {
	if gaps == nil {
		gaps = ClusterGapStrategy{}
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	return &Stage{llm: c, gaps: gaps, engine: engine, opts: opts}
}

// Analyze fills SWOT and evidence fields on a copy of competitors and
// derives market gaps. It never fails; LLM problems become warnings.
func (s *Stage) Analyze(ctx context.Context, in model.BusinessInput, competitors []model.CompetitorAnalysis) Result {
	out := make([]model.CompetitorAnalysis, len(competitors))
	copy(out, competitors)
	fallback := make([]bool, len(out))

	var g errgroup.Group
	g.SetLimit(s.opts.MaxConcurrent)
	for i := range out {
		g.Go(func() error {
			swot, err := s.swot(ctx, in, out[i])
			if err != nil {
				zap.L().Warn("analysis: swot failed, using fallback",
					zap.String("competitor", out[i].Basic.Name),
					zap.Error(err),
				)
				swot = FallbackSWOT(out[i])
				fallback[i] = true
			}
			out[i].SWOT = swot
			out[i].SWOTFallback = fallback[i]
			if s.engine != nil {
				s.engine.ScoreCompetitor(&out[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	var warnings []string
	for i, fb := range fallback {
		if fb {
			warnings = append(warnings, fmt.Sprintf("%s: SWOT derived from collected data", out[i].Basic.Name))
		}
	}

	gaps := s.gaps.Gaps(out)
	zap.L().Info("analysis: done",
		zap.Int("competitors", len(out)),
		zap.Int("gaps", len(gaps)),
		zap.Int("swot_fallbacks", len(warnings)),
	)
	return Result{Competitors: out, Gaps: gaps, Warnings: warnings}
}

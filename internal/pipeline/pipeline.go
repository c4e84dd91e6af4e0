// Package pipeline drives an analysis run through discovery, enrichment,
// analysis and reporting, persisting every status transition.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cluvo-ai/cluvo/internal/analysis"
	"github.com/cluvo-ai/cluvo/internal/config"
	"github.com/cluvo-ai/cluvo/internal/cost"
	"github.com/cluvo-ai/cluvo/internal/discovery"
	"github.com/cluvo-ai/cluvo/internal/llm"
	"github.com/cluvo-ai/cluvo/internal/model"
	"github.com/cluvo-ai/cluvo/internal/report"
	"github.com/cluvo-ai/cluvo/internal/store"
)

// Discoverer finds the competitor set.
type Discoverer interface {
	Discover(ctx context.Context, in model.BusinessInput) discovery.Result
}

// Enricher collects facets for every competitor.
type Enricher interface {
	EnrichAll(ctx context.Context, basics []model.CompetitorBasic) ([]model.CompetitorAnalysis, []string)
}

// Analyzer derives SWOTs, evidence scores and market gaps.
type Analyzer interface {
	Analyze(ctx context.Context, in model.BusinessInput, competitors []model.CompetitorAnalysis) analysis.Result
}

// Reporter builds key insights and positioning recommendations.
type Reporter interface {
	Build(ctx context.Context, in model.BusinessInput, competitors []model.CompetitorAnalysis, gaps []model.MarketGap) report.Result
}

// Stages bundles the four stage implementations.
type Stages struct {
	Discovery Discoverer
	Enrich    Enricher
	Analysis  Analyzer
	Report    Reporter
}

// Options holds per-stage and run-level deadlines. Zero means no deadline.
type Options struct {
	RunTimeout       time.Duration
	DiscoveryTimeout time.Duration
	EnrichTimeout    time.Duration
	AnalysisTimeout  time.Duration
	ReportTimeout    time.Duration
}

func (o Options) stageTimeout(s model.RunStatus) time.Duration {
	switch s {
	case model.RunStatusDiscovering:
		return o.DiscoveryTimeout
	case model.RunStatusEnriching:
		return o.EnrichTimeout
	case model.RunStatusAnalyzing:
		return o.AnalysisTimeout
	case model.RunStatusReporting:
		return o.ReportTimeout
	}
	return 0
}

// Pipeline orchestrates analysis runs.
type Pipeline struct {
	store    store.Store
	stages   Stages
	costCalc *cost.Calculator
	opts     Options

	now   func() time.Time
	newID func() string

	wg sync.WaitGroup
}

// New creates a Pipeline. A nil calculator uses the default rates.
func New(st store.Store, stages Stages, costCalc *cost.Calculator, opts Options) *Pipeline {
	if costCalc == nil {
		costCalc = cost.NewCalculator(cost.DefaultRates())
	}
	return &Pipeline{
		store:    st,
		stages:   stages,
		costCalc: costCalc,
		opts:     opts,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Run executes a full analysis synchronously. A failed run returns the
// partial report alongside a *FatalError.
func (p *Pipeline) Run(ctx context.Context, in model.BusinessInput) (*model.CompetitorReport, error) {
	run, err := p.create(ctx, in)
	if err != nil {
		return nil, err
	}
	return p.execute(ctx, run)
}

// Submit validates and persists a pending run, then executes it in the
// background. The run outlives ctx cancellation; poll it with Get.
func (p *Pipeline) Submit(ctx context.Context, in model.BusinessInput) (string, error) {
	run, err := p.create(ctx, in)
	if err != nil {
		return "", err
	}

	bg := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := p.execute(bg, run); err != nil {
			zap.L().Warn("pipeline: background run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}()
	return run.ID, nil
}

// Get returns the stored run, including its partial or final report.
func (p *Pipeline) Get(ctx context.Context, runID string) (*model.Run, error) {
	run, err := p.store.LoadRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: get run %s", runID)
	}
	return run, nil
}

// Wait blocks until every submitted run has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) create(ctx context.Context, in model.BusinessInput) (*model.Run, error) {
	if err := in.Validate(); err != nil {
		return nil, &FatalError{Reason: "invalid input: " + err.Error(), Err: err}
	}
	now := p.now().UTC()
	run := &model.Run{
		ID:        p.newID(),
		Input:     in,
		Status:    model.RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.store.SaveRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	zap.L().Info("pipeline: run created", zap.String("run_id", run.ID))
	return run, nil
}

// execute drives run from pending to a terminal status.
func (p *Pipeline) execute(ctx context.Context, run *model.Run) (*model.CompetitorReport, error) {
	start := p.now()
	log := zap.L().With(zap.String("run_id", run.ID))

	runCtx := ctx
	if p.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.opts.RunTimeout)
		defer cancel()
	}
	meter := llm.NewMeter()
	runCtx = llm.WithMeter(runCtx, meter)

	rep := &model.CompetitorReport{
		RunID:        run.ID,
		BusinessIdea: run.Input.IdeaDescription,
		Input:        run.Input,
		Status:       run.Status,
	}
	run.Report = rep

	err := p.stagesOf(runCtx, run, rep)
	if err == nil {
		if err = p.transition(ctx, run, model.RunStatusCompleted, ""); err == nil {
			p.finish(run, rep, meter, start)
			p.save(ctx, run)
			log.Info("pipeline: run completed",
				zap.Int("competitors", rep.TotalCompetitors),
				zap.Float64("execution_time", rep.ExecutionTime),
			)
			return rep, nil
		}
	}

	fatal := p.classify(ctx, runCtx, run, err)
	if tErr := p.transition(ctx, run, model.RunStatusFailed, fatal.Reason); tErr != nil {
		log.Error("pipeline: could not mark run failed", zap.Error(tErr))
	}
	p.finish(run, rep, meter, start)
	p.save(ctx, run)
	log.Warn("pipeline: run failed", zap.String("reason", fatal.Reason))
	return rep, fatal
}

func (p *Pipeline) stagesOf(ctx context.Context, run *model.Run, rep *model.CompetitorReport) error {
	var basics []model.CompetitorBasic
	err := p.stage(ctx, run, rep, model.RunStatusDiscovering, func(ctx context.Context) error {
		res := p.stages.Discovery.Discover(ctx, run.Input)
		for _, o := range res.Strategies {
			if o.Err != "" && !o.Skipped {
				rep.Warnings = append(rep.Warnings, fmt.Sprintf("discovery: %s strategy failed", o.Name))
			}
		}
		if len(res.Competitors) == 0 {
			return &FatalError{Reason: "discovery found no competitors", Err: ctx.Err()}
		}
		basics = res.Competitors
		return nil
	})
	if err != nil {
		return err
	}

	err = p.stage(ctx, run, rep, model.RunStatusEnriching, func(ctx context.Context) error {
		competitors, warnings := p.stages.Enrich.EnrichAll(ctx, basics)
		rep.Competitors = competitors
		rep.TotalCompetitors = len(competitors)
		rep.Warnings = append(rep.Warnings, warnings...)
		return nil
	})
	if err != nil {
		return err
	}

	err = p.stage(ctx, run, rep, model.RunStatusAnalyzing, func(ctx context.Context) error {
		res := p.stages.Analysis.Analyze(ctx, run.Input, rep.Competitors)
		rep.Competitors = res.Competitors
		rep.MarketGaps = res.Gaps
		rep.Warnings = append(rep.Warnings, res.Warnings...)
		return nil
	})
	if err != nil {
		return err
	}

	return p.stage(ctx, run, rep, model.RunStatusReporting, func(ctx context.Context) error {
		res := p.stages.Report.Build(ctx, run.Input, rep.Competitors, rep.MarketGaps)
		rep.KeyInsights = res.KeyInsights
		rep.PositioningRecommendations = res.Positioning
		rep.Warnings = append(rep.Warnings, res.Warnings...)
		return nil
	})
}

// classify turns the error that ended a run into a FatalError.
func (p *Pipeline) classify(parent, runCtx context.Context, run *model.Run, err error) *FatalError {
	var fatal *FatalError
	switch {
	case errors.As(err, &fatal):
		return fatal
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil:
		return &FatalError{
			Reason: fmt.Sprintf("timeout: run exceeded %s while %s", p.opts.RunTimeout, run.Status),
			Err:    context.DeadlineExceeded,
		}
	case parent.Err() != nil:
		return &FatalError{Reason: "cancelled while " + string(run.Status), Err: parent.Err()}
	}
	return &FatalError{Reason: err.Error(), Err: err}
}

// transition moves run to next and persists it.
func (p *Pipeline) transition(ctx context.Context, run *model.Run, next model.RunStatus, reason string) error {
	if !run.Status.CanTransition(next) {
		return eris.Errorf("pipeline: invalid transition %s -> %s", run.Status, next)
	}
	now := p.now().UTC()
	run.Transitions = append(run.Transitions, model.StatusTransition{From: run.Status, To: next, At: now})
	run.Status = next
	run.Reason = reason
	run.UpdatedAt = now
	run.Report.Status = next
	if next.Terminal() {
		// The terminal save happens after the report is finalized.
		return nil
	}
	p.save(ctx, run)
	return nil
}

// save persists run on a context that survives run cancellation.
func (p *Pipeline) save(ctx context.Context, run *model.Run) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.store.SaveRun(saveCtx, run); err != nil {
		zap.L().Error("pipeline: failed to save run",
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Status)),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) finish(run *model.Run, rep *model.CompetitorReport, meter *llm.Meter, start time.Time) {
	byModel := meter.ByModel()
	rep.Status = run.Status
	rep.TotalCompetitors = len(rep.Competitors)
	rep.Usage = meter.Total()
	rep.EstimatedCostUSD = p.costCalc.Total(byModel)
	rep.ExecutionTime = math.Round(p.now().Sub(start).Seconds()*1000) / 1000
	p.costCalc.LogAttribution(run.ID, "run", byModel)
}

// OptionsFromConfig converts the analysis config section.
func OptionsFromConfig(c config.AnalysisConfig) Options {
	secs := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return Options{
		RunTimeout:       secs(c.RunTimeoutSecs),
		DiscoveryTimeout: secs(c.DiscoveryTimeoutSecs),
		AnalysisTimeout:  secs(c.AnalysisTimeoutSecs),
		ReportTimeout:    secs(c.ReportTimeoutSecs),
	}
}

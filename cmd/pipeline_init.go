package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cluvo-ai/cluvo/internal/analysis"
	"github.com/cluvo-ai/cluvo/internal/canvas"
	"github.com/cluvo-ai/cluvo/internal/config"
	"github.com/cluvo-ai/cluvo/internal/cost"
	"github.com/cluvo-ai/cluvo/internal/discovery"
	"github.com/cluvo-ai/cluvo/internal/enrich"
	"github.com/cluvo-ai/cluvo/internal/fetcher"
	"github.com/cluvo-ai/cluvo/internal/interview"
	"github.com/cluvo-ai/cluvo/internal/llm"
	"github.com/cluvo-ai/cluvo/internal/pipeline"
	"github.com/cluvo-ai/cluvo/internal/report"
	"github.com/cluvo-ai/cluvo/internal/scoring"
	"github.com/cluvo-ai/cluvo/internal/source"
	"github.com/cluvo-ai/cluvo/internal/store"
	"github.com/cluvo-ai/cluvo/pkg/crunchbase"
	"github.com/cluvo-ai/cluvo/pkg/jina"
)

// appEnv holds the store and every service the analyze, interview and
// serve commands need.
type appEnv struct {
	Store      store.Store
	Pipeline   *pipeline.Pipeline
	Canvas     *canvas.Updater
	Interviews *interview.Service
}

// Close waits for background runs and releases the store.
func (e *appEnv) Close() {
	if e.Pipeline != nil {
		e.Pipeline.Wait()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp validates cfg for mode, opens and migrates the store, and builds
// the services. Callers should defer env.Close().
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	engine, err := scoring.NewEngine(scoring.WeightsFromConfig(cfg.Insight.Weights))
	if err != nil {
		return nil, eris.Wrap(err, "scoring weights")
	}
	policy, err := canvas.LoadPolicy(cfg.Gate.PolicyPath)
	if err != nil {
		return nil, err
	}

	completers, err := llm.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	stages, opts := buildStages(cfg, completers, engine)
	updater := canvas.NewUpdater(st, policy)
	extractor := interview.NewExtractor(completers.Default, engine, cfg.Insight.RecencyHalfLifeDays,
		time.Duration(cfg.Analysis.AnalysisTimeoutSecs)*time.Second)

	zap.L().Info("services initialized",
		zap.String("mode", mode),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("search_grounded", completers.Search != nil),
		zap.Bool("financial_provider", cfg.Crunchbase.Key != ""),
		zap.Duration("enrich_timeout", opts.EnrichTimeout),
	)

	return &appEnv{
		Store:      st,
		Pipeline:   pipeline.New(st, stages, cost.FromConfig(cfg.Pricing), opts),
		Canvas:     updater,
		Interviews: interview.NewService(interview.TextTranscriber{}, extractor, st, updater),
	}, nil
}

// buildStages wires the four analysis stages and derives the enrichment
// deadline from the fetch budget of the largest competitor set.
func buildStages(c *config.Config, completers *llm.Completers, engine *scoring.Engine) (pipeline.Stages, pipeline.Options) {
	fetchOpts := fetcher.Options{
		MaxConcurrency: c.Scrape.MaxConcurrentRequests,
		Timeout:        c.Scrape.RequestTimeout(),
		Delay:          c.Scrape.RateLimitDelay(),
		MaxAttempts:    c.Scrape.MaxAttempts,
		MaxBodyBytes:   c.Scrape.MaxBodyBytes,
		UserAgent:      c.Scrape.UserAgent,
	}

	// Page fetches and provider API calls share one budget.
	fetch := fetcher.New(fetchOpts)
	jinaOpts := []jina.Option{
		jina.WithBaseURL(c.Jina.BaseURL),
		jina.WithHTTPClient(fetch.HTTPClient()),
		jina.WithMaxAttempts(fetch.Options().MaxAttempts),
	}
	if c.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(c.Jina.Key, jinaOpts...)

	var cb crunchbase.Client
	if c.Crunchbase.Key != "" {
		cb = crunchbase.NewClient(c.Crunchbase.Key,
			crunchbase.WithBaseURL(c.Crunchbase.BaseURL),
			crunchbase.WithHost(c.Crunchbase.Host),
			crunchbase.WithHTTPClient(fetch.HTTPClient()),
		)
	} else {
		zap.L().Debug("CLUVO_CRUNCHBASE_KEY not set, financial provider disabled")
	}

	adapters := []source.Adapter{
		source.NewFinancialAdapter(cb),
		source.NewSiteAdapter(fetch, jinaClient),
		source.NewSocialAdapter(jinaClient),
	}

	estimateTimeout := time.Duration(c.Analysis.EstimationTimeoutSecs) * time.Second
	llmTimeout := time.Duration(c.LLM.TimeoutSecs) * time.Second

	stages := pipeline.Stages{
		Discovery: discovery.New(discovery.DefaultStrategies(completers.Default, completers.Search), discovery.Options{
			MinCompetitors: c.Analysis.MinCompetitors,
			MaxCompetitors: c.Analysis.MaxCompetitors,
			Timeout:        llmTimeout,
		}),
		Enrich: enrich.New(adapters, enrich.NewLLMEstimator(completers.Default), enrich.Options{
			MaxConcurrent:   c.Scrape.MaxConcurrentRequests,
			EstimateTimeout: estimateTimeout,
		}),
		Analysis: analysis.New(completers.Default, nil, engine, analysis.Options{
			MaxConcurrent: c.Scrape.MaxConcurrentRequests,
			Timeout:       llmTimeout,
		}),
		Report: report.New(completers.Default, c.Analysis.MaxPositioningInsights, llmTimeout),
	}

	opts := pipeline.OptionsFromConfig(c.Analysis)
	perCompetitor := source.RequestsPerCompetitor(adapters)
	opts.EnrichTimeout = fetcher.StageDeadline(c.Analysis.MaxCompetitors*perCompetitor, fetch.Options()) + estimateTimeout
	return stages, opts
}

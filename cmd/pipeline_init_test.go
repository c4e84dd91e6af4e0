package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cluvo-ai/cluvo/internal/config"
	"github.com/cluvo-ai/cluvo/internal/llm"
	"github.com/cluvo-ai/cluvo/internal/scoring"
)

func stageConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{Provider: "anthropic", TimeoutSecs: 60},
		Scrape: config.ScrapeConfig{
			MaxConcurrentRequests: 5,
			RequestTimeoutSecs:    15,
			RateLimitDelayMs:      1000,
			MaxAttempts:           2,
		},
		Analysis: config.AnalysisConfig{
			MinCompetitors:         3,
			MaxCompetitors:         5,
			DiscoveryTimeoutSecs:   90,
			EstimationTimeoutSecs:  60,
			AnalysisTimeoutSecs:    120,
			ReportTimeoutSecs:      60,
			MaxPositioningInsights: 5,
			RunTimeoutSecs:         600,
		},
	}
}

func TestBuildStages(t *testing.T) {
	c := llm.CompleterFunc(func(context.Context, llm.Prompt, *llm.Schema) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})

	stages, opts := buildStages(stageConfig(), &llm.Completers{Default: c}, scoring.MustEngine(scoring.DefaultWeights))

	assert.NotNil(t, stages.Discovery)
	assert.NotNil(t, stages.Enrich)
	assert.NotNil(t, stages.Analysis)
	assert.NotNil(t, stages.Report)

	assert.Equal(t, 600*time.Second, opts.RunTimeout)
	assert.Equal(t, 90*time.Second, opts.DiscoveryTimeout)
	assert.Equal(t, 120*time.Second, opts.AnalysisTimeout)
	assert.Equal(t, 60*time.Second, opts.ReportTimeout)
	// 5 competitors x (4 pages + reader + 2 searches) over 5 slots = 7 waves
	// of (15s + 1s), twice for retries, plus the 60s estimation budget.
	assert.Equal(t, 284*time.Second, opts.EnrichTimeout)
}

func TestInitApp_MissingKey(t *testing.T) {
	cfg = stageConfig()

	_, err := initApp(context.Background(), "analysis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key")
}

func TestInitApp_BadPolicyPath(t *testing.T) {
	cfg = stageConfig()
	cfg.Anthropic.Key = "sk-test"
	cfg.Gate.PolicyPath = "/nonexistent/gate.yaml"

	_, err := initApp(context.Background(), "analysis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "canvas: read policy")
}

func TestInitApp_BadWeights(t *testing.T) {
	cfg = stageConfig()
	cfg.Anthropic.Key = "sk-test"
	cfg.Insight.Weights = config.ScoringWeights{Frequency: 0.5, Intensity: 0.2}

	_, err := initApp(context.Background(), "analysis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights sum")
}

func TestBuildStages_FinancialProviderWidensDeadline(t *testing.T) {
	c := stageConfig()
	c.Crunchbase.Key = "rapid-key"
	completer := llm.CompleterFunc(func(context.Context, llm.Prompt, *llm.Schema) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})

	_, opts := buildStages(c, &llm.Completers{Default: completer}, scoring.MustEngine(scoring.DefaultWeights))

	// 5 x 9 requests over 5 slots = 9 waves.
	assert.Equal(t, (9*2*16+60)*time.Second, opts.EnrichTimeout)
}

package scoring

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cluvo-ai/cluvo/internal/config"
	"github.com/cluvo-ai/cluvo/internal/model"
)

func TestNewEngine_RejectsBadWeights(t *testing.T) {
	_, err := NewEngine(DefaultWeights)
	require.NoError(t, err)

	off := DefaultWeights
	off.Recency = 0.11
	_, err = NewEngine(off)
	assert.Error(t, err)

	neg := Weights{Frequency: 1.2, Intensity: -0.2}
	_, err = NewEngine(neg)
	assert.Error(t, err)

	_, err = NewEngine(Weights{})
	assert.Error(t, err)

	// float rounding stays within tolerance
	tenth := 0.1
	_, err = NewEngine(Weights{Frequency: tenth + 0.2, Intensity: 0.7})
	assert.NoError(t, err)
}

func TestScore_InRangeForValidWeights(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		raw := [6]float64{}
		sum := 0.0
		for j := range raw {
			raw[j] = rng.Float64()
			sum += raw[j]
		}
		w := Weights{raw[0] / sum, raw[1] / sum, raw[2] / sum, raw[3] / sum, raw[4] / sum, 0}
		w.Recency = 1 - (w.Frequency + w.Intensity + w.Specificity + w.Consistency + w.Evidence)
		if w.Recency < 0 {
			continue
		}
		e, err := NewEngine(w)
		require.NoError(t, err)

		f := model.ScoreFactors{
			Frequency:   rng.Float64()*3 - 1,
			Intensity:   rng.Float64()*3 - 1,
			Specificity: rng.Float64(),
			Consistency: rng.Float64(),
			Evidence:    rng.Float64()*3 - 1,
			Recency:     rng.Float64(),
		}
		s := e.Score(f)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestScore_WeightedSum(t *testing.T) {
	e := MustEngine(DefaultWeights)
	assert.InDelta(t, 1.0, e.Score(model.ScoreFactors{Frequency: 1, Intensity: 1, Specificity: 1, Consistency: 1, Evidence: 1, Recency: 1}), 1e-12)
	assert.Equal(t, 0.0, e.Score(model.ScoreFactors{}))
	assert.InDelta(t, 0.25, e.Score(model.ScoreFactors{Frequency: 1}), 1e-12)
	assert.InDelta(t, 0.25+0.10, e.Score(model.ScoreFactors{Frequency: 1.7, Recency: 1}), 1e-12)
}

func TestTier_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  model.ConfidenceTier
	}{
		{0, model.TierLow},
		{0.4999, model.TierLow},
		{0.5, model.TierMedium},
		{0.6999, model.TierMedium},
		{0.7, model.TierHigh},
		{0.8999, model.TierHigh},
		{0.9, model.TierVeryHigh},
		{1, model.TierVeryHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Tier(tt.score), "score %v", tt.score)
	}
}

func TestRecency(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1.0, Recency(now, now, 30))
	assert.Equal(t, 1.0, Recency(time.Time{}, now, 30))
	assert.Equal(t, 1.0, Recency(now.Add(time.Hour), now, 30))
	assert.InDelta(t, 0.5, Recency(now.AddDate(0, 0, -30), now, 30), 1e-9)
	assert.InDelta(t, 0.25, Recency(now.AddDate(0, 0, -60), now, 30), 1e-9)
	assert.Equal(t, 1.0, Recency(now.AddDate(-1, 0, 0), now, 0))
}

func TestWeightsFromConfig(t *testing.T) {
	assert.Equal(t, DefaultWeights, WeightsFromConfig(config.ScoringWeights{}))
	w := WeightsFromConfig(config.ScoringWeights{Frequency: 0.5, Evidence: 0.5})
	assert.Equal(t, 0.5, w.Frequency)
	assert.Equal(t, 0.0, w.Recency)
}

func TestCompetitorFactors(t *testing.T) {
	score := 0.6
	ca := model.NewCompetitorAnalysis(model.CompetitorBasic{Name: "Acme"})
	ca.Pricing = &model.PricingData{PricingModel: "tiered"}
	ca.Provenance[model.FacetPricing] = model.ProvenanceScraped
	ca.Sentiment = &model.MarketSentiment{OverallScore: &score, RedditMentions: 2}
	ca.Provenance[model.FacetSentiment] = model.ProvenanceAIEstimated
	ca.Strengths = []string{"fast", "cheap", "simple"}
	ca.Weaknesses = []string{"no API"}

	f := CompetitorFactors(ca)
	assert.InDelta(t, 2.0/3, f.Frequency, 1e-9)
	assert.InDelta(t, 1.0/3, f.Evidence, 1e-9)
	assert.InDelta(t, 0.6, f.Intensity, 1e-9)
	assert.InDelta(t, 0.5, f.Specificity, 1e-9)
	// balance (3-1)/4 = 0.5, |0.6-0.5|/2 = 0.05
	assert.InDelta(t, 0.95, f.Consistency, 1e-9)
	assert.Equal(t, 1.0, f.Recency)
}

func TestScoreCompetitor_AllMissing(t *testing.T) {
	ca := model.NewCompetitorAnalysis(model.CompetitorBasic{Name: "Ghost"})
	MustEngine(DefaultWeights).ScoreCompetitor(&ca)
	// only the neutral consistency contributes: 0.15 * 0.5
	assert.InDelta(t, 0.075, ca.EvidenceScore, 1e-9)
	assert.Equal(t, model.TierLow, ca.EvidenceTier)
}

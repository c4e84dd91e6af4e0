// Package scoring computes the weighted confidence score shared by
// competitor evaluation and customer-insight evaluation.
package scoring

import (
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cluvo-ai/cluvo/internal/config"
	"github.com/cluvo-ai/cluvo/internal/model"
)

const weightTolerance = 1e-9

// Weights are the per-factor weights. They must be non-negative and sum to 1.
type Weights struct {
	Frequency   float64
	Intensity   float64
	Specificity float64
	Consistency float64
	Evidence    float64
	Recency     float64
}

// DefaultWeights are the standard factor weights.
var DefaultWeights = Weights{
	Frequency:   0.25,
	Intensity:   0.20,
	Specificity: 0.15,
	Consistency: 0.15,
	Evidence:    0.15,
	Recency:     0.10,
}

// WeightsFromConfig converts configured weights. An all-zero config means
// DefaultWeights.
func WeightsFromConfig(c config.ScoringWeights) Weights {
	w := Weights(c)
	if w == (Weights{}) {
		return DefaultWeights
	}
	return w
}

func (w Weights) values() [6]float64 {
	return [6]float64{w.Frequency, w.Intensity, w.Specificity, w.Consistency, w.Evidence, w.Recency}
}

// Engine scores factor sets. It is immutable and safe for concurrent use.
type Engine struct {
	w Weights
}

// NewEngine validates w. Negative weights or a sum other than 1.0 fail
// here so that a misconfiguration never reaches Score.
func NewEngine(w Weights) (*Engine, error) {
	sum := 0.0
	for _, v := range w.values() {
		if v < 0 || math.IsNaN(v) {
			return nil, eris.Errorf("scoring: negative or NaN weight in %+v", w)
		}
		sum += v
	}
	if math.Abs(sum-1) > weightTolerance {
		return nil, eris.Errorf("scoring: weights sum to %.12f, want 1.0", sum)
	}
	return &Engine{w: w}, nil
}

// MustEngine is NewEngine for known-good weights.
func MustEngine(w Weights) *Engine {
	e, err := NewEngine(w)
	if err != nil {
		panic(err)
	}
	return e
}

// Weights returns the engine's weights.
func (e *Engine) Weights() Weights { return e.w }

// Score is the weighted sum of the clamped factors, clamped to [0,1].
func (e *Engine) Score(f model.ScoreFactors) float64 {
	s := e.w.Frequency*clamp01(f.Frequency) +
		e.w.Intensity*clamp01(f.Intensity) +
		e.w.Specificity*clamp01(f.Specificity) +
		e.w.Consistency*clamp01(f.Consistency) +
		e.w.Evidence*clamp01(f.Evidence) +
		e.w.Recency*clamp01(f.Recency)
	return clamp01(s)
}

// Tier buckets a score. Lower bounds are inclusive.
func Tier(score float64) model.ConfidenceTier {
	switch {
	case score >= 0.9:
		return model.TierVeryHigh
	case score >= 0.7:
		return model.TierHigh
	case score >= 0.5:
		return model.TierMedium
	default:
		return model.TierLow
	}
}

// Recency decays by half every halfLifeDays. Zero or future timestamps, and
// a non-positive half-life, count as fully recent.
func Recency(observedAt, now time.Time, halfLifeDays float64) float64 {
	if observedAt.IsZero() || halfLifeDays <= 0 {
		return 1
	}
	age := now.Sub(observedAt).Hours() / 24
	if age <= 0 {
		return 1
	}
	return math.Exp2(-age / halfLifeDays)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Package canvas decides which scored insights may change a Business Model
// Canvas and applies the accepted changes as a new canvas version.
package canvas

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/cluvo-ai/cluvo/internal/model"
)

// Policy holds the gate thresholds.
type Policy struct {
	// Rule a: a single insight with both scores at or above these applies.
	MinConfidence float64 `yaml:"min_confidence"`
	MinImpact     float64 `yaml:"min_impact"`
	// Rule b: this many same-type insights sharing a tag and proposing the
	// same delta apply together.
	ConsensusInsights int `yaml:"consensus_insights"`
	// Rule c: share of the interviews touching a section that propose the
	// same delta, across at least AgreementMinInterviews interviews.
	AgreementShare         float64 `yaml:"agreement_share"`
	AgreementMinInterviews int     `yaml:"agreement_min_interviews"`
	// ProtectedSections only accept additive changes.
	ProtectedSections []model.CanvasSection `yaml:"protected_sections"`
	// Fields that are validated or recorded at or above this confidence are
	// protected too.
	ProtectedConfidence float64 `yaml:"protected_confidence"`
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MinConfidence:          0.8,
		MinImpact:              7.0,
		ConsensusInsights:      3,
		AgreementShare:         0.7,
		AgreementMinInterviews: 2,
		ProtectedSections:      []model.CanvasSection{model.SectionFinancialProjections, model.SectionMarketSizing},
		ProtectedConfidence:    0.9,
	}
}

// LoadPolicy reads a YAML policy file. Keys absent from the file keep
// their default values.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, eris.Wrapf(err, "canvas: read policy %s", path)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, eris.Wrapf(err, "canvas: parse policy %s", path)
	}
	return p, p.Validate()
}

// Validate checks the thresholds.
func (p Policy) Validate() error {
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		return eris.Errorf("canvas: min_confidence %.2f outside [0,1]", p.MinConfidence)
	}
	if p.MinImpact < 0 || p.MinImpact > 10 {
		return eris.Errorf("canvas: min_impact %.2f outside [0,10]", p.MinImpact)
	}
	if p.ConsensusInsights < 2 {
		return eris.Errorf("canvas: consensus_insights must be at least 2, got %d", p.ConsensusInsights)
	}
	if p.AgreementShare <= 0 || p.AgreementShare > 1 {
		return eris.Errorf("canvas: agreement_share %.2f outside (0,1]", p.AgreementShare)
	}
	if p.AgreementMinInterviews < 2 {
		return eris.Errorf("canvas: agreement_min_interviews must be at least 2, got %d", p.AgreementMinInterviews)
	}
	for _, s := range p.ProtectedSections {
		if !s.Valid() {
			return eris.Errorf("canvas: unknown protected section %q", s)
		}
	}
	return nil
}

func (p Policy) protectedSection(s model.CanvasSection) bool {
	for _, ps := range p.ProtectedSections {
		if ps == s {
			return true
		}
	}
	return false
}

func (p Policy) protectedField(f model.CanvasField) bool {
	return f.Validated || (f.Text != "" && f.Confidence >= p.ProtectedConfidence)
}

package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// InsightType classifies an extracted customer insight.
type InsightType string

const (
	InsightPainPoint          InsightType = "pain_point"
	InsightValidationPoint    InsightType = "validation_point"
	InsightFeatureRequest     InsightType = "feature_request"
	InsightPricingFeedback    InsightType = "pricing_feedback"
	InsightCompetitiveMention InsightType = "competitive_mention"
)

// InsightTypes lists every insight type.
var InsightTypes = []InsightType{
	InsightPainPoint, InsightValidationPoint, InsightFeatureRequest,
	InsightPricingFeedback, InsightCompetitiveMention,
}

// Valid reports whether t is a known insight type.
func (t InsightType) Valid() bool {
	for _, v := range InsightTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ConfidenceTier buckets a confidence score.
type ConfidenceTier string

const (
	TierLow      ConfidenceTier = "low"
	TierMedium   ConfidenceTier = "medium"
	TierHigh     ConfidenceTier = "high"
	TierVeryHigh ConfidenceTier = "very_high"
)

// ScoreFactors are the six normalized inputs to the confidence score.
type ScoreFactors struct {
	Frequency   float64 `json:"frequency"`
	Intensity   float64 `json:"intensity"`
	Specificity float64 `json:"specificity"`
	Consistency float64 `json:"consistency"`
	Evidence    float64 `json:"evidence"`
	Recency     float64 `json:"recency"`
}

// DeltaMode says how a proposed canvas change merges.
type DeltaMode string

const (
	// DeltaAdd appends a list item.
	DeltaAdd DeltaMode = "add"
	// DeltaRefine replaces a field's text when backed by higher confidence.
	DeltaRefine DeltaMode = "refine"
)

// FieldDelta is one proposed canvas change.
type FieldDelta struct {
	Section CanvasSection `json:"section"`
	Field   string        `json:"field"`
	Value   string        `json:"value"`
	Mode    DeltaMode     `json:"mode"`
}

// BMCImpact lists the canvas sections an insight affects.
type BMCImpact struct {
	Sections []CanvasSection `json:"sections"`
	Deltas   []FieldDelta    `json:"deltas,omitempty"`
}

// ExtractedInsight is a scored observation from one interview. Insights are
// immutable once stored; corrections are new insights with SupersedesID set.
type ExtractedInsight struct {
	ID              string         `json:"id"`
	IdeaID          string         `json:"idea_id"`
	InterviewID     string         `json:"interview_id"`
	Type            InsightType    `json:"type"`
	Content         string         `json:"content"`
	Quote           string         `json:"quote"`
	Context         string         `json:"context,omitempty"`
	Speaker         string         `json:"speaker,omitempty"`
	Timestamp       *float64       `json:"timestamp,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	Factors         ScoreFactors   `json:"factors"`
	ConfidenceScore float64        `json:"confidence_score"`
	Confidence      ConfidenceTier `json:"confidence"`
	ImpactScore     float64        `json:"impact_score"`
	BMCImpact       *BMCImpact     `json:"bmc_impact,omitempty"`
	SupersedesID    string         `json:"supersedes_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Validate checks score ranges and canvas references.
func (i ExtractedInsight) Validate() error {
	if i.ID == "" {
		return eris.New("model: insight id is required")
	}
	if !i.Type.Valid() {
		return eris.Errorf("model: unknown insight type %q", i.Type)
	}
	if i.ConfidenceScore < 0 || i.ConfidenceScore > 1 {
		return eris.Errorf("model: confidence_score %.3f outside [0,1]", i.ConfidenceScore)
	}
	if i.ImpactScore < 0 || i.ImpactScore > 10 {
		return eris.Errorf("model: impact_score %.3f outside [0,10]", i.ImpactScore)
	}
	if i.BMCImpact != nil {
		if len(i.BMCImpact.Sections) == 0 {
			return eris.New("model: bmc_impact must reference at least one section")
		}
		for _, s := range i.BMCImpact.Sections {
			if !s.Valid() {
				return eris.Errorf("model: bmc_impact references unknown section %q", s)
			}
		}
		for _, d := range i.BMCImpact.Deltas {
			if !d.Section.Valid() {
				return eris.Errorf("model: delta references unknown section %q", d.Section)
			}
		}
	}
	return nil
}

// Supersede returns a correction of i under a new id. The original is left
// untouched.
func (i ExtractedInsight) Supersede(newID string, at time.Time, edit func(*ExtractedInsight)) ExtractedInsight {
	next := i
	next.ID = newID
	next.SupersedesID = i.ID
	next.CreatedAt = at
	next.Tags = append([]string(nil), i.Tags...)
	if i.BMCImpact != nil {
		impact := BMCImpact{
			Sections: append([]CanvasSection(nil), i.BMCImpact.Sections...),
			Deltas:   append([]FieldDelta(nil), i.BMCImpact.Deltas...),
		}
		next.BMCImpact = &impact
	}
	if edit != nil {
		edit(&next)
	}
	return next
}

// ScoreCategory is a per-interview scoring dimension.
type ScoreCategory string

const (
	ScoreProblemConfirmation ScoreCategory = "problem_confirmation"
	ScoreSolutionInterest    ScoreCategory = "solution_interest"
	ScoreWillingnessToPay    ScoreCategory = "willingness_to_pay"
	ScoreUrgency             ScoreCategory = "urgency"
	ScoreMarketSize          ScoreCategory = "market_size"
	ScoreCompetitionAware    ScoreCategory = "competition_awareness"
)

// InterviewScore is the 0-10 score of one category.
type InterviewScore struct {
	Category         ScoreCategory `json:"category"`
	Score            float64       `json:"score"`
	Reasoning        string        `json:"reasoning,omitempty"`
	SupportingQuotes []string      `json:"supporting_quotes,omitempty"`
}

// SentimentBreakdown holds sentiment shares in [0,1].
type SentimentBreakdown struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// InterviewAnalysis aggregates the insights of one interview.
type InterviewAnalysis struct {
	ID                string             `json:"id"`
	IdeaID            string             `json:"idea_id"`
	InterviewID       string             `json:"interview_id"`
	OverallScore      float64            `json:"overall_score"`
	CategoryScores    []InterviewScore   `json:"category_scores"`
	Insights          []ExtractedInsight `json:"insights"`
	Sentiment         SentimentBreakdown `json:"sentiment"`
	FollowUpQuestions []string           `json:"follow_up_questions,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
}

// ByType returns the contents of insights of the given type.
func (a *InterviewAnalysis) ByType(t InsightType) []string {
	var out []string
	for _, in := range a.Insights {
		if in.Type == t {
			out = append(out, in.Content)
		}
	}
	return out
}

// Transcript is the text of an interview with optional speaker turns.
type Transcript struct {
	Text     string              `json:"text"`
	Segments []TranscriptSegment `json:"segments,omitempty"`
}

// TranscriptSegment is one speaker turn.
type TranscriptSegment struct {
	Speaker string   `json:"speaker,omitempty"`
	Start   *float64 `json:"start,omitempty"`
	Text    string   `json:"text"`
}

package interview

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cluvo-ai/cluvo/internal/llm"
	"github.com/cluvo-ai/cluvo/internal/model"
	"github.com/cluvo-ai/cluvo/internal/scoring"
)

// Ref identifies the interview being analyzed.
type Ref struct {
	IdeaID      string
	InterviewID string
	// ConductedAt drives the recency factor. Zero means "now".
	ConductedAt time.Time
}

var extractionSchema = llm.MustSchema("interview_analysis", `{
	"type": "object",
	"required": ["insights"],
	"properties": {
		"insights": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["type", "content", "quote"],
				"properties": {
					"type": {"type": "string"},
					"content": {"type": "string"},
					"quote": {"type": "string"},
					"context": {"type": "string"},
					"speaker": {"type": "string"},
					"timestamp": {"type": ["number", "null"]},
					"tags": {"type": "array", "items": {"type": "string"}},
					"intensity": {"type": "number", "minimum": 0, "maximum": 1},
					"specificity": {"type": "number", "minimum": 0, "maximum": 1},
					"impact_score": {"type": "number", "minimum": 0, "maximum": 10},
					"bmc_sections": {"type": "array", "items": {"type": "string"}},
					"bmc_deltas": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["section", "field", "value"],
							"properties": {
								"section": {"type": "string"},
								"field": {"type": "string"},
								"value": {"type": "string"},
								"mode": {"type": "string", "enum": ["add", "refine"]}
							}
						}
					}
				}
			}
		},
		"category_scores": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["category", "score"],
				"properties": {
					"category": {"type": "string"},
					"score": {"type": "number", "minimum": 0, "maximum": 10},
					"reasoning": {"type": "string"},
					"supporting_quotes": {"type": "array", "items": {"type": "string"}}
				}
			}
		},
		"sentiment": {
			"type": "object",
			"properties": {
				"positive": {"type": "number"},
				"neutral": {"type": "number"},
				"negative": {"type": "number"}
			}
		},
		"follow_up_questions": {"type": "array", "items": {"type": "string"}}
	}
}`)

type rawDelta struct {
	Section string `json:"section"`
	Field   string `json:"field"`
	Value   string `json:"value"`
	Mode    string `json:"mode"`
}

type rawInsight struct {
	Type        string     `json:"type"`
	Content     string     `json:"content"`
	Quote       string     `json:"quote"`
	Context     string     `json:"context"`
	Speaker     string     `json:"speaker"`
	Timestamp   *float64   `json:"timestamp"`
	Tags        []string   `json:"tags"`
	Intensity   float64    `json:"intensity"`
	Specificity float64    `json:"specificity"`
	ImpactScore float64    `json:"impact_score"`
	Sections    []string   `json:"bmc_sections"`
	Deltas      []rawDelta `json:"bmc_deltas"`
}

type extraction struct {
	Insights          []rawInsight             `json:"insights"`
	CategoryScores    []model.InterviewScore   `json:"category_scores"`
	Sentiment         model.SentimentBreakdown `json:"sentiment"`
	FollowUpQuestions []string                 `json:"follow_up_questions"`
}

const extractionSystem = `You analyze customer-discovery interviews for a founder. Extract the
customer's pain points, validation points, feature requests, pricing feedback
and mentions of competitors. Every insight must carry a verbatim quote from
the transcript. Rate intensity (how strongly it was expressed) and
specificity (how concrete it is) from 0 to 1, and impact on the business
model from 0 to 10. Map insights to Business Model Canvas sections using
these ids: %s.`

// Extractor turns a transcript into an InterviewAnalysis.
type Extractor struct {
	llm          llm.Completer
	engine       *scoring.Engine
	halfLifeDays float64
	timeout      time.Duration

	now   func() time.Time
	newID func() string
}

// NewExtractor creates an Extractor. halfLifeDays defaults to 90.
func NewExtractor(c llm.Completer, engine *scoring.Engine, halfLifeDays float64, timeout time.Duration) *Extractor {
	if halfLifeDays <= 0 {
		halfLifeDays = 90
	}
	return &Extractor{
		llm:          c,
		engine:       engine,
		halfLifeDays: halfLifeDays,
		timeout:      timeout,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Analyze extracts insights and category scores in one structured call.
// Factors are derived locally and scored by the engine.
func (e *Extractor) Analyze(ctx context.Context, ref Ref, t *model.Transcript) (*model.InterviewAnalysis, error) {
	if t == nil || strings.TrimSpace(t.Text) == "" {
		return nil, eris.New("interview: empty transcript")
	}
	if e.llm == nil {
		return nil, eris.New("interview: no completer configured")
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	sections := make([]string, len(model.CanvasSections))
	for i, s := range model.CanvasSections {
		sections[i] = string(s)
	}
	raw, err := llm.CompleteInto[extraction](ctx, e.llm, llm.Prompt{
		Stage:  "interview",
		System: fmt.Sprintf(extractionSystem, strings.Join(sections, ", ")),
		User:   "Transcript:\n" + t.Text,
	}, extractionSchema)
	if err != nil {
		return nil, eris.Wrapf(err, "interview: extract %s", ref.InterviewID)
	}

	now := e.now().UTC()
	log := zap.L().With(zap.String("interview_id", ref.InterviewID))

	kept := make([]rawInsight, 0, len(raw.Insights))
	for _, ri := range raw.Insights {
		ri.Type = strings.TrimSpace(strings.ToLower(ri.Type))
		if !model.InsightType(ri.Type).Valid() || strings.TrimSpace(ri.Content) == "" {
			log.Debug("interview: dropping insight", zap.String("type", ri.Type))
			continue
		}
		ri.Tags = normalizeTags(ri.Tags)
		kept = append(kept, ri)
	}

	recency := 1.0
	if !ref.ConductedAt.IsZero() {
		recency = scoring.Recency(ref.ConductedAt, now, e.halfLifeDays)
	}

	a := &model.InterviewAnalysis{
		ID:                e.newID(),
		IdeaID:            ref.IdeaID,
		InterviewID:       ref.InterviewID,
		Sentiment:         raw.Sentiment,
		FollowUpQuestions: raw.FollowUpQuestions,
		CreatedAt:         now,
	}
	for i, ri := range kept {
		in := model.ExtractedInsight{
			ID:          e.newID(),
			IdeaID:      ref.IdeaID,
			InterviewID: ref.InterviewID,
			Type:        model.InsightType(ri.Type),
			Content:     strings.TrimSpace(ri.Content),
			Quote:       strings.TrimSpace(ri.Quote),
			Context:     ri.Context,
			Speaker:     ri.Speaker,
			Timestamp:   ri.Timestamp,
			Tags:        ri.Tags,
			ImpactScore: math.Max(0, math.Min(10, ri.ImpactScore)),
			BMCImpact:   canvasImpact(ri),
			CreatedAt:   now,
		}
		in.Factors = model.ScoreFactors{
			Frequency:   frequency(kept, i),
			Intensity:   ri.Intensity,
			Specificity: ri.Specificity,
			Consistency: consistency(kept, i),
			Evidence:    evidence(in.Quote, t.Text),
			Recency:     recency,
		}
		in.ConfidenceScore = math.Round(e.engine.Score(in.Factors)*1000) / 1000
		in.Confidence = scoring.Tier(in.ConfidenceScore)

		if err := in.Validate(); err != nil {
			log.Warn("interview: dropping invalid insight", zap.Error(err))
			continue
		}
		a.Insights = append(a.Insights, in)
	}

	a.CategoryScores, a.OverallScore = categoryScores(raw.CategoryScores)
	log.Info("interview: analyzed",
		zap.Int("insights", len(a.Insights)),
		zap.Float64("overall_score", a.OverallScore),
	)
	return a, nil
}

// canvasImpact keeps the sections and deltas that exist in the canvas
// schema. An insight whose sections all vanish has no impact.
func canvasImpact(ri rawInsight) *model.BMCImpact {
	impact := &model.BMCImpact{}
	seen := map[model.CanvasSection]bool{}
	addSection := func(s model.CanvasSection) {
		if !seen[s] {
			seen[s] = true
			impact.Sections = append(impact.Sections, s)
		}
	}
	for _, s := range ri.Sections {
		sec := model.CanvasSection(strings.TrimSpace(strings.ToLower(s)))
		if sec.Valid() {
			addSection(sec)
		}
	}
	for _, d := range ri.Deltas {
		sec := model.CanvasSection(strings.TrimSpace(strings.ToLower(d.Section)))
		if !sec.Valid() || strings.TrimSpace(d.Field) == "" || strings.TrimSpace(d.Value) == "" {
			continue
		}
		mode := model.DeltaMode(d.Mode)
		if mode != model.DeltaRefine {
			mode = model.DeltaAdd
		}
		addSection(sec)
		impact.Deltas = append(impact.Deltas, model.FieldDelta{
			Section: sec,
			Field:   strings.TrimSpace(d.Field),
			Value:   strings.TrimSpace(d.Value),
			Mode:    mode,
		})
	}
	if len(impact.Sections) == 0 {
		return nil
	}
	return impact
}

var knownCategories = map[model.ScoreCategory]bool{
	model.ScoreProblemConfirmation: true,
	model.ScoreSolutionInterest:    true,
	model.ScoreWillingnessToPay:    true,
	model.ScoreUrgency:             true,
	model.ScoreMarketSize:          true,
	model.ScoreCompetitionAware:    true,
}

// categoryScores drops unknown categories and averages the rest.
func categoryScores(in []model.InterviewScore) ([]model.InterviewScore, float64) {
	var out []model.InterviewScore
	sum := 0.0
	for _, s := range in {
		if !knownCategories[s.Category] {
			continue
		}
		s.Score = math.Max(0, math.Min(10, s.Score))
		out = append(out, s)
		sum += s.Score
	}
	if len(out) == 0 {
		return nil, 0
	}
	return out, math.Round(sum/float64(len(out))*10) / 10
}

func normalizeTags(tags []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.Join(strings.Fields(strings.ToLower(t)), "-")
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

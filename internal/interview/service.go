package interview

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cluvo-ai/cluvo/internal/canvas"
	"github.com/cluvo-ai/cluvo/internal/model"
	"github.com/cluvo-ai/cluvo/internal/store"
)

// Request describes one interview to process. Text takes precedence over
// TranscriptRef.
type Request struct {
	IdeaID        string    `json:"idea_id"`
	InterviewID   string    `json:"interview_id"`
	Text          string    `json:"text,omitempty"`
	TranscriptRef string    `json:"transcript_ref,omitempty"`
	ConductedAt   time.Time `json:"conducted_at,omitempty"`
	// Apply runs the canvas gate over the new insights.
	Apply   bool `json:"apply,omitempty"`
	Preview bool `json:"preview,omitempty"`
}

// Outcome is the result of Process.
type Outcome struct {
	Analysis *model.InterviewAnalysis `json:"analysis"`
	Canvas   *canvas.Result           `json:"canvas,omitempty"`
}

// Correction edits an insight. Empty fields keep the original value.
type Correction struct {
	Type        model.InsightType `json:"type,omitempty"`
	Content     string            `json:"content,omitempty"`
	Quote       string            `json:"quote,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	ImpactScore *float64          `json:"impact_score,omitempty"`
}

// Service ingests interviews end to end.
type Service struct {
	transcriber Transcriber
	extractor   *Extractor
	store       store.Store
	updater     *canvas.Updater

	now   func() time.Time
	newID func() string
}

// NewService creates a Service. updater may be nil when the canvas gate is
// not used.
func NewService(t Transcriber, x *Extractor, st store.Store, u *canvas.Updater) *Service {
	if t == nil {
		t = TextTranscriber{}
	}
	return &Service{
		transcriber: t,
		extractor:   x,
		store:       st,
		updater:     u,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Process transcribes, extracts and stores the insights of one interview,
// then optionally runs the canvas gate over them.
func (s *Service) Process(ctx context.Context, req Request) (*Outcome, error) {
	if strings.TrimSpace(req.IdeaID) == "" {
		return nil, eris.New("interview: idea id is required")
	}
	if req.InterviewID == "" {
		req.InterviewID = s.newID()
	}
	if (req.Apply || req.Preview) && s.updater == nil {
		return nil, eris.New("interview: canvas gate is not configured")
	}

	var t *model.Transcript
	switch {
	case strings.TrimSpace(req.Text) != "":
		t = ParseTranscript(req.Text)
	case req.TranscriptRef != "":
		var err error
		if t, err = s.transcriber.Transcribe(ctx, req.TranscriptRef); err != nil {
			return nil, err
		}
	default:
		return nil, eris.New("interview: transcript text or reference is required")
	}

	a, err := s.extractor.Analyze(ctx, Ref{IdeaID: req.IdeaID, InterviewID: req.InterviewID, ConductedAt: req.ConductedAt}, t)
	if err != nil {
		return nil, err
	}
	for _, in := range a.Insights {
		if err := s.store.SaveInsight(ctx, in); err != nil {
			return nil, eris.Wrapf(err, "interview: save insight %s", in.ID)
		}
	}

	out := &Outcome{Analysis: a}
	if req.Apply || req.Preview {
		res, err := s.updater.Apply(ctx, req.IdeaID, a.Insights, req.Preview)
		if err != nil {
			return out, eris.Wrap(err, "interview: canvas gate")
		}
		out.Canvas = res
	}
	return out, nil
}

// Correct stores a corrected copy of an insight that supersedes it. The
// original stays untouched.
func (s *Service) Correct(ctx context.Context, insightID string, c Correction) (*model.ExtractedInsight, error) {
	found, err := s.store.LoadInsights(ctx, []string{insightID})
	if err != nil {
		return nil, eris.Wrapf(err, "interview: load insight %s", insightID)
	}
	if len(found) == 0 {
		return nil, eris.Wrapf(store.ErrNotFound, "interview: insight %s", insightID)
	}

	next := found[0].Supersede(s.newID(), s.now().UTC(), func(in *model.ExtractedInsight) {
		if c.Type != "" {
			in.Type = c.Type
		}
		if c.Content != "" {
			in.Content = c.Content
		}
		if c.Quote != "" {
			in.Quote = c.Quote
		}
		if c.Tags != nil {
			in.Tags = normalizeTags(c.Tags)
		}
		if c.ImpactScore != nil {
			in.ImpactScore = *c.ImpactScore
		}
	})
	if err := next.Validate(); err != nil {
		return nil, eris.Wrap(err, "interview: invalid correction")
	}
	if err := s.store.SaveInsight(ctx, next); err != nil {
		return nil, eris.Wrapf(err, "interview: save correction of %s", insightID)
	}
	zap.L().Info("interview: insight corrected",
		zap.String("insight_id", next.ID),
		zap.String("supersedes_id", insightID),
	)
	return &next, nil
}

// Insights lists the stored insights of an idea.
func (s *Service) Insights(ctx context.Context, ideaID string, f store.InsightFilter) ([]model.ExtractedInsight, error) {
	out, err := s.store.ListInsights(ctx, ideaID, f)
	return out, eris.Wrapf(err, "interview: list insights of %s", ideaID)
}

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cluvo-ai/cluvo/internal/interview"
	"github.com/cluvo-ai/cluvo/internal/model"
	"github.com/cluvo-ai/cluvo/internal/pipeline"
	"github.com/cluvo-ai/cluvo/internal/store"
)

func (s *server) createAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.Analyses == nil {
		unavailable(w, "analysis pipeline")
		return
	}
	var in model.BusinessInput
	if !decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if r.URL.Query().Get("mode") != "sync" {
		id, err := s.Analyses.Submit(r.Context(), in)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id, "status": string(model.RunStatusPending)})
		return
	}

	ctx := r.Context()
	if s.SyncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.SyncTimeout)
		defer cancel()
	}
	rep, err := s.Analyses.Run(ctx, in)
	if err != nil {
		var fatal *pipeline.FatalError
		if errors.As(err, &fatal) && rep != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error(), Report: rep})
			return
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.Analyses == nil {
		unavailable(w, "analysis pipeline")
		return
	}
	run, err := s.Analyses.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type runSummary struct {
	ID        string          `json:"id"`
	Status    model.RunStatus `json:"status"`
	Idea      string          `json:"idea"`
	Reason    string          `json:"reason,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (s *server) listAnalyses(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		unavailable(w, "store")
		return
	}
	q := r.URL.Query()
	f := store.RunFilter{Status: model.RunStatus(q.Get("status"))}
	var ok bool
	if f.Limit, ok = intParam(w, q.Get("limit")); !ok {
		return
	}
	if f.Offset, ok = intParam(w, q.Get("offset")); !ok {
		return
	}
	runs, err := s.Store.ListRuns(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, runSummary{
			ID:        run.ID,
			Status:    run.Status,
			Idea:      run.Input.IdeaDescription,
			Reason:    run.Reason,
			CreatedAt: run.CreatedAt,
			UpdatedAt: run.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) createInterview(w http.ResponseWriter, r *http.Request) {
	if s.Interviews == nil {
		unavailable(w, "interview analysis")
		return
	}
	var req interview.Request
	if !decode(w, r, &req) {
		return
	}
	req.IdeaID = chi.URLParam(r, "ideaID")
	if req.Text == "" && req.TranscriptRef == "" {
		writeError(w, http.StatusBadRequest, "text or transcript_ref is required")
		return
	}
	out, err := s.Interviews.Process(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *server) listInsights(w http.ResponseWriter, r *http.Request) {
	if s.Interviews == nil {
		unavailable(w, "interview analysis")
		return
	}
	q := r.URL.Query()
	f := store.InsightFilter{
		Type:        model.InsightType(q.Get("type")),
		InterviewID: q.Get("interview_id"),
		CurrentOnly: q.Get("current") != "false",
	}
	var ok bool
	if f.Limit, ok = intParam(w, q.Get("limit")); !ok {
		return
	}
	out, err := s.Interviews.Insights(r.Context(), chi.URLParam(r, "ideaID"), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if out == nil {
		out = []model.ExtractedInsight{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) correctInsight(w http.ResponseWriter, r *http.Request) {
	if s.Interviews == nil {
		unavailable(w, "interview analysis")
		return
	}
	var c interview.Correction
	if !decode(w, r, &c) {
		return
	}
	out, err := s.Interviews.Correct(r.Context(), chi.URLParam(r, "insightID"), c)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *server) getCanvas(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		unavailable(w, "store")
		return
	}
	c, err := s.Store.LoadCanvas(r.Context(), chi.URLParam(r, "ideaID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *server) listCanvasChanges(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		unavailable(w, "store")
		return
	}
	limit, ok := intParam(w, r.URL.Query().Get("limit"))
	if !ok {
		return
	}
	changes, err := s.Store.ListCanvasChanges(r.Context(), chi.URLParam(r, "ideaID"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if changes == nil {
		changes = []model.AppliedChange{}
	}
	writeJSON(w, http.StatusOK, changes)
}

type canvasUpdateRequest struct {
	InsightIDs  []string `json:"insight_ids"`
	PreviewOnly bool     `json:"preview_only"`
}

func (s *server) updateCanvas(w http.ResponseWriter, r *http.Request) {
	if s.Canvases == nil {
		unavailable(w, "canvas gate")
		return
	}
	var req canvasUpdateRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.InsightIDs) == 0 {
		writeError(w, http.StatusBadRequest, "insight_ids is required")
		return
	}
	res, err := s.Canvases.ApplyIDs(r.Context(), chi.URLParam(r, "ideaID"), req.InsightIDs, req.PreviewOnly)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func intParam(w http.ResponseWriter, raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid integer "+strconv.Quote(raw))
		return 0, false
	}
	return n, true
}

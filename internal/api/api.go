// Package api exposes analyses, interviews and canvases over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/cluvo-ai/cluvo/internal/canvas"
	"github.com/cluvo-ai/cluvo/internal/interview"
	"github.com/cluvo-ai/cluvo/internal/model"
	"github.com/cluvo-ai/cluvo/internal/pipeline"
	"github.com/cluvo-ai/cluvo/internal/store"
)

// Analyses runs competitor analyses.
type Analyses interface {
	Run(ctx context.Context, in model.BusinessInput) (*model.CompetitorReport, error)
	Submit(ctx context.Context, in model.BusinessInput) (string, error)
	Get(ctx context.Context, runID string) (*model.Run, error)
}

// Interviews ingests interviews and corrects insights.
type Interviews interface {
	Process(ctx context.Context, req interview.Request) (*interview.Outcome, error)
	Insights(ctx context.Context, ideaID string, f store.InsightFilter) ([]model.ExtractedInsight, error)
	Correct(ctx context.Context, insightID string, c interview.Correction) (*model.ExtractedInsight, error)
}

// Canvases runs the canvas gate over stored insights.
type Canvases interface {
	ApplyIDs(ctx context.Context, ideaID string, insightIDs []string, preview bool) (*canvas.Result, error)
}

// Deps are the collaborators behind the routes. Nil collaborators disable
// their routes with 503.
type Deps struct {
	Analyses   Analyses
	Interviews Interviews
	Canvases   Canvases
	Store      store.Store

	CORSOrigins []string
	// SyncTimeout bounds ?mode=sync analyses. Zero means none.
	SyncTimeout time.Duration
}

type server struct {
	Deps
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	s := &server{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", s.createAnalysis)
			r.Get("/", s.listAnalyses)
			r.Get("/{runID}", s.getAnalysis)
		})
		r.Route("/ideas/{ideaID}", func(r chi.Router) {
			r.Post("/interviews", s.createInterview)
			r.Get("/insights", s.listInsights)
			r.Get("/canvas", s.getCanvas)
			r.Get("/canvas/changes", s.listCanvasChanges)
			r.Post("/canvas/updates", s.updateCanvas)
		})
		r.Post("/insights/{insightID}/corrections", s.correctInsight)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type errorBody struct {
	Error  string                  `json:"error"`
	Report *model.CompetitorReport `json:"report,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusOf maps domain errors onto HTTP status codes.
func statusOf(err error) int {
	var fatal *pipeline.FatalError
	var te *interview.TranscriptionError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict
	case errors.As(err, &fatal) && strings.HasPrefix(fatal.Reason, "invalid input"):
		return http.StatusBadRequest
	case errors.As(err, &te):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func unavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, what+" is not configured")
}

// Package store persists runs, insights and canvases. The pipeline and the
// canvas updater only see the Store interface.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/cluvo-ai/cluvo/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrRunFinalized is returned when saving over a completed or failed run.
	ErrRunFinalized = eris.New("store: run is finalized")
	// ErrInsightExists is returned when an insight id is saved twice.
	ErrInsightExists = eris.New("store: insight already exists")
	// ErrVersionConflict is returned when a canvas delta was computed
	// against a version that is no longer current.
	ErrVersionConflict = eris.New("store: canvas version conflict")
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// InsightFilter specifies criteria for listing an idea's insights.
type InsightFilter struct {
	Type        model.InsightType `json:"type,omitempty"`
	InterviewID string            `json:"interview_id,omitempty"`
	// CurrentOnly hides insights that a later insight supersedes.
	CurrentOnly bool `json:"current_only,omitempty"`
	Limit       int  `json:"limit,omitempty"`
}

// Store defines the persistence interface.
type Store interface {
	// Runs. SaveRun inserts or replaces a run unless the stored copy is
	// already terminal.
	SaveRun(ctx context.Context, run *model.Run) error
	LoadRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Insights are insert-only.
	SaveInsight(ctx context.Context, insight model.ExtractedInsight) error
	LoadInsights(ctx context.Context, ids []string) ([]model.ExtractedInsight, error)
	ListInsights(ctx context.Context, ideaID string, filter InsightFilter) ([]model.ExtractedInsight, error)

	// Canvas. LoadCanvas returns an empty version-0 canvas for unknown
	// ideas. ApplyCanvasDelta stores next and the delta's changes atomically
	// if the stored version still equals delta.BaseVersion.
	LoadCanvas(ctx context.Context, ideaID string) (model.Canvas, error)
	ApplyCanvasDelta(ctx context.Context, next model.Canvas, delta model.CanvasDelta) error
	ListCanvasChanges(ctx context.Context, ideaID string, limit int) ([]model.AppliedChange, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultLimit = 100

func limitOr(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	return n
}

func checkDelta(next model.Canvas, delta model.CanvasDelta) error {
	if next.IdeaID != delta.IdeaID {
		return eris.Errorf("store: canvas idea %q does not match delta idea %q", next.IdeaID, delta.IdeaID)
	}
	if next.Version != delta.BaseVersion+1 {
		return eris.Errorf("store: canvas version %d does not follow base version %d", next.Version, delta.BaseVersion)
	}
	return nil
}

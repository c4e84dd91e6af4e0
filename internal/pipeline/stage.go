package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/cluvo-ai/cluvo/internal/model"
)

const tracerName = "github.com/cluvo-ai/cluvo/internal/pipeline"

// stage transitions run to status, then runs fn inside a span with the
// stage deadline applied. A panic in fn is fatal to the run. An expired run
// context ends the run even if fn degraded gracefully.
func (p *Pipeline) stage(ctx context.Context, run *model.Run, rep *model.CompetitorReport, status model.RunStatus, fn func(ctx context.Context) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.transition(ctx, run, status, ""); err != nil {
		return err
	}

	spanCtx, span := otel.Tracer(tracerName).Start(ctx, "pipeline."+string(status))
	span.SetAttributes(attribute.String("run_id", run.ID))
	defer span.End()

	stageCtx := spanCtx
	if d := p.opts.stageTimeout(status); d > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(spanCtx, d)
		defer cancel()
	}

	log := zap.L().With(zap.String("run_id", run.ID), zap.String("stage", string(status)))
	log.Info("pipeline: stage started")
	started := p.now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline: stage panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = &FatalError{Reason: fmt.Sprintf("%s stage panicked: %v", status, r)}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}

		ended := p.now()
		timing := model.StageTiming{
			Stage:      status,
			StartedAt:  started.UTC(),
			EndedAt:    ended.UTC(),
			DurationMs: ended.Sub(started).Milliseconds(),
		}
		if err != nil {
			timing.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Warn("pipeline: stage failed", zap.Int64("duration_ms", timing.DurationMs), zap.Error(err))
		} else {
			log.Info("pipeline: stage complete", zap.Int64("duration_ms", timing.DurationMs))
		}
		rep.StageTimings = append(rep.StageTimings, timing)
	}()

	return fn(stageCtx)
}

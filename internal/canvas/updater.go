package canvas

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cluvo-ai/cluvo/internal/model"
	"github.com/cluvo-ai/cluvo/internal/store"
)

// Result is what Apply reports back.
type Result struct {
	Decision
	// Version is the canvas version after the call.
	Version int  `json:"version"`
	Preview bool `json:"preview"`
}

// Updater serializes gate runs per idea and persists accepted changes.
type Updater struct {
	store  store.Store
	policy Policy
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewUpdater creates an Updater.
func NewUpdater(st store.Store, policy Policy) *Updater {
	return &Updater{store: st, policy: policy, now: time.Now, locks: map[string]*sync.Mutex{}}
}

// Policy returns the gate policy in use.
func (u *Updater) Policy() Policy { return u.policy }

func (u *Updater) lock(ideaID string) *sync.Mutex {
	u.mu.Lock()
	defer u.mu.Unlock()
	l, ok := u.locks[ideaID]
	if !ok {
		l = &sync.Mutex{}
		u.locks[ideaID] = l
	}
	return l
}

// Apply runs the gate over insights against the stored canvas of ideaID.
// With preview set nothing is written. A version conflict from another
// writer is retried once against a fresh snapshot.
func (u *Updater) Apply(ctx context.Context, ideaID string, insights []model.ExtractedInsight, preview bool) (*Result, error) {
	l := u.lock(ideaID)
	l.Lock()
	defer l.Unlock()

	log := zap.L().With(zap.String("idea_id", ideaID))
	for attempt := 0; ; attempt++ {
		current, err := u.store.LoadCanvas(ctx, ideaID)
		if err != nil {
			return nil, eris.Wrapf(err, "canvas: load %s", ideaID)
		}

		dec := Evaluate(u.policy, insights, current, u.now().UTC())
		res := &Result{Decision: dec, Version: current.Version, Preview: preview}
		if preview || !dec.Changed() {
			return res, nil
		}

		err = u.store.ApplyCanvasDelta(ctx, dec.Canvas, dec.Delta)
		if err == nil {
			res.Version = dec.Canvas.Version
			log.Info("canvas: applied changes",
				zap.Int("version", res.Version),
				zap.Int("changes", len(dec.Delta.Changes)),
				zap.Int("retained", len(dec.Retained)),
			)
			return res, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) || attempt > 0 {
			return nil, eris.Wrapf(err, "canvas: apply to %s", ideaID)
		}
		log.Warn("canvas: version conflict, reloading", zap.Int("base_version", dec.Delta.BaseVersion))
	}
}

// ApplyIDs loads the insights by id and applies them. Insights of other
// ideas are ignored.
func (u *Updater) ApplyIDs(ctx context.Context, ideaID string, insightIDs []string, preview bool) (*Result, error) {
	loaded, err := u.store.LoadInsights(ctx, insightIDs)
	if err != nil {
		return nil, eris.Wrap(err, "canvas: load insights")
	}
	if len(loaded) == 0 {
		return nil, eris.Wrapf(store.ErrNotFound, "canvas: no insights for %s", ideaID)
	}
	var own []model.ExtractedInsight
	for _, in := range loaded {
		if in.IdeaID == ideaID {
			own = append(own, in)
		}
	}
	return u.Apply(ctx, ideaID, own, preview)
}

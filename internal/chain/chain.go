// Package chain tries ordered alternatives and returns the first success.
package chain

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrExhausted is returned when every link failed or was skipped.
var ErrExhausted = eris.New("chain: all links failed")

// ErrSkip tells the chain that a link does not apply. It is recorded but
// not logged as a failure.
var ErrSkip = eris.New("chain: skipped")

// Link is one alternative.
type Link[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Attempt records how one link went.
type Attempt struct {
	Name     string
	Err      error
	Skipped  bool
	Duration time.Duration
}

// Trace is the ordered list of attempts of one chain run.
type Trace []Attempt

// Winner returns the name of the link that succeeded, or "".
func (t Trace) Winner() string {
	if len(t) == 0 {
		return ""
	}
	last := t[len(t)-1]
	if last.Err == nil && !last.Skipped {
		return last.Name
	}
	return ""
}

// First runs links in order and returns the first successful value. A
// cancelled context stops the chain before the next link.
func First[T any](ctx context.Context, links ...Link[T]) (T, Trace, error) {
	var (
		zero    T
		trace   Trace
		lastErr error
	)
	for _, l := range links {
		if err := ctx.Err(); err != nil {
			return zero, trace, err
		}

		start := time.Now()
		v, err := l.Run(ctx)
		a := Attempt{Name: l.Name, Err: err, Duration: time.Since(start)}
		if errors.Is(err, ErrSkip) {
			a.Skipped = true
			trace = append(trace, a)
			continue
		}
		trace = append(trace, a)
		if err == nil {
			return v, trace, nil
		}

		zap.L().Debug("chain: link failed, trying next",
			zap.String("link", l.Name),
			zap.Error(err),
		)
		lastErr = err
	}
	if lastErr != nil {
		return zero, trace, eris.Wrapf(ErrExhausted, "last error: %v", lastErr)
	}
	return zero, trace, ErrExhausted
}

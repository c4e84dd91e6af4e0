package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing(context.Context) (int, error) { return 0, errBoom }
func passing(context.Context) (int, error) { return 1, nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", FailureThreshold: 2, Cooldown: time.Minute})
	ctx := context.Background()

	_, err := Call(ctx, b, failing)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateClosed, b.State())

	_, err = Call(ctx, b, failing)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateOpen, b.State())

	calls := 0
	_, err = Call(ctx, b, func(context.Context) (int, error) { calls++; return 1, nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Zero(t, calls)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 2})
	ctx := context.Background()

	_, _ = Call(ctx, b, failing)
	_, _ = Call(ctx, b, passing)
	_, _ = Call(ctx, b, failing)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Second})
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = Call(ctx, b, failing)
	require.Equal(t, StateOpen, b.State())

	now = now.Add(11 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	// Failed probe reopens.
	_, err := Call(ctx, b, failing)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateOpen, b.State())

	now = now.Add(11 * time.Second)
	v, err := Call(ctx, b, passing)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_TripsFilter(t *testing.T) {
	notFound := errors.New("not found")
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 1,
		Trips:            func(err error) bool { return err != nil && !errors.Is(err, notFound) },
	})

	_, err := Call(context.Background(), b, func(context.Context) (int, error) { return 0, notFound })
	assert.ErrorIs(t, err, notFound)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ConcurrentCalls(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1000})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = Call(context.Background(), b, failing)
			} else {
				_, _ = Call(context.Background(), b, passing)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}

package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     reset,
	})
	cb.nowFunc = func() time.Time { return now }
	return cb, &now
}

func failing(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestCircuitOpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	boom := eris.New("boom")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, failing(boom))
	}
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(ctx, failing(nil))
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitHalfOpenProbeRecovers(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	_ = cb.Execute(ctx, failing(eris.New("boom")))
	require.Equal(t, CircuitOpen, cb.State())

	*now = now.Add(2 * time.Minute)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, failing(nil)))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitHalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	_ = cb.Execute(ctx, failing(eris.New("boom")))
	*now = now.Add(2 * time.Minute)

	_ = cb.Execute(ctx, failing(eris.New("still down")))
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute)
	ctx := context.Background()

	_ = cb.Execute(ctx, failing(eris.New("boom")))
	require.NoError(t, cb.Execute(ctx, failing(nil)))
	_ = cb.Execute(ctx, failing(eris.New("boom")))

	assert.Equal(t, CircuitClosed, cb.State(), "non-consecutive failures must not trip")
}

func TestExecuteValPassesValueThrough(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	got, err := ExecuteVal(context.Background(), cb, func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestBackendBreakersIsolation(t *testing.T) {
	bb := NewBackendBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	ctx := context.Background()

	_ = bb.Get("ollama").Execute(ctx, failing(eris.New("down")))

	assert.Equal(t, CircuitOpen, bb.Get("ollama").State())
	assert.Equal(t, CircuitClosed, bb.Get("openai").State())

	states := bb.States()
	assert.Len(t, states, 2)
	assert.Equal(t, CircuitOpen, states["ollama"])
}

func TestCircuitReset(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Minute)
	_ = cb.Execute(context.Background(), failing(eris.New("boom")))
	require.Equal(t, CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
}

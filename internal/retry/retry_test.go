package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) *Config {
	cfg := WithAttempts(attempts)
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	cfg.RandomizeFactor = 0
	return cfg
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := New(fastConfig(3)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &TransientError{Err: errors.New("flaky")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := New(fastConfig(3)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := New(fastConfig(5)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &PermanentError{Err: errors.New("bad request")}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(fastConfig(3)).Do(ctx, func(ctx context.Context) error {
		t.Fatal("operation must not run after cancellation")
		return nil
	})
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDefaultRetryIf(t *testing.T) {
	assert.False(t, DefaultRetryIf(nil))
	assert.False(t, DefaultRetryIf(&PermanentError{Err: errors.New("x")}))
	assert.True(t, DefaultRetryIf(&TransientError{Err: errors.New("x")}))
	// Unknown errors retry by default.
	assert.True(t, DefaultRetryIf(errors.New("x")))
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("cause")
	assert.ErrorIs(t, &TransientError{Err: cause}, cause)
	assert.ErrorIs(t, &PermanentError{Err: cause}, cause)
}

func TestBackoffIsCapped(t *testing.T) {
	r := New(&Config{
		MaxAttempts:  1,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   10,
	})
	assert.Equal(t, 4*time.Millisecond, r.next(time.Millisecond))
	assert.Equal(t, 4*time.Millisecond, r.next(4*time.Millisecond))
}

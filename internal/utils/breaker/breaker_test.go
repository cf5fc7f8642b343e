package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	errDown     = errors.New("connection refused")
	errRejected = errors.New("bad request")
)

func onlyDown(err error) bool { return errors.Is(err, errDown) }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := New("test", 2, time.Minute, nil)

	assert.ErrorIs(t, b.Do(func() error { return errDown }), errDown)
	assert.ErrorIs(t, b.Do(func() error { return errDown }), errDown)

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerIgnoresUncountedErrors(t *testing.T) {
	b := New("test", 1, time.Minute, onlyDown)

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, b.Do(func() error { return errRejected }), errRejected)
	}
	assert.NoError(t, b.Do(func() error { return nil }))
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	b := New("test", 1, time.Second, onlyDown)
	b.now = func() time.Time { return now }

	_ = b.Do(func() error { return errDown })
	assert.ErrorIs(t, b.Do(func() error { return nil }), ErrOpen)

	now = now.Add(2 * time.Second)
	assert.NoError(t, b.Do(func() error { return nil }))
	assert.NoError(t, b.Do(func() error { return nil }))
}

func TestBreakerReopensWhenProbeFails(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	b := New("test", 3, time.Second, nil)
	b.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_ = b.Do(func() error { return errDown })
	}
	now = now.Add(2 * time.Second)
	assert.ErrorIs(t, b.Do(func() error { return errDown }), errDown)
	assert.ErrorIs(t, b.Do(func() error { return nil }), ErrOpen)
}

func TestBreakerAllowsOneProbeAtATime(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	b := New("test", 1, time.Second, nil)
	b.now = func() time.Time { return now }

	_ = b.Do(func() error { return errDown })
	now = now.Add(2 * time.Second)

	var during error
	assert.NoError(t, b.Do(func() error {
		during = b.Do(func() error { return nil })
		return nil
	}))
	assert.ErrorIs(t, during, ErrOpen)
	assert.NoError(t, b.Do(func() error { return nil }))
}

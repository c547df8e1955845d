package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 2, Cooldown: time.Minute})

	require.True(t, b.Allow())
	b.Done(true)
	assert.Equal(t, StateClosed, b.State())

	require.True(t, b.Allow())
	b.Done(true)
	assert.Equal(t, StateOpen, b.State())

	assert.False(t, b.Allow())
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := New(Config{FailureThreshold: 2})

	b.Allow()
	b.Done(true)
	b.Allow()
	b.Done(false)
	b.Allow()
	b.Done(true)

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New(Config{FailureThreshold: 1, Cooldown: 10 * time.Second, HalfOpenMaxCalls: 1})
	b.now = func() time.Time { return now }

	b.Allow()
	b.Done(true)
	require.Equal(t, StateOpen, b.State())

	now = now.Add(11 * time.Second)
	require.True(t, b.Allow(), "cooldown elapsed, trial call allowed")
	assert.False(t, b.Allow(), "only one trial call in flight")

	b.Done(false)
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New(Config{FailureThreshold: 1, Cooldown: time.Second})
	b.now = func() time.Time { return now }

	b.Allow()
	b.Done(true)

	now = now.Add(2 * time.Second)
	require.True(t, b.Allow())
	b.Done(true)

	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClosedAllowsUntilThreshold(t *testing.T) {
	b := New(3, 2, time.Minute)
	assert.Equal(t, Closed, b.State("anthropic"))

	b.RecordFailure("anthropic")
	b.RecordFailure("anthropic")
	assert.Equal(t, Closed, b.State("anthropic"))
	assert.True(t, b.CanAttempt("anthropic"))

	b.RecordFailure("anthropic")
	assert.Equal(t, Open, b.State("anthropic"))
}

func TestOpenRejectsUntilCooldown(t *testing.T) {
	b := New(1, 1, 20*time.Millisecond)
	b.RecordFailure("anthropic")
	assert.Equal(t, Open, b.State("anthropic"))
	assert.False(t, b.CanAttempt("anthropic"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, b.CanAttempt("anthropic"))
	assert.Equal(t, HalfOpen, b.State("anthropic"))
}

func TestHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	b := New(1, 2, time.Millisecond)
	b.RecordFailure("anthropic")
	time.Sleep(5 * time.Millisecond)
	require := assert.New(t)
	require.True(b.CanAttempt("anthropic"))
	require.Equal(HalfOpen, b.State("anthropic"))

	b.RecordSuccess("anthropic")
	require.Equal(HalfOpen, b.State("anthropic"))
	b.RecordSuccess("anthropic")
	require.Equal(Closed, b.State("anthropic"))
}

func TestHalfOpenFailureReopensWithoutResettingFailureCounter(t *testing.T) {
	b := New(1, 2, time.Millisecond)
	b.RecordFailure("anthropic") // 1 failure -> opens (threshold 1)
	time.Sleep(5 * time.Millisecond)
	require := assert.New(t)
	require.True(b.CanAttempt("anthropic"))
	require.Equal(HalfOpen, b.State("anthropic"))

	b.RecordFailure("anthropic") // half-open failure -> reopens immediately
	require.Equal(Open, b.State("anthropic"))

	// The counter still holds the failure recorded before the half-open
	// attempt; it is only reset when the circuit closes.
	require.Equal(1, b.circuits["anthropic"].failures)
}

func TestClosedFailureCounterAccumulatesAcrossHalfOpenReopen(t *testing.T) {
	b := New(3, 1, time.Millisecond)

	b.RecordFailure("anthropic")
	b.RecordFailure("anthropic")
	assert.Equal(t, Closed, b.State("anthropic"))

	b.RecordFailure("anthropic") // 3rd failure -> opens
	assert.Equal(t, Open, b.State("anthropic"))

	time.Sleep(5 * time.Millisecond)
	assert.True(t, b.CanAttempt("anthropic"))
	assert.Equal(t, HalfOpen, b.State("anthropic"))

	// A single half-open failure reopens immediately, it does not require
	// re-accumulating 3 failures again.
	b.RecordFailure("anthropic")
	assert.Equal(t, Open, b.State("anthropic"))
	assert.Equal(t, 3, b.circuits["anthropic"].failures, "failure counter should be kept across the half-open reopen")
}

func TestSuccessInClosedResetsFailureCounter(t *testing.T) {
	b := New(2, 1, time.Minute)
	b.RecordFailure("anthropic")
	b.RecordSuccess("anthropic")
	b.RecordFailure("anthropic")
	// If the counter hadn't reset, this would be the 2nd cumulative
	// failure and would open; since success reset it, this is only the
	// 1st failure since the reset.
	assert.Equal(t, Closed, b.State("anthropic"))
}

func TestProvidersAreIndependent(t *testing.T) {
	b := New(1, 1, time.Minute)
	b.RecordFailure("anthropic")
	assert.Equal(t, Open, b.State("anthropic"))
	assert.Equal(t, Closed, b.State("google"))
}

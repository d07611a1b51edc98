package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintledger/internal/ratelimit/models"
)

func TestLimiterBurstThenDeny(t *testing.T) {
	l := New(map[models.EndpointClass]models.Limit{
		models.ClassWrite: {RPS: 1, Burst: 2},
	}, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first := l.Check("alice", models.ClassWrite, now)
	require.True(t, first.Allowed)
	assert.Equal(t, 2, first.Limit)
	assert.Equal(t, 1, first.Remaining)

	second := l.Check("alice", models.ClassWrite, now)
	require.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)

	third := l.Check("alice", models.ClassWrite, now)
	assert.False(t, third.Allowed)
	assert.Equal(t, 1, third.RetryAfter)
	assert.Equal(t, now.Add(2*time.Second), third.ResetAt)

	// Refilled after one second.
	assert.True(t, l.Check("alice", models.ClassWrite, now.Add(time.Second)).Allowed)
}

func TestLimiterKeysAndClassesAreIndependent(t *testing.T) {
	l := New(map[models.EndpointClass]models.Limit{
		models.ClassWrite: {RPS: 1, Burst: 1},
		models.ClassRead:  {RPS: 1, Burst: 1},
	}, time.Minute)
	now := time.Now()

	assert.True(t, l.Check("alice", models.ClassWrite, now).Allowed)
	assert.False(t, l.Check("alice", models.ClassWrite, now).Allowed)
	assert.True(t, l.Check("bob", models.ClassWrite, now).Allowed)
	assert.True(t, l.Check("alice", models.ClassRead, now).Allowed)
	assert.Equal(t, 3, l.Len())
}

func TestLimiterUnlimited(t *testing.T) {
	l := New(map[models.EndpointClass]models.Limit{
		models.ClassRead: {RPS: 0},
	}, time.Minute)
	now := time.Now()
	for range 100 {
		assert.True(t, l.Check("alice", models.ClassRead, now).Allowed)
	}
	assert.True(t, l.Check("", models.ClassWrite, now).Allowed, "anonymous keys are not tracked")
	assert.Equal(t, 0, l.Len())
}

func TestLimiterEvictsIdleBuckets(t *testing.T) {
	l := New(nil, time.Minute)
	start := time.Now()
	l.Check("idle", models.ClassRead, start)

	later := start.Add(2 * time.Minute)
	for range evictEvery - 1 {
		l.Check("busy", models.ClassRead, later)
	}
	assert.Equal(t, 1, l.Len())
}

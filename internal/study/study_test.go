package study

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestTracker(t *testing.T, idle time.Duration) *Tracker {
	t.Helper()
	tracker, err := NewTracker(filepath.Join(t.TempDir(), "study.db"), idle, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracker.Close() })
	return tracker
}

// fakeClock is advanced by hand so durations are exact.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTouchStartsOneSession(t *testing.T) {
	tracker := newTestTracker(t, time.Hour)
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	tracker.now = clock.Now

	assert.False(t, tracker.Active())
	tracker.Touch()
	clock.Advance(30 * time.Second)
	tracker.Touch()
	clock.Advance(90 * time.Second)
	tracker.Touch()
	assert.True(t, tracker.Active())

	clock.Advance(10 * time.Minute)
	require.NoError(t, tracker.End())
	assert.False(t, tracker.Active())

	sessions, err := tracker.GetRecentSessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 3, sessions[0].Keystrokes)
	assert.Equal(t, 2*time.Minute, sessions[0].Duration(), "idle time after the last keystroke is not counted")

	total, err := tracker.TotalTime()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, total)
}

func TestIdleEndsSession(t *testing.T) {
	tracker := newTestTracker(t, 30*time.Millisecond)

	tracker.Touch()
	assert.True(t, tracker.Active())

	require.Eventually(t, func() bool { return !tracker.Active() }, time.Second, 5*time.Millisecond)

	sessions, err := tracker.GetRecentSessions(10)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	tracker.Touch()
	assert.True(t, tracker.Active(), "activity after idle opens a new session")
	require.Eventually(t, func() bool { return !tracker.Active() }, time.Second, 5*time.Millisecond)

	sessions, err = tracker.GetRecentSessions(10)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestEndWithoutSession(t *testing.T) {
	tracker := newTestTracker(t, time.Hour)
	assert.NoError(t, tracker.End())

	sessions, err := tracker.GetRecentSessions(10)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestUnfinishedSessionHasNoDuration(t *testing.T) {
	assert.Zero(t, StudySession{StartedAt: time.Now()}.Duration())
}

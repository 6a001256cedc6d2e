package ratelimit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for window tests.
type fakeClock struct {
	at time.Time
}

func (c *fakeClock) now() time.Time          { return c.at }
func (c *fakeClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{at: time.Unix(1700000000, 0)}
}

func TestCanProceedUntilWindowFull(t *testing.T) {
	clock := newFakeClock()
	l := NewWithClock(3, 10*time.Minute, clock.now)

	for i := 0; i < 3; i++ {
		assert.True(t, l.CanProceed())
		l.Record()
	}
	assert.False(t, l.CanProceed())
}

func TestWindowSlides(t *testing.T) {
	clock := newFakeClock()
	l := NewWithClock(2, 10*time.Minute, clock.now)

	l.Record()
	clock.advance(5 * time.Minute)
	l.Record()
	assert.False(t, l.CanProceed())

	// The first request leaves the window; one slot opens.
	clock.advance(5*time.Minute + time.Second)
	assert.True(t, l.CanProceed())

	l.Record()
	assert.False(t, l.CanProceed())
}

func TestWaitTime(t *testing.T) {
	clock := newFakeClock()
	l := NewWithClock(1, 10*time.Minute, clock.now)

	assert.Equal(t, time.Duration(0), l.WaitTime())

	l.Record()
	clock.advance(3 * time.Minute)
	assert.Equal(t, 7*time.Minute, l.WaitTime())

	clock.advance(7 * time.Minute)
	assert.Equal(t, time.Duration(0), l.WaitTime())
}

func TestSnapshot(t *testing.T) {
	clock := newFakeClock()
	l := NewWithClock(5, 10*time.Minute, clock.now)

	l.Record()
	l.Record()

	status := l.Snapshot()
	assert.Equal(t, 2, status.RequestsMade)
	assert.Equal(t, 3, status.RequestsRemaining)
	assert.Equal(t, 600, status.WindowSeconds)
	assert.True(t, status.CanRequest)
	assert.Equal(t, time.Duration(0), status.WaitTime)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rate_limit.json")
	clock := newFakeClock()

	l := NewWithClock(10, 10*time.Minute, clock.now)
	l.Record()
	l.Record()
	l.Record()
	l.Save(path)

	restored := NewWithClock(10, 10*time.Minute, clock.now)
	restored.Load(path)
	assert.Equal(t, 3, restored.Snapshot().RequestsMade)
}

func TestLoadPrunesExpiredTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rate_limit.json")
	clock := newFakeClock()

	nowSec := float64(clock.now().Unix())
	state := persistedState{
		RequestTimestamps: []float64{
			nowSec - 3600, // long expired
			nowSec - 30,
			nowSec - 1,
		},
		LastUpdated: nowSec,
	}
	raw, err := json.Marshal(state)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	l := NewWithClock(10, 10*time.Minute, clock.now)
	l.Load(path)
	assert.Equal(t, 2, l.Snapshot().RequestsMade)
}

func TestLoadMissingAndCorruptState(t *testing.T) {
	dir := t.TempDir()
	clock := newFakeClock()

	l := NewWithClock(10, 10*time.Minute, clock.now)
	l.Load(filepath.Join(dir, "does_not_exist.json"))
	assert.Equal(t, 0, l.Snapshot().RequestsMade)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o644))
	l.Load(corrupt)
	assert.Equal(t, 0, l.Snapshot().RequestsMade)
}

func TestSavePrunesBeforeWriting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rate_limit.json")
	clock := newFakeClock()

	l := NewWithClock(10, 10*time.Minute, clock.now)
	l.Record()
	clock.advance(11 * time.Minute)
	l.Record()
	l.Save(path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var state persistedState
	require.NoError(t, json.Unmarshal(raw, &state))
	assert.Len(t, state.RequestTimestamps, 1)
}

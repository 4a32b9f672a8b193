package app

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorTracker_Defaults(t *testing.T) {
	tracker := NewErrorTracker(ErrorTrackerConfig{})
	assert.Equal(t, 100, tracker.cfg.MaxHistory)
	assert.Equal(t, 5*time.Minute, tracker.cfg.Window)
	assert.Equal(t, 10, tracker.cfg.MaxErrors)
}

func TestErrorTracker_Record(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	tracker := NewErrorTracker(ErrorTrackerConfig{Now: func() time.Time { return now }})

	rec := tracker.Record(fmt.Errorf("place order: %w", ports.ErrOrderPlacementFailed), "execute")
	assert.Equal(t, ErrorRecord{
		Time:     now,
		Severity: domain.SeverityHigh,
		Context:  "execute",
		Message:  "place order: " + ports.ErrOrderPlacementFailed.Error(),
	}, rec)

	tracker.Record(errors.New("boom"), "evaluate")
	tracker.Record(ports.ErrInvalidAPIKeys, "execute")

	assert.Len(t, tracker.Recent("", -1), 3)
	low := tracker.Recent(domain.SeverityLow, 20)
	require.Len(t, low, 1)
	assert.Equal(t, "boom", low[0].Message)

	latest := tracker.Recent("", 2)
	require.Len(t, latest, 2)
	assert.Equal(t, domain.SeverityLow, latest[0].Severity)
	assert.Equal(t, domain.SeverityCritical, latest[1].Severity)

	tracker.Clear()
	assert.Empty(t, tracker.Recent("", -1))
}

func TestErrorTracker_BoundedHistory(t *testing.T) {
	tracker := NewErrorTracker(ErrorTrackerConfig{MaxHistory: 5})
	for i := 0; i < 12; i++ {
		tracker.Record(fmt.Errorf("error %d", i), "loop")
	}
	recent := tracker.Recent("", -1)
	require.Len(t, recent, 5)
	assert.Equal(t, "error 7", recent[0].Message)
	assert.Equal(t, "error 11", recent[4].Message)
}

func TestErrorTracker_HasExcessiveErrors(t *testing.T) {
	clock := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	tracker := NewErrorTracker(ErrorTrackerConfig{Now: func() time.Time { return clock }})

	for i := 0; i < 9; i++ {
		tracker.Record(ports.ErrTimeout, "evaluate")
		clock = clock.Add(20 * time.Second)
	}
	assert.False(t, tracker.HasExcessiveErrors())

	tracker.Record(ports.ErrTimeout, "evaluate")
	assert.True(t, tracker.HasExcessiveErrors(), "10 errors within 5 minutes")

	// The first records age out of the window.
	clock = clock.Add(2 * time.Minute)
	assert.False(t, tracker.HasExcessiveErrors())
	assert.Equal(t, 10, len(tracker.Recent("", -1)))
}

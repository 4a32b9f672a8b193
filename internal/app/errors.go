package app

import (
	"sync"
	"time"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// ErrorRecord is one error reported by the controller.
type ErrorRecord struct {
	Time     time.Time
	Severity domain.Severity
	Context  string
	Message  string
}

// ErrorTrackerConfig holds the history size and the excessive-error thresholds.
type ErrorTrackerConfig struct {
	MaxHistory int           // default 100
	Window     time.Duration // default 5m
	MaxErrors  int           // errors within Window that count as excessive, default 10
	Now        func() time.Time
}

// ErrorTracker keeps a bounded history of recent errors.
type ErrorTracker struct {
	cfg ErrorTrackerConfig

	mu      sync.Mutex
	history []ErrorRecord
}

// NewErrorTracker creates an empty tracker.
func NewErrorTracker(cfg ErrorTrackerConfig) *ErrorTracker {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ErrorTracker{cfg: cfg}
}

// Record adds err to the history, graded by ports.Severity, and returns the record.
func (t *ErrorTracker) Record(err error, source string) ErrorRecord {
	rec := ErrorRecord{
		Time:     t.cfg.Now(),
		Severity: ports.Severity(err),
		Context:  source,
		Message:  err.Error(),
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, rec)
	if over := len(t.history) - t.cfg.MaxHistory; over > 0 {
		t.history = append([]ErrorRecord(nil), t.history[over:]...)
	}
	return rec
}

// Recent returns up to limit of the latest records, oldest first. An empty severity
// matches all.
func (t *ErrorTracker) Recent(severity domain.Severity, limit int) []ErrorRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []ErrorRecord
	for _, r := range t.history {
		if severity == "" || r.Severity == severity {
			out = append(out, r)
		}
	}
	if limit >= 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// CountSince returns the number of records newer than window ago.
func (t *ErrorTracker) CountSince(window time.Duration) int {
	cutoff := t.cfg.Now().Add(-window)
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.history {
		if r.Time.After(cutoff) {
			n++
		}
	}
	return n
}

// HasExcessiveErrors reports whether at least MaxErrors errors happened within Window.
func (t *ErrorTracker) HasExcessiveErrors() bool {
	return t.CountSince(t.cfg.Window) >= t.cfg.MaxErrors
}

// Clear empties the history.
func (t *ErrorTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = nil
}

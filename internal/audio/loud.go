package audio

import (
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

// LoudConfig holds the timing for confirming and clearing a loud alert.
type LoudConfig struct {
	Threshold  float64 // Score above which a reading counts as loud
	DurationMs int64   // milliseconds of loudness before alerting
	RecoveryMs int64   // milliseconds of quiet before the alert clears
}

// LoudEvent is the result of a loud detection update.
type LoudEvent struct {
	InAlert    bool             // Currently in confirmed alert state
	DurationMs int64            // Current alert duration in ms (0 if not alerting)
	Level      types.AlertLevel // "active" when alerting, "" otherwise

	Score float64 // Score that produced this event

	JustEntered     bool  // True on the update when the alert is first confirmed
	JustRecovered   bool  // True on the update when recovery completes
	TotalDurationMs int64 // Total alert duration in ms (only set when JustRecovered)
}

// LoudDetector debounces per-reading loud flags into alert periods.
// It is safe for concurrent use.
type LoudDetector struct {
	mu             sync.Mutex
	loudStart      time.Time // when the current loud stretch started
	recoveryStart  time.Time // when quiet returned during an alert
	inAlert        bool
	loudDurationMs int64
}

// NewLoudDetector creates a new loud detector.
func NewLoudDetector() *LoudDetector {
	return &LoudDetector{}
}

// Update feeds one score into the detector.
func (d *LoudDetector) Update(score float64, cfg LoudConfig, now time.Time) LoudEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	event := LoudEvent{Score: score}

	if score > cfg.Threshold {
		d.recoveryStart = time.Time{}

		if d.loudStart.IsZero() {
			d.loudStart = now
		}

		durationMs := now.Sub(d.loudStart).Milliseconds()
		d.loudDurationMs = durationMs

		if d.inAlert || durationMs >= cfg.DurationMs {
			event.JustEntered = !d.inAlert
			d.inAlert = true
			event.InAlert = true
			event.DurationMs = durationMs
			event.Level = types.AlertLevelActive
		}
		return event
	}

	if !d.inAlert {
		d.loudStart = time.Time{}
		return event
	}

	// Alerting but quiet now; the loud start is kept so the alert keeps counting.
	if d.recoveryStart.IsZero() {
		d.recoveryStart = now
	}

	if now.Sub(d.recoveryStart).Milliseconds() >= cfg.RecoveryMs {
		event.JustRecovered = true
		event.TotalDurationMs = d.loudDurationMs

		d.inAlert = false
		d.loudDurationMs = 0
		d.loudStart = time.Time{}
		d.recoveryStart = time.Time{}
		return event
	}

	event.InAlert = true
	event.DurationMs = d.loudDurationMs
	event.Level = types.AlertLevelActive
	return event
}

// Active reports whether an alert is confirmed and how long it has lasted.
func (d *LoudDetector) Active() (bool, int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.inAlert {
		return false, 0
	}
	return true, d.loudDurationMs
}

// Reset clears the detection state.
func (d *LoudDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loudStart = time.Time{}
	d.recoveryStart = time.Time{}
	d.inAlert = false
	d.loudDurationMs = 0
}

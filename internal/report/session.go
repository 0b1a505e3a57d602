// Package report accumulates per-session loudness statistics and stores
// the resulting summaries on disk and in S3-compatible storage.
package report

import (
	"math"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-soundmeter/internal/audio"
	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

// Summary is the JSON document written for every finished session.
type Summary struct {
	Station         string        `json:"station"`
	Backend         types.Backend `json:"backend"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         time.Time     `json:"ended_at"`
	DurationMs      int64         `json:"duration_ms"`
	Readings        int           `json:"readings"`
	MinScore        float64       `json:"min_score"`
	MaxScore        float64       `json:"max_score"`
	MeanScore       float64       `json:"mean_score"`
	LoudFraction    float64       `json:"loud_fraction"`     // Share of readings above the threshold
	PeakDBFS        float64       `json:"peak_dbfs"`         // Loudest sample of the session
	ClippedSamples  int           `json:"clipped_samples"`   // Samples at or beyond the clip threshold
	Alerts          int           `json:"alerts"`            // Confirmed loud alerts
	AlertDurationMs int64         `json:"alert_duration_ms"` // Total time spent alerting
	Error           string        `json:"error,omitempty"`   // Terminal error that ended the session
}

// Session accumulates readings for one sampling session.
// It is safe for concurrent use.
type Session struct {
	mu sync.Mutex

	started  time.Time
	readings int
	loud     int
	sum      float64
	minScore float64
	maxScore float64
	peak     float64
	clipped  int
	alerts   int
	alertMs  int64
}

// NewSession starts an empty session.
func NewSession(started time.Time) *Session {
	return &Session{
		started:  started,
		minScore: math.Inf(1),
		maxScore: math.Inf(-1),
		peak:     audio.SilenceDBFS,
	}
}

// Add folds one reading into the session.
func (s *Session) Add(r types.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.readings++
	s.sum += r.Score
	s.minScore = min(s.minScore, r.Score)
	s.maxScore = max(s.maxScore, r.Score)
	s.peak = max(s.peak, r.Peak)
	s.clipped += r.Clipped
	if r.Loud {
		s.loud++
	}
}

// AddAlert records a finished loud alert.
func (s *Session) AddAlert(durationMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts++
	s.alertMs += durationMs
}

// Readings returns the number of readings folded in so far.
func (s *Session) Readings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readings
}

// Summary returns the statistics accumulated so far.
func (s *Session) Summary(ended time.Time) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		StartedAt:       s.started,
		EndedAt:         ended,
		DurationMs:      ended.Sub(s.started).Milliseconds(),
		Readings:        s.readings,
		PeakDBFS:        s.peak,
		ClippedSamples:  s.clipped,
		Alerts:          s.alerts,
		AlertDurationMs: s.alertMs,
	}
	if s.readings > 0 {
		sum.MinScore = s.minScore
		sum.MaxScore = s.maxScore
		sum.MeanScore = s.sum / float64(s.readings)
		sum.LoudFraction = float64(s.loud) / float64(s.readings)
	}
	return sum
}

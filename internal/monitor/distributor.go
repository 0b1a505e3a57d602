package monitor

import (
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-soundmeter/internal/audio"
	"github.com/oszuidwest/zwfm-soundmeter/internal/config"
	"github.com/oszuidwest/zwfm-soundmeter/internal/report"
	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

// LevelsCallback receives enriched levels from the distributor.
type LevelsCallback func(levels *types.MeterLevels)

// AlertHandler receives every loud detection result.
type AlertHandler func(event audio.LoudEvent)

// Distributor fans each reading out to peak hold, loud detection,
// notifications and the session report.
type Distributor struct {
	peakHolder *audio.PeakHolder
	loudDetect *audio.LoudDetector
	onAlert    AlertHandler
	config     *config.Config
	callback   LevelsCallback

	mu      sync.Mutex
	session *report.Session
}

// NewDistributor creates a new reading distributor.
func NewDistributor(peakHolder *audio.PeakHolder, loudDetect *audio.LoudDetector, onAlert AlertHandler, cfg *config.Config, callback LevelsCallback) *Distributor {
	return &Distributor{
		peakHolder: peakHolder,
		loudDetect: loudDetect,
		onAlert:    onAlert,
		config:     cfg,
		callback:   callback,
	}
}

// Begin resets detection state and starts accumulating into session.
func (d *Distributor) Begin(session *report.Session) {
	d.peakHolder.Reset()
	d.loudDetect.Reset()

	d.mu.Lock()
	d.session = session
	d.mu.Unlock()
}

// ProcessReading runs one published reading through the pipeline.
func (d *Distributor) ProcessReading(r types.Reading) {
	now := r.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	held := d.peakHolder.Update(r.Score, now)

	// Fresh config snapshot so threshold changes apply without a restart
	cfg := d.config.Snapshot()
	event := d.loudDetect.Update(r.Score, audio.LoudConfig{
		Threshold:  cfg.LoudThreshold,
		DurationMs: cfg.AlertDurationMs,
		RecoveryMs: cfg.AlertRecoveryMs,
	}, now)

	if d.onAlert != nil {
		d.onAlert(event)
	}

	d.mu.Lock()
	if d.session != nil {
		d.session.Add(r)
		if event.JustRecovered {
			d.session.AddAlert(event.TotalDurationMs)
		}
	}
	d.mu.Unlock()

	if d.callback != nil {
		d.callback(&types.MeterLevels{
			Reading:         r,
			HeldScore:       held,
			Alert:           event.InAlert,
			AlertDurationMs: event.DurationMs,
			AlertLevel:      event.Level,
		})
	}
}

// closeSession detaches the session, counting an alert that is still open.
func (d *Distributor) closeSession() *report.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.session
	d.session = nil
	if s != nil {
		if active, durationMs := d.loudDetect.Active(); active {
			s.AddAlert(durationMs)
		}
	}
	return s
}

// Package monitor ties the loudness meter to alerting, session reports
// and the event log.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oszuidwest/zwfm-soundmeter/internal/audio"
	"github.com/oszuidwest/zwfm-soundmeter/internal/config"
	"github.com/oszuidwest/zwfm-soundmeter/internal/events"
	"github.com/oszuidwest/zwfm-soundmeter/internal/meter"
	"github.com/oszuidwest/zwfm-soundmeter/internal/notify"
	"github.com/oszuidwest/zwfm-soundmeter/internal/report"
	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

// reportTimeout bounds saving and cleaning up one session report.
const reportTimeout = 5 * time.Minute

// Monitor runs the meter and reacts to what it measures.
type Monitor struct {
	config       *config.Config
	meter        *meter.Meter
	distributor  *Distributor
	loudNotifier *notify.LoudNotifier
	events       *events.Logger

	levels  atomic.Pointer[types.MeterLevels]
	reports sync.WaitGroup
}

// New creates an idle monitor. eventLog may be nil to disable the event log.
func New(cfg *config.Config, eventLog *events.Logger) *Monitor {
	snap := cfg.Snapshot()

	m := &Monitor{
		config:       cfg,
		loudNotifier: notify.NewLoudNotifier(cfg),
		events:       eventLog,
	}
	m.distributor = NewDistributor(
		audio.NewPeakHolder(),
		audio.NewLoudDetector(),
		m.handleLoudEvent,
		cfg,
		m.updateLevels,
	)
	m.meter = meter.New(m.newSource, meter.Options{
		BufferSize:     snap.BufferSize,
		Interval:       snap.Interval,
		Scale:          scaleFrom(&snap),
		OnSessionStart: m.onSessionStart,
		OnReading:      m.distributor.ProcessReading,
		OnSessionEnd:   m.onSessionEnd,
	})
	m.levels.Store(&types.MeterLevels{})
	return m
}

func scaleFrom(snap *config.Snapshot) audio.Scale {
	return audio.Scale{
		Offset:        snap.MeterOffset,
		Max:           snap.MeterMax,
		LoudThreshold: snap.LoudThreshold,
	}
}

// newSource builds a fresh source from the current configuration.
func (m *Monitor) newSource() (audio.Source, error) {
	snap := m.config.Snapshot()
	slog.Info("creating audio source", "backend", snap.Backend, "input", snap.AudioInput)
	return audio.NewSource(snap.Backend, audio.SourceOptions{
		Device:     snap.AudioInput,
		FFmpegPath: snap.FFmpegPath,
		BufferSize: snap.BufferSize,
		Variation:  snap.ToneVariation,
		Seed:       snap.ToneSeed,
	})
}

// Start begins sampling. It is a no-op while already sampling.
func (m *Monitor) Start() error {
	if err := m.meter.Start(); err != nil {
		snap := m.config.Snapshot()
		if logErr := m.events.LogMeter(events.MeterError, "start failed", events.MeterDetails{
			Backend: string(snap.Backend),
			Input:   snap.AudioInput,
			Error:   err.Error(),
		}); logErr != nil {
			slog.Warn("failed to log meter event", "error", logErr)
		}
		return err
	}
	return nil
}

// Stop ends sampling and waits for the source to be released.
func (m *Monitor) Stop() error {
	return m.meter.Stop()
}

// Shutdown stops sampling and waits for notifications and reports in flight.
func (m *Monitor) Shutdown() error {
	err := m.meter.Stop()
	m.loudNotifier.Wait()
	m.reports.Wait()
	return err
}

// IsSampling reports whether the meter is sampling.
func (m *Monitor) IsSampling() bool {
	return m.meter.IsSampling()
}

// Reading returns the latest published reading.
func (m *Monitor) Reading() types.Reading {
	return m.meter.Reading()
}

// Levels returns the latest reading enriched with peak hold and alert state.
func (m *Monitor) Levels() types.MeterLevels {
	levels := *m.levels.Load()
	levels.Reading = m.meter.Reading()
	if !m.meter.IsSampling() {
		levels.Alert = false
		levels.AlertDurationMs = 0
		levels.AlertLevel = ""
	}
	return levels
}

// Status returns the meter status including the configured backend.
func (m *Monitor) Status() types.MeterStatus {
	status := m.meter.Status()
	status.Backend = m.config.Snapshot().Backend
	return status
}

// ApplySettings pushes scale and interval changes to a running meter.
func (m *Monitor) ApplySettings() {
	snap := m.config.Snapshot()
	m.meter.SetScale(scaleFrom(&snap))
	m.meter.SetInterval(snap.Interval)
}

// InvalidateGraphClient drops the cached Graph client after a config change.
func (m *Monitor) InvalidateGraphClient() {
	m.loudNotifier.InvalidateGraphClient()
}

// EventLogPath returns the event log file path, or "" when disabled.
func (m *Monitor) EventLogPath() string {
	return m.events.Path()
}

// TriggerTestEmail sends a test email to verify configuration.
func (m *Monitor) TriggerTestEmail() error {
	cfg := m.config.Snapshot()
	return notify.SendTestEmail(notify.BuildGraphConfig(cfg), cfg.StationName)
}

// TriggerTestWebhook sends a test webhook to verify configuration.
func (m *Monitor) TriggerTestWebhook() error {
	cfg := m.config.Snapshot()
	return notify.SendTestWebhook(cfg.WebhookURL, cfg.StationName)
}

// TriggerTestLog writes a test entry to verify log file configuration.
func (m *Monitor) TriggerTestLog() error {
	return notify.WriteTestLog(m.config.Snapshot().LogPath)
}

// onSessionStart prepares per-session state before the first reading.
func (m *Monitor) onSessionStart(started time.Time) {
	m.ApplySettings()
	m.loudNotifier.Reset()
	m.distributor.Begin(report.NewSession(started))
	m.levels.Store(&types.MeterLevels{Reading: m.meter.Reading()})

	snap := m.config.Snapshot()
	if err := m.events.LogMeter(events.MeterStarted, "", events.MeterDetails{
		Backend: string(snap.Backend),
		Input:   snap.AudioInput,
	}); err != nil {
		slog.Warn("failed to log meter event", "error", err)
	}
}

// onSessionEnd logs the end of a session and hands its summary to the store.
func (m *Monitor) onSessionEnd(end meter.SessionEnd) {
	snap := m.config.Snapshot()

	eventType := events.MeterStopped
	details := events.MeterDetails{Backend: string(snap.Backend), Input: snap.AudioInput, Buffers: end.Buffers}
	if end.Err != nil {
		eventType = events.MeterError
		details.Error = end.Err.Error()
	}
	if err := m.events.LogMeter(eventType, "", details); err != nil {
		slog.Warn("failed to log meter event", "error", err)
	}

	session := m.distributor.closeSession()
	if session == nil || !snap.HasReports() {
		return
	}
	// Nothing worth reporting for a session stopped before its first fill.
	if session.Readings() == 0 && end.Err == nil {
		return
	}

	sum := session.Summary(end.Ended)
	sum.Station = snap.StationName
	sum.Backend = snap.Backend
	if end.Err != nil {
		sum.Error = end.Err.Error()
	}

	storeCfg := report.StoreConfig{
		Mode:          snap.ReportStorage,
		LocalPath:     snap.ReportLocalPath,
		S3:            snap.ReportS3,
		RetentionDays: snap.ReportRetentionDays,
	}
	m.reports.Go(func() {
		m.saveReport(&sum, storeCfg)
	})
}

// saveReport writes a session summary and applies retention.
func (m *Monitor) saveReport(sum *report.Summary, cfg report.StoreConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	store, err := report.NewStore(cfg)
	if err != nil {
		slog.Error("report storage unavailable", "error", err)
		m.logReport(events.ReportFailed, events.ReportDetails{Error: err.Error()})
		return
	}

	result, err := store.Save(ctx, sum)
	if err != nil {
		slog.Error("failed to save session report", "error", err)
		m.logReport(events.ReportFailed, events.ReportDetails{
			LocalPath: result.LocalPath,
			S3Key:     result.S3Key,
			Error:     err.Error(),
		})
	} else {
		slog.Info("session report saved", "local_path", result.LocalPath, "s3_key", result.S3Key)
		m.logReport(events.ReportSaved, events.ReportDetails{LocalPath: result.LocalPath, S3Key: result.S3Key})
	}

	deleted, err := store.Cleanup(ctx, time.Now())
	if err != nil {
		slog.Warn("report cleanup failed", "error", err)
	}
	if deleted > 0 {
		m.logReport(events.CleanupCompleted, events.ReportDetails{Deleted: deleted})
	}
}

func (m *Monitor) logReport(eventType events.EventType, details events.ReportDetails) {
	if err := m.events.LogReport(eventType, details); err != nil {
		slog.Warn("failed to log report event", "error", err)
	}
}

// handleLoudEvent forwards alert transitions to the notifier and event log.
func (m *Monitor) handleLoudEvent(event audio.LoudEvent) {
	m.loudNotifier.HandleEvent(event)

	if !event.JustEntered && !event.JustRecovered {
		return
	}
	threshold := m.config.Snapshot().LoudThreshold
	var err error
	if event.JustEntered {
		slog.Warn("loud environment detected", "score", event.Score, "threshold", threshold)
		err = m.events.LogLoud(events.LoudStart, event.Score, threshold, 0)
	} else {
		slog.Info("loud environment cleared", "score", event.Score, "duration_ms", event.TotalDurationMs)
		err = m.events.LogLoud(events.LoudEnd, event.Score, threshold, event.TotalDurationMs)
	}
	if err != nil {
		slog.Warn("failed to log loud event", "error", err)
	}
}

// updateLevels stores levels produced by the distributor.
func (m *Monitor) updateLevels(levels *types.MeterLevels) {
	m.levels.Store(levels)
}

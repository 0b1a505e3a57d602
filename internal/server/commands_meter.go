package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/oszuidwest/zwfm-soundmeter/internal/config"
	"github.com/oszuidwest/zwfm-soundmeter/internal/report"
	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

// s3TestTimeout bounds a reports/test-s3 connection probe.
const s3TestTimeout = 15 * time.Second

// --- Meter handlers ---

// handleMeterStart processes a meter/start command.
func (h *CommandHandler) handleMeterStart(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		if err := h.monitor.Start(); err != nil {
			slog.Error("meter/start: failed to start meter", "error", err)
			return nil, err
		}
		return h.monitor.Status(), nil
	})
}

// handleMeterStop processes a meter/stop command.
func (h *CommandHandler) handleMeterStop(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		if err := h.monitor.Stop(); err != nil {
			return nil, err
		}
		return h.monitor.Status(), nil
	})
}

// handleMeterGet processes a meter/get command.
func (h *CommandHandler) handleMeterGet(cmd WSCommand, send chan<- any) {
	SendSuccess(send, cmd.Type, h.monitor.Levels())
}

// --- Audio handlers ---

// handleAudioUpdate processes an audio/update command. A running meter is
// restarted so the next session uses the new source.
func (h *CommandHandler) handleAudioUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *AudioUpdateRequest) error {
		if req.Backend == "" && req.Input == nil {
			return nil // No change requested
		}

		if req.Backend != "" {
			slog.Info("audio/update: changing backend", "backend", req.Backend)
			if err := h.cfg.SetAudioBackend(types.Backend(req.Backend)); err != nil {
				return err
			}
		}
		if req.Input != nil {
			slog.Info("audio/update: changing audio input", "input", *req.Input)
			if err := h.cfg.SetAudioInput(*req.Input); err != nil {
				return err
			}
		}

		if h.monitor.IsSampling() {
			go func() {
				if err := h.monitor.Stop(); err != nil {
					slog.Error("audio/update: failed to stop meter", "error", err)
					return
				}
				if err := h.monitor.Start(); err != nil {
					slog.Error("audio/update: failed to restart meter", "error", err)
				}
			}()
		}
		return nil
	})
}

// --- Alert handlers ---

// handleAlertsUpdate processes an alerts/update command.
func (h *CommandHandler) handleAlertsUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *AlertsUpdateRequest) error {
		if err := ApplyAlertsUpdate(h.cfg, req); err != nil {
			return err
		}
		// Apply the new threshold to the running meter
		h.monitor.ApplySettings()
		return nil
	})
}

// ApplyAlertsUpdate saves the fields set in req to cfg.
func ApplyAlertsUpdate(cfg *config.Config, req *AlertsUpdateRequest) error {
	if req.LoudThreshold != nil {
		if err := cfg.SetLoudThreshold(*req.LoudThreshold); err != nil {
			return err
		}
	}
	if req.DurationMs != nil {
		if err := cfg.SetAlertDurationMs(*req.DurationMs); err != nil {
			return err
		}
	}
	if req.RecoveryMs != nil {
		if err := cfg.SetAlertRecoveryMs(*req.RecoveryMs); err != nil {
			return err
		}
	}
	return nil
}

// --- Report handlers ---

// handleTestReportS3 processes a reports/test-s3 command.
func (h *CommandHandler) handleTestReportS3(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *S3TestRequest) error {
		cfg := &types.S3Config{
			Endpoint:        req.Endpoint,
			Bucket:          req.Bucket,
			AccessKeyID:     req.AccessKey,
			SecretAccessKey: req.SecretKey,
		}

		runTest(send, "s3", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), s3TestTimeout)
			defer cancel()
			return report.TestS3Connection(ctx, cfg)
		})
		return nil
	})
}

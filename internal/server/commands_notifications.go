package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/oszuidwest/zwfm-soundmeter/internal/config"
	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

// testCommand builds a handler that runs one notification test off the
// reader goroutine and answers with a test_result.
func testCommand(testType string, trigger func(Monitor) error) commandFunc {
	return func(h *CommandHandler, _ WSCommand, send chan<- any) {
		runTest(send, testType, func() error { return trigger(h.monitor) })
	}
}

// runTest reports the outcome of fn as a test_result of testType.
func runTest(send chan<- any, testType string, fn func() error) {
	go func() {
		result := types.WSTestResult{Type: "test_result", TestType: testType}
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in test handler", "test", testType, "panic", r)
				result.Success, result.Error = false, "internal error"
			}
			SendData(send, result)
		}()

		if err := fn(); err != nil {
			slog.Warn("test failed", "test", testType, "error", err)
			result.Error = err.Error()
			return
		}
		slog.Info("test succeeded", "test", testType)
		result.Success = true
	}()
}

// handleViewAlertLog answers with the newest alert log entries.
func (h *CommandHandler) handleViewAlertLog(_ WSCommand, send chan<- any) {
	go func() {
		result := types.WSAlertLogResult{Type: "alert_log_result"}
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in alert log handler", "panic", r)
				result.Success, result.Error = false, "internal error"
			}
			SendData(send, result)
		}()

		path := h.cfg.LogPath()
		if path == "" {
			result.Error = "Log file path not configured"
			return
		}
		entries, err := readAlertLog(path, MaxLogEntries)
		if err != nil {
			result.Error = err.Error()
			return
		}
		result.Success, result.Path, result.Entries = true, path, entries
	}()
}

// readAlertLog reads the last N entries from the alert log file, newest first.
func readAlertLog(logPath string, maxEntries int) ([]types.AlertLogEntry, error) {
	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return []types.AlertLogEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	start := max(0, len(lines)-maxEntries)
	lines = lines[start:]

	entries := make([]types.AlertLogEntry, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		var entry types.AlertLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // Skip malformed entries
		}
		entries = append(entries, entry)
	}

	slices.Reverse(entries)
	return entries, nil
}

// handleWebhookUpdate processes a notifications/webhook/update command.
func (h *CommandHandler) handleWebhookUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *WebhookUpdateRequest) error {
		return h.cfg.SetWebhookURL(req.URL)
	})
}

// handleLogUpdate processes a notifications/log/update command.
func (h *CommandHandler) handleLogUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *LogUpdateRequest) error {
		return h.cfg.SetLogPath(req.Path)
	})
}

// handleEmailUpdate processes a notifications/email/update command.
func (h *CommandHandler) handleEmailUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *EmailUpdateRequest) error {
		if err := h.cfg.SetGraphConfig(
			req.TenantID,
			req.ClientID,
			req.ClientSecret,
			req.FromAddress,
			req.Recipients,
		); err != nil {
			return err
		}
		h.monitor.InvalidateGraphClient()
		return nil
	})
}

// handleRegenerateAPIKey processes an api/regenerate-key command.
func (h *CommandHandler) handleRegenerateAPIKey(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		newKey, err := config.GenerateAPIKey()
		if err != nil {
			return nil, err
		}

		if err := h.cfg.SetAPIKey(newKey); err != nil {
			return nil, err
		}

		slog.Info("API key regenerated")

		return map[string]string{"api_key": newKey}, nil
	})
}

package notify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
	"github.com/oszuidwest/zwfm-soundmeter/internal/util"
)

// Alert log event names.
const (
	LogEventLoudStart = "loud_start"
	LogEventLoudEnd   = "loud_end"
	LogEventTest      = "test"
)

// LogLoudStart records the beginning of a loud alert.
func LogLoudStart(logPath string, score, threshold float64) error {
	return appendLogEntry(logPath, &types.AlertLogEntry{
		Timestamp:   timestampUTC(),
		Event:       LogEventLoudStart,
		Score:       score,
		ThresholdDB: threshold,
	})
}

// LogLoudEnd records the end of a loud alert.
func LogLoudEnd(logPath string, durationMs int64, score, threshold float64) error {
	return appendLogEntry(logPath, &types.AlertLogEntry{
		Timestamp:   timestampUTC(),
		Event:       LogEventLoudEnd,
		DurationMs:  durationMs,
		Score:       score,
		ThresholdDB: threshold,
	})
}

// WriteTestLog writes a test log entry.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return fmt.Errorf("log file path not configured")
	}

	return appendLogEntry(logPath, &types.AlertLogEntry{
		Timestamp: timestampUTC(),
		Event:     LogEventTest,
	})
}

// appendLogEntry appends a log entry to the file as one JSON line.
func appendLogEntry(logPath string, entry *types.AlertLogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	if _, err := f.Write(append(jsonData, '\n')); err != nil {
		return util.WrapError("write log entry", err)
	}

	return nil
}

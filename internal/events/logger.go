// Package events records meter lifecycle, loud alerts and report storage
// in a single JSON lines file.
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// EventType represents the type of event.
type EventType string

// Meter event types.
const (
	MeterStarted EventType = "meter_started"
	MeterStopped EventType = "meter_stopped"
	MeterError   EventType = "meter_error"
)

// Loud alert event types.
const (
	LoudStart EventType = "loud_start"
	LoudEnd   EventType = "loud_end"
)

// Report event types.
const (
	ReportSaved      EventType = "report_saved"
	ReportFailed     EventType = "report_failed"
	CleanupCompleted EventType = "cleanup_completed"
)

// Rotation limits for the event log file.
const (
	maxLogSizeMB  = 10
	maxLogBackups = 5
	maxLogAgeDays = 90
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// MeterDetails contains meter session details.
type MeterDetails struct {
	Backend string `json:"backend,omitempty"`
	Input   string `json:"input,omitempty"`
	Buffers int    `json:"buffers,omitempty"`
	Error   string `json:"error,omitempty"`
}

// LoudDetails contains loud alert details.
type LoudDetails struct {
	Score      float64 `json:"score"`
	Threshold  float64 `json:"threshold"`
	DurationMs int64   `json:"duration_ms,omitempty"`
}

// ReportDetails contains report storage details.
type ReportDetails struct {
	LocalPath string `json:"local_path,omitempty"`
	S3Key     string `json:"s3_key,omitempty"`
	Deleted   int    `json:"deleted,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Logger writes events to a JSON lines file that rotates by size.
// A nil *Logger discards events.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *lumberjack.Logger
	encoder  *json.Encoder
}

// DefaultLogPath returns the platform-specific log file path.
func DefaultLogPath(port int) string {
	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, "soundmeter", "logs", strconv.Itoa(port), "soundmeter.jsonl")
	default: // linux, darwin
		//nolint:gocritic // Intentional absolute path for Unix systems
		return filepath.Join("/var/log/soundmeter", strconv.Itoa(port), "soundmeter.jsonl")
	}
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	// lumberjack opens lazily; fail here rather than on the first event.
	probe, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	if err := probe.Close(); err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
		Compress:   true,
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file.
func (l *Logger) Log(event *Event) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return os.ErrClosed
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	return l.encoder.Encode(event)
}

// LogMeter writes a meter lifecycle event.
func (l *Logger) LogMeter(eventType EventType, message string, details MeterDetails) error {
	return l.Log(&Event{Type: eventType, Message: message, Details: &details})
}

// LogLoud writes a loud alert event.
func (l *Logger) LogLoud(eventType EventType, score, threshold float64, durationMs int64) error {
	return l.Log(&Event{Type: eventType, Details: &LoudDetails{
		Score:      score,
		Threshold:  threshold,
		DurationMs: durationMs,
	}})
}

// LogReport writes a report storage event.
func (l *Logger) LogReport(eventType EventType, details ReportDetails) error {
	return l.Log(&Event{Type: eventType, Details: &details})
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.filePath
}

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll    TypeFilter = ""
	FilterMeter  TypeFilter = "meter"
	FilterLoud   TypeFilter = "loud"
	FilterReport TypeFilter = "report"
)

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// Matches reports whether t passes the filter.
func (f TypeFilter) Matches(t EventType) bool {
	switch f {
	case FilterMeter:
		return t == MeterStarted || t == MeterStopped || t == MeterError
	case FilterLoud:
		return t == LoudStart || t == LoudEnd
	case FilterReport:
		return t == ReportSaved || t == ReportFailed || t == CleanupCompleted
	default:
		return true
	}
}

// ReadLast returns up to n events after skipping offset matching events,
// newest first, and whether older matching events remain.
// n is capped at MaxReadLimit.
func ReadLast(filePath string, n, offset int, filter TypeFilter) ([]Event, bool, error) {
	n = min(n, MaxReadLimit)
	if n <= 0 {
		return []Event{}, false, nil
	}
	offset = max(offset, 0)

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	var lines [][]byte
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	events := make([]Event, 0, n)
	matched := 0
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal(lines[i], &event); err != nil {
			continue // Skip malformed lines
		}
		if !filter.Matches(event.Type) {
			continue
		}

		matched++
		if matched <= offset {
			continue
		}
		if len(events) == n {
			return events, true, nil
		}
		events = append(events, event)
	}

	return events, false, nil
}

// Package types provides shared type definitions used across the sound meter.
package types

import (
	"time"
)

// MeterState represents the current state of the loudness meter.
type MeterState string

const (
	// StateIdle indicates no audio source is acquired and nothing is sampled.
	StateIdle MeterState = "idle"
	// StateSampling indicates the sampling loop is running against a live source.
	StateSampling MeterState = "sampling"
)

// Timing constants for the sampling loop and process shutdown.
const (
	// ShutdownTimeout is the duration to wait for graceful shutdown.
	ShutdownTimeout = 3000 * time.Millisecond
	// DefaultUpdateInterval is the delay between sampling loop iterations.
	DefaultUpdateInterval = 50 * time.Millisecond
)

// Audio format constants for PCM capture and synthesis.
const (
	// SampleRate is the audio sample rate in Hz.
	SampleRate = 44100
	// Channels is the number of audio channels (mono).
	Channels = 1
	// DefaultBufferSize is the number of samples read per loop iteration.
	DefaultBufferSize = 1024
	// ToneFrequency is the frequency of the synthetic test tone in Hz.
	ToneFrequency = 440.0
)

// Backend selects where audio samples come from.
type Backend string

// Supported audio backends.
const (
	BackendTone      Backend = "tone"      // Synthetic 440 Hz generator
	BackendCapture   Backend = "capture"   // arecord/FFmpeg capture process
	BackendPortAudio Backend = "portaudio" // Native PortAudio stream
)

// StorageMode determines where session reports are saved.
type StorageMode string

// Supported storage modes.
const (
	StorageNone  StorageMode = ""      // Reports disabled
	StorageLocal StorageMode = "local" // Save only to local filesystem
	StorageS3    StorageMode = "s3"    // Upload only to S3
	StorageBoth  StorageMode = "both"  // Save locally AND upload to S3
)

// DefaultRetentionDays is the default number of days to keep session reports.
const DefaultRetentionDays = 30

// Reading is the latest published loudness measurement.
type Reading struct {
	Score     float64   `json:"score"`              // Shifted and clamped dB score
	Loud      bool      `json:"loud"`               // Score strictly above the loud threshold
	Bar       float64   `json:"bar"`                // Bar height fraction in [0,1]
	DBFS      float64   `json:"dbfs"`               // Unshifted dBFS value
	Peak      float64   `json:"peak"`               // Peak sample magnitude in dBFS
	Clipped   int       `json:"clipped,omitzero"`   // Samples at or beyond clip threshold
	Samples   int       `json:"samples"`            // Samples the reading was computed from
	Timestamp time.Time `json:"timestamp,omitzero"` // When the reading was published
}

// AlertLevel represents the loud-environment alert state.
type AlertLevel string

// AlertLevelActive indicates a loud environment is confirmed.
const AlertLevelActive AlertLevel = "active"

// MeterLevels is the reading enriched with peak hold and alert state for the UI.
type MeterLevels struct {
	Reading
	HeldScore       float64    `json:"held_score"`                 // Highest score within the hold window
	Alert           bool       `json:"alert,omitzero"`             // Loud alert is confirmed
	AlertDurationMs int64      `json:"alert_duration_ms,omitzero"` // How long the alert has lasted
	AlertLevel      AlertLevel `json:"alert_level,omitzero"`       // "active" when alerting
}

// MeterStatus contains a summary of the meter's current operational state.
type MeterStatus struct {
	State     MeterState `json:"state"`               // Current meter state
	Backend   Backend    `json:"backend"`             // Configured audio backend
	Uptime    string     `json:"uptime,omitzero"`     // Time since sampling started
	LastError string     `json:"last_error,omitzero"` // Most recent terminal error
	Sessions  int        `json:"sessions"`            // Completed sessions since boot
}

// WSStatusResponse is sent to clients with full meter status.
type WSStatusResponse struct {
	Type             string      `json:"type"`              // Message type identifier
	FFmpegAvailable  bool        `json:"ffmpeg_available"`  // FFmpeg binary is available
	Meter            MeterStatus `json:"meter"`             // Meter status
	Devices          []Device    `json:"devices"`           // Available audio devices
	LoudThreshold    float64     `json:"loud_threshold"`    // Loud threshold on the score scale
	ScaleMax         float64     `json:"scale_max"`         // Upper bound of the score scale
	AlertDurationMs  int64       `json:"alert_duration_ms"` // Loud duration before alerting
	AlertRecoveryMs  int64       `json:"alert_recovery_ms"` // Quiet duration before recovery
	Webhook          string      `json:"webhook"`           // Webhook URL for alerts
	LogPath          string      `json:"log_path"`          // Alert log file path
	GraphTenantID    string      `json:"graph_tenant_id"`   // Azure AD tenant ID
	GraphClientID    string      `json:"graph_client_id"`   // App registration client ID
	GraphFromAddress string      `json:"graph_from_address"`
	GraphRecipients  string      `json:"graph_recipients"`
	Settings         WSSettings  `json:"settings"` // Current settings
	Version          VersionInfo `json:"version"`  // Version information
}

// WSSettings contains the settings sub-object in status responses.
type WSSettings struct {
	Backend    Backend `json:"backend"`     // Selected audio backend
	AudioInput string  `json:"audio_input"` // Selected audio input device
	Platform   string  `json:"platform"`    // Operating system platform
}

// WSLevelsResponse is sent to clients with meter level updates.
type WSLevelsResponse struct {
	Type   string      `json:"type"`   // Message type identifier
	Levels MeterLevels `json:"levels"` // Current meter levels
}

// AlertLogEntry represents a single entry in the loud alert log.
type AlertLogEntry struct {
	Timestamp   string  `json:"timestamp"`             // RFC3339 timestamp
	Event       string  `json:"event"`                 // loud_start, loud_end or test
	DurationMs  int64   `json:"duration_ms,omitempty"` // Alert duration (loud_end only)
	Score       float64 `json:"score,omitempty"`       // Score at the time of the event
	ThresholdDB float64 `json:"threshold"`             // Loud threshold on the score scale
}

// Device represents an available audio input device.
type Device struct {
	ID   string `json:"id"`   // Device identifier
	Name string `json:"name"` // Device display name
}

// GraphConfig contains Microsoft Graph API settings for email notifications.
type GraphConfig struct {
	TenantID     string `json:"tenant_id,omitempty"`     // Azure AD tenant ID
	ClientID     string `json:"client_id,omitempty"`     // App registration client ID
	ClientSecret string `json:"client_secret,omitempty"` // App registration client secret
	FromAddress  string `json:"from_address,omitempty"`  // Shared mailbox address (sender)
	Recipients   string `json:"recipients,omitempty"`    // Comma-separated recipients
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint        string `json:"endpoint,omitempty"`          // Custom S3 endpoint (empty for AWS)
	Bucket          string `json:"bucket,omitempty"`            // S3 bucket name
	AccessKeyID     string `json:"access_key_id,omitempty"`     // Access key ID
	SecretAccessKey string `json:"secret_access_key,omitempty"` // Secret access key
}

// IsConfigured reports whether the S3 settings are complete.
func (c *S3Config) IsConfigured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}

// Package config provides application configuration management.
package config

import (
	"cmp"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
	"github.com/oszuidwest/zwfm-soundmeter/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort           = 8080
	DefaultWebUsername       = "admin"
	DefaultWebPassword       = "soundmeter"
	DefaultStationName       = "ZuidWest FM"
	DefaultStationColorLight = "#E6007E"
	DefaultStationColorDark  = "#E6007E"
	DefaultBackend           = types.BackendTone
	DefaultIntervalMs        = 50
	DefaultMeterOffset       = 60.0
	DefaultMeterMax          = 60.0
	DefaultLoudThreshold     = 50.0
	DefaultAlertDurationMs   = 5000 // 5 seconds in milliseconds
	DefaultAlertRecoveryMs   = 3000 // 3 seconds in milliseconds
)

// Limits for audio loop tuning.
const (
	MinBufferSize = 64
	MaxBufferSize = 65536
	MinIntervalMs = 10
	MaxIntervalMs = 10000
)

// Validation patterns define regular expressions for configuration value validation.
var (
	// Station name: any printable characters except control chars (blocks CRLF injection in emails)
	stationNamePattern  = regexp.MustCompile(`^[^\x00-\x1F\x7F]+$`)
	stationColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	FFmpegPath string `json:"ffmpeg_path"` // Path to FFmpeg binary (empty = use PATH)
	Port       int    `json:"port"`        // HTTP server port
	Username   string `json:"username"`    // Login username
	Password   string `json:"password"`    // Login password
	APIKey     string `json:"api_key"`     // Key for the REST API (X-API-Key header)
}

// WebConfig holds station branding settings.
type WebConfig struct {
	StationName string `json:"station_name"` // Station display name
	ColorLight  string `json:"color_light"`  // Theme color for light mode (#RRGGBB)
	ColorDark   string `json:"color_dark"`   // Theme color for dark mode (#RRGGBB)
}

// AudioConfig holds audio source and sampling loop settings.
type AudioConfig struct {
	Backend    types.Backend `json:"backend"`     // tone, capture or portaudio
	Input      string        `json:"input"`       // Capture device identifier
	BufferSize int           `json:"buffer_size"` // Samples per buffer
	IntervalMs int64         `json:"interval_ms"` // Delay between buffers
	Variation  bool          `json:"variation"`   // Add noise and random amplitude to the tone
	Seed       uint64        `json:"seed"`        // Tone random seed (0 = random)
}

// MeterConfig holds the score scale.
type MeterConfig struct {
	Offset        *float64 `json:"offset,omitempty"` // Added to dBFS before clamping (nil = default)
	Max           float64  `json:"max"`              // Upper bound of the score
	LoudThreshold float64  `json:"loud_threshold"`   // Scores strictly above this are loud
}

// AlertsConfig holds loud environment alert timing.
type AlertsConfig struct {
	DurationMs int64 `json:"duration_ms"` // Loud time before alerting
	RecoveryMs int64 `json:"recovery_ms"` // Quiet time before recovery
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url"` // Webhook URL for loud alerts
}

// LogConfig holds log file notification settings.
type LogConfig struct {
	Path string `json:"path"` // Log file path for loud alerts
}

// EmailConfig holds Microsoft Graph email notification settings.
type EmailConfig struct {
	TenantID     string `json:"tenant_id"`     // Azure AD tenant ID
	ClientID     string `json:"client_id"`     // App registration client ID
	ClientSecret string `json:"client_secret"` // App registration client secret
	FromAddress  string `json:"from_address"`  // Shared mailbox sender address
	Recipients   string `json:"recipients"`    // Comma-separated recipient addresses
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig `json:"webhook"` // Webhook settings
	Log     LogConfig     `json:"log"`     // Log file settings
	Email   EmailConfig   `json:"email"`   // Email settings
}

// ReportsConfig holds session report storage settings.
type ReportsConfig struct {
	Storage       types.StorageMode `json:"storage"`        // "", local, s3 or both
	LocalPath     string            `json:"local_path"`     // Directory for local reports
	S3            types.S3Config    `json:"s3"`             // S3 destination
	RetentionDays int               `json:"retention_days"` // Days to keep reports
}

// EventsConfig holds the meter event log settings.
type EventsConfig struct {
	LogPath string `json:"log_path"` // JSON-lines event log (empty = platform default)
}

// Config is the settings file bound to its path. It is safe for
// concurrent use; every setter validates and persists before returning.
type Config struct {
	Settings

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	c := &Config{filePath: filePath}
	c.applyDefaults()
	return c
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, &c.Settings); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	if err := c.validate(); err != nil {
		return err
	}

	return nil
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	v := types.NewValidationError()

	name := c.Web.StationName
	if name == "" || len(name) > 30 || !stationNamePattern.MatchString(name) {
		v.Add("web.station_name", "must be 1-30 printable characters", name)
	}
	if !stationColorPattern.MatchString(c.Web.ColorLight) {
		v.Add("web.color_light", "must be hex format (#RRGGBB)", c.Web.ColorLight)
	}
	if !stationColorPattern.MatchString(c.Web.ColorDark) {
		v.Add("web.color_dark", "must be hex format (#RRGGBB)", c.Web.ColorDark)
	}

	if !slices.Contains([]types.Backend{types.BackendTone, types.BackendCapture, types.BackendPortAudio}, c.Audio.Backend) {
		v.Add("audio.backend", "must be tone, capture or portaudio", c.Audio.Backend)
	}
	if c.Audio.BufferSize < MinBufferSize || c.Audio.BufferSize > MaxBufferSize {
		v.Add("audio.buffer_size", fmt.Sprintf("must be between %d and %d", MinBufferSize, MaxBufferSize), c.Audio.BufferSize)
	}
	if c.Audio.IntervalMs < MinIntervalMs || c.Audio.IntervalMs > MaxIntervalMs {
		v.Add("audio.interval_ms", fmt.Sprintf("must be between %d and %d", MinIntervalMs, MaxIntervalMs), c.Audio.IntervalMs)
	}

	if c.Meter.Max <= 0 {
		v.Add("meter.max", "must be positive", c.Meter.Max)
	}
	if c.Meter.LoudThreshold < 0 || c.Meter.LoudThreshold > c.Meter.Max {
		v.Add("meter.loud_threshold", "must be between 0 and meter.max", c.Meter.LoudThreshold)
	}

	if c.Alerts.DurationMs < 0 {
		v.Add("alerts.duration_ms", "must not be negative", c.Alerts.DurationMs)
	}
	if c.Alerts.RecoveryMs < 0 {
		v.Add("alerts.recovery_ms", "must not be negative", c.Alerts.RecoveryMs)
	}

	switch c.Reports.Storage {
	case types.StorageNone:
	case types.StorageLocal, types.StorageS3, types.StorageBoth:
		if c.Reports.Storage != types.StorageS3 {
			if err := util.ValidatePath("reports.local_path", c.Reports.LocalPath); err != nil {
				v.Add("reports.local_path", "must be a valid directory for local storage", c.Reports.LocalPath)
			}
		}
		if c.Reports.Storage != types.StorageLocal && !c.Reports.S3.IsConfigured() {
			v.Add("reports.s3", "bucket and credentials are required for S3 storage", c.Reports.S3.Bucket)
		}
	default:
		v.Add("reports.storage", "must be empty, local, s3 or both", c.Reports.Storage)
	}
	if c.Reports.RetentionDays < 1 {
		v.Add("reports.retention_days", "must be at least 1", c.Reports.RetentionDays)
	}

	if v.HasErrors() {
		return v
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	// System defaults
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	if c.System.Username == "" {
		c.System.Username = DefaultWebUsername
	}
	if c.System.Password == "" {
		c.System.Password = DefaultWebPassword
	}
	// Web defaults
	if c.Web.StationName == "" {
		c.Web.StationName = DefaultStationName
	}
	if c.Web.ColorLight == "" {
		c.Web.ColorLight = DefaultStationColorLight
	}
	if c.Web.ColorDark == "" {
		c.Web.ColorDark = DefaultStationColorDark
	}
	// Audio defaults
	c.Audio.Backend = cmp.Or(c.Audio.Backend, DefaultBackend)
	c.Audio.BufferSize = cmp.Or(c.Audio.BufferSize, types.DefaultBufferSize)
	c.Audio.IntervalMs = cmp.Or(c.Audio.IntervalMs, DefaultIntervalMs)
	// Meter defaults
	if c.Meter.Offset == nil {
		offset := DefaultMeterOffset
		c.Meter.Offset = &offset
	}
	c.Meter.Max = cmp.Or(c.Meter.Max, DefaultMeterMax)
	c.Meter.LoudThreshold = cmp.Or(c.Meter.LoudThreshold, DefaultLoudThreshold)
	// Alert defaults
	c.Alerts.DurationMs = cmp.Or(c.Alerts.DurationMs, DefaultAlertDurationMs)
	c.Alerts.RecoveryMs = cmp.Or(c.Alerts.RecoveryMs, DefaultAlertRecoveryMs)
	// Report defaults
	c.Reports.RetentionDays = cmp.Or(c.Reports.RetentionDays, types.DefaultRetentionDays)
}

// meterOffset returns the configured offset. Zero is a valid setting.
func (c *Config) meterOffset() float64 {
	if c.Meter.Offset == nil {
		return DefaultMeterOffset
	}
	return *c.Meter.Offset
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(&c.Settings, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// Settings is the on-disk configuration document.
type Settings struct {
	System        SystemConfig        `json:"system"`
	Web           WebConfig           `json:"web"`
	Audio         AudioConfig         `json:"audio"`
	Meter         MeterConfig         `json:"meter"`
	Alerts        AlertsConfig        `json:"alerts"`
	Notifications NotificationsConfig `json:"notifications"`
	Reports       ReportsConfig       `json:"reports"`
	Events        EventsConfig        `json:"events"`
}

// redactedValue replaces secrets in Redacted output.
const redactedValue = "********"

// Redacted returns a copy of the settings with passwords and keys masked.
func (c *Config) Redacted() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.Settings
	mask := func(v *string) {
		if *v != "" {
			*v = redactedValue
		}
	}
	mask(&s.System.Password)
	mask(&s.System.APIKey)
	mask(&s.Notifications.Email.ClientSecret)
	mask(&s.Reports.S3.SecretAccessKey)
	return s
}

// --- Getters for individual settings ---

// AudioInput returns the configured audio input device.
func (c *Config) AudioInput() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Audio.Input
}

// GetFFmpegPath returns the configured FFmpeg binary path.
func (c *Config) GetFFmpegPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.System.FFmpegPath
}

// LogPath returns the configured log file path for notifications.
func (c *Config) LogPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Notifications.Log.Path
}

// GraphConfig returns a copy of the current Graph/Email configuration.
func (c *Config) GraphConfig() types.GraphConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.GraphConfig{
		TenantID:     c.Notifications.Email.TenantID,
		ClientID:     c.Notifications.Email.ClientID,
		ClientSecret: c.Notifications.Email.ClientSecret,
		FromAddress:  c.Notifications.Email.FromAddress,
		Recipients:   c.Notifications.Email.Recipients,
	}
}

// GetAPIKey returns the API key for REST endpoints.
func (c *Config) GetAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.System.APIKey
}

// --- Setters for individual settings ---

// update applies change under the write lock, then validates and saves.
// On any failure the previous settings are restored.
func (c *Config) update(change func(s *Settings)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.Settings
	change(&c.Settings)
	if err := c.validate(); err != nil {
		c.Settings = prev
		return err
	}
	if err := c.saveLocked(); err != nil {
		c.Settings = prev
		return err
	}
	return nil
}

// SetAudioInput selects the capture device for the next session.
func (c *Config) SetAudioInput(input string) error {
	return c.update(func(s *Settings) { s.Audio.Input = input })
}

// SetAudioBackend selects the sample source for the next session.
func (c *Config) SetAudioBackend(backend types.Backend) error {
	return c.update(func(s *Settings) { s.Audio.Backend = backend })
}

// SetLoudThreshold sets the score above which the room counts as loud.
// It must lie within the meter scale.
func (c *Config) SetLoudThreshold(threshold float64) error {
	return c.update(func(s *Settings) { s.Meter.LoudThreshold = threshold })
}

// SetAlertDurationMs sets how long it must stay loud before alerting.
func (c *Config) SetAlertDurationMs(ms int64) error {
	return c.update(func(s *Settings) { s.Alerts.DurationMs = ms })
}

// SetAlertRecoveryMs sets how long it must stay quiet before recovery.
func (c *Config) SetAlertRecoveryMs(ms int64) error {
	return c.update(func(s *Settings) { s.Alerts.RecoveryMs = ms })
}

func (c *Config) SetWebhookURL(url string) error {
	return c.update(func(s *Settings) { s.Notifications.Webhook.URL = url })
}

func (c *Config) SetLogPath(path string) error {
	return c.update(func(s *Settings) { s.Notifications.Log.Path = path })
}

// SetGraphConfig replaces the Microsoft Graph email settings as a whole.
func (c *Config) SetGraphConfig(tenantID, clientID, clientSecret, fromAddress, recipients string) error {
	return c.update(func(s *Settings) {
		s.Notifications.Email = EmailConfig{
			TenantID:     tenantID,
			ClientID:     clientID,
			ClientSecret: clientSecret,
			FromAddress:  fromAddress,
			Recipients:   recipients,
		}
	})
}

// SetAPIKey sets the X-API-Key secret for the REST API.
func (c *Config) SetAPIKey(key string) error {
	return c.update(func(s *Settings) { s.System.APIKey = key })
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	WebPort     int
	WebUser     string
	WebPassword string
	APIKey      string
	FFmpegPath  string

	// Web/Branding
	StationName       string
	StationColorLight string
	StationColorDark  string

	// Audio
	Backend       types.Backend
	AudioInput    string
	BufferSize    int
	Interval      time.Duration
	ToneVariation bool
	ToneSeed      uint64

	// Meter
	MeterOffset   float64
	MeterMax      float64
	LoudThreshold float64

	// Alerts
	AlertDurationMs int64
	AlertRecoveryMs int64

	// Notifications
	WebhookURL        string
	LogPath           string
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphFromAddress  string
	GraphRecipients   string

	// Reports
	ReportStorage       types.StorageMode
	ReportLocalPath     string
	ReportS3            types.S3Config
	ReportRetentionDays int

	// Events
	EventsLogPath string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		// System
		WebPort:     c.System.Port,
		WebUser:     c.System.Username,
		WebPassword: c.System.Password,
		APIKey:      c.System.APIKey,
		FFmpegPath:  c.System.FFmpegPath,

		// Web/Branding
		StationName:       c.Web.StationName,
		StationColorLight: c.Web.ColorLight,
		StationColorDark:  c.Web.ColorDark,

		// Audio (with defaults)
		Backend:       cmp.Or(c.Audio.Backend, DefaultBackend),
		AudioInput:    c.Audio.Input,
		BufferSize:    cmp.Or(c.Audio.BufferSize, types.DefaultBufferSize),
		Interval:      time.Duration(cmp.Or(c.Audio.IntervalMs, DefaultIntervalMs)) * time.Millisecond,
		ToneVariation: c.Audio.Variation,
		ToneSeed:      c.Audio.Seed,

		// Meter
		MeterOffset:   c.meterOffset(),
		MeterMax:      cmp.Or(c.Meter.Max, DefaultMeterMax),
		LoudThreshold: cmp.Or(c.Meter.LoudThreshold, DefaultLoudThreshold),

		// Alerts
		AlertDurationMs: cmp.Or(c.Alerts.DurationMs, DefaultAlertDurationMs),
		AlertRecoveryMs: cmp.Or(c.Alerts.RecoveryMs, DefaultAlertRecoveryMs),

		// Notifications
		WebhookURL:        c.Notifications.Webhook.URL,
		LogPath:           c.Notifications.Log.Path,
		GraphTenantID:     c.Notifications.Email.TenantID,
		GraphClientID:     c.Notifications.Email.ClientID,
		GraphClientSecret: c.Notifications.Email.ClientSecret,
		GraphFromAddress:  c.Notifications.Email.FromAddress,
		GraphRecipients:   c.Notifications.Email.Recipients,

		// Reports
		ReportStorage:       c.Reports.Storage,
		ReportLocalPath:     c.Reports.LocalPath,
		ReportS3:            c.Reports.S3,
		ReportRetentionDays: cmp.Or(c.Reports.RetentionDays, types.DefaultRetentionDays),

		// Events
		EventsLogPath: c.Events.LogPath,
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasGraph reports whether Microsoft Graph email notifications are configured.
func (s *Snapshot) HasGraph() bool {
	return s.GraphTenantID != "" && s.GraphClientID != "" && s.GraphClientSecret != "" &&
		s.GraphFromAddress != "" && s.GraphRecipients != ""
}

// HasLogPath reports whether a log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}

// HasReports reports whether session reports are stored anywhere.
func (s *Snapshot) HasReports() bool {
	return s.ReportStorage != types.StorageNone
}

// --- Utility functions ---

// GenerateAPIKey generates a new random 32-character alphanumeric API key.
func GenerateAPIKey() (string, error) {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 32
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		result[i] = chars[n.Int64()]
	}
	return string(result), nil
}

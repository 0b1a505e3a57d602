package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

func writeConfig(t *testing.T, v any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	snap := cfg.Snapshot()
	if snap.WebPort != DefaultWebPort || snap.Backend != types.BackendTone {
		t.Errorf("unexpected defaults: port %d, backend %q", snap.WebPort, snap.Backend)
	}
	if snap.BufferSize != 1024 || snap.Interval != 50*time.Millisecond {
		t.Errorf("audio defaults = %d samples, %v", snap.BufferSize, snap.Interval)
	}
	if snap.MeterOffset != 60 || snap.MeterMax != 60 || snap.LoudThreshold != 50 {
		t.Errorf("meter defaults = %v/%v/%v", snap.MeterOffset, snap.MeterMax, snap.LoudThreshold)
	}
	if snap.HasReports() {
		t.Error("reports should be disabled by default")
	}
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"audio": map[string]any{"backend": "capture", "input": "plughw:CARD=USB"},
	})
	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap := cfg.Snapshot()
	if snap.Backend != types.BackendCapture || snap.AudioInput != "plughw:CARD=USB" {
		t.Errorf("audio = %q/%q", snap.Backend, snap.AudioInput)
	}
	if snap.StationName != DefaultStationName || snap.AlertDurationMs != DefaultAlertDurationMs {
		t.Errorf("defaults not applied: %q, %d", snap.StationName, snap.AlertDurationMs)
	}
}

func TestZeroMeterOffsetIsKept(t *testing.T) {
	path := writeConfig(t, map[string]any{"meter": map[string]any{"offset": 0}})
	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Snapshot().MeterOffset; got != 0 {
		t.Fatalf("offset = %v, want 0", got)
	}

	// A save must write the zero back rather than drop it.
	if err := cfg.SetLoudThreshold(40); err != nil {
		t.Fatalf("SetLoudThreshold: %v", err)
	}
	reloaded := New(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.Snapshot().MeterOffset; got != 0 {
		t.Errorf("offset after reload = %v, want 0", got)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name  string
		cfg   map[string]any
		field string
	}{
		{"bad color", map[string]any{"web": map[string]any{"color_light": "red"}}, "web.color_light"},
		{"unknown backend", map[string]any{"audio": map[string]any{"backend": "jack"}}, "audio.backend"},
		{"tiny buffer", map[string]any{"audio": map[string]any{"buffer_size": 8}}, "audio.buffer_size"},
		{"slow interval", map[string]any{"audio": map[string]any{"interval_ms": 60000}}, "audio.interval_ms"},
		{"threshold above max", map[string]any{"meter": map[string]any{"loud_threshold": 90}}, "meter.loud_threshold"},
		{"s3 without bucket", map[string]any{"reports": map[string]any{"storage": "s3"}}, "reports.s3"},
		{"local without path", map[string]any{"reports": map[string]any{"storage": "local"}}, "reports.local_path"},
		{"unknown storage", map[string]any{"reports": map[string]any{"storage": "ftp"}}, "reports.storage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(writeConfig(t, tt.cfg)).Load()
			var verr *types.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Load = %v, want ValidationError", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for %s in %v", tt.field, verr)
			}
		})
	}
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := New(path).Load(); err == nil {
		t.Error("expected parse error")
	}
}

func TestSettersPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatal(err)
	}

	if err := cfg.SetLoudThreshold(42); err != nil {
		t.Fatal(err)
	}
	if err := cfg.SetAlertDurationMs(1500); err != nil {
		t.Fatal(err)
	}
	if err := cfg.SetWebhookURL("https://example.com/hook"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.SetAudioBackend(types.BackendCapture); err != nil {
		t.Fatal(err)
	}

	reloaded := New(path)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	snap := reloaded.Snapshot()
	if snap.LoudThreshold != 42 || snap.AlertDurationMs != 1500 || snap.WebhookURL != "https://example.com/hook" || snap.Backend != types.BackendCapture {
		t.Errorf("settings not persisted: %+v", snap)
	}
}

func TestSetLoudThresholdRange(t *testing.T) {
	cfg := New(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.SetLoudThreshold(61); err == nil {
		t.Error("threshold above max accepted")
	}
	if err := cfg.SetLoudThreshold(-1); err == nil {
		t.Error("negative threshold accepted")
	}
	if got := cfg.Snapshot().LoudThreshold; got != DefaultLoudThreshold {
		t.Errorf("rejected update left threshold at %v", got)
	}
}

func TestRejectedUpdateIsNotSaved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatal(err)
	}

	var verr *types.ValidationError
	if err := cfg.SetAudioBackend("speaker"); !errors.As(err, &verr) || verr.Errors[0].Field != "audio.backend" {
		t.Fatalf("err = %v, want audio.backend validation error", err)
	}

	reloaded := New(path)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	if got := reloaded.Snapshot().Backend; got != DefaultBackend {
		t.Errorf("backend on disk = %q, want %q", got, DefaultBackend)
	}
}

func TestSnapshotHelpers(t *testing.T) {
	snap := Snapshot{WebhookURL: "https://x", LogPath: "/tmp/a.log"}
	if !snap.HasWebhook() || !snap.HasLogPath() || snap.HasGraph() {
		t.Errorf("helpers wrong for %+v", snap)
	}
	snap.GraphTenantID, snap.GraphClientID, snap.GraphClientSecret = "t", "c", "s"
	snap.GraphFromAddress, snap.GraphRecipients = "from@example.com", "to@example.com"
	if !snap.HasGraph() {
		t.Error("complete Graph config not detected")
	}
}

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := GenerateAPIKey()
	if len(a) != 32 || a == b {
		t.Errorf("keys %q and %q", a, b)
	}
}

func TestRedactedMasksSecrets(t *testing.T) {
	cfg := New(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.Load(); err != nil {
		t.Fatal(err)
	}
	if err := cfg.SetGraphConfig("tenant", "client", "s3cret", "from@example.org", "to@example.org"); err != nil {
		t.Fatal(err)
	}

	red := cfg.Redacted()
	if red.System.Password != redactedValue || red.Notifications.Email.ClientSecret != redactedValue {
		t.Errorf("secrets not masked: %+v", red)
	}
	if red.System.APIKey != "" || red.Reports.S3.SecretAccessKey != "" {
		t.Error("empty secrets should stay empty")
	}
	if red.Notifications.Email.ClientID != "client" {
		t.Errorf("ClientID = %q, want client", red.Notifications.Email.ClientID)
	}
	if cfg.Snapshot().GraphClientSecret != "s3cret" {
		t.Error("Redacted modified the live config")
	}
}

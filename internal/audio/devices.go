package audio

import (
	"context"
	"log/slog"
	"os/exec"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

const (
	// deviceCacheTTL keeps dashboard status pushes from spawning a listing
	// process every few seconds per client.
	deviceCacheTTL    = 30 * time.Second
	deviceListTimeout = 5 * time.Second
)

var deviceCache struct {
	mu      sync.Mutex
	devices []types.Device
	at      time.Time
}

// Devices returns the capture inputs on this machine. Results are cached
// briefly; the slice is a copy the caller may keep.
func Devices() []types.Device {
	deviceCache.mu.Lock()
	defer deviceCache.mu.Unlock()

	if deviceCache.at.IsZero() || time.Since(deviceCache.at) > deviceCacheTTL {
		cfg := getPlatformConfig()
		deviceCache.devices = cfg.Devices()
		deviceCache.at = time.Now()
	}
	return slices.Clone(deviceCache.devices)
}

// DeviceListConfig describes a listing command and how to read its output.
type DeviceListConfig struct {
	Command []string

	// Only lines between these markers are parsed. An empty start marker
	// means the whole output; an empty stop marker runs to the end.
	AudioStartMarker string
	AudioStopMarker  string

	DevicePattern *regexp.Regexp
	ParseDevice   func(matches []string) *types.Device

	// FallbackDevices stand in when nothing could be listed.
	FallbackDevices []types.Device
}

//nolint:gocritic // hugeParam: called once per cache refresh
func parseDeviceList(cfg DeviceListConfig) []types.Device {
	if len(cfg.Command) == 0 {
		return cfg.FallbackDevices
	}

	ctx, cancel := context.WithTimeout(context.Background(), deviceListTimeout)
	defer cancel()

	// FFmpeg exits non-zero after listing, so only empty output is a failure.
	output, err := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...).CombinedOutput()
	if err != nil && len(output) == 0 {
		slog.Warn("failed to list audio devices", "command", cfg.Command[0], "error", err)
		return cfg.FallbackDevices
	}
	return parseDeviceOutput(string(output), cfg)
}

//nolint:gocritic // hugeParam: called once per cache refresh
func parseDeviceOutput(output string, cfg DeviceListConfig) []types.Device {
	if cfg.DevicePattern == nil || cfg.ParseDevice == nil {
		return cfg.FallbackDevices
	}

	var devices []types.Device
	inside := cfg.AudioStartMarker == ""
	for line := range strings.SplitSeq(output, "\n") {
		switch {
		case cfg.AudioStartMarker != "" && strings.Contains(line, cfg.AudioStartMarker):
			inside = true
		case cfg.AudioStopMarker != "" && strings.Contains(line, cfg.AudioStopMarker):
			inside = false
		case !inside, strings.Contains(line, "Alternative name"): // DirectShow repeats each device
		default:
			m := cfg.DevicePattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if dev := cfg.ParseDevice(m); dev != nil {
				devices = append(devices, *dev)
			}
		}
	}

	if len(devices) == 0 {
		return cfg.FallbackDevices
	}
	return devices
}

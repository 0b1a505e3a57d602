package audio

import (
	"cmp"
	"strconv"

	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
	"github.com/oszuidwest/zwfm-soundmeter/internal/util"
)

// CaptureConfig defines platform-specific audio capture configuration.
type CaptureConfig struct {
	// Command is the executable name (e.g., "arecord", "ffmpeg").
	Command string

	// DefaultDevice is used when no device is configured.
	DefaultDevice string

	// UsesFFmpeg indicates if this platform uses FFmpeg for capture.
	UsesFFmpeg bool

	// BuildArgs returns the command arguments for raw s16le mono capture.
	BuildArgs func(device string) []string
}

// sampleRateArg is the capture sample rate as a command-line argument.
var sampleRateArg = strconv.Itoa(types.SampleRate)

// channelsArg is the capture channel count as a command-line argument.
var channelsArg = strconv.Itoa(types.Channels)

// BuildCaptureCommand returns the command and arguments for audio capture.
// If device is empty, it uses the platform default or the first detected device.
// The ffmpegPath parameter is used on platforms that use FFmpeg for capture.
func BuildCaptureCommand(device, ffmpegPath string) (cmd string, args []string, err error) {
	cfg := getPlatformConfig()

	if device == "" {
		device = cfg.DefaultDevice
	}

	// Windows has no safe default.
	if device == "" {
		devices := Devices()
		if len(devices) == 0 {
			return "", nil, ErrNoAudioDevice
		}
		device = devices[0].ID
	}

	command := cfg.Command
	if cfg.UsesFFmpeg && ffmpegPath != "" {
		command = ffmpegPath
	}

	return command, cfg.BuildArgs(device), nil
}

// CaptureTool returns the capture executable for this platform and whether
// it can be found. ffmpegPath overrides the lookup where FFmpeg is used.
func CaptureTool(ffmpegPath string) (string, bool) {
	cfg := getPlatformConfig()
	custom := ""
	if cfg.UsesFFmpeg {
		custom = ffmpegPath
	}
	path := util.ResolveExecutable(custom, cfg.Command)
	if path == "" {
		return cmp.Or(custom, cfg.Command), false
	}
	return path, true
}

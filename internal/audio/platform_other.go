//go:build !linux && !darwin && !windows

package audio

import "github.com/oszuidwest/zwfm-soundmeter/internal/types"

func getPlatformConfig() CaptureConfig {
	return CaptureConfig{
		Command:       "ffmpeg",
		DefaultDevice: "default",
		UsesFFmpeg:    true,
		BuildArgs:     buildPulseArgs,
	}
}

func buildPulseArgs(device string) []string {
	return buildFFmpegCaptureArgs("pulse", device)
}

func (cfg *CaptureConfig) Devices() []types.Device {
	return []types.Device{{ID: "default", Name: "System default"}}
}

//go:build linux

package audio

import (
	"regexp"

	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

func getPlatformConfig() CaptureConfig {
	return CaptureConfig{
		Command:       "arecord",
		DefaultDevice: "default",
		BuildArgs:     buildLinuxArgs,
	}
}

func buildLinuxArgs(device string) []string {
	return []string{
		"-D", device,
		"-f", "S16_LE",
		"-r", sampleRateArg,
		"-c", channelsArg,
		"-t", "raw",
		"-q",
		"-",
	}
}

// arecordCardPattern matches lines like "card 1: Device [USB Audio Device], device 0: ...".
var arecordCardPattern = regexp.MustCompile(`card\s+(\d+):\s+(\w+)\s+\[([^\]]+)\]`)

func (cfg *CaptureConfig) Devices() []types.Device {
	return parseDeviceList(DeviceListConfig{
		Command:       []string{"arecord", "-l"},
		DevicePattern: arecordCardPattern,
		ParseDevice:   parseArecordDevice,
		FallbackDevices: []types.Device{
			{ID: "default", Name: "System default"},
		},
	})
}

func parseArecordDevice(matches []string) *types.Device {
	if len(matches) < 4 {
		return nil
	}
	return &types.Device{
		ID:   "plughw:CARD=" + matches[2],
		Name: matches[3],
	}
}

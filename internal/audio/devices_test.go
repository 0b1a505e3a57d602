package audio

import (
	"regexp"
	"slices"
	"testing"

	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

var testPattern = regexp.MustCompile(`\[(\d+)\] (.+)`)

func testParseDevice(m []string) *types.Device {
	if m[2] == "skip" {
		return nil
	}
	return &types.Device{ID: m[1], Name: m[2]}
}

func TestParseDeviceOutput(t *testing.T) {
	fallback := []types.Device{{ID: "default", Name: "System default"}}

	tests := []struct {
		name   string
		output string
		start  string
		stop   string
		want   []types.Device
	}{
		{
			name:   "no markers",
			output: "[0] Built-in Mic\n[1] USB Audio\n",
			want:   []types.Device{{ID: "0", Name: "Built-in Mic"}, {ID: "1", Name: "USB Audio"}},
		},
		{
			name:   "section markers",
			output: "video devices:\n[0] Camera\naudio devices:\n[0] Mic\n[1] skip\nother:\n[2] Later\n",
			start:  "audio devices:",
			stop:   "other:",
			want:   []types.Device{{ID: "0", Name: "Mic"}},
		},
		{
			name:   "alternative names skipped",
			output: "[0] Mic\n[1] Alternative name @device_cm\n",
			want:   []types.Device{{ID: "0", Name: "Mic"}},
		},
		{
			name:   "nothing found uses fallback",
			output: "no soundcards found\n",
			want:   fallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DeviceListConfig{
				AudioStartMarker: tt.start,
				AudioStopMarker:  tt.stop,
				DevicePattern:    testPattern,
				ParseDevice:      testParseDevice,
				FallbackDevices:  fallback,
			}
			if got := parseDeviceOutput(tt.output, cfg); !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseDeviceListWithoutCommand(t *testing.T) {
	fallback := []types.Device{{ID: "x", Name: "Fallback"}}
	if got := parseDeviceList(DeviceListConfig{FallbackDevices: fallback}); !slices.Equal(got, fallback) {
		t.Errorf("got %v, want fallback", got)
	}
}

func TestDevicesReturnsCopy(t *testing.T) {
	first := Devices()
	if len(first) == 0 {
		t.Skip("no devices listed on this machine")
	}
	first[0].Name = "changed"
	if Devices()[0].Name == "changed" {
		t.Error("Devices exposes the cached slice")
	}
}

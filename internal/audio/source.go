package audio

import (
	"errors"
	"fmt"

	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

// Sentinel errors for audio sources.
var (
	// ErrNoAudioDevice is returned when no audio input device is available.
	ErrNoAudioDevice = errors.New("no audio input device found")
	// ErrUnknownBackend is returned for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown audio backend")
	// ErrBackendUnavailable is returned when a backend was not compiled in.
	ErrBackendUnavailable = errors.New("audio backend not available in this build")
	// ErrSourceClosed is returned by Fill after Stop or Release.
	ErrSourceClosed = errors.New("audio source closed")
)

// Source produces signed 16-bit mono samples.
//
// A source is used as: Start once, Fill repeatedly, Stop once, Release once.
// Fill returns the number of valid samples written to buf. A count of zero
// or less with a nil error means no data was ready. A non-nil error is
// terminal for the session.
type Source interface {
	Start() error
	Fill(buf []int16) (int, error)
	Stop() error
	Release() error
}

// SourceOptions configures a source created by NewSource.
type SourceOptions struct {
	Device     string // Capture device identifier (capture backend)
	FFmpegPath string // FFmpeg binary for platforms that capture through it
	BufferSize int    // Frames per buffer (portaudio backend)
	Variation  bool   // Mix noise and random amplitude into the tone
	Seed       uint64 // Random seed for tone variation; 0 picks one
}

// NewSource returns a fresh, unstarted source for the given backend.
func NewSource(backend types.Backend, opts SourceOptions) (Source, error) {
	switch backend {
	case types.BackendTone, "":
		return NewToneSource(ToneOptions{Variation: opts.Variation, Seed: opts.Seed}), nil
	case types.BackendCapture:
		return NewCaptureSource(opts.Device, opts.FFmpegPath), nil
	case types.BackendPortAudio:
		return NewPortAudioSource(opts.BufferSize)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

package audio

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

// PhaseIncrement is the per-sample phase advance of the synthetic tone.
const PhaseIncrement = 2 * math.Pi * types.ToneFrequency / types.SampleRate

// Variation bounds for the synthetic tone.
const (
	minAmplitude = 0.1
	noiseSpan    = 0.2 // noise is drawn from [-noiseSpan/2, noiseSpan/2)
)

// ToneOptions configures a ToneSource.
type ToneOptions struct {
	Variation bool   // Mix noise and a per-buffer random amplitude into the tone
	Seed      uint64 // Random seed; 0 seeds from the clock
}

// ToneSource generates a continuous 440 Hz test tone without hardware.
// It is not safe for concurrent use; the sampling loop is its only caller.
type ToneSource struct {
	phase     float64
	variation bool
	rng       *rand.Rand
}

// NewToneSource returns a ToneSource with its phase at zero.
func NewToneSource(opts ToneOptions) *ToneSource {
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano()) //nolint:gosec // Non-negative clock value
	}
	return &ToneSource{
		variation: opts.Variation,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), //nolint:gosec // Test signal, not security
	}
}

// Start implements Source.
func (s *ToneSource) Start() error { return nil }

// Stop implements Source.
func (s *ToneSource) Stop() error { return nil }

// Release implements Source.
func (s *ToneSource) Release() error { return nil }

// Phase returns the accumulated oscillator phase in radians.
func (s *ToneSource) Phase() float64 { return s.phase }

// Fill writes len(buf) tone samples and always returns len(buf).
func (s *ToneSource) Fill(buf []int16) (int, error) {
	amplitude := 1.0
	if s.variation {
		amplitude = minAmplitude + s.rng.Float64()*(1-minAmplitude)
	}

	for i := range buf {
		s.phase += PhaseIncrement
		v := math.Sin(s.phase)
		if s.variation {
			v = (v + s.rng.Float64()*noiseSpan - noiseSpan/2) * amplitude
		}
		buf[i] = toSample(v)
	}
	return len(buf), nil
}

// toSample scales v in [-1, 1] to int16, saturating at the limits.
func toSample(v float64) int16 {
	scaled := v * math.MaxInt16
	switch {
	case scaled >= math.MaxInt16:
		return math.MaxInt16
	case scaled <= math.MinInt16:
		return math.MinInt16
	default:
		return int16(scaled)
	}
}

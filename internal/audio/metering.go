// Package audio provides audio sources and loudness metering for 16-bit mono PCM.
package audio

import (
	"math"
)

const (
	// MaxSampleValue is the full-scale reference for 16-bit signed audio.
	MaxSampleValue = 32768.0
	// ClipThreshold is slightly below max to catch near-clips.
	ClipThreshold int16 = 32760
	// Epsilon keeps the logarithm finite for silent buffers.
	Epsilon = 1e-6
	// SilenceDBFS is the dBFS value of an all-zero buffer, 20*log10(Epsilon).
	SilenceDBFS = -120.0
)

// Scale maps dBFS values onto the bounded display score.
type Scale struct {
	Offset        float64 // Added to dBFS before clamping
	Max           float64 // Upper bound of the score; the lower bound is 0
	LoudThreshold float64 // Scores strictly above this are loud
}

// DefaultScale shifts dBFS by +60 and clamps to [0, 60], loud above 50.
var DefaultScale = Scale{Offset: 60, Max: 60, LoudThreshold: 50}

// Measurement holds everything derived from one buffer.
type Measurement struct {
	RMS     float64
	DBFS    float64
	Score   float64
	Loud    bool
	Bar     float64
	Peak    float64 // Peak magnitude in dBFS
	Clipped int
}

// RMS returns the root-mean-square of the first n samples of buf.
// n is clamped to len(buf); n <= 0 yields 0.
func RMS(buf []int16, n int) float64 {
	n = min(n, len(buf))
	if n <= 0 {
		return 0
	}
	var sum float64
	for _, s := range buf[:n] {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// DBFS converts an RMS amplitude to decibels relative to full scale.
func DBFS(rms float64) float64 {
	return 20 * math.Log10(rms/MaxSampleValue+Epsilon)
}

// Score shifts dbfs by the scale offset and clamps it to [0, Max].
func (s Scale) Score(dbfs float64) float64 {
	return min(max(dbfs+s.Offset, 0), s.Max)
}

// IsLoud reports whether score is strictly above the loud threshold.
func (s Scale) IsLoud(score float64) bool {
	return score > s.LoudThreshold
}

// Bar returns the score as a bar height fraction in [0, 1].
func (s Scale) Bar(score float64) float64 {
	if s.Max <= 0 {
		return 0
	}
	return min(max(score/s.Max, 0), 1)
}

// Measure computes the full measurement over the first n samples of buf.
func (s Scale) Measure(buf []int16, n int) Measurement {
	n = min(n, len(buf))
	rms := RMS(buf, n)
	dbfs := DBFS(rms)
	score := s.Score(dbfs)

	var peak float64
	var clipped int
	for _, v := range buf[:max(n, 0)] {
		if a := math.Abs(float64(v)); a > peak {
			peak = a
		}
		if v >= ClipThreshold || v <= -ClipThreshold {
			clipped++
		}
	}

	return Measurement{
		RMS:     rms,
		DBFS:    dbfs,
		Score:   score,
		Loud:    s.IsLoud(score),
		Bar:     s.Bar(score),
		Peak:    DBFS(peak),
		Clipped: clipped,
	}
}

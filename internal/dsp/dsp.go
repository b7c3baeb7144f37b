// SPDX-License-Identifier: MIT
//
// Package dsp implements the signal transforms applied to synthesized speech
// clips: a phase vocoder for pitch shifting and time stretching, a WSOLA
// stretcher and Hermite resampler for the lightweight path, gain staging with
// a soft limiter, and a handful of analysis helpers.
//
// All transforms operate on mono []float64 buffers in the range [-1, 1] and
// return newly allocated slices; inputs are never modified.
package dsp

import (
	"errors"
	"math"
)

var (
	ErrInvalidPitch      = errors.New("pitch percent must be positive and finite")
	ErrInvalidSpeed      = errors.New("speed percent must be positive and finite")
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	ErrInvalidFrame      = errors.New("frame size must be a power of two >= 64 with a hop in [1, frame)")
)

const (
	// Identity is the percentage that leaves an axis unchanged.
	Identity = 100.0

	// DefaultStretchFrame and DefaultPitchFrame are the vocoder frame sizes
	// used for time stretching and pitch shifting. The pitch frame is twice
	// as long so partials are resolved on a finer bin grid.
	DefaultStretchFrame = 2048
	DefaultPitchFrame   = 4096
	DefaultHop          = 512

	minFrameSize = 64
	normFloor    = 1e-12
	tiny         = 1e-18
)

// Semitones converts a pitch percentage to a semitone offset. The caller must
// have validated pitchPercent with ValidatePitch.
func Semitones(pitchPercent float64) float64 {
	return 12 * math.Log2(pitchPercent/Identity)
}

// ValidatePitch rejects non-positive and non-finite pitch percentages before
// any logarithm is taken.
func ValidatePitch(pitchPercent float64) error {
	if !isFinitePositive(pitchPercent) {
		return ErrInvalidPitch
	}
	return nil
}

// ValidateSpeed rejects non-positive and non-finite speed percentages.
func ValidateSpeed(speedPercent float64) error {
	if !isFinitePositive(speedPercent) {
		return ErrInvalidSpeed
	}
	return nil
}

// DurationFactor returns the output/input length ratio for a speed
// percentage: 150% plays back in 100/150 of the time.
func DurationFactor(speedPercent float64) float64 {
	return Identity / speedPercent
}

func isFinitePositive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// fitLength copies in into a slice of exactly n samples, zero padding or
// truncating as needed.
func fitLength(in []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, in)
	return out
}

func wrapPhase(x float64) float64 {
	x = math.Mod(x+math.Pi, 2*math.Pi)
	if x < 0 {
		x += 2 * math.Pi
	}
	return x - math.Pi
}

func sampleZero(x []float64, idx int) float64 {
	if idx < 0 || idx >= len(x) {
		return 0
	}
	return x[idx]
}

func sampleClamp(x []float64, idx int) float64 {
	if len(x) == 0 {
		return 0
	}
	if idx < 0 {
		return x[0]
	}
	if idx >= len(x) {
		return x[len(x)-1]
	}
	return x[idx]
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

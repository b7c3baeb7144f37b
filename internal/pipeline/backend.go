// SPDX-License-Identifier: MIT
package pipeline

import (
	"fmt"
	"math"

	"yukkuri/internal/dsp"
	"yukkuri/internal/media"
)

// Spectral is the high-quality backend: a phase vocoder for pitch and time,
// linear gain into a soft limiter.
type Spectral struct {
	StretchFrame int
	PitchFrame   int
	Hop          int
	Limiter      dsp.Limiter
	// Disabled forces Available to fail so the fallback is used.
	Disabled bool
}

// NewSpectral returns a Spectral backend with the default frame sizes and
// limiter.
func NewSpectral() *Spectral {
	return &Spectral{
		StretchFrame: dsp.DefaultStretchFrame,
		PitchFrame:   dsp.DefaultPitchFrame,
		Hop:          dsp.DefaultHop,
		Limiter:      dsp.DefaultLimiter,
	}
}

func (s *Spectral) Name() string { return "spectral" }

// Available runs a short stretch through both vocoder configurations and
// checks the output has the expected length and only finite samples.
func (s *Spectral) Available() error {
	if s.Disabled {
		return fmt.Errorf("%w: spectral backend disabled", media.ErrDependencyUnavailable)
	}

	probe := make([]float64, 4*max(s.StretchFrame, s.PitchFrame))
	for i := range probe {
		probe[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/44100)
	}

	for _, frame := range []int{s.StretchFrame, s.PitchFrame} {
		v, err := dsp.NewVocoder(frame, s.Hop)
		if err != nil {
			return fmt.Errorf("%w: %v", media.ErrDependencyUnavailable, err)
		}
		out := v.Stretch(probe, 1.25)
		if want := int(math.Round(float64(len(probe)) * 1.25)); len(out) != want {
			return fmt.Errorf("%w: vocoder self-test produced %d samples, want %d", media.ErrDependencyUnavailable, len(out), want)
		}
		for _, x := range out {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return fmt.Errorf("%w: vocoder self-test produced non-finite output", media.ErrDependencyUnavailable)
			}
		}
	}
	return nil
}

func (s *Spectral) ShiftPitch(samples []float64, sampleRate int, pitch float64) ([]float64, error) {
	if sampleRate <= 0 {
		return nil, dsp.ErrInvalidSampleRate
	}
	v, err := dsp.NewVocoder(s.PitchFrame, s.Hop)
	if err != nil {
		return nil, err
	}
	return v.PitchShift(samples, pitch)
}

func (s *Spectral) StretchTime(samples []float64, sampleRate int, speed float64) ([]float64, error) {
	if sampleRate <= 0 {
		return nil, dsp.ErrInvalidSampleRate
	}
	v, err := dsp.NewVocoder(s.StretchFrame, s.Hop)
	if err != nil {
		return nil, err
	}
	return v.TimeStretch(samples, speed)
}

func (s *Spectral) ApplyGain(samples []float64, _ int, volume float64) ([]float64, error) {
	return s.Limiter.ApplyGain(samples, volume), nil
}

// Resampling is the fallback backend. Pitch is changed by staged resampling
// with a WSOLA length correction, speed by WSOLA, and volume in dB stages
// with a compressor.
type Resampling struct{}

func (Resampling) Name() string { return "resampling" }

// Available always succeeds; the fallback has no external requirements.
func (Resampling) Available() error { return nil }

func (Resampling) ShiftPitch(samples []float64, sampleRate int, pitch float64) ([]float64, error) {
	return dsp.ResamplingPitchShift(samples, sampleRate, pitch)
}

func (Resampling) StretchTime(samples []float64, sampleRate int, speed float64) ([]float64, error) {
	return dsp.SpeedChange(samples, sampleRate, speed)
}

func (Resampling) ApplyGain(samples []float64, sampleRate int, volume float64) ([]float64, error) {
	return dsp.SteppedGain(samples, sampleRate, volume), nil
}

// SPDX-License-Identifier: MIT
package dsp

import (
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	gateFrameSize     = 2048
	gateHop           = 512
	gateQuietFraction = 0.1
	gateReduction     = 0.1
)

// NoiseGate is a spectral gate. It estimates a per-bin noise floor from the
// quietest frames of the clip and attenuates bins that stay near that floor.
type NoiseGate struct {
	enabled   bool
	threshold float64
}

// NewNoiseGate returns a gate with the given threshold, clamped to [0, 1].
func NewNoiseGate(enabled bool, threshold float64) *NoiseGate {
	g := &NoiseGate{enabled: enabled}
	g.SetThreshold(threshold)
	return g
}

func (g *NoiseGate) Enable()  { g.enabled = true }
func (g *NoiseGate) Disable() { g.enabled = false }

// Enabled reports whether Process modifies its input.
func (g *NoiseGate) Enabled() bool { return g.enabled }

// SetThreshold adjusts how far above the noise floor a bin must rise to pass.
// 0 gates only bins at the floor, 1 requires five times the floor.
func (g *NoiseGate) SetThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}
	g.threshold = threshold
}

// Threshold returns the current threshold in [0, 1].
func (g *NoiseGate) Threshold() float64 {
	return g.threshold
}

// Process returns a gated copy of samples. A disabled gate, or a clip shorter
// than one frame, is returned unchanged as a copy.
func (g *NoiseGate) Process(samples []float64) []float64 {
	if !g.enabled || len(samples) < gateFrameSize {
		return fitLength(samples, len(samples))
	}

	fft := fourier.NewFFT(gateFrameSize)
	win := make([]float64, gateFrameSize)
	for i := range win {
		win[i] = 1
	}
	window.Hann(win)

	// Frames are centered on their nominal position, as in Vocoder.Stretch,
	// so the clip edges are never divided by a vanishing window sum.
	center := gateFrameSize / 2
	frames := (len(samples)+center)/gateHop + 1
	bins := gateFrameSize/2 + 1
	spectra := make([][]complex128, frames)
	energy := make([]float64, frames)
	frame := make([]float64, gateFrameSize)

	for f := range frames {
		pos := f * gateHop
		for i := range frame {
			frame[i] = sampleZero(samples, pos+i-center) * win[i]
		}
		spectra[f] = fft.Coefficients(nil, frame)
		for _, c := range spectra[f] {
			a := cmplx.Abs(c)
			energy[f] += a * a
		}
	}

	// The quietest tenth of frames defines the floor.
	order := make([]int, frames)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return energy[order[a]] < energy[order[b]] })
	quiet := max(1, int(float64(frames)*gateQuietFraction))

	floor := make([]float64, bins)
	for _, f := range order[:quiet] {
		for b, c := range spectra[f] {
			floor[b] += cmplx.Abs(c)
		}
	}
	multiplier := 1 + 4*g.threshold
	for b := range floor {
		floor[b] = floor[b] / float64(quiet) * multiplier
	}

	out := make([]float64, (frames-1)*gateHop+gateFrameSize)
	norm := make([]float64, len(out))
	synth := make([]float64, gateFrameSize)
	scale := 1 / float64(gateFrameSize)

	for f, spec := range spectra {
		for b, c := range spec {
			if cmplx.Abs(c) <= floor[b] {
				spec[b] = c * gateReduction
			}
		}
		fft.Sequence(synth, spec)
		pos := f * gateHop
		for i, w := range win {
			out[pos+i] += synth[i] * scale * w
			norm[pos+i] += w * w
		}
	}

	for i := range out {
		if norm[i] > normFloor {
			out[i] /= norm[i]
		}
	}
	return fitLength(out[center:], len(samples))
}

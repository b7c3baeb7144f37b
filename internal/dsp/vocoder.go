// SPDX-License-Identifier: MIT
package dsp

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"yukkuri/pkg/bitint"
)

// Vocoder is a phase vocoder with identity phase locking. Frames are taken
// from the input at a variable analysis hop and written to the output at a
// fixed synthesis hop, so the realized stretch factor is exact rather than
// quantized to a ratio of integer hops.
//
// A Vocoder holds pre-allocated workspace and is not safe for concurrent use.
type Vocoder struct {
	frameSize int
	hop       int
	fft       *fourier.FFT
	window    []float64
	omega     []float64

	frame     []float64
	spectrum  []complex128
	magnitude []float64
	phase     []float64
	prevPhase []float64
	sumPhase  []float64
	instFreq  []float64
	peaks     []int
	synth     []float64
}

// NewVocoder creates a vocoder with the given FFT frame size and synthesis hop.
func NewVocoder(frameSize, hop int) (*Vocoder, error) {
	if frameSize < minFrameSize || !bitint.IsPowerOfTwo(frameSize) || hop <= 0 || hop >= frameSize {
		return nil, fmt.Errorf("%w: frame=%d hop=%d", ErrInvalidFrame, frameSize, hop)
	}

	bins := frameSize/2 + 1

	win := make([]float64, frameSize)
	for i := range win {
		win[i] = 1
	}
	window.Hann(win)

	omega := make([]float64, bins)
	for k := range omega {
		omega[k] = 2 * math.Pi * float64(k) / float64(frameSize)
	}

	return &Vocoder{
		frameSize: frameSize,
		hop:       hop,
		fft:       fourier.NewFFT(frameSize),
		window:    win,
		omega:     omega,
		frame:     make([]float64, frameSize),
		spectrum:  make([]complex128, bins),
		magnitude: make([]float64, bins),
		phase:     make([]float64, bins),
		prevPhase: make([]float64, bins),
		sumPhase:  make([]float64, bins),
		instFreq:  make([]float64, bins),
		peaks:     make([]int, 0, bins/2),
		synth:     make([]float64, frameSize),
	}, nil
}

// FrameSize returns the FFT frame size.
func (v *Vocoder) FrameSize() int { return v.frameSize }

// Hop returns the synthesis hop in samples.
func (v *Vocoder) Hop() int { return v.hop }

// Stretch changes the duration of input by factor without changing its pitch.
// The result has exactly round(len(input)*factor) samples.
func (v *Vocoder) Stretch(input []float64, factor float64) []float64 {
	n := len(input)
	outLen := int(math.Round(float64(n) * factor))
	if n == 0 || outLen <= 0 {
		return []float64{}
	}
	if math.Abs(factor-1) < 1e-9 {
		return fitLength(input, n)
	}

	size := v.frameSize
	center := size / 2
	frames := (outLen+center)/v.hop + 2
	bufLen := (frames-1)*v.hop + size
	out := make([]float64, bufLen)
	norm := make([]float64, bufLen)

	step := float64(v.hop) / factor
	scale := 1 / float64(size)
	prevPos := 0

	for k := range frames {
		// Frames are centered on their nominal position so the first
		// output samples are fully covered by the window.
		pos := int(math.Round(float64(k) * step))
		for i := range size {
			v.frame[i] = sampleZero(input, pos+i-center) * v.window[i]
		}
		v.fft.Coefficients(v.spectrum, v.frame)

		for b, c := range v.spectrum {
			v.magnitude[b] = cmplx.Abs(c)
			v.phase[b] = cmplx.Phase(c)
		}

		if k == 0 {
			copy(v.sumPhase, v.phase)
		} else {
			if ha := pos - prevPos; ha > 0 {
				haf := float64(ha)
				for b := range v.phase {
					delta := wrapPhase(v.phase[b] - v.prevPhase[b] - v.omega[b]*haf)
					v.instFreq[b] = v.omega[b] + delta/haf
				}
			}
			v.advancePhases()
		}
		copy(v.prevPhase, v.phase)
		prevPos = pos

		for b := range v.spectrum {
			v.spectrum[b] = cmplx.Rect(v.magnitude[b], v.sumPhase[b])
		}
		v.fft.Sequence(v.synth, v.spectrum)

		outPos := k * v.hop
		for i := range size {
			w := v.window[i]
			out[outPos+i] += v.synth[i] * scale * w
			norm[outPos+i] += w * w
		}
	}

	for i := range out {
		if norm[i] > normFloor {
			out[i] /= norm[i]
		}
	}

	return fitLength(out[center:], outLen)
}

// advancePhases accumulates synthesis phase. Spectral peaks advance by their
// instantaneous frequency; every other bin keeps its analysis phase offset
// to the nearest peak (Laroche & Dolson identity phase locking).
func (v *Vocoder) advancePhases() {
	hop := float64(v.hop)
	last := len(v.magnitude) - 1

	v.peaks = v.peaks[:0]
	for k := 1; k < last; k++ {
		if v.magnitude[k] >= v.magnitude[k-1] && v.magnitude[k] > v.magnitude[k+1] {
			v.peaks = append(v.peaks, k)
		}
	}

	if len(v.peaks) == 0 {
		for k := range v.sumPhase {
			v.sumPhase[k] += v.instFreq[k] * hop
		}
		return
	}

	for _, pk := range v.peaks {
		v.sumPhase[pk] += v.instFreq[pk] * hop
	}

	idx := 0
	for k := 0; k <= last; k++ {
		for idx+1 < len(v.peaks) && absInt(v.peaks[idx+1]-k) < absInt(v.peaks[idx]-k) {
			idx++
		}
		pk := v.peaks[idx]
		if k != pk {
			v.sumPhase[k] = v.sumPhase[pk] + (v.phase[k] - v.phase[pk])
		}
	}
}

// TimeStretch scales the duration of samples by 100/speedPercent while
// preserving pitch.
func (v *Vocoder) TimeStretch(samples []float64, speedPercent float64) ([]float64, error) {
	if err := ValidateSpeed(speedPercent); err != nil {
		return nil, err
	}
	return v.Stretch(samples, DurationFactor(speedPercent)), nil
}

// PitchShift moves the pitch of samples by pitchPercent/100 while preserving
// duration: the signal is stretched by the pitch ratio and then resampled
// back to its original length.
func (v *Vocoder) PitchShift(samples []float64, pitchPercent float64) ([]float64, error) {
	if err := ValidatePitch(pitchPercent); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return []float64{}, nil
	}

	ratio := pitchPercent / Identity
	stretched := v.Stretch(samples, ratio)
	return Resample(stretched, len(samples)), nil
}

// PitchShift is the package-level pitch shifter using the high resolution
// pitch frame. The pitch percentage is validated before anything else.
func PitchShift(samples []float64, sampleRate int, pitchPercent float64) ([]float64, error) {
	if err := ValidatePitch(pitchPercent); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	v, err := NewVocoder(DefaultPitchFrame, DefaultHop)
	if err != nil {
		return nil, err
	}
	return v.PitchShift(samples, pitchPercent)
}

// TimeStretch is the package-level time stretcher.
func TimeStretch(samples []float64, sampleRate int, speedPercent float64) ([]float64, error) {
	if err := ValidateSpeed(speedPercent); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	v, err := NewVocoder(DefaultStretchFrame, DefaultHop)
	if err != nil {
		return nil, err
	}
	return v.TimeStretch(samples, speedPercent)
}

// SPDX-License-Identifier: MIT
package dsp

import (
	"fmt"
	"math"
)

const (
	DefaultWSOLASequenceMs  = 150.0
	DefaultWSOLACrossfadeMs = 25.0
	DefaultWSOLASearchMs    = 15.0
)

// WSOLA is a waveform-similarity overlap-add time stretcher. It copies
// sequences of the input and, for every splice, searches a small window
// around the nominal read position for the offset that best continues the
// waveform already written, then crossfades into it.
type WSOLA struct {
	sequenceLen int
	overlapLen  int
	searchLen   int
	stepOut     int
	fadeIn      []float64
	fadeOut     []float64
}

// NewWSOLA creates a stretcher for the given sample rate and timings.
func NewWSOLA(sampleRate int, sequenceMs, crossfadeMs, searchMs float64) (*WSOLA, error) {
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if crossfadeMs >= sequenceMs {
		return nil, fmt.Errorf("wsola crossfade must be shorter than sequence: crossfade=%.1fms sequence=%.1fms",
			crossfadeMs, sequenceMs)
	}

	sr := float64(sampleRate)
	w := &WSOLA{
		sequenceLen: max(32, int(math.Round(sequenceMs*0.001*sr))),
		overlapLen:  max(8, int(math.Round(crossfadeMs*0.001*sr))),
		searchLen:   max(1, int(math.Round(searchMs*0.001*sr))),
	}
	if w.overlapLen >= w.sequenceLen {
		return nil, fmt.Errorf("wsola overlap too large for sequence: overlap=%d sequence=%d", w.overlapLen, w.sequenceLen)
	}
	w.stepOut = w.sequenceLen - w.overlapLen

	w.fadeIn = make([]float64, w.overlapLen)
	w.fadeOut = make([]float64, w.overlapLen)
	for i := range w.overlapLen {
		t := float64(i) / float64(w.overlapLen-1)
		in := 0.5 - 0.5*math.Cos(math.Pi*t)
		w.fadeIn[i] = in
		w.fadeOut[i] = 1 - in
	}
	return w, nil
}

// Stretch returns round(len(input)*factor) samples of input played at
// 1/factor speed with its pitch unchanged.
func (w *WSOLA) Stretch(input []float64, factor float64) []float64 {
	targetLen := int(math.Round(float64(len(input)) * factor))
	if len(input) == 0 || targetLen <= 0 || !isFinitePositive(factor) {
		return []float64{}
	}
	if math.Abs(factor-1) < 1e-9 {
		return fitLength(input, len(input))
	}

	inStep := max(1, float64(w.stepOut)/factor)

	out := make([]float64, (targetLen/w.stepOut+4)*w.stepOut+w.sequenceLen+1)
	for i := range w.sequenceLen {
		out[i] = sampleZero(input, i)
	}
	outLen := w.sequenceLen
	prevStart := 0
	nominal := inStep
	ref := make([]float64, w.overlapLen)

	for outLen < targetLen+w.sequenceLen {
		refStart := prevStart + w.stepOut
		for i := range ref {
			ref[i] = sampleZero(input, refStart+i)
		}

		start := w.bestOverlap(ref, input, int(math.Round(nominal)))

		outStart := outLen - w.overlapLen
		for i := range w.overlapLen {
			out[outStart+i] = out[outStart+i]*w.fadeOut[i] + sampleZero(input, start+i)*w.fadeIn[i]
		}
		for i := w.overlapLen; i < w.sequenceLen; i++ {
			out[outStart+i] = sampleZero(input, start+i)
		}

		outLen = outStart + w.sequenceLen
		prevStart = start
		nominal += inStep
	}

	return fitLength(out, targetLen)
}

// StretchTo stretches input to exactly n samples.
func (w *WSOLA) StretchTo(input []float64, n int) []float64 {
	if len(input) == 0 || n <= 0 {
		return []float64{}
	}
	return fitLength(w.Stretch(input, float64(n)/float64(len(input))), n)
}

// bestOverlap returns the read offset within the search window whose
// normalized cross-correlation with ref is highest.
func (w *WSOLA) bestOverlap(ref, input []float64, predicted int) int {
	best := predicted
	bestScore := math.Inf(-1)

	refEnergy := tiny
	for _, r := range ref {
		refEnergy += r * r
	}

	for cand := predicted - w.searchLen; cand <= predicted+w.searchLen; cand++ {
		dot := 0.0
		candEnergy := tiny
		for i, r := range ref {
			c := sampleZero(input, cand+i)
			dot += r * c
			candEnergy += c * c
		}
		if score := dot / math.Sqrt(refEnergy*candEnergy); score > bestScore {
			bestScore = score
			best = cand
		}
	}
	return best
}

// SpeedChange changes playback speed by speedPercent with the default 150 ms
// sequence and 25 ms crossfade.
func SpeedChange(samples []float64, sampleRate int, speedPercent float64) ([]float64, error) {
	if err := ValidateSpeed(speedPercent); err != nil {
		return nil, err
	}
	w, err := NewWSOLA(sampleRate, DefaultWSOLASequenceMs, DefaultWSOLACrossfadeMs, DefaultWSOLASearchMs)
	if err != nil {
		return nil, err
	}
	return w.Stretch(samples, DurationFactor(speedPercent)), nil
}

// ResamplingPitchShift shifts pitch without the vocoder: ResamplePitch moves
// pitch and duration together, then WSOLA restores the original length.
func ResamplingPitchShift(samples []float64, sampleRate int, pitchPercent float64) ([]float64, error) {
	shifted, err := ResamplePitch(samples, sampleRate, pitchPercent)
	if err != nil {
		return nil, err
	}
	w, err := NewWSOLA(sampleRate, DefaultWSOLASequenceMs, DefaultWSOLACrossfadeMs, DefaultWSOLASearchMs)
	if err != nil {
		return nil, err
	}
	return w.StretchTo(shifted, len(samples)), nil
}

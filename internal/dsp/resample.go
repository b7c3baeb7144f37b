// SPDX-License-Identifier: MIT
package dsp

import "math"

// Resample maps input onto exactly outLen samples using 4-point Hermite
// interpolation. The first and last samples are preserved.
func Resample(input []float64, outLen int) []float64 {
	if outLen <= 0 || len(input) == 0 {
		return []float64{}
	}

	out := make([]float64, outLen)
	if len(input) == 1 {
		for i := range out {
			out[i] = input[0]
		}
		return out
	}
	if outLen == 1 {
		out[0] = input[0]
		return out
	}

	step := float64(len(input)-1) / float64(outLen-1)
	for i := range out {
		out[i] = sampleHermite(input, float64(i)*step)
	}
	return out
}

// ResampleRate converts input sampled at fromRate to toRate. Declaring a
// buffer at a scaled rate and converting it back to the original rate is the
// classic tape-speed pitch change: pitch and duration move together.
func ResampleRate(input []float64, fromRate, toRate float64) []float64 {
	if !isFinitePositive(fromRate) || !isFinitePositive(toRate) {
		return []float64{}
	}
	outLen := int(math.Round(float64(len(input)) * toRate / fromRate))
	return Resample(input, outLen)
}

// MaxResampleStep bounds each stage of ResamplePitch to
// [1/MaxResampleStep, MaxResampleStep] so interpolation error stays small.
const MaxResampleStep = 1.25

// PitchSteps splits a pitch ratio into equal geometric stages. The number of
// stages is ceil(|ln ratio| / ln MaxResampleStep), at least one.
func PitchSteps(pitchPercent float64) []float64 {
	ratio := pitchPercent / Identity
	n := int(math.Ceil(math.Abs(math.Log(ratio))/math.Log(MaxResampleStep) - 1e-9))
	n = max(n, 1)

	step := math.Pow(ratio, 1/float64(n))
	steps := make([]float64, n)
	for i := range steps {
		steps[i] = step
	}
	return steps
}

// ResamplePitch is a tape-speed pitch change applied in PitchSteps stages:
// each stage declares the signal at sampleRate*step and converts it back to
// sampleRate. Duration scales by 100/pitchPercent.
func ResamplePitch(samples []float64, sampleRate int, pitchPercent float64) ([]float64, error) {
	if err := ValidatePitch(pitchPercent); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}

	out := fitLength(samples, len(samples))
	sr := float64(sampleRate)
	for _, step := range PitchSteps(pitchPercent) {
		out = ResampleRate(out, sr*step, sr)
	}
	return out, nil
}

func sampleHermite(input []float64, pos float64) float64 {
	idx := int(math.Floor(pos))
	frac := pos - float64(idx)
	return hermite4(frac,
		sampleClamp(input, idx-1),
		sampleClamp(input, idx),
		sampleClamp(input, idx+1),
		sampleClamp(input, idx+2),
	)
}

// hermite4 is the third-order, four-point Hermite (Catmull-Rom) interpolator.
func hermite4(t, xm1, x0, x1, x2 float64) float64 {
	c0 := x0
	c1 := 0.5 * (x1 - xm1)
	c2 := xm1 - 2.5*x0 + 2*x1 - 0.5*x2
	c3 := 0.5*(x2-xm1) + 1.5*(x0-x1)
	return ((c3*t+c2)*t+c1)*t + c0
}

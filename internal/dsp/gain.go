// SPDX-License-Identifier: MIT
package dsp

import "math"

const (
	DefaultLimitThreshold = 0.95
	DefaultLimitRatio     = 0.1
	DefaultPeakCeiling    = 0.95

	// MaxGainStepDB bounds each stage of stepped gain.
	MaxGainStepDB = 6.0
	// MinGainDB is the floor used when attenuating towards silence.
	MinGainDB = -40.0

	DefaultCompressThresholdDB = -12.0
	DefaultCompressRatio       = 4.0
	compressReleaseMs          = 50.0
)

// Limiter is a soft-knee limiter: magnitudes above Threshold are pulled
// towards it by Ratio instead of being clipped.
type Limiter struct {
	Threshold float64
	Ratio     float64
}

// DefaultLimiter limits above 0.95 of full scale with a 0.1 ratio.
var DefaultLimiter = Limiter{Threshold: DefaultLimitThreshold, Ratio: DefaultLimitRatio}

// Limit applies the limiter to a single sample, preserving its sign.
func (l Limiter) Limit(x float64) float64 {
	mag := math.Abs(x)
	if mag <= l.Threshold {
		return x
	}
	return math.Copysign(l.Threshold+(mag-l.Threshold)*l.Ratio, x)
}

// SoftLimit returns a limited copy of samples.
func (l Limiter) SoftLimit(samples []float64) []float64 {
	out := make([]float64, len(samples))
	for i, x := range samples {
		out[i] = l.Limit(x)
	}
	return out
}

// ApplyGain scales samples by volumePercent/100 and soft limits the result.
func (l Limiter) ApplyGain(samples []float64, volumePercent float64) []float64 {
	gain := volumePercent / Identity
	out := make([]float64, len(samples))
	for i, x := range samples {
		out[i] = l.Limit(x * gain)
	}
	return out
}

// ApplyGain scales and soft limits with the default limiter.
func ApplyGain(samples []float64, volumePercent float64) []float64 {
	return DefaultLimiter.ApplyGain(samples, volumePercent)
}

// SoftLimit limits with the default limiter.
func SoftLimit(samples []float64) []float64 {
	return DefaultLimiter.SoftLimit(samples)
}

// Peak returns the largest absolute sample value.
func Peak(samples []float64) float64 {
	peak := 0.0
	for _, x := range samples {
		if a := math.Abs(x); a > peak {
			peak = a
		}
	}
	return peak
}

// RMS returns the root mean square of samples.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, x := range samples {
		sum += x * x
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// PeakNormalize scales every channel by the same factor so that the global
// peak does not exceed ceiling. Channels already under the ceiling are
// returned as is; otherwise new slices are returned.
func PeakNormalize(channels [][]float64, ceiling float64) [][]float64 {
	peak := 0.0
	for _, ch := range channels {
		peak = max(peak, Peak(ch))
	}
	if peak <= ceiling || peak == 0 {
		return channels
	}

	scale := ceiling / peak
	out := make([][]float64, len(channels))
	for c, ch := range channels {
		scaled := make([]float64, len(ch))
		for i, x := range ch {
			scaled[i] = x * scale
		}
		out[c] = scaled
	}
	return out
}

// DBToGain converts decibels to a linear factor.
func DBToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

// VolumeToDB converts a volume percentage to decibels, flooring at MinGainDB.
func VolumeToDB(volumePercent float64) float64 {
	factor := max(volumePercent/Identity, DBToGain(MinGainDB))
	return 20 * math.Log10(factor)
}

// GainSteps splits a boost into equal stages of at most MaxGainStepDB.
// Cuts are always applied in one stage.
func GainSteps(db float64) []float64 {
	if db <= MaxGainStepDB {
		return []float64{db}
	}
	n := int(db/MaxGainStepDB) + 1
	steps := make([]float64, n)
	for i := range steps {
		steps[i] = db / float64(n)
	}
	return steps
}

// SteppedGain applies a volume change in stages. Boosted stages above 3 dB
// are followed by a compressor pass that only pulls peaks the stage pushed
// past the limiter knee, by at most the stage's own boost, so raising the
// volume never lowers the level. The result is soft limited.
func SteppedGain(samples []float64, sampleRate int, volumePercent float64) []float64 {
	kneeDB := 20 * math.Log10(DefaultLimitThreshold)
	out := fitLength(samples, len(samples))
	for _, step := range GainSteps(VolumeToDB(volumePercent)) {
		g := DBToGain(step)
		for i := range out {
			out[i] *= g
		}
		if step > 3 {
			out = compress(out, sampleRate, DefaultCompressThresholdDB, DefaultCompressRatio, step, kneeDB)
		}
	}
	return DefaultLimiter.SoftLimit(out)
}

// Compress is a feed-forward peak compressor with instant attack and a 50 ms
// release. Levels above thresholdDB are reduced by ratio.
func Compress(samples []float64, sampleRate int, thresholdDB, ratio float64) []float64 {
	return compress(samples, sampleRate, thresholdDB, ratio, math.Inf(1), math.Inf(-1))
}

// compress bounds the gain reduction by maxReductionDB and never pulls the
// envelope below floorDB.
func compress(samples []float64, sampleRate int, thresholdDB, ratio, maxReductionDB, floorDB float64) []float64 {
	out := make([]float64, len(samples))
	if sampleRate <= 0 || ratio <= 1 {
		copy(out, samples)
		return out
	}

	release := math.Exp(-1 / (compressReleaseMs * 0.001 * float64(sampleRate)))
	slope := 1 - 1/ratio

	env := 0.0
	for i, x := range samples {
		// The envelope jumps to rising peaks so onsets get the same
		// reduction as the steady state.
		env = max(math.Abs(x), release*env)
		if env <= tiny {
			out[i] = x
			continue
		}

		level := 20 * math.Log10(env)
		reduction := min((level-thresholdDB)*slope, maxReductionDB, level-floorDB)
		if reduction > 0 {
			out[i] = x * DBToGain(-reduction)
		} else {
			out[i] = x
		}
	}
	return out
}

// SPDX-License-Identifier: MIT
package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"yukkuri/pkg/bitint"
)

// WindowFunc selects the analysis window.
type WindowFunc int

const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

func (w WindowFunc) String() string {
	switch w {
	case BartlettHann:
		return "BartlettHann"
	case Blackman:
		return "Blackman"
	case BlackmanNuttall:
		return "BlackmanNuttall"
	case Hann:
		return "Hann"
	case Hamming:
		return "Hamming"
	case Lanczos:
		return "Lanczos"
	case Nuttall:
		return "Nuttall"
	default:
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
}

// ParseWindowFunc converts a case-insensitive name to a WindowFunc. Unknown
// names return Hann and an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown window function name: '%s'", name)
	}
}

func windowCoefficients(size int, w WindowFunc) []float64 {
	coeffs := make([]float64, size)
	for i := range coeffs {
		coeffs[i] = 1
	}
	switch w {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		window.Hann(coeffs)
	}
	return coeffs
}

// FrequencyBand is a named frequency range.
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands splits the audible range into six bands. The top band is
// closed at Nyquist when energies are computed.
var DefaultBands = []FrequencyBand{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "lowMid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "highMid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000, HighHz: math.Inf(1)},
}

// Spectrum is the averaged magnitude spectrum of a clip.
type Spectrum struct {
	SampleRate int
	FFTSize    int
	Magnitudes []float64
}

// Analyzer computes averaged magnitude spectra with a fixed FFT size.
type Analyzer struct {
	fftSize   int
	fft       *fourier.FFT
	window    []float64
	input     []float64
	fftOutput []complex128
}

// NewAnalyzer creates an analyzer. fftSize must be a power of two.
func NewAnalyzer(fftSize int, w WindowFunc) (*Analyzer, error) {
	if !bitint.IsPowerOfTwo(fftSize) || fftSize < minFrameSize {
		return nil, fmt.Errorf("fft size must be a power of 2 >= %d, got %d", minFrameSize, fftSize)
	}
	return &Analyzer{
		fftSize:   fftSize,
		fft:       fourier.NewFFT(fftSize),
		window:    windowCoefficients(fftSize, w),
		input:     make([]float64, fftSize),
		fftOutput: make([]complex128, fftSize/2+1),
	}, nil
}

// Analyze averages the magnitude spectra of half-overlapping frames of
// samples. Clips shorter than one frame are zero padded.
func (a *Analyzer) Analyze(samples []float64, sampleRate int) Spectrum {
	mags := make([]float64, a.fftSize/2+1)
	hop := a.fftSize / 2
	frames := 1
	if len(samples) > a.fftSize {
		frames = (len(samples)-a.fftSize)/hop + 1
	}

	for f := range frames {
		pos := f * hop
		for i := range a.fftSize {
			a.input[i] = sampleZero(samples, pos+i) * a.window[i]
		}
		a.fft.Coefficients(a.fftOutput, a.input)
		for i, c := range a.fftOutput {
			mags[i] += cmplx.Abs(c)
		}
	}
	for i := range mags {
		mags[i] /= float64(frames)
	}

	return Spectrum{SampleRate: sampleRate, FFTSize: a.fftSize, Magnitudes: mags}
}

// BinFrequency returns the center frequency of bin i in Hz.
func (s Spectrum) BinFrequency(i int) float64 {
	if i < 0 || i >= len(s.Magnitudes) {
		return 0
	}
	return float64(i) * float64(s.SampleRate) / float64(s.FFTSize)
}

// PeakBin returns the index of the largest magnitude in [startBin, endBin].
func (s Spectrum) PeakBin(startBin, endBin int) int {
	if len(s.Magnitudes) == 0 {
		return 0
	}
	startBin = max(startBin, 0)
	endBin = min(endBin, len(s.Magnitudes)-1)

	peak := startBin
	for bin := startBin + 1; bin <= endBin; bin++ {
		if s.Magnitudes[bin] > s.Magnitudes[peak] {
			peak = bin
		}
	}
	return peak
}

// DominantFrequency returns the frequency of the strongest bin above minHz,
// refined by parabolic interpolation across its neighbours.
func (s Spectrum) DominantFrequency(minHz float64) float64 {
	if len(s.Magnitudes) < 3 || s.SampleRate <= 0 {
		return 0
	}
	res := float64(s.SampleRate) / float64(s.FFTSize)
	start := max(1, int(math.Ceil(minHz/res)))
	k := s.PeakBin(start, len(s.Magnitudes)-2)

	y0, y1, y2 := s.Magnitudes[k-1], s.Magnitudes[k], s.Magnitudes[k+1]
	offset := 0.0
	if den := y0 - 2*y1 + y2; den != 0 {
		offset = 0.5 * (y0 - y2) / den
	}
	return (float64(k) + offset) * res
}

// BandEnergies returns the RMS magnitude of each band, keyed by band name.
func (s Spectrum) BandEnergies(bands []FrequencyBand) map[string]float64 {
	out := make(map[string]float64, len(bands))
	for _, band := range bands {
		var energy float64
		var n int
		for i, m := range s.Magnitudes {
			freq := s.BinFrequency(i)
			if freq >= band.LowHz && freq < band.HighHz {
				energy += m * m
				n++
			}
		}
		if n > 0 {
			energy = math.Sqrt(energy / float64(n))
		}
		out[band.Name] = energy
	}
	return out
}

// SPDX-License-Identifier: MIT
package dsp

import (
	"math"
	"math/rand/v2"
	"testing"

	"yukkuri/internal/testsignal"
)

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		name    string
		want    WindowFunc
		wantErr bool
	}{
		{"hann", Hann, false},
		{"Hanning", Hann, false},
		{"BLACKMAN", Blackman, false},
		{"hamming", Hamming, false},
		{"nuttall", Nuttall, false},
		{"triangle", Hann, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindowFunc(tt.name)
			if got != tt.want || (err != nil) != tt.wantErr {
				t.Errorf("ParseWindowFunc(%q) = %v, %v; want %v, err=%v", tt.name, got, err, tt.want, tt.wantErr)
			}
		})
	}
}

func TestNewAnalyzerRejectsBadSize(t *testing.T) {
	for _, size := range []int{0, 32, 1000} {
		if _, err := NewAnalyzer(size, Hann); err == nil {
			t.Errorf("NewAnalyzer(%d) expected error", size)
		}
	}
}

func TestDominantFrequency(t *testing.T) {
	for _, hz := range []float64{220, 440, 1000, 3150} {
		input := testsignal.Sine(testSampleRate, hz, 0.5, 0.5)
		if got := dominant(t, input); !within(got, hz, 0.005) {
			t.Errorf("DominantFrequency = %.2f Hz, want %.2f Hz", got, hz)
		}
	}
}

func TestBandEnergies(t *testing.T) {
	a, err := NewAnalyzer(4096, Hann)
	if err != nil {
		t.Fatal(err)
	}
	spec := a.Analyze(testsignal.Sine(testSampleRate, 1000, 0.5, 0.5), testSampleRate)
	energies := spec.BandEnergies(DefaultBands)

	if len(energies) != len(DefaultBands) {
		t.Fatalf("got %d bands, want %d", len(energies), len(DefaultBands))
	}
	for name, e := range energies {
		if name != "mid" && e >= energies["mid"] {
			t.Errorf("band %q energy %f >= mid energy %f for a 1 kHz tone", name, e, energies["mid"])
		}
	}
}

func TestSpectrumBinFrequency(t *testing.T) {
	spec := Spectrum{SampleRate: 48000, FFTSize: 1024, Magnitudes: make([]float64, 513)}
	if got := spec.BinFrequency(512); got != 24000 {
		t.Errorf("Nyquist bin = %f, want 24000", got)
	}
	if got := spec.BinFrequency(-1); got != 0 {
		t.Errorf("out of range bin = %f, want 0", got)
	}
}

func TestNoiseGateThreshold(t *testing.T) {
	tests := []struct {
		input, want float64
	}{
		{-0.1, 0.0}, // Below min
		{0.0, 0.0},
		{0.5, 0.5},
		{1.0, 1.0},
		{1.5, 1.0}, // Above max
	}
	g := NewNoiseGate(true, 0)
	for _, tt := range tests {
		g.SetThreshold(tt.input)
		if got := g.Threshold(); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("SetThreshold(%f): got %f, want %f", tt.input, got, tt.want)
		}
	}
}

func TestNoiseGateEnableDisable(t *testing.T) {
	g := NewNoiseGate(false, 0.5)
	if g.Enabled() {
		t.Error("gate should start disabled")
	}
	g.Enable()
	g.Enable()
	if !g.Enabled() {
		t.Error("gate should be enabled after Enable()")
	}
	g.Disable()
	if g.Enabled() {
		t.Error("gate should be disabled after Disable()")
	}

	input := testsignal.Sine(testSampleRate, testToneHz, 0.2, 0.5)
	out := g.Process(input)
	for i := range input {
		if out[i] != input[i] {
			t.Fatalf("disabled gate changed sample %d", i)
		}
	}
}

func TestNoiseGateAttenuatesFloor(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	half := testSampleRate / 2

	input := make([]float64, 2*half)
	tone := testsignal.Sine(testSampleRate, testToneHz, 0.5, 0.5)
	for i := range input {
		input[i] = (rng.Float64()*2 - 1) * 0.005
		if i >= half {
			input[i] += tone[i-half]
		}
	}

	out := NewNoiseGate(true, 0.5).Process(input)
	if len(out) != len(input) {
		t.Fatalf("length changed: %d != %d", len(out), len(input))
	}

	// Skip the frames straddling the onset.
	noiseIn, noiseOut := RMS(input[4096:half-4096]), RMS(out[4096:half-4096])
	if noiseOut >= noiseIn*0.5 {
		t.Errorf("noise floor not attenuated: %f -> %f", noiseIn, noiseOut)
	}
	toneIn, toneOut := RMS(input[half+4096:]), RMS(out[half+4096:])
	if toneOut < toneIn*0.9 {
		t.Errorf("tone attenuated: %f -> %f", toneIn, toneOut)
	}
}

func TestNoiseGateKeepsSpeechBetweenPauses(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	voice := testsignal.Voice(testSampleRate, 180, 0.4, 0.5)
	gap := testSampleRate / 4

	// voice, pause, voice, pause, voice over a constant hiss
	var input []float64
	var voiced [][2]int
	for i := range 3 {
		start := len(input)
		input = append(input, voice...)
		voiced = append(voiced, [2]int{start, len(input)})
		if i < 2 {
			input = append(input, make([]float64, gap)...)
		}
	}
	for i := range input {
		input[i] += (rng.Float64()*2 - 1) * 0.02
	}

	out := NewNoiseGate(true, 0.3).Process(input)
	if len(out) != len(input) {
		t.Fatalf("length changed: %d != %d", len(out), len(input))
	}
	if peak := Peak(out); peak > Peak(input)*1.2 {
		t.Errorf("output peak %f, input peak %f", peak, Peak(input))
	}
	if peak := Peak(out[:64]); peak > Peak(input[:64])*1.5+0.01 {
		t.Errorf("clip start peak %f", peak)
	}
	for _, r := range voiced {
		// Skip a frame at each edge of the voiced section.
		lo, hi := r[0]+2048, r[1]-2048
		in, got := RMS(input[lo:hi]), RMS(out[lo:hi])
		if got < in*0.9 || got > in*1.1 {
			t.Errorf("voiced RMS at %d: %f -> %f", r[0], in, got)
		}
	}
}

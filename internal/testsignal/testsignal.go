// Package testsignal generates deterministic fixtures for tests: tones,
// harmonic stacks and WAV files written with go-audio.
package testsignal

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Sine returns seconds of a sine at frequency Hz with the given amplitude.
func Sine(sampleRate int, frequency, seconds, amplitude float64) []float64 {
	n := int(math.Round(seconds * float64(sampleRate)))
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / float64(sampleRate)
		out[i] = amplitude * math.Sin(2*math.Pi*frequency*t)
	}
	return out
}

// Voice returns a harmonic stack on fundamental f0 (fundamental plus two
// decaying harmonics), a rough stand-in for voiced speech.
func Voice(sampleRate int, f0, seconds, amplitude float64) []float64 {
	n := int(math.Round(seconds * float64(sampleRate)))
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / float64(sampleRate)
		s := math.Sin(2*math.Pi*f0*t)*0.5 +
			math.Sin(2*math.Pi*2*f0*t)*0.3 +
			math.Sin(2*math.Pi*3*f0*t)*0.2
		out[i] = amplitude * s
	}
	return out
}

// WriteWAV writes channels as an interleaved PCM WAV file.
func WriteWAV(path string, sampleRate, bitDepth int, channels ...[]float64) error {
	if len(channels) == 0 {
		return fmt.Errorf("no channels to write")
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	frames := len(channels[0])
	full := float64(int(1)<<(bitDepth-1) - 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: len(channels), SampleRate: sampleRate},
		Data:           make([]int, frames*len(channels)),
		SourceBitDepth: bitDepth,
	}
	for i := range frames {
		for c, ch := range channels {
			v := 0.0
			if i < len(ch) {
				v = max(-1, min(1, ch[i]))
			}
			buf.Data[i*len(channels)+c] = int(math.Round(v * full))
		}
	}

	enc := wav.NewEncoder(f, sampleRate, bitDepth, len(channels), 1)
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// Tone writes a mono sine WAV of the given duration and returns its path.
func Tone(path string, sampleRate int, frequency, seconds, amplitude float64) (string, error) {
	return path, WriteWAV(path, sampleRate, 16, Sine(sampleRate, frequency, seconds, amplitude))
}

// SPDX-License-Identifier: MIT

// Package pipeline applies a pitch, speed and volume request to every channel
// of a decoded clip using a pluggable DSP backend.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"yukkuri/internal/dsp"
	"yukkuri/internal/log"
	"yukkuri/internal/media"
)

var (
	// ErrTransform reports a DSP failure on any channel.
	ErrTransform = errors.New("transform failed")
	// ErrInvalidRequest reports a request rejected before any processing.
	ErrInvalidRequest = errors.New("invalid request")
)

// Request holds the three adjustments as percentages, 100 meaning unchanged.
type Request struct {
	Speed  float64
	Volume float64
	Pitch  float64
}

// IdentityRequest leaves audio untouched.
var IdentityRequest = Request{Speed: dsp.Identity, Volume: dsp.Identity, Pitch: dsp.Identity}

// IsIdentity reports whether r changes nothing.
func (r Request) IsIdentity() bool {
	return r == IdentityRequest
}

// Validate rejects non-positive pitch and speed and negative volume. It runs
// before any logarithm of the values is taken.
func (r Request) Validate() error {
	if dsp.ValidatePitch(r.Pitch) != nil {
		return fmt.Errorf("%w: pitch %v%% must be positive", ErrInvalidRequest, r.Pitch)
	}
	if dsp.ValidateSpeed(r.Speed) != nil {
		return fmt.Errorf("%w: speed %v%% must be positive", ErrInvalidRequest, r.Speed)
	}
	if r.Volume < 0 || math.IsNaN(r.Volume) || math.IsInf(r.Volume, 0) {
		return fmt.Errorf("%w: volume %v%% must be zero or more", ErrInvalidRequest, r.Volume)
	}
	return nil
}

func (r Request) String() string {
	return fmt.Sprintf("speed=%g%% volume=%g%% pitch=%g%%", r.Speed, r.Volume, r.Pitch)
}

// Backend is one implementation of the three per-channel transforms. Every
// method returns a new slice and leaves its input untouched. ShiftPitch must
// preserve length.
type Backend interface {
	Name() string
	// Available reports whether the backend can run in this process.
	Available() error
	ShiftPitch(samples []float64, sampleRate int, pitch float64) ([]float64, error)
	StretchTime(samples []float64, sampleRate int, speed float64) ([]float64, error)
	ApplyGain(samples []float64, sampleRate int, volume float64) ([]float64, error)
}

// Pipeline runs a Backend over all channels of a buffer.
type Pipeline struct {
	Backend Backend
	// Gate, when non-nil and enabled, cleans each channel before it is
	// transformed.
	Gate *dsp.NoiseGate
	// Ceiling is the peak the finished buffer is normalized down to. Zero
	// uses dsp.DefaultPeakCeiling.
	Ceiling float64
	Log     log.LogFunc
}

// Run applies req to every channel of buf. Channels are processed
// concurrently on private copies with identical parameters and reassembled
// in their original order. An identity request returns buf itself.
//
// Pitch, speed and volume are applied in that order. If the backend returns
// channels of different lengths, all are truncated to the shortest. The
// result is peak normalized across channels so every sample lies in [-1, 1].
func (p *Pipeline) Run(ctx context.Context, buf *media.Buffer, req Request) (*media.Buffer, error) {
	if req.IsIdentity() {
		return buf, nil
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransform, err)
	}

	p.logStages(buf, req)

	results := make([][]float64, buf.NumChannels())
	g, ctx := errgroup.WithContext(ctx)
	for i, ch := range buf.Channels {
		samples := append([]float64(nil), ch...)
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: channel %d: panic: %v", ErrTransform, i, r)
				}
			}()
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := p.channel(samples, buf.SampleRate, req)
			if err != nil {
				return fmt.Errorf("%w: channel %d: %v", ErrTransform, i, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results = truncateToShortest(results)

	ceiling := p.Ceiling
	if ceiling <= 0 {
		ceiling = dsp.DefaultPeakCeiling
	}
	before := peakOf(results)
	results = dsp.PeakNormalize(results, ceiling)
	if before > ceiling {
		p.Log.Printf("Normalized peak %.3f down to %.2f", before, ceiling)
	}

	return &media.Buffer{SampleRate: buf.SampleRate, BitDepth: buf.BitDepth, Channels: results}, nil
}

func (p *Pipeline) channel(samples []float64, sampleRate int, req Request) ([]float64, error) {
	var err error
	if p.Gate != nil && p.Gate.Enabled() {
		samples = p.Gate.Process(samples)
	}
	if req.Pitch != dsp.Identity {
		if samples, err = p.Backend.ShiftPitch(samples, sampleRate, req.Pitch); err != nil {
			return nil, fmt.Errorf("pitch: %w", err)
		}
	}
	if req.Speed != dsp.Identity {
		if samples, err = p.Backend.StretchTime(samples, sampleRate, req.Speed); err != nil {
			return nil, fmt.Errorf("speed: %w", err)
		}
	}
	if req.Volume != dsp.Identity {
		if samples, err = p.Backend.ApplyGain(samples, sampleRate, req.Volume); err != nil {
			return nil, fmt.Errorf("volume: %w", err)
		}
	}
	for i, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite sample at %d", i)
		}
	}
	return samples, nil
}

func (p *Pipeline) logStages(buf *media.Buffer, req Request) {
	p.Log.Printf("Processing %d channel(s) at %d Hz with the %s backend", buf.NumChannels(), buf.SampleRate, p.Backend.Name())
	if p.Gate != nil && p.Gate.Enabled() {
		p.Log.Printf("Noise gate threshold %.2f", p.Gate.Threshold())
	}
	if req.Pitch != dsp.Identity {
		p.Log.Printf("Pitch shift %+.2f semitones (%g%%)", dsp.Semitones(req.Pitch), req.Pitch)
	}
	if req.Speed != dsp.Identity {
		p.Log.Printf("Time stretch x%.3f (%g%%)", dsp.DurationFactor(req.Speed), req.Speed)
	}
	if req.Volume != dsp.Identity {
		p.Log.Printf("Gain %+.1f dB (%g%%)", dsp.VolumeToDB(req.Volume), req.Volume)
	}
}

// truncateToShortest trims every channel to the shortest one so channels
// stay sample aligned.
func truncateToShortest(channels [][]float64) [][]float64 {
	if len(channels) == 0 {
		return channels
	}
	n := len(channels[0])
	for _, ch := range channels[1:] {
		n = min(n, len(ch))
	}
	for i := range channels {
		channels[i] = channels[i][:n]
	}
	return channels
}

func peakOf(channels [][]float64) float64 {
	peak := 0.0
	for _, ch := range channels {
		peak = max(peak, dsp.Peak(ch))
	}
	return peak
}

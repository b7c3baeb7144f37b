// SPDX-License-Identifier: MIT

// Package processor is the entry point used by the batch runner and the CLI:
// give it a clip and three percentages, get back the path of the clip to use.
package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"yukkuri/internal/bridge"
	"yukkuri/internal/config"
	"yukkuri/internal/dsp"
	"yukkuri/internal/log"
	"yukkuri/internal/pipeline"
)

// Request is one clip and the adjustments to apply to it, as integer
// percentages where 100 leaves an axis unchanged.
type Request struct {
	Path   string
	Speed  int
	Volume int
	Pitch  int
}

// IsIdentity reports whether the request changes nothing.
func (r Request) IsIdentity() bool {
	return r.Speed == 100 && r.Volume == 100 && r.Pitch == 100
}

// Adjustments converts the request to pipeline factors.
func (r Request) Adjustments() pipeline.Request {
	return pipeline.Request{Speed: float64(r.Speed), Volume: float64(r.Volume), Pitch: float64(r.Pitch)}
}

// Result reports what Process did.
type Result struct {
	// Path is the clip to use: the processed file on success, the original
	// on identity requests and failures.
	Path string
	// Tier is the backend that produced the audio, empty when nothing ran.
	Tier    string
	Changed bool
	Err     error
	Elapsed time.Duration
}

// Processor wraps a bridge controller with validation, the identity
// shortcut and panic recovery.
type Processor struct {
	controller *bridge.Controller
}

// New returns a Processor for the given controller.
func New(c *bridge.Controller) *Processor {
	return &Processor{controller: c}
}

// FromConfig builds a Processor from the application configuration.
func FromConfig(cfg *config.Config) *Processor {
	pc := cfg.Processing
	c := bridge.New(bridge.Options{
		FFmpegPath:  cfg.FFmpeg.FFmpegPath,
		FFprobePath: cfg.FFmpeg.FFprobePath,
		TempDir:     cfg.FFmpeg.TempDir,
		Bitrate:     cfg.FFmpeg.Bitrate,
		Timeout:     cfg.FFmpeg.Timeout,
	})
	c.HighQuality = &pipeline.Spectral{
		StretchFrame: pc.StretchFrame,
		PitchFrame:   pc.PitchFrame,
		Hop:          pc.Hop,
		Limiter:      dsp.Limiter{Threshold: pc.LimiterThreshold, Ratio: pc.LimiterRatio},
		Disabled:     !pc.HighQuality,
	}
	c.Ceiling = pc.PeakCeiling
	if pc.NoiseGate {
		c.Gate = dsp.NewNoiseGate(true, pc.NoiseGateThreshold)
	}
	return New(c)
}

// Controller exposes the underlying controller, e.g. for probing durations.
func (p *Processor) Controller() *bridge.Controller { return p.controller }

// Process adjusts the clip at path and returns the path of the clip to use.
// It never fails: rejected requests, processing errors and panics are
// reported through onLog and the original path is returned.
func (p *Processor) Process(path string, speed, volume, pitch int, onLog log.LogFunc) string {
	res := p.ProcessRequest(context.Background(), Request{Path: path, Speed: speed, Volume: volume, Pitch: pitch}, onLog)
	return res.Path
}

// ProcessRequest is Process with a context and a detailed result.
func (p *Processor) ProcessRequest(ctx context.Context, req Request, onLog log.LogFunc) (res Result) {
	start := time.Now()
	res.Path = req.Path

	if req.IsIdentity() {
		onLog.Printf("No adjustments requested for %s", filepath.Base(req.Path))
		return res
	}

	adj := req.Adjustments()
	if err := adj.Validate(); err != nil {
		onLog.Printf("Skipping %s: %v", filepath.Base(req.Path), err)
		res.Err = err
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			res = Result{
				Path:    req.Path,
				Err:     fmt.Errorf("%w: panic: %v", pipeline.ErrTransform, r),
				Elapsed: time.Since(start),
			}
			onLog.Printf("Processing %s aborted: %v", filepath.Base(req.Path), r)
		}
	}()

	onLog.Printf("Processing %s (%s)", filepath.Base(req.Path), adj)
	outcome, err := p.controller.Process(ctx, req.Path, adj, onLog)
	res.Elapsed = time.Since(start)
	if err != nil {
		res.Err = err
		onLog.Printf("Keeping original %s: %v", filepath.Base(req.Path), err)
		return res
	}

	res.Path = outcome.Path
	res.Tier = outcome.Tier
	res.Changed = true
	onLog.Printf("Finished %s in %s", filepath.Base(req.Path), res.Elapsed.Round(time.Millisecond))
	return res
}

// SPDX-License-Identifier: MIT

// Package bridge drives one clip through decode, transform, encode and
// in-place replacement, falling back to the lightweight backend when the
// high-quality path cannot finish.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"yukkuri/internal/dsp"
	"yukkuri/internal/log"
	"yukkuri/internal/media"
	"yukkuri/internal/pipeline"
)

// ProcessedSuffix is appended to the base name of the intermediate output.
const ProcessedSuffix = "_processed"

// State is a step of the controller.
type State int

const (
	StateStart State = iota
	StateHighQuality
	StateFallback
	StateEncode
	StateReplace
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateHighQuality:
		return "high-quality"
	case StateFallback:
		return "fallback"
	case StateEncode:
		return "encode"
	case StateReplace:
		return "replace"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options locate the external tools and tune the output.
type Options struct {
	FFmpegPath  string
	FFprobePath string
	// TempDir holds intermediate files. Empty uses os.TempDir().
	TempDir string
	Bitrate string
	// Timeout bounds each external tool invocation. Zero means none.
	Timeout time.Duration
}

// Controller owns the two backends and the codecs for both tiers.
type Controller struct {
	HighQuality pipeline.Backend
	Fallback    pipeline.Backend
	Gate        *dsp.NoiseGate
	Ceiling     float64
	Options     Options

	availOnce sync.Once
	availErr  error
}

// rename is swapped in tests to simulate platforms that refuse to move a
// file into place.
var rename = os.Rename

// New returns a controller with the spectral and resampling backends.
func New(opts Options) *Controller {
	return &Controller{
		HighQuality: pipeline.NewSpectral(),
		Fallback:    pipeline.Resampling{},
		Ceiling:     dsp.DefaultPeakCeiling,
		Options:     opts,
	}
}

// Outcome describes a finished run.
type Outcome struct {
	// Path is the file holding the result: the original path once replaced.
	// The one exception is a platform that let the original be removed but
	// refused the move into place; Path is then the _processed file, which
	// holds the only copy of the audio.
	Path string
	// Tier names the backend whose output was written.
	Tier string
	// Trace lists every state visited, ending in StateDone or StateFailed.
	Trace []State
}

// Prober returns the prober configured by Options.
func (c *Controller) Prober() media.Prober {
	return media.Prober{FFprobePath: c.Options.FFprobePath, Timeout: c.Options.Timeout}
}

func (c *Controller) registry(format media.SampleFormat) *media.Registry {
	return media.NewRegistry(media.FFmpegCodec{
		FFmpegPath: c.Options.FFmpegPath,
		Prober:     c.Prober(),
		Format:     format,
		Bitrate:    c.Options.Bitrate,
		Timeout:    c.Options.Timeout,
		TempDir:    c.Options.TempDir,
	})
}

// Decode reads path into float samples with the codec its extension maps to.
func (c *Controller) Decode(ctx context.Context, path string) (*media.Buffer, error) {
	codec, err := c.registry(media.Float32).Lookup(path)
	if err != nil {
		return nil, err
	}
	return codec.Decode(ctx, path)
}

// Preview applies req to buf in memory with the same degradation as
// Process: high quality first, the fallback if that is unavailable or fails.
func (c *Controller) Preview(ctx context.Context, buf *media.Buffer, req pipeline.Request, logf log.LogFunc) (*media.Buffer, error) {
	run := func(b pipeline.Backend) (*media.Buffer, error) {
		p := &pipeline.Pipeline{Backend: b, Gate: c.Gate, Ceiling: c.Ceiling, Log: logf}
		return p.Run(ctx, buf, req)
	}
	if !c.highQualityAvailable(logf) {
		return run(c.Fallback)
	}
	out, err := run(c.HighQuality)
	if err == nil || errors.Is(err, pipeline.ErrInvalidRequest) || ctx.Err() != nil {
		return out, err
	}
	logf.Printf("High-quality preview failed (%v), retrying with %s", err, c.Fallback.Name())
	return run(c.Fallback)
}

// highQualityAvailable probes the high-quality backend on first use and
// caches the answer. Unavailability is reported once, through the sink of
// the call that probed.
func (c *Controller) highQualityAvailable(logf log.LogFunc) bool {
	c.availOnce.Do(func() {
		if c.availErr = c.HighQuality.Available(); c.availErr != nil {
			logf.Printf("High-quality processing unavailable (%v), using %s", c.availErr, c.Fallback.Name())
		}
	})
	return c.availErr == nil
}

// ProcessedPath returns where the output for path is written before it
// replaces the original: "clip.mp3" becomes "clip_processed.mp3".
func ProcessedPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ProcessedSuffix + ext
}

// run carries the data passed between states.
type run struct {
	ctx     context.Context
	path    string
	req     pipeline.Request
	logf    log.LogFunc
	backend pipeline.Backend
	// fallback is set once the fallback backend has been chosen.
	fallback bool
	format   media.SampleFormat
	buf      *media.Buffer
	out      string
}

// Process runs the state machine for one clip. On success the clip at path
// has been replaced by the processed audio. On failure the original file is
// left as it was and the returned error wraps the last failure.
func (c *Controller) Process(ctx context.Context, path string, req pipeline.Request, logf log.LogFunc) (Outcome, error) {
	r := &run{ctx: ctx, path: path, req: req, logf: logf, out: ProcessedPath(path)}
	outcome := Outcome{Path: path}

	// Nothing but a verified rename may leave the intermediate behind.
	defer func() {
		if outcome.Path != r.out {
			os.Remove(r.out)
		}
	}()

	var lastErr error
	state := StateStart
	for {
		outcome.Trace = append(outcome.Trace, state)

		var err error
		next := state
		switch state {
		case StateStart:
			if c.highQualityAvailable(logf) {
				next = StateHighQuality
			} else {
				next = StateFallback
			}

		case StateHighQuality:
			r.backend, r.format = c.HighQuality, media.Float32
			err = c.transform(r)
			next = StateEncode

		case StateFallback:
			r.backend, r.format, r.fallback = c.Fallback, media.Int16, true
			err = c.transform(r)
			next = StateEncode

		case StateEncode:
			err = c.encode(r)
			next = StateReplace

		case StateReplace:
			var final string
			final, err = c.replace(r)
			if err == nil {
				outcome.Path = final
				outcome.Tier = r.backend.Name()
			}
			next = StateDone

		case StateDone:
			logf.Printf("Saved %s (%s)", filepath.Base(outcome.Path), outcome.Tier)
			return outcome, nil

		case StateFailed:
			outcome.Path = path
			return outcome, lastErr
		}

		if err != nil {
			lastErr = err
			next = c.onError(r, state, err)
		}
		state = next
	}
}

// onError picks the state after a failure. High-quality failures at any
// step retry the whole clip on the fallback; fallback failures and
// cancellation are terminal.
func (c *Controller) onError(r *run, state State, err error) State {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		r.logf.Printf("Processing cancelled: %v", err)
		return StateFailed
	}
	if errors.Is(err, pipeline.ErrInvalidRequest) {
		r.logf.Printf("Rejected: %v", err)
		return StateFailed
	}
	if !r.fallback {
		r.logf.Printf("High-quality %s step failed (%v), retrying with %s", state, err, c.Fallback.Name())
		os.Remove(r.out)
		r.buf = nil
		return StateFallback
	}
	r.logf.Printf("Processing failed at %s: %v", state, err)
	return StateFailed
}

func (c *Controller) transform(r *run) error {
	codec, err := c.registry(r.format).Lookup(r.path)
	if err != nil {
		return err
	}
	src, err := codec.Decode(r.ctx, r.path)
	if err != nil {
		return err
	}
	r.logf.Printf("Loaded %s: %d channel(s), %d Hz, %.2fs", filepath.Base(r.path), src.NumChannels(), src.SampleRate, src.Duration().Seconds())

	p := &pipeline.Pipeline{Backend: r.backend, Gate: c.Gate, Ceiling: c.Ceiling, Log: r.logf}
	r.buf, err = p.Run(r.ctx, src, r.req)
	return err
}

func (c *Controller) encode(r *run) error {
	codec, err := c.registry(r.format).Lookup(r.out)
	if err != nil {
		return err
	}
	if err := codec.Encode(r.ctx, r.out, r.buf); err != nil {
		return err
	}

	info, err := c.Prober().Probe(r.ctx, r.out)
	if err != nil {
		return fmt.Errorf("%w: verifying %s: %v", media.ErrEncode, filepath.Base(r.out), err)
	}
	if info.Duration <= 0 {
		return fmt.Errorf("%w: %s has zero duration", media.ErrEncode, filepath.Base(r.out))
	}
	r.logf.Printf("Encoded %s (%.2fs)", filepath.Base(r.out), info.Duration.Seconds())
	return nil
}

// replace moves the verified output over the original. Platforms that
// refuse to rename over an existing file get remove then rename. If the
// original is already gone when the second rename fails, the processed file
// is kept and returned so no audio is lost (see Outcome.Path).
func (c *Controller) replace(r *run) (string, error) {
	if err := rename(r.out, r.path); err == nil {
		return r.path, nil
	}
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("%w: removing original: %v", media.ErrEncode, err)
	}
	if err := rename(r.out, r.path); err != nil {
		log.Errorf("Original %s removed but %s could not replace it: %v", r.path, r.out, err)
		r.logf.Printf("Could not move %s into place (%v), result kept as %s",
			filepath.Base(r.out), err, filepath.Base(r.out))
		return r.out, nil
	}
	return r.path, nil
}

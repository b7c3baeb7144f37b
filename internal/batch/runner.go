// SPDX-License-Identifier: MIT

// Package batch drives the processor over a whole script: one synthesized
// clip per text line, processed in order, followed by the subtitle files.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"yukkuri/internal/log"
	"yukkuri/internal/media"
	"yukkuri/internal/processor"
	"yukkuri/internal/subtitle"
)

// Synthesizer produces the raw clip for one line of text. index is 1-based.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, index int) (string, error)
}

// Processor adjusts one clip.
type Processor interface {
	ProcessRequest(ctx context.Context, req processor.Request, onLog log.LogFunc) processor.Result
}

// DurationProber reports a clip's length in seconds.
type DurationProber interface {
	DurationSeconds(path string) float64
}

// ProgressFunc receives the completed percentage and a short status line.
type ProgressFunc func(percent float64, status string)

// Job is one script to render.
type Job struct {
	ID    string
	Lines []string
	// Translation, when set, holds a second-language rendering of Lines and
	// makes the job bilingual: one subtitle file per language.
	Translation []string

	Speed  int
	Volume int
	Pitch  int

	// Subtitles enables LRC output into OutputDir named after Name.
	Subtitles bool
	OutputDir string
	Name      string
	Tags      subtitle.Tags
}

// Summary reports the outcome of a job.
type Summary struct {
	JobID string
	// Clips holds the path to use for every line that produced audio, in
	// line order.
	Clips     []string
	Processed int
	Unchanged int
	Failed    int
	Skipped   int
	Subtitles []string
	Cancelled bool
	Elapsed   time.Duration
}

// Runner executes jobs one line at a time.
type Runner struct {
	Synth     Synthesizer
	Processor Processor
	Prober    DurationProber
	Log       log.LogFunc
	Progress  ProgressFunc
}

func (r *Runner) progress(percent float64, status string) {
	if r.Progress != nil {
		r.Progress(percent, status)
	}
}

// Run renders every line of job. A failing line is logged and skipped.
// Cancellation is checked between lines, never inside one.
func (r *Runner) Run(ctx context.Context, job Job) Summary {
	start := time.Now()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	sum := Summary{JobID: job.ID}
	total := len(job.Lines)
	r.Log.Printf("Starting job %s: %d line(s)", job.ID, total)

	var texts, translated []string
	for i, line := range job.Lines {
		if err := ctx.Err(); err != nil {
			r.Log.Printf("Job stopped after %d/%d line(s)", i, total)
			sum.Cancelled = true
			break
		}
		r.progress(float64(i)/float64(total)*100, fmt.Sprintf("%d/%d", i+1, total))

		text := strings.TrimSpace(line)
		if text == "" {
			r.Log.Printf("Skipping line %d (empty)", i+1)
			sum.Skipped++
			continue
		}

		clip, err := r.Synth.Synthesize(ctx, text, i+1)
		if err != nil {
			r.Log.Printf("Line %d failed: %v", i+1, err)
			sum.Failed++
			continue
		}

		res := r.Processor.ProcessRequest(ctx, processor.Request{
			Path: clip, Speed: job.Speed, Volume: job.Volume, Pitch: job.Pitch,
		}, r.Log)
		if res.Changed {
			sum.Processed++
			r.Log.Printf("Line %d processed", i+1)
		} else {
			sum.Unchanged++
			r.Log.Printf("Line %d ready (unprocessed)", i+1)
		}

		sum.Clips = append(sum.Clips, res.Path)
		texts = append(texts, text)
		if job.Translation != nil {
			var tr string
			if i < len(job.Translation) {
				tr = job.Translation[i]
			}
			translated = append(translated, tr)
		}
	}

	if job.Subtitles && len(sum.Clips) > 0 {
		sum.Subtitles = r.writeSubtitles(job, sum.Clips, texts, translated)
	}

	sum.Elapsed = time.Since(start)
	r.progress(100, fmt.Sprintf("done %d/%d", len(sum.Clips), total))
	r.Log.Printf("Job %s finished: %d/%d clip(s), %d processed", job.ID, len(sum.Clips), total, sum.Processed)
	return sum
}

func (r *Runner) writeSubtitles(job Job, clips, texts, translated []string) []string {
	var prober DurationProber = media.Prober{}
	if r.Prober != nil {
		prober = r.Prober
	}
	durations := make([]float64, len(clips))
	for i, c := range clips {
		durations[i] = prober.DurationSeconds(c)
	}

	name := job.Name
	if name == "" {
		name = job.ID
	}
	type output struct {
		suffix string
		lines  []string
	}
	outputs := []output{{"", texts}}
	if job.Translation != nil {
		outputs = []output{{subtitle.SuffixChinese, texts}, {subtitle.SuffixJapanese, translated}}
	}

	var written []string
	for _, o := range outputs {
		path := subtitle.Path(job.OutputDir, name, o.suffix)
		if err := subtitle.WriteFile(path, subtitle.Build(o.lines, durations, job.Tags)); err != nil {
			r.Log.Printf("Subtitle %s failed: %v", filepath.Base(path), err)
			continue
		}
		r.Log.Printf("Wrote subtitle %s", filepath.Base(path))
		written = append(written, path)
	}
	return written
}

// StaticSynthesizer serves clips that already exist on disk: line i maps
// to Paths[i-1].
type StaticSynthesizer struct {
	Paths []string
}

// Synthesize returns the clip for index.
func (s StaticSynthesizer) Synthesize(ctx context.Context, _ string, index int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if index < 1 || index > len(s.Paths) {
		return "", fmt.Errorf("no clip for line %d", index)
	}
	path := s.Paths[index-1]
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("clip for line %d: %w", index, err)
	}
	return path, nil
}

// FromDir lists the clips in dir with one of exts, sorted by name.
func FromDir(dir string, exts []string) (StaticSynthesizer, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return StaticSynthesizer{}, fmt.Errorf("reading clip directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !matches(e.Name(), exts) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	slices.Sort(paths)
	return StaticSynthesizer{Paths: paths}, nil
}

func matches(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// ReadLines reads a script file, one line of dialogue per line, dropping
// blank lines.
func ReadLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	var lines []string
	text := strings.TrimPrefix(string(data), "\ufeff")
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

// SPDX-License-Identifier: MIT
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// DefaultDuration is reported by DurationSeconds for unreadable files so a
// subtitle timeline can still advance.
const DefaultDuration = 5.0

// Info is the stream description of an audio file.
type Info struct {
	Codec      string
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// Prober reads stream information. WAV headers are parsed directly; other
// formats are inspected with ffprobe.
type Prober struct {
	FFprobePath string
	Timeout     time.Duration
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		Duration   string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns the first audio stream of path.
func (p Prober) Probe(ctx context.Context, path string) (Info, error) {
	if Ext(path) == ".wav" {
		wi, err := ReadWAVInfo(path)
		if err == nil {
			return Info{Codec: wi.CodecName(), SampleRate: wi.SampleRate, Channels: wi.Channels, Duration: wi.Duration}, nil
		}
		// Headers the WAV decoder cannot parse fall through to ffprobe.
		if !errors.Is(err, ErrDecode) {
			return Info{}, err
		}
	}
	return p.ffprobe(ctx, path)
}

func (p Prober) ffprobe(ctx context.Context, path string) (Info, error) {
	bin := p.FFprobePath
	if bin == "" {
		bin = "ffprobe"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return Info{}, fmt.Errorf("%w: ffprobe: %v", ErrDependencyUnavailable, err)
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-v", "error", "-show_streams", "-show_format", "-of", "json", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Info{}, fmt.Errorf("%w: ffprobe %s: %v: %s", ErrDecode, path, err, bytes.TrimSpace(stderr.Bytes()))
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Info{}, fmt.Errorf("%w: ffprobe output for %s: %v", ErrDecode, path, err)
	}

	for _, s := range out.Streams {
		if s.CodecType != "audio" {
			continue
		}
		info := Info{Codec: s.CodecName, Channels: s.Channels}
		info.SampleRate, _ = strconv.Atoi(s.SampleRate)

		d := s.Duration
		if d == "" || d == "N/A" {
			d = out.Format.Duration
		}
		if secs, err := strconv.ParseFloat(d, 64); err == nil {
			info.Duration = time.Duration(secs * float64(time.Second))
		}
		if info.SampleRate <= 0 || info.Channels <= 0 {
			return Info{}, fmt.Errorf("%w: %s has an invalid audio stream", ErrDecode, path)
		}
		return info, nil
	}
	return Info{}, fmt.Errorf("%w: %s has no audio stream", ErrDecode, path)
}

// DurationSeconds returns the duration of path in seconds, or DefaultDuration
// when the file cannot be probed.
func (p Prober) DurationSeconds(path string) float64 {
	info, err := p.Probe(context.Background(), path)
	if err != nil || info.Duration <= 0 {
		return DefaultDuration
	}
	return info.Duration.Seconds()
}

// SPDX-License-Identifier: MIT
package processor

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"yukkuri/internal/bridge"
	"yukkuri/internal/config"
	"yukkuri/internal/log"
	"yukkuri/internal/media"
	"yukkuri/internal/pipeline"
	"yukkuri/internal/testsignal"
)

const testSampleRate = 44100

type panicking struct{}

func (panicking) Name() string     { return "panicking" }
func (panicking) Available() error { return nil }
func (panicking) ShiftPitch([]float64, int, float64) ([]float64, error) {
	panic("boom")
}
func (panicking) StretchTime([]float64, int, float64) ([]float64, error) {
	panic("boom")
}
func (panicking) ApplyGain([]float64, int, float64) ([]float64, error) {
	panic("boom")
}

func tone(t *testing.T, seconds float64) string {
	t.Helper()
	path, err := testsignal.Tone(filepath.Join(t.TempDir(), "line.wav"), testSampleRate, 440, seconds, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	return path
}

func duration(t *testing.T, path string) float64 {
	t.Helper()
	info, err := media.ReadWAVInfo(path)
	if err != nil {
		t.Fatal(err)
	}
	return info.Duration.Seconds()
}

func defaultProcessor() *Processor {
	cfg := config.Default()
	return FromConfig(&cfg)
}

func TestProcessIdentity(t *testing.T) {
	path := tone(t, 1)
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var logs log.Collector
	if got := defaultProcessor().Process(path, 100, 100, 100, logs.Log); got != path {
		t.Errorf("identity returned %q", got)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("identity request rewrote the clip")
	}
	if !logs.Contains("No adjustments") {
		t.Errorf("logs %v", logs.Messages())
	}
}

func TestProcessSpeed(t *testing.T) {
	path := tone(t, 2)
	got := defaultProcessor().Process(path, 150, 100, 100, nil)
	if got != path {
		t.Fatalf("Process returned %q, want %q", got, path)
	}
	want := 2.0 / 1.5
	if d := duration(t, got); math.Abs(d-want)/want > 0.02 {
		t.Errorf("duration %.3fs, want %.3fs", d, want)
	}
}

func TestProcessPitchKeepsDuration(t *testing.T) {
	for _, hq := range []bool{true, false} {
		name := "spectral"
		if !hq {
			name = "resampling"
		}
		t.Run(name, func(t *testing.T) {
			path := tone(t, 1)
			cfg := config.Default()
			cfg.Processing.HighQuality = hq

			res := FromConfig(&cfg).ProcessRequest(context.Background(), Request{Path: path, Speed: 100, Volume: 100, Pitch: 130}, nil)
			if res.Err != nil {
				t.Fatalf("ProcessRequest: %v", res.Err)
			}
			if res.Tier != name || !res.Changed {
				t.Errorf("result %+v", res)
			}
			if d := duration(t, res.Path); math.Abs(d-1) > 0.02 {
				t.Errorf("duration %.3fs, want 1s", d)
			}
		})
	}
}

func TestProcessStereo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	left := testsignal.Sine(testSampleRate, 440, 1, 0.3)
	right := testsignal.Sine(testSampleRate, 660, 1, 0.3)
	if err := testsignal.WriteWAV(path, testSampleRate, 16, left, right); err != nil {
		t.Fatal(err)
	}

	res := defaultProcessor().ProcessRequest(context.Background(), Request{Path: path, Speed: 100, Volume: 200, Pitch: 150}, nil)
	if res.Err != nil {
		t.Fatalf("ProcessRequest: %v", res.Err)
	}
	info, err := media.ReadWAVInfo(res.Path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Channels != 2 {
		t.Errorf("channels %d, want 2", info.Channels)
	}
}

func TestProcessRejectsInvalid(t *testing.T) {
	tests := []struct {
		name                 string
		speed, volume, pitch int
	}{
		{"zero pitch", 100, 100, 0},
		{"negative pitch", 100, 100, -20},
		{"zero speed", 0, 100, 100},
		{"negative volume", 100, -1, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tone(t, 0.25)
			var logs log.Collector
			res := defaultProcessor().ProcessRequest(context.Background(), Request{Path: path, Speed: tt.speed, Volume: tt.volume, Pitch: tt.pitch}, logs.Log)
			if res.Path != path || res.Changed {
				t.Errorf("result %+v", res)
			}
			if !errors.Is(res.Err, pipeline.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", res.Err)
			}
			if !logs.Contains("Skipping") {
				t.Errorf("rejection not logged: %v", logs.Messages())
			}
		})
	}
}

func TestProcessMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.wav")
	if got := defaultProcessor().Process(path, 120, 100, 100, nil); got != path {
		t.Errorf("missing file returned %q", got)
	}
}

func TestProcessRecoversPanic(t *testing.T) {
	path := tone(t, 0.25)
	c := bridge.New(bridge.Options{})
	c.HighQuality, c.Fallback = panicking{}, panicking{}

	var logs log.Collector
	res := New(c).ProcessRequest(context.Background(), Request{Path: path, Speed: 120, Volume: 100, Pitch: 100}, logs.Log)
	if res.Path != path {
		t.Errorf("path %q, want original", res.Path)
	}
	if res.Err == nil {
		t.Error("expected an error")
	}
}

// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.Processing.StretchFrame != DefaultStretchFrame || cfg.FFmpeg.Bitrate != DefaultBitrate {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeTempConfig(t, `
log_level: debug
processing:
  high_quality: false
  pitch_frame: 8192
  speed: 130
ffmpeg:
  ffmpeg_path: /opt/ffmpeg/bin/ffmpeg
  timeout: 45s
subtitle:
  title: Chapter 1
batch:
  extensions: [".mp3"]
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.Processing.HighQuality {
		t.Errorf("top level fields not loaded: %+v", cfg)
	}
	if cfg.Processing.PitchFrame != 8192 || cfg.Processing.Speed != 130 {
		t.Errorf("processing not loaded: %+v", cfg.Processing)
	}
	// Unset keys keep their defaults.
	if cfg.Processing.StretchFrame != DefaultStretchFrame || cfg.Processing.Volume != DefaultPercent {
		t.Errorf("defaults lost: %+v", cfg.Processing)
	}
	if cfg.FFmpeg.FFmpegPath != "/opt/ffmpeg/bin/ffmpeg" || cfg.FFmpeg.Timeout != 45*time.Second {
		t.Errorf("ffmpeg not loaded: %+v", cfg.FFmpeg)
	}
	if cfg.FFmpeg.FFprobePath != DefaultFFprobePath {
		t.Errorf("ffprobe default lost: %q", cfg.FFmpeg.FFprobePath)
	}
	if cfg.Subtitle.Title != "Chapter 1" || len(cfg.Batch.Extensions) != 1 {
		t.Errorf("subtitle/batch not loaded: %+v %+v", cfg.Subtitle, cfg.Batch)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENV_FFMPEG_PATH", "/usr/local/bin/ffmpeg")
	t.Setenv("ENV_HIGH_QUALITY", "false")
	t.Setenv("ENV_NOISE_GATE", "true")
	t.Setenv("ENV_FFMPEG_TIMEOUT", "10s")
	t.Setenv("ENV_UDP_ENABLED", "not-a-bool")

	path := writeTempConfig(t, "ffmpeg:\n  ffmpeg_path: /from/file\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.FFmpeg.FFmpegPath != "/usr/local/bin/ffmpeg" {
		t.Errorf("env did not override file: %q", cfg.FFmpeg.FFmpegPath)
	}
	if cfg.Processing.HighQuality || !cfg.Processing.NoiseGate {
		t.Errorf("boolean overrides not applied: %+v", cfg.Processing)
	}
	if cfg.FFmpeg.Timeout != 10*time.Second {
		t.Errorf("timeout %v, want 10s", cfg.FFmpeg.Timeout)
	}
	if cfg.Transport.UDPEnabled {
		t.Error("unparseable bool should be ignored")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"frame not pow2", func(c *Config) { c.Processing.StretchFrame = 1000 }, "stretch_frame"},
		{"hop too large", func(c *Config) { c.Processing.Hop = 4096 }, "hop"},
		{"limiter threshold", func(c *Config) { c.Processing.LimiterThreshold = 1.5 }, "limiter_threshold"},
		{"ceiling", func(c *Config) { c.Processing.PeakCeiling = 0 }, "peak_ceiling"},
		{"gate threshold", func(c *Config) { c.Processing.NoiseGateThreshold = -0.1 }, "noise_gate_threshold"},
		{"pitch zero", func(c *Config) { c.Processing.Pitch = 0 }, "processing.pitch"},
		{"volume negative", func(c *Config) { c.Processing.Volume = -5 }, "processing.volume"},
		{"bitrate", func(c *Config) { c.FFmpeg.Bitrate = "loud" }, "bitrate"},
		{"ffmpeg path", func(c *Config) { c.FFmpeg.FFmpegPath = "" }, "ffmpeg_path"},
		{"extension", func(c *Config) { c.Batch.Extensions = []string{"mp3"} }, "extensions"},
		{"device", func(c *Config) { c.Playback.OutputDevice = -2 }, "output_device"},
		{"udp address", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = "localhost"
		}, "udp_target_address"},
		{"ws path", func(c *Config) {
			c.Transport.WebSocketEnabled = true
			c.Transport.WebSocketPath = "ws"
		}, "websocket_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected error containing %q, got %v", tt.errMsg, err)
			}
		})
	}
}

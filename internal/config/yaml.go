// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"yukkuri/internal/log"
	"yukkuri/pkg/bitint"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug      bool             `yaml:"debug"`     // Enable debug logging.
	LogLevel   string           `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	Processing ProcessingConfig `yaml:"processing"`
	FFmpeg     FFmpegConfig     `yaml:"ffmpeg"`
	Subtitle   SubtitleConfig   `yaml:"subtitle"`
	Batch      BatchConfig      `yaml:"batch"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Transport  TransportConfig  `yaml:"transport"`
}

// ProcessingConfig holds the DSP settings and the default request.
type ProcessingConfig struct {
	HighQuality        bool    `yaml:"high_quality"`         // Try the phase vocoder before the resampling fallback.
	StretchFrame       int     `yaml:"stretch_frame"`        // Vocoder frame size for time stretching (power of 2).
	PitchFrame         int     `yaml:"pitch_frame"`          // Vocoder frame size for pitch shifting (power of 2).
	Hop                int     `yaml:"hop"`                  // Vocoder synthesis hop in samples.
	LimiterThreshold   float64 `yaml:"limiter_threshold"`    // Soft limiter knee, fraction of full scale.
	LimiterRatio       float64 `yaml:"limiter_ratio"`        // Slope above the knee.
	PeakCeiling        float64 `yaml:"peak_ceiling"`         // Final peak normalization target.
	NoiseGate          bool    `yaml:"noise_gate"`           // Gate each channel before transforming.
	NoiseGateThreshold float64 `yaml:"noise_gate_threshold"` // 0..1, higher gates more.
	Speed              int     `yaml:"speed"`                // Default speed percent for batch and watch.
	Volume             int     `yaml:"volume"`               // Default volume percent for batch and watch.
	Pitch              int     `yaml:"pitch"`                // Default pitch percent for batch and watch.
}

// FFmpegConfig locates the external tools used for compressed formats.
type FFmpegConfig struct {
	FFmpegPath  string        `yaml:"ffmpeg_path"`
	FFprobePath string        `yaml:"ffprobe_path"`
	Bitrate     string        `yaml:"bitrate"`  // Lossy target bitrate, e.g. "320k".
	Timeout     time.Duration `yaml:"timeout"`  // Per invocation, 0 for none.
	TempDir     string        `yaml:"temp_dir"` // Intermediate files, empty for the system temp directory.
}

// SubtitleConfig holds the LRC header tags.
type SubtitleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Artist  string `yaml:"artist"`
	Title   string `yaml:"title"`
	Album   string `yaml:"album"`
}

// BatchConfig controls the batch and watch commands.
type BatchConfig struct {
	Extensions []string      `yaml:"extensions"` // Clip extensions picked up by watch.
	Settle     time.Duration `yaml:"settle"`     // Wait after a file appears before processing it.
}

// PlaybackConfig holds preview settings.
type PlaybackConfig struct {
	OutputDevice    int `yaml:"output_device"`     // PortAudio device index (-1 for default).
	FramesPerBuffer int `yaml:"frames_per_buffer"` // Frames per PortAudio callback.
}

// TransportConfig holds settings for forwarding progress messages.
type TransportConfig struct {
	WebSocketEnabled bool   `yaml:"websocket_enabled"`
	WebSocketAddress string `yaml:"websocket_address"` // Listen address, e.g. "127.0.0.1:8787".
	WebSocketPath    string `yaml:"websocket_path"`
	UDPEnabled       bool   `yaml:"udp_enabled"`
	UDPTargetAddress string `yaml:"udp_target_address"` // e.g. "127.0.0.1:9090".
}

var bitrateRe = regexp.MustCompile(`^[0-9]+k?$`)

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{"config.yaml", "yukkuri.yaml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}

	p := c.Processing
	for name, frame := range map[string]int{"stretch_frame": p.StretchFrame, "pitch_frame": p.PitchFrame} {
		if !bitint.InRange(frame, MinFrameSize, MaxFrameSize) {
			return fmt.Errorf("processing.%s must be a power of 2 in [%d, %d], got %d", name, MinFrameSize, MaxFrameSize, frame)
		}
		if p.Hop <= 0 || p.Hop >= frame {
			return fmt.Errorf("processing.hop must be in (0, %s), got %d", name, p.Hop)
		}
	}
	if p.LimiterThreshold <= 0 || p.LimiterThreshold > 1 {
		return fmt.Errorf("processing.limiter_threshold must be in (0, 1], got %v", p.LimiterThreshold)
	}
	if p.LimiterRatio < 0 || p.LimiterRatio > 1 {
		return fmt.Errorf("processing.limiter_ratio must be in [0, 1], got %v", p.LimiterRatio)
	}
	if p.PeakCeiling <= 0 || p.PeakCeiling > 1 {
		return fmt.Errorf("processing.peak_ceiling must be in (0, 1], got %v", p.PeakCeiling)
	}
	if p.NoiseGateThreshold < 0 || p.NoiseGateThreshold > 1 {
		return fmt.Errorf("processing.noise_gate_threshold must be in [0, 1], got %v", p.NoiseGateThreshold)
	}
	if p.Speed <= 0 || p.Speed > MaxPercent || p.Pitch <= 0 || p.Pitch > MaxPercent {
		return fmt.Errorf("processing.speed and processing.pitch must be in (0, %d]", MaxPercent)
	}
	if p.Volume < 0 || p.Volume > MaxPercent {
		return fmt.Errorf("processing.volume must be in [0, %d], got %d", MaxPercent, p.Volume)
	}

	if c.FFmpeg.FFmpegPath == "" || c.FFmpeg.FFprobePath == "" {
		return fmt.Errorf("ffmpeg.ffmpeg_path and ffmpeg.ffprobe_path must be set")
	}
	if !bitrateRe.MatchString(c.FFmpeg.Bitrate) {
		return fmt.Errorf("ffmpeg.bitrate %q must look like 320k", c.FFmpeg.Bitrate)
	}
	if c.FFmpeg.Timeout < 0 {
		return fmt.Errorf("ffmpeg.timeout must not be negative")
	}

	for _, ext := range c.Batch.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("batch.extensions entry %q must start with a dot", ext)
		}
	}

	if c.Playback.OutputDevice < MinDeviceID {
		return fmt.Errorf("playback.output_device must be >= %d", MinDeviceID)
	}
	if c.Playback.FramesPerBuffer <= 0 || c.Playback.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("playback.frames_per_buffer must be in (0, %d]", MaxBufferFrames)
	}

	if c.Transport.WebSocketEnabled {
		if _, _, err := net.SplitHostPort(c.Transport.WebSocketAddress); err != nil {
			return fmt.Errorf("transport.websocket_address %q: %w", c.Transport.WebSocketAddress, err)
		}
		if !strings.HasPrefix(c.Transport.WebSocketPath, "/") {
			return fmt.Errorf("transport.websocket_path must start with /")
		}
	}
	if c.Transport.UDPEnabled {
		if _, _, err := net.SplitHostPort(c.Transport.UDPTargetAddress); err != nil {
			return fmt.Errorf("transport.udp_target_address %q: %w", c.Transport.UDPTargetAddress, err)
		}
	}
	return nil
}

// applyEnvOverrides lets ENV_* variables replace file and default values.
// Values that fail to parse are ignored.
func (cfg *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.

	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			log.Debugf("configuration: Overriding debug from env: %v", bVal)
		}
	}
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		log.Debugf("configuration: Overriding log_level from env: %s", val)
	}

	// ENV_{FFMPEG,FFPROBE,...}
	// These locate the external tools.

	if val, ok := os.LookupEnv("ENV_FFMPEG_PATH"); ok {
		cfg.FFmpeg.FFmpegPath = val
		log.Debugf("configuration: Overriding ffmpeg.ffmpeg_path from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_FFPROBE_PATH"); ok {
		cfg.FFmpeg.FFprobePath = val
		log.Debugf("configuration: Overriding ffmpeg.ffprobe_path from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_TEMP_DIR"); ok {
		cfg.FFmpeg.TempDir = val
		log.Debugf("configuration: Overriding ffmpeg.temp_dir from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_FFMPEG_TIMEOUT"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.FFmpeg.Timeout = dur
			log.Debugf("configuration: Overriding ffmpeg.timeout from env: %s", dur)
		}
	}

	// ENV_{HIGH_QUALITY,NOISE_GATE}
	// These switch processing tiers and stages.

	if val, ok := os.LookupEnv("ENV_HIGH_QUALITY"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Processing.HighQuality = bVal
			log.Debugf("configuration: Overriding processing.high_quality from env: %v", bVal)
		}
	}
	if val, ok := os.LookupEnv("ENV_NOISE_GATE"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Processing.NoiseGate = bVal
			log.Debugf("configuration: Overriding processing.noise_gate from env: %v", bVal)
		}
	}

	// ENV_{UDP,WS}_{...}
	// These are specific to the transport layer.

	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			log.Debugf("configuration: Overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		log.Debugf("configuration: Overriding transport.udp_target_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.WebSocketEnabled = bVal
			log.Debugf("configuration: Overriding transport.websocket_enabled from env: %v", bVal)
		}
	}
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		cfg.Transport.WebSocketAddress = val
		log.Debugf("configuration: Overriding transport.websocket_address from env: %s", val)
	}
}

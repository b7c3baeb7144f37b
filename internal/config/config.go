package config

import "time"

// Defaults and limits for the processor configuration.
const (
	DefaultLogLevel = "info"

	// Processing defaults
	DefaultHighQuality        = true
	DefaultStretchFrame       = 2048 // Vocoder frame for time stretching
	DefaultPitchFrame         = 4096 // Longer frame resolves partials for pitch shifting
	DefaultHop                = 512
	DefaultLimiterThreshold   = 0.95
	DefaultLimiterRatio       = 0.1
	DefaultPeakCeiling        = 0.95
	DefaultNoiseGate          = false
	DefaultNoiseGateThreshold = 0.3
	DefaultPercent            = 100 // Speed, volume and pitch leave audio unchanged

	// External tools
	DefaultFFmpegPath  = "ffmpeg"
	DefaultFFprobePath = "ffprobe"
	DefaultBitrate     = "320k"
	DefaultTimeout     = 2 * time.Minute

	// Preview playback
	DefaultOutputDevice    = MinDeviceID
	DefaultFramesPerBuffer = 512

	// Transport
	DefaultWebSocketAddress = "127.0.0.1:8787"
	DefaultWebSocketPath    = "/ws"
	DefaultUDPTargetAddress = "127.0.0.1:9090"

	// Limits
	MinDeviceID     = -1 // -1 represents the system default device
	MinFrameSize    = 64
	MaxFrameSize    = 65536
	MaxBufferFrames = 8192
	MaxPercent      = 1000
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Debug:    false,
		LogLevel: DefaultLogLevel,
		Processing: ProcessingConfig{
			HighQuality:        DefaultHighQuality,
			StretchFrame:       DefaultStretchFrame,
			PitchFrame:         DefaultPitchFrame,
			Hop:                DefaultHop,
			LimiterThreshold:   DefaultLimiterThreshold,
			LimiterRatio:       DefaultLimiterRatio,
			PeakCeiling:        DefaultPeakCeiling,
			NoiseGate:          DefaultNoiseGate,
			NoiseGateThreshold: DefaultNoiseGateThreshold,
			Speed:              DefaultPercent,
			Volume:             DefaultPercent,
			Pitch:              DefaultPercent,
		},
		FFmpeg: FFmpegConfig{
			FFmpegPath:  DefaultFFmpegPath,
			FFprobePath: DefaultFFprobePath,
			Bitrate:     DefaultBitrate,
			Timeout:     DefaultTimeout,
		},
		Subtitle: SubtitleConfig{
			Enabled: true,
			Artist:  "yukkuri",
		},
		Batch: BatchConfig{
			Extensions: []string{".mp3", ".wav"},
			Settle:     500 * time.Millisecond,
		},
		Playback: PlaybackConfig{
			OutputDevice:    DefaultOutputDevice,
			FramesPerBuffer: DefaultFramesPerBuffer,
		},
		Transport: TransportConfig{
			WebSocketEnabled: false,
			WebSocketAddress: DefaultWebSocketAddress,
			WebSocketPath:    DefaultWebSocketPath,
			UDPEnabled:       false,
			UDPTargetAddress: DefaultUDPTargetAddress,
		},
	}
}

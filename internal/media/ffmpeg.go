// SPDX-License-Identifier: MIT
package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// DefaultBitrate is the lossy target bitrate.
const DefaultBitrate = "320k"

// SampleFormat is the raw PCM layout ffmpeg decodes into.
type SampleFormat int

const (
	// Float32 decodes to 32-bit float, used by the high-quality path.
	Float32 SampleFormat = iota
	// Int16 decodes to 16-bit integers, used by the fallback path.
	Int16
)

func (f SampleFormat) String() string {
	if f == Int16 {
		return "s16le"
	}
	return "f32le"
}

func (f SampleFormat) codec() string {
	if f == Int16 {
		return "pcm_s16le"
	}
	return "pcm_f32le"
}

func (f SampleFormat) bytesPerSample() int {
	if f == Int16 {
		return 2
	}
	return 4
}

// FFmpegCodec decodes and encodes compressed formats by running ffmpeg.
// Command lines are built with ffmpeg-go and executed with the configured
// binary so the tool location never depends on PATH mutation.
type FFmpegCodec struct {
	FFmpegPath string
	Prober     Prober
	Format     SampleFormat
	Bitrate    string
	Timeout    time.Duration
	// TempDir holds the intermediate WAV written before transcoding. Empty
	// uses os.TempDir().
	TempDir string
}

// ScratchPrefix starts the name of every intermediate WAV.
const ScratchPrefix = "yukkuri-"

// IsScratch reports whether name is an intermediate file written by Encode.
func IsScratch(name string) bool {
	return strings.HasPrefix(filepath.Base(name), ScratchPrefix)
}

func (c FFmpegCodec) scratchPath() string {
	dir := c.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, ScratchPrefix+uuid.NewString()+".wav")
}

func (c FFmpegCodec) Name() string { return "ffmpeg" }

func (c FFmpegCodec) binary() string {
	if c.FFmpegPath == "" {
		return "ffmpeg"
	}
	return c.FFmpegPath
}

// Available reports whether the ffmpeg binary can be found.
func (c FFmpegCodec) Available() error {
	if _, err := exec.LookPath(c.binary()); err != nil {
		return fmt.Errorf("%w: ffmpeg: %v", ErrDependencyUnavailable, err)
	}
	return nil
}

// DecodeArgs returns the ffmpeg arguments that decode path to raw PCM on
// stdout.
func DecodeArgs(path string, sampleRate, channels int, format SampleFormat) []string {
	return ffmpeg.Input(path).
		Output("pipe:", ffmpeg.KwArgs{
			"f":      format.String(),
			"acodec": format.codec(),
			"ac":     channels,
			"ar":     sampleRate,
		}).
		GetArgs()
}

// EncodeArgs returns the ffmpeg arguments that transcode src into dst at
// the highest quality the target container supports.
func EncodeArgs(src, dst, bitrate string) ([]string, error) {
	kw, err := encoderKwArgs(Ext(dst), bitrate)
	if err != nil {
		return nil, err
	}
	return ffmpeg.Input(src).Output(dst, kw).OverWriteOutput().GetArgs(), nil
}

func encoderKwArgs(ext, bitrate string) (ffmpeg.KwArgs, error) {
	if bitrate == "" {
		bitrate = DefaultBitrate
	}
	switch ext {
	case ".mp3":
		return ffmpeg.KwArgs{
			"c:a":          "libmp3lame",
			"b:a":          bitrate,
			"q:a":          0,
			"joint_stereo": 1,
			"reservoir":    1,
		}, nil
	case ".ogg":
		return ffmpeg.KwArgs{"c:a": "libvorbis", "q:a": 10}, nil
	case ".opus":
		return ffmpeg.KwArgs{"c:a": "libopus", "b:a": bitrate}, nil
	case ".m4a", ".aac":
		return ffmpeg.KwArgs{"c:a": "aac", "b:a": bitrate}, nil
	case ".flac":
		return ffmpeg.KwArgs{"c:a": "flac", "compression_level": 8}, nil
	case ".wav":
		return ffmpeg.KwArgs{"c:a": "pcm_s16le"}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Decode probes path and decodes it to raw PCM at its native rate and
// channel count.
func (c FFmpegCodec) Decode(ctx context.Context, path string) (*Buffer, error) {
	if err := c.Available(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	info, err := c.Prober.Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	out, err := c.run(ctx, DecodeArgs(path, info.SampleRate, info.Channels, c.Format))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}

	buf := decodeRaw(out, c.Format, info.SampleRate, info.Channels)
	if buf.Frames() == 0 {
		return nil, fmt.Errorf("%w: %s decoded to no samples", ErrDecode, path)
	}
	return buf, nil
}

// Encode writes buf to an intermediate WAV and transcodes it to path. The
// intermediate file is always removed.
func (c FFmpegCodec) Encode(ctx context.Context, path string, buf *Buffer) error {
	if err := buf.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	if err := c.Available(); err != nil {
		return err
	}
	if _, err := encoderKwArgs(Ext(path), c.Bitrate); err != nil {
		return err
	}

	scratch := c.scratchPath()
	defer os.Remove(scratch)

	if err := (WAVCodec{BitDepth: 24}).Encode(ctx, scratch, buf); err != nil {
		return err
	}

	args, err := EncodeArgs(scratch, path, c.Bitrate)
	if err != nil {
		return err
	}
	if _, err := c.run(ctx, args); err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: %s: %v", ErrEncode, path, err)
	}
	return nil
}

func (c FFmpegCodec) run(ctx context.Context, args []string) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary(), append([]string{"-v", "error"}, args...)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%v: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}

func decodeRaw(data []byte, format SampleFormat, sampleRate, channels int) *Buffer {
	bps := format.bytesPerSample()
	frames := len(data) / (bps * channels)
	buf := NewBuffer(sampleRate, channels, frames)
	if format == Int16 {
		buf.BitDepth = 16
	}

	for i := range frames {
		for ch := range channels {
			off := (i*channels + ch) * bps
			var v float64
			if format == Int16 {
				v = float64(int16(binary.LittleEndian.Uint16(data[off:]))) / 32768
			} else {
				v = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off:])))
			}
			buf.Channels[ch][i] = v
		}
	}
	return buf
}

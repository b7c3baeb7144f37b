// SPDX-License-Identifier: MIT

// Package media moves audio between files and in-memory sample buffers. WAV
// is handled natively with go-audio; compressed formats go through ffmpeg.
package media

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrDecode reports a file that exists but cannot be read as audio.
	ErrDecode = errors.New("decode failed")
	// ErrEncode reports a failure writing or transcoding the output.
	ErrEncode = errors.New("encode failed")
	// ErrDependencyUnavailable reports a missing external tool such as ffmpeg.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrUnsupportedFormat reports a file extension no codec handles.
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// Buffer is decoded audio: one float64 slice per channel, samples nominally
// in [-1, 1]. Channels never share backing arrays.
type Buffer struct {
	SampleRate int
	Channels   [][]float64
	// BitDepth is the source PCM depth, 0 when unknown or not PCM.
	BitDepth int
}

// NewBuffer allocates a silent buffer.
func NewBuffer(sampleRate, channels, frames int) *Buffer {
	b := &Buffer{SampleRate: sampleRate, Channels: make([][]float64, channels)}
	for c := range b.Channels {
		b.Channels[c] = make([]float64, frames)
	}
	return b
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int { return len(b.Channels) }

// Frames returns the length of the shortest channel.
func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	n := len(b.Channels[0])
	for _, ch := range b.Channels[1:] {
		n = min(n, len(ch))
	}
	return n
}

// Duration returns the playing time of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{SampleRate: b.SampleRate, BitDepth: b.BitDepth, Channels: make([][]float64, len(b.Channels))}
	for c, ch := range b.Channels {
		out.Channels[c] = append([]float64(nil), ch...)
	}
	return out
}

// Validate checks that the buffer can be encoded.
func (b *Buffer) Validate() error {
	if b == nil {
		return fmt.Errorf("nil buffer")
	}
	if b.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", b.SampleRate)
	}
	if len(b.Channels) == 0 {
		return fmt.Errorf("buffer has no channels")
	}
	return nil
}

// Codec reads and writes one family of audio files.
type Codec interface {
	Name() string
	Decode(ctx context.Context, path string) (*Buffer, error)
	Encode(ctx context.Context, path string, buf *Buffer) error
}

// Ext returns the lower-cased extension of path including the dot.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

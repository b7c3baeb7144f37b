// SPDX-License-Identifier: MIT
package media

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV format tags. go-audio decodes float and extensible formats as
// integers, so Decode rejects anything but wavFormatPCM. Headers of all
// three are readable.
const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// WAVCodec reads and writes integer PCM WAV files.
type WAVCodec struct {
	// BitDepth used by Encode. Zero keeps the buffer's source depth, falling
	// back to 16.
	BitDepth int
}

func (WAVCodec) Name() string { return "wav" }

// WAVInfo describes the header of a WAV file.
type WAVInfo struct {
	// Format is the format tag of the fmt chunk.
	Format     uint16
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int
	Duration   time.Duration
}

// ReadWAVInfo parses the header of a WAV file without decoding its samples.
func ReadWAVInfo(path string) (WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return WAVInfo{}, fmt.Errorf("%w: %s is not a valid WAV file", ErrDecode, path)
	}
	if err := d.FwdToPCM(); err != nil {
		return WAVInfo{}, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}

	info := WAVInfo{
		Format:     d.WavAudioFormat,
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}
	frameBytes := info.Channels * ((info.BitDepth-1)/8 + 1)
	if frameBytes > 0 && info.SampleRate > 0 {
		info.Frames = d.PCMSize / frameBytes
		info.Duration = time.Duration(info.Frames) * time.Second / time.Duration(info.SampleRate)
	}
	return info, nil
}

// CodecName names the sample encoding the way ffprobe does.
func (i WAVInfo) CodecName() string {
	switch i.Format {
	case wavFormatPCM, wavFormatExtensible:
		return fmt.Sprintf("pcm_s%dle", i.BitDepth)
	case wavFormatFloat:
		return fmt.Sprintf("pcm_f%dle", i.BitDepth)
	default:
		return fmt.Sprintf("wav_0x%04x", i.Format)
	}
}

// Decode reads a PCM WAV file into a Buffer.
func (c WAVCodec) Decode(ctx context.Context, path string) (*Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a valid WAV file", ErrDecode, path)
	}
	if d.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: %s uses WAV format %d, only PCM is supported", ErrUnsupportedFormat, path, d.WavAudioFormat)
	}

	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}

	channels := pcm.Format.NumChannels
	bitDepth := pcm.SourceBitDepth
	frames := len(pcm.Data) / channels
	buf := NewBuffer(pcm.Format.SampleRate, channels, frames)
	buf.BitDepth = bitDepth

	// 8-bit WAV is unsigned, wider depths are signed.
	offset := 0.0
	scale := math.Ldexp(1, bitDepth-1)
	if bitDepth == 8 {
		offset = 128
	}
	for i := range frames {
		for ch := range channels {
			buf.Channels[ch][i] = (float64(pcm.Data[i*channels+ch]) - offset) / scale
		}
	}
	return buf, nil
}

// Encode writes buf as an integer PCM WAV file, clamping samples to [-1, 1].
func (c WAVCodec) Encode(ctx context.Context, path string, buf *Buffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := buf.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}

	bitDepth := c.BitDepth
	if bitDepth == 0 {
		bitDepth = buf.BitDepth
	}
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		bitDepth = 16
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}

	if err := writePCM(f, buf, bitDepth); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("%w: %s: %v", ErrEncode, path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: %s: %v", ErrEncode, path, err)
	}
	return nil
}

func writePCM(f *os.File, buf *Buffer, bitDepth int) error {
	channels := buf.NumChannels()
	frames := buf.Frames()

	full := math.Ldexp(1, bitDepth-1) - 1
	offset := 0.0
	if bitDepth == 8 {
		offset = 128
	}

	pcm := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: buf.SampleRate},
		Data:           make([]int, frames*channels),
		SourceBitDepth: bitDepth,
	}
	for i := range frames {
		for ch, samples := range buf.Channels {
			v := samples[i]
			if math.IsNaN(v) {
				v = 0
			}
			v = max(-1, min(1, v))
			pcm.Data[i*channels+ch] = int(math.Round(v*full + offset))
		}
	}

	enc := wav.NewEncoder(f, buf.SampleRate, bitDepth, channels, wavFormatPCM)
	if err := enc.Write(pcm); err != nil {
		return err
	}
	return enc.Close()
}

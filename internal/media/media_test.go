// SPDX-License-Identifier: MIT
package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"yukkuri/internal/testsignal"
)

const testSampleRate = 44100

func TestWAVRoundTrip(t *testing.T) {
	left := testsignal.Sine(testSampleRate, 440, 0.25, 0.8)
	right := testsignal.Sine(testSampleRate, 660, 0.25, -0.5)

	for _, bitDepth := range []int{8, 16, 24, 32} {
		t.Run(fmt.Sprintf("%dbit", bitDepth), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "clip.wav")
			in := &Buffer{SampleRate: testSampleRate, Channels: [][]float64{left, right}}

			ctx := context.Background()
			if err := (WAVCodec{BitDepth: bitDepth}).Encode(ctx, path, in); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			out, err := WAVCodec{}.Decode(ctx, path)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			if out.SampleRate != testSampleRate || out.NumChannels() != 2 || out.BitDepth != bitDepth {
				t.Fatalf("got %d Hz, %d channels, %d bit", out.SampleRate, out.NumChannels(), out.BitDepth)
			}
			if out.Frames() != len(left) {
				t.Fatalf("got %d frames, want %d", out.Frames(), len(left))
			}

			tolerance := math.Ldexp(2, -(bitDepth - 1))
			for ch, want := range in.Channels {
				for i := range want {
					if d := math.Abs(out.Channels[ch][i] - want[i]); d > tolerance {
						t.Fatalf("channel %d sample %d: got %f, want %f", ch, i, out.Channels[ch][i], want[i])
					}
				}
			}
		})
	}
}

func TestWAVEncodeClamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hot.wav")
	in := &Buffer{SampleRate: testSampleRate, Channels: [][]float64{{2, -3, 0.5, math.NaN()}}}

	ctx := context.Background()
	if err := (WAVCodec{BitDepth: 16}).Encode(ctx, path, in); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := WAVCodec{}.Decode(ctx, path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i, v := range out.Channels[0] {
		if v > 1 || v < -1 {
			t.Errorf("sample %d out of range: %f", i, v)
		}
	}
	if out.Channels[0][3] != 0 {
		t.Errorf("NaN encoded as %f, want 0", out.Channels[0][3])
	}
}

func TestWAVDecodeErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.wav")
	if err := os.WriteFile(garbage, []byte("this is not a riff file"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(dir, "missing.wav")},
		{"garbage", garbage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := WAVCodec{}.Decode(context.Background(), tt.path)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("expected ErrDecode, got %v", err)
			}
		})
	}
}

func TestWAVEncodeRejectsEmptyBuffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")
	err := WAVCodec{}.Encode(context.Background(), path, &Buffer{SampleRate: testSampleRate})
	if !errors.Is(err, ErrEncode) {
		t.Errorf("expected ErrEncode, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("rejected encode left a file behind")
	}
}

func TestReadWAVInfo(t *testing.T) {
	path, err := testsignal.Tone(filepath.Join(t.TempDir(), "tone.wav"), 22050, 440, 1.5, 0.5)
	if err != nil {
		t.Fatal(err)
	}

	info, err := ReadWAVInfo(path)
	if err != nil {
		t.Fatalf("ReadWAVInfo: %v", err)
	}
	if info.SampleRate != 22050 || info.Channels != 1 || info.BitDepth != 16 {
		t.Errorf("unexpected header: %+v", info)
	}
	if info.Frames != 33075 {
		t.Errorf("got %d frames, want 33075", info.Frames)
	}
	if info.Duration != 1500*time.Millisecond {
		t.Errorf("got duration %v, want 1.5s", info.Duration)
	}
}

func TestDurationSeconds(t *testing.T) {
	dir := t.TempDir()
	path, err := testsignal.Tone(filepath.Join(dir, "tone.wav"), testSampleRate, 440, 2, 0.5)
	if err != nil {
		t.Fatal(err)
	}

	p := Prober{}
	if got := p.DurationSeconds(path); math.Abs(got-2) > 1e-3 {
		t.Errorf("DurationSeconds = %f, want 2", got)
	}
	if got := p.DurationSeconds(filepath.Join(dir, "missing.wav")); got != DefaultDuration {
		t.Errorf("missing file: got %f, want %f", got, DefaultDuration)
	}

	p.FFprobePath = filepath.Join(dir, "no-such-ffprobe")
	if got := p.DurationSeconds(filepath.Join(dir, "clip.mp3")); got != DefaultDuration {
		t.Errorf("unprobeable file: got %f, want %f", got, DefaultDuration)
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(FFmpegCodec{})

	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{"clip.wav", "wav", false},
		{"CLIP.WAV", "wav", false},
		{"clip.mp3", "ffmpeg", false},
		{"dir.v2/clip.flac", "ffmpeg", false},
		{"clip.txt", "", true},
		{"clip", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			c, err := r.Lookup(tt.path)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Errorf("expected ErrUnsupportedFormat, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if c.Name() != tt.want {
				t.Errorf("got codec %q, want %q", c.Name(), tt.want)
			}
		})
	}

	r.Register("ogg", WAVCodec{})
	if c, _ := r.Lookup("x.ogg"); c.Name() != "wav" {
		t.Error("Register without a dot did not override .ogg")
	}
	if !slices.Contains(r.Extensions(), ".mp3") {
		t.Errorf("Extensions() = %v, missing .mp3", r.Extensions())
	}
}

func TestEncodeArgs(t *testing.T) {
	args, err := EncodeArgs("in.wav", "out.mp3", "")
	if err != nil {
		t.Fatalf("EncodeArgs: %v", err)
	}
	for _, want := range []string{"in.wav", "out.mp3", "libmp3lame", "320k", "-q:a", "-joint_stereo", "-reservoir", "-y"} {
		if !slices.Contains(args, want) {
			t.Errorf("args %v missing %q", args, want)
		}
	}

	if _, err := EncodeArgs("in.wav", "out.xyz", ""); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDecodeArgs(t *testing.T) {
	args := DecodeArgs("in.mp3", 48000, 2, Int16)
	for _, want := range []string{"in.mp3", "pipe:", "s16le", "pcm_s16le", "48000", "2"} {
		if !slices.Contains(args, want) {
			t.Errorf("args %v missing %q", args, want)
		}
	}
}

func TestDecodeRaw(t *testing.T) {
	// Two stereo frames of s16le: (16384, -16384), (0, 32767).
	data := []byte{0x00, 0x40, 0x00, 0xc0, 0x00, 0x00, 0xff, 0x7f, 0x01}
	buf := decodeRaw(data, Int16, testSampleRate, 2)

	if buf.Frames() != 2 {
		t.Fatalf("got %d frames, want 2", buf.Frames())
	}
	want := [][]float64{{0.5, 0}, {-0.5, 32767.0 / 32768}}
	for ch := range want {
		for i := range want[ch] {
			if buf.Channels[ch][i] != want[ch][i] {
				t.Errorf("channel %d frame %d: got %f, want %f", ch, i, buf.Channels[ch][i], want[ch][i])
			}
		}
	}
}

func TestBuffer(t *testing.T) {
	b := NewBuffer(100, 2, 50)
	b.Channels[1] = b.Channels[1][:30]

	if b.Frames() != 30 {
		t.Errorf("Frames() = %d, want shortest channel 30", b.Frames())
	}
	if b.Duration() != 300*time.Millisecond {
		t.Errorf("Duration() = %v, want 300ms", b.Duration())
	}

	c := b.Clone()
	c.Channels[0][0] = 1
	if b.Channels[0][0] != 0 {
		t.Error("Clone shares sample storage")
	}

	if err := (&Buffer{SampleRate: 0, Channels: [][]float64{{0}}}).Validate(); err == nil {
		t.Error("zero sample rate should not validate")
	}
}

func TestFFmpegRoundTrip(t *testing.T) {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}

	dir := t.TempDir()
	ff := FFmpegCodec{Format: Float32, Timeout: 30 * time.Second}
	in := &Buffer{SampleRate: testSampleRate, Channels: [][]float64{
		testsignal.Sine(testSampleRate, 440, 1, 0.5),
		testsignal.Sine(testSampleRate, 440, 1, 0.5),
	}}

	ctx := context.Background()
	path := filepath.Join(dir, "clip.mp3")
	if err := ff.Encode(ctx, path, in); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("intermediate files left behind: %v", entries)
	}

	if got := ff.Prober.DurationSeconds(path); math.Abs(got-1) > 0.1 {
		t.Errorf("probed duration %f, want ~1", got)
	}

	out, err := ff.Decode(ctx, path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.NumChannels() != 2 || out.SampleRate != testSampleRate {
		t.Errorf("decoded %d channels at %d Hz", out.NumChannels(), out.SampleRate)
	}
}

func TestFFmpegMissingBinary(t *testing.T) {
	ff := FFmpegCodec{FFmpegPath: filepath.Join(t.TempDir(), "no-such-ffmpeg")}
	if err := ff.Available(); !errors.Is(err, ErrDependencyUnavailable) {
		t.Errorf("expected ErrDependencyUnavailable, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "clip.mp3")
	err := ff.Encode(context.Background(), path, NewBuffer(testSampleRate, 1, 100))
	if !errors.Is(err, ErrEncode) && !errors.Is(err, ErrDependencyUnavailable) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestScratchPath(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	tests := []struct {
		name    string
		codec   FFmpegCodec
		wantDir string
	}{
		{"default", FFmpegCodec{}, os.TempDir()},
		{"configured", FFmpegCodec{TempDir: "/var/cache/yukkuri"}, "/var/cache/yukkuri"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.codec.scratchPath()
			if filepath.Dir(got) != tt.wantDir {
				t.Errorf("scratch %s not in %s", got, tt.wantDir)
			}
			if !IsScratch(got) || filepath.Ext(got) != ".wav" {
				t.Errorf("scratch name %s", got)
			}
		})
	}
	if a, b := (FFmpegCodec{}).scratchPath(), (FFmpegCodec{}).scratchPath(); a == b {
		t.Errorf("scratch paths repeat: %s", a)
	}
	if IsScratch("clip.wav") {
		t.Error("clip.wav reported as scratch")
	}
}

// writeFloatWAV writes a mono 32-bit IEEE float WAV of silence.
func writeFloatWAV(t *testing.T, path string, sampleRate, frames int) {
	t.Helper()
	var b bytes.Buffer
	le := binary.LittleEndian
	dataSize := uint32(frames * 4)
	b.WriteString("RIFF")
	binary.Write(&b, le, 36+dataSize)
	b.WriteString("WAVEfmt ")
	binary.Write(&b, le, uint32(16))
	binary.Write(&b, le, uint16(wavFormatFloat))
	binary.Write(&b, le, uint16(1))
	binary.Write(&b, le, uint32(sampleRate))
	binary.Write(&b, le, uint32(sampleRate*4))
	binary.Write(&b, le, uint16(4))
	binary.Write(&b, le, uint16(32))
	b.WriteString("data")
	binary.Write(&b, le, dataSize)
	b.Write(make([]byte, dataSize))
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestProbeWAVHeaderFormats(t *testing.T) {
	dir := t.TempDir()
	float := filepath.Join(dir, "float.wav")
	writeFloatWAV(t, float, 8000, 12000)
	pcm, err := testsignal.Tone(filepath.Join(dir, "pcm.wav"), 8000, 440, 1.5, 0.5)
	if err != nil {
		t.Fatal(err)
	}

	// No ffprobe is configured, so both must be answered from the header.
	p := Prober{FFprobePath: filepath.Join(dir, "no-such-ffprobe")}
	tests := []struct {
		path      string
		wantCodec string
	}{
		{float, "pcm_f32le"},
		{pcm, "pcm_s16le"},
	}
	for _, tt := range tests {
		t.Run(filepath.Base(tt.path), func(t *testing.T) {
			info, err := p.Probe(context.Background(), tt.path)
			if err != nil {
				t.Fatalf("Probe: %v", err)
			}
			if info.Codec != tt.wantCodec {
				t.Errorf("codec %q, want %q", info.Codec, tt.wantCodec)
			}
			if info.Duration != 1500*time.Millisecond || info.SampleRate != 8000 || info.Channels != 1 {
				t.Errorf("info %+v", info)
			}
		})
	}

	if _, err := (WAVCodec{}).Decode(context.Background(), float); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("decoding float WAV: %v, want ErrUnsupportedFormat", err)
	}
}

// SPDX-License-Identifier: MIT
package subtitle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTimestamp(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00.00"},
		{3500 * time.Millisecond, "00:03.50"},
		{65750 * time.Millisecond, "01:05.75"},
		{10 * time.Minute, "10:00.00"},
	}
	for _, tt := range tests {
		if got := Timestamp(tt.in); got != tt.want {
			t.Errorf("Timestamp(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuild(t *testing.T) {
	track := Build([]string{" hello ", "", "world", "no clip"}, []float64{1.5, 2.0, 62.25}, Tags{Title: "Chapter 1"})

	if len(track.Cues) != 2 {
		t.Fatalf("cues %+v", track.Cues)
	}
	if track.Cues[0] != (Cue{Start: 0, Text: "hello"}) {
		t.Errorf("first cue %+v", track.Cues[0])
	}
	if track.Cues[1] != (Cue{Start: 3500 * time.Millisecond, Text: "world"}) {
		t.Errorf("second cue %+v", track.Cues[1])
	}
	if track.Length != 65750*time.Millisecond {
		t.Errorf("length %v", track.Length)
	}
	if track.Tags.Title != "Chapter 1" || track.Tags.Artist != "yukkuri" {
		t.Errorf("tags %+v", track.Tags)
	}
}

func TestWriteTo(t *testing.T) {
	track := Build([]string{"hello", "", "world"}, []float64{1.5, 2.0, 62.25}, Tags{Artist: "a", Title: "t", Album: "b"})

	var b strings.Builder
	n, err := track.WriteTo(&b)
	if err != nil {
		t.Fatal(err)
	}
	want := "[ar:a]\n[ti:t]\n[al:b]\n[length:01:05]\n\n[00:00.00]hello\n[00:03.50]world\n[01:05.75]"
	if b.String() != want {
		t.Errorf("got\n%s\nwant\n%s", b.String(), want)
	}
	if n != int64(len(want)) {
		t.Errorf("reported %d bytes, wrote %d", n, len(want))
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		suffix string
		file   string
	}{
		{"", "story.lrc"},
		{SuffixChinese, "story_chinese.lrc"},
		{SuffixJapanese, "story_japanese.lrc"},
	}
	for _, tt := range tests {
		path := Path(dir, "story", tt.suffix)
		if filepath.Base(path) != tt.file {
			t.Errorf("Path suffix %q = %s, want %s", tt.suffix, filepath.Base(path), tt.file)
		}
		if err := WriteFile(path, Build([]string{"こんにちは"}, []float64{2}, Tags{})); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "[00:00.00]こんにちは\n[00:02.00]") {
			t.Errorf("unexpected contents:\n%s", data)
		}
	}
}

func TestWriteFileBadDir(t *testing.T) {
	if err := WriteFile(filepath.Join(t.TempDir(), "missing", "x.lrc"), Track{}); err == nil {
		t.Error("expected an error for a missing directory")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{`what? "yes": a/b\c*<d>|`, "what yes abcd"},
		{"ゆっくりしていってね", "ゆっくりしていってね"},
		{strings.Repeat("あ", 60), strings.Repeat("あ", MaxFilenameRunes)},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

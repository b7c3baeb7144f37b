// SPDX-License-Identifier: MIT

// Package subtitle writes LRC subtitle files that time each text line
// against the clip synthesized for it.
package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Suffixes for bilingual jobs, which write one file per language.
const (
	SuffixChinese  = "_chinese"
	SuffixJapanese = "_japanese"
)

// MaxFilenameRunes caps the text-derived part of a clip filename.
const MaxFilenameRunes = 50

// Tags are the LRC header fields.
type Tags struct {
	Artist string
	Title  string
	Album  string
}

// DefaultTags fills empty fields of t.
func DefaultTags(t Tags) Tags {
	if t.Artist == "" {
		t.Artist = "yukkuri"
	}
	if t.Title == "" {
		t.Title = "Generated Audio"
	}
	if t.Album == "" {
		t.Album = "yukkuri"
	}
	return t
}

// Cue is one timed line.
type Cue struct {
	Start time.Duration
	Text  string
}

// Track is a complete subtitle file.
type Track struct {
	Tags   Tags
	Cues   []Cue
	Length time.Duration
}

// Build times lines against clip durations given in seconds. Line i starts
// when the clips before it end. Blank lines emit no cue but still advance
// the clock, and lines without a clip are dropped.
func Build(lines []string, durations []float64, tags Tags) Track {
	track := Track{Tags: DefaultTags(tags)}
	var clock float64
	for i, d := range durations {
		if i < len(lines) {
			if text := strings.TrimSpace(lines[i]); text != "" {
				track.Cues = append(track.Cues, Cue{Start: seconds(clock), Text: text})
			}
		}
		if d > 0 && !math.IsInf(d, 0) {
			clock += d
		}
	}
	track.Length = seconds(clock)
	return track
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Timestamp formats d as mm:ss.xx.
func Timestamp(d time.Duration) string {
	s := d.Seconds()
	return fmt.Sprintf("%02d:%05.2f", int(s)/60, math.Mod(s, 60))
}

func length(d time.Duration) string {
	s := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// WriteTo writes the track in LRC format.
func (t Track) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "[ar:%s]\n", t.Tags.Artist)
	fmt.Fprintf(&b, "[ti:%s]\n", t.Tags.Title)
	fmt.Fprintf(&b, "[al:%s]\n", t.Tags.Album)
	fmt.Fprintf(&b, "[length:%s]\n\n", length(t.Length))
	for _, c := range t.Cues {
		fmt.Fprintf(&b, "[%s]%s\n", Timestamp(c.Start), c.Text)
	}
	fmt.Fprintf(&b, "[%s]", Timestamp(t.Length))

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// Path returns the LRC path for a job: <dir>/<prefix><suffix>.lrc.
func Path(dir, prefix, suffix string) string {
	return filepath.Join(dir, prefix+suffix+".lrc")
}

// WriteFile writes the track to path.
func WriteFile(path string, t Track) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating subtitle file: %w", err)
	}
	w := bufio.NewWriter(f)
	if _, err := t.WriteTo(w); err != nil {
		f.Close()
		return fmt.Errorf("writing subtitle file: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing subtitle file: %w", err)
	}
	return f.Close()
}

var illegal = regexp.MustCompile(`[\\/*?:"<>|]`)

// SanitizeFilename strips characters that are invalid in filenames on
// common platforms and trims the result to MaxFilenameRunes runes.
func SanitizeFilename(name string) string {
	name = illegal.ReplaceAllString(name, "")
	if r := []rune(name); len(r) > MaxFilenameRunes {
		name = string(r[:MaxFilenameRunes])
	}
	return name
}

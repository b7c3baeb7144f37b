package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"yukkuri/internal/media"
	"yukkuri/internal/testsignal"
)

const testSampleRate = 44100

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: error\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func tone(t *testing.T, dir, name string, freq, seconds float64) string {
	t.Helper()
	path, err := testsignal.Tone(filepath.Join(dir, name), testSampleRate, freq, seconds, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCommandsRegistered(t *testing.T) {
	root := NewRootCommand(&bytes.Buffer{})
	for _, name := range []string{"process", "batch", "watch", "probe", "analyze", "preview", "devices"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("command %q not found", name)
		}
	}
}

func TestProcessCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	clip := tone(t, dir, "line.wav", 440, 2)

	out, err := run(t, "--config", cfg, "process", "--speed", "150", clip)
	if err != nil {
		t.Fatalf("process: %v\n%s", err, out)
	}
	if strings.TrimSpace(out) != clip {
		t.Errorf("output %q, want %q", out, clip)
	}
	info, err := media.ReadWAVInfo(clip)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Duration.Seconds(); got < 1.30 || got > 1.36 {
		t.Errorf("duration %.3fs, want ~1.333s", got)
	}
}

func TestProcessCommandInvalidPitch(t *testing.T) {
	dir := t.TempDir()
	clip := tone(t, dir, "line.wav", 440, 0.25)
	out, err := run(t, "--config", writeConfig(t, dir), "process", "--pitch", "0", clip)
	if err == nil {
		t.Fatal("expected an error for pitch 0")
	}
	if !strings.Contains(out, clip) {
		t.Errorf("original path not printed: %q", out)
	}
}

func TestProbeCommand(t *testing.T) {
	dir := t.TempDir()
	clip := tone(t, dir, "line.wav", 440, 1.5)
	out, err := run(t, "--config", writeConfig(t, dir), "probe", clip)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	for _, want := range []string{"44100 Hz", "1 ch", "1.500s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestAnalyzeCommand(t *testing.T) {
	dir := t.TempDir()
	clip := tone(t, dir, "line.wav", 440, 1)
	out, err := run(t, "--config", writeConfig(t, dir), "analyze", clip)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	fields := strings.Fields(out)
	var hz float64
	for i, f := range fields {
		if f == "dominant" && i+1 < len(fields) {
			hz, _ = strconv.ParseFloat(fields[i+1], 64)
		}
	}
	if hz < 435 || hz > 445 {
		t.Errorf("dominant %.1f Hz, want ~440\n%s", hz, out)
	}
	if !strings.Contains(out, "mid") {
		t.Errorf("band energies missing:\n%s", out)
	}

	if _, err := run(t, "--config", writeConfig(t, dir), "analyze", "--window", "square", clip); err == nil {
		t.Error("expected an error for an unknown window")
	}
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	clips := filepath.Join(dir, "clips")
	if err := os.Mkdir(clips, 0o755); err != nil {
		t.Fatal(err)
	}
	tone(t, clips, "001.wav", 440, 1)
	tone(t, clips, "002.wav", 330, 1)
	script := filepath.Join(dir, "episode.txt")
	if err := os.WriteFile(script, []byte("ゆっくりしていってね\n霊夢です\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "--config", writeConfig(t, dir), "batch", "--script", script, "--clips", clips, "--volume", "80")
	if err != nil {
		t.Fatalf("batch: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 clip(s), 2 processed") {
		t.Errorf("summary %q", out)
	}
	data, err := os.ReadFile(filepath.Join(clips, "episode.lrc"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[00:00.00]ゆっくりしていってね\n[00:01.00]霊夢です") {
		t.Errorf("subtitles:\n%s", data)
	}
}

func TestBatchCommandRequiresFlags(t *testing.T) {
	dir := t.TempDir()
	if _, err := run(t, "--config", writeConfig(t, dir), "batch"); err == nil {
		t.Error("expected an error without --script and --clips")
	}
}

func TestInvalidLogLevel(t *testing.T) {
	dir := t.TempDir()
	clip := tone(t, dir, "line.wav", 440, 0.1)
	if _, err := run(t, "--config", writeConfig(t, dir), "--log-level", "chatty", "probe", clip); err == nil {
		t.Error("expected an error for an unknown log level")
	}
}

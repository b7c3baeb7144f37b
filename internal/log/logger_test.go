package log

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   LogLevel
		wantOK bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warning", LevelWarn, true},
		{" error ", LevelError, true},
		{"fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSinkRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	defer SetLevel(GetLevel())

	SetLevel(LevelWarn)
	Sink(LevelInfo)("quiet")
	Sink(LevelError)("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("info message logged at warn level: %q", out)
	}
	if !strings.Contains(out, "[ERROR] loud") {
		t.Errorf("error message missing: %q", out)
	}
}

func TestTeeAndCollector(t *testing.T) {
	var a, b Collector
	sink := Tee(a.Log, nil, b.Log)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink("tick")
		}()
	}
	wg.Wait()

	if len(a.Messages()) != 10 || len(b.Messages()) != 10 {
		t.Errorf("got %d and %d messages, want 10 each", len(a.Messages()), len(b.Messages()))
	}
	if !a.Contains("tick") {
		t.Error("Contains did not find a recorded message")
	}
}

func TestNilLogFunc(t *testing.T) {
	var f LogFunc
	f.Call("ignored")
	f.Printf("ignored %d", 1)

	var c Collector
	LogFunc(c.Log).Printf("clip %d of %d", 2, 3)
	if got := c.Messages(); len(got) != 1 || got[0] != "clip 2 of 3" {
		t.Errorf("Printf recorded %v", got)
	}
}

// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	prev := GetLevel()
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(prev)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   LogLevel
		wantOK bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"warning", LevelWarn, true},
		{" error ", LevelError, true},
		{"fatal", LevelFatal, true},
		{"loud", LevelInfo, false},
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

func TestLevelGating(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(LevelWarn)

	l := Named("scheduler")
	l.Debugf("cycle %d", 1)
	l.Infof("cycle %d", 2)
	l.Warnf("publish dropped")

	out := buf.String()
	if strings.Contains(out, "cycle") {
		t.Errorf("debug/info output leaked at warn level: %q", out)
	}
	if !strings.Contains(out, "[WARN]  scheduler: publish dropped") {
		t.Errorf("missing warn line, got %q", out)
	}
}

func TestRootLoggerHasNoPrefix(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(LevelDebug)

	Errorf("device %s gone", "hw:1")

	if !strings.Contains(buf.String(), "[ERROR] device hw:1 gone") {
		t.Errorf("unexpected root output %q", buf.String())
	}
}

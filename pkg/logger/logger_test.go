package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	SetGlobalLogLevel(WARN)
	defer SetGlobalLogLevel(INFO)

	l := New("TEST")
	l.Info("hidden %d", 1)
	l.Warn("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "[WARN] [TEST] shown 2") {
		t.Fatalf("missing warn line: %q", out)
	}
}

func TestSetFileWritesLines(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	path := filepath.Join(t.TempDir(), "nested", "server.log")
	l := New("FILE")
	if err := l.SetFile(path); err != nil {
		t.Fatalf("SetFile: %v", err)
	}
	l.Error("boom: %s", "disk")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "[ERROR] [FILE] boom: disk") {
		t.Fatalf("unexpected file content %q", data)
	}
}

func TestFatalExits(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	code := -1
	exit = func(c int) { code = c }
	defer func() { exit = os.Exit }()

	New("X").Fatal("bind failed")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"DEBUG": DEBUG,
		"warn":  WARN,
		"ERROR": ERROR,
		"":      INFO,
		"bogus": INFO,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

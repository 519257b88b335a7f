package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestFileWriter_Defaults(t *testing.T) {
	if w := (FileConfig{}).Writer(); w != nil {
		t.Fatalf("expected nil writer without path")
	}
	w := FileConfig{Path: "x"}.Writer()
	l, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("writer is not lumberjack.Logger")
	}
	if l.MaxSize != 10 || l.MaxBackups != 3 || l.MaxAge != 7 {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", l.MaxSize, l.MaxBackups, l.MaxAge)
	}
	_ = w.Close()
}

func TestFileWriter_Overrides(t *testing.T) {
	w := FileConfig{Path: "x2", MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 11, Compress: true}.Writer()
	l := w.(*lj.Logger)
	if l.MaxSize != 1 || l.MaxBackups != 9 || l.MaxAge != 11 || !l.Compress {
		t.Fatalf("unexpected overrides: size=%d backups=%d age=%d compress=%t", l.MaxSize, l.MaxBackups, l.MaxAge, l.Compress)
	}
	_ = w.Close()
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q)=%v,%v want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNew_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := New(Config{Level: "warn", Format: FormatJSON}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = closer.Close() }()

	log.Info("hidden")
	log.Warn("shown", "pid", 42)

	out := strings.TrimSpace(buf.String())
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered: %s", out)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("not JSON: %v (%s)", err, out)
	}
	if rec["msg"] != "shown" || rec["pid"] != float64(42) {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestNew_ColorHandler(t *testing.T) {
	var buf bytes.Buffer
	log, _, err := New(Config{Format: FormatColor}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Error("boom")
	if !strings.Contains(buf.String(), "\033[31mERROR") {
		t.Fatalf("expected red ERROR prefix, got %q", buf.String())
	}

	buf.Reset()
	log.With("pid", 7).Warn("derived")
	out := buf.String()
	if !strings.Contains(out, "\033[33mWARN") || !strings.Contains(out, "pid=7") {
		t.Fatalf("derived logger lost color or attrs: %q", out)
	}
	if strings.Contains(out, "level=") {
		t.Fatalf("level attr should be folded into the prefix: %q", out)
	}
}

func TestNew_UnknownFormat(t *testing.T) {
	if _, _, err := New(Config{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemonctl.log")
	var buf bytes.Buffer
	log, closer, err := New(Config{File: FileConfig{Path: path}}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("to-file")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected nothing on the fallback writer, got %q", buf.String())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.Contains(string(b), "to-file") {
		t.Fatalf("log file missing record: %q", string(b))
	}
}

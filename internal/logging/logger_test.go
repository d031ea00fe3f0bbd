package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestJSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, slog.LevelDebug).WithComponent("fetch").WithVariant(64, "M")
	l.LogFetch(context.Background(), "https://example.org/a.h5", "/tmp/a.h5", 42, time.Second, nil)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	for k, want := range map[string]any{
		"msg":       "fetch completed",
		"component": "fetch",
		"pixels":    float64(64),
		"size":      "M",
		"bytes":     float64(42),
	} {
		if rec[k] != want {
			t.Errorf("%s = %v, want %v", k, rec[k], want)
		}
	}
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewTextLogger(&buf, slog.LevelInfo).WithPath("/data/x.h5")
	l.LogOpen(context.Background(), "/data/x.h5", 10, nil)
	if buf.Len() != 0 {
		t.Errorf("debug record written at info level: %q", buf.String())
	}
	l.LogOpen(context.Background(), "/data/x.h5", 0, errors.New("boom"))
	if out := buf.String(); !strings.Contains(out, "open failed") || !strings.Contains(out, "boom") {
		t.Errorf("output = %q", out)
	}
}

func TestNoop(t *testing.T) {
	l := OrNoop(nil)
	l.Error("discarded")
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Error("noop logger enabled")
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("unknown level accepted")
	}
}

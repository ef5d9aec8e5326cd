package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestWithAttrsOverridesByKey(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "debug", "json"))
	ctx = WithAttrs(ctx, slog.String("component", "a"), slog.String("scope_id", "1"))
	ctx = WithAttrs(ctx, slog.String("component", "b"))

	Debug(ctx, "hello", slog.Int("n", 2))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if line["component"] != "b" {
		t.Fatalf("component = %v", line["component"])
	}
	if line["scope_id"] != "1" {
		t.Fatalf("scope_id = %v", line["scope_id"])
	}
	if line["n"] != float64(2) {
		t.Fatalf("n = %v", line["n"])
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "info", "text"))

	Debug(ctx, "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line written at info level: %q", buf.String())
	}

	Warn(ctx, "shown")
	if buf.Len() == 0 {
		t.Fatalf("warn line missing")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

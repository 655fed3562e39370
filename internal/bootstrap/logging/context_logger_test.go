package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestWithAttrsReplacesExistingKey(t *testing.T) {
	ctx := WithAttrs(context.Background(), slog.String("component", "a"), slog.Int("n", 1))
	ctx = WithAttrs(ctx, slog.String("component", "b"))

	attrs := Attrs(ctx)
	if len(attrs) != 2 {
		t.Fatalf("len(Attrs) = %d, want 2", len(attrs))
	}
	if attrs[0].Key != "component" || attrs[0].Value.String() != "b" {
		t.Fatalf("attrs[0] = %v, want component=b", attrs[0])
	}
}

func TestWithAttrsDoesNotLeakIntoParent(t *testing.T) {
	parent := WithAttrs(context.Background(), slog.String("component", "parent"))
	_ = WithAttrs(parent, slog.String("component", "child"))

	if got := Attrs(parent)[0].Value.String(); got != "parent" {
		t.Fatalf("parent component = %q", got)
	}
}

func TestWithLoggerKeepsAttrs(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithAttrs(context.Background(), slog.String("component", "usecase.triage"))
	ctx = WithLogger(ctx, New(&buf, "debug", "text"))
	ctx = WithRequest(ctx, "req-1", 7)

	Debug(ctx, "vote recorded", slog.Uint64("patch_id", 3))

	line := buf.String()
	for _, want := range []string{"vote recorded", "component=usecase.triage", "request_id=req-1", "user_id=7", "patch_id=3"} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line %q missing %q", line, want)
		}
	}
}

func TestLevelFiltersLines(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "warn", "json"))

	Info(ctx, "hidden")
	Warn(ctx, "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line written at warn level: %q", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

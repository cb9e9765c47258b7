package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type handle struct{ idx, gen int }

func (h handle) String() string { return fmt.Sprintf("%d:%d", h.idx, h.gen) }

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "JSON", Output: &buf})

	now := time.Date(2024, 1, 1, 12, 30, 15, 250_000_000, time.UTC)
	Component(log, "evaluator").Info(context.Background(), "launch fired",
		Float("score", 51),
		Stringer("target", handle{3, 1}),
		SimTime(now),
		Err(errors.New("boom")),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	for key, want := range map[string]any{
		"msg":       "launch fired",
		"component": "evaluator",
		"score":     float64(51),
		"target":    "3:1",
		"sim_time":  "12:30:15.250",
		"error":     "boom",
	} {
		if rec[key] != want {
			t.Fatalf("%s = %v, want %v", key, rec[key], want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line leaked at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn line missing: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestEnsureRunIDIsStable(t *testing.T) {
	ctx, id := EnsureRunID(context.Background())
	if !strings.HasPrefix(id, "run-") {
		t.Fatalf("unexpected run id %q", id)
	}
	ctx2, id2 := EnsureRunID(ctx)
	if id2 != id || RunID(ctx2) != id {
		t.Fatalf("run id changed: %q -> %q", id, id2)
	}
	if RunID(context.Background()) != "" {
		t.Fatalf("empty context should carry no run id")
	}
}

func TestWithRunLoggerAnnotates(t *testing.T) {
	var buf bytes.Buffer
	ctx, log := WithRunLogger(context.Background(), New(Config{Format: "json", Output: &buf}))
	log.Info(ctx, "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["run_id"] != RunID(ctx) {
		t.Fatalf("run_id = %v, want %v", rec["run_id"], RunID(ctx))
	}
}

func TestNoopAndNilComponent(t *testing.T) {
	Component(nil, "x").Error(context.Background(), "dropped")
	Noop().With(String("a", "b")).Info(context.Background(), "dropped")
}

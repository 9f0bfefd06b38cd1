package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" DEBUG ", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSetup_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "warn", "text")
	t.Cleanup(func() { defaultLogger.Store(nil) })

	Debug("tree built", "nodes", 5)
	Info("layout started")
	if buf.Len() != 0 {
		t.Fatalf("expected debug and info to be dropped, got %q", buf.String())
	}

	Warn("forced merge", "depth", 48)
	Error("layout failed")
	out := buf.String()
	if !strings.Contains(out, "forced merge") || !strings.Contains(out, "depth=48") {
		t.Errorf("warn line missing: %q", out)
	}
	if !strings.Contains(out, "layout failed") {
		t.Errorf("error line missing: %q", out)
	}
}

func TestSetup_JSONCarriesContextIDs(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "debug", "json")
	t.Cleanup(func() { defaultLogger.Store(nil) })

	ctx := ContextWithRequestID(context.Background(), "req-7")
	ctx = ContextWithRunID(ctx, "run-42")
	InfoContext(ctx, "layout finished", "iterations", 100)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if line["request_id"] != "req-7" || line["run_id"] != "run-42" {
		t.Errorf("ids missing from %v", line)
	}
	if line["msg"] != "layout finished" || line["iterations"] != float64(100) {
		t.Errorf("unexpected record %v", line)
	}
}

func TestWithRequestID_NoIDs(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "info", "text")
	t.Cleanup(func() { defaultLogger.Store(nil) })

	WithRequestID(context.Background()).Info("no ids")
	if strings.Contains(buf.String(), "request_id") || strings.Contains(buf.String(), "run_id") {
		t.Errorf("unexpected id attributes in %q", buf.String())
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "info", "text")
	t.Cleanup(func() { defaultLogger.Store(nil) })

	WithComponent("scheduler").Info("tick")
	if !strings.Contains(buf.String(), "component=scheduler") {
		t.Errorf("component label missing: %q", buf.String())
	}
}

func TestGet_LazyInit(t *testing.T) {
	defaultLogger.Store(nil)
	t.Setenv("LOG_FORMAT", "text")

	l := Get()
	if l == nil {
		t.Fatal("Get() should return a logger")
	}
	if Get() != l {
		t.Error("Get() should return the same logger instance")
	}
	defaultLogger.Store(nil)
}

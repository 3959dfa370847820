package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: "warn", LogOutput: &buf})

	l.Info("hidden")
	l.Warn("shown", "file", "a.txt")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, "file=a.txt") {
		t.Errorf("log output = %q", out)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(Config{Format: "json", LogOutput: &buf}).Info("hello")

	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("json log output = %q", buf.String())
	}
}

func TestSetup_Disabled(t *testing.T) {
	tel, err := Setup(Config{LogOutput: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	if tel.TracerProvider == nil || tel.Logger == nil {
		t.Fatal("Setup() left providers nil")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error: %v", err)
	}
}

func TestSetup_ExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	tel, err := Setup(Config{OTel: true, OTelOutput: &buf})
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	_, span := tel.TracerProvider.Tracer("test").Start(context.Background(), "unit-span")
	span.End()
	tel.Logger.Info("bridged record")

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "unit-span") {
		t.Error("exported output missing span name")
	}
	if !strings.Contains(out, "bridged record") {
		t.Error("exported output missing log record")
	}
}

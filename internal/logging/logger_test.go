package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitChangesFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Info().Msg("should not appear")
	Warn().Msg("should appear")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Fatalf("info message logged despite warn level: %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Fatalf("warn message missing: %q", out)
	}
}

func TestNewTestLoggerCapturesOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewTestLogger(&buf)
	l.Info().Str("dataset_id", "101_1015").Msg("ingestion started")

	if !strings.Contains(buf.String(), "101_1015") {
		t.Fatalf("expected dataset_id in output, got %q", buf.String())
	}
}

func TestSetLevelAffectsGlobalLevel(t *testing.T) {
	SetLevel(zerolog.ErrorLevel)
	defer SetLevel(zerolog.InfoLevel)

	if zerolog.GlobalLevel() != zerolog.ErrorLevel {
		t.Fatalf("expected global level to be error")
	}
}

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestCorrelationIDRoundTrip(t *testing.T) {
	ctx := ContextWithNewCorrelationID(context.Background())
	id := CorrelationIDFromContext(ctx)
	if id == "" {
		t.Fatal("expected a non-empty correlation id")
	}
	if len(id) != 8 {
		t.Fatalf("expected 8-char correlation id, got %q", id)
	}
}

func TestCtxIncludesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	ctx := ContextWithLogger(context.Background(), NewTestLogger(&buf))
	ctx = ContextWithCorrelationID(ctx, "abc12345")

	Ctx(ctx).Info().Msg("fetching dataset")

	if !strings.Contains(buf.String(), "abc12345") {
		t.Fatalf("expected correlation id in log output, got %q", buf.String())
	}
}

func TestWithComponentTagsLogger(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Output: &buf})
	defer Init(DefaultConfig())

	logger := WithComponent("ingestion")
	logger.Info().Msg("component test")
	if !strings.Contains(buf.String(), `"component":"ingestion"`) {
		t.Fatalf("expected component tag in log output, got %q", buf.String())
	}
}

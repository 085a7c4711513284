package runtime

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/hablalabs/habla-core/internal/config"
)

func TestSetupTelemetryDefaults(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tel, err := setupTelemetry(config.Default(), logger)
	if err != nil {
		t.Fatalf("setupTelemetry: %v", err)
	}
	if tel.traces == nil || tel.meters == nil {
		t.Fatal("telemetry providers not initialized")
	}
	if tel.metrics == nil {
		t.Fatal("expected a metrics handler with the default config")
	}
	if err := tel.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewSpanExporterSelection(t *testing.T) {
	ctx := context.Background()

	_, kind, err := newSpanExporter(ctx, config.TelemetryConfig{})
	if err != nil {
		t.Fatalf("stdout exporter: %v", err)
	}
	if kind != "stdout" {
		t.Fatalf("kind = %q, want stdout", kind)
	}

	_, kind, err = newSpanExporter(ctx, config.TelemetryConfig{
		OTLPEndpoint: "collector:4317",
		OTLPInsecure: true,
	})
	if err != nil {
		t.Fatalf("otlp exporter: %v", err)
	}
	if kind != "otlp:collector:4317" {
		t.Fatalf("kind = %q, want otlp:collector:4317", kind)
	}
}

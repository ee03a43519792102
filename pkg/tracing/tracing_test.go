package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Enabled {
		t.Error("tracing should be disabled by default")
	}
	if cfg.ServiceName != "roomlink" {
		t.Errorf("expected service name 'roomlink', got '%s'", cfg.ServiceName)
	}
	if cfg.JaegerURL != "http://localhost:14268/api/traces" {
		t.Errorf("unexpected Jaeger URL: %s", cfg.JaegerURL)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected sample rate 1.0, got %f", cfg.SampleRate)
	}
}

func TestInit_DisabledIsInert(t *testing.T) {
	tp, err := Init(Config{Enabled: false})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	ctx, span := StartSpan(ctx, "test.operation")
	if span == nil {
		t.Error("expected non-nil span")
	}
	span.End()

	AddSpanAttributes(ctx, attribute.String("test.key", "test.value"))
	RecordError(ctx, errors.New("test error"))
}

func TestTraceCommand(t *testing.T) {
	ctx := context.Background()
	_, span := TraceCommand(ctx, "join", "sess-1")
	if span == nil {
		t.Error("expected non-nil span")
	}
	span.End()
}

func TestTraceEvent(t *testing.T) {
	ctx := context.Background()
	_, span := TraceEvent(ctx, "ON_JOIN", "sess-1")
	if span == nil {
		t.Error("expected non-nil span")
	}
	span.End()
}

func TestTraceHTTPRequest(t *testing.T) {
	ctx := context.Background()
	_, span := TraceHTTPRequest(ctx, "POST", "/api/v1/token")
	if span == nil {
		t.Error("expected non-nil span")
	}
	span.End()
}

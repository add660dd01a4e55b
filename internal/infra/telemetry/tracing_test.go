package telemetry

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/invoice-auth/internal/infra/config"
)

func TestDisabledTracerProviderNeverSamples(t *testing.T) {
	ctx := context.Background()
	tp, err := NewTracerProvider(ctx, config.TelemetrySettings{
		TracingEnabled: false,
		ServiceName:    "invoice-auth-test",
		SamplingRate:   1,
	}, "test", zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewTracerProvider returned error: %v", err)
	}
	t.Cleanup(func() {
		if err := tp.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown returned error: %v", err)
		}
	})

	_, span := tp.Tracer("test").Start(ctx, "op")
	defer span.End()

	if span.SpanContext().IsSampled() {
		t.Fatal("expected span not to be sampled with tracing disabled")
	}
	if !span.SpanContext().IsValid() {
		t.Fatal("expected a valid span context for propagation")
	}
}

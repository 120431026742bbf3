package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTestTracer creates a test tracer with an in-memory exporter.
func setupTestTracer(t *testing.T) (trace.Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	tracer := provider.Tracer("test-tracer")
	return tracer, exporter
}

func getSpanByName(exporter *tracetest.InMemoryExporter, name string) (tracetest.SpanStub, bool) {
	for _, span := range exporter.GetSpans() {
		if span.Name == name {
			return span, true
		}
	}
	return tracetest.SpanStub{}, false
}

func getAttributeValue(span tracetest.SpanStub, key string) (string, bool) {
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			return attr.Value.AsString(), true
		}
	}
	return "", false
}

func TestDispatchSpan_NilTracerIsPassThrough(t *testing.T) {
	ctx, span := DispatchSpan(context.Background(), nil, "conn-1", "ping")
	require.NotNil(t, span)
	EndDispatchSpan(span, nil) // must not panic
	assert.Equal(t, context.Background(), ctx)
}

func TestDispatchSpan_SetsNameAndAttributes(t *testing.T) {
	tracer, exporter := setupTestTracer(t)

	_, span := DispatchSpan(context.Background(), tracer, "conn-1", "session.respond")
	EndDispatchSpan(span, nil)

	stub, found := getSpanByName(exporter, "ipc.dispatch.session.respond")
	require.True(t, found)

	connID, ok := getAttributeValue(stub, AttrIPCConnID)
	require.True(t, ok)
	assert.Equal(t, "conn-1", connID)

	msgType, ok := getAttributeValue(stub, AttrIPCMessageType)
	require.True(t, ok)
	assert.Equal(t, "session.respond", msgType)
}

func TestEndDispatchSpan_RecordsError(t *testing.T) {
	tracer, exporter := setupTestTracer(t)

	_, span := DispatchSpan(context.Background(), tracer, "conn-1", "session.cancel")
	EndDispatchSpan(span, errors.New("invalid_cookie"))

	stub, found := getSpanByName(exporter, "ipc.dispatch.session.cancel")
	require.True(t, found)
	assert.Equal(t, codes.Error, stub.Status.Code)
	assert.Contains(t, stub.Status.Description, "invalid_cookie")
}

func TestEndDispatchSpan_OkOnNilError(t *testing.T) {
	tracer, exporter := setupTestTracer(t)

	_, span := DispatchSpan(context.Background(), tracer, "conn-1", "ping")
	EndDispatchSpan(span, nil)

	stub, found := getSpanByName(exporter, "ipc.dispatch.ping")
	require.True(t, found)
	assert.Equal(t, codes.Ok, stub.Status.Code)
}

func TestLaunchSpan_ThrottledDoesNotCountAsError(t *testing.T) {
	tracer, exporter := setupTestTracer(t)

	_, span := LaunchSpan(context.Background(), tracer, "gtk-fallback", "/usr/bin/gtk-fallback")
	EndLaunchSpan(span, true, nil)

	stub, found := getSpanByName(exporter, "launcher.launch.gtk-fallback")
	require.True(t, found)
	assert.Equal(t, codes.Ok, stub.Status.Code)

	foundEvent := false
	for _, ev := range stub.Events {
		if ev.Name == EventLaunchThrottled {
			foundEvent = true
		}
	}
	assert.True(t, foundEvent, "expected launcher.throttled event")
}

func TestLaunchSpan_RecordsSpawnError(t *testing.T) {
	tracer, exporter := setupTestTracer(t)

	_, span := LaunchSpan(context.Background(), tracer, "quickshell", "/usr/bin/quickshell")
	EndLaunchSpan(span, false, errors.New("exec: no such file"))

	stub, found := getSpanByName(exporter, "launcher.launch.quickshell")
	require.True(t, found)
	assert.Equal(t, codes.Error, stub.Status.Code)
}

func TestResolveSpan_RecordsConfidenceAndDisplayName(t *testing.T) {
	tracer, exporter := setupTestTracer(t)

	_, span := ResolveSpan(context.Background(), tracer, 4242)
	EndResolveSpan(span, "desktop", "GNOME Settings")

	stub, found := getSpanByName(exporter, SpanPrefixResolve)
	require.True(t, found)

	confidence, ok := getAttributeValue(stub, AttrActorConfidence)
	require.True(t, ok)
	assert.Equal(t, "desktop", confidence)

	display, ok := getAttributeValue(stub, AttrActorDisplay)
	require.True(t, ok)
	assert.Equal(t, "GNOME Settings", display)
	assert.Equal(t, codes.Ok, stub.Status.Code)
}

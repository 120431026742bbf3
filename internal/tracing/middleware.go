// Package tracing provides distributed tracing infrastructure for bb-authd.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DispatchSpan wraps one inbound IPC message's handling (§4.2) in a span
// named after its message type, records the connection id and message
// type as attributes, and reports the handler's error (if any) as the
// span's terminal status. If tracer is nil the call is a pass-through:
// the returned span is a no-op and End is always safe to call.
//
// Generalizes the teacher's NewTracingMiddleware (which wrapped command
// processing in the orchestration pipeline) down to a single wrap-call
// shape, since bb-auth's dispatcher is one function with a type switch
// rather than a chain of composable middleware.
func DispatchSpan(ctx context.Context, tracer trace.Tracer, connID, msgType string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	spanName := fmt.Sprintf("%s%s", SpanPrefixIPCDispatch, msgType)
	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String(AttrIPCConnID, connID),
		attribute.String(AttrIPCMessageType, msgType),
	)
	return ctx, span
}

// EndDispatchSpan records err (if any) on span and closes it. Safe to call
// on the no-op span DispatchSpan returns when tracing is disabled.
func EndDispatchSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// LaunchSpan wraps one provider-launcher selection+spawn attempt (§4.5):
// the candidate id and resolved exec path are recorded as attributes, and
// a throttled attempt is marked with EventLaunchThrottled rather than
// treated as an error, since back-off is expected steady-state behavior.
func LaunchSpan(ctx context.Context, tracer trace.Tracer, candidateID, execPath string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	spanName := fmt.Sprintf("%s%s", SpanPrefixLaunch, candidateID)
	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String(AttrLaunchCandidateID, candidateID),
		attribute.String(AttrLaunchExec, execPath),
	)
	return ctx, span
}

// EndLaunchSpan records the outcome of a LaunchSpan. throttled takes
// priority over err: a throttled attempt never reached exec.Command, so
// it is not an error condition worth alerting on.
func EndLaunchSpan(span trace.Span, throttled bool, err error) {
	switch {
	case throttled:
		span.AddEvent(EventLaunchThrottled)
		span.SetStatus(codes.Ok, "throttled")
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// ResolveSpan wraps one actor.Resolver.Resolve call (§4.6), recording the
// subject pid. The confidence tag and display name are attached once the
// resolution completes (EndResolveSpan), since they aren't known until
// then.
func ResolveSpan(ctx context.Context, tracer trace.Tracer, pid int) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	ctx, span := tracer.Start(ctx, SpanPrefixResolve, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.Int(AttrActorPID, pid))
	return ctx, span
}

// EndResolveSpan records the resolved confidence/display name and closes
// the span. A Resolve call has no error return (unknown actors degrade to
// Confidence "unknown" rather than failing), so there is no error branch.
func EndResolveSpan(span trace.Span, confidence, displayName string) {
	span.SetAttributes(
		attribute.String(AttrActorConfidence, confidence),
		attribute.String(AttrActorDisplay, displayName),
	)
	span.SetStatus(codes.Ok, "")
	span.End()
}

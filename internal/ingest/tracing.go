// Tracing instrumentation for snapshot imports. Spans are no-ops until
// telemetry installs a global tracer provider.
package ingest

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentsight/agentsight/internal/session"
)

// startImportSpan starts a span for one transcript import.
func startImportSpan(ctx context.Context, source string) (context.Context, trace.Span) {
	tracer := otel.Tracer("agentsight/ingest")
	ctx, span := tracer.Start(ctx, "import.transcript")
	span.SetAttributes(attribute.String("import.source", source))
	return ctx, span
}

// endImportSpan ends the import span with result info.
func endImportSpan(span trace.Span, rec *session.Record, err error) {
	if err != nil {
		span.RecordError(err)
	} else if rec != nil {
		span.SetAttributes(
			attribute.String("session.id", rec.ID),
			attribute.Int("import.messages", rec.MessageCount),
			attribute.Int("import.detections", rec.DetectionCount),
		)
	}
	span.End()
}

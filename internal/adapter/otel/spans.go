package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "qagate"

// StartSubmitSpan starts a span for a candidate submission through the pipeline.
func StartSubmitSpan(ctx context.Context, candidateID, domain, contentType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "submit",
		trace.WithAttributes(
			attribute.String("candidate.id", candidateID),
			attribute.String("candidate.domain", domain),
			attribute.String("candidate.content_type", contentType),
		),
	)
}

// StartConsensusSpan starts a span for a consensus evaluation of a review request.
func StartConsensusSpan(ctx context.Context, requestID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "consensus",
		trace.WithAttributes(
			attribute.String("review.id", requestID),
		),
	)
}

// StartSweepSpan starts a span for a deadline sweep pass.
func StartSweepSpan(ctx context.Context) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "deadline_sweep")
}

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FeedEvents traces request-level feed operations on top of the HTTP spans
type FeedEvents struct {
	tracer trace.Tracer
}

// NewFeedEvents creates a feed event tracer
func NewFeedEvents() *FeedEvents {
	return &FeedEvents{tracer: otel.Tracer("feed-events")}
}

// TraceNextBatch opens a span for one next-batch request
func (fe *FeedEvents) TraceNextBatch(ctx context.Context, sessionID string, radius float64, count int) (context.Context, trace.Span) {
	return fe.tracer.Start(ctx, "feed.next_batch",
		trace.WithAttributes(
			attribute.String("feed.session_id", sessionID),
			attribute.Float64("feed.sphere_radius_m", radius),
			attribute.Int("feed.requested", count),
		),
	)
}

// TraceCreatePost opens a span for post creation
func (fe *FeedEvents) TraceCreatePost(ctx context.Context, bucket string, mediaCount int) (context.Context, trace.Span) {
	return fe.tracer.Start(ctx, "post.create",
		trace.WithAttributes(
			attribute.String("post.bucket", bucket),
			attribute.Int("post.media_count", mediaCount),
		),
	)
}

// EndWithResult records the outcome and ends the span
func EndWithResult(span trace.Span, delivered int, exhausted bool, err error) {
	span.SetAttributes(
		attribute.Int("feed.delivered", delivered),
		attribute.Bool("feed.exhausted", exhausted),
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	span.End()
}

// EndWithError records err (if any) and ends the span
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	span.End()
}

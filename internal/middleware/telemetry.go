package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware returns the otelgin middleware followed by one that
// decorates the server span. Both must be installed in order.
func TracingMiddleware(serviceName string) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		otelgin.Middleware(serviceName),
		spanAttributes,
	}
}

// spanAttributes runs inside the otelgin span so it can still write to it
func spanAttributes(c *gin.Context) {
	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		c.Next()
		return
	}

	if requestID := c.GetString("request_id"); requestID != "" {
		span.SetAttributes(attribute.String("request.id", requestID))
	}
	if sessionID := c.GetHeader(sessionIDHeader); sessionID != "" {
		span.SetAttributes(attribute.String("feed.session_id", sessionID))
	}

	c.Next()

	if sessionID := c.Writer.Header().Get(sessionIDHeader); sessionID != "" {
		span.SetAttributes(attribute.String("feed.session_id", sessionID))
	}
	for _, ginErr := range c.Errors {
		if ginErr.Err != nil {
			span.RecordError(ginErr.Err)
			span.SetStatus(codes.Error, ginErr.Error())
		}
	}
}

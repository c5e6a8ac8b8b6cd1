package main

import (
	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	cidpkg "github.com/nothsaaaa/js-chat-server/internal/cid"
)

// cidMiddleware attaches a correlation id to every request: incoming ids are
// preserved, otherwise a fresh KSUID is generated. The id is echoed on the
// response and stored in the request context.
func (s *Server) cidMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(cidpkg.HeaderName)
		if id == "" {
			id = ksuid.New().String()
		}
		c.Request = c.Request.WithContext(cidpkg.WithCID(c.Request.Context(), id))
		c.Writer.Header().Set(cidpkg.HeaderName, id)
		c.Next()
	}
}

// otelMiddleware wraps each request in a span carrying basic HTTP attributes
// and the correlation id.
func (s *Server) otelMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("js-chat-server/http")
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+c.FullPath(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.target", c.Request.URL.Path),
			),
		)
		if id := cidpkg.FromContext(ctx); id != "" {
			span.SetAttributes(attribute.String(cidpkg.AttributeName, id))
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
		span.End()
	}
}

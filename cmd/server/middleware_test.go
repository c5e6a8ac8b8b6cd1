package main

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	cidpkg "github.com/nothsaaaa/js-chat-server/internal/cid"
)

func TestCIDMiddlewareAddsHeader(t *testing.T) {
	router := gin.New()
	s := &Server{}
	router.Use(s.cidMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.String(200, "ok") })

	req := httptest.NewRequest("GET", "/ping", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	id := w.Header().Get(cidpkg.HeaderName)
	if id == "" {
		t.Fatalf("expected response to include header %s, but it was empty", cidpkg.HeaderName)
	}
	if _, err := ksuid.Parse(id); err != nil {
		t.Fatalf("expected %s to be a valid ksuid, got parse error: %v", id, err)
	}
}

func TestCIDMiddlewarePreservesExistingHeader(t *testing.T) {
	router := gin.New()
	s := &Server{}
	router.Use(s.cidMiddleware())
	router.GET("/echo", func(c *gin.Context) { c.String(200, "ok") })

	incoming := ksuid.New().String()
	req := httptest.NewRequest("GET", "/echo", nil)
	req.Header.Set(cidpkg.HeaderName, incoming)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	got := w.Header().Get(cidpkg.HeaderName)
	if got != incoming {
		t.Fatalf("expected middleware to preserve incoming CID %s, got %s", incoming, got)
	}
}

func TestOtelMiddlewareStartsSpan(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	otel.SetTracerProvider(tp)

	s := &Server{}
	router := gin.New()
	router.Use(s.otelMiddleware())
	router.GET("/test", func(c *gin.Context) { c.String(200, "ok") })

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	spans := exp.GetSpans()
	if len(spans) == 0 {
		t.Fatalf("expected spans to be recorded, got 0")
	}
	foundMethod := false
	foundTarget := false
	for _, span := range spans {
		for _, attr := range span.Attributes {
			if attr.Key == "http.method" && attr.Value.AsString() == "GET" {
				foundMethod = true
			}
			if attr.Key == "http.target" && attr.Value.AsString() == "/test" {
				foundTarget = true
			}
		}
	}
	if !foundMethod || !foundTarget {
		t.Fatalf("expected http.method and http.target attributes on spans; got method=%v target=%v", foundMethod, foundTarget)
	}
}

func TestOtelMiddlewareSetsCIDAttribute(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	otel.SetTracerProvider(tp)

	s := &Server{}
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(cidpkg.WithCID(context.Background(), "test-cid-123"))
		c.Next()
	})
	router.Use(s.otelMiddleware())
	router.GET("/testcid", func(c *gin.Context) { c.String(200, "ok") })

	req := httptest.NewRequest("GET", "/testcid", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	found := false
	for _, span := range exp.GetSpans() {
		for _, attr := range span.Attributes {
			if string(attr.Key) == cidpkg.AttributeName && attr.Value.AsString() == "test-cid-123" {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected span attribute %s=test-cid-123 to be recorded", cidpkg.AttributeName)
	}
}

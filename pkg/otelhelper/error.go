package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(
		attrs...,
	))
}

// SetFailure marks a span failed for outcomes that are not Go errors, such as
// a send that returned ok=false.
func SetFailure(span trace.Span, detail string, attrs ...attribute.KeyValue) {
	span.SetStatus(codes.Error, detail)
	span.AddEvent("transmission_failed", trace.WithAttributes(
		append(attrs, attribute.String("detail", detail))...,
	))
}

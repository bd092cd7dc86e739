// Package tracing provides OpenTelemetry distributed tracing setup and utilities.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StorageOperation represents the type of storage operation being traced.
type StorageOperation string

const (
	// StorageOperationRead represents a read of one object.
	StorageOperationRead StorageOperation = "read"
	// StorageOperationWrite represents a full-object write.
	StorageOperationWrite StorageOperation = "write"
	// StorageOperationExists represents an existence check.
	StorageOperationExists StorageOperation = "exists"
	// StorageOperationList represents a prefix listing.
	StorageOperationList StorageOperation = "list"
)

// StartStorageSpan creates a new span for a storage backend operation.
// Returns the new context and a function to end the span.
//
// Example usage:
//
//	ctx, endSpan := tracing.StartStorageSpan(ctx, "s3", tracing.StorageOperationRead)
//	defer endSpan(err)
func StartStorageSpan(ctx context.Context, backend string, operation StorageOperation) (context.Context, func(error)) {
	tracer := otel.Tracer("ugoite/storage")

	spanName := string(operation)
	if backend != "" {
		spanName = spanName + " " + backend
	}

	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("storage.backend", backend),
			attribute.String("storage.operation", string(operation)),
		),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

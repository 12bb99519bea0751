package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CARDINALITY BEST PRACTICES:
//
// High cardinality attributes (unique values per request) should NEVER be added to spans
// that contribute to metrics, as they create unbounded metric series.
//
// AVOID these as span attributes:
// - Window keys, file names, file paths
// - Timestamps, random values, UUIDs
// - Error messages with dynamic content
//
// SAFE attributes (bounded cardinality):
// - Outcome values (limited set: "completed", "skipped", "failed")
// - Failure classes (limited set: "overload", "session_expired", "other")
// - Component names (limited set: "database", "device", "downloader")
//
// For debugging, high-cardinality data belongs in logs with correlation IDs.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation instruments a generic operation with telemetry.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(
			attribute.Bool("error", true),
			// Note: error.message is intentionally NOT added as attribute to prevent
			// high cardinality from unique error messages. Full error is in span status.
		)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", duration.Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments journal operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordDBOperation(operation, status, duration)

	return err
}

// InstrumentSegmentDownload instruments one segment transfer attempt.
func (t *Telemetry) InstrumentSegmentDownload(ctx context.Context, quality string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	t.IncrementActiveSegments()
	defer t.DecrementActiveSegments()

	return t.InstrumentOperation(ctx, "segment_download", "downloader", func(ctx context.Context) error {
		ctx, span := t.tracer.Start(ctx, "segment_download")
		defer span.End()

		// Note: the window key is intentionally NOT added as an attribute to
		// prevent high cardinality. It is available in logs.
		span.SetAttributes(
			attribute.String("segment.quality", quality),
		)

		return fn(ctx)
	})
}

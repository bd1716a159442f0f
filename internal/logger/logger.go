package logger

import (
	"context"
	"log"

	"go.opentelemetry.io/otel/trace"
)

// Printf writes through the standard logger. When ctx carries a valid span the
// line is prefixed with its trace and span ids so it can be joined with traces.
func Printf(ctx context.Context, format string, args ...any) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		log.Printf(format, args...)
		return
	}
	log.Printf("trace_id=%s span_id=%s "+format, append([]any{sc.TraceID(), sc.SpanID()}, args...)...)
}

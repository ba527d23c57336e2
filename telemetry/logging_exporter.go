package telemetry

import (
	"context"

	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type loggingExporter struct {
	logger zerolog.Logger
}

// NewLoggingExporter escreve cada span (e seus eventos, como ratelimit.decision) como uma linha de log.
func NewLoggingExporter(logger zerolog.Logger) sdktrace.SpanExporter {
	return &loggingExporter{logger: logger}
}

func (l *loggingExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		sc := span.SpanContext()
		event := l.logger.Info()
		if sc.TraceID().IsValid() {
			event = event.Str("trace_id", sc.TraceID().String())
		}
		if sc.SpanID().IsValid() {
			event = event.Str("span_id", sc.SpanID().String())
		}
		event = event.Str("span_name", span.Name()).
			Dur("duration", span.EndTime().Sub(span.StartTime()))

		if attrs := span.Attributes(); len(attrs) > 0 {
			fields := make(map[string]any, len(attrs))
			for _, attr := range attrs {
				fields[string(attr.Key)] = attr.Value.Emit()
			}
			event = event.Fields(fields)
		}

		if evs := span.Events(); len(evs) > 0 {
			arr := zerolog.Arr()
			for _, ev := range evs {
				d := zerolog.Dict().Str("name", ev.Name)
				for _, attr := range ev.Attributes {
					d = d.Str(string(attr.Key), attr.Value.Emit())
				}
				arr = arr.Dict(d)
			}
			event = event.Array("events", arr)
		}
		event.Msg("otel span completed")
	}
	return nil
}

func (l *loggingExporter) Shutdown(context.Context) error { return nil }

func (l *loggingExporter) ForceFlush(context.Context) error { return nil }

var _ sdktrace.SpanExporter = (*loggingExporter)(nil)

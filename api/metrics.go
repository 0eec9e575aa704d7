package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	moveSpanName  = "kanban.move"
	moveRoute     = "/api/projects/:id/kanban/tasks/move"
	moveEventName = "kanban.move.metrics"
)

// moveRequestMetrics instruments the board-move hot path: an otel span for
// tracing plus one structured log event per request with stage timings.
type moveRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration   time.Duration
	mutateDuration time.Duration
	revision       int64
	errorStage     string
}

func newMoveRequestMetrics(ctx context.Context, logger *log.Logger) (*moveRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer("collab-api").Start(ctx, moveSpanName)
	m := &moveRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}
	return m, spanCtx
}

func (m *moveRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *moveRequestMetrics) ObserveMutate(d time.Duration) {
	if d > 0 {
		m.mutateDuration = d
	}
}

func (m *moveRequestMetrics) SetRevision(rev int64) {
	m.revision = rev
}

func (m *moveRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log finalizes the span and emits the per-request metrics event.
func (m *moveRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	total := time.Since(m.start)
	fields := log.Fields{
		"route":    moveRoute,
		"status":   status,
		"total_ms": durationToMillis(total),
	}
	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.mutateDuration > 0 {
		fields["mutate_ms"] = durationToMillis(m.mutateDuration)
	}
	if m.revision > 0 {
		fields["revision"] = m.revision
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	if m.span != nil {
		m.span.SetAttributes(
			attribute.String("http.route", moveRoute),
			attribute.Int("http.status_code", status),
			attribute.Float64("kanban.move.total_ms", durationToMillis(total)),
		)
		if m.revision > 0 {
			m.span.SetAttributes(attribute.Int64("kanban.move.revision", m.revision))
		}
		if m.errorStage != "" {
			m.span.SetAttributes(attribute.String("kanban.move.error_stage", m.errorStage))
			m.span.SetStatus(codes.Error, m.errorStage)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
		m.span.End()
	}

	if m.logger != nil {
		m.logger.WithFields(fields).Info(moveEventName)
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

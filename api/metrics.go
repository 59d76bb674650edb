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

const tracerName = "board-sync/api"

// requestMetrics times one request and reports it as a log entry and a span.
type requestMetrics struct {
	logger       *log.Logger
	span         trace.Span
	start        time.Time
	method       string
	route        string
	userID       string
	authDuration time.Duration
	errorStage   string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
	)
	return &requestMetrics{logger: logger, span: span, start: time.Now(), method: method, route: route}, ctx
}

func (m *requestMetrics) ObserveAuth(d time.Duration) {
	if d <= 0 {
		return
	}
	m.authDuration = d
}

func (m *requestMetrics) SetUser(id string) { m.userID = id }

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log emits request.metrics and ends the span.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	total := time.Since(m.start)
	m.span.SetAttributes(
		attribute.Int("http.status_code", status),
		attribute.Float64("board_sync.total_ms", durationToMillis(total)),
	)
	if m.userID != "" {
		m.span.SetAttributes(attribute.String("enduser.id", m.userID))
	}
	if m.errorStage != "" {
		m.span.SetAttributes(attribute.String("board_sync.error_stage", m.errorStage))
	}
	if err != nil {
		m.span.RecordError(err)
	}
	if status >= 500 || err != nil {
		m.span.SetStatus(codes.Error, m.errorStage)
	}
	m.span.End()

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"route":    m.route,
		"method":   m.method,
		"status":   status,
		"total_ms": durationToMillis(total),
	}
	if m.userID != "" {
		fields["user"] = m.userID
	}
	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info("request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

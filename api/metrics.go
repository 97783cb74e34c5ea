package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName       = "cmis-api"
	rsvpSpanName     = "api.rsvp.reserve"
	rsvpEventName    = "rsvp.request"
	rsvpEventDomain  = "cmis"
	rsvpRoute        = "/api/events/:id/rsvp"
	metricAttrPrefix = "cmis.rsvp."
)

// rsvpRequestMetrics collects timing and outcome data for a single
// reservation request and emits it both as an observability log event
// and as attributes on the request span.
type rsvpRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration    time.Duration
	reserveDuration time.Duration
	outcome         string
	errorStage      string
}

func newRSVPRequestMetrics(ctx context.Context, logger *log.Logger) (*rsvpRequestMetrics, context.Context) {
	tracer := otel.GetTracerProvider().Tracer(tracerName)
	spanCtx, span := tracer.Start(ctx, rsvpSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("http.route", rsvpRoute)),
	)
	return &rsvpRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *rsvpRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *rsvpRequestMetrics) ObserveReserve(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.reserveDuration = duration
}

// SetOutcome records the business result of the request, e.g.
// "confirmed", "full" or "already_reserved".
func (m *rsvpRequestMetrics) SetOutcome(outcome string) {
	if outcome == "" {
		return
	}
	m.outcome = outcome
}

func (m *rsvpRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log finishes the span and writes the observability event. It must be
// called exactly once per request.
func (m *rsvpRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	totalMs := durationToMillis(time.Since(m.start))
	severityText, severityNumber := severityForStatus(status, err)

	attrs := []attribute.KeyValue{
		attribute.String("http.route", rsvpRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64(metricAttrPrefix+"total_ms", totalMs),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64(metricAttrPrefix+"auth_ms", durationToMillis(m.authDuration)))
	}
	if m.reserveDuration > 0 {
		attrs = append(attrs, attribute.Float64(metricAttrPrefix+"reserve_ms", durationToMillis(m.reserveDuration)))
	}
	if m.outcome != "" {
		attrs = append(attrs, attribute.String(metricAttrPrefix+"outcome", m.outcome))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String(metricAttrPrefix+"error_stage", m.errorStage))
	}

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", rsvpEventName),
		attribute.String("event.domain", rsvpEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, attrs...)
	if err != nil {
		eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
		if err != nil {
			m.span.SetStatus(codes.Error, err.Error())
		} else if status >= http.StatusInternalServerError {
			m.span.SetStatus(codes.Error, http.StatusText(status))
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}

	attributes := map[string]any{
		"http.route":       rsvpRoute,
		"http.status_code": status,
	}
	attributes[metricAttrPrefix+"total_ms"] = totalMs
	if m.authDuration > 0 {
		attributes[metricAttrPrefix+"auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.reserveDuration > 0 {
		attributes[metricAttrPrefix+"reserve_ms"] = durationToMillis(m.reserveDuration)
	}
	if m.outcome != "" {
		attributes[metricAttrPrefix+"outcome"] = m.outcome
	}
	if m.errorStage != "" {
		attributes[metricAttrPrefix+"error_stage"] = m.errorStage
	}

	fields := log.Fields{
		"event.name":      rsvpEventName,
		"event.domain":    rsvpEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attributes,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("observability.event")
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

package app

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("exam-session-engine/app")

// Metrics holds the operator-facing counters of the engine.
type Metrics struct {
	unresolvedAnswers prometheus.Counter
	initializations   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewMetrics registers the engine metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		unresolvedAnswers: f.NewCounter(prometheus.CounterOpts{
			Name: "exam_snapshot_unresolved_answers_total",
			Help: "Snapshot rows written without an authoritative correct answer",
		}),
		initializations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_session_initializations_total",
			Help: "Session snapshot initializations by outcome",
		}, []string{"outcome"}),
		operationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exam_operation_duration_seconds",
			Help:    "Engine operation duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation", "status"}),
	}
}

// UnresolvedAnswers exposes the integrity warning counter.
func (m *Metrics) UnresolvedAnswers() prometheus.Counter {
	return m.unresolvedAnswers
}

// Initializations exposes the initialization counter.
func (m *Metrics) Initializations() *prometheus.CounterVec {
	return m.initializations
}

func (m *Metrics) observe(operation string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operationDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}

// startOp opens a span for an engine operation. The returned func must be
// deferred with a pointer to the operation's named error.
func (s *ExamService) startOp(ctx context.Context, operation, sessionID string) (context.Context, func(*error)) {
	started := time.Now()
	attrs := []attribute.KeyValue{attribute.String("exam.operation", operation)}
	if sessionID != "" {
		attrs = append(attrs, attribute.String("exam.session_id", sessionID))
	}
	ctx, span := tracer.Start(ctx, "ExamService."+operation, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.observe(operation, started, err)
	}
}

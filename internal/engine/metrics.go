package engine

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

var tracer = otel.Tracer("mission-control.engine")

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mission_control_operations_total",
		Help: "Engine operations by name and outcome",
	}, []string{"op", "outcome"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mission_control_operation_duration_seconds",
		Help:    "Engine operation latency including transaction commit",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"op"})

	claimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mission_control_claims_total",
		Help: "Claim attempts by result: won, noop, locked, blocked, completed",
	}, []string{"result"})

	linksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mission_control_links_total",
		Help: "Link attempts by result: added, existing, cycle, cross_mission",
	}, []string{"result"})

	statusUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mission_control_status_updates_total",
		Help: "Task status updates by target status",
	}, []string{"status"})
)

// observe opens a span for op and returns the function that closes it and
// records the outcome. Call it deferred with the address of the named error.
func observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "engine."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		operationsTotal.WithLabelValues(op, Kind(err)).Inc()
		operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

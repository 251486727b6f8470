package dispatch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instrumentationName is the scope name for dispatch traces and metrics.
const instrumentationName = "github.com/mattjoyce/tspl-agent/internal/dispatch"

// Status attribute values.
const (
	statusOK     = "ok"
	statusFailed = "failed"
	statusError  = "error"
)

// instruments records per-job and per-attempt metrics:
//   - tspl.dispatch.jobs (Int64Counter), attribute status
//   - tspl.dispatch.duration (Float64Histogram, seconds), attribute status
//   - tspl.dispatch.attempts (Int64Counter), attributes strategy and status
type instruments struct {
	jobs     metric.Int64Counter
	duration metric.Float64Histogram
	attempts metric.Int64Counter
}

func newInstruments(meter metric.Meter) *instruments {
	// On error the API hands back noop instruments, so errors are ignored.
	jobs, _ := meter.Int64Counter(
		"tspl.dispatch.jobs",
		metric.WithDescription("Print jobs dispatched"),
		metric.WithUnit("{job}"),
	)
	duration, _ := meter.Float64Histogram(
		"tspl.dispatch.duration",
		metric.WithDescription("Time to dispatch a print job in seconds"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Counter(
		"tspl.dispatch.attempts",
		metric.WithDescription("Strategy attempts"),
		metric.WithUnit("{attempt}"),
	)
	return &instruments{jobs: jobs, duration: duration, attempts: attempts}
}

func (m *instruments) recordJob(ctx context.Context, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.jobs.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *instruments) recordAttempt(ctx context.Context, strategy string, ok bool) {
	status := statusOK
	if !ok {
		status = statusFailed
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("status", status),
	))
}

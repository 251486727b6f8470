package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mattjoyce/tspl-agent/internal/events"
)

// Dispatcher runs print jobs through a fixed strategy chain.
type Dispatcher struct {
	store   DocumentStore
	chain   []Strategy
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *instruments
	events  Publisher

	inFlight  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithMeter overrides the global OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = newInstruments(m)
		}
	}
}

// WithPublisher sets where lifecycle events are published.
func WithPublisher(p Publisher) Option {
	return func(d *Dispatcher) {
		d.events = p
	}
}

// New creates a Dispatcher. The chain is fixed for the dispatcher's lifetime.
func New(store DocumentStore, chain []Strategy, opts ...Option) (*Dispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("document store is nil")
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("strategy chain is empty")
	}

	d := &Dispatcher{
		store:  store,
		chain:  append([]Strategy(nil), chain...),
		logger: slog.Default(),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = newInstruments(otel.Meter(instrumentationName))
	}
	return d, nil
}

// Chain returns the strategy names in execution order.
func (d *Dispatcher) Chain() []string {
	return Names(d.chain)
}

// Stats is a point-in-time view of dispatch counters.
type Stats struct {
	InFlight  int64 `json:"in_flight"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		InFlight:  d.inFlight.Load(),
		Succeeded: d.succeeded.Load(),
		Failed:    d.failed.Load(),
	}
}

// JobEvent is the payload of print.* events.
type JobEvent struct {
	JobID         string  `json:"job_id"`
	Printer       string  `json:"printer"`
	SubmittedFrom string  `json:"submitted_from,omitempty"`
	Size          int     `json:"size"`
	Digest        string  `json:"digest,omitempty"`
	Strategy      string  `json:"strategy,omitempty"`
	Error         string  `json:"error,omitempty"`
	DurationMS    float64 `json:"duration_ms,omitempty"`
}

// Dispatch persists the job's content, runs the chain until a strategy
// succeeds, and releases the document exactly once.
//
// A failed print is reported through Outcome.Err, not the returned error,
// which is reserved for failures that prevented any attempt. Cancellation of
// ctx does not abort a dispatch that has started.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) (Outcome, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	ctx = context.WithoutCancel(ctx)

	ctx, span := d.tracer.Start(ctx, "tspl.dispatch",
		trace.WithAttributes(
			attribute.String("tspl.job.id", job.ID),
			attribute.String("tspl.printer", job.Printer),
			attribute.Int("tspl.document.size", len(job.Content)),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	d.inFlight.Add(1)
	defer d.inFlight.Add(-1)

	start := time.Now()
	logger := d.logger.With("job_id", job.ID, "printer", job.Printer)
	outcome := Outcome{JobID: job.ID}

	doc, err := d.store.Persist(ctx, job.Content)
	if err != nil {
		outcome.Duration = time.Since(start)
		d.failed.Add(1)
		d.metrics.recordJob(ctx, statusError, outcome.Duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("failed to persist document", "error", err)
		return outcome, fmt.Errorf("persist document: %w", err)
	}
	defer d.store.Release(doc)

	outcome.Digest = doc.Digest
	span.SetAttributes(attribute.String("tspl.document.digest", doc.Digest))
	ev := JobEvent{
		JobID:         job.ID,
		Printer:       job.Printer,
		SubmittedFrom: job.SubmittedFrom,
		Size:          doc.Size,
		Digest:        doc.Digest,
	}
	d.publish(events.TypePrintStarted, ev)
	logger.Debug("dispatching document", "path", doc.Path, "size", doc.Size, "digest", doc.Digest)

	var failures []*StrategyError
	for _, s := range d.chain {
		attemptStart := time.Now()
		serr := d.attempt(ctx, s, doc.Path, job.Printer)
		outcome.Attempts = append(outcome.Attempts, Attempt{
			Strategy: s.Name(),
			Err:      serr,
			Duration: time.Since(attemptStart),
		})
		d.metrics.recordAttempt(ctx, s.Name(), serr == nil)

		if serr == nil {
			outcome.Success = true
			outcome.Strategy = s.Name()
			break
		}
		logger.Warn("print strategy failed", "strategy", s.Name(), "error", serr.Detail())
		failures = append(failures, serr)
	}

	outcome.Duration = time.Since(start)
	ev.DurationMS = float64(outcome.Duration.Microseconds()) / 1000

	if outcome.Success {
		d.succeeded.Add(1)
		d.metrics.recordJob(ctx, statusOK, outcome.Duration)
		span.SetAttributes(attribute.String("tspl.strategy", outcome.Strategy))
		span.SetStatus(codes.Ok, "")
		ev.Strategy = outcome.Strategy
		d.publish(events.TypePrintSucceeded, ev)
		logger.Info("document sent to printer", "strategy", outcome.Strategy, "duration_ms", ev.DurationMS)
		return outcome, nil
	}

	outcome.Err = &DispatchError{Failures: failures}
	d.failed.Add(1)
	d.metrics.recordJob(ctx, statusFailed, outcome.Duration)
	span.RecordError(outcome.Err)
	span.SetStatus(codes.Error, outcome.Err.Error())
	ev.Error = outcome.Err.Error()
	d.publish(events.TypePrintFailed, ev)
	logger.Error("print failed", "error", outcome.Err.Error(), "duration_ms", ev.DurationMS)
	return outcome, nil
}

// attempt runs one strategy, converting errors and panics to a StrategyError.
func (d *Dispatcher) attempt(ctx context.Context, s Strategy, path, printer string) (serr *StrategyError) {
	name := s.Name()
	ctx, span := d.tracer.Start(ctx, "tspl.dispatch.attempt",
		trace.WithAttributes(attribute.String("tspl.strategy", name)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("print strategy panicked", "strategy", name, "panic", r)
			serr = &StrategyError{Strategy: name, Message: fmt.Sprintf("panic: %v", r)}
			span.RecordError(serr)
			span.SetStatus(codes.Error, serr.Error())
		}
	}()

	if err := s.Attempt(ctx, path, printer); err != nil {
		serr = asStrategyError(name, err)
		span.RecordError(serr)
		span.SetStatus(codes.Error, serr.Error())
		return serr
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (d *Dispatcher) publish(eventType string, ev JobEvent) {
	if d.events == nil {
		return
	}
	d.events.Publish(eventType, ev)
}

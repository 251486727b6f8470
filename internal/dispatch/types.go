package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mattjoyce/tspl-agent/internal/spool"
)

//go:generate mockgen -destination=mocks/mock_dispatch.go -package=mocks github.com/mattjoyce/tspl-agent/internal/dispatch Strategy,DocumentStore

// Strategy is one mechanism for handing a document to the OS print subsystem.
// Attempt returns nil on success and a *StrategyError otherwise.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, documentPath, printer string) error
}

// DocumentStore persists payloads for the duration of a dispatch.
type DocumentStore interface {
	Persist(ctx context.Context, content []byte) (spool.Document, error)
	Release(doc spool.Document)
}

// Publisher receives dispatch lifecycle events.
type Publisher interface {
	Publish(eventType string, data any)
}

// Job is a single print request. It is not modified after creation.
type Job struct {
	ID            string
	Content       []byte
	Printer       string
	SubmittedFrom string
}

// Attempt records one strategy invocation.
type Attempt struct {
	Strategy string
	Err      *StrategyError
	Duration time.Duration
}

// Outcome is the single result of dispatching a job.
type Outcome struct {
	JobID    string
	Success  bool
	Strategy string
	Attempts []Attempt
	Digest   string
	Duration time.Duration
	Err      *DispatchError
}

// Failure returns the dispatch error as an error value, or nil on success.
func (o Outcome) Failure() error {
	if o.Err == nil {
		return nil
	}
	return o.Err
}

// StrategyError is the structured failure of a single strategy.
type StrategyError struct {
	Strategy string
	// Message is the underlying error (launch failure, exit status, mismatch).
	Message string
	// Diagnostic is raw process output relevant to the failure.
	Diagnostic string
}

func (e *StrategyError) Error() string {
	return e.Strategy + ": " + e.Detail()
}

// Detail renders Message and Diagnostic without the strategy name.
func (e *StrategyError) Detail() string {
	diag := strings.TrimSpace(e.Diagnostic)
	switch {
	case diag == "":
		return e.Message
	case e.Message == "":
		return diag
	default:
		return e.Message + " :: " + diag
	}
}

// DispatchError reports that every strategy in the chain failed.
type DispatchError struct {
	Failures []*StrategyError
}

func (e *DispatchError) Error() string {
	if len(e.Failures) == 0 {
		return "no dispatch strategy attempted"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, "["+f.Strategy+":"+f.Detail()+"]")
	}
	return strings.Join(parts, " ")
}

// Unwrap exposes the individual strategy failures to errors.Is/As.
func (e *DispatchError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f)
	}
	return out
}

// asStrategyError normalizes any error returned by a strategy.
func asStrategyError(name string, err error) *StrategyError {
	var se *StrategyError
	if errors.As(err, &se) {
		if se.Strategy == "" {
			se.Strategy = name
		}
		return se
	}
	return &StrategyError{Strategy: name, Message: err.Error()}
}

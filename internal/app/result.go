package app

import (
	"errors"
	"time"

	"github.com/Adda-Baaj/apiclient/internal/history"
	"github.com/Adda-Baaj/apiclient/pkg/httpclient"
	"github.com/Adda-Baaj/apiclient/pkg/publishers"
)

// Result is the outcome of one call made by the runner.
type Result struct {
	RequestID string
	Method    string
	Target    string
	Envelope  *httpclient.Envelope
	Err       error
	Duration  time.Duration
	At        time.Time
}

// Outcome is "ok" or the failure kind.
func (r Result) Outcome() string {
	if r.Err == nil {
		return OutcomeOK
	}
	if kind, ok := httpclient.KindOf(r.Err); ok {
		return string(kind)
	}
	return "error"
}

// StatusCode is the transport status, or 0 when no response arrived.
func (r Result) StatusCode() int {
	if r.Envelope != nil {
		return r.Envelope.StatusCode
	}
	var serr *httpclient.ServerError
	if errors.As(r.Err, &serr) {
		return serr.StatusCode
	}
	return 0
}

func (r Result) errorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func (r Result) historyRecord() history.Record {
	return history.Record{
		RequestID:  r.RequestID,
		Method:     r.Method,
		Target:     r.Target,
		Outcome:    r.Outcome(),
		StatusCode: r.StatusCode(),
		DurationMs: r.Duration.Milliseconds(),
		Error:      r.errorText(),
		At:         r.At,
	}
}

func (r Result) event() publishers.Event {
	return publishers.Event{
		RequestID:  r.RequestID,
		Method:     r.Method,
		Target:     r.Target,
		Outcome:    r.Outcome(),
		StatusCode: r.StatusCode(),
		DurationMs: r.Duration.Milliseconds(),
		Error:      r.errorText(),
		OccurredAt: r.At,
	}
}

package main

import (
	"context"
	"net/http"
)

// Sendable is a span that is finished and handed off by calling Send.
type Sendable interface {
	Send()
}

// RequestSpan is the span a Client wraps around one HTTP call.
type RequestSpan interface {
	Sendable
	AddField(key string, value interface{})
	// RecordError attaches err to the span and marks it as failed.
	RecordError(err error)
	// SetError marks the span as failed without an error value, as for a
	// 4xx or 5xx response.
	SetError(msg string)
}

// A Sender is the tracing handle built once at startup. Task code only
// sees it through the Client.
type Sender interface {
	StartSpan(ctx context.Context, name string) (context.Context, RequestSpan)
	// WrapTransport returns a round-tripper that creates a span for every
	// request on its own; it is how automatic instrumentation is attached.
	WrapTransport(rt http.RoundTripper) http.RoundTripper
	Close()
}

// NewSender builds the sender selected by --sender.
func NewSender(log Logger, opts *Options) (Sender, error) {
	switch opts.Tracing.Sender {
	case "otel":
		return NewSenderOTel(log, opts)
	case "launcher":
		return NewSenderLauncher(log, opts)
	case "honeycomb":
		return NewSenderHoneycomb(opts), nil
	case "print":
		return NewSenderPrint(log, opts), nil
	default:
		return NewSenderDummy(log, opts), nil
	}
}

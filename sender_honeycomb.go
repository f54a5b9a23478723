package main

import (
	"context"
	"net/http"

	"github.com/honeycombio/beeline-go"
	"github.com/honeycombio/beeline-go/trace"
	"github.com/honeycombio/beeline-go/wrappers/hnynethttp"
)

// HoneycombSendable adapts a beeline span; beeline has no span status, so
// failures become an "error" field.
type HoneycombSendable struct {
	*trace.Span
}

func (s HoneycombSendable) RecordError(err error) {
	s.Span.AddField("error", err.Error())
}

func (s HoneycombSendable) SetError(msg string) {
	s.Span.AddField("error", msg)
}

type SenderHoneycomb struct{}

// make sure it implements Sender
var _ Sender = (*SenderHoneycomb)(nil)

func NewSenderHoneycomb(opts *Options) *SenderHoneycomb {
	apihost := opts.Tracing.Endpoint
	if apihost == DefaultTracesEndpoint {
		apihost = "https://api.honeycomb.io"
	}
	beeline.Init(beeline.Config{
		WriteKey:    opts.Tracing.APIKey,
		APIHost:     apihost,
		ServiceName: opts.Tracing.ServiceName,
		Debug:       opts.DebugLevel() > 2,
	})
	return &SenderHoneycomb{}
}

func (t *SenderHoneycomb) Close() {
	beeline.Close()
}

func (t *SenderHoneycomb) StartSpan(ctx context.Context, name string) (context.Context, RequestSpan) {
	ctx, span := beeline.StartSpan(ctx, name)
	span.AddField("service.version", ServiceVersion)
	return ctx, HoneycombSendable{span}
}

func (t *SenderHoneycomb) WrapTransport(rt http.RoundTripper) http.RoundTripper {
	return hnynethttp.WrapRoundTripper(rt)
}

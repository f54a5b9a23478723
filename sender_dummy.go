package main

import (
	"context"
	"net/http"
	"sync/atomic"
)

type DummySendable struct{}

func (s DummySendable) Send()                                  {}
func (s DummySendable) AddField(key string, value interface{}) {}
func (s DummySendable) RecordError(err error)                  {}
func (s DummySendable) SetError(msg string)                    {}

// SenderDummy is the tracing-off configuration. It creates no spans and
// leaves the transport alone.
type SenderDummy struct {
	spancount atomic.Int64
	log       Logger
}

// make sure it implements Sender
var _ Sender = (*SenderDummy)(nil)

func NewSenderDummy(log Logger, opts *Options) *SenderDummy {
	return &SenderDummy{log: log}
}

func (t *SenderDummy) Close() {
	t.log.Debug("dummy sender skipped %d spans\n", t.spancount.Load())
}

func (t *SenderDummy) StartSpan(ctx context.Context, name string) (context.Context, RequestSpan) {
	t.spancount.Add(1)
	return ctx, DummySendable{}
}

func (t *SenderDummy) WrapTransport(rt http.RoundTripper) http.RoundTripper {
	return rt
}

package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// make sure it implements Sender
var _ Sender = (*SenderPrint)(nil)

func ft(ts time.Time) string {
	return ts.Format("15:04:05.000")
}

// randID creates a random byte array of length l and returns it as a hex string.
func randID(l int) string {
	id := make([]byte, l)
	for i := 0; i < l; i++ {
		id[i] = byte(rand.Intn(256))
	}
	return fmt.Sprintf("%x", id)
}

type traceInfo struct {
	TraceId  string
	SpanId   string
	ParentId string
}

func (t *traceInfo) span() *traceInfo {
	return &traceInfo{
		TraceId:  t.TraceId,
		SpanId:   randID(4),
		ParentId: t.SpanId,
	}
}

type PrintSendable struct {
	TInfo     *traceInfo
	Name      string
	StartTime time.Time
	mut       sync.Mutex
	fields    map[string]interface{}
	failed    bool
	log       Logger
}

func (s *PrintSendable) AddField(key string, value interface{}) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.fields[key] = value
}

func (s *PrintSendable) RecordError(err error) {
	s.SetError(err.Error())
}

func (s *PrintSendable) SetError(msg string) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.failed = true
	s.fields["error"] = msg
}

func (s *PrintSendable) Send() {
	endTime := time.Now()
	s.mut.Lock()
	defer s.mut.Unlock()
	status := "ok"
	if s.failed {
		status = "ERR"
	}
	s.log.Printf("%s - T:%6.6s S:%4.4s P:%4.4s start:%v end:%v %s %s\n", s.Name, s.TInfo.TraceId, s.TInfo.SpanId, s.TInfo.ParentId, ft(s.StartTime), ft(endTime), status, formatFields(s.fields))
}

func formatFields(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}

// SenderPrint writes every finished span to stdout. It is meant for
// checking what a traced run would export without a collector.
type SenderPrint struct {
	tracecount atomic.Int64
	nspans     atomic.Int64
	log        Logger
}

func NewSenderPrint(log Logger, opts *Options) *SenderPrint {
	return &SenderPrint{
		log: log,
	}
}

func (t *SenderPrint) Close() {
	t.log.Info("sender printed %d traces with %d spans\n", t.tracecount.Load(), t.nspans.Load())
}

type PrintKey string

// StartSpan starts a new trace unless ctx already carries a printed span,
// in which case the new span is its child.
func (t *SenderPrint) StartSpan(ctx context.Context, name string) (context.Context, RequestSpan) {
	t.nspans.Add(1)
	var tinfo *traceInfo
	if parent, ok := ctx.Value(PrintKey("trace")).(*traceInfo); ok {
		tinfo = parent.span()
	} else {
		t.tracecount.Add(1)
		tinfo = &traceInfo{
			TraceId: randID(6),
			SpanId:  randID(4),
		}
	}
	ctx = context.WithValue(ctx, PrintKey("trace"), tinfo)
	return ctx, &PrintSendable{
		Name:      name,
		TInfo:     tinfo,
		StartTime: time.Now(),
		fields:    make(map[string]interface{}),
		log:       t.log,
	}
}

func (t *SenderPrint) WrapTransport(rt http.RoundTripper) http.RoundTripper {
	return &printTransport{next: rt, sender: t}
}

// printTransport emits one child span per round trip, mirroring what the
// otel transport instrumentation records.
type printTransport struct {
	next   http.RoundTripper
	sender *SenderPrint
}

func (p *printTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := p.sender.StartSpan(req.Context(), "HTTP "+req.Method)
	defer span.Send()
	span.AddField("http.method", req.Method)
	span.AddField("http.url", req.URL.String())
	resp, err := p.next.RoundTrip(req.WithContext(ctx))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.AddField("http.status_code", resp.StatusCode)
	if resp.StatusCode >= 400 {
		span.SetError(http.StatusText(resp.StatusCode))
	}
	return resp, nil
}

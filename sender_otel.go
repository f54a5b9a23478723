package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"

	"github.com/goware/urlx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/encoding/gzip"
)

// ServiceVersion is reported as service.version on every exported span.
const ServiceVersion = "1.0.0"

// make sure it implements Sender
var _ Sender = (*SenderOTel)(nil)

type OTelSendable struct {
	trace.Span
}

func (s OTelSendable) Send() {
	s.Span.End()
}

func (s OTelSendable) AddField(key string, value interface{}) {
	s.Span.SetAttributes(toAttribute(key, value))
}

func (s OTelSendable) RecordError(err error) {
	s.Span.RecordError(err)
	s.Span.SetStatus(codes.Error, err.Error())
}

func (s OTelSendable) SetError(msg string) {
	s.Span.SetStatus(codes.Error, msg)
}

func toAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

type SenderOTel struct {
	tracer     trace.Tracer
	provider   trace.TracerProvider
	propagator propagation.TextMapPropagator
	shutdown   func()
}

// newSenderOTel builds a sender over an already configured provider.
func newSenderOTel(provider trace.TracerProvider, shutdown func()) *SenderOTel {
	return &SenderOTel{
		tracer:     provider.Tracer(ResourceLibrary, trace.WithInstrumentationVersion(ResourceVersion)),
		provider:   provider,
		propagator: propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
		shutdown:   shutdown,
	}
}

// NewSenderOTel installs the OTLP pipeline: a resource naming the service,
// a batching exporter aimed at the collector endpoint, and a process-wide
// tracer provider and propagator. It should be called once, before any
// user starts.
func NewSenderOTel(log Logger, opts *Options) (*SenderOTel, error) {
	endpoint, err := urlx.ParseWithDefaultScheme(opts.Tracing.Endpoint, "http")
	if err != nil {
		return nil, fmt.Errorf("unable to parse traces endpoint %q: %w", opts.Tracing.Endpoint, err)
	}

	var client otlptrace.Client
	switch opts.Tracing.Protocol {
	case "grpc":
		client = setupOTELGRPCClient(endpoint, opts)
	case "http":
		client = setupOTELHTTPClient(endpoint, opts)
	default:
		return nil, fmt.Errorf("unknown protocol: %s", opts.Tracing.Protocol)
	}

	exporter, err := otlptrace.New(context.Background(), client)
	if err != nil {
		return nil, fmt.Errorf("failure configuring otel trace exporter: %w", err)
	}

	var bspOpts []sdktrace.BatchSpanProcessorOption
	if opts.Tracing.BatchTimeout != 0 {
		bspOpts = append(bspOpts, sdktrace.WithBatchTimeout(opts.Tracing.BatchTimeout))
	}
	if opts.Tracing.MaxQueueSize != 0 {
		bspOpts = append(bspOpts, sdktrace.WithMaxQueueSize(opts.Tracing.MaxQueueSize))
	}
	if opts.Tracing.MaxExportBatchSize != 0 {
		bspOpts = append(bspOpts, sdktrace.WithMaxExportBatchSize(opts.Tracing.MaxExportBatchSize))
	}
	if opts.Tracing.ExportTimeout != 0 {
		bspOpts = append(bspOpts, sdktrace.WithExportTimeout(opts.Tracing.ExportTimeout))
	}

	otel.SetErrorHandler(OtelErrorHandler{log})

	bsp := sdktrace.NewBatchSpanProcessor(exporter, bspOpts...)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(bsp),
		sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceNameKey.String(opts.Tracing.ServiceName),
			semconv.ServiceVersionKey.String(ServiceVersion),
		)),
	)
	s := newSenderOTel(tp, func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Warn("tracer provider shutdown: %v\n", err)
		}
	})
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(s.propagator)

	log.Info("exporting traces for %s over otlp/%s to %s\n", opts.Tracing.ServiceName, opts.Tracing.Protocol, endpoint)
	return s, nil
}

func (t *SenderOTel) Close() {
	t.shutdown()
}

func (t *SenderOTel) StartSpan(ctx context.Context, name string) (context.Context, RequestSpan) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	return ctx, OTelSendable{span}
}

func (t *SenderOTel) WrapTransport(rt http.RoundTripper) http.RoundTripper {
	return otelhttp.NewTransport(rt,
		otelhttp.WithTracerProvider(t.provider),
		otelhttp.WithPropagators(t.propagator),
	)
}

func isInsecure(u *url.URL) bool {
	return u.Scheme == "http"
}

func setupOTELHTTPClient(u *url.URL, opts *Options) otlptrace.Client {
	options := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(u.Host),
		otlptracehttp.WithHeaders(opts.Tracing.Headers),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if u.Path != "" && u.Path != "/" {
		options = append(options, otlptracehttp.WithURLPath(u.Path))
	}
	if isInsecure(u) {
		options = append(options, otlptracehttp.WithInsecure())
	} else {
		options = append(options, otlptracehttp.WithTLSClientConfig(&tls.Config{}))
	}
	return otlptracehttp.NewClient(options...)
}

func setupOTELGRPCClient(u *url.URL, opts *Options) otlptrace.Client {
	host := u.Host
	if u.Port() == "" {
		host = fmt.Sprintf("%s:4317", u.Host) // default GRPC port
	}
	options := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(host),
		otlptracegrpc.WithHeaders(opts.Tracing.Headers),
		otlptracegrpc.WithCompressor(gzip.Name),
	}
	if isInsecure(u) {
		options = append(options, otlptracegrpc.WithInsecure())
	} else {
		options = append(options, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}
	return otlptracegrpc.NewClient(options...)
}

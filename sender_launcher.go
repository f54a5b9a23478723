package main

import (
	"fmt"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"go.opentelemetry.io/otel"
)

// NewSenderLauncher configures the OTLP pipeline with otel-config-go, which
// also honors the rest of the standard OTEL_* environment (headers,
// sampler, resource attributes). The resulting global provider is wrapped
// the same way as the explicit otel sender.
func NewSenderLauncher(log Logger, opts *Options) (*SenderOTel, error) {
	protocol := otelconfig.ProtocolHTTPProto
	if opts.Tracing.Protocol == "grpc" {
		protocol = otelconfig.ProtocolGRPC
	}
	shutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(opts.Tracing.ServiceName),
		otelconfig.WithServiceVersion(ServiceVersion),
		otelconfig.WithTracesExporterEndpoint(opts.Tracing.Endpoint),
		otelconfig.WithExporterProtocol(protocol),
		otelconfig.WithHeaders(opts.Tracing.Headers),
		otelconfig.WithMetricsEnabled(false),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to configure opentelemetry: %w", err)
	}
	otel.SetErrorHandler(OtelErrorHandler{log})
	log.Info("opentelemetry launcher configured for %s\n", opts.Tracing.ServiceName)
	s := newSenderOTel(otel.GetTracerProvider(), shutdown)
	s.propagator = otel.GetTextMapPropagator()
	return s, nil
}

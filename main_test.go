package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseArgs(t *testing.T, args ...string) *Options {
	t.Helper()
	opts := newOptions()
	_, err := flags.NewParser(opts, flags.Default).ParseArgs(args)
	require.NoError(t, err)
	return opts
}

func TestParseHost(t *testing.T) {
	tests := []struct {
		host   string
		secure bool
		want   string
	}{
		{"local", false, "http://localhost:8080"},
		{"app:8080", false, "http://app:8080"},
		{"api.example.com", true, "https://api.example.com"},
		{"https://api.example.com:8443", false, "https://api.example.com:8443"},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			u, err := parseHost(tt.host, tt.secure)
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}
}

func TestDefaults(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	os.Unsetenv("OTEL_SERVICE_NAME")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")
	os.Unsetenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT")

	opts := parseArgs(t)
	assert.Equal(t, "locust-load-test", opts.Tracing.ServiceName)
	assert.Equal(t, DefaultTracesEndpoint, opts.Tracing.Endpoint)
	assert.Equal(t, "otel", opts.Tracing.Sender)
	assert.Equal(t, "http", opts.Tracing.Protocol)
	assert.Equal(t, time.Second, opts.Users.MinWait)
	assert.Equal(t, 2*time.Second, opts.Users.MaxWait)
	assert.NoError(t, opts.Validate())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "load-from-ci")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "http://collector:4318/v1/traces")

	opts := parseArgs(t)
	assert.Equal(t, "load-from-ci", opts.Tracing.ServiceName)
	assert.Equal(t, "http://collector:4318/v1/traces", opts.Tracing.Endpoint)
}

func TestValidate(t *testing.T) {
	opts := parseArgs(t, "--minwait=3s", "--maxwait=1s")
	assert.Error(t, opts.Validate())

	opts = parseArgs(t, "--users=0")
	assert.Error(t, opts.Validate())

	opts = parseArgs(t, "--users=50", "--spawnrate=5", "--minwait=0s", "--maxwait=0s")
	assert.NoError(t, opts.Validate())
}

func TestConfigKeepsStarredFieldsOut(t *testing.T) {
	opts := parseArgs(t, "--users=25", "--apikey=secret", "--header=x-team:abc")
	filename := filepath.Join(t.TempDir(), "apiload.yml")
	require.NoError(t, WriteConfig(opts, filename))

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	read := newOptions()
	require.NoError(t, ReadConfig(read, filename))
	assert.Equal(t, 25, read.Users.Count)
	assert.Equal(t, "abc", read.Tracing.Headers["x-team"])
	assert.Empty(t, read.Tracing.APIKey)

	read.CopyStarredFieldsFrom(opts)
	assert.Equal(t, "secret", read.Tracing.APIKey)
}

func TestNewHTTPClient(t *testing.T) {
	opts := parseArgs(t, "--timeout=3s")
	sender := NewSenderPrint(testLogger(t), opts)

	hc := newHTTPClient(sender, opts)
	assert.Equal(t, 3*time.Second, hc.Timeout)
	assert.IsType(t, &printTransport{}, hc.Transport)

	opts.Tracing.NoAutoTrace = true
	hc = newHTTPClient(sender, opts)
	_, wrapped := hc.Transport.(*printTransport)
	assert.False(t, wrapped)
}

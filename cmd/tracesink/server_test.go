package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonv1 "go.opentelemetry.io/proto/otlp/common/v1"
	resourcev1 "go.opentelemetry.io/proto/otlp/resource/v1"
	tracev1 "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
)

func span(traceID byte, spanID byte, name string, failed bool) *tracev1.Span {
	s := &tracev1.Span{
		TraceId: bytes.Repeat([]byte{traceID}, 16),
		SpanId:  bytes.Repeat([]byte{spanID}, 8),
		Name:    name,
	}
	if failed {
		s.Status = &tracev1.Status{Code: tracev1.Status_STATUS_CODE_ERROR}
	}
	return s
}

func exportRequest(service string, spans ...*tracev1.Span) *collectortrace.ExportTraceServiceRequest {
	return &collectortrace.ExportTraceServiceRequest{
		ResourceSpans: []*tracev1.ResourceSpans{{
			Resource: &resourcev1.Resource{
				Attributes: []*commonv1.KeyValue{{
					Key:   "service.name",
					Value: &commonv1.AnyValue{Value: &commonv1.AnyValue_StringValue{StringValue: service}},
				}},
			},
			ScopeSpans: []*tracev1.ScopeSpans{{Spans: spans}},
		}},
	}
}

func TestProcessTraceRequest(t *testing.T) {
	ts := NewTraceServer(nil)

	n := ts.ProcessTraceRequest(exportRequest("locust-load-test",
		span(1, 1, "POST /api/log", false),
		span(1, 2, "HTTP POST", false),
		span(2, 3, "GET /api/search?textQuery=locust", true),
	))
	assert.Equal(t, 3, n)
	ts.ProcessTraceRequest(exportRequest("other", span(2, 4, "HTTP GET", true)))

	c := ts.Counts()
	assert.Equal(t, 2, c.Traces)
	assert.Equal(t, 4, c.Spans)
	assert.Equal(t, 2, c.Errors)
	assert.Equal(t, 1, c.ByName["POST /api/log"])
	assert.Equal(t, 3, c.ByService["locust-load-test"])
	assert.Equal(t, 1, c.ByService["other"])
}

func TestServiceNameFallback(t *testing.T) {
	rs := &tracev1.ResourceSpans{}
	assert.Equal(t, "unknown_service", serviceName(rs))
}

func TestServeHTTP(t *testing.T) {
	req := exportRequest("locust-load-test", span(1, 1, "GET /api/stats/locust-test", false))

	t.Run("gzipped protobuf", func(t *testing.T) {
		ts := NewTraceServer(nil)
		data, err := proto.Marshal(req)
		require.NoError(t, err)
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, err = gz.Write(data)
		require.NoError(t, err)
		require.NoError(t, gz.Close())

		r := httptest.NewRequest(http.MethodPost, "/v1/traces", &buf)
		r.Header.Set("Content-Type", "application/x-protobuf")
		r.Header.Set("Content-Encoding", "gzip")
		w := httptest.NewRecorder()
		ts.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, ts.Counts().Spans)
	})

	t.Run("json", func(t *testing.T) {
		ts := NewTraceServer(nil)
		data, err := protojson.Marshal(req)
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodPost, "/v1/traces", bytes.NewReader(data))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		ts.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, ts.Counts().ByName["GET /api/stats/locust-test"])
	})

	t.Run("bad body", func(t *testing.T) {
		ts := NewTraceServer(nil)
		r := httptest.NewRequest(http.MethodPost, "/v1/traces", bytes.NewReader([]byte("not protobuf at all")))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		ts.ServeHTTP(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		ts := NewTraceServer(nil)
		w := httptest.NewRecorder()
		ts.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/traces", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestExport(t *testing.T) {
	ts := NewTraceServer(nil)
	resp, err := ts.Export(context.Background(), exportRequest("svc", span(9, 9, "x", false)))
	require.NoError(t, err)
	assert.NotNil(t, resp)
	assert.Equal(t, 1, ts.Counts().Traces)
}

func TestSpanRateTracker(t *testing.T) {
	now := time.Unix(5000, 0)
	clock := func() time.Time { return now }
	rt := newSpanRateTracker(0, clock)

	for i := 0; i < 30; i++ {
		now = now.Add(time.Second)
		rt.TrackSpans(10)
	}
	assert.Equal(t, 300, rt.Total())
	assert.InDelta(t, 10.0, rt.GetCurrentRate(1), 0.001)
	assert.InDelta(t, 10.0, rt.GetCurrentRate(10), 0.001)
	// only 30 seconds elapsed, so the 60s window averages over 30
	assert.InDelta(t, 10.0, rt.GetCurrentRate(60), 0.001)
}

func TestStatsHandler(t *testing.T) {
	now := time.Unix(100, 0)
	ts := NewTraceServer(newSpanRateTracker(0, func() time.Time { return now }))
	now = now.Add(2 * time.Second)
	ts.ProcessTraceRequest(exportRequest("svc", span(1, 1, "a", false), span(1, 2, "b", true)))

	w := httptest.NewRecorder()
	ts.StatsHandler(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1.0, body["traces"])
	assert.Equal(t, 2.0, body["spans"])
	assert.Equal(t, 1.0, body["errors"])
	rate := body["rate"].(map[string]interface{})
	assert.Equal(t, 2.0, rate["total_spans"])
	assert.InDelta(t, 1.0, rate["average_rate"], 0.001)
}

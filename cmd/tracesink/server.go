package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sort"
	"sync"

	"github.com/golang/protobuf/proto"
	cuckoo "github.com/panmari/cuckoofilter"
	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracev1 "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
)

// TraceServer counts what apiload exports: distinct traces, spans by name
// and service, and spans with an error status.
type TraceServer struct {
	mu         sync.Mutex
	traces     *cuckoo.Filter
	traceCount int
	spanCount  int
	errorCount int
	byName     map[string]int
	byService  map[string]int
	rate       *SpanRateTracker
	collectortrace.UnimplementedTraceServiceServer
}

func NewTraceServer(rate *SpanRateTracker) *TraceServer {
	return &TraceServer{
		traces:    cuckoo.NewFilter(1000000),
		byName:    make(map[string]int),
		byService: make(map[string]int),
		rate:      rate,
	}
}

func serviceName(rs *tracev1.ResourceSpans) string {
	for _, attr := range rs.GetResource().GetAttributes() {
		if attr.GetKey() == "service.name" {
			return attr.GetValue().GetStringValue()
		}
	}
	return "unknown_service"
}

// ProcessTraceRequest records every span in req and returns how many there
// were.
func (t *TraceServer) ProcessTraceRequest(req *collectortrace.ExportTraceServiceRequest) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, resource := range req.GetResourceSpans() {
		service := serviceName(resource)
		for _, scope := range resource.GetScopeSpans() {
			for _, span := range scope.GetSpans() {
				n++
				traceID := span.GetTraceId()
				if !t.traces.Lookup(traceID) {
					t.traces.Insert(traceID)
					t.traceCount++
				}
				t.spanCount++
				t.byName[span.GetName()]++
				t.byService[service]++
				if span.GetStatus().GetCode() == tracev1.Status_STATUS_CODE_ERROR {
					t.errorCount++
				}
			}
		}
	}
	if t.rate != nil {
		t.rate.TrackSpans(n)
	}
	return n
}

// Export implements the OTLP gRPC trace service.
func (t *TraceServer) Export(ctx context.Context, req *collectortrace.ExportTraceServiceRequest) (*collectortrace.ExportTraceServiceResponse, error) {
	t.ProcessTraceRequest(req)
	return &collectortrace.ExportTraceServiceResponse{}, nil
}

// Counts is a snapshot of what the server has seen.
type Counts struct {
	Traces    int
	Spans     int
	Errors    int
	ByName    map[string]int
	ByService map[string]int
}

func (t *TraceServer) Counts() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := Counts{
		Traces:    t.traceCount,
		Spans:     t.spanCount,
		Errors:    t.errorCount,
		ByName:    make(map[string]int, len(t.byName)),
		ByService: make(map[string]int, len(t.byService)),
	}
	for k, v := range t.byName {
		c.ByName[k] = v
	}
	for k, v := range t.byService {
		c.ByService[k] = v
	}
	return c
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ServeHTTP handles OTLP/HTTP posts to /v1/traces, in protobuf or JSON,
// optionally gzipped.
func (t *TraceServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	var reader io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, "Failed to decompress gzip data: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer gz.Close()
		reader = gz
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}

	var traceReq collectortrace.ExportTraceServiceRequest
	switch r.Header.Get("Content-Type") {
	case "application/json":
		if err := protojson.Unmarshal(body, &traceReq); err != nil {
			http.Error(w, "Invalid JSON data", http.StatusBadRequest)
			return
		}
	default:
		// protobuf is the default when the content type is missing
		if err := proto.Unmarshal(body, &traceReq); err != nil {
			http.Error(w, "Invalid protobuf data", http.StatusBadRequest)
			return
		}
	}

	n := t.ProcessTraceRequest(&traceReq)
	log.Printf("received %d spans on /v1/traces", n)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("{}"))
}

// StatsHandler serves the counts and, when tracked, the span rates as JSON.
func (t *TraceServer) StatsHandler(w http.ResponseWriter, r *http.Request) {
	c := t.Counts()
	body := map[string]interface{}{
		"traces":     c.Traces,
		"spans":      c.Spans,
		"errors":     c.Errors,
		"by_name":    c.ByName,
		"by_service": c.ByService,
	}
	if t.rate != nil {
		body["rate"] = t.rate.GetRateSummary()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("error writing stats: %v", err)
	}
}

package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// Percentiles reported in the summary table.
var Percentiles = []float64{0.50, 0.66, 0.75, 0.80, 0.90, 0.95, 0.98, 0.99, 0.999, 1.0}

// percentLabel formats 0.999 as "99.9".
func percentLabel(p float64) string {
	return strconv.FormatFloat(math.Round(p*1000)/10, 'f', -1, 64)
}

type entryKey struct {
	Method string
	Name   string
}

// StatsEntry accumulates the results of one request name.
type StatsEntry struct {
	Method             string
	Name               string
	NumRequests        int64
	NumFailures        int64
	TotalResponseTime  time.Duration
	MinResponseTime    time.Duration
	MaxResponseTime    time.Duration
	TotalContentLength int64

	responseTimes map[int64]int64 // rounded ms -> count
	perSecond     map[int64]int64 // unix second -> count
}

func newStatsEntry(method, name string) *StatsEntry {
	return &StatsEntry{
		Method:        method,
		Name:          name,
		responseTimes: make(map[int64]int64),
		perSecond:     make(map[int64]int64),
	}
}

// roundResponseTime buckets milliseconds so the histogram stays small:
// exact below 100ms, then to 2 significant digits.
func roundResponseTime(ms int64) int64 {
	switch {
	case ms < 100:
		return ms
	case ms < 1000:
		return int64(math.Round(float64(ms)/10) * 10)
	case ms < 10000:
		return int64(math.Round(float64(ms)/100) * 100)
	default:
		return int64(math.Round(float64(ms)/1000) * 1000)
	}
}

func (e *StatsEntry) log(now time.Time, rt time.Duration, size int64, failed bool) {
	if e.NumRequests == 0 || rt < e.MinResponseTime {
		e.MinResponseTime = rt
	}
	if rt > e.MaxResponseTime {
		e.MaxResponseTime = rt
	}
	e.NumRequests++
	if failed {
		e.NumFailures++
	}
	e.TotalResponseTime += rt
	e.TotalContentLength += size
	e.responseTimes[roundResponseTime(rt.Milliseconds())]++
	e.perSecond[now.Unix()]++
}

func (e *StatsEntry) Average() time.Duration {
	if e.NumRequests == 0 {
		return 0
	}
	return e.TotalResponseTime / time.Duration(e.NumRequests)
}

func (e *StatsEntry) AverageContentLength() int64 {
	if e.NumRequests == 0 {
		return 0
	}
	return e.TotalContentLength / e.NumRequests
}

// Percentile returns the rounded response time, in ms, that p of the
// requests were at or below.
func (e *StatsEntry) Percentile(p float64) int64 {
	if e.NumRequests == 0 {
		return 0
	}
	keys := make([]int64, 0, len(e.responseTimes))
	for k := range e.responseTimes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	target := int64(math.Ceil(p * float64(e.NumRequests)))
	if target < 1 {
		target = 1
	}
	var seen int64
	for _, k := range keys {
		seen += e.responseTimes[k]
		if seen >= target {
			return k
		}
	}
	return keys[len(keys)-1]
}

func (e *StatsEntry) Median() int64 {
	return e.Percentile(0.5)
}

// CurrentRPS returns the average requests per second over the last n
// seconds, or over the elapsed time if that is shorter.
func (e *StatsEntry) CurrentRPS(now, start time.Time, seconds int) float64 {
	cutoff := now.Add(-time.Duration(seconds) * time.Second).Unix()

	var total int64
	for ts, count := range e.perSecond {
		if ts > cutoff {
			total += count
		}
	}

	actualSeconds := int64(seconds)
	elapsedSeconds := now.Unix() - start.Unix()
	if elapsedSeconds < int64(seconds) {
		actualSeconds = elapsedSeconds
		if actualSeconds == 0 {
			actualSeconds = 1
		}
	}
	return float64(total) / float64(actualSeconds)
}

// TotalRPS is the average rate over the whole run.
func (e *StatsEntry) TotalRPS(now, start time.Time) float64 {
	elapsed := now.Sub(start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(e.NumRequests) / elapsed
}

// StatsError counts one distinct failure.
type StatsError struct {
	Method      string
	Name        string
	Error       string
	Occurrences int64
}

// Stats is the run-wide statistics collector. It is shared by all users.
type Stats struct {
	mu      sync.RWMutex
	entries map[entryKey]*StatsEntry
	order   []entryKey
	total   *StatsEntry
	errors  map[string]*StatsError
	start   time.Time
	now     func() time.Time
}

func NewStats() *Stats {
	return newStatsWithClock(time.Now)
}

func newStatsWithClock(now func() time.Time) *Stats {
	return &Stats{
		entries: make(map[entryKey]*StatsEntry),
		total:   newStatsEntry("", "Aggregated"),
		errors:  make(map[string]*StatsError),
		start:   now(),
		now:     now,
	}
}

func (s *Stats) entry(method, name string) *StatsEntry {
	key := entryKey{method, name}
	e, ok := s.entries[key]
	if !ok {
		e = newStatsEntry(method, name)
		s.entries[key] = e
		s.order = append(s.order, key)
	}
	return e
}

// Success records a request that got a response below 400.
func (s *Stats) Success(method, name string, rt time.Duration, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.entry(method, name).log(now, rt, size, false)
	s.total.log(now, rt, size, false)
}

// Failure records a request that failed, either with an error status or
// without any response at all.
func (s *Stats) Failure(method, name string, rt time.Duration, size int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.entry(method, name).log(now, rt, size, true)
	s.total.log(now, rt, size, true)

	key := method + " " + name + ": " + err.Error()
	serr, ok := s.errors[key]
	if !ok {
		serr = &StatsError{Method: method, Name: name, Error: err.Error()}
		s.errors[key] = serr
	}
	serr.Occurrences++
}

// Entry returns a copy of the entry for method and name.
func (s *Stats) Entry(method, name string) (StatsEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[entryKey{method, name}]
	if !ok {
		return StatsEntry{}, false
	}
	return *e, true
}

func (s *Stats) Total() StatsEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.total
}

func (s *Stats) Errors() []StatsError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	errs := make([]StatsError, 0, len(s.errors))
	for _, e := range s.errors {
		errs = append(errs, *e)
	}
	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Occurrences != errs[j].Occurrences {
			return errs[i].Occurrences > errs[j].Occurrences
		}
		if errs[i].Name != errs[j].Name {
			return errs[i].Name < errs[j].Name
		}
		return errs[i].Error < errs[j].Error
	})
	return errs
}

func fms(d time.Duration) int64 {
	return d.Milliseconds()
}

// WriteReport writes the current request table.
func (s *Stats) WriteReport(w io.Writer) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Type\tName\t# reqs\t# fails\tAvg\tMin\tMax\tMed\treq/s\tfailures/s")
	row := func(e *StatsEntry) {
		rps := e.CurrentRPS(now, s.start, 10)
		var fps float64
		if e.NumRequests > 0 {
			fps = rps * float64(e.NumFailures) / float64(e.NumRequests)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d(%.2f%%)\t%d\t%d\t%d\t%d\t%.2f\t%.2f\n",
			e.Method, e.Name, e.NumRequests, e.NumFailures, failPercent(e),
			fms(e.Average()), fms(e.MinResponseTime), fms(e.MaxResponseTime), e.Median(), rps, fps)
	}
	for _, k := range s.order {
		row(s.entries[k])
	}
	row(s.total)
	tw.Flush()
}

func failPercent(e *StatsEntry) float64 {
	if e.NumRequests == 0 {
		return 0
	}
	return 100 * float64(e.NumFailures) / float64(e.NumRequests)
}

// WriteSummary writes the end-of-run tables: requests, percentiles and
// failures.
func (s *Stats) WriteSummary(w io.Writer) {
	s.WriteReport(w)

	s.mu.RLock()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw)
	fmt.Fprint(tw, "Type\tName")
	for _, p := range Percentiles {
		fmt.Fprintf(tw, "\t%s%%", percentLabel(p))
	}
	fmt.Fprintln(tw, "\t# reqs")
	row := func(e *StatsEntry) {
		fmt.Fprintf(tw, "%s\t%s", e.Method, e.Name)
		for _, p := range Percentiles {
			fmt.Fprintf(tw, "\t%d", e.Percentile(p))
		}
		fmt.Fprintf(tw, "\t%d\n", e.NumRequests)
	}
	for _, k := range s.order {
		row(s.entries[k])
	}
	row(s.total)
	tw.Flush()
	s.mu.RUnlock()

	errs := s.Errors()
	if len(errs) == 0 {
		return
	}
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "# occurrences\tError")
	for _, e := range errs {
		fmt.Fprintf(tw, "%d\t%s %s: %s\n", e.Occurrences, e.Method, e.Name, e.Error)
	}
	tw.Flush()
}

// EntrySummary is the serialized form of a StatsEntry.
type EntrySummary struct {
	Method         string           `yaml:"method,omitempty"`
	Name           string           `yaml:"name"`
	Requests       int64            `yaml:"requests"`
	Failures       int64            `yaml:"failures"`
	AverageMs      int64            `yaml:"average_ms"`
	MinMs          int64            `yaml:"min_ms"`
	MaxMs          int64            `yaml:"max_ms"`
	Percentiles    map[string]int64 `yaml:"percentiles_ms"`
	AverageSize    int64            `yaml:"average_size"`
	RequestsPerSec float64          `yaml:"requests_per_second"`
}

type Summary struct {
	Start    time.Time      `yaml:"start"`
	Duration time.Duration  `yaml:"duration"`
	Entries  []EntrySummary `yaml:"entries"`
	Total    EntrySummary   `yaml:"total"`
	Errors   []StatsError   `yaml:"errors,omitempty"`
}

func (s *Stats) summarize(e *StatsEntry, now time.Time) EntrySummary {
	pcts := make(map[string]int64, len(Percentiles))
	for _, p := range Percentiles {
		pcts["p"+percentLabel(p)] = e.Percentile(p)
	}
	return EntrySummary{
		Method:         e.Method,
		Name:           e.Name,
		Requests:       e.NumRequests,
		Failures:       e.NumFailures,
		AverageMs:      fms(e.Average()),
		MinMs:          fms(e.MinResponseTime),
		MaxMs:          fms(e.MaxResponseTime),
		Percentiles:    pcts,
		AverageSize:    e.AverageContentLength(),
		RequestsPerSec: e.TotalRPS(now, s.start),
	}
}

func (s *Stats) Summary() Summary {
	errs := s.Errors()
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	sum := Summary{
		Start:    s.start,
		Duration: now.Sub(s.start),
		Total:    s.summarize(s.total, now),
		Errors:   errs,
	}
	for _, k := range s.order {
		sum.Entries = append(sum.Entries, s.summarize(s.entries[k], now))
	}
	return sum
}

// WriteSummaryFile writes the YAML summary to filename.
func (s *Stats) WriteSummaryFile(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := yaml.NewEncoder(f)
	if err := enc.Encode(s.Summary()); err != nil {
		return err
	}
	return enc.Close()
}

// Report writes the request table every interval until stop is closed.
func (s *Stats) Report(w io.Writer, interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.WriteReport(w)
		}
	}
}

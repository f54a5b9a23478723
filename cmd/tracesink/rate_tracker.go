package main

import (
	"log"
	"sync"
	"time"
)

// SpanRateTracker tracks spans received per second
type SpanRateTracker struct {
	mu             sync.Mutex
	spanCounts     map[int64]int // unix second -> spans
	startTime      time.Time
	totalSpans     int
	lastReportTime time.Time
	reportInterval time.Duration
	now            func() time.Time
}

// NewSpanRateTracker creates a rate tracker that logs at most once per
// interval; an interval of 0 disables reporting.
func NewSpanRateTracker(interval time.Duration) *SpanRateTracker {
	return newSpanRateTracker(interval, time.Now)
}

func newSpanRateTracker(interval time.Duration, now func() time.Time) *SpanRateTracker {
	start := now()
	return &SpanRateTracker{
		spanCounts:     make(map[int64]int),
		startTime:      start,
		lastReportTime: start,
		reportInterval: interval,
		now:            now,
	}
}

// TrackSpans adds count to the current second
func (t *SpanRateTracker) TrackSpans(count int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.spanCounts[now.Unix()] += count
	t.totalSpans += count

	// drop anything older than the widest window we report
	cutoff := now.Add(-61 * time.Second).Unix()
	for ts := range t.spanCounts {
		if ts < cutoff {
			delete(t.spanCounts, ts)
		}
	}

	if t.reportInterval > 0 && now.Sub(t.lastReportTime) >= t.reportInterval {
		log.Printf("Spans per second: %.2f (1s) | %.2f (10s) | %.2f (60s) | Total: %d",
			t.rate(now, 1), t.rate(now, 10), t.rate(now, 60), t.totalSpans)
		t.lastReportTime = now
	}
}

// GetCurrentRate returns the average spans/second over the last n seconds
func (t *SpanRateTracker) GetCurrentRate(seconds int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rate(t.now(), seconds)
}

func (t *SpanRateTracker) rate(now time.Time, seconds int) float64 {
	cutoff := now.Add(-time.Duration(seconds) * time.Second).Unix()

	var total int
	for ts, count := range t.spanCounts {
		if ts > cutoff {
			total += count
		}
	}

	// If we have less than n seconds of data, use what we have
	actualSeconds := int64(seconds)
	elapsedSeconds := now.Unix() - t.startTime.Unix()
	if elapsedSeconds < int64(seconds) {
		actualSeconds = elapsedSeconds
		if actualSeconds == 0 {
			actualSeconds = 1 // Avoid division by zero
		}
	}

	return float64(total) / float64(actualSeconds)
}

func (t *SpanRateTracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalSpans
}

// GetRateSummary returns the rates and totals served on /stats.
func (t *SpanRateTracker) GetRateSummary() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	runningTime := now.Sub(t.startTime).Seconds()
	var average float64
	if runningTime > 0 {
		average = float64(t.totalSpans) / runningTime
	}
	return map[string]interface{}{
		"spans_per_second_1s":  t.rate(now, 1),
		"spans_per_second_10s": t.rate(now, 10),
		"spans_per_second_60s": t.rate(now, 60),
		"total_spans":          t.totalSpans,
		"running_time_seconds": runningTime,
		"average_rate":         average,
	}
}

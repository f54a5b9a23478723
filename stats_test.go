package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type fakeClock struct {
	mut sync.Mutex
	t   time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mut.Lock()
	defer c.mut.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.t = c.t.Add(d)
}

func TestRoundResponseTime(t *testing.T) {
	tests := []struct {
		in, want int64
	}{
		{0, 0},
		{99, 99},
		{147, 150},
		{144, 140},
		{3432, 3400},
		{58760, 59000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, roundResponseTime(tt.in), "round(%d)", tt.in)
	}
}

func TestPercentLabel(t *testing.T) {
	assert.Equal(t, "50", percentLabel(0.5))
	assert.Equal(t, "66", percentLabel(0.66))
	assert.Equal(t, "99.9", percentLabel(0.999))
	assert.Equal(t, "100", percentLabel(1.0))
}

func TestStatsEntryPercentiles(t *testing.T) {
	s := NewStats()
	for i := 1; i <= 100; i++ {
		s.Success("GET", "/x", time.Duration(i)*time.Millisecond, 10)
	}
	e, ok := s.Entry("GET", "/x")
	require.True(t, ok)

	assert.Equal(t, int64(100), e.NumRequests)
	assert.Equal(t, int64(50), e.Median())
	assert.Equal(t, int64(90), e.Percentile(0.9))
	assert.Equal(t, int64(100), e.Percentile(1.0))
	assert.Equal(t, int64(1), e.Percentile(0))
	assert.Equal(t, time.Millisecond, e.MinResponseTime)
	assert.Equal(t, 100*time.Millisecond, e.MaxResponseTime)
	assert.Equal(t, int64(10), e.AverageContentLength())
	assert.Equal(t, 50500*time.Microsecond, e.Average())
}

func TestStatsFailures(t *testing.T) {
	s := NewStats()
	boom := errors.New("connection refused")
	s.Success("GET", "/a", time.Millisecond, 0)
	s.Failure("GET", "/a", time.Millisecond, 0, boom)
	s.Failure("GET", "/a", time.Millisecond, 0, boom)
	s.Failure("POST", "/b", time.Millisecond, 0, &StatusError{StatusCode: 503})

	total := s.Total()
	assert.Equal(t, int64(4), total.NumRequests)
	assert.Equal(t, int64(3), total.NumFailures)

	errs := s.Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, "connection refused", errs[0].Error)
	assert.Equal(t, int64(2), errs[0].Occurrences)
	assert.Equal(t, "HTTP 503 Service Unavailable", errs[1].Error)
}

func TestStatsCurrentRPS(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := newStatsWithClock(clock.Now)

	for sec := 0; sec < 20; sec++ {
		clock.Advance(time.Second)
		for i := 0; i < 5; i++ {
			s.Success("GET", "/a", time.Millisecond, 0)
		}
	}
	e, _ := s.Entry("GET", "/a")
	now := clock.Now()
	assert.InDelta(t, 5.0, e.CurrentRPS(now, s.start, 10), 0.001)
	assert.InDelta(t, 5.0, e.TotalRPS(now, s.start), 0.001)

	t.Run("short runs use the elapsed time", func(t *testing.T) {
		clock := &fakeClock{t: time.Unix(1000, 0)}
		s := newStatsWithClock(clock.Now)
		clock.Advance(2 * time.Second)
		for i := 0; i < 8; i++ {
			s.Success("GET", "/a", time.Millisecond, 0)
		}
		e, _ := s.Entry("GET", "/a")
		assert.InDelta(t, 4.0, e.CurrentRPS(clock.Now(), s.start, 10), 0.001)
	})
}

func TestStatsWriteSummary(t *testing.T) {
	s := NewStats()
	s.Success("POST", LogEndpoint, 20*time.Millisecond, 15)
	s.Failure("GET", SearchEndpoint, 5*time.Millisecond, 0, &StatusError{StatusCode: 500})

	var buf bytes.Buffer
	s.WriteSummary(&buf)
	out := buf.String()
	assert.Contains(t, out, LogEndpoint)
	assert.Contains(t, out, SearchEndpoint)
	assert.Contains(t, out, "Aggregated")
	assert.Contains(t, out, "HTTP 500 Internal Server Error")
	assert.Contains(t, out, "99.9%")
}

func TestStatsWriteSummaryFile(t *testing.T) {
	s := NewStats()
	for i := 0; i < 10; i++ {
		s.Success("GET", StatsEndpoint, time.Duration(i+1)*time.Millisecond, 30)
	}
	filename := filepath.Join(t.TempDir(), "stats.yml")
	require.NoError(t, s.WriteSummaryFile(filename))

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	var sum Summary
	require.NoError(t, yaml.Unmarshal(data, &sum))
	require.Len(t, sum.Entries, 1)
	assert.Equal(t, StatsEndpoint, sum.Entries[0].Name)
	assert.Equal(t, int64(10), sum.Entries[0].Requests)
	assert.Equal(t, int64(5), sum.Entries[0].Percentiles["p50"])
	assert.Equal(t, int64(10), sum.Total.Requests)
}

func TestStatsConcurrentUse(t *testing.T) {
	s := NewStats()
	wg := sync.WaitGroup{}
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				s.Success("GET", "/a", time.Millisecond, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(4000), s.Total().NumRequests)
}

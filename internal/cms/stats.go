package cms

import (
	"slices"
	"sync"
	"time"
)

type sample struct {
	at     time.Time
	millis int64
	failed bool
}

// StatsSnapshot aggregates the CMS requests currently in the window.
type StatsSnapshot struct {
	Requests int     `json:"requests"`
	Failures int     `json:"failures"`
	MinMs    int64   `json:"min_ms"`
	MaxMs    int64   `json:"max_ms"`
	AvgMs    float64 `json:"avg_ms"`
	P50Ms    float64 `json:"p50_ms"`
	P95Ms    float64 `json:"p95_ms"`
	P99Ms    float64 `json:"p99_ms"`
}

// Stats keeps CMS request latencies for a rolling window.
type Stats struct {
	mu      sync.Mutex
	samples []sample
	window  time.Duration
}

func NewStats(window time.Duration) *Stats {
	if window <= 0 {
		window = time.Hour
	}
	return &Stats{
		samples: make([]sample, 0, 128),
		window:  window,
	}
}

// Record adds one request. Negative durations are stored as zero.
func (s *Stats) Record(millis int64, failed bool) {
	if s == nil {
		return
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked(now)
	s.samples = append(s.samples, sample{at: now, millis: max(millis, 0), failed: failed})
}

func (s *Stats) Snapshot() StatsSnapshot {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked(now)
	if len(s.samples) == 0 {
		return StatsSnapshot{}
	}

	latencies := make([]int64, len(s.samples))
	var total int64
	failures := 0
	for i, sm := range s.samples {
		latencies[i] = sm.millis
		total += sm.millis
		if sm.failed {
			failures++
		}
	}
	slices.Sort(latencies)

	return StatsSnapshot{
		Requests: len(latencies),
		Failures: failures,
		MinMs:    latencies[0],
		MaxMs:    latencies[len(latencies)-1],
		AvgMs:    float64(total) / float64(len(latencies)),
		P50Ms:    percentile(latencies, 50),
		P95Ms:    percentile(latencies, 95),
		P99Ms:    percentile(latencies, 99),
	}
}

// expireLocked drops samples older than the window. Samples are appended in
// time order, so the expired ones form a prefix.
func (s *Stats) expireLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	i := 0
	for i < len(s.samples) && s.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.samples = append(s.samples[:0], s.samples[i:]...)
	}
}

// percentile interpolates linearly between the two closest ranks.
func percentile(sorted []int64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[len(sorted)-1])
	}

	rank := float64(len(sorted)-1) * pct / 100
	lo := int(rank)
	if lo+1 >= len(sorted) {
		return float64(sorted[lo])
	}
	frac := rank - float64(lo)
	return float64(sorted[lo]) + frac*float64(sorted[lo+1]-sorted[lo])
}

// Package health keeps rolling delivery statistics per (provider, country).
// The numbers feed monitoring and the status endpoint; routing decisions stay
// with the registry's static preference table.
package health

import (
	"sync"
	"time"
)

const (
	// maxConsecutiveFailures trips the unhealthy flag.
	maxConsecutiveFailures = 5
	// minSuccessRate is the floor below which a provider is unhealthy.
	minSuccessRate = 0.8
)

// Key identifies one tracked series.
type Key struct {
	Provider string
	Country  string
}

// Snapshot is an immutable copy of one series, safe to hand out.
type Snapshot struct {
	Provider              string    `json:"provider"`
	Country               string    `json:"country"`
	TotalAttempts         int64     `json:"total_attempts"`
	SuccessfulAttempts    int64     `json:"successful_attempts"`
	FailedAttempts        int64     `json:"failed_attempts"`
	ConsecutiveFailures   int64     `json:"consecutive_failures"`
	SuccessRate           float64   `json:"success_rate"`
	AverageResponseTimeMs float64   `json:"average_response_time_ms"`
	AverageCost           float64   `json:"average_cost"`
	IsHealthy             bool      `json:"is_healthy"`
	LastSuccessAt         time.Time `json:"last_success_at,omitempty"`
	LastFailureAt         time.Time `json:"last_failure_at,omitempty"`
}

type series struct {
	mu                  sync.Mutex
	totalAttempts       int64
	successfulAttempts  int64
	failedAttempts      int64
	consecutiveFailures int64
	avgResponseTimeMs   float64
	avgCost             float64
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
}

// Tracker holds all series. Map access is guarded by an RWMutex; each series
// carries its own mutex so concurrent updates to different keys never block
// each other while updates to the same key are serialized.
type Tracker struct {
	mu     sync.RWMutex
	series map[Key]*series
	now    func() time.Time // overridable in tests
}

func NewTracker() *Tracker {
	return &Tracker{
		series: make(map[Key]*series),
		now:    time.Now,
	}
}

func (t *Tracker) get(key Key) *series {
	t.mu.RLock()
	s, ok := t.series[key]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.series[key]; ok {
		return s
	}
	s = &series{}
	t.series[key] = s
	return s
}

// Record applies one attempt outcome and returns the updated snapshot.
//
// The rolling averages use the midpoint rule new = (old+new)/2 when old is
// nonzero. That is a deliberate cheapness trade-off carried over from the
// historical metrics, not a true windowed average.
func (t *Tracker) Record(provider, country string, success bool, responseTime time.Duration, cost float64) Snapshot {
	key := Key{Provider: provider, Country: country}
	s := t.get(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalAttempts++
	if success {
		s.successfulAttempts++
		s.consecutiveFailures = 0
		s.lastSuccessAt = t.now()
	} else {
		s.failedAttempts++
		s.consecutiveFailures++
		s.lastFailureAt = t.now()
	}

	s.avgResponseTimeMs = midpoint(s.avgResponseTimeMs, float64(responseTime.Milliseconds()))
	if cost > 0 {
		s.avgCost = midpoint(s.avgCost, cost)
	}

	return s.snapshot(key)
}

func midpoint(old, sample float64) float64 {
	if old == 0 {
		return sample
	}
	return (old + sample) / 2
}

// snapshot must be called with s.mu held.
func (s *series) snapshot(key Key) Snapshot {
	rate := 1.0 // optimistic default before any attempt, for display only
	if s.totalAttempts > 0 {
		rate = float64(s.successfulAttempts) / float64(s.totalAttempts)
	}

	healthy := true
	if s.totalAttempts > 0 {
		healthy = s.consecutiveFailures < maxConsecutiveFailures && rate >= minSuccessRate
	}

	return Snapshot{
		Provider:              key.Provider,
		Country:               key.Country,
		TotalAttempts:         s.totalAttempts,
		SuccessfulAttempts:    s.successfulAttempts,
		FailedAttempts:        s.failedAttempts,
		ConsecutiveFailures:   s.consecutiveFailures,
		SuccessRate:           rate,
		AverageResponseTimeMs: s.avgResponseTimeMs,
		AverageCost:           s.avgCost,
		IsHealthy:             healthy,
		LastSuccessAt:         s.lastSuccessAt,
		LastFailureAt:         s.lastFailureAt,
	}
}

// Snapshot returns the current state for one key, if any attempts were made.
func (t *Tracker) Snapshot(provider, country string) (Snapshot, bool) {
	key := Key{Provider: provider, Country: country}
	t.mu.RLock()
	s, ok := t.series[key]
	t.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(key), true
}

// ForCountry returns snapshots for every provider tracked in a country.
func (t *Tracker) ForCountry(country string) []Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Snapshot
	for key, s := range t.series {
		if key.Country != country {
			continue
		}
		s.mu.Lock()
		out = append(out, s.snapshot(key))
		s.mu.Unlock()
	}
	return out
}

// All returns every tracked snapshot.
func (t *Tracker) All() []Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Snapshot, 0, len(t.series))
	for key, s := range t.series {
		s.mu.Lock()
		out = append(out, s.snapshot(key))
		s.mu.Unlock()
	}
	return out
}

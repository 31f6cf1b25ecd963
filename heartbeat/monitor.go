package heartbeat

import (
	"sort"
	"sync"
	"time"
)

// Seen is the last heartbeat of one worker.
type Seen struct {
	WorkerID string
	LastSeen time.Time
}

// Summary counts workers by liveness.
type Summary struct {
	Alive    int      `json:"alive"`
	Stale    int      `json:"stale"`
	StaleIDs []string `json:"stale_ids,omitempty"`
}

// Monitor detects workers whose heartbeats stopped. Each stale worker is
// reported once; a fresh heartbeat re-arms it.
type Monitor struct {
	mu       sync.Mutex
	timeout  time.Duration
	reported map[string]bool
	staleCBs []func(workerID string)
}

// NewMonitor creates a monitor. A non-positive timeout uses DefaultTimeout.
func NewMonitor(timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Monitor{
		timeout:  timeout,
		reported: make(map[string]bool),
	}
}

// Timeout returns the stale threshold.
func (m *Monitor) Timeout() time.Duration {
	return m.timeout
}

// OnStale registers a callback for workers that just went stale.
func (m *Monitor) OnStale(callback func(workerID string)) {
	m.mu.Lock()
	m.staleCBs = append(m.staleCBs, callback)
	m.mu.Unlock()
}

// Check classifies workers at now, fires OnStale for newly stale ones, and
// returns the summary.
func (m *Monitor) Check(workers []Seen, now time.Time) Summary {
	var sum Summary
	var newlyStale []string

	m.mu.Lock()
	for _, w := range workers {
		if Classify(w.LastSeen, now, m.timeout) == Alive {
			sum.Alive++
			delete(m.reported, w.WorkerID)
			continue
		}
		sum.Stale++
		sum.StaleIDs = append(sum.StaleIDs, w.WorkerID)
		if !m.reported[w.WorkerID] {
			m.reported[w.WorkerID] = true
			newlyStale = append(newlyStale, w.WorkerID)
		}
	}
	callbacks := make([]func(string), len(m.staleCBs))
	copy(callbacks, m.staleCBs)
	m.mu.Unlock()

	sort.Strings(sum.StaleIDs)
	sort.Strings(newlyStale)
	for _, id := range newlyStale {
		for _, cb := range callbacks {
			cb(id)
		}
	}
	return sum
}

// Clear resets the monitor state.
func (m *Monitor) Clear() {
	m.mu.Lock()
	m.reported = make(map[string]bool)
	m.mu.Unlock()
}

package catalog

import (
	"sync"
)

const (
	// latencyAlpha is the EMA smoothing factor toward the newest observation.
	latencyAlpha = 0.1
	// recentErrorCeiling caps the error counter; at the ceiling the success
	// rate bottoms out at its 0.1 floor.
	recentErrorCeiling = 10
)

// Snapshot is a point-in-time copy of one (provider, model) reliability
// record.
type Snapshot struct {
	SuccessRate   float64
	AvgLatencyMs  float64
	TotalRequests int64
	RecentErrors  int
}

type reliabilityRecord struct {
	mu            sync.Mutex
	successRate   float64
	avgLatencyMs  float64
	totalRequests int64
	recentErrors  int
}

// Tracker keeps online per-(provider, model) reliability statistics. Records
// are created lazily; each record updates under its own lock so concurrent
// dispatches against different models never contend.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*reliabilityRecord
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{records: make(map[string]*reliabilityRecord)}
}

// Record folds one dispatch outcome into the (provider, model) record:
// the latency EMA moves 0.1 toward the observation, the recent-error
// counter steps by one in [0, 10], and the success rate is recomputed as
// max(0.1, 1 - recentErrors/10). Linearizable per key.
func (t *Tracker) Record(provider, model string, success bool, latencyMs float64) {
	r := t.getOrCreate(provider + "/" + model)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalRequests++
	r.avgLatencyMs = (1-latencyAlpha)*r.avgLatencyMs + latencyAlpha*latencyMs
	if success {
		if r.recentErrors > 0 {
			r.recentErrors--
		}
	} else {
		if r.recentErrors < recentErrorCeiling {
			r.recentErrors++
		}
	}
	r.successRate = 1 - float64(r.recentErrors)/float64(recentErrorCeiling)
	if r.successRate < 0.1 {
		r.successRate = 0.1
	}
}

// Get returns a snapshot of the (provider, model) record. ok is false when
// the pair has never been recorded.
func (t *Tracker) Get(provider, model string) (Snapshot, bool) {
	t.mu.RLock()
	r, ok := t.records[provider+"/"+model]
	t.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		SuccessRate:   r.successRate,
		AvgLatencyMs:  r.avgLatencyMs,
		TotalRequests: r.totalRequests,
		RecentErrors:  r.recentErrors,
	}, true
}

func (t *Tracker) getOrCreate(key string) *reliabilityRecord {
	t.mu.RLock()
	r, ok := t.records[key]
	t.mu.RUnlock()
	if ok {
		return r
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok = t.records[key]; ok {
		return r
	}
	r = &reliabilityRecord{successRate: 1.0}
	t.records[key] = r
	return r
}

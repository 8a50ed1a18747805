package actor

import (
	"sync"
	"time"

	"notegate/go-daemon/pkg/models"
)

// opStats accumulates latency figures for one verb.
type opStats struct {
	count   int
	errors  int
	totalNs int64
	maxNs   int64
	lastNs  int64
}

// StateMetrics keeps a cheap in-process view of worker activity for
// the introspection API, independent of the Prometheus collectors.
type StateMetrics struct {
	mu            sync.Mutex
	errorCounters map[string]int
	ops           map[string]*opStats
	lastUpdated   time.Time
}

func NewStateMetrics() *StateMetrics {
	return &StateMetrics{
		errorCounters: make(map[string]int),
		ops:           make(map[string]*opStats),
	}
}

// Record notes one completed command. category is empty on success.
func (s *StateMetrics) Record(verb string, elapsed time.Duration, category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.ops[verb]
	if !ok {
		st = &opStats{}
		s.ops[verb] = st
	}
	ns := elapsed.Nanoseconds()
	st.count++
	st.totalNs += ns
	st.lastNs = ns
	if ns > st.maxNs {
		st.maxNs = ns
	}
	if category != "" {
		st.errors++
		s.errorCounters[category]++
	}
	s.lastUpdated = time.Now().UTC()
}

// Snapshot renders the counters for the introspection API. queueDepth
// is sampled by the caller because the queue belongs to the actor.
func (s *StateMetrics) Snapshot(queueDepth int) models.MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := models.MetricsSnapshot{
		ErrorCounters: make(map[string]int, len(s.errorCounters)),
		Operations:    make(map[string]models.OperationMetric, len(s.ops)),
		QueueDepth:    queueDepth,
		LastUpdatedAt: s.lastUpdated,
	}
	for k, v := range s.errorCounters {
		snap.ErrorCounters[k] = v
	}
	for verb, st := range s.ops {
		metric := models.OperationMetric{
			Count:         st.count,
			Errors:        st.errors,
			MaxLatencyMs:  st.maxNs / int64(time.Millisecond),
			LastLatencyMs: st.lastNs / int64(time.Millisecond),
		}
		if st.count > 0 {
			metric.AvgLatencyMs = st.totalNs / int64(st.count) / int64(time.Millisecond)
		}
		snap.Operations[verb] = metric
	}
	return snap
}

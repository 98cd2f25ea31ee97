package receiver

import "sync/atomic"

type MetricsSnapshot struct {
	Sessions   int64 `json:"sessions"`
	Batches    int64 `json:"batches"`
	Spots      int64 `json:"spots"`
	Fragments  int64 `json:"fragments"`
	Duplicates int64 `json:"duplicates"`
	Attempts   int64 `json:"attempts"`
	Resolved   int64 `json:"resolved"`
	Abandoned  int64 `json:"abandoned"`
	TimedOut   int64 `json:"timed_out"`
}

type Metrics struct {
	sessions   atomic.Int64
	batches    atomic.Int64
	spots      atomic.Int64
	fragments  atomic.Int64
	duplicates atomic.Int64
	attempts   atomic.Int64
	resolved   atomic.Int64
	abandoned  atomic.Int64
	timedOut   atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordSession() {
	m.sessions.Add(1)
}

func (m *Metrics) RecordBatch(spots, fragments, duplicates int) {
	m.batches.Add(1)
	m.spots.Add(int64(spots))
	m.fragments.Add(int64(fragments))
	m.duplicates.Add(int64(duplicates))
}

func (m *Metrics) RecordAttempt() {
	m.attempts.Add(1)
}

func (m *Metrics) RecordResolved() {
	m.resolved.Add(1)
}

func (m *Metrics) RecordAbandoned(fragments int) {
	m.abandoned.Add(int64(fragments))
}

func (m *Metrics) RecordTimeout() {
	m.timedOut.Add(1)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Sessions:   m.sessions.Load(),
		Batches:    m.batches.Load(),
		Spots:      m.spots.Load(),
		Fragments:  m.fragments.Load(),
		Duplicates: m.duplicates.Load(),
		Attempts:   m.attempts.Load(),
		Resolved:   m.resolved.Load(),
		Abandoned:  m.abandoned.Load(),
		TimedOut:   m.timedOut.Load(),
	}
}

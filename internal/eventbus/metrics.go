package eventbus

import "sync/atomic"

// Metrics are plain dispatch counters. No Prometheus/OTel exporter is
// wired here — the HTTP surfaces that would expose a /metrics endpoint are
// out of scope (spec.md §1) — so a counters struct a caller can read and
// forward is the honest surface for this core (see DESIGN.md).
type Metrics struct {
	Published     atomic.Int64
	Dispatched    atomic.Int64
	HandlerErrors atomic.Int64
	Dropped       atomic.Int64
}

// Snapshot is a point-in-time copy of the counters, safe to log or export.
type Snapshot struct {
	Published     int64
	Dispatched    int64
	HandlerErrors int64
	Dropped       int64
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Published:     m.Published.Load(),
		Dispatched:    m.Dispatched.Load(),
		HandlerErrors: m.HandlerErrors.Load(),
		Dropped:       m.Dropped.Load(),
	}
}

package server

import "sync/atomic"

// Metrics counts hub activity for the /metrics endpoint.
type Metrics struct {
	Connections     atomic.Int64 // live authenticated sessions
	Anonymous       atomic.Int64 // live anonymous connections
	MovesAccepted   atomic.Int64
	MovesBlocked    atomic.Int64
	MovesThrottled  atomic.Int64
	FacingChanges   atomic.Int64
	Refused         atomic.Int64 // AlreadyConnected or 401
	MessagesDropped atomic.Int64 // send queue full
	PersistFailures atomic.Int64
}

// Snapshot returns a read-only copy for HTTP output.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"connections":      m.Connections.Load(),
		"anonymous":        m.Anonymous.Load(),
		"moves_accepted":   m.MovesAccepted.Load(),
		"moves_blocked":    m.MovesBlocked.Load(),
		"moves_throttled":  m.MovesThrottled.Load(),
		"facing_changes":   m.FacingChanges.Load(),
		"refused":          m.Refused.Load(),
		"messages_dropped": m.MessagesDropped.Load(),
		"persist_failures": m.PersistFailures.Load(),
	}
}

package hub

import (
	"time"

	"classhub/pkg/types"
)

// Stats is a point-in-time view of the hub for monitoring.
type Stats struct {
	TotalConnections            int               `json:"totalConnections"`
	ActiveSessions              int               `json:"activeSessions"`
	ConnectionsByType           map[string]int    `json:"connectionsByType"`
	AverageConnectionDuration   time.Duration     `json:"-"`
	AverageConnectionDurationMs int64             `json:"averageConnectionDurationMs"`
	MessagesRouted              map[string]uint64 `json:"messagesRouted"`
	ConnectionsReaped           uint64            `json:"connectionsReaped"`
	DeliveryFailures            uint64            `json:"deliveryFailures"`
}

// noSessionType is the ConnectionsByType key for connections that have not
// joined a typed session.
const noSessionType = "none"

// Stats collects connection counts, the per-session-type breakdown and the
// average age of open connections.
func (h *Hub) Stats() (Stats, error) {
	var stats Stats
	err := h.call(func() {
		stats = h.collectStats()
	})
	return stats, err
}

func (h *Hub) collectStats() Stats {
	now := h.now()
	stats := Stats{
		TotalConnections:  h.registry.Len(),
		ActiveSessions:    h.registry.SessionCount(),
		ConnectionsByType: make(map[string]int, len(types.SessionTypes)+1),
		MessagesRouted:    h.router.Routed(),
		ConnectionsReaped: h.reaped,
		DeliveryFailures:  h.engine.Failures(),
	}
	for _, st := range types.SessionTypes {
		stats.ConnectionsByType[string(st)] = 0
	}
	stats.ConnectionsByType[noSessionType] = 0

	var total time.Duration
	for conn := range h.registry.All() {
		key := string(conn.SessionType)
		if conn.SessionType == types.SessionTypeNone {
			key = noSessionType
		}
		stats.ConnectionsByType[key]++
		total += now.Sub(conn.ConnectedAt)
	}

	if stats.TotalConnections > 0 {
		stats.AverageConnectionDuration = total / time.Duration(stats.TotalConnections)
	}
	stats.AverageConnectionDurationMs = stats.AverageConnectionDuration.Milliseconds()
	return stats
}

package api

import (
	"net/http"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"classhub/internal/hub"
)

// GET /metrics renders Hub.Stats in the Prometheus text exposition format.
func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.hub.Stats()
	if err != nil {
		http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
		return
	}

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	enc := expfmt.NewEncoder(w, format)
	families := metricFamilies(stats)
	if counter, ok := s.store.(auditCounter); ok {
		families = append(families,
			family("classhub_audit_events_written_total", "Lifecycle events persisted to the audit log.", dto.MetricType_COUNTER,
				counterMetric(float64(counter.Written()))),
			family("classhub_audit_events_dropped_total", "Lifecycle events dropped because the audit queue was full.", dto.MetricType_COUNTER,
				counterMetric(float64(counter.Dropped()))))
	}
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			s.logger.Debug("failed to encode metrics", "err", err)
			return
		}
	}
}

// auditCounter is implemented by stores that count their writes.
type auditCounter interface {
	Written() uint64
	Dropped() uint64
}

func metricFamilies(stats hub.Stats) []*dto.MetricFamily {
	byType := make([]*dto.Metric, 0, len(stats.ConnectionsByType))
	for _, key := range sortedKeys(stats.ConnectionsByType) {
		byType = append(byType, gaugeMetric(float64(stats.ConnectionsByType[key]), "session_type", key))
	}

	routed := make([]*dto.Metric, 0, len(stats.MessagesRouted))
	for _, key := range sortedKeys(stats.MessagesRouted) {
		routed = append(routed, counterMetric(float64(stats.MessagesRouted[key]), "type", key))
	}

	families := []*dto.MetricFamily{
		family("classhub_connections", "Open connections.", dto.MetricType_GAUGE,
			gaugeMetric(float64(stats.TotalConnections))),
		family("classhub_sessions", "Sessions with at least one member.", dto.MetricType_GAUGE,
			gaugeMetric(float64(stats.ActiveSessions))),
		family("classhub_connections_by_session_type", "Open connections per session type.", dto.MetricType_GAUGE,
			byType...),
		family("classhub_connection_duration_average_seconds", "Average age of open connections.", dto.MetricType_GAUGE,
			gaugeMetric(stats.AverageConnectionDuration.Seconds())),
		family("classhub_connections_reaped_total", "Connections evicted for inactivity.", dto.MetricType_COUNTER,
			counterMetric(float64(stats.ConnectionsReaped))),
		family("classhub_delivery_failures_total", "Outbound frames that failed to write.", dto.MetricType_COUNTER,
			counterMetric(float64(stats.DeliveryFailures))),
	}
	if len(routed) > 0 {
		families = append(families, family("classhub_messages_routed_total", "Inbound frames handled, by type.", dto.MetricType_COUNTER, routed...))
	}
	return families
}

func family(name, help string, kind dto.MetricType, metrics ...*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   &name,
		Help:   &help,
		Type:   kind.Enum(),
		Metric: metrics,
	}
}

func gaugeMetric(v float64, labels ...string) *dto.Metric {
	return &dto.Metric{Label: labelPairs(labels), Gauge: &dto.Gauge{Value: &v}}
}

func counterMetric(v float64, labels ...string) *dto.Metric {
	return &dto.Metric{Label: labelPairs(labels), Counter: &dto.Counter{Value: &v}}
}

// labelPairs turns name, value, name, value... into label pairs.
func labelPairs(kv []string) []*dto.LabelPair {
	var pairs []*dto.LabelPair
	for i := 0; i+1 < len(kv); i += 2 {
		name, value := kv[i], kv[i+1]
		pairs = append(pairs, &dto.LabelPair{Name: &name, Value: &value})
	}
	return pairs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

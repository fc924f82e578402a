package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	deposits    *prometheus.CounterVec
	redemptions *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking audit events emitted by the
// engine.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stablecore",
				Subsystem: "events",
				Name:      "deposits_total",
				Help:      "Count of collateral deposits segmented by asset.",
			}, []string{"asset"}),
			redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stablecore",
				Subsystem: "events",
				Name:      "redemptions_total",
				Help:      "Count of collateral redemptions segmented by asset.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(eventRegistry.deposits, eventRegistry.redemptions)
	})
	return eventRegistry
}

// RecordDeposit increments the deposit counter for the supplied asset ticker.
func (m *eventMetrics) RecordDeposit(asset string) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(normalizeAsset(asset)).Inc()
}

// RecordRedemption increments the redemption counter for the supplied asset
// ticker.
func (m *eventMetrics) RecordRedemption(asset string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(normalizeAsset(asset)).Inc()
}

func normalizeAsset(asset string) string {
	normalized := strings.TrimSpace(strings.ToUpper(asset))
	if normalized == "" {
		normalized = "UNKNOWN"
	}
	return normalized
}

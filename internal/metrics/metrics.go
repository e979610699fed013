// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes the ambient observability SPEC_FULL.md §11
// wires in: packet-queue depth, the dropped_packets counter, dispatch
// counts by rule action, and notification batch outcomes. The spec's
// Non-goals never exclude observability, so this is carried regardless of
// feature scope, per Design Note 9's ambient-stack guidance.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric the pipeline updates. It is constructed once
// by the supervisor and handed to each worker that needs to record
// something, the same explicit-handle shape used for logging.
type Registry struct {
	QueueDepth       prometheus.Gauge
	DroppedPackets   prometheus.Counter
	DispatchTotal    *prometheus.CounterVec
	NotifyBatches    *prometheus.CounterVec
	HistorySources   prometheus.Gauge
	BlacklistedCount prometheus.Gauge
}

// NewRegistry builds a fresh, unregistered Registry.
func NewRegistry() *Registry {
	return &Registry{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "defnet_ids_packet_queue_depth",
			Help: "Current number of packets waiting in the capture-to-analyzer queue.",
		}),
		DroppedPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "defnet_ids_packets_dropped_total",
			Help: "Total number of packets evicted from the bounded capture queue (drop-oldest overflow).",
		}),
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "defnet_ids_dispatch_total",
			Help: "Total number of rule matches dispatched, by action.",
		}, []string{"action"}),
		NotifyBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "defnet_ids_notification_batches_total",
			Help: "Total number of notification batches attempted, by outcome.",
		}, []string{"outcome"}),
		HistorySources: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "defnet_ids_history_sources",
			Help: "Number of distinct source IPs currently tracked in the threshold history table.",
		}),
		BlacklistedCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "defnet_ids_blacklisted_ips",
			Help: "Number of source IPs currently installed as firewall drops.",
		}),
	}
}

// MustRegister registers every metric with the default Prometheus
// registerer. Called once at supervisor startup.
func (r *Registry) MustRegister() {
	prometheus.MustRegister(
		r.QueueDepth,
		r.DroppedPackets,
		r.DispatchTotal,
		r.NotifyBatches,
		r.HistorySources,
		r.BlacklistedCount,
	)
}

// ObserveDispatch increments the dispatch counter for action ("alert",
// "block", or any other value the evaluator produced).
func (r *Registry) ObserveDispatch(action string) {
	if r == nil {
		return
	}
	r.DispatchTotal.WithLabelValues(action).Inc()
}

// ObserveNotifyOutcome increments the batch counter for outcome ("ok" or
// "failed").
func (r *Registry) ObserveNotifyOutcome(outcome string) {
	if r == nil {
		return
	}
	r.NotifyBatches.WithLabelValues(outcome).Inc()
}

// SetQueueDepth records the capture queue's current length. Implements
// capture.QueueMetrics.
func (r *Registry) SetQueueDepth(n int) {
	if r == nil {
		return
	}
	r.QueueDepth.Set(float64(n))
}

// IncDropped increments the dropped-packet counter. Implements
// capture.QueueMetrics.
func (r *Registry) IncDropped() {
	if r == nil {
		return
	}
	r.DroppedPackets.Inc()
}

// SetHistorySources records the current count of tracked per-source
// threshold histories.
func (r *Registry) SetHistorySources(n int) {
	if r == nil {
		return
	}
	r.HistorySources.Set(float64(n))
}

// SetBlacklistedCount records the current number of installed firewall
// drops.
func (r *Registry) SetBlacklistedCount(n int) {
	if r == nil {
		return
	}
	r.BlacklistedCount.Set(float64(n))
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package notification buffers matched events and periodically batches
// and POSTs them to an external alerting endpoint (§4.7).
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/analyzer"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/logging"
)

// DefaultEndpoint is the fixed notification URL used when configuration
// does not override it (§4.7).
const DefaultEndpoint = "http://10.71.71.144:8000/notify-alert"

// DefaultBufferTime is the default aggregation window.
const DefaultBufferTime = 100 * time.Second

// DefaultMaxNotifications bounds how many events a single wake drains.
const DefaultMaxNotifications = 500

// eventQueueSlack caps the event queue to MaxNotifications*eventQueueSlack
// entries, bounding memory per §5's "implementation may cap it" allowance
// without ever blocking the analyzer's producer side.
const eventQueueSlack = 4

// BatchItem is one rule_id's aggregated group within an outbound batch.
type BatchItem struct {
	RuleID       string   `json:"rule_id"`
	Description  string   `json:"description"`
	TotalEvents  int      `json:"total_events"`
	UniqueSrcIPs []string `json:"unique_src_ips"`
	UniqueDstIPs []string `json:"unique_dst_ips"`
}

// batchPayload is the JSON body POSTed to the notification endpoint.
type batchPayload struct {
	Events []BatchItem `json:"events"`
}

// Aggregator drains analyzer.Event values from an internal queue on a
// fixed window and emits deduplicated batches (§4.7).
type Aggregator struct {
	endpoint         string
	bufferTime       time.Duration
	maxNotifications int
	httpClient       *http.Client
	logger           *logging.Logger
	metrics          Metrics

	mu    sync.Mutex
	queue []analyzer.Event

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Metrics receives batch-outcome observations from the aggregator.
// internal/metrics.Registry satisfies this; tests can leave it nil.
type Metrics interface {
	ObserveNotifyOutcome(outcome string)
}

// Config configures an Aggregator; zero values fall back to the spec
// defaults.
type Config struct {
	Endpoint         string
	BufferTime       time.Duration
	MaxNotifications int
}

// DefaultConfig returns the spec's default aggregator configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:         DefaultEndpoint,
		BufferTime:       DefaultBufferTime,
		MaxNotifications: DefaultMaxNotifications,
	}
}

// New creates an Aggregator. A nil logger falls back to a
// component-tagged default logger, matching the teacher's constructor
// convention.
func New(cfg Config, logger *logging.Logger) *Aggregator {
	if logger == nil {
		logger = logging.Default().WithComponent("notification")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.BufferTime <= 0 {
		cfg.BufferTime = DefaultBufferTime
	}
	if cfg.MaxNotifications <= 0 {
		cfg.MaxNotifications = DefaultMaxNotifications
	}
	return &Aggregator{
		endpoint:         cfg.Endpoint,
		bufferTime:       cfg.BufferTime,
		maxNotifications: cfg.MaxNotifications,
		httpClient:       &http.Client{Timeout: 10 * time.Second},
		logger:           logger,
		stop:             make(chan struct{}),
		done:             make(chan struct{}),
	}
}

// Enqueue adds e to the pending event queue, dropping the oldest entry
// if the queue has grown past its slack-bounded cap (§5).
func (a *Aggregator) Enqueue(e analyzer.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	limit := a.maxNotifications * eventQueueSlack
	if len(a.queue) >= limit {
		a.queue = a.queue[1:]
	}
	a.queue = append(a.queue, e)
}

// Run sleeps for bufferTime, drains and flushes, and repeats until Stop
// is requested; on stop it flushes exactly one final batch before
// exiting (§4.7).
func (a *Aggregator) Run() {
	defer close(a.done)

	ticker := time.NewTicker(a.bufferTime)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			a.flush()
			return
		case <-ticker.C:
			a.flush()
		}
	}
}

// Stop requests Run to perform its final flush and exit, then blocks
// until it has.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
	<-a.done
}

// SetMetrics attaches a metrics sink; nil disables observation.
func (a *Aggregator) SetMetrics(m Metrics) {
	a.metrics = m
}

// flush drains up to maxNotifications events, groups them by rule_id, and
// POSTs the resulting batch. A failed POST is logged and the batch is
// discarded rather than retried (best-effort delivery, §4.7).
func (a *Aggregator) flush() {
	batch := a.drain()
	if len(batch) == 0 {
		return
	}

	items := groupByRule(batch)
	if err := a.post(items); err != nil {
		a.logger.Warn("notification batch delivery failed", "error", err, "events", len(batch))
		if a.metrics != nil {
			a.metrics.ObserveNotifyOutcome("failed")
		}
		return
	}
	if a.metrics != nil {
		a.metrics.ObserveNotifyOutcome("ok")
	}
}

// drain removes up to maxNotifications events from the queue under its
// mutex.
func (a *Aggregator) drain() []analyzer.Event {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.queue)
	if n > a.maxNotifications {
		n = a.maxNotifications
	}
	batch := make([]analyzer.Event, n)
	copy(batch, a.queue[:n])
	a.queue = a.queue[n:]
	return batch
}

// groupByRule aggregates events into one BatchItem per rule_id, per §4.7:
// count is the number of events in the group, description is the
// last-seen one, and unique_src_ips/unique_dst_ips are deduplicated sets
// rendered in first-seen order.
func groupByRule(events []analyzer.Event) []BatchItem {
	order := make([]string, 0)
	groups := make(map[string]*BatchItem)

	for _, e := range events {
		item, ok := groups[e.RuleID]
		if !ok {
			item = &BatchItem{RuleID: e.RuleID}
			groups[e.RuleID] = item
			order = append(order, e.RuleID)
		}
		item.TotalEvents++
		item.Description = e.Description
		item.UniqueSrcIPs = appendUnique(item.UniqueSrcIPs, e.SrcIP)
		item.UniqueDstIPs = appendUnique(item.UniqueDstIPs, e.DstIP)
	}

	result := make([]BatchItem, 0, len(order))
	for _, id := range order {
		result = append(result, *groups[id])
	}
	return result
}

func appendUnique(set []string, value string) []string {
	for _, existing := range set {
		if existing == value {
			return set
		}
	}
	return append(set, value)
}

// post sends the batch to the notification endpoint as JSON.
func (a *Aggregator) post(items []BatchItem) error {
	body, err := json.Marshal(batchPayload{Events: items})
	if err != nil {
		return fmt.Errorf("marshal notification batch: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send notification batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

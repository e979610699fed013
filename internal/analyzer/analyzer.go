// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package analyzer drains captured packets, runs them through the rule
// store and evaluator, and dispatches matching events downstream (§4).
package analyzer

import (
	"context"
	"sync"
	"time"

	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/capture"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/engine"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/logging"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/rules"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/zone"
)

// popTimeout bounds how long the consumer loop waits on an empty queue
// before re-checking the stop flag (§5).
const popTimeout = 500 * time.Millisecond

// pruneInterval controls how often History.Prune runs against dormant
// sources; it does not need to track the capture rate closely.
const pruneInterval = time.Minute

// Event is a matched (rule, packet) pair handed to the notification
// aggregator (§4.7). Type is "alert" or "block"; Description carries the
// "(blocked)" suffix for block events per §4.6.
type Event struct {
	Type        string
	RuleID      string
	Description string
	SrcIP       string
	DstIP       string
	Protocol    string
	Timestamp   time.Time
	Summary     string
}

// Notifier receives every alert/block Event for aggregation and eventual
// delivery to the notification endpoint.
type Notifier interface {
	Enqueue(Event)
}

// Blocker installs and removes drops for a source address in the external
// firewall (§4.6).
type Blocker interface {
	Block(srcIP string)
}

// Analyzer is the single-threaded consumer of a capture.Queue. Per §5,
// its History is mutated exclusively by this goroutine, so it needs no
// internal locking of its own.
type Analyzer struct {
	queue      *capture.Queue
	store      *rules.Store
	classifier *zone.Classifier
	history    *engine.History
	notifier   Notifier
	blocker    Blocker
	logger     *logging.Logger
	metrics    Metrics

	maxWindow time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Metrics receives dispatch/history observations from the analyzer.
// internal/metrics.Registry satisfies this; tests can leave it nil.
type Metrics interface {
	ObserveDispatch(action string)
	SetHistorySources(n int)
}

// New wires a queue, rule store, zone classifier, notifier and blocker
// into an analyzer. maxWindow is the longest threshold window among the
// loaded rules and bounds how aggressively History.Prune reclaims
// dormant sources; callers should recompute it whenever rules are
// reloaded.
func New(queue *capture.Queue, store *rules.Store, classifier *zone.Classifier, notifier Notifier, blocker Blocker, maxWindow time.Duration, logger *logging.Logger) *Analyzer {
	if logger == nil {
		logger = logging.Default().WithComponent("analyzer")
	}
	if maxWindow <= 0 {
		maxWindow = 10 * time.Second
	}
	return &Analyzer{
		queue:      queue,
		store:      store,
		classifier: classifier,
		history:    engine.NewHistory(),
		notifier:   notifier,
		blocker:    blocker,
		logger:     logger,
		maxWindow:  maxWindow,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run drains the queue until Stop is called. Per §5, on a stop request
// the analyzer first drains every packet already queued, then exits —
// it does not wait for new arrivals.
func (a *Analyzer) Run() {
	defer close(a.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lastPrune := time.Now()

	for {
		select {
		case <-a.stop:
			a.drain()
			return
		default:
		}

		pkt, ok := a.queue.Pop(ctx, popTimeout)
		if !ok {
			continue
		}
		a.process(pkt, time.Now())

		if now := time.Now(); now.Sub(lastPrune) >= pruneInterval {
			a.history.Prune(now, a.maxWindow)
			lastPrune = now
			if a.metrics != nil {
				a.metrics.SetHistorySources(a.history.Len())
			}
		}
	}
}

// drain processes every packet still queued without waiting for new
// arrivals, satisfying the graceful-shutdown requirement of §5/scenario S6.
func (a *Analyzer) drain() {
	ctx := context.Background()
	for {
		pkt, ok := a.queue.Pop(ctx, 0)
		if !ok {
			return
		}
		a.process(pkt, time.Now())
	}
}

// Stop requests Run to finish draining and exit, then blocks until it has.
func (a *Analyzer) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
	<-a.done
}

// SetMetrics attaches a metrics sink; nil disables observation.
func (a *Analyzer) SetMetrics(m Metrics) {
	a.metrics = m
}

// process runs one packet through every candidate rule in its protocol's
// trie (§4.4/§4.5). Every candidate is evaluated — a match on one rule
// never short-circuits evaluation of the others, per §4.5's exhaustive
// scan.
func (a *Analyzer) process(pkt engine.PacketView, now time.Time) {
	protocol := pkt.ProtocolName()
	candidates := a.store.Lookup(protocol, pkt.SrcIP)
	if len(candidates) == 0 {
		return
	}

	for _, rule := range candidates {
		if !a.classifier.Direction(rule.Direction, pkt.SrcIP, pkt.DstIP) {
			continue
		}
		if !a.classifier.FinalGate(rule.SrcIP, pkt.SrcIP) {
			continue
		}
		if !engine.Match(rule, pkt, a.history, now) {
			continue
		}

		a.dispatch(rule, pkt, protocol, now)
	}
}

// dispatch implements the per-action behavior of §4.6.
func (a *Analyzer) dispatch(rule rules.Rule, pkt engine.PacketView, protocol string, now time.Time) {
	a.logger.Info("rule matched", "rule_id", rule.ID, "action", rule.Action, "src_ip", pkt.SrcIP, "dst_ip", pkt.DstIP, "correlation_id", pkt.CorrelationID)
	if a.metrics != nil {
		a.metrics.ObserveDispatch(string(rule.Action))
	}

	switch rule.Action {
	case rules.ActionAlert:
		a.notifier.Enqueue(Event{
			Type:        "alert",
			RuleID:      rule.ID,
			Description: rule.Description,
			SrcIP:       pkt.SrcIP,
			DstIP:       pkt.DstIP,
			Protocol:    protocol,
			Timestamp:   now,
			Summary:     pkt.Summary(),
		})
	case rules.ActionBlock:
		a.notifier.Enqueue(Event{
			Type:        "block",
			RuleID:      rule.ID,
			Description: rule.Description + " (blocked)",
			SrcIP:       pkt.SrcIP,
			DstIP:       pkt.DstIP,
			Protocol:    protocol,
			Timestamp:   now,
			Summary:     pkt.Summary(),
		})
		if a.blocker != nil {
			a.blocker.Block(pkt.SrcIP)
		}
	default:
		a.logger.Debug("rule matched with no actionable dispatch", "rule_id", rule.ID, "action", rule.Action)
	}
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package analyzer

import (
	"testing"
	"time"

	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/capture"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/engine"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/rules"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/zone"
)

// recordingNotifier collects every Event handed to it.
type recordingNotifier struct {
	events []Event
}

func (r *recordingNotifier) Enqueue(e Event) {
	r.events = append(r.events, e)
}

// recordingBlocker records every src_ip it was asked to block.
type recordingBlocker struct {
	blocked []string
}

func (r *recordingBlocker) Block(srcIP string) {
	r.blocked = append(r.blocked, srcIP)
}

func newTestAnalyzer(t *testing.T, rule rules.Rule, notifier Notifier, blocker Blocker) (*Analyzer, *capture.Queue) {
	t.Helper()
	store := rules.NewStore([]string{"TCP"})
	if err := store.Insert("TCP", rule); err != nil {
		t.Fatalf("insert rule: %v", err)
	}
	classifier := zone.New("192.168.1.0/24", "!192.168.1.0/24,0.0.0.0/0", nil)
	queue := capture.NewQueue(64)
	window := time.Duration(rule.Threshold.Time) * time.Second
	return New(queue, store, classifier, notifier, blocker, window, nil), queue
}

// TestS1AlertOnMatch mirrors scenario S1: the first packet from a fresh
// source does not dispatch, the second (within the window) does, and the
// resulting event carries the matched rule's fields.
func TestS1AlertOnMatch(t *testing.T) {
	rule := rules.Rule{
		ID:        "R1",
		Protocol:  "TCP",
		SrcIP:     rules.Any,
		DstIP:     rules.Any,
		SrcPort:   rules.Any,
		DstPort:   "80",
		Action:    rules.ActionAlert,
		Direction: rules.DirectionBoth,
		Threshold: rules.Threshold{Count: 1, Time: 10},
	}
	notifier := &recordingNotifier{}
	a, queue := newTestAnalyzer(t, rule, notifier, nil)

	pkt := engine.PacketView{SrcIP: "10.0.0.5", DstIP: "192.168.1.2", ProtocolNumber: 6, HasTCP: true, SrcPort: 1234, DstPort: 80}

	queue.Push(pkt)
	a.process(pkt, time.Unix(1_700_000_000, 0))
	if len(notifier.events) != 0 {
		t.Fatalf("expected zero dispatch on first packet, got %d", len(notifier.events))
	}

	a.process(pkt, time.Unix(1_700_000_001, 0))
	if len(notifier.events) != 1 {
		t.Fatalf("expected exactly one dispatch on second packet, got %d", len(notifier.events))
	}
	if notifier.events[0].RuleID != "R1" || notifier.events[0].Type != "alert" {
		t.Fatalf("unexpected event: %+v", notifier.events[0])
	}
}

// TestS2SYNFlagRequired mirrors scenario S2.
func TestS2SYNFlagRequired(t *testing.T) {
	rule := rules.Rule{
		ID:        "R2",
		Protocol:  "TCP",
		SrcIP:     rules.Any,
		DstIP:     rules.Any,
		SrcPort:   rules.Any,
		DstPort:   rules.Any,
		Action:    rules.ActionAlert,
		Direction: rules.DirectionBoth,
		Flags:     []string{"S"},
		Threshold: rules.Threshold{Count: 1, Time: 10},
	}
	notifier := &recordingNotifier{}
	a, _ := newTestAnalyzer(t, rule, notifier, nil)

	ackPkt := engine.PacketView{SrcIP: "10.0.0.9", DstIP: "192.168.1.2", ProtocolNumber: 6, HasTCP: true, TCPFlags: "A"}
	a.process(ackPkt, time.Unix(1_700_000_000, 0))
	a.process(ackPkt, time.Unix(1_700_000_001, 0))
	if len(notifier.events) != 0 {
		t.Fatalf("expected ACK-only packets to never match a Flags:[S] rule, got %d dispatches", len(notifier.events))
	}

	synPkt := engine.PacketView{SrcIP: "10.0.0.9", DstIP: "192.168.1.2", ProtocolNumber: 6, HasTCP: true, TCPFlags: "S"}
	a.process(synPkt, time.Unix(1_700_000_002, 0))
	a.process(synPkt, time.Unix(1_700_000_003, 0))
	if len(notifier.events) != 1 {
		t.Fatalf("expected exactly one dispatch once SYN packets start arriving, got %d", len(notifier.events))
	}
}

// TestS3BlockInstallsDropOnce mirrors scenario S3: two matching block
// events produce two Block() calls (the blocker is responsible for
// idempotent replacement, §4.6), and each event is suffixed "(blocked)".
func TestS3BlockInstallsDropOnce(t *testing.T) {
	rule := rules.Rule{
		ID:          "R3",
		Protocol:    "TCP",
		SrcIP:       rules.Any,
		DstIP:       rules.Any,
		SrcPort:     rules.Any,
		DstPort:     rules.Any,
		Action:      rules.ActionBlock,
		Direction:   rules.DirectionBoth,
		Description: "known scanner",
		Threshold:   rules.Threshold{Count: 0, Time: 60},
	}
	notifier := &recordingNotifier{}
	blocker := &recordingBlocker{}
	a, _ := newTestAnalyzer(t, rule, notifier, blocker)

	pkt := engine.PacketView{SrcIP: "10.0.0.9", DstIP: "192.168.1.2", ProtocolNumber: 6, HasTCP: true}
	a.process(pkt, time.Unix(1_700_000_000, 0))
	a.process(pkt, time.Unix(1_700_000_001, 0))

	if len(blocker.blocked) != 2 || blocker.blocked[0] != "10.0.0.9" || blocker.blocked[1] != "10.0.0.9" {
		t.Fatalf("expected two Block(10.0.0.9) calls, got %+v", blocker.blocked)
	}
	if len(notifier.events) != 2 {
		t.Fatalf("expected two block events, got %d", len(notifier.events))
	}
	for _, e := range notifier.events {
		if e.Type != "block" || e.Description != "known scanner (blocked)" {
			t.Fatalf("unexpected block event: %+v", e)
		}
	}
}

// TestS5DirectionFilter mirrors scenario S5.
func TestS5DirectionFilter(t *testing.T) {
	rule := rules.Rule{
		ID:        "R5",
		Protocol:  "TCP",
		SrcIP:     rules.Any,
		DstIP:     rules.Any,
		SrcPort:   rules.Any,
		DstPort:   rules.Any,
		Action:    rules.ActionAlert,
		Direction: rules.DirectionIn,
		Threshold: rules.Threshold{Count: 0, Time: 10},
	}
	notifier := &recordingNotifier{}
	a, _ := newTestAnalyzer(t, rule, notifier, nil)

	outbound := engine.PacketView{SrcIP: "192.168.1.5", DstIP: "203.0.113.7", ProtocolNumber: 6, HasTCP: true}
	a.process(outbound, time.Unix(1_700_000_000, 0))
	if len(notifier.events) != 0 {
		t.Fatalf("expected HOME_NET->EXTERNAL_NET to not match direction=in, got %d dispatches", len(notifier.events))
	}

	inbound := engine.PacketView{SrcIP: "203.0.113.7", DstIP: "192.168.1.5", ProtocolNumber: 6, HasTCP: true}
	a.process(inbound, time.Unix(1_700_000_001, 0))
	if len(notifier.events) != 1 {
		t.Fatalf("expected EXTERNAL_NET->HOME_NET to match direction=in, got %d dispatches", len(notifier.events))
	}
}

// TestS6GracefulShutdown mirrors scenario S6: 50 packets queued, stop
// requested, every one is still processed before Run exits.
func TestS6GracefulShutdown(t *testing.T) {
	rule := rules.Rule{
		ID:        "R6",
		Protocol:  "TCP",
		SrcIP:     rules.Any,
		DstIP:     rules.Any,
		SrcPort:   rules.Any,
		DstPort:   rules.Any,
		Action:    rules.ActionAlert,
		Direction: rules.DirectionBoth,
		Threshold: rules.Threshold{Count: 0, Time: 60},
	}
	notifier := &recordingNotifier{}
	a, queue := newTestAnalyzer(t, rule, notifier, nil)

	for i := 0; i < 50; i++ {
		queue.Push(engine.PacketView{SrcIP: "203.0.113.7", DstIP: "192.168.1.5", ProtocolNumber: 6, HasTCP: true})
	}

	done := make(chan struct{})
	go func() {
		a.Run()
		close(done)
	}()

	a.Stop()
	<-done

	if len(notifier.events) != 50 {
		t.Fatalf("expected all 50 queued packets to be processed before exit, got %d", len(notifier.events))
	}
	if queue.Len() != 0 {
		t.Fatalf("expected queue to be fully drained, got %d remaining", queue.Len())
	}
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveDispatchIncrementsByAction(t *testing.T) {
	r := NewRegistry()
	r.ObserveDispatch("alert")
	r.ObserveDispatch("alert")
	r.ObserveDispatch("block")

	if got := testutil.ToFloat64(r.DispatchTotal.WithLabelValues("alert")); got != 2 {
		t.Errorf("expected 2 alert dispatches, got %v", got)
	}
	if got := testutil.ToFloat64(r.DispatchTotal.WithLabelValues("block")); got != 1 {
		t.Errorf("expected 1 block dispatch, got %v", got)
	}
}

func TestQueueDepthAndDropped(t *testing.T) {
	r := NewRegistry()
	r.SetQueueDepth(42)
	r.IncDropped()
	r.IncDropped()

	if got := testutil.ToFloat64(r.QueueDepth); got != 42 {
		t.Errorf("expected queue depth 42, got %v", got)
	}
	if got := testutil.ToFloat64(r.DroppedPackets); got != 2 {
		t.Errorf("expected 2 dropped packets, got %v", got)
	}
}

func TestNilRegistrySafe(t *testing.T) {
	var r *Registry
	r.ObserveDispatch("alert")
	r.SetQueueDepth(1)
	r.IncDropped()
	r.ObserveNotifyOutcome("ok")
	r.SetHistorySources(1)
	r.SetBlacklistedCount(1)
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gopacket/gopacket"

	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/engine"
)

func TestQueuePushPop(t *testing.T) {
	q := NewQueue(2)
	q.Push(engine.PacketView{SrcIP: "a"})
	q.Push(engine.PacketView{SrcIP: "b"})

	ctx := context.Background()
	first, ok := q.Pop(ctx, time.Second)
	if !ok || first.SrcIP != "a" {
		t.Fatalf("expected FIFO pop of 'a', got %+v ok=%v", first, ok)
	}
}

// TestQueueDropOldest is testable property 3: the queue never exceeds its
// capacity and the dropped counter matches exactly the number of evictions.
func TestQueueDropOldest(t *testing.T) {
	q := NewQueue(2)
	q.Push(engine.PacketView{SrcIP: "a"})
	q.Push(engine.PacketView{SrcIP: "b"})
	q.Push(engine.PacketView{SrcIP: "c"}) // evicts "a"

	if q.Len() != 2 {
		t.Fatalf("expected queue length to stay at capacity 2, got %d", q.Len())
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected exactly 1 dropped packet, got %d", q.Dropped())
	}

	ctx := context.Background()
	first, _ := q.Pop(ctx, time.Second)
	if first.SrcIP != "b" {
		t.Fatalf("expected oldest remaining entry to be 'b', got %+v", first)
	}
}

func TestQueuePopTimesOutWhenEmpty(t *testing.T) {
	q := NewQueue(4)
	ctx := context.Background()
	start := time.Now()
	_, ok := q.Pop(ctx, 50*time.Millisecond)
	if ok {
		t.Fatal("expected Pop on an empty queue to time out")
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatal("expected Pop to actually wait roughly the given timeout")
	}
}

func TestQueuePopHonorsContextCancellation(t *testing.T) {
	q := NewQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := q.Pop(ctx, time.Second)
	if ok {
		t.Fatal("expected Pop to return immediately on a cancelled context")
	}
}

// fakeSource is an injected rawSource that serves a fixed list of frames,
// then (simulating an idle live interface) waits up to 10ms per read and
// returns an error, or returns an error at once after Close.
type fakeSource struct {
	frames [][]byte
	idx    int
	closed chan struct{}
}

func newFakeSource(frames [][]byte) *fakeSource {
	return &fakeSource{frames: frames, closed: make(chan struct{})}
}

func (f *fakeSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	if f.idx < len(f.frames) {
		data := f.frames[f.idx]
		f.idx++
		return data, gopacket.CaptureInfo{}, nil
	}
	select {
	case <-f.closed:
		return nil, gopacket.CaptureInfo{}, errors.New("source closed")
	case <-time.After(10 * time.Millisecond):
		return nil, gopacket.CaptureInfo{}, errors.New("idle timeout")
	}
}

func (f *fakeSource) Close() {
	close(f.closed)
}

func TestCapturerStopIsCooperativeAndImmediate(t *testing.T) {
	src := newFakeSource(nil)
	q := NewQueue(4)
	c := NewCapturer(src, q, nil)

	done := make(chan struct{})
	go func() {
		c.Run()
		close(done)
	}()

	// Give Run a moment to enter its loop, then request a stop; per §5
	// capture exits immediately without draining anything further.
	time.Sleep(20 * time.Millisecond)
	c.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return promptly after Stop")
	}
}

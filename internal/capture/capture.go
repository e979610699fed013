// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package capture reads raw frames off a live interface and hands them to
// a bounded, drop-oldest queue for the analyzer to drain (§3, §5). The
// live source is gopacket/pcap; it is reached only through the rawSource
// interface so tests never need a real interface or libpcap.
package capture

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcap"

	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/engine"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/errors"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/logging"
)

// snapLen bounds how much of each frame libpcap copies into userspace;
// IP/TCP headers fit comfortably within it.
const snapLen = 262144

// pollTimeout bounds how long ReadPacketData may block, so the capture
// loop can notice a stop request without waiting indefinitely (§5).
const pollTimeout = 500 * time.Millisecond

// rawSource is the slice of *pcap.Handle that capture actually uses. Tests
// inject a fake implementation; production wires a real pcap handle via
// NewLiveSource.
type rawSource interface {
	ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error)
	Close()
}

// NewLiveSource opens iface for live capture in promiscuous mode, grounded
// on gopacket/pcap's standard OpenLive usage.
func NewLiveSource(iface string) (rawSource, error) {
	handle, err := pcap.OpenLive(iface, snapLen, true, pollTimeout)
	if err != nil {
		return nil, errors.Wrap(errors.KindCapture, "open interface "+iface, err)
	}
	return handle, nil
}

// Queue is the bounded, single-producer/single-consumer, drop-oldest
// packet queue between capture and the analyzer (§5). When full, Push
// discards the oldest queued packet rather than blocking the capture
// loop or the newest arrival — capture must never stall on a slow
// analyzer.
type Queue struct {
	mu       sync.Mutex
	notEmpty chan struct{}
	items    []engine.PacketView
	cap      int
	dropped  uint64
	metrics  QueueMetrics
}

// QueueMetrics receives queue depth/drop observations. internal/metrics.Registry
// satisfies this; tests can supply a stub or leave it nil.
type QueueMetrics interface {
	SetQueueDepth(int)
	IncDropped()
}

// NewQueue creates a queue bounded to capacity entries.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{cap: capacity, notEmpty: make(chan struct{}, 1)}
}

// SetMetrics attaches a metrics sink; nil disables observation.
func (q *Queue) SetMetrics(m QueueMetrics) {
	q.mu.Lock()
	q.metrics = m
	q.mu.Unlock()
}

// Push enqueues pkt, evicting the oldest entry first if the queue is full.
func (q *Queue) Push(pkt engine.PacketView) {
	q.mu.Lock()
	if len(q.items) >= q.cap {
		q.items = q.items[1:]
		q.dropped++
		if q.metrics != nil {
			q.metrics.IncDropped()
		}
	}
	q.items = append(q.items, pkt)
	if q.metrics != nil {
		q.metrics.SetQueueDepth(len(q.items))
	}
	q.mu.Unlock()

	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
}

// Pop waits up to timeout for an entry, returning ok=false on timeout or
// on ctx cancellation — the analyzer uses this to poll the stop flag
// cooperatively rather than blocking forever (§5).
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (engine.PacketView, bool) {
	if pkt, ok := q.tryPop(); ok {
		return pkt, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-q.notEmpty:
		pkt, ok := q.tryPop()
		return pkt, ok
	case <-timer.C:
		return engine.PacketView{}, false
	case <-ctx.Done():
		return engine.PacketView{}, false
	}
}

func (q *Queue) tryPop() (engine.PacketView, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return engine.PacketView{}, false
	}
	pkt := q.items[0]
	q.items = q.items[1:]
	if q.metrics != nil {
		q.metrics.SetQueueDepth(len(q.items))
	}
	return pkt, true
}

// Len reports the number of packets currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped reports the total number of packets evicted for capacity.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Capturer drains a raw packet source into a Queue until Stop is called.
type Capturer struct {
	source   rawSource
	queue    *Queue
	logger   *logging.Logger
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewCapturer wires a raw source to queue.
func NewCapturer(source rawSource, queue *Queue, logger *logging.Logger) *Capturer {
	if logger == nil {
		logger = logging.Default().WithComponent("capture")
	}
	return &Capturer{
		source: source,
		queue:  queue,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run reads frames until Stop is called. A read error is logged and the
// loop keeps polling; it does not end Run. Per §5, capture exits
// immediately on a stop request — it does not drain anything, since the
// queue already holds whatever it has.
func (c *Capturer) Run() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		data, _, err := c.source.ReadPacketData()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				continue
			}
			c.logger.Warn("read from capture source failed", "error", err)
			continue
		}

		view, ok := toPacketView(data)
		if !ok {
			continue
		}
		c.queue.Push(view)
	}
}

// Stop requests Run to exit and blocks until it has. Idempotent.
func (c *Capturer) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

// toPacketView decodes raw bytes into the minimal projection the matching
// pipeline needs, discarding anything without a usable IP layer (§4.5).
func toPacketView(data []byte) (engine.PacketView, bool) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.DecodeOptions{
		Lazy:   true,
		NoCopy: true,
	})

	var srcIP, dstIP string
	var protoNum int

	if ipv4 := packet.Layer(layers.LayerTypeIPv4); ipv4 != nil {
		ip := ipv4.(*layers.IPv4)
		srcIP = ip.SrcIP.String()
		dstIP = ip.DstIP.String()
		protoNum = int(ip.Protocol)
	} else if ipv6 := packet.Layer(layers.LayerTypeIPv6); ipv6 != nil {
		ip := ipv6.(*layers.IPv6)
		srcIP = ip.SrcIP.String()
		dstIP = ip.DstIP.String()
		protoNum = int(ip.NextHeader)
	} else {
		return engine.PacketView{}, false
	}

	view := engine.PacketView{SrcIP: srcIP, DstIP: dstIP, ProtocolNumber: protoNum, CorrelationID: uuid.NewString()}

	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		view.HasTCP = true
		view.SrcPort = int(tcp.SrcPort)
		view.DstPort = int(tcp.DstPort)
		view.TCPFlags = tcpFlagString(tcp)
	}

	return view, true
}

func tcpFlagString(tcp *layers.TCP) string {
	flags := make([]byte, 0, 6)
	if tcp.SYN {
		flags = append(flags, 'S')
	}
	if tcp.ACK {
		flags = append(flags, 'A')
	}
	if tcp.FIN {
		flags = append(flags, 'F')
	}
	if tcp.RST {
		flags = append(flags, 'R')
	}
	if tcp.PSH {
		flags = append(flags, 'P')
	}
	if tcp.URG {
		flags = append(flags, 'U')
	}
	return string(flags)
}

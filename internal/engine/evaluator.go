// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"time"

	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/rules"
)

// History tracks, per source IP, the timestamps of events that have
// previously satisfied every non-threshold predicate of some rule (§3's
// "per-source history"). It is mutated exclusively by the analyzer's
// single consumer goroutine, so — per §5 — it carries no internal lock.
// If the analyzer is ever parallelized, this type would need to be
// sharded by a hash of the source IP (Design Note 9); the current
// single-analyzer design does not require that.
type History struct {
	bySource map[string][]time.Time
}

// NewHistory creates an empty history table.
func NewHistory() *History {
	return &History{bySource: make(map[string][]time.Time)}
}

// observe appends now to src's timeline, evicts entries older than
// now-window, and returns the resulting (post-eviction) count.
func (h *History) observe(src string, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	timestamps := append(h.bySource[src], now)

	kept := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	h.bySource[src] = kept
	return len(kept)
}

// Prune removes every source whose most recent observation predates
// maxAge. The per-rule eviction inside observe only trims a source's own
// timeline when that source generates new traffic; a source that goes
// silent forever would otherwise sit in the map indefinitely (Design
// Note 9, "per-source history unbounded growth"). The analyzer calls
// Prune periodically with the largest threshold window of any loaded
// rule as maxAge, which bounds total memory to the set of sources active
// within that window. Prune drops whole sources only: older timestamps
// of a source whose latest observation is recent are left in place until
// observe trims them on that source's next event.
func (h *History) Prune(now time.Time, maxAge time.Duration) {
	cutoff := now.Add(-maxAge)
	for src, timestamps := range h.bySource {
		if len(timestamps) == 0 {
			delete(h.bySource, src)
			continue
		}
		if timestamps[len(timestamps)-1].Before(cutoff) {
			delete(h.bySource, src)
		}
	}
}

// Len reports how many distinct sources currently have history entries,
// used by tests and metrics.
func (h *History) Len() int {
	return len(h.bySource)
}

// Match is the pure(-ish) rule evaluator of §4.2. The only side effect is
// appending to, and evicting from, history[pkt.SrcIP]; every other
// predicate is read-only. Match assumes the zone/direction pre-filter of
// §4.3 has already passed for this (rule, packet) pair.
func Match(rule rules.Rule, pkt PacketView, history *History, now time.Time) bool {
	if rule.SrcIP != rules.Any && pkt.SrcIP != rule.SrcIP {
		return false
	}
	if rule.DstIP != rules.Any && pkt.DstIP != rule.DstIP {
		return false
	}
	if rule.SrcPort != rules.Any && pkt.HasTCP && itoa(pkt.SrcPort) != rule.SrcPort {
		return false
	}
	if rule.DstPort != rules.Any && pkt.HasTCP && itoa(pkt.DstPort) != rule.DstPort {
		return false
	}
	if len(rule.Flags) > 0 {
		if !pkt.HasTCP {
			return false
		}
		for _, flag := range rule.Flags {
			if !pkt.HasFlag(flag) {
				return false
			}
		}
	}

	threshold := rule.Threshold
	if threshold.Count == 0 && threshold.Time == 0 {
		threshold = rules.DefaultThreshold()
	}
	window := time.Duration(threshold.Time) * time.Second
	count := history.observe(pkt.SrcIP, now, window)

	return count > threshold.Count
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

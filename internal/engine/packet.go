// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package engine holds the packet projection, the protocol-number table,
// and the pure rule evaluator (§4.2) that the analyzer drives per packet.
package engine

import "fmt"

// protocolNames maps an IP protocol/next-header number to the fixed name
// table of §4.5. Anything not listed renders as "Unknown protocol N".
var protocolNames = map[int]string{
	1:   "ICMP",
	2:   "IGMP",
	4:   "IP",
	6:   "TCP",
	17:  "UDP",
	50:  "ESP",
	51:  "AH",
	58:  "ICMPv6",
	88:  "EIGRP",
	89:  "OSPF",
	132: "SCTP",
}

// ProtocolName resolves an IPv4 "proto" field or IPv6 "next header" value
// to the protocol name the rule store is partitioned by.
func ProtocolName(number int) string {
	if name, ok := protocolNames[number]; ok {
		return name
	}
	return fmt.Sprintf("Unknown protocol %d", number)
}

// PacketView is the minimal projection of a captured frame that the
// matching pipeline needs (§3). HasTCP distinguishes "no TCP layer" from
// "TCP layer with flags/ports unset", since §4.2 rules 3/4 silently skip
// port constraints when the packet has no TCP layer at all, while rule 5
// rejects such a packet for any rule that lists flags.
type PacketView struct {
	SrcIP          string
	DstIP          string
	ProtocolNumber int
	HasTCP         bool
	SrcPort        int
	DstPort        int
	TCPFlags       string // any combination of "SAFRPU"

	// CorrelationID identifies this packet across the capture -> analyzer
	// -> notification hop for structured log correlation only; it is
	// never part of the wire Event/BatchItem schema (§3).
	CorrelationID string
}

// ProtocolName returns the resolved protocol name for this packet.
func (p PacketView) ProtocolName() string {
	return ProtocolName(p.ProtocolNumber)
}

// HasFlag reports whether flag (a single letter such as "S") is present in
// the packet's TCP flags.
func (p PacketView) HasFlag(flag string) bool {
	if !p.HasTCP || len(flag) != 1 {
		return false
	}
	for i := 0; i < len(p.TCPFlags); i++ {
		if p.TCPFlags[i] == flag[0] {
			return true
		}
	}
	return false
}

// Summary renders a one-line, log-friendly description of the packet,
// matching the shape of a scapy packet.summary() line closely enough to be
// immediately recognizable in the log file.
func (p PacketView) Summary() string {
	proto := p.ProtocolName()
	if p.HasTCP {
		flags := p.TCPFlags
		if flags == "" {
			flags = "-"
		}
		return fmt.Sprintf("%s %s:%d > %s:%d [%s]", proto, p.SrcIP, p.SrcPort, p.DstIP, p.DstPort, flags)
	}
	return fmt.Sprintf("%s %s > %s", proto, p.SrcIP, p.DstIP)
}

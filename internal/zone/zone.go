// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package zone answers "is this address trusted (HOME_NET) or untrusted
// (EXTERNAL_NET)?" and applies the per-rule direction pre-filter of §4.3.
// It holds no mutable state after construction and needs no locking.
package zone

import (
	"net"
	"strings"

	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/logging"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/rules"
)

// token pairs a parsed CIDR with whether it was negated ("!cidr") in
// the EXTERNAL_NET configuration string.
type token struct {
	network  *net.IPNet
	excluded bool
}

// Classifier resolves HOME_NET/EXTERNAL_NET membership from settings
// loaded out of config_settings.json (§3, §6).
type Classifier struct {
	homeNet     *net.IPNet
	externalNet []token
	logger      *logging.Logger
}

// New builds a Classifier from raw HOME_NET/EXTERNAL_NET config strings.
// Unparsable configuration degrades to "no network" rather than a fatal
// error, per §7's configuration-error policy; a warning is logged.
func New(homeNetCIDR, externalNetConfig string, logger *logging.Logger) *Classifier {
	if logger == nil {
		logger = logging.Default().WithComponent("zone")
	}

	c := &Classifier{logger: logger}

	if homeNetCIDR != "" {
		_, ipnet, err := net.ParseCIDR(homeNetCIDR)
		if err != nil {
			logger.Warn("unparsable HOME_NET, defaulting to no home network", "value", homeNetCIDR, "error", err)
		} else {
			c.homeNet = ipnet
		}
	}

	for _, raw := range strings.Split(externalNetConfig, ",") {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		excluded := strings.HasPrefix(entry, "!")
		cidr := strings.TrimSpace(strings.TrimPrefix(entry, "!"))

		_, ipnet, err := net.ParseCIDR(cidr)
		if err != nil {
			logger.Warn("unparsable EXTERNAL_NET entry, skipping", "value", entry, "error", err)
			continue
		}
		c.externalNet = append(c.externalNet, token{network: ipnet, excluded: excluded})
	}

	return c
}

// IsHome reports whether ip parses and falls inside HOME_NET.
func (c *Classifier) IsHome(ip string) bool {
	if c.homeNet == nil {
		return false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return c.homeNet.Contains(parsed)
}

// IsExternal reports EXTERNAL_NET membership with inclusion-first
// semantics (§4.3): inclusions are scanned first and the first inclusion
// hit wins; only if no inclusion matches do exclusions get a chance to
// veto. An IP matching neither is not external.
func (c *Classifier) IsExternal(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, t := range c.externalNet {
		if t.excluded {
			continue
		}
		if t.network.Contains(parsed) {
			return true
		}
	}

	for _, t := range c.externalNet {
		if t.excluded && t.network.Contains(parsed) {
			return false
		}
	}

	return false
}

// Direction applies the direction pre-filter of §4.3 for a candidate rule
// given the packet's source and destination addresses. Only once this
// returns true does the rule evaluator (internal/engine) run.
func (c *Classifier) Direction(dir rules.Direction, src, dst string) bool {
	switch dir {
	case rules.DirectionIn:
		return c.IsExternal(src) && c.IsHome(dst)
	case rules.DirectionOut:
		return c.IsHome(src) && c.IsExternal(dst)
	case rules.DirectionBoth:
		return (c.IsExternal(src) && c.IsHome(dst)) || (c.IsHome(src) && c.IsExternal(dst))
	default:
		return false
	}
}

// FinalGate implements the analyzer's last-chance check from §4.3: dispatch
// only if the rule is an explicit wildcard on src_ip, or the packet's
// source address actually belongs to HOME_NET or EXTERNAL_NET. This keeps
// loopback/link-local noise from triggering non-wildcard rules as long as
// neither zone covers those ranges; an EXTERNAL_NET inclusion such as
// 0.0.0.0/0 makes them external, and they then pass.
func (c *Classifier) FinalGate(ruleSrcIP, packetSrcIP string) bool {
	if ruleSrcIP == rules.Any {
		return true
	}
	return c.IsHome(packetSrcIP) || c.IsExternal(packetSrcIP)
}

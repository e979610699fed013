// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package firewall installs and removes per-source drop rules in the
// kernel packet filter (§4.6). The real implementation talks to nftables
// through an injectable connection interface so the blacklist and
// idempotent-replacement logic can be exercised without a kernel.
package firewall

import (
	"net"
	"strings"
	"sync"

	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/errors"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/logging"
)

// Blocker installs and removes drops for a source address and can clear
// every drop it has installed (§4.8, supervisor shutdown).
type Blocker interface {
	InstallDrop(ip string) error
	RemoveDrop(ip string) error
	ClearAllDrops() error
}

// sanitizeHost strips a ":port" suffix from addr, per §4.6's "sanitize
// any host:port form by taking the host portion only". Addresses with no
// colon, and bare IPv6 literals, pass through unchanged.
func sanitizeHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
}

// Blacklist tracks which source addresses currently have an installed
// drop, so a repeat match can be recognized as a reinstall rather than a
// stack (§4.6, testable property 6).
type Blacklist struct {
	mu      sync.Mutex
	members map[string]bool
}

// NewBlacklist creates an empty blacklist.
func NewBlacklist() *Blacklist {
	return &Blacklist{members: make(map[string]bool)}
}

// Contains reports whether ip is currently blacklisted.
func (b *Blacklist) Contains(ip string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.members[ip]
}

// Add records ip as blacklisted.
func (b *Blacklist) Add(ip string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.members[ip] = true
}

// Remove clears ip's blacklist membership.
func (b *Blacklist) Remove(ip string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.members, ip)
}

// Members returns every currently blacklisted address.
func (b *Blacklist) Members() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.members))
	for ip := range b.members {
		out = append(out, ip)
	}
	return out
}

// Clear empties the blacklist and returns the addresses it held, so the
// caller can issue one RemoveDrop per address.
func (b *Blacklist) Clear() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.members))
	for ip := range b.members {
		out = append(out, ip)
	}
	b.members = make(map[string]bool)
	return out
}

// BlockManager implements analyzer.Blocker on top of a Blocker and a
// Blacklist, supplying the idempotent remove-then-reinstall semantics of
// §4.6: a source already blacklisted has its drop removed and reinstalled
// rather than stacked.
type BlockManager struct {
	blocker   Blocker
	blacklist *Blacklist
	logger    *logging.Logger
	metrics   Metrics
}

// Metrics receives blacklist-size observations from BlockManager.
// internal/metrics.Registry satisfies this; tests can leave it nil.
type Metrics interface {
	SetBlacklistedCount(n int)
}

// NewBlockManager wires a Blocker implementation to a fresh blacklist.
func NewBlockManager(blocker Blocker, logger *logging.Logger) *BlockManager {
	if logger == nil {
		logger = logging.Default().WithComponent("firewall")
	}
	return &BlockManager{
		blocker:   blocker,
		blacklist: NewBlacklist(),
		logger:    logger,
	}
}

// SetMetrics attaches a metrics sink; nil disables observation.
func (m *BlockManager) SetMetrics(metrics Metrics) {
	m.metrics = metrics
}

// Block installs a drop for ip, sanitizing a host:port form first. If ip
// is already blacklisted its existing drop is removed before
// reinstalling, so repeated matches never stack duplicate rule pairs
// (§4.6, testable property 6, scenario S3).
func (m *BlockManager) Block(ip string) {
	host := sanitizeHost(ip)

	if m.blacklist.Contains(host) {
		if err := m.blocker.RemoveDrop(host); err != nil {
			m.logger.Warn("failed to remove existing drop before reinstall", "ip", host, "error", err)
		}
	}

	if err := m.blocker.InstallDrop(host); err != nil {
		m.logger.Error("failed to install drop", "ip", host, "error", err)
		return
	}
	m.blacklist.Add(host)
	if m.metrics != nil {
		m.metrics.SetBlacklistedCount(len(m.blacklist.Members()))
	}
}

// ClearAll removes every installed drop, used on supervisor shutdown
// (§4.8).
func (m *BlockManager) ClearAll() {
	for _, ip := range m.blacklist.Clear() {
		if err := m.blocker.RemoveDrop(ip); err != nil {
			m.logger.Warn("failed to remove drop during shutdown", "ip", ip, "error", err)
		}
	}
	if err := m.blocker.ClearAllDrops(); err != nil {
		m.logger.Warn("failed to clear firewall drops during shutdown", "error", err)
	}
	if m.metrics != nil {
		m.metrics.SetBlacklistedCount(0)
	}
}

func newInstallError(ip string, cause error) error {
	return errors.Wrap(errors.KindFirewall, "install drop for "+ip, cause)
}

func newRemoveError(ip string, cause error) error {
	return errors.Wrap(errors.KindFirewall, "remove drop for "+ip, cause)
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package firewall

import (
	"net"
	"sync"

	"github.com/google/nftables"
	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"
)

// NFTablesConn is the slice of *nftables.Conn that NFTablesBlocker needs.
// Production wires a real *nftables.Conn; a fake can be injected instead
// so drop installation can run without CAP_NET_ADMIN or a live kernel.
// The retrieved reference implementation used this same injectable-conn
// shape for its own nftables manager.
type NFTablesConn interface {
	AddTable(*nftables.Table) *nftables.Table
	AddChain(*nftables.Chain) *nftables.Chain
	AddRule(*nftables.Rule) *nftables.Rule
	DelRule(*nftables.Rule) error
	Flush() error
}

// NewRealNFTablesConn adapts a live *nftables.Conn to NFTablesConn.
func NewRealNFTablesConn(conn *nftables.Conn) NFTablesConn {
	return conn
}

// NFTablesBlocker installs per-IP drop rule pairs (INPUT + OUTPUT) in a
// dedicated inet table, via an injected NFTablesConn (§4.6).
type NFTablesBlocker struct {
	conn NFTablesConn

	mu         sync.Mutex
	table      *nftables.Table
	inputChain *nftables.Chain
	outChain   *nftables.Chain
	rulesByIP  map[string][]*nftables.Rule
}

// NewNFTablesBlocker creates a blocker backed by conn and provisions the
// table/chain pair it installs drops into.
func NewNFTablesBlocker(conn NFTablesConn) (*NFTablesBlocker, error) {
	b := &NFTablesBlocker{conn: conn, rulesByIP: make(map[string][]*nftables.Rule)}

	b.table = conn.AddTable(&nftables.Table{
		Name:   "ids_ips_drops",
		Family: nftables.TableFamilyINet,
	})
	b.inputChain = conn.AddChain(&nftables.Chain{
		Name:     "input_drops",
		Table:    b.table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookInput,
		Priority: nftables.ChainPriorityFilter,
	})
	b.outChain = conn.AddChain(&nftables.Chain{
		Name:     "output_drops",
		Table:    b.table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookOutput,
		Priority: nftables.ChainPriorityFilter,
	})

	if err := conn.Flush(); err != nil {
		return nil, newInstallError("table/chain setup", err)
	}
	return b, nil
}

// InstallDrop adds an INPUT rule matching src==ip and an OUTPUT rule
// matching dst==ip, both dropping.
func (b *NFTablesBlocker) InstallDrop(ip string) error {
	addr := net.ParseIP(ip)
	if addr == nil {
		return newInstallError(ip, errUnparsableIP)
	}
	v4 := addr.To4()
	if v4 == nil {
		return newInstallError(ip, errUnsupportedFamily)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	inputRule := b.conn.AddRule(&nftables.Rule{
		Table: b.table,
		Chain: b.inputChain,
		Exprs: matchIPExprs(12, v4), // offset 12: IPv4 source address
	})
	outputRule := b.conn.AddRule(&nftables.Rule{
		Table: b.table,
		Chain: b.outChain,
		Exprs: matchIPExprs(16, v4), // offset 16: IPv4 destination address
	})

	if err := b.conn.Flush(); err != nil {
		return newInstallError(ip, err)
	}

	b.rulesByIP[ip] = []*nftables.Rule{inputRule, outputRule}
	return nil
}

// RemoveDrop deletes any rules previously installed for ip. Removing an
// address with no installed rules is a no-op, keeping ClearAll/Block's
// remove-then-reinstall sequence safe to call unconditionally.
func (b *NFTablesBlocker) RemoveDrop(ip string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rules, ok := b.rulesByIP[ip]
	if !ok {
		return nil
	}
	delete(b.rulesByIP, ip)

	for _, r := range rules {
		if err := b.conn.DelRule(r); err != nil {
			return newRemoveError(ip, err)
		}
	}
	return b.conn.Flush()
}

// ClearAllDrops removes every rule this blocker has installed.
func (b *NFTablesBlocker) ClearAllDrops() error {
	b.mu.Lock()
	ips := make([]string, 0, len(b.rulesByIP))
	for ip := range b.rulesByIP {
		ips = append(ips, ip)
	}
	b.mu.Unlock()

	for _, ip := range ips {
		if err := b.RemoveDrop(ip); err != nil {
			return err
		}
	}
	return nil
}

// matchIPExprs builds the expression chain for "payload at offset ==
// addr, then drop" against the IPv4 header.
func matchIPExprs(offset uint32, addr net.IP) []expr.Any {
	return []expr.Any{
		&expr.Payload{
			DestRegister: 1,
			Base:         expr.PayloadBaseNetworkHeader,
			Offset:       offset,
			Len:          4,
		},
		&expr.Cmp{
			Op:       expr.CmpOpEq,
			Register: 1,
			Data:     binaryutil.BigEndian.PutUint32(ipToUint32(addr)),
		},
		&expr.Verdict{
			Kind: expr.VerdictDrop,
		},
	}
}

func ipToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
}

var (
	errUnparsableIP      = unix.EINVAL
	errUnsupportedFamily = unix.EAFNOSUPPORT
)

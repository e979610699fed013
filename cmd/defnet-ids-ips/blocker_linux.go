// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package main

import (
	"github.com/google/nftables"

	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/firewall"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/logging"
)

// newBlocker provisions the real nftables-backed firewall blocker (§4.6,
// §6 "External firewall"). A failure to reach netlink (missing
// CAP_NET_ADMIN, no nftables support) degrades to no firewall action
// rather than a fatal startup error — block rules still fire alerts.
func newBlocker(logger *logging.Logger) firewall.Blocker {
	conn, err := nftables.New()
	if err != nil {
		logger.Warn("nftables unavailable, block rules will not install firewall drops", "error", err)
		return nil
	}

	blocker, err := firewall.NewNFTablesBlocker(firewall.NewRealNFTablesConn(conn))
	if err != nil {
		logger.Warn("failed to provision nftables table/chains, block rules will not install firewall drops", "error", err)
		return nil
	}
	return blocker
}

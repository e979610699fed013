// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux
// +build !linux

package main

import (
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/firewall"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/logging"
)

// newBlocker has no nftables-backed implementation off Linux; block rules
// still fire alerts but install no kernel-level drop.
func newBlocker(logger *logging.Logger) firewall.Blocker {
	logger.Warn("firewall blocking is only implemented on linux; block rules will not install drops on this platform")
	return nil
}

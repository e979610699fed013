// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command defnet-ids-ips is the CLI front end for the packet classification
// and alerting pipeline (§6, §13). It owns argument parsing, log file
// initialization, and process lifecycle; everything else is delegated to
// internal/supervisor.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/config"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/firewall"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/logging"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/metrics"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/supervisor"
)

// logFilePath is the fixed log destination named in §6.
const logFilePath = "/tmp/openwrt-ids-ips.log"

const defaultRulesPath = "./rules/config_rules.json"

func main() {
	iface := flag.String("i", "", "network interface to capture on (e.g. eth0, wlan0)")
	flag.StringVar(iface, "interface", "", "network interface to capture on (e.g. eth0, wlan0)")
	rulesPath := flag.String("c", defaultRulesPath, "path to the rules configuration file")
	flag.StringVar(rulesPath, "config", defaultRulesPath, "path to the rules configuration file")
	homeNet := flag.String("home-net", "", "HOME_NET CIDR override (default: config_settings.json's HOME_NET, or "+config.DefaultHomeNet)
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus /metrics on (disabled if empty)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: defnet-ids-ips -i <interface> [-c <rules-file>] [--home-net <cidr>] <start|stop|update-rules>")
		os.Exit(2)
	}
	command := args[0]

	logFile, err := truncateLogFile()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", logFilePath, err)
		os.Exit(1)
	}
	defer logFile.Close()

	logger := logging.New(logging.Config{Level: "info", Output: logFile})

	switch command {
	case "start":
		runStart(*iface, *rulesPath, *homeNet, *metricsAddr, logger)
	case "stop":
		logger.Info("stop command received; there is no out-of-process IPC to stop a running instance")
	case "update-rules":
		runUpdateRules(*rulesPath, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected start, stop, or update-rules)\n", command)
		os.Exit(2)
	}
}

func truncateLogFile() (*os.File, error) {
	return os.OpenFile(logFilePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

func runStart(iface, rulesPath, homeNet, metricsAddr string, logger *logging.Logger) {
	if iface == "" {
		fmt.Fprintln(os.Stderr, "the start command requires -i/--interface")
		os.Exit(1)
	}

	registry := metrics.NewRegistry()

	opts := supervisor.Options{
		Interface:       iface,
		ConfigDir:       filepath.Dir(rulesPath),
		HomeNetOverride: homeNet,
		Blocker:         newBlocker(logger),
		Logger:          logger,
		Metrics:         registry,
	}

	sup, err := supervisor.New(opts)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}

	if metricsAddr != "" {
		go serveMetrics(metricsAddr, logger)
	}

	sup.Run()
}

func runUpdateRules(rulesPath string, logger *logging.Logger) {
	rules, err := config.LoadRules(rulesPath, logger)
	if err != nil {
		logger.Error("failed to reload rules", "path", rulesPath, "error", err)
		os.Exit(1)
	}
	logger.Info("rules reloaded", "path", rulesPath, "count", len(rules))
	fmt.Printf("loaded %d rules from %s\n", len(rules), rulesPath)
}

func serveMetrics(addr string, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package supervisor wires the capture, analyzer, and notification
// aggregator workers together, owns their lifecycle, and handles
// termination signals (§4.8). It is the only place in the module that
// reads os.Signal or owns a pcap handle directly — everything else takes
// constructor arguments, grounded on the Python ServiceManager this
// package replaces (original_source/services/service_manager.py).
package supervisor

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/analyzer"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/capture"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/config"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/errors"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/firewall"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/logging"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/metrics"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/notification"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/zone"
)

// queueCapacity is the bounded packet queue size (§5 recommends 100-1000).
const queueCapacity = 500

// Options configures a supervisor Run invocation.
type Options struct {
	// Interface is the network interface to capture on (-i/--interface).
	Interface string
	// ConfigDir is the directory holding config_protocols.json,
	// config_settings.json and config_rules.json. The CLI's -c/--config
	// flag names the rules file (§6); its parent directory is what gets
	// passed here, so all three conventionally-named files are expected
	// to live alongside it.
	ConfigDir string
	// HomeNetOverride, if non-empty, takes precedence over
	// config_settings.json's HOME_NET (--home-net).
	HomeNetOverride string
	// NotificationConfig overrides the aggregator's endpoint/window/batch
	// size; zero values fall back to the §4.7 defaults.
	NotificationConfig notification.Config
	// Blocker installs/removes firewall drops (§4.6). A nil Blocker means
	// block rules still fire alerts but install no kernel-level drop.
	Blocker firewall.Blocker
	// Logger is the base logger every worker derives its own
	// WithComponent logger from. Defaults to logging.Default().
	Logger *logging.Logger
	// Metrics is the Prometheus registry workers report into. Nil
	// disables metrics observation entirely.
	Metrics *metrics.Registry
}

// Supervisor owns the capture, analyzer, and aggregator workers and the
// cooperative stop flag they share (§4.8, §5).
type Supervisor struct {
	capturer   *capture.Capturer
	analyzer   *analyzer.Analyzer
	aggregator *notification.Aggregator
	blockMgr   *firewall.BlockManager
	logger     *logging.Logger
}

// New constructs every worker from opts but does not start them. Capture
// errors (bad interface, permission denied) and a rules file that cannot
// be read or parsed are returned immediately and are fatal at startup;
// a missing or malformed protocols/settings file or an individual bad
// rule degrades per the configuration-error policy (§7).
func New(opts Options) (*Supervisor, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	store, settings, loadedRules, err := config.BuildStore(opts.ConfigDir, opts.HomeNetOverride, logger.WithComponent("config"))
	if err != nil {
		return nil, err
	}

	classifier := zone.New(settings.HomeNet, settings.ExternalNet, logger.WithComponent("zone"))
	maxWindow := time.Duration(config.MaxThresholdWindow(loadedRules)) * time.Second

	source, err := capture.NewLiveSource(opts.Interface)
	if err != nil {
		return nil, errors.Wrap(errors.KindCapture, "open interface "+opts.Interface, err)
	}

	queue := capture.NewQueue(queueCapacity)
	capturer := capture.NewCapturer(source, queue, logger.WithComponent("capture"))

	aggCfg := opts.NotificationConfig
	aggregator := notification.New(aggCfg, logger.WithComponent("notification"))

	var blockMgr *firewall.BlockManager
	var blocker analyzer.Blocker
	if opts.Blocker != nil {
		blockMgr = firewall.NewBlockManager(opts.Blocker, logger.WithComponent("firewall"))
		blocker = blockManagerAdapter{blockMgr}
	}

	az := analyzer.New(queue, store, classifier, aggregator, blocker, maxWindow, logger.WithComponent("analyzer"))

	if opts.Metrics != nil {
		opts.Metrics.MustRegister()
		queue.SetMetrics(opts.Metrics)
		az.SetMetrics(opts.Metrics)
		aggregator.SetMetrics(opts.Metrics)
		if blockMgr != nil {
			blockMgr.SetMetrics(opts.Metrics)
		}
	}

	return &Supervisor{
		capturer:   capturer,
		analyzer:   az,
		aggregator: aggregator,
		blockMgr:   blockMgr,
		logger:     logger.WithComponent("supervisor"),
	}, nil
}

// blockManagerAdapter adapts *firewall.BlockManager to analyzer.Blocker so
// the analyzer package never needs to import internal/firewall.
type blockManagerAdapter struct {
	mgr *firewall.BlockManager
}

func (b blockManagerAdapter) Block(ip string) { b.mgr.Block(ip) }

// Run starts all three workers, blocks until SIGINT/SIGTERM is received,
// then stops every worker in turn and clears the blacklist (§4.8). It
// returns once shutdown is complete. Calling Stop directly stops the
// workers but does not make Run return; only a signal does.
func (s *Supervisor) Run() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go s.capturer.Run()
	go s.analyzer.Run()
	go s.aggregator.Run()

	s.logger.Info("service started")

	sig := <-sigCh
	s.logger.Info("termination signal received, shutting down", "signal", sig.String())
	s.Stop()
}

// Stop requests every worker to finish and clears the blacklist. Safe to
// call directly (without waiting for a signal) from tests or an
// alternative front end.
func (s *Supervisor) Stop() {
	s.capturer.Stop()
	s.analyzer.Stop()
	s.aggregator.Stop()

	if s.blockMgr != nil {
		s.blockMgr.ClearAll()
	}
	s.logger.Info("service stopped")
}

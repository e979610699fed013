// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads the three JSON configuration files named in §6
// (config_protocols.json, config_settings.json, config_rules.json) from a
// directory and turns them into the in-memory shapes the rest of the
// pipeline consumes. Per §7, a missing or malformed protocols/settings
// file degrades to an empty/default value and a logged error rather than
// a fatal startup error; a malformed individual rule is skipped while the
// rest of the file loads, grounded on the original Python
// RuleParser/ConfigService's same permissive behavior.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/errors"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/logging"
	"github.com/DefNet-Enterprise-Mobile-Application/Defnet-IDS-IPS/internal/rules"
)

// DefaultHomeNet is used when --home-net is not supplied on the CLI and
// config_settings.json carries no HOME_NET entry.
const DefaultHomeNet = "192.168.1.0/24"

// ProtocolsFile, SettingsFile and RulesFile are the fixed filenames §6
// specifies, each resolved relative to a config directory.
const (
	ProtocolsFile = "config_protocols.json"
	SettingsFile  = "config_settings.json"
	RulesFile     = "config_rules.json"
)

// Settings is the decoded form of config_settings.json's "settings" object.
type Settings struct {
	HomeNet     string
	ExternalNet string
}

// rawProtocols / rawSettings / rawRules mirror the on-disk JSON shapes of
// §6 exactly, including the wrapping "protocols"/"settings"/"rules" keys.
type rawProtocols struct {
	Protocols []string `json:"protocols"`
}

type rawSettings struct {
	Settings struct {
		HomeNet     string `json:"HOME_NET"`
		ExternalNet string `json:"EXTERNAL_NET"`
	} `json:"settings"`
}

type rawRule struct {
	RuleID      string          `json:"rule_id"`
	Protocol    string          `json:"protocol"`
	SrcIP       string          `json:"src_ip"`
	DstIP       string          `json:"dst_ip"`
	SrcPort     string          `json:"src_port"`
	DstPort     string          `json:"dst_port"`
	Action      string          `json:"action"`
	Description string          `json:"description"`
	Direction   string          `json:"direction"`
	Flags       []string        `json:"flags"`
	Threshold   *rawThreshold   `json:"threshold"`
}

type rawThreshold struct {
	Count int `json:"count"`
	Time  int `json:"time"`
}

type rawRules struct {
	Rules []rawRule `json:"rules"`
}

// LoadProtocols reads config_protocols.json from dir. On any read/parse
// failure it logs the error and returns an empty list rather than failing
// startup, per §7.
func LoadProtocols(dir string, logger *logging.Logger) []string {
	logger = fallbackLogger(logger)
	path := filepath.Join(dir, ProtocolsFile)

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("failed to read protocols config, defaulting to empty list", "path", path, "error", err)
		return nil
	}

	var raw rawProtocols
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Error("failed to parse protocols config, defaulting to empty list", "path", path, "error", err)
		return nil
	}
	return raw.Protocols
}

// LoadSettings reads config_settings.json from dir. On any read/parse
// failure it logs the error and returns a zero-value Settings (no
// HOME_NET, no EXTERNAL_NET), matching the Python ConfigService's
// fallback-to-`{}` behavior.
func LoadSettings(dir string, logger *logging.Logger) Settings {
	logger = fallbackLogger(logger)
	path := filepath.Join(dir, SettingsFile)

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("failed to read settings config, defaulting to empty settings", "path", path, "error", err)
		return Settings{}
	}

	var raw rawSettings
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Error("failed to parse settings config, defaulting to empty settings", "path", path, "error", err)
		return Settings{}
	}
	return Settings{HomeNet: raw.Settings.HomeNet, ExternalNet: raw.Settings.ExternalNet}
}

// LoadRules reads a rules JSON file (normally config_rules.json, but
// update-rules may point at an arbitrary path) and returns every rule that
// parsed successfully. A malformed individual rule — missing rule_id,
// protocol, or an unrecognized action — is skipped with a logged warning;
// the rest of the file still loads (§7, SPEC_FULL.md §12's note on
// RuleParser's default-fallback behavior: a missing/unrecognized action is
// treated as a per-rule load failure rather than silently loaded as a
// no-op).
func LoadRules(path string, logger *logging.Logger) ([]rules.Rule, error) {
	logger = fallbackLogger(logger)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, "read rules file "+path, err)
	}

	var raw rawRules
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.KindConfig, "parse rules file "+path, err)
	}

	out := make([]rules.Rule, 0, len(raw.Rules))
	for i, rr := range raw.Rules {
		rule, err := toRule(rr)
		if err != nil {
			logger.Warn("skipping malformed rule", "index", i, "rule_id", rr.RuleID, "error", err)
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

func toRule(rr rawRule) (rules.Rule, error) {
	if rr.RuleID == "" {
		return rules.Rule{}, errors.New(errors.KindValidation, "rule_id is required")
	}
	if rr.Protocol == "" {
		return rules.Rule{}, errors.New(errors.KindValidation, "protocol is required")
	}

	action := rules.Action(rr.Action)
	switch action {
	case rules.ActionAlert, rules.ActionBlock, rules.ActionLog:
	default:
		return rules.Rule{}, errors.Errorf(errors.KindValidation, "unrecognized action %q", rr.Action)
	}

	direction := rules.Direction(rr.Direction)
	if direction == "" {
		direction = rules.DirectionBoth
	}

	srcIP := defaultAny(rr.SrcIP)
	dstIP := defaultAny(rr.DstIP)
	srcPort := defaultAny(rr.SrcPort)
	dstPort := defaultAny(rr.DstPort)

	threshold := rules.DefaultThreshold()
	if rr.Threshold != nil {
		threshold = rules.Threshold{Count: rr.Threshold.Count, Time: rr.Threshold.Time}
		if threshold.Count == 0 {
			threshold.Count = rules.DefaultThreshold().Count
		}
		if threshold.Time == 0 {
			threshold.Time = rules.DefaultThreshold().Time
		}
	}

	return rules.Rule{
		ID:          rr.RuleID,
		Protocol:    rr.Protocol,
		SrcIP:       srcIP,
		DstIP:       dstIP,
		SrcPort:     srcPort,
		DstPort:     dstPort,
		Action:      action,
		Description: rr.Description,
		Direction:   direction,
		Flags:       rr.Flags,
		Threshold:   threshold,
	}, nil
}

func defaultAny(v string) string {
	if v == "" {
		return rules.Any
	}
	return v
}

// BuildStore loads protocols, rules, and settings from dir and returns a
// populated rule store, the resolved zone settings, and the flat rule list
// (so callers can derive things like the longest threshold window without
// re-reading the rules file). homeNetOverride, when non-empty, takes
// precedence over config_settings.json's HOME_NET — this is the CLI's
// --home-net flag (§6, §13).
func BuildStore(dir string, homeNetOverride string, logger *logging.Logger) (*rules.Store, Settings, []rules.Rule, error) {
	logger = fallbackLogger(logger)

	protocols := LoadProtocols(dir, logger)
	store := rules.NewStore(protocols)

	loaded, err := LoadRules(filepath.Join(dir, RulesFile), logger)
	if err != nil {
		return nil, Settings{}, nil, err
	}

	for _, r := range loaded {
		store.RegisterProtocol(r.Protocol)
		if err := store.Insert(r.Protocol, r); err != nil {
			logger.Warn("skipping rule during load", "rule_id", r.ID, "error", err)
		}
	}

	settings := LoadSettings(dir, logger)
	if homeNetOverride != "" {
		settings.HomeNet = homeNetOverride
	} else if settings.HomeNet == "" {
		settings.HomeNet = DefaultHomeNet
	}

	return store, settings, loaded, nil
}

// MaxThresholdWindow returns the longest threshold.Time among rules, used
// by the analyzer to bound History.Prune (Design Note 9). Returns 0 if
// rules is empty.
func MaxThresholdWindow(rules []rules.Rule) int {
	max := 0
	for _, r := range rules {
		if r.Threshold.Time > max {
			max = r.Threshold.Time
		}
	}
	return max
}

func fallbackLogger(l *logging.Logger) *logging.Logger {
	if l == nil {
		return logging.Default().WithComponent("config")
	}
	return l
}

// hot-reload.go: dynamic configuration with Argus integration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package skmv

import (
	"fmt"
	"sync"
	"time"

	"github.com/agilira/argus"
)

// HotConfig provides dynamic configuration reload capabilities using
// Argus. It watches a configuration file and tracks sketch settings as
// they change on disk.
//
// Only CleanEvery can change on a live sketch, and the sketch is
// single-writer: HotConfig therefore never mutates the sketch itself.
// It parses, validates and exposes the new configuration, and the
// ingestion thread applies it through OnReload (typically by calling
// SetCleanEvery, or by rebuilding the sketch when structural parameters
// changed).
type HotConfig struct {
	watcher *argus.Watcher
	logger  Logger
	mu      sync.RWMutex
	config  Config

	// OnReload is called after configuration is successfully reloaded.
	// This callback is optional and must be fast and non-blocking.
	OnReload func(oldConfig, newConfig Config)
}

// HotConfigOptions configures hot reload behavior.
type HotConfigOptions struct {
	// ConfigPath is the path to the configuration file to watch.
	// Supports JSON, YAML, TOML, HCL, INI, Properties formats.
	ConfigPath string

	// PollInterval is how often to check for configuration changes.
	// Default: 1 second. Minimum: 100ms.
	PollInterval time.Duration

	// OnReload is called after configuration is successfully reloaded.
	OnReload func(oldConfig, newConfig Config)

	// Logger for hot reload operations. If nil, NoOpLogger is used.
	Logger Logger
}

// NewHotConfig creates a hot-reloadable configuration watcher.
// It does not start watching until Start is called.
//
// Example configuration file (YAML):
//
//	sketch:
//	  window_size: 60000
//	  k: 64
//	  m: 64
//	  delta1: 32
//	  delta2: 24
//	  clean_every: 30000
//
// Note: changes to WindowSize, K, M, Delta1 or Delta2 require sketch
// reconstruction and cannot be applied to a live sketch; only CleanEvery
// can be applied dynamically, via SetCleanEvery from the writer.
func NewHotConfig(opts HotConfigOptions) (*HotConfig, error) {
	if opts.ConfigPath == "" {
		return nil, fmt.Errorf("config_path is required")
	}

	if opts.PollInterval == 0 {
		opts.PollInterval = 1 * time.Second
	} else if opts.PollInterval < 100*time.Millisecond {
		opts.PollInterval = 100 * time.Millisecond
	}

	if opts.Logger == nil {
		opts.Logger = NoOpLogger{}
	}

	hc := &HotConfig{
		logger:   opts.Logger,
		OnReload: opts.OnReload,
		config:   DefaultConfig(),
	}

	argusConfig := argus.Config{
		PollInterval: opts.PollInterval,
	}

	watcher, err := argus.UniversalConfigWatcherWithConfig(opts.ConfigPath, hc.handleConfigChange, argusConfig)
	if err != nil {
		return nil, err
	}
	hc.watcher = watcher

	return hc, nil
}

// Start begins watching the configuration file for changes.
func (hc *HotConfig) Start() error {
	if hc.watcher.IsRunning() {
		return nil
	}
	return hc.watcher.Start()
}

// Stop stops watching the configuration file.
func (hc *HotConfig) Stop() error {
	return hc.watcher.Stop()
}

// GetConfig returns the current configuration (thread-safe).
func (hc *HotConfig) GetConfig() Config {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.config
}

// handleConfigChange is called by Argus when configuration changes.
func (hc *HotConfig) handleConfigChange(configData map[string]interface{}) {
	hc.mu.Lock()
	oldConfig := hc.config
	newConfig := hc.parseConfig(configData)
	hc.config = newConfig
	hc.mu.Unlock()

	if structuralChange(oldConfig, newConfig) {
		hc.logger.Warn("structural sketch parameters changed; rebuild required",
			"window_size", newConfig.WindowSize,
			"k", newConfig.K,
			"m", newConfig.M,
		)
	} else if oldConfig.CleanEvery != newConfig.CleanEvery {
		hc.logger.Info("cleaning interval changed",
			"old", oldConfig.CleanEvery,
			"new", newConfig.CleanEvery,
		)
	}

	if hc.OnReload != nil {
		hc.OnReload(oldConfig, newConfig)
	}
}

// structuralChange reports whether the change cannot be applied to a
// live sketch.
func structuralChange(old, new Config) bool {
	return old.WindowSize != new.WindowSize ||
		old.K != new.K ||
		old.M != new.M ||
		old.Delta1 != new.Delta1 ||
		old.Delta2 != new.Delta2
}

// parseUint64 extracts a non-negative integer from an interface{} value.
// Supports int and float64 (YAML/JSON may vary).
func parseUint64(value interface{}) (uint64, bool) {
	switch v := value.(type) {
	case int:
		if v >= 0 {
			return uint64(v), true
		}
	case float64:
		if v >= 0 {
			return uint64(v), true
		}
	}
	return 0, false
}

// parseIntInRange extracts an integer within [min, max].
func parseIntInRange(value interface{}, min, max int) (int, bool) {
	switch v := value.(type) {
	case int:
		if v >= min && v <= max {
			return v, true
		}
	case float64:
		if v >= float64(min) && v <= float64(max) {
			return int(v), true
		}
	}
	return 0, false
}

// parseConfig extracts sketch configuration from Argus config data.
func (hc *HotConfig) parseConfig(data map[string]interface{}) Config {
	config := DefaultConfig()

	sketchSection, ok := data["sketch"].(map[string]interface{})
	if !ok {
		// Try if the whole data IS the sketch section
		if _, hasWindow := data["window_size"]; hasWindow {
			sketchSection = data
		} else {
			return config
		}
	}

	if windowSize, ok := parseUint64(sketchSection["window_size"]); ok && windowSize > 0 {
		config.WindowSize = windowSize
	}
	if k, ok := parseIntInRange(sketchSection["k"], 1, 1<<20); ok {
		config.K = k
	}
	if m, ok := parseIntInRange(sketchSection["m"], 1, 1<<20); ok {
		config.M = m
	}
	if delta1, ok := parseIntInRange(sketchSection["delta1"], 1, 64); ok {
		config.Delta1 = delta1
	}
	if delta2, ok := parseIntInRange(sketchSection["delta2"], 1, 63); ok {
		config.Delta2 = delta2
	}
	if cleanEvery, ok := parseUint64(sketchSection["clean_every"]); ok {
		config.CleanEvery = cleanEvery
	}

	return config
}

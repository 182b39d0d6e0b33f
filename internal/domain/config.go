package domain

import (
	"fmt"
	"time"
)

// Config is the validated runtime configuration.
type Config struct {
	// Platform tags every signature; normally the host OS family.
	Platform string

	// StoragePath is the bbolt database backing the script cache.
	StoragePath string

	// TierTimeouts bounds each tier's executor; kinds without an entry
	// use DefaultTierTimeout.
	TierTimeouts       map[ToolKind]time.Duration
	DefaultTierTimeout time.Duration

	// ValidationTimeout bounds a generated script's validation run.
	ValidationTimeout time.Duration

	// IdleHorizon evicts cache entries unused for longer than this.
	IdleHorizon time.Duration
	// CleanupInterval is the period of the idle-horizon sweep.
	CleanupInterval time.Duration

	// RediscoverInterval re-runs discovery periodically; zero disables.
	RediscoverInterval time.Duration

	// ManifestDirs are directories of YAML tool manifests.
	ManifestDirs []string
	// CLIProbes lists command-line tools to probe at discovery time.
	CLIProbes []CLIProbeSpec

	FailureRingCapacity int

	Observability ObservabilityConfig
}

// CLIProbeSpec describes one command-line tool the CLI discoverer
// should probe for.
type CLIProbeSpec struct {
	ActionName  string   `json:"actionName"`
	Command     string   `json:"command"`
	Exec        []string `json:"exec"`
	Description string   `json:"description,omitempty"`
}

// ObservabilityConfig configures the metrics/health HTTP listener.
type ObservabilityConfig struct {
	ListenAddress string
	EnableAPI     bool
}

// TierTimeout returns the timeout for a kind.
func (c Config) TierTimeout(kind ToolKind) time.Duration {
	if timeout, ok := c.TierTimeouts[kind]; ok && timeout > 0 {
		return timeout
	}
	if c.DefaultTierTimeout > 0 {
		return c.DefaultTierTimeout
	}
	return DefaultTierTimeoutSeconds * time.Second
}

// Validate checks the configuration for structural problems.
func (c Config) Validate() error {
	if c.StoragePath == "" {
		return fmt.Errorf("storagePath is required")
	}
	if c.IdleHorizon < 0 {
		return fmt.Errorf("idleHorizonDays must not be negative")
	}
	for _, probe := range c.CLIProbes {
		if probe.ActionName == "" {
			return fmt.Errorf("cli probe action name is required")
		}
		if probe.Command == "" {
			return fmt.Errorf("cli probe %s: command is required", probe.ActionName)
		}
	}
	return nil
}

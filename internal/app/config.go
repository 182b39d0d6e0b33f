package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"resolvd/internal/domain"
)

// ConfigLoader reads and validates the daemon configuration file.
type ConfigLoader struct {
	logger *zap.Logger
}

func NewConfigLoader(logger *zap.Logger) *ConfigLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigLoader{logger: logger.Named("config")}
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setConfigDefaults(v)
	return v
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("platform", domain.DefaultPlatform)
	v.SetDefault("storagePath", defaultStoragePath())
	v.SetDefault("tierTimeoutSeconds", domain.DefaultTierTimeoutSeconds)
	v.SetDefault("validationTimeoutSeconds", domain.DefaultValidationTimeoutSeconds)
	v.SetDefault("idleHorizonDays", domain.DefaultIdleHorizonDays)
	v.SetDefault("cleanupIntervalSeconds", domain.DefaultCleanupIntervalSeconds)
	v.SetDefault("rediscoverSeconds", domain.DefaultRediscoverSeconds)
	v.SetDefault("failureRingCapacity", domain.DefaultFailureRingCapacity)
	v.SetDefault("observability.listenAddress", domain.DefaultObservabilityListenAddress)
	v.SetDefault("observability.enableAPI", true)
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "resolvd.db"
	}
	return filepath.Join(home, ".resolvd", "scripts.db")
}

type rawConfig struct {
	Platform                 string               `mapstructure:"platform"`
	StoragePath              string               `mapstructure:"storagePath"`
	TierTimeoutSeconds       int                  `mapstructure:"tierTimeoutSeconds"`
	TierTimeouts             map[string]int       `mapstructure:"tierTimeouts"`
	ValidationTimeoutSeconds int                  `mapstructure:"validationTimeoutSeconds"`
	IdleHorizonDays          int                  `mapstructure:"idleHorizonDays"`
	CleanupIntervalSeconds   int                  `mapstructure:"cleanupIntervalSeconds"`
	RediscoverSeconds        int                  `mapstructure:"rediscoverSeconds"`
	ManifestDirs             []string             `mapstructure:"manifestDirs"`
	CLIProbes                []rawCLIProbe        `mapstructure:"cliProbes"`
	FailureRingCapacity      int                  `mapstructure:"failureRingCapacity"`
	Synthesizer              rawSynthesizerConfig `mapstructure:"synthesizer"`
	Observability            rawObservability     `mapstructure:"observability"`
}

type rawCLIProbe struct {
	Action      string   `mapstructure:"action"`
	Command     string   `mapstructure:"command"`
	Exec        []string `mapstructure:"exec"`
	Description string   `mapstructure:"description"`
}

type rawSynthesizerConfig struct {
	Exec []string `mapstructure:"exec"`
}

type rawObservability struct {
	ListenAddress string `mapstructure:"listenAddress"`
	EnableAPI     bool   `mapstructure:"enableAPI"`
}

// Config extends the core runtime configuration with app-level wiring
// that only the daemon cares about.
type Config struct {
	domain.Config

	// SynthesizerExec is the external synthesis command; empty disables
	// the generated-script tier's synthesis path.
	SynthesizerExec []string
}

// Load reads the config file at path. A missing file yields the
// defaults so the daemon can start with zero configuration.
func (l *ConfigLoader) Load(path string) (Config, error) {
	v := newConfigViper()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := v.ReadConfig(strings.NewReader(string(raw))); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			l.logger.Info("config file absent, using defaults", zap.String("path", path))
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return buildConfig(raw)
}

func buildConfig(raw rawConfig) (Config, error) {
	tierTimeouts := make(map[domain.ToolKind]time.Duration, len(raw.TierTimeouts))
	for name, seconds := range raw.TierTimeouts {
		kind, err := domain.ParseToolKind(name)
		if err != nil {
			return Config{}, fmt.Errorf("tierTimeouts: %w", err)
		}
		if seconds <= 0 {
			return Config{}, fmt.Errorf("tierTimeouts.%s must be positive", name)
		}
		tierTimeouts[kind] = time.Duration(seconds) * time.Second
	}

	probes := make([]domain.CLIProbeSpec, 0, len(raw.CLIProbes))
	for _, probe := range raw.CLIProbes {
		probes = append(probes, domain.CLIProbeSpec{
			ActionName:  probe.Action,
			Command:     probe.Command,
			Exec:        probe.Exec,
			Description: probe.Description,
		})
	}

	cfg := Config{
		Config: domain.Config{
			Platform:            raw.Platform,
			StoragePath:         raw.StoragePath,
			TierTimeouts:        tierTimeouts,
			DefaultTierTimeout:  time.Duration(raw.TierTimeoutSeconds) * time.Second,
			ValidationTimeout:   time.Duration(raw.ValidationTimeoutSeconds) * time.Second,
			IdleHorizon:         time.Duration(raw.IdleHorizonDays) * 24 * time.Hour,
			CleanupInterval:     time.Duration(raw.CleanupIntervalSeconds) * time.Second,
			RediscoverInterval:  time.Duration(raw.RediscoverSeconds) * time.Second,
			ManifestDirs:        raw.ManifestDirs,
			CLIProbes:           probes,
			FailureRingCapacity: raw.FailureRingCapacity,
			Observability: domain.ObservabilityConfig{
				ListenAddress: raw.Observability.ListenAddress,
				EnableAPI:     raw.Observability.EnableAPI,
			},
		},
		SynthesizerExec: raw.Synthesizer.Exec,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, domain.Wrap(domain.CodeInvalidArgument, "config.load", err)
	}
	return cfg, nil
}

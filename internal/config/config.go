package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	Log      LogConfig
	Detector DetectorConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// DetectorConfig holds the recurring-pattern detection thresholds. They are
// deliberately configuration rather than constants buried in the detector:
// the right values depend on how noisy a user's ledger is.
type DetectorConfig struct {
	// MinOccurrences is the smallest group that can become a candidate.
	MinOccurrences int `mapstructure:"min_occurrences"`
	// GapTolerance is the allowed relative deviation of day-gaps from a
	// canonical interval (0.2 = ±20%), with an absolute floor of two days.
	GapTolerance float64 `mapstructure:"gap_tolerance"`
	// AmountTolerance is the relative tolerance for treating two amounts
	// as the same obligation (0.04 = ±4%).
	AmountTolerance float64 `mapstructure:"amount_tolerance"`
	// LookbackMonths bounds how far back detection scans.
	LookbackMonths int `mapstructure:"lookback_months"`
}

// Load reads configuration from file and env. Env var overrides use prefix TALLY_.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "tally", "tally.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("detector.min_occurrences", 3)
	v.SetDefault("detector.gap_tolerance", 0.2)
	v.SetDefault("detector.amount_tolerance", 0.04)
	v.SetDefault("detector.lookback_months", 24)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("TALLY_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "tally"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("TALLY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// DefaultDetector returns the built-in thresholds, for callers constructing
// the engine without going through Load.
func DefaultDetector() DetectorConfig {
	return DetectorConfig{
		MinOccurrences:  3,
		GapTolerance:    0.2,
		AmountTolerance: 0.04,
		LookbackMonths:  24,
	}
}

// Package config provides configuration management for the backtester.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/jsj9346/spock-sub005/internal/costs"
	"github.com/jsj9346/spock-sub005/internal/engine"
	"github.com/jsj9346/spock-sub005/internal/logging"
	"github.com/jsj9346/spock-sub005/internal/metrics"
	"github.com/jsj9346/spock-sub005/internal/ticks"
	"github.com/jsj9346/spock-sub005/internal/validator"
	"github.com/jsj9346/spock-sub005/internal/walkforward"
)

// Config holds all application configuration.
type Config struct {
	Data        DataConfig         `mapstructure:"data"`
	Engine      engine.Config      `mapstructure:"engine"`
	Costs       costs.Config       `mapstructure:"costs"`
	Ticks       []ticks.Tier       `mapstructure:"ticks"`
	Metrics     metrics.Config     `mapstructure:"metrics"`
	Validation  validator.Config   `mapstructure:"validation"`
	Regression  RegressionConfig   `mapstructure:"regression"`
	WalkForward walkforward.Config `mapstructure:"walkforward"`
	Logging     logging.LogConfig  `mapstructure:"logging"`
}

// DataConfig holds market data and run-state configuration.
type DataConfig struct {
	DBPath      string  `mapstructure:"db_path"`
	Timeframe   string  `mapstructure:"timeframe"`
	InitialCash float64 `mapstructure:"initial_cash"`
}

// RegressionConfig holds reference store configuration.
type RegressionConfig struct {
	ReferenceDir string             `mapstructure:"reference_dir"`
	HistoryPath  string             `mapstructure:"history_path"`
	Tolerances   map[string]float64 `mapstructure:"tolerances"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/backtester"
	}
	return filepath.Join(home, ".config", "backtester")
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := DefaultConfigDir()
	return &Config{
		Data: DataConfig{
			DBPath:      filepath.Join(dir, "market.db"),
			Timeframe:   "day",
			InitialCash: 10_000_000,
		},
		Engine:      engine.DefaultConfig(),
		Costs:       costs.DefaultConfig(),
		Ticks:       ticks.DefaultTiers(),
		Metrics:     metrics.DefaultConfig(),
		Validation:  validator.DefaultConfig(),
		WalkForward: walkforward.DefaultConfig(),
		Regression: RegressionConfig{
			ReferenceDir: filepath.Join(dir, "references"),
			HistoryPath:  filepath.Join(dir, "validation_history.jsonl"),
		},
		Logging: logging.DefaultLogConfig(),
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create template
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BACKTESTER_DB_PATH"); v != "" {
		cfg.Data.DBPath = v
	}
	if v := os.Getenv("BACKTESTER_REFERENCE_DIR"); v != "" {
		cfg.Regression.ReferenceDir = v
	}
	if v := os.Getenv("BACKTESTER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// expandPaths resolves a leading "~" in configured filesystem paths
// against the user's home directory. TOML values get no shell expansion,
// so a literal "~/..." would otherwise become a "./~" directory.
func expandPaths(cfg *Config) {
	cfg.Data.DBPath = expandHome(cfg.Data.DBPath)
	cfg.Regression.ReferenceDir = expandHome(cfg.Regression.ReferenceDir)
	cfg.Regression.HistoryPath = expandHome(cfg.Regression.HistoryPath)
	cfg.Logging.FilePath = expandHome(cfg.Logging.FilePath)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/"))
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Data.InitialCash <= 0 {
		return fmt.Errorf("initial_cash must be positive")
	}
	if c.Engine.ParticipationCap < 0 || c.Engine.ParticipationCap > 1 {
		return fmt.Errorf("participation_cap must be in [0, 1]")
	}
	if c.Engine.PositionFraction <= 0 || c.Engine.PositionFraction > 1 {
		return fmt.Errorf("position_fraction must be in (0, 1]")
	}
	if c.Costs.TaxRate < 0 {
		return fmt.Errorf("tax_rate must be non-negative")
	}
	if c.Costs.Commission.BaseRate < 0 {
		return fmt.Errorf("commission base_rate must be non-negative")
	}
	if c.Validation.Tolerance < 0 {
		return fmt.Errorf("validation tolerance must be non-negative")
	}
	if c.Validation.PassThreshold < 0 || c.Validation.PassThreshold > 1 {
		return fmt.Errorf("pass_threshold must be between 0 and 1")
	}
	if c.WalkForward.Mode != walkforward.ModeRolling && c.WalkForward.Mode != walkforward.ModeAnchored {
		return fmt.Errorf("invalid walkforward mode: %s (must be 'rolling' or 'anchored')", c.WalkForward.Mode)
	}
	if c.WalkForward.TrainBars <= 0 || c.WalkForward.TestBars <= 0 {
		return fmt.Errorf("walkforward train_bars and test_bars must be positive")
	}
	if _, err := ticks.NewTable(c.Ticks); err != nil {
		return fmt.Errorf("invalid tick table: %w", err)
	}
	return nil
}

// TickTable builds the validated tick table from configuration.
func (c *Config) TickTable() (*ticks.Table, error) {
	return ticks.NewTable(c.Ticks)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsj9346/spock-sub005/internal/walkforward"
)

func TestLoadCreatesTemplateOnMissingFile(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir)
	require.Error(t, err, "first load reports the template creation")
	assert.Contains(t, err.Error(), "created template")

	path := filepath.Join(dir, "config.toml")
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr, "template must exist after first load")
	assert.Contains(t, string(data), "[engine]")
	assert.Contains(t, string(data), "[[ticks]]")

	// Second load picks up the template, which must itself be valid.
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 10_000_000.0, cfg.Data.InitialCash)
	assert.Equal(t, walkforward.ModeRolling, cfg.WalkForward.Mode)
}

func TestLoadAppliesFileOverrides(t *testing.T) {
	dir := t.TempDir()
	toml := `
[data]
initial_cash = 50000000.0
timeframe = "day"

[engine]
participation_cap = 0.1
position_fraction = 0.5
volatility_window = 20
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 50_000_000.0, cfg.Data.InitialCash)
	assert.Equal(t, 0.1, cfg.Engine.ParticipationCap)
	assert.Equal(t, 0.5, cfg.Engine.PositionFraction)
	assert.Equal(t, 0.0023, cfg.Costs.TaxRate, "untouched sections keep defaults")
	assert.Len(t, cfg.Ticks, 7)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	_, _ = Load(dir) // seed the template

	t.Setenv("BACKTESTER_DB_PATH", "/tmp/override.db")
	t.Setenv("BACKTESTER_LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Data.DBPath)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadExpandsTildePaths(t *testing.T) {
	dir := t.TempDir()
	_, _ = Load(dir) // seed the template, which ships "~/..." paths

	cfg, err := Load(dir)
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	for name, path := range map[string]string{
		"db_path":       cfg.Data.DBPath,
		"reference_dir": cfg.Regression.ReferenceDir,
		"history_path":  cfg.Regression.HistoryPath,
		"log file_path": cfg.Logging.FilePath,
	} {
		assert.NotContains(t, path, "~", name)
		assert.True(t, filepath.IsAbs(path), "%s must be absolute, got %q", name, path)
		assert.Equal(t, home, path[:len(home)], "%s must live under the home directory", name)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "x", "y.db"), expandHome("~/x/y.db"))
	assert.Equal(t, home, expandHome("~"))
	assert.Equal(t, "/abs/path.db", expandHome("/abs/path.db"))
	assert.Equal(t, "relative/path.db", expandHome("relative/path.db"))
	assert.Equal(t, "~midword/path", expandHome("~midword/path"), "only a leading ~/ expands")
}

func TestValidate(t *testing.T) {
	mutations := map[string]func(*Config){
		"non-positive cash":        func(c *Config) { c.Data.InitialCash = 0 },
		"participation cap":        func(c *Config) { c.Engine.ParticipationCap = 2 },
		"negative cap":             func(c *Config) { c.Engine.ParticipationCap = -0.1 },
		"position fraction":        func(c *Config) { c.Engine.PositionFraction = 0 },
		"negative tax":             func(c *Config) { c.Costs.TaxRate = -0.01 },
		"negative commission":      func(c *Config) { c.Costs.Commission.BaseRate = -1 },
		"pass threshold":           func(c *Config) { c.Validation.PassThreshold = 1.5 },
		"walkforward mode":         func(c *Config) { c.WalkForward.Mode = "sliding" },
		"walkforward window sizes": func(c *Config) { c.WalkForward.TrainBars = 0 },
		"broken tick table":        func(c *Config) { c.Ticks[0].Tick = -5 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, Default().Validate())
	})

	t.Run("zero cap disables capping", func(t *testing.T) {
		cfg := Default()
		cfg.Engine.ParticipationCap = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestTickTableFromConfig(t *testing.T) {
	cfg := Default()
	table, err := cfg.TickTable()
	require.NoError(t, err)

	price, err := table.Round(60_049)
	require.NoError(t, err)
	assert.Equal(t, 60_000.0, price)
}

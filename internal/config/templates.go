package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Backtester Configuration

[data]
# SQLite database for bar series and trade logs
db_path = "~/.config/backtester/market.db"
# Bar timeframe: "day", "60minute", "5minute"
timeframe = "day"
# Starting cash per run
initial_cash = 10000000.0

[engine]
# Maximum fraction of a bar's volume one order may take; 0 disables the cap
participation_cap = 0.05
# Fraction of available cash committed per entry
position_fraction = 0.95
# Rolling window (bars) for recent volatility
volatility_window = 20

[costs]
# Transaction tax rate, sell side only
tax_rate = 0.0023

[costs.commission]
base_rate = 0.00015
min_commission = 900.0
max_commission = 0.0

[costs.slippage]
# Slippage model: "fixed", "volume", "volatility"
model = "fixed"
fixed_bps = 5.0
impact_bps = 25.0
base_bps = 5.0
reference_vol = 0.015

# Price tick tiers, ascending by floor
[[ticks]]
floor = 0.0
tick = 1.0

[[ticks]]
floor = 1000.0
tick = 5.0

[[ticks]]
floor = 5000.0
tick = 10.0

[[ticks]]
floor = 10000.0
tick = 50.0

[[ticks]]
floor = 50000.0
tick = 100.0

[[ticks]]
floor = 100000.0
tick = 500.0

[[ticks]]
floor = 500000.0
tick = 1000.0

[metrics]
trading_days_per_year = 252
risk_free_rate = 0.03
minimum_acceptable_return = 0.0
var_confidence = 0.95

[validation]
# Per-metric agreement tolerance
tolerance = 0.05
# Minimum consistency score to pass
pass_threshold = 0.90

[regression]
reference_dir = "~/.config/backtester/references"
history_path = "~/.config/backtester/validation_history.jsonl"

[walkforward]
# Windowing mode: "rolling" or "anchored"
mode = "rolling"
train_bars = 252
test_bars = 63
step_bars = 63
# Optimization objective: "sharpe", "total_return", "win_rate"
objective = "sharpe"
# Windows with fewer test trades are excluded from scoring
min_trades = 5
degradation_threshold = 0.5
stability_threshold = 0.5
# 0 = one worker per CPU
workers = 0

[logging]
level = "info"
console = true
file = true
file_path = "~/.config/backtester/logs/backtester.log"
max_size = 50
max_backups = 5
max_age = 30
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return fmt.Errorf("config file not found, created template at %s", path)
}

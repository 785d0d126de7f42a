// Package cli provides the command-line interface for the backtester.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jsj9346/spock-sub005/internal/config"
	"github.com/jsj9346/spock-sub005/internal/logging"
	"github.com/jsj9346/spock-sub005/internal/metrics"
	"github.com/jsj9346/spock-sub005/internal/store"
	"github.com/jsj9346/spock-sub005/internal/strategy"
	"github.com/jsj9346/spock-sub005/internal/ticks"
	"github.com/jsj9346/spock-sub005/internal/validator"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-01-01"
)

// App holds the application dependencies.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Store      store.DataStore
	Registry   *strategy.Registry
	TickTable  *ticks.Table
	MetricsEng *metrics.Engine
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: strategy.NewRegistry(),
	}

	tickTable, err := cfg.TickTable()
	if err != nil {
		logger.Warn().Err(err).Msg("Invalid tick table in config, using defaults")
		tickTable = ticks.DefaultTable()
	}
	app.TickTable = tickTable

	metricsEng, err := metrics.NewEngine(cfg.Metrics, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Invalid metrics config, using defaults")
		metricsEng, _ = metrics.NewEngine(metrics.DefaultConfig(), logger)
	}
	app.MetricsEng = metricsEng

	dataStore, err := store.NewSQLiteStore(cfg.Data.DBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, some features may be unavailable")
	} else {
		app.Store = dataStore
		logger.Debug().Msg("SQLite store initialized")
	}

	rootCmd := &cobra.Command{
		Use:   "backtester",
		Short: "Backtester - execution and validation engine for trading strategies",
		Long: `Backtester runs trading strategies over historical bars through two
independent simulators, cross-checks their results, tracks regressions
against stored references, and walk-forward tests parameter choices.

Use 'backtester help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/backtester)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	addBacktestCommands(rootCmd, app)
	addValidateCommands(rootCmd, app)
	addReferenceCommands(rootCmd, app)
	addWalkForwardCommands(rootCmd, app)

	return rootCmd
}

// engineRunner builds the event-driven execution path adapter.
func (a *App) engineRunner() (validator.Runner, error) {
	return validator.NewEngineRunner(a.Config.Engine, a.Config.Costs, a.TickTable,
		a.MetricsEng, a.Config.Data.InitialCash, a.Logger)
}

// batchRunner builds the vectorized execution path adapter.
func (a *App) batchRunner() (validator.Runner, error) {
	return validator.NewBatchRunner(a.Config.Engine, a.Config.Costs, a.TickTable,
		a.MetricsEng, a.Config.Data.InitialCash, a.Logger)
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newStrategiesCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Backtester v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			return output.JSON(app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func newStrategiesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List available signal generators",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			names := app.Registry.Names()
			if output.IsJSON() {
				output.JSON(names)
				return
			}
			for _, n := range names {
				output.Println(n)
			}
		},
	}
}

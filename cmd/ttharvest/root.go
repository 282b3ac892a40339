package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"ttharvest/pkg/config"
	"ttharvest/pkg/logger"
	"ttharvest/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
	runOnce    bool

	cfg *config.Config
)

// rootCmd runs the scheduler, or a single pass with --once
var rootCmd = &cobra.Command{
	Use:   "ttharvest",
	Short: "Harvest the audio of the newest upload from tracked accounts",
	Long: `ttharvest checks a catalog of tracked accounts, finds each one's newest
upload and stores its audio track exactly once.

Runs are triggered by a built-in scheduler (interval, cron or a single date)
or on demand with --once. Expired platform cookies are refreshed through a
real browser session, headless when possible.`,
	Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHarvest(cmd.Context(), runOnce)
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.ttharvest.yaml or ~/.config/ttharvest/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress console output except errors")

	rootCmd.Flags().BoolVar(&runOnce, "once", false, "run a single pass and exit")

	rootCmd.SetVersionTemplate(`ttharvest {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// setup loads configuration and initializes logging before any command runs
func setup(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	if cmd.Flags().Changed("no-color") {
		flags["no-color"] = noColor
	}

	loaded, err := config.Load(configFile, flags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg = loaded

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ui.SetNoColor(cfg.Logging.NoColor)
	if quiet || cfg.Logging.Level == "error" {
		ui.SetQuietMode(true)
	}

	if cmd.Name() != "version" && cmd.Name() != "help" && cmd.Parent() == nil {
		ui.PrintLogo()
	}
	return nil
}

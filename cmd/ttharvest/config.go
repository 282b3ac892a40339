package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ttharvest/pkg/config"
	"ttharvest/pkg/session"
	"ttharvest/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage ttharvest configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (TTHARVEST_*, and DB_* for the database)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
	// config commands must work with a missing or broken file
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.SetNoColor(noColor)
		ui.SetQuietMode(quiet)
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with the defaults",
	Long: `Create a configuration file holding every option at its default value.

The file is written to ./.ttharvest.yaml unless --config names another path.`,
	RunE: runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging all sources.

Passwords and connection strings are masked.`,
	RunE: runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and the runtime environment",
	Long: `Validate the configuration and check the tools it depends on.

This command checks:
  - YAML syntax and field values
  - Cross-field rules such as delay windows and driver settings
  - The yt-dlp binary and a Chrome installation
  - That the working directories can be created`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".ttharvest.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		return fmt.Errorf("refusing to overwrite %s", configPath)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		return err
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Set the database connection under storage.postgres, or DB_HOST/DB_USER/DB_PASSWORD in .env")
	fmt.Println("2. Run 'ttharvest config validate' to check the configuration")
	fmt.Println("3. Run 'ttharvest cookies refresh --login' once to save a browser session")
	fmt.Println("4. Start harvesting with 'ttharvest run'")
	return nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) > 8 {
		return s[:4] + "..." + s[len(s)-4:]
	}
	return "***"
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return err
	}

	display := *loaded
	display.Storage.Postgres.Password = mask(display.Storage.Postgres.Password)
	display.Storage.Postgres.DSN = mask(display.Storage.Postgres.DSN)
	display.Lock.Redis.Password = mask(display.Lock.Redis.Password)

	data, err := yaml.Marshal(&display)
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		return err
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (TTHARVEST_*, DB_*)")
	fmt.Println("3. .env files")
	if configFile != "" {
		fmt.Printf("4. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("4. Configuration file: (searched in default locations)")
	}
	fmt.Println("5. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	}

	loaded, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		return err
	}

	var warnings, problems []string

	if _, err := exec.LookPath(loaded.Extractor.Binary); err != nil {
		problems = append(problems, fmt.Sprintf("extractor binary %q not found in PATH", loaded.Extractor.Binary))
	}

	browser := session.NewChromeBrowser(loaded.Session.ChromePath, loaded.Platform.BaseURL)
	if err := browser.Available(); err != nil {
		warnings = append(warnings, "no Chrome installation found, cookie refresh is unavailable")
	}

	dirs := []string{
		loaded.Cookies.Dir,
		loaded.Session.StateDir,
		loaded.Extractor.AudioDir,
		filepath.Dir(loaded.Resolver.CacheFile),
	}
	if loaded.Reports.Enabled {
		dirs = append(dirs, loaded.Reports.Dir)
	}
	if loaded.Storage.Driver == "badger" {
		dirs = append(dirs, loaded.Storage.Badger.Path)
	}
	if loaded.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(loaded.Logging.File))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create %s: %v", d, err))
		}
	}

	if loaded.Catalog.Driver == "static" && loaded.Storage.Driver == "badger" {
		warnings = append(warnings, "running without a database, records are kept in "+loaded.Storage.Badger.Path)
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return fmt.Errorf("%d configuration problem(s)", len(problems))
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Catalog: %s\n", loaded.Catalog.Driver)
	fmt.Printf("  Records: %s\n", loaded.Storage.Driver)
	fmt.Printf("  Schedule: %s (%s)\n", loaded.Scheduler.Type, loaded.Scheduler.Timezone)
	fmt.Printf("  Pacing: %s to %s between sources\n", loaded.Pacing.MinDelay, loaded.Pacing.MaxDelay)
	fmt.Printf("  Audio: %s %s in %s\n", loaded.Extractor.AudioFormat, loaded.Extractor.AudioQuality, loaded.Extractor.AudioDir)
	fmt.Printf("  Lock: %s\n", loaded.Lock.Driver)
	fmt.Printf("  Log level: %s\n", loaded.Logging.Level)
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ttharvest/pkg/logger"
	"ttharvest/pkg/report"
	"ttharvest/pkg/storage"
	"ttharvest/pkg/ui"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show run reports",
}

var reportLastCmd = &cobra.Command{
	Use:   "last",
	Short: "Show the most recent run report",
	Long: `Show the most recent run report from reports.dir together with the
number of audio files and, for the badger driver, stored records.`,
	Args: cobra.NoArgs,
	RunE: runReportLast,
}

var reportShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Show a run report file",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportShow,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportLastCmd)
	reportCmd.AddCommand(reportShowCmd)
}

func runReportLast(cmd *cobra.Command, args []string) error {
	path, err := report.NewWriter(cfg.Reports.Dir).Latest()
	if err != nil {
		ui.PrintError("Failed to list reports", err.Error())
		return err
	}
	if path == "" {
		ui.PrintWarning("No run reports in " + cfg.Reports.Dir)
	} else if err := printReport(path); err != nil {
		return err
	}

	fmt.Println()
	printStoreCounts()
	return nil
}

func runReportShow(cmd *cobra.Command, args []string) error {
	return printReport(args[0])
}

func printReport(path string) error {
	r, err := report.Load(path)
	if err != nil {
		ui.PrintError("Failed to read report", err.Error())
		return err
	}
	ui.PrintInfo("Report", path)
	ui.PrintInfo("Started", r.StartedAt.Local().Format("2006-01-02 15:04:05"))
	ui.PrintSummary(r.Summary())
	return nil
}

// printStoreCounts reports what is on disk without touching the platform
func printStoreCounts() {
	artifacts, err := storage.NewArtifacts(cfg.Extractor.AudioDir, cfg.Extractor.AudioFormat)
	if err != nil {
		ui.PrintWarning("Audio directory", err.Error())
	} else {
		ui.PrintInfo("Audio files", fmt.Sprintf("%d in %s", artifacts.Count(), artifacts.Dir()))
	}

	if cfg.Storage.Driver != "badger" {
		return
	}
	// badger holds an exclusive lock, so this fails while a run is active
	store, err := storage.NewBadgerStore(cfg.Storage.Badger.Path, logger.GetLogger())
	if err != nil {
		ui.PrintWarning("Records", err.Error())
		return
	}
	defer store.Close()
	n, err := store.Count()
	if err != nil {
		ui.PrintWarning("Records", err.Error())
		return
	}
	ui.PrintInfo("Records", fmt.Sprintf("%d in %s", n, cfg.Storage.Badger.Path))
}

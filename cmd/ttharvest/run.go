package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ttharvest/pkg/logger"
	"ttharvest/pkg/scheduler"
	"ttharvest/pkg/ui"
)

var runCmdOnce bool

// runCmd is the explicit form of the root command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scheduler or run a single pass",
	Long: `Start the scheduler configured under 'scheduler:' and harvest on every
trigger until interrupted. With --once a single pass runs immediately and the
command exits when it finishes.

Only one run may be active at a time. A second process exits with an error
while the run lock is held.`,
	Example: `  # Run on the configured schedule
  ttharvest run

  # One pass now, e.g. from an external cron
  ttharvest run --once`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHarvest(cmd.Context(), runCmdOnce)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runCmdOnce, "once", false, "run a single pass and exit")
}

func runHarvest(parent context.Context, once bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.GetLogger()

	if once {
		return harvestOnce(ctx)
	}

	sched := scheduler.New(cfg.Scheduler, harvestOnce, log)

	logger.LogComponentStart("scheduler", map[string]interface{}{
		"type":     cfg.Scheduler.Type,
		"timezone": cfg.Scheduler.Timezone,
	})
	err := sched.Run(ctx)
	logger.LogComponentStop("scheduler", "shutdown")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// harvestOnce builds the components for one pass, runs it and releases them
func harvestOnce(ctx context.Context) error {
	a := newApp(cfg)
	defer a.close()

	h, err := a.harvester(ctx)
	if err != nil {
		ui.PrintError("Failed to initialize", err.Error())
		return err
	}

	summary, err := h.Run(ctx)
	if summary != nil {
		ui.PrintSummary(summary)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			ui.PrintWarning("Run interrupted")
			return nil
		}
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}

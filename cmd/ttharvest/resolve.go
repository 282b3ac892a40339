package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ttharvest/pkg/models"
	"ttharvest/pkg/ui"
)

var resolveForce bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <handle>",
	Short: "Resolve an account handle to its stable id",
	Long: `Resolve an account handle and print the target the harvester will list.

Results are cached in resolver.cache_file. Handles that could not be resolved
are cached as broken and addressed by profile URL; --force retries them.`,
	Example: `  ttharvest resolve @someone
  ttharvest resolve someone --force
  ttharvest resolve list`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

var resolveListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the resolution cache",
	Args:  cobra.NoArgs,
	RunE:  runResolveList,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.AddCommand(resolveListCmd)
	resolveCmd.Flags().BoolVar(&resolveForce, "force", false, "ignore the cache and resolve again")
}

func runResolve(cmd *cobra.Command, args []string) error {
	handle := models.NormalizeHandle(args[0])
	if handle == "" {
		return fmt.Errorf("invalid handle %q", args[0])
	}

	a := newApp(cfg)
	defer a.close()

	_, res, err := a.chain(a.cookieStore())
	if err != nil {
		return err
	}

	target, err := res.Resolve(cmd.Context(), handle, resolveForce)
	if err != nil {
		ui.PrintError("Resolution failed", err.Error())
		return err
	}

	ui.PrintInfo("Handle", "@"+handle)
	ui.PrintInfo("Target", target.Value)
	ui.PrintInfo("Kind", target.Kind.String())
	if e, ok := res.Cache().Get(handle); ok {
		ui.PrintInfo("Cache", fmt.Sprintf("%s via %s", e.Status, e.Source))
	}
	return nil
}

func runResolveList(cmd *cobra.Command, args []string) error {
	a := newApp(cfg)
	defer a.close()

	_, res, err := a.chain(a.cookieStore())
	if err != nil {
		return err
	}

	entries := res.Cache().Entries()
	if len(entries) == 0 {
		ui.PrintWarning("Resolution cache is empty")
		return nil
	}
	for _, e := range entries {
		line := fmt.Sprintf("%-24s %-10s %s", "@"+e.Handle, e.Status, e.UpdatedAt.Format("2006-01-02 15:04"))
		switch e.Status {
		case models.StatusResolved:
			ui.PrintSuccess(line + "  " + e.StableID)
		case models.StatusBroken:
			ui.PrintWarning(line)
		default:
			ui.PrintHighlight(line)
		}
	}
	return nil
}

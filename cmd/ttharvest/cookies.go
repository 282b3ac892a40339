package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ttharvest/pkg/session"
	"ttharvest/pkg/ui"
)

var (
	refreshLogin    bool
	refreshForce    bool
	refreshHeadless bool
)

var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Inspect and refresh platform cookies",
}

var cookiesRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the cookie file through a browser session",
	Long: `Refresh the exported cookie file using a real browser.

A saved session is restored headless first. When that does not yield an
authenticated session, or no session is saved yet, a visible browser window
opens so you can log in. Use --login to go straight to the login window, for
example after switching accounts.`,
	Example: `  # Refresh only if the current cookies are expired
  ttharvest cookies refresh

  # Always refresh, never open a window
  ttharvest cookies refresh --force --headless

  # Log in again from scratch
  ttharvest cookies refresh --login`,
	RunE: runCookiesRefresh,
}

var cookiesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether the current cookie file is usable",
	RunE:  runCookiesCheck,
}

func init() {
	rootCmd.AddCommand(cookiesCmd)
	cookiesCmd.AddCommand(cookiesRefreshCmd)
	cookiesCmd.AddCommand(cookiesCheckCmd)

	cookiesRefreshCmd.Flags().BoolVar(&refreshLogin, "login", false, "open a login window with the long login timeout")
	cookiesRefreshCmd.Flags().BoolVar(&refreshForce, "force", false, "refresh even if the current cookies are valid")
	cookiesRefreshCmd.Flags().BoolVar(&refreshHeadless, "headless", false, "only open a window if session.allow_interactive is set")
}

func runCookiesRefresh(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg)
	defer a.close()

	store := a.cookieStore()
	mgr, err := a.sessionManager(store)
	if err != nil {
		return err
	}

	// a refresh rewrites the cookie file a running harvest reads
	locker := a.locker()
	if err := locker.Lock(ctx); err != nil {
		return fmt.Errorf("cannot refresh while a run is active: %w", err)
	}
	defer func() { _ = locker.Unlock(ctx) }()

	cred, err := mgr.Ensure(ctx, session.Request{
		Force:    refreshForce,
		Login:    refreshLogin,
		Headless: refreshHeadless,
	})
	if err != nil {
		ui.PrintError("Cookie refresh failed", err.Error())
		return err
	}

	ui.PrintSuccess("Cookies are valid")
	ui.PrintInfo("File", cred.Path)
	ui.PrintInfo("Cookies", fmt.Sprintf("%d", len(cred.Cookies)))
	return nil
}

func runCookiesCheck(cmd *cobra.Command, args []string) error {
	a := newApp(cfg)
	defer a.close()

	v, err := a.cookieStore().Check()
	ui.PrintInfo("File", v.Path)
	if err != nil {
		ui.PrintError("Cookie file is unreadable", err.Error())
		return err
	}
	if !v.Exists {
		ui.PrintWarning("No cookie file yet, run 'ttharvest cookies refresh --login'")
		return fmt.Errorf("no cookie file at %s", v.Path)
	}

	ui.PrintInfo("Cookies", fmt.Sprintf("%d (%d expired, %.0f%%)", v.Total, v.Expired, v.ExpiredRatio()*100))
	if !v.Valid {
		ui.PrintWarning("Cookies are expired, run 'ttharvest cookies refresh'")
		return fmt.Errorf("cookie file %s is expired", v.Path)
	}
	ui.PrintSuccess("Cookies are valid")
	return nil
}

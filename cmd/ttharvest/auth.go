package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ttharvest/pkg/auth"
	"ttharvest/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the saved browser session",
	Long: `Manage the browser session saved by 'ttharvest cookies refresh'.

With session.encrypt enabled the session is stored encrypted. The passphrase
is looked up in this order:
  - The TTHARVEST_PASSPHRASE environment variable
  - The system keychain
  - A generated file in the session state directory`,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the saved session",
	RunE:  runAuthStatus,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete the saved session",
	Long: `Delete the saved browser session. The next refresh opens a login window.

The exported cookie file is left untouched.`,
	RunE: runAuthLogout,
}

var passphraseCmd = &cobra.Command{
	Use:   "passphrase",
	Short: "Manage the session encryption passphrase",
}

var passphraseSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store a passphrase in the system keychain",
	Long: `Store the session encryption passphrase in the system keychain.

An existing encrypted session cannot be read with a different passphrase;
run 'ttharvest auth logout' first when changing it.`,
	RunE: runPassphraseSet,
}

var passphraseClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove stored passphrases",
	RunE:  runPassphraseClear,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(statusCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(passphraseCmd)
	passphraseCmd.AddCommand(passphraseSetCmd)
	passphraseCmd.AddCommand(passphraseClearCmd)
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	store, err := auth.NewSnapshotStore(cfg.Session.StateDir, cfg.Session.Encrypt)
	if err != nil {
		return err
	}
	if !store.Exists() {
		ui.PrintWarning("No saved session, run 'ttharvest cookies refresh --login'")
		return nil
	}

	snap, err := store.Load()
	if err != nil {
		ui.PrintError("Failed to read saved session", err.Error())
		return err
	}
	snap = auth.SanitizeSnapshot(snap)

	ui.PrintInfo("State directory", cfg.Session.StateDir)
	ui.PrintInfo("Encrypted", fmt.Sprintf("%t", cfg.Session.Encrypt))
	ui.PrintInfo("Captured", snap.CapturedAt.Format("2006-01-02 15:04:05"))
	ui.PrintInfo("Cookies", fmt.Sprintf("%d", len(snap.Cookies)))
	for _, c := range snap.Cookies {
		for _, name := range cfg.Platform.AuthCookies {
			if c.Name == name {
				fmt.Printf("  %s = %s\n", ui.Cyan(c.Name), ui.Dim(c.Value))
			}
		}
	}
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	store, err := auth.NewSnapshotStore(cfg.Session.StateDir, cfg.Session.Encrypt)
	if err != nil {
		return err
	}
	if err := store.Clear(); err != nil {
		ui.PrintError("Failed to delete saved session", err.Error())
		return err
	}
	ui.PrintSuccess("Saved session deleted")
	return nil
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func runPassphraseSet(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("passphrase set needs an interactive terminal; use %s instead", auth.PassphraseEnv)
	}

	pass, err := readPassword("🔑 New passphrase: ")
	if err != nil {
		return err
	}
	confirm, err := readPassword("🔑 Repeat passphrase: ")
	if err != nil {
		return err
	}
	if pass != confirm {
		ui.PrintError("Passphrases do not match")
		return fmt.Errorf("passphrases do not match")
	}

	if err := (auth.KeyringPassphrase{}).Set(pass); err != nil {
		ui.PrintError("Failed to store passphrase", err.Error())
		return err
	}
	ui.PrintSuccess("Passphrase stored in the system keychain")
	return nil
}

func runPassphraseClear(cmd *cobra.Command, args []string) error {
	var failed bool
	if err := (auth.KeyringPassphrase{}).Clear(); err != nil {
		ui.PrintWarning("Keychain", err.Error())
		failed = true
	}
	if err := (auth.FilePassphrase{Dir: cfg.Session.StateDir}).Clear(); err != nil {
		ui.PrintWarning("Passphrase file", err.Error())
		failed = true
	}
	if failed {
		return fmt.Errorf("some passphrases could not be removed")
	}
	ui.PrintSuccess("Stored passphrases removed")
	return nil
}

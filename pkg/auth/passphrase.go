package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"

	"ttharvest/pkg/fsutil"
)

const (
	// PassphraseEnv overrides every other passphrase source
	PassphraseEnv = "TTHARVEST_PASSPHRASE"

	keyringService = "ttharvest"
	keyringUser    = "snapshot-passphrase"

	passphraseFile = ".passphrase"
)

// ErrPassphraseNotFound is returned by a source that holds no passphrase
var ErrPassphraseNotFound = errors.New("passphrase not found")

// PassphraseSource yields the snapshot encryption passphrase
type PassphraseSource interface {
	Passphrase() (string, error)
}

// EnvPassphrase reads the passphrase from TTHARVEST_PASSPHRASE
type EnvPassphrase struct{}

func (EnvPassphrase) Passphrase() (string, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return pass, nil
	}
	return "", ErrPassphraseNotFound
}

// KeyringPassphrase keeps the passphrase in the system keychain
type KeyringPassphrase struct{}

func (KeyringPassphrase) Passphrase() (string, error) {
	pass, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrPassphraseNotFound
		}
		return "", fmt.Errorf("failed to read keyring: %w", err)
	}
	return pass, nil
}

// Set stores a passphrase in the keychain
func (KeyringPassphrase) Set(pass string) error {
	if pass == "" {
		return errors.New("passphrase must not be empty")
	}
	if err := keyring.Set(keyringService, keyringUser, pass); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

// Clear removes the passphrase from the keychain
func (KeyringPassphrase) Clear() error {
	err := keyring.Delete(keyringService, keyringUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}

// FilePassphrase reads a passphrase file in the state directory, generating
// one on first use.
type FilePassphrase struct {
	Dir string
}

func (f FilePassphrase) path() string {
	return filepath.Join(f.Dir, passphraseFile)
}

func (f FilePassphrase) Passphrase() (string, error) {
	if content, err := os.ReadFile(f.path()); err == nil {
		if pass := strings.TrimSpace(string(content)); pass != "" {
			return pass, nil
		}
	}

	pass, err := generatePassphrase()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(f.Dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := fsutil.WriteFileAtomic(f.path(), []byte(pass), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return pass, nil
}

// Clear removes the generated passphrase file
func (f FilePassphrase) Clear() error {
	if err := os.Remove(f.path()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ChainPassphrase returns the first passphrase any source yields
type ChainPassphrase []PassphraseSource

func (c ChainPassphrase) Passphrase() (string, error) {
	var errs []error
	for _, s := range c {
		pass, err := s.Passphrase()
		if err == nil && pass != "" {
			return pass, nil
		}
		if err != nil && !errors.Is(err, ErrPassphraseNotFound) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return "", ErrPassphraseNotFound
}

// DefaultPassphrase checks the environment, then the keychain, then a
// generated file under stateDir.
func DefaultPassphrase(stateDir string) ChainPassphrase {
	return ChainPassphrase{EnvPassphrase{}, KeyringPassphrase{}, FilePassphrase{Dir: stateDir}}
}

// NewSnapshotStore picks the plain or encrypted store
func NewSnapshotStore(stateDir string, encrypt bool) (SnapshotStore, error) {
	if !encrypt {
		return NewFileSnapshotStore(stateDir), nil
	}
	return NewEncryptedSnapshotStore(stateDir, DefaultPassphrase(stateDir))
}

// generatePassphrase generates a secure random passphrase
func generatePassphrase() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

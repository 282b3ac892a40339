package session

import (
	"context"
	"fmt"
	"time"

	"ttharvest/pkg/cookies"
	"ttharvest/pkg/errors"
	"ttharvest/pkg/logger"
)

// Refresher performs one browser refresh
type Refresher interface {
	Refresh(ctx context.Context, mode Mode, timeout time.Duration) (*cookies.Credential, error)
	HasSnapshot() bool
}

// CredentialSource is the read side of the cookie store
type CredentialSource interface {
	IsValid() bool
	Load() (*cookies.Credential, error)
}

// Request describes what the caller wants from Ensure
type Request struct {
	// Force refreshes even when the current credential is valid
	Force bool
	// Login goes straight to an interactive login
	Login bool
	// Headless prefers non-interactive refreshes. Interactive fallback then
	// requires AllowInteractive.
	Headless bool
}

// ManagerOptions holds refresh timeouts and the interactive policy
type ManagerOptions struct {
	HeadlessTimeout    time.Duration
	InteractiveTimeout time.Duration
	LoginTimeout       time.Duration
	AllowInteractive   bool
}

// Manager decides which kind of refresh a caller gets
type Manager struct {
	refresher Refresher
	creds     CredentialSource
	opts      ManagerOptions
	logger    logger.Logger
}

// NewManager creates a Manager
func NewManager(refresher Refresher, creds CredentialSource, opts ManagerOptions, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.HeadlessTimeout <= 0 {
		opts.HeadlessTimeout = 60 * time.Second
	}
	if opts.InteractiveTimeout <= 0 {
		opts.InteractiveTimeout = 120 * time.Second
	}
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = 300 * time.Second
	}
	return &Manager{
		refresher: refresher,
		creds:     creds,
		opts:      opts,
		logger:    log.WithField("component", "session"),
	}
}

// Ensure returns a usable credential, refreshing it when needed
func (m *Manager) Ensure(ctx context.Context, req Request) (*cookies.Credential, error) {
	if !req.Force && m.creds.IsValid() {
		return m.creds.Load()
	}

	if req.Login {
		return m.refresher.Refresh(ctx, Interactive, m.opts.LoginTimeout)
	}

	interactiveOK := !req.Headless || m.opts.AllowInteractive

	if !m.refresher.HasSnapshot() {
		if !interactiveOK {
			return nil, fmt.Errorf("%w: no saved session and interactive refresh is disabled", errors.ErrRefreshUnavailable)
		}
		return m.refresher.Refresh(ctx, Interactive, m.opts.InteractiveTimeout)
	}

	cred, err := m.refresher.Refresh(ctx, Headless, m.opts.HeadlessTimeout)
	if err == nil {
		return cred, nil
	}
	if ctx.Err() != nil || errors.Is(err, errors.ErrRefreshUnavailable) || !interactiveOK {
		return nil, err
	}

	m.logger.WithError(err).Warn("Headless refresh failed, falling back to interactive")
	return m.refresher.Refresh(ctx, Interactive, m.opts.InteractiveTimeout)
}

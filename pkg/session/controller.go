package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"ttharvest/pkg/auth"
	"ttharvest/pkg/cookies"
	"ttharvest/pkg/errors"
	"ttharvest/pkg/logger"
)

// Exporter writes a captured cookie set as the current credential
type Exporter interface {
	Export(all []cookies.Cookie) (*cookies.Credential, error)
}

// PromptFunc tells the operator what to do during an interactive refresh
type PromptFunc func(baseURL string, timeout time.Duration)

// ControllerOptions configures a Controller
type ControllerOptions struct {
	BaseURL      string
	UserAgent    string
	AuthCookies  []string
	PollInterval time.Duration
	Prompt       PromptFunc
}

// Controller drives one browser refresh from start to exported credential
type Controller struct {
	browser   Browser
	snapshots auth.SnapshotStore
	exporter  Exporter
	opts      ControllerOptions
	logger    logger.Logger
}

// NewController creates a Controller
func NewController(browser Browser, snapshots auth.SnapshotStore, exporter Exporter, opts ControllerOptions, log logger.Logger) *Controller {
	if log == nil {
		log = logger.GetLogger()
	}
	if len(opts.AuthCookies) == 0 {
		opts.AuthCookies = []string{"sessionid", "sid_tt", "uid_tt"}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Controller{
		browser:   browser,
		snapshots: snapshots,
		exporter:  exporter,
		opts:      opts,
		logger:    log.WithField("component", "session"),
	}
}

// HasSnapshot reports whether a saved session exists
func (c *Controller) HasSnapshot() bool {
	return c.snapshots.Exists()
}

// Refresh opens the browser, waits for an authenticated session and exports
// the captured cookies.
func (c *Controller) Refresh(ctx context.Context, mode Mode, timeout time.Duration) (*cookies.Credential, error) {
	if err := c.browser.Available(); err != nil {
		if errors.Is(err, errors.ErrRefreshUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errors.ErrRefreshUnavailable, err)
	}

	snapshot, err := c.snapshots.Load()
	if err != nil {
		if !stderrors.Is(err, auth.ErrSnapshotNotFound) {
			c.logger.WithError(err).Warn("Saved session could not be loaded, ignoring it")
		}
		snapshot = nil
	}
	if snapshot == nil && mode == Headless {
		c.logger.Warn("No saved session, switching to interactive refresh")
		mode = Interactive
	}

	log := c.logger.WithFields(map[string]interface{}{
		"mode":    mode.String(),
		"timeout": timeout.String(),
	})
	log.Info("Starting session refresh")

	// every browser step shares the refresh deadline
	parent := ctx
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	expired := func(err error) error {
		if parent.Err() == nil && ctx.Err() != nil {
			return fmt.Errorf("%w: %s elapsed", errors.ErrRefreshTimeout, timeout)
		}
		return err
	}

	page, err := c.browser.Open(ctx, OpenOptions{
		Headless:  mode == Headless,
		UserAgent: c.opts.UserAgent,
	})
	if err != nil {
		return nil, expired(err)
	}
	defer page.Close()

	if snapshot != nil {
		if err := page.SetCookies(ctx, snapshot.Cookies); err != nil {
			log.WithError(err).Warn("Failed to restore saved cookies")
		}
	}

	if err := page.Navigate(ctx, c.opts.BaseURL); err != nil {
		return nil, expired(fmt.Errorf("failed to open %s: %w", c.opts.BaseURL, err))
	}

	if mode == Interactive && c.opts.Prompt != nil {
		c.opts.Prompt(c.opts.BaseURL, timeout)
	}

	err = WaitFor(ctx, c.opts.PollInterval, timeout, func(ctx context.Context) (bool, error) {
		current, err := page.Cookies(ctx)
		if err != nil {
			log.WithError(err).Debug("Cookie poll failed")
			return false, nil
		}
		return c.authenticated(current), nil
	})
	if err != nil {
		return nil, expired(err)
	}
	log.Info("Authenticated session detected")

	if err := page.Scroll(ctx); err != nil {
		log.WithError(err).Warn("Scroll failed, capturing cookies as they are")
	}

	captured, err := page.Cookies(ctx)
	if err != nil {
		return nil, expired(fmt.Errorf("failed to collect cookies: %w", err))
	}
	if len(captured) == 0 {
		return nil, fmt.Errorf("browser returned no cookies")
	}

	if err := c.snapshots.Save(&auth.Snapshot{
		Cookies:    captured,
		UserAgent:  c.opts.UserAgent,
		CapturedAt: time.Now(),
	}); err != nil {
		log.WithError(err).Warn("Failed to save session snapshot")
	}

	cred, err := c.exporter.Export(captured)
	if err != nil {
		return nil, fmt.Errorf("failed to export cookies: %w", err)
	}

	log.WithField("cookies", len(cred.Cookies)).Info("Session refreshed")
	return cred, nil
}

func (c *Controller) authenticated(cs []cookies.Cookie) bool {
	for _, ck := range cs {
		if strings.TrimSpace(ck.Value) == "" {
			continue
		}
		for _, name := range c.opts.AuthCookies {
			if ck.Name == name {
				return true
			}
		}
	}
	return false
}

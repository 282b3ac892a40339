package extract

import (
	"context"
	"fmt"

	"ttharvest/pkg/errors"
	"ttharvest/pkg/locator"
	"ttharvest/pkg/logger"
	"ttharvest/pkg/models"
)

// TargetResolver maps a handle to its addressing form
type TargetResolver interface {
	Resolve(ctx context.Context, handle string, force bool) (models.ResolvedTarget, error)
}

// Credentials is the read side of the cookie store
type Credentials interface {
	Exists() bool
	IsValid() bool
	CurrentPath() string
}

// Artifacts decides where downloaded audio is written
type Artifacts interface {
	OutputTemplate(recordID string) string
	Path(recordID string) string
	Remove(recordID string) error
}

// Location is the newest valid item of a source, with the strategy that found it
type Location struct {
	Handle   string
	EntryID  string
	URL      string
	Title    string
	Strategy models.StrategyKind
}

// Chain tries the primary strategy first and falls back to the secondary
// one when a valid cookie file exists. Downloads reuse the strategy that
// located the item.
type Chain struct {
	primary   Strategy
	secondary Strategy
	resolver  TargetResolver
	locator   *locator.Locator
	creds     Credentials
	artifacts Artifacts
	logger    logger.Logger
}

// NewChain creates a Chain
func NewChain(primary, secondary Strategy, resolver TargetResolver, loc *locator.Locator, creds Credentials, artifacts Artifacts, log logger.Logger) *Chain {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Chain{
		primary:   primary,
		secondary: secondary,
		resolver:  resolver,
		locator:   loc,
		creds:     creds,
		artifacts: artifacts,
		logger:    log.WithField("component", "extract"),
	}
}

// Locate finds the newest valid item for handle
func (c *Chain) Locate(ctx context.Context, handle string) (Location, error) {
	log := c.logger.WithField("handle", handle)

	target, err := c.resolver.Resolve(ctx, handle, false)
	if err != nil {
		return Location{}, err
	}

	loc, err := c.locateWith(ctx, c.primary, handle, target, c.cookiesFile())
	if err == nil {
		return loc, nil
	}
	if ctx.Err() != nil {
		return Location{}, ctx.Err()
	}

	if c.secondary == nil || c.creds == nil || !c.creds.IsValid() {
		return Location{}, err
	}

	log.WithError(err).Info("Primary strategy failed, trying secondary with cookies")

	// The secondary listing always goes through the web profile.
	profile := models.ProfileURLTarget(c.locator.BaseURL, handle)
	loc, err = c.locateWith(ctx, c.secondary, handle, profile, c.creds.CurrentPath())
	if err != nil {
		return Location{}, err
	}
	return loc, nil
}

func (c *Chain) locateWith(ctx context.Context, s Strategy, handle string, target models.ResolvedTarget, cookiesFile string) (Location, error) {
	entries, err := c.locator.ListRecent(ctx, s, target, cookiesFile)
	if err != nil {
		return Location{}, err
	}

	newest, ok := locator.Newest(entries)
	if !ok {
		return Location{}, fmt.Errorf("%s strategy: %w", s.Kind(), errors.ErrNoContent)
	}

	return Location{
		Handle:   handle,
		EntryID:  newest.ID,
		URL:      c.locator.ContentURL(handle, newest.ID),
		Title:    newest.Title,
		Strategy: s.Kind(),
	}, nil
}

// Download fetches a located item with the strategy that located it
func (c *Chain) Download(ctx context.Context, loc Location, recordID string) (string, error) {
	s := c.primary
	cookies := c.cookiesFile()
	if loc.Strategy == models.StrategySecondary {
		if c.secondary == nil {
			return "", errors.New(errors.ErrorTypeDownloadFailed, "download", "secondary strategy is not configured")
		}
		s = c.secondary
		cookies = c.creds.CurrentPath()
	}

	path, err := s.Download(ctx, DownloadRequest{
		URL:            loc.URL,
		OutputTemplate: c.artifacts.OutputTemplate(recordID),
		ExpectedPath:   c.artifacts.Path(recordID),
		CookiesFile:    cookies,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.WarnWithFields("Download failed", map[string]interface{}{
			"handle":   loc.Handle,
			"url":      loc.URL,
			"strategy": string(loc.Strategy),
		})
		return "", errors.Wrap(errors.ErrorTypeDownloadFailed, "download", err)
	}

	c.logger.InfoWithFields("Audio downloaded", map[string]interface{}{
		"handle":   loc.Handle,
		"strategy": string(loc.Strategy),
		"path":     path,
	})
	return path, nil
}

// Discard deletes the audio of a record that was not stored
func (c *Chain) Discard(recordID string) error {
	if err := c.artifacts.Remove(recordID); err != nil {
		return fmt.Errorf("failed to remove audio for %s: %w", recordID, err)
	}
	c.logger.DebugWithFields("Audio discarded", map[string]interface{}{
		"record": recordID,
	})
	return nil
}

func (c *Chain) cookiesFile() string {
	if c.creds != nil && c.creds.Exists() {
		return c.creds.CurrentPath()
	}
	return ""
}

// missingOutput reports a download that exited cleanly without producing its file
func missingOutput(path string) error {
	return errors.New(errors.ErrorTypeDownloadFailed, "stat "+path, "download reported success but the audio file is missing")
}

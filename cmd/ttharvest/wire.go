package main

import (
	"context"
	"fmt"
	"time"

	"ttharvest/pkg/auth"
	"ttharvest/pkg/catalog"
	"ttharvest/pkg/config"
	"ttharvest/pkg/cookies"
	"ttharvest/pkg/extract"
	"ttharvest/pkg/harvester"
	"ttharvest/pkg/locator"
	"ttharvest/pkg/lock"
	"ttharvest/pkg/logger"
	"ttharvest/pkg/pacing"
	"ttharvest/pkg/recovery"
	"ttharvest/pkg/report"
	"ttharvest/pkg/resolver"
	"ttharvest/pkg/session"
	"ttharvest/pkg/storage"
	"ttharvest/pkg/ui"
)

// app builds components from the loaded configuration and releases them on close
type app struct {
	cfg     *config.Config
	log     logger.Logger
	closers []func()
}

func newApp(cfg *config.Config) *app {
	return &app{cfg: cfg, log: logger.GetLogger()}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) cookieStore() *cookies.Store {
	return cookies.NewStore(cookies.StoreOptions{
		Dir:           a.cfg.Cookies.Dir,
		CurrentFile:   a.cfg.Cookies.CurrentFile,
		ArchivePrefix: a.cfg.Cookies.ArchivePrefix,
		Domain:        a.cfg.Platform.CookieDomain,
	}, a.log)
}

func (a *app) sessionManager(store *cookies.Store) (*session.Manager, error) {
	snapshots, err := auth.NewSnapshotStore(a.cfg.Session.StateDir, a.cfg.Session.Encrypt)
	if err != nil {
		return nil, fmt.Errorf("failed to open session snapshot store: %w", err)
	}

	browser := session.NewChromeBrowser(a.cfg.Session.ChromePath, a.cfg.Platform.BaseURL)
	controller := session.NewController(browser, snapshots, store, session.ControllerOptions{
		BaseURL:      a.cfg.Platform.BaseURL,
		UserAgent:    a.cfg.Platform.UserAgent,
		AuthCookies:  a.cfg.Platform.AuthCookies,
		PollInterval: a.cfg.Session.PollInterval,
		Prompt: func(baseURL string, timeout time.Duration) {
			if !ui.IsQuietMode() {
				auth.ShowLoginGuide(baseURL, int(timeout.Seconds()))
			}
		},
	}, a.log)

	return session.NewManager(controller, store, session.ManagerOptions{
		HeadlessTimeout:    a.cfg.Session.HeadlessTimeout,
		InteractiveTimeout: a.cfg.Session.InteractiveTimeout,
		LoginTimeout:       a.cfg.Session.LoginTimeout,
		AllowInteractive:   a.cfg.Session.AllowInteractive,
	}, a.log), nil
}

func (a *app) extractOptions() extract.Options {
	return extract.Options{
		Binary:          a.cfg.Extractor.Binary,
		ListTimeout:     a.cfg.Extractor.ListTimeout,
		DownloadTimeout: a.cfg.Extractor.DownloadTimeout,
		Audio: extract.AudioOptions{
			Format:  a.cfg.Extractor.AudioFormat,
			Quality: a.cfg.Extractor.AudioQuality,
		},
	}
}

func (a *app) resolver(lister resolver.Lister, store *cookies.Store) (*resolver.Resolver, error) {
	cache, err := resolver.OpenCache(a.cfg.Resolver.CacheFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open resolution cache: %w", err)
	}
	return resolver.New(cache, lister, store, resolver.Options{
		BaseURL:   a.cfg.Platform.BaseURL,
		Hosts:     a.cfg.Resolver.Hosts,
		BrokenTTL: a.cfg.Resolver.BrokenTTL,
	}, a.log), nil
}

func (a *app) chain(store *cookies.Store) (*extract.Chain, *resolver.Resolver, error) {
	opts := a.extractOptions()
	primary := extract.NewPrimary(opts, a.log)
	secondary := extract.NewSecondary(opts, nil, a.log)

	res, err := a.resolver(primary, store)
	if err != nil {
		return nil, nil, err
	}

	artifacts, err := storage.NewArtifacts(a.cfg.Extractor.AudioDir, a.cfg.Extractor.AudioFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to prepare audio directory: %w", err)
	}

	loc := locator.New(a.cfg.Platform.BaseURL, a.cfg.Extractor.PlaylistLimit)
	return extract.NewChain(primary, secondary, res, loc, store, artifacts, a.log), res, nil
}

func (a *app) recordStore(ctx context.Context) (storage.RecordStore, error) {
	var (
		rs  storage.RecordStore
		err error
	)
	switch a.cfg.Storage.Driver {
	case "badger":
		rs, err = storage.NewBadgerStore(a.cfg.Storage.Badger.Path, a.log)
	default:
		rs, err = storage.NewPostgresStore(ctx, a.cfg.Storage.Postgres, a.log)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := rs.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close record store")
		}
	})
	return rs, nil
}

func (a *app) catalog(ctx context.Context) (harvester.Catalog, error) {
	if a.cfg.Catalog.Driver == "static" {
		return catalog.NewStatic(a.cfg.Catalog.Sources), nil
	}
	pg, err := catalog.NewPostgres(ctx, a.cfg.Storage.Postgres, a.cfg.Catalog.Table, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	a.closers = append(a.closers, pg.Close)
	return pg, nil
}

func (a *app) locker() lock.Locker {
	switch a.cfg.Lock.Driver {
	case "redis":
		client := lock.NewRedisClient(a.cfg.Lock.Redis.Addr, a.cfg.Lock.Redis.Password, a.cfg.Lock.Redis.DB)
		a.closers = append(a.closers, func() { _ = client.Close() })
		return lock.NewRedisLock(client, a.cfg.Lock.Redis.Key, a.cfg.Lock.TTL, a.log)
	case "none":
		return lock.Nop{}
	default:
		return lock.NewFileLock(a.cfg.Lock.Path, a.cfg.Lock.TTL, a.log)
	}
}

// harvester assembles a Harvester with every collaborator the config selects
func (a *app) harvester(ctx context.Context) (*harvester.Harvester, error) {
	store := a.cookieStore()

	chain, _, err := a.chain(store)
	if err != nil {
		return nil, err
	}
	sess, err := a.sessionManager(store)
	if err != nil {
		return nil, err
	}
	records, err := a.recordStore(ctx)
	if err != nil {
		return nil, err
	}
	cat, err := a.catalog(ctx)
	if err != nil {
		return nil, err
	}

	deps := harvester.Deps{
		Locker:   a.locker(),
		Catalog:  cat,
		Acquirer: chain,
		Records:  records,
		Session:  sess,
		Pacer:    pacing.NewRandomPacer(a.cfg.Pacing.MinDelay, a.cfg.Pacing.MaxDelay, a.log),
		Notifier: ui.NewNotifier(a.cfg.Notifications),
	}
	if a.cfg.Reports.Enabled {
		deps.Reporter = report.NewWriter(a.cfg.Reports.Dir)
	}

	return harvester.New(deps, harvester.Options{
		AutoRefresh:      a.cfg.Session.AutoRefresh,
		RetryDelay:       recovery.NewWindow(a.cfg.Pacing.RetryMinDelay, a.cfg.Pacing.RetryMaxDelay),
		RateLimitBackoff: recovery.NewWindow(a.cfg.Pacing.RateLimitMin, a.cfg.Pacing.RateLimitMax),
	}, a.log), nil
}

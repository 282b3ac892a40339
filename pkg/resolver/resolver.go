// Package resolver maps account handles to stable target identifiers and
// remembers both successes and exhausted attempts.
package resolver

import (
	"context"
	"strings"
	"time"

	"ttharvest/pkg/config"
	"ttharvest/pkg/errors"
	"ttharvest/pkg/logger"
	"ttharvest/pkg/models"
)

// Lister performs a listing call
type Lister interface {
	List(ctx context.Context, req models.ListRequest) ([]models.ContentEntry, error)
}

// Credentials exposes the current cookie file
type Credentials interface {
	Exists() bool
	CurrentPath() string
}

// Options configures a Resolver
type Options struct {
	BaseURL string
	Hosts   []config.ResolverHost
	// BrokenTTL lets Broken entries be retried once they are older than the
	// TTL. Zero keeps them until a forced resolution.
	BrokenTTL time.Duration
}

// Resolver resolves handles through the cache first and the network second
type Resolver struct {
	cache  *Cache
	lister Lister
	creds  Credentials
	opts   Options
	now    func() time.Time
	logger logger.Logger
}

// New creates a Resolver
func New(cache *Cache, lister Lister, creds Credentials, opts Options, log logger.Logger) *Resolver {
	if len(opts.Hosts) == 0 {
		opts.Hosts = config.DefaultResolverHosts()
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Resolver{
		cache:  cache,
		lister: lister,
		creds:  creds,
		opts:   opts,
		now:    time.Now,
		logger: log.WithField("component", "resolver"),
	}
}

// Resolve returns the addressing form for handle. Cached outcomes are
// returned without any network call unless force is set.
func (r *Resolver) Resolve(ctx context.Context, handle string, force bool) (models.ResolvedTarget, error) {
	log := r.logger.WithField("handle", handle)

	if !force {
		if entry, ok := r.cache.Get(handle); ok {
			switch {
			case entry.Status == models.StatusResolved && entry.StableID != "":
				log.Debug("Using cached stable id")
				return models.StableIDTarget(entry.StableID), nil
			case entry.Status == models.StatusBroken && !r.brokenExpired(entry):
				log.Debug("Handle cached as broken, using profile URL")
				return models.ProfileURLTarget(r.opts.BaseURL, handle), nil
			}
		}
	}

	profile := models.ProfileURL(r.opts.BaseURL, handle)
	var lastErr error
	for _, host := range r.opts.Hosts {
		if err := ctx.Err(); err != nil {
			return models.ResolvedTarget{}, err
		}

		id, err := r.lookup(ctx, profile, host)
		if err != nil {
			lastErr = err
			log.WithError(err).WithField("source", hostLabel(host)).Debug("Stable id lookup failed")
			continue
		}
		if id == "" {
			continue
		}

		entry := models.CacheEntry{
			Handle:    handle,
			Status:    models.StatusResolved,
			StableID:  id,
			Source:    hostLabel(host),
			UpdatedAt: r.now(),
		}
		if err := r.cache.Put(entry); err != nil {
			log.WithError(err).Warn("Failed to persist resolved handle")
		}
		log.InfoWithFields("Handle resolved", map[string]interface{}{
			"source": entry.Source,
		})
		return models.StableIDTarget(id), nil
	}

	if err := ctx.Err(); err != nil {
		return models.ResolvedTarget{}, err
	}

	exhausted := errors.New(errors.ErrorTypeResolutionExhausted, "resolve "+handle, "no configuration yielded a stable id")
	if lastErr != nil {
		exhausted.Err = lastErr
	}
	log.WithError(exhausted).Warn("Resolution exhausted, caching handle as broken")

	if err := r.cache.Put(models.CacheEntry{
		Handle:    handle,
		Status:    models.StatusBroken,
		Source:    "exhausted",
		UpdatedAt: r.now(),
	}); err != nil {
		log.WithError(err).Warn("Failed to persist broken handle")
	}

	return models.ProfileURLTarget(r.opts.BaseURL, handle), nil
}

func (r *Resolver) lookup(ctx context.Context, profile string, host config.ResolverHost) (string, error) {
	req := models.ListRequest{
		Target:        profile,
		ExtractorArgs: ExtractorArgs(host),
		Limit:         1,
	}
	if r.creds != nil && r.creds.Exists() {
		req.CookiesFile = r.creds.CurrentPath()
	}

	entries, err := r.lister.List(ctx, req)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}

	first := entries[0]
	if first.UploaderID != "" {
		return first.UploaderID, nil
	}
	return first.ChannelID, nil
}

func (r *Resolver) brokenExpired(e models.CacheEntry) bool {
	if r.opts.BrokenTTL <= 0 {
		return false
	}
	return r.now().Sub(e.UpdatedAt) > r.opts.BrokenTTL
}

// Cache returns the underlying cache
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// ExtractorArgs renders a resolver host as yt-dlp extractor arguments
func ExtractorArgs(h config.ResolverHost) string {
	var parts []string
	if h.APIHostname != "" {
		parts = append(parts, "api_hostname="+h.APIHostname)
	}
	if h.Skip != "" {
		parts = append(parts, "skip="+h.Skip)
	}
	if len(parts) == 0 {
		return ""
	}
	return "tiktok:" + strings.Join(parts, ";")
}

func hostLabel(h config.ResolverHost) string {
	if h.APIHostname == "" {
		return "default"
	}
	return h.APIHostname
}

// Package locator lists an account's recent entries and picks the newest
// one worth ingesting.
package locator

import (
	"context"
	"strings"

	"ttharvest/pkg/models"
)

// DefaultLimit bounds the number of entries requested per listing
const DefaultLimit = 10

var (
	liveStatuses = map[string]bool{
		"is_live":     true,
		"is_upcoming": true,
		"post_live":   true,
	}

	liveKeywords = []string{"livestream", "live stream", "đang live", "live now"}
)

// Lister performs a listing call
type Lister interface {
	List(ctx context.Context, req models.ListRequest) ([]models.ContentEntry, error)
}

// Locator finds the newest valid entry for a resolved target
type Locator struct {
	BaseURL string
	Limit   int
}

// New creates a Locator
func New(baseURL string, limit int) *Locator {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Locator{BaseURL: strings.TrimRight(baseURL, "/"), Limit: limit}
}

// Request builds the listing request for a target. Stable ids go through the
// API-style extractor, profile URLs through the web-style one.
func (l *Locator) Request(target models.ResolvedTarget, cookiesFile string) models.ListRequest {
	args := "tiktok:skip=api"
	if target.Kind == models.TargetStableID {
		args = "tiktok:skip=web"
	}
	return models.ListRequest{
		Target:        target.Value,
		ExtractorArgs: args,
		Limit:         l.Limit,
		CookiesFile:   cookiesFile,
	}
}

// ListRecent lists recent entries and drops the ones that cannot be selected
func (l *Locator) ListRecent(ctx context.Context, lister Lister, target models.ResolvedTarget, cookiesFile string) ([]models.ContentEntry, error) {
	entries, err := lister.List(ctx, l.Request(target, cookiesFile))
	if err != nil {
		return nil, err
	}
	return Filter(entries), nil
}

// ContentURL normalizes an entry address regardless of the listing mode
func (l *Locator) ContentURL(handle, id string) string {
	return l.BaseURL + "/@" + handle + "/video/" + id
}

// IsLivestream reports whether an entry is a live or upcoming broadcast
func IsLivestream(e models.ContentEntry) bool {
	if e.IsLive || liveStatuses[e.LiveStatus] {
		return true
	}
	if isLiveURL(e.URL) || isLiveURL(e.WebpageURL) {
		return true
	}

	title := strings.ToLower(e.Title)
	for _, k := range liveKeywords {
		if strings.Contains(title, k) {
			return true
		}
	}
	return false
}

// isLiveURL matches a /live path segment, case-insensitively
func isLiveURL(u string) bool {
	u = strings.ToLower(u)
	if strings.Contains(u, "/live/") {
		return true
	}
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.HasSuffix(u, "/live")
}

// Valid reports whether an entry can be selected
func Valid(e models.ContentEntry) bool {
	return !IsLivestream(e) && !e.IsPinned && e.Timestamp != nil
}

// Filter keeps the valid entries in order
func Filter(entries []models.ContentEntry) []models.ContentEntry {
	out := make([]models.ContentEntry, 0, len(entries))
	for _, e := range entries {
		if Valid(e) {
			out = append(out, e)
		}
	}
	return out
}

// Newest returns the valid entry with the largest timestamp
func Newest(entries []models.ContentEntry) (models.ContentEntry, bool) {
	var (
		best  models.ContentEntry
		found bool
	)
	for _, e := range entries {
		if !Valid(e) {
			continue
		}
		if !found || *e.Timestamp > *best.Timestamp {
			best = e
			found = true
		}
	}
	return best, found
}

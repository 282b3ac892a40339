package models

import (
	"strings"
	"time"
)

// TrackedSource is one account the harvester checks each run
type TrackedSource struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
}

// NormalizeHandle strips whitespace, a leading "@" and, for profile URLs,
// everything but the handle itself.
func NormalizeHandle(raw string) string {
	h := strings.TrimSpace(raw)
	if i := strings.Index(h, "/@"); i >= 0 {
		h = h[i+2:]
		if j := strings.IndexAny(h, "/?#"); j >= 0 {
			h = h[:j]
		}
	}
	return strings.TrimPrefix(h, "@")
}

// CacheStatus is the state of a handle in the resolution cache
type CacheStatus string

const (
	StatusUnresolved CacheStatus = "unresolved"
	StatusResolved   CacheStatus = "resolved"
	StatusBroken     CacheStatus = "broken"
)

// CacheEntry is a persisted resolution outcome
type CacheEntry struct {
	Handle    string      `json:"-"`
	Status    CacheStatus `json:"status"`
	StableID  string      `json:"stable_id,omitempty"`
	Source    string      `json:"source,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TargetKind tells how a resolved target is addressed
type TargetKind int

const (
	TargetProfileURL TargetKind = iota
	TargetStableID
)

func (k TargetKind) String() string {
	if k == TargetStableID {
		return "stable_id"
	}
	return "profile_url"
}

// StableIDPrefix prefixes stable user identifiers understood by the extractor
const StableIDPrefix = "tiktokuser:"

// ResolvedTarget is the addressing form passed to the content locator
type ResolvedTarget struct {
	Kind  TargetKind
	Value string
}

// StableIDTarget builds the stable-id form of a target
func StableIDTarget(secUID string) ResolvedTarget {
	return ResolvedTarget{Kind: TargetStableID, Value: StableIDPrefix + secUID}
}

// ProfileURLTarget builds the profile-URL form of a target
func ProfileURLTarget(baseURL, handle string) ResolvedTarget {
	return ResolvedTarget{Kind: TargetProfileURL, Value: ProfileURL(baseURL, handle)}
}

// ProfileURL returns the public profile URL of a handle
func ProfileURL(baseURL, handle string) string {
	return strings.TrimRight(baseURL, "/") + "/@" + handle
}

// ContentEntry is one item from a listing call
type ContentEntry struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	WebpageURL string `json:"webpage_url"`
	Title      string `json:"title"`
	Timestamp  *int64 `json:"timestamp"`
	IsPinned   bool   `json:"is_pinned"`
	IsLive     bool   `json:"is_live"`
	LiveStatus string `json:"live_status"`
	UploaderID string `json:"uploader_id"`
	ChannelID  string `json:"channel_id"`
}

// StrategyKind names an extraction strategy
type StrategyKind string

const (
	StrategyPrimary   StrategyKind = "primary"
	StrategySecondary StrategyKind = "secondary"
)

// AcquisitionRecord is one ingested content item
type AcquisitionRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	AudioPath string    `json:"audio_path"`
	CreatedAt time.Time `json:"created_at"`
}

// SourceStatus is the per-run outcome of a tracked source
type SourceStatus string

const (
	StatusSucceeded SourceStatus = "succeeded"
	StatusSkipped   SourceStatus = "skipped"
	StatusFailed    SourceStatus = "failed"
)

// SourceResult is the outcome of one source in a run
type SourceResult struct {
	Handle      string        `json:"handle"`
	DisplayName string        `json:"display_name"`
	Status      SourceStatus  `json:"status"`
	Reason      string        `json:"reason"`
	URL         string        `json:"url,omitempty"`
	Strategy    StrategyKind  `json:"strategy,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Summary partitions a run's sources by outcome
type Summary struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Results    []SourceResult `json:"results"`
}

// Succeeded returns the succeeded sources
func (s *Summary) Succeeded() []SourceResult { return s.filter(StatusSucceeded) }

// Skipped returns the skipped sources
func (s *Summary) Skipped() []SourceResult { return s.filter(StatusSkipped) }

// Failed returns the failed sources
func (s *Summary) Failed() []SourceResult { return s.filter(StatusFailed) }

func (s *Summary) filter(status SourceStatus) []SourceResult {
	var out []SourceResult
	for _, r := range s.Results {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

// ListRequest asks an extraction strategy for a content listing
type ListRequest struct {
	// Target is a profile URL or a stable-id target
	Target string
	// ExtractorArgs is passed verbatim as yt-dlp --extractor-args, e.g. "tiktok:skip=web"
	ExtractorArgs string
	// Limit bounds the number of entries requested
	Limit int
	// CookiesFile is an optional Netscape cookie file
	CookiesFile string
}

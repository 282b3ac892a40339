// Package extract drives yt-dlp through two interchangeable strategies and
// chains them so a cookie-gated fallback is tried when the primary fails.
package extract

import (
	"context"
	"fmt"
	"time"

	"ttharvest/pkg/models"
)

// DownloadRequest asks a strategy to fetch and transcode one item
type DownloadRequest struct {
	URL string
	// OutputTemplate is a yt-dlp output template, e.g. downloads/audio/t_x_1.%(ext)s
	OutputTemplate string
	// ExpectedPath is where the transcoded artifact lands
	ExpectedPath string
	CookiesFile  string
}

// Strategy is one way of listing and downloading platform content
type Strategy interface {
	Kind() models.StrategyKind
	List(ctx context.Context, req models.ListRequest) ([]models.ContentEntry, error)
	Download(ctx context.Context, req DownloadRequest) (string, error)
}

// AudioOptions are the transcoding parameters shared by both strategies
type AudioOptions struct {
	Format  string
	Quality string
}

// Options configures both strategies
type Options struct {
	Binary          string
	ListTimeout     time.Duration
	DownloadTimeout time.Duration
	Audio           AudioOptions
}

func (o Options) withDefaults() Options {
	if o.Binary == "" {
		o.Binary = "yt-dlp"
	}
	if o.ListTimeout <= 0 {
		o.ListTimeout = 120 * time.Second
	}
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = 300 * time.Second
	}
	if o.Audio.Format == "" {
		o.Audio.Format = "mp3"
	}
	if o.Audio.Quality == "" {
		o.Audio.Quality = "192K"
	}
	return o
}

func playlistItems(limit int) string {
	if limit <= 0 {
		limit = 10
	}
	if limit == 1 {
		return "1"
	}
	return fmt.Sprintf("1-%d", limit)
}


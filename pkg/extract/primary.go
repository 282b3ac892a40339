package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/lrstanley/go-ytdlp"
	"ttharvest/pkg/logger"
	"ttharvest/pkg/models"
)

// Primary drives yt-dlp through the go-ytdlp command builder
type Primary struct {
	opts   Options
	logger logger.Logger
}

// NewPrimary creates the primary strategy
func NewPrimary(opts Options, log logger.Logger) *Primary {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Primary{
		opts:   opts.withDefaults(),
		logger: log.WithField("strategy", string(models.StrategyPrimary)),
	}
}

func (p *Primary) Kind() models.StrategyKind {
	return models.StrategyPrimary
}

func (p *Primary) command() *ytdlp.Command {
	cmd := ytdlp.New().
		NoWarnings().
		NoProgress()
	if p.opts.Binary != "" {
		cmd = cmd.SetExecutable(p.opts.Binary)
	}
	return cmd
}

// List returns the first req.Limit entries of a profile or stable-id target
func (p *Primary) List(ctx context.Context, req models.ListRequest) ([]models.ContentEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ListTimeout)
	defer cancel()

	cmd := p.command().
		SkipDownload().
		DumpJSON().
		FlatPlaylist().
		PlaylistItems(playlistItems(req.Limit))
	if req.ExtractorArgs != "" {
		cmd = cmd.ExtractorArgs(req.ExtractorArgs)
	}
	if req.CookiesFile != "" {
		cmd = cmd.Cookies(req.CookiesFile)
	}

	result, err := cmd.Run(ctx, req.Target)
	if err != nil {
		return nil, resultError("list", result, err)
	}

	entries, err := ParseEntries(result.Stdout)
	if err != nil {
		return nil, err
	}
	p.logger.DebugWithFields("Listing completed", map[string]interface{}{
		"target":  req.Target,
		"entries": len(entries),
	})
	return entries, nil
}

// Download fetches the best audio stream and transcodes it
func (p *Primary) Download(ctx context.Context, req DownloadRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.DownloadTimeout)
	defer cancel()

	cmd := p.command().
		Format("bestaudio/best").
		ExtractAudio().
		AudioFormat(p.opts.Audio.Format).
		AudioQuality(p.opts.Audio.Quality).
		Output(req.OutputTemplate)
	if req.CookiesFile != "" {
		cmd = cmd.Cookies(req.CookiesFile)
	}

	result, err := cmd.Run(ctx, req.URL)
	if err != nil {
		return "", resultError("download", result, err)
	}

	if _, err := os.Stat(req.ExpectedPath); err != nil {
		return "", missingOutput(req.ExpectedPath)
	}
	return req.ExpectedPath, nil
}

// resultError folds yt-dlp's stderr into the error so failures can be
// classified by their text.
func resultError(op string, result *ytdlp.Result, err error) error {
	if result == nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	stderr := strings.TrimSpace(result.Stderr)
	if stderr == "" {
		return fmt.Errorf("%s: exit code %d: %w", op, result.ExitCode, err)
	}
	return fmt.Errorf("%s: %s: %w", op, lastLine(stderr), err)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); strings.HasPrefix(l, "ERROR") {
			return l
		}
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

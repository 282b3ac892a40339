package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"ttharvest/pkg/errors"
	"ttharvest/pkg/logger"
	"ttharvest/pkg/models"
)

// Runner executes a command and returns its captured output
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// ExecRunner runs commands with os/exec
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Secondary runs the yt-dlp binary as a separate process with the current
// cookie file. It handles cookie-gated profiles the primary cannot list.
type Secondary struct {
	opts   Options
	run    Runner
	logger logger.Logger
}

// NewSecondary creates the secondary strategy
func NewSecondary(opts Options, run Runner, log logger.Logger) *Secondary {
	if run == nil {
		run = ExecRunner
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Secondary{
		opts:   opts.withDefaults(),
		run:    run,
		logger: log.WithField("strategy", string(models.StrategySecondary)),
	}
}

func (s *Secondary) Kind() models.StrategyKind {
	return models.StrategySecondary
}

// List lists a target; a cookie file is required
func (s *Secondary) List(ctx context.Context, req models.ListRequest) ([]models.ContentEntry, error) {
	if req.CookiesFile == "" {
		return nil, errors.ErrNoCredential
	}

	args := []string{
		"--cookies", req.CookiesFile,
		"--skip-download",
		"--dump-json",
		"--flat-playlist",
		"--no-warnings",
		"--playlist-items", playlistItems(req.Limit),
	}
	if req.ExtractorArgs != "" {
		args = append(args, "--extractor-args", req.ExtractorArgs)
	}
	args = append(args, req.Target)

	stdout, err := s.exec(ctx, s.opts.ListTimeout, "list", args)
	if err != nil {
		return nil, err
	}
	return ParseEntries(string(stdout))
}

// Download fetches and transcodes one item
func (s *Secondary) Download(ctx context.Context, req DownloadRequest) (string, error) {
	args := []string{
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", s.opts.Audio.Format,
		"--audio-quality", s.opts.Audio.Quality,
		"--no-warnings",
		"-o", req.OutputTemplate,
	}
	if req.CookiesFile != "" {
		args = append(args, "--cookies", req.CookiesFile)
	}
	args = append(args, req.URL)

	if _, err := s.exec(ctx, s.opts.DownloadTimeout, "download", args); err != nil {
		return "", err
	}

	if _, err := os.Stat(req.ExpectedPath); err != nil {
		return "", missingOutput(req.ExpectedPath)
	}
	return req.ExpectedPath, nil
}

func (s *Secondary) exec(ctx context.Context, timeout time.Duration, op string, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.DebugWithFields("Running yt-dlp", map[string]interface{}{
		"op":   op,
		"args": strings.Join(args, " "),
	})

	stdout, stderr, err := s.run(ctx, s.opts.Binary, args...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%s: yt-dlp timed out after %s: %w", op, timeout, ctx.Err())
		}
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, fmt.Errorf("%s: %s: %w", op, lastLine(msg), err)
	}
	return stdout, nil
}

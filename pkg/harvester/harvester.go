package harvester

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ttharvest/pkg/cookies"
	"ttharvest/pkg/errors"
	"ttharvest/pkg/extract"
	"ttharvest/pkg/logger"
	"ttharvest/pkg/models"
	"ttharvest/pkg/recovery"
	"ttharvest/pkg/session"
)

const maxTitleLength = 50

// Catalog supplies the tracked sources for a run
type Catalog interface {
	Sources(ctx context.Context) ([]models.TrackedSource, error)
}

// Acquirer locates and downloads the newest item of a source
type Acquirer interface {
	Locate(ctx context.Context, handle string) (extract.Location, error)
	Download(ctx context.Context, loc extract.Location, recordID string) (string, error)
	Discard(recordID string) error
}

// Records is the acquisition record store
type Records interface {
	IsNew(ctx context.Context, url string) (bool, error)
	Insert(ctx context.Context, record models.AcquisitionRecord) (bool, error)
}

// Session refreshes the platform credential
type Session interface {
	Ensure(ctx context.Context, req session.Request) (*cookies.Credential, error)
}

// Locker guards against overlapping runs
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Pacer spaces out attempts against the platform
type Pacer interface {
	Wait(ctx context.Context) error
}

// PacerStats is implemented by pacers that count their waits
type PacerStats interface {
	Stats() (waits int, total time.Duration)
}

// Reporter persists a finished run
type Reporter interface {
	Write(summary *models.Summary) (string, error)
}

// Notifier announces a finished run
type Notifier interface {
	NotifyRun(summary *models.Summary, runErr error)
}

// Options tunes recovery behavior
type Options struct {
	// AutoRefresh refreshes an invalid credential before the first source
	AutoRefresh bool
	// RetryDelay is waited between a successful refresh and the retry
	RetryDelay recovery.BackoffStrategy
	// RateLimitBackoff is waited after a rate-limited source
	RateLimitBackoff recovery.BackoffStrategy
}

// Deps groups the collaborators of a Harvester. Session, Reporter and
// Notifier are optional.
type Deps struct {
	Locker   Locker
	Catalog  Catalog
	Acquirer Acquirer
	Records  Records
	Session  Session
	Pacer    Pacer
	Reporter Reporter
	Notifier Notifier
}

// Harvester runs one pass over every tracked source
type Harvester struct {
	deps   Deps
	opts   Options
	sleep  recovery.Sleeper
	now    func() time.Time
	logger logger.Logger
}

// New creates a Harvester
func New(deps Deps, opts Options, log logger.Logger) *Harvester {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.RetryDelay == nil {
		opts.RetryDelay = recovery.NewWindow(10*time.Second, 20*time.Second)
	}
	if opts.RateLimitBackoff == nil {
		opts.RateLimitBackoff = recovery.NewWindow(5*time.Minute, 15*time.Minute)
	}
	return &Harvester{
		deps:   deps,
		opts:   opts,
		sleep:  recovery.Wait,
		now:    time.Now,
		logger: log.WithField("component", "harvester"),
	}
}

// SetSleeper replaces the wait used for retry and rate-limit delays
func (h *Harvester) SetSleeper(s recovery.Sleeper) {
	h.sleep = s
}

// SetClock replaces the time source
func (h *Harvester) SetClock(now func() time.Time) {
	h.now = now
}

// runContext is the state of a single run
type runContext struct {
	id                 string
	sources            []models.TrackedSource
	retries            map[string]int
	refreshUnavailable bool
	summary            *models.Summary
	logger             logger.Logger
}

// Run processes every source once. On cancellation the partial summary is
// returned together with the context error.
func (h *Harvester) Run(ctx context.Context) (*models.Summary, error) {
	rc := &runContext{
		id:      uuid.NewString(),
		retries: make(map[string]int),
	}
	rc.summary = &models.Summary{RunID: rc.id, StartedAt: h.now()}
	rc.logger = h.logger.WithField("run_id", rc.id)

	if err := h.deps.Locker.Lock(ctx); err != nil {
		rc.logger.WithError(err).Error("Could not acquire run lock")
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	defer func() {
		if err := h.deps.Locker.Unlock(context.Background()); err != nil {
			rc.logger.WithError(err).Warn("Failed to release run lock")
		}
	}()

	sources, err := h.deps.Catalog.Sources(ctx)
	if err != nil {
		rc.logger.WithError(err).Error("Failed to load tracked sources")
		h.finish(rc, err)
		return rc.summary, fmt.Errorf("load sources: %w", err)
	}
	rc.sources = sources

	rc.logger.InfoWithFields("Run started", map[string]interface{}{
		"sources": len(sources),
	})

	if h.opts.AutoRefresh {
		h.ensureCredential(ctx, rc)
	}

	var runErr error
	for _, src := range rc.sources {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		res, err := h.processSource(ctx, rc, src)
		if err != nil {
			runErr = err
			break
		}
		rc.summary.Results = append(rc.summary.Results, res)
		logger.LogSourceResult(rc.logger, res.Handle, string(res.Status), res.Reason, res.Duration)
	}

	h.finish(rc, runErr)
	return rc.summary, runErr
}

// ensureCredential refreshes an invalid credential before the first source.
// Failures are logged; sources still run with whatever cookies exist.
func (h *Harvester) ensureCredential(ctx context.Context, rc *runContext) {
	if h.deps.Session == nil {
		return
	}
	_, err := h.deps.Session.Ensure(ctx, session.Request{Headless: true})
	switch {
	case err == nil:
	case errors.Is(err, errors.ErrRefreshUnavailable):
		rc.refreshUnavailable = true
		rc.logger.Warn("Session refresh unavailable, continuing with existing cookies")
	default:
		rc.logger.WithError(err).Warn("Session refresh failed, continuing with existing cookies")
	}
}

func (h *Harvester) processSource(ctx context.Context, rc *runContext, src models.TrackedSource) (models.SourceResult, error) {
	start := h.now()
	log := rc.logger.WithField("handle", src.Handle)

	if err := h.deps.Pacer.Wait(ctx); err != nil {
		return models.SourceResult{}, err
	}

	for {
		res, err := h.acquire(ctx, rc, src)
		if err == nil {
			res.Duration = h.now().Sub(start)
			return res, nil
		}
		if ctx.Err() != nil {
			return models.SourceResult{}, ctx.Err()
		}

		category := errors.Classify(err)
		decision := recovery.Decide(category, rc.retries[src.Handle])
		log.WithError(err).DebugWithFields("Acquisition failed", map[string]interface{}{
			"category": category.String(),
			"decision": decision.String(),
		})

		res = models.SourceResult{Handle: src.Handle, DisplayName: src.DisplayName}
		switch decision {
		case recovery.RefreshAndRetryOnce:
			rc.retries[src.Handle]++
			if !h.refresh(ctx, rc, log) {
				if ctx.Err() != nil {
					return models.SourceResult{}, ctx.Err()
				}
				res.Status = models.StatusFailed
				res.Reason = errors.Truncate(err, recovery.MaxReasonLength)
				break
			}
			delay := h.opts.RetryDelay.NextDelay(rc.retries[src.Handle])
			log.InfoWithFields("Retrying after session refresh", map[string]interface{}{
				"delay": delay.String(),
			})
			if err := h.sleep(ctx, delay); err != nil {
				return models.SourceResult{}, err
			}
			continue

		case recovery.BackoffAndContinue:
			delay := h.opts.RateLimitBackoff.NextDelay(0)
			logger.LogRateLimit(log, src.Handle, delay)
			if err := h.sleep(ctx, delay); err != nil {
				return models.SourceResult{}, err
			}
			res.Status = models.StatusFailed
			res.Reason = recovery.ReasonRateLimited

		case recovery.Skip:
			res.Status = models.StatusSkipped
			res.Reason = recovery.ReasonNotResolvable

		default:
			res.Status = models.StatusFailed
			res.Reason = errors.Truncate(err, recovery.MaxReasonLength)
		}

		res.Duration = h.now().Sub(start)
		return res, nil
	}
}

// refresh forces a credential refresh after an auth failure. It reports
// whether the source may be retried.
func (h *Harvester) refresh(ctx context.Context, rc *runContext, log logger.Logger) bool {
	if h.deps.Session == nil {
		log.Warn("No session manager configured, cannot refresh cookies")
		return false
	}
	if rc.refreshUnavailable {
		log.Warn("Session refresh unavailable, not retrying")
		return false
	}

	log.Info("Authentication required, refreshing session")
	if _, err := h.deps.Session.Ensure(ctx, session.Request{Force: true, Headless: true}); err != nil {
		if errors.Is(err, errors.ErrRefreshUnavailable) {
			rc.refreshUnavailable = true
		}
		log.WithError(err).Warn("Session refresh failed")
		return false
	}
	return true
}

// acquire locates the newest item of src and stores it if it is new
func (h *Harvester) acquire(ctx context.Context, rc *runContext, src models.TrackedSource) (models.SourceResult, error) {
	res := models.SourceResult{Handle: src.Handle, DisplayName: src.DisplayName}

	loc, err := h.deps.Acquirer.Locate(ctx, src.Handle)
	if err != nil {
		return res, err
	}
	res.URL = loc.URL
	res.Strategy = loc.Strategy

	isNew, err := h.deps.Records.IsNew(ctx, loc.URL)
	if err != nil {
		return res, fmt.Errorf("check record: %w", err)
	}
	if !isNew {
		res.Status = models.StatusSkipped
		res.Reason = recovery.ReasonAlreadyStored
		return res, nil
	}

	recordID := fmt.Sprintf("t_%s_%d", src.Handle, h.now().Unix())
	audioPath, err := h.deps.Acquirer.Download(ctx, loc, recordID)
	if err != nil {
		return res, err
	}

	inserted, err := h.deps.Records.Insert(ctx, models.AcquisitionRecord{
		ID:        recordID,
		Title:     loc.Title,
		URL:       loc.URL,
		AudioPath: audioPath,
		CreatedAt: h.now(),
	})
	if err != nil {
		h.discard(rc, recordID)
		return res, fmt.Errorf("insert record: %w", err)
	}
	if !inserted {
		h.discard(rc, recordID)
		res.Status = models.StatusSkipped
		res.Reason = recovery.ReasonAlreadyStored
		return res, nil
	}

	res.Status = models.StatusSucceeded
	res.Reason = truncate(loc.Title, maxTitleLength)
	return res, nil
}

// discard removes audio whose record was not stored
func (h *Harvester) discard(rc *runContext, recordID string) {
	if err := h.deps.Acquirer.Discard(recordID); err != nil {
		rc.logger.WithError(err).WithField("record", recordID).Warn("Failed to remove unrecorded audio")
	}
}

func (h *Harvester) finish(rc *runContext, runErr error) {
	rc.summary.FinishedAt = h.now()

	fields := map[string]interface{}{
		"succeeded": len(rc.summary.Succeeded()),
		"skipped":   len(rc.summary.Skipped()),
		"failed":    len(rc.summary.Failed()),
		"duration":  rc.summary.FinishedAt.Sub(rc.summary.StartedAt).String(),
	}
	if ps, ok := h.deps.Pacer.(PacerStats); ok {
		waits, total := ps.Stats()
		fields["paced"] = waits
		fields["pacing"] = total.String()
	}
	rc.logger.InfoWithFields("Run finished", fields)

	if h.deps.Reporter != nil {
		path, err := h.deps.Reporter.Write(rc.summary)
		if err != nil {
			rc.logger.WithError(err).Warn("Failed to write run report")
		} else {
			rc.logger.WithField("path", path).Debug("Run report written")
		}
	}
	if h.deps.Notifier != nil {
		h.deps.Notifier.NotifyRun(rc.summary, runErr)
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

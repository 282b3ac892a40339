package harvester

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttharvest/pkg/cookies"
	"ttharvest/pkg/errors"
	"ttharvest/pkg/extract"
	"ttharvest/pkg/logger"
	"ttharvest/pkg/models"
	"ttharvest/pkg/recovery"
	"ttharvest/pkg/session"
	"ttharvest/pkg/storage"
)

type fakeLocker struct {
	err      error
	locked   int
	unlocked int
}

func (f *fakeLocker) Lock(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.locked++
	return nil
}

func (f *fakeLocker) Unlock(ctx context.Context) error {
	f.unlocked++
	return nil
}

type fakeCatalog struct {
	sources []models.TrackedSource
	err     error
	calls   int
}

func (f *fakeCatalog) Sources(ctx context.Context) ([]models.TrackedSource, error) {
	f.calls++
	return f.sources, f.err
}

type step struct {
	loc extract.Location
	err error
}

// fakeAcquirer replays scripted Locate outcomes per handle; the last step repeats
type fakeAcquirer struct {
	mu          sync.Mutex
	steps       map[string][]step
	downloadErr map[string]error
	locateCalls map[string]int
	downloads   []string
	discarded   []string
	onLocate    func(handle string)
}

func newFakeAcquirer() *fakeAcquirer {
	return &fakeAcquirer{
		steps:       make(map[string][]step),
		downloadErr: make(map[string]error),
		locateCalls: make(map[string]int),
	}
}

func (f *fakeAcquirer) found(handle, id, title string) {
	f.steps[handle] = append(f.steps[handle], step{loc: extract.Location{
		Handle:   handle,
		EntryID:  id,
		URL:      "https://www.tiktok.com/@" + handle + "/video/" + id,
		Title:    title,
		Strategy: models.StrategyPrimary,
	}})
}

func (f *fakeAcquirer) fails(handle string, err error) {
	f.steps[handle] = append(f.steps[handle], step{err: err})
}

func (f *fakeAcquirer) Locate(ctx context.Context, handle string) (extract.Location, error) {
	f.mu.Lock()
	f.locateCalls[handle]++
	n := f.locateCalls[handle]
	steps := f.steps[handle]
	f.mu.Unlock()

	if f.onLocate != nil {
		f.onLocate(handle)
	}
	if err := ctx.Err(); err != nil {
		return extract.Location{}, err
	}
	if len(steps) == 0 {
		return extract.Location{}, errors.ErrNoContent
	}
	i := n - 1
	if i >= len(steps) {
		i = len(steps) - 1
	}
	return steps[i].loc, steps[i].err
}

func (f *fakeAcquirer) Download(ctx context.Context, loc extract.Location, recordID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.downloadErr[loc.Handle]; err != nil {
		return "", err
	}
	f.downloads = append(f.downloads, recordID)
	return "/audio/" + recordID + ".mp3", nil
}

func (f *fakeAcquirer) Discard(recordID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded = append(f.discarded, recordID)
	return nil
}

type fakeSession struct {
	err      error
	requests []session.Request
}

func (f *fakeSession) Ensure(ctx context.Context, req session.Request) (*cookies.Credential, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &cookies.Credential{Path: "cookies.txt"}, nil
}

type countingPacer struct{ waits int }

func (p *countingPacer) Wait(ctx context.Context) error {
	p.waits++
	return ctx.Err()
}

func (p *countingPacer) Stats() (int, time.Duration) {
	return p.waits, time.Duration(p.waits) * 45 * time.Second
}

type fakeReporter struct{ written []*models.Summary }

func (f *fakeReporter) Write(summary *models.Summary) (string, error) {
	f.written = append(f.written, summary)
	return "reports/run.json", nil
}

type fakeNotifier struct {
	summaries []*models.Summary
	errs      []error
}

func (f *fakeNotifier) NotifyRun(summary *models.Summary, runErr error) {
	f.summaries = append(f.summaries, summary)
	f.errs = append(f.errs, runErr)
}

type fixture struct {
	locker   *fakeLocker
	catalog  *fakeCatalog
	acquirer *fakeAcquirer
	records  *storage.MemoryStore
	session  *fakeSession
	pacer    *countingPacer
	reporter *fakeReporter
	notifier *fakeNotifier
	sleeps   []time.Duration
	log      *logger.TestLogger
}

func newFixture(handles ...string) *fixture {
	f := &fixture{
		locker:   &fakeLocker{},
		catalog:  &fakeCatalog{},
		acquirer: newFakeAcquirer(),
		records:  storage.NewMemoryStore(),
		session:  &fakeSession{},
		pacer:    &countingPacer{},
		reporter: &fakeReporter{},
		notifier: &fakeNotifier{},
		log:      logger.NewTestLogger(),
	}
	for _, h := range handles {
		f.catalog.sources = append(f.catalog.sources, models.TrackedSource{Handle: h, DisplayName: strings.ToUpper(h)})
	}
	return f
}

func (f *fixture) harvester(opts Options) *Harvester {
	h := New(Deps{
		Locker:   f.locker,
		Catalog:  f.catalog,
		Acquirer: f.acquirer,
		Records:  f.records,
		Session:  f.session,
		Pacer:    f.pacer,
		Reporter: f.reporter,
		Notifier: f.notifier,
	}, opts, f.log)
	h.SetSleeper(func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return ctx.Err()
	})
	h.SetClock(func() time.Time { return time.Unix(1700000000, 0) })
	return h
}

func resultFor(t *testing.T, s *models.Summary, handle string) models.SourceResult {
	t.Helper()
	for _, r := range s.Results {
		if r.Handle == handle {
			return r
		}
	}
	t.Fatalf("no result for %s", handle)
	return models.SourceResult{}
}

func TestRunPartitionsSources(t *testing.T) {
	f := newFixture("fresh", "stored", "live", "broken")
	f.acquirer.found("fresh", "1", "a new upload")
	f.acquirer.found("stored", "2", "old upload")
	f.acquirer.fails("live", fmt.Errorf("ERROR: [TikTok] live: Unable to extract secondary user ID"))
	f.acquirer.fails("broken", fmt.Errorf("ERROR: [TikTok] broken: Unable to download webpage: connection reset by peer while reading the response body"))

	_, err := f.records.Insert(context.Background(), models.AcquisitionRecord{
		ID:  "t_stored_1",
		URL: "https://www.tiktok.com/@stored/video/2",
	})
	require.NoError(t, err)

	summary, err := f.harvester(Options{}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Results, 4)

	assert.Len(t, summary.Succeeded(), 1)
	assert.Len(t, summary.Skipped(), 2)
	assert.Len(t, summary.Failed(), 1)

	fresh := resultFor(t, summary, "fresh")
	assert.Equal(t, "a new upload", fresh.Reason)
	assert.Equal(t, "FRESH", fresh.DisplayName)
	assert.Equal(t, models.StrategyPrimary, fresh.Strategy)

	assert.Equal(t, recovery.ReasonAlreadyStored, resultFor(t, summary, "stored").Reason)
	assert.Equal(t, recovery.ReasonNotResolvable, resultFor(t, summary, "live").Reason)

	broken := resultFor(t, summary, "broken")
	assert.Equal(t, models.StatusFailed, broken.Status)
	assert.Len(t, []rune(broken.Reason), recovery.MaxReasonLength)

	assert.Equal(t, 4, f.pacer.waits)
	assert.Empty(t, f.acquirer.discarded)
	var finished []logger.LogMessage
	for _, m := range f.log.GetMessagesByLevel("INFO") {
		if m.Message == "Run finished" {
			finished = append(finished, m)
		}
	}
	require.Len(t, finished, 1)
	assert.Equal(t, 4, finished[0].Fields["paced"])
	assert.Equal(t, (3 * time.Minute).String(), finished[0].Fields["pacing"])
	assert.Equal(t, 1, f.locker.locked)
	assert.Equal(t, 1, f.locker.unlocked)
	assert.Len(t, f.reporter.written, 1)
	require.Len(t, f.notifier.errs, 1)
	assert.NoError(t, f.notifier.errs[0])
	assert.NotEmpty(t, summary.RunID)
}

func TestRunStoresRecord(t *testing.T) {
	f := newFixture("creator")
	title := strings.Repeat("long title ", 10)
	f.acquirer.found("creator", "42", title)

	summary, err := f.harvester(Options{}).Run(context.Background())
	require.NoError(t, err)

	records := f.records.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "t_creator_1700000000", records[0].ID)
	assert.Equal(t, "https://www.tiktok.com/@creator/video/42", records[0].URL)
	assert.Equal(t, "/audio/t_creator_1700000000.mp3", records[0].AudioPath)
	assert.Equal(t, title, records[0].Title)

	assert.Equal(t, []rune(title)[:maxTitleLength], []rune(summary.Results[0].Reason))
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture("a", "b")
	f.acquirer.found("a", "1", "first")
	f.acquirer.found("b", "2", "second")

	h := f.harvester(Options{})
	first, err := h.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, first.Succeeded(), 2)

	second, err := h.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second.Succeeded())
	assert.Len(t, second.Skipped(), 2)

	assert.Len(t, f.acquirer.downloads, 2)
	assert.Len(t, f.records.Records(), 2)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestAuthFailureRefreshesAndRetriesOnce(t *testing.T) {
	f := newFixture("creator")
	f.acquirer.fails("creator", fmt.Errorf("ERROR: This account is private"))
	f.acquirer.found("creator", "7", "after refresh")

	summary, err := f.harvester(Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusSucceeded, summary.Results[0].Status)
	assert.Equal(t, 2, f.acquirer.locateCalls["creator"])
	require.Len(t, f.session.requests, 1)
	assert.Equal(t, session.Request{Force: true, Headless: true}, f.session.requests[0])

	require.Len(t, f.sleeps, 1)
	assert.GreaterOrEqual(t, f.sleeps[0], 10*time.Second)
	assert.LessOrEqual(t, f.sleeps[0], 20*time.Second)
	assert.Equal(t, 1, f.pacer.waits)
}

func TestAuthFailureTwiceFails(t *testing.T) {
	f := newFixture("creator", "next")
	f.acquirer.fails("creator", fmt.Errorf("Please log in to view this account"))
	f.acquirer.found("next", "9", "ok")

	summary, err := f.harvester(Options{}).Run(context.Background())
	require.NoError(t, err)

	res := resultFor(t, summary, "creator")
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Equal(t, "Please log in to view this account", res.Reason)
	assert.Equal(t, 2, f.acquirer.locateCalls["creator"])
	assert.Len(t, f.session.requests, 1)

	assert.Equal(t, models.StatusSucceeded, resultFor(t, summary, "next").Status)
}

func TestRefreshUnavailableIsNotRetried(t *testing.T) {
	f := newFixture("one", "two")
	f.session.err = errors.ErrRefreshUnavailable
	f.acquirer.fails("one", fmt.Errorf("video is private"))
	f.acquirer.fails("two", fmt.Errorf("video is private"))

	summary, err := f.harvester(Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, summary.Failed(), 2)
	assert.Len(t, f.session.requests, 1)
	assert.Equal(t, 1, f.acquirer.locateCalls["one"])
	assert.Equal(t, 1, f.acquirer.locateCalls["two"])
	assert.Empty(t, f.sleeps)
}

func TestRateLimitBacksOffAndContinues(t *testing.T) {
	f := newFixture("limited", "after")
	f.acquirer.fails("limited", fmt.Errorf("HTTP Error 429: Too Many Requests"))
	f.acquirer.found("after", "3", "still fine")

	summary, err := f.harvester(Options{}).Run(context.Background())
	require.NoError(t, err)

	limited := resultFor(t, summary, "limited")
	assert.Equal(t, models.StatusFailed, limited.Status)
	assert.Equal(t, recovery.ReasonRateLimited, limited.Reason)
	assert.Equal(t, models.StatusSucceeded, resultFor(t, summary, "after").Status)

	require.Len(t, f.sleeps, 1)
	assert.GreaterOrEqual(t, f.sleeps[0], 5*time.Minute)
	assert.LessOrEqual(t, f.sleeps[0], 15*time.Minute)
	assert.True(t, f.log.HasMessage("Rate limit reached"))
}

func TestDownloadFailureIsClassified(t *testing.T) {
	f := newFixture("creator")
	f.acquirer.found("creator", "5", "title")
	f.acquirer.downloadErr["creator"] = errors.Wrap(errors.ErrorTypeDownloadFailed, "download", fmt.Errorf("HTTP Error 429"))

	summary, err := f.harvester(Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, recovery.ReasonRateLimited, summary.Results[0].Reason)
	assert.Empty(t, f.records.Records())
}

func TestCancellationReturnsPartialSummary(t *testing.T) {
	f := newFixture("first", "second", "third")
	f.acquirer.found("first", "1", "one")
	f.acquirer.found("second", "2", "two")
	f.acquirer.found("third", "3", "three")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.acquirer.onLocate = func(handle string) {
		if handle == "second" {
			cancel()
		}
	}

	summary, err := f.harvester(Options{}).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, "first", summary.Results[0].Handle)
	assert.Zero(t, f.acquirer.locateCalls["third"])
	assert.Equal(t, 1, f.locker.unlocked)
	require.Len(t, f.notifier.errs, 1)
	assert.ErrorIs(t, f.notifier.errs[0], context.Canceled)
}

func TestRunFailsWhenLockHeld(t *testing.T) {
	f := newFixture("creator")
	f.locker.err = fmt.Errorf("held by pid 1")

	summary, err := f.harvester(Options{}).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Zero(t, f.catalog.calls)
	assert.Zero(t, f.locker.unlocked)
}

func TestRunFailsWhenCatalogUnavailable(t *testing.T) {
	f := newFixture()
	f.catalog.err = fmt.Errorf("connection refused")

	summary, err := f.harvester(Options{}).Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, summary)
	assert.Empty(t, summary.Results)
	assert.Equal(t, 1, f.locker.unlocked)
}

func TestAutoRefreshBeforeFirstSource(t *testing.T) {
	f := newFixture("creator")
	f.acquirer.found("creator", "1", "title")

	_, err := f.harvester(Options{AutoRefresh: true}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, f.session.requests, 1)
	assert.Equal(t, session.Request{Headless: true}, f.session.requests[0])
}

func TestAutoRefreshUnavailableMarksRun(t *testing.T) {
	f := newFixture("creator")
	f.session.err = errors.ErrRefreshUnavailable
	f.acquirer.fails("creator", fmt.Errorf("private video"))

	summary, err := f.harvester(Options{AutoRefresh: true}).Run(context.Background())
	require.NoError(t, err)

	// the startup attempt marks refresh unavailable; the auth failure does not try again
	assert.Len(t, f.session.requests, 1)
	assert.Equal(t, models.StatusFailed, summary.Results[0].Status)
}

// racingRecords reports every url as new but never stores it
type racingRecords struct{ insertErr error }

func (racingRecords) IsNew(ctx context.Context, url string) (bool, error) { return true, nil }

func (r racingRecords) Insert(ctx context.Context, rec models.AcquisitionRecord) (bool, error) {
	return false, r.insertErr
}

func TestUnstoredAudioIsDiscarded(t *testing.T) {
	f := newFixture("creator")
	f.acquirer.found("creator", "8", "title")
	h := f.harvester(Options{})
	h.deps.Records = racingRecords{}

	summary, err := h.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, recovery.ReasonAlreadyStored, summary.Results[0].Reason)
	assert.Equal(t, []string{"t_creator_1700000000"}, f.acquirer.discarded)

	f = newFixture("creator")
	f.acquirer.found("creator", "8", "title")
	h = f.harvester(Options{})
	h.deps.Records = racingRecords{insertErr: fmt.Errorf(`column "video_id" does not exist`)}

	summary, err = h.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, summary.Results[0].Status)
	assert.Equal(t, []string{"t_creator_1700000000"}, f.acquirer.discarded)
}

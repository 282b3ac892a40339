package session

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttharvest/pkg/auth"
	"ttharvest/pkg/cookies"
	"ttharvest/pkg/errors"
	"ttharvest/pkg/logger"
)

func TestWaitForSucceeds(t *testing.T) {
	calls := 0
	err := WaitFor(context.Background(), 5*time.Millisecond, time.Second, func(ctx context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWaitForTimeout(t *testing.T) {
	err := WaitFor(context.Background(), 5*time.Millisecond, 30*time.Millisecond, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, errors.ErrRefreshTimeout)
}

func TestWaitForCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WaitFor(ctx, 5*time.Millisecond, time.Second, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, errors.ErrRefreshTimeout))
}

func TestWaitForConditionError(t *testing.T) {
	boom := stderrors.New("boom")
	err := WaitFor(context.Background(), 5*time.Millisecond, time.Second, func(ctx context.Context) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}

// fakePage reports an auth cookie after a number of polls
type fakePage struct {
	mu          sync.Mutex
	loginAfter  int
	polls       int
	injected    []cookies.Cookie
	navigated   []string
	scrolled    bool
	closed      bool
	cookieValue string
	stall       bool
}

func (p *fakePage) SetCookies(ctx context.Context, cs []cookies.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.injected = append(p.injected, cs...)
	return nil
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.navigated = append(p.navigated, url)
	if p.stall {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (p *fakePage) Cookies(ctx context.Context) ([]cookies.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	out := []cookies.Cookie{{Domain: ".tiktok.com", Path: "/", Name: "tt_webid", Value: "w", Expires: 1900000000}}
	if p.loginAfter >= 0 && p.polls > p.loginAfter {
		out = append(out, cookies.Cookie{Domain: ".tiktok.com", Path: "/", Name: "sessionid", Value: p.cookieValue, Expires: 1900000000})
	}
	return out, nil
}

func (p *fakePage) Scroll(ctx context.Context) error {
	p.scrolled = true
	return nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeBrowser struct {
	unavailable bool
	page        *fakePage
	opened      []OpenOptions
}

func (b *fakeBrowser) Available() error {
	if b.unavailable {
		return errors.ErrRefreshUnavailable
	}
	return nil
}

func (b *fakeBrowser) Open(ctx context.Context, opts OpenOptions) (Page, error) {
	b.opened = append(b.opened, opts)
	return b.page, nil
}

type recordingExporter struct {
	exported []cookies.Cookie
}

func (r *recordingExporter) Export(all []cookies.Cookie) (*cookies.Credential, error) {
	r.exported = all
	return &cookies.Credential{Cookies: all, CapturedAt: time.Now(), Path: "cookies/tiktok_refreshed.txt"}, nil
}

func newController(b Browser, snapshots auth.SnapshotStore, exp Exporter, prompted *int) *Controller {
	return NewController(b, snapshots, exp, ControllerOptions{
		BaseURL:      "https://www.tiktok.com",
		PollInterval: 5 * time.Millisecond,
		Prompt: func(string, time.Duration) {
			if prompted != nil {
				*prompted++
			}
		},
	}, logger.NewNopLogger())
}

func savedSnapshot() *auth.Snapshot {
	return &auth.Snapshot{Cookies: []cookies.Cookie{{Domain: ".tiktok.com", Name: "sessionid", Value: "old", Expires: 1900000000}}}
}

func TestRefreshHeadlessWithSnapshot(t *testing.T) {
	page := &fakePage{loginAfter: 1, cookieValue: "fresh"}
	browser := &fakeBrowser{page: page}
	snapshots := auth.NewMockStoreWith(savedSnapshot())
	exporter := &recordingExporter{}
	prompted := 0

	cred, err := newController(browser, snapshots, exporter, &prompted).Refresh(context.Background(), Headless, time.Second)
	require.NoError(t, err)

	require.Len(t, browser.opened, 1)
	assert.True(t, browser.opened[0].Headless)
	assert.Equal(t, 0, prompted)
	assert.Len(t, page.injected, 1)
	assert.Equal(t, []string{"https://www.tiktok.com"}, page.navigated)
	assert.True(t, page.scrolled)
	assert.True(t, page.closed)

	assert.Len(t, cred.Cookies, 2)
	assert.Len(t, exporter.exported, 2)
	assert.Equal(t, 1, snapshots.Saves())
	saved, err := snapshots.Load()
	require.NoError(t, err)
	assert.Equal(t, "fresh", saved.Cookies[1].Value)
}

func TestRefreshWithoutSnapshotForcesInteractive(t *testing.T) {
	page := &fakePage{loginAfter: 0, cookieValue: "s"}
	browser := &fakeBrowser{page: page}
	prompted := 0

	_, err := newController(browser, auth.NewMockStore(), &recordingExporter{}, &prompted).Refresh(context.Background(), Headless, time.Second)
	require.NoError(t, err)

	require.Len(t, browser.opened, 1)
	assert.False(t, browser.opened[0].Headless)
	assert.Equal(t, 1, prompted)
	assert.Empty(t, page.injected)
}

func TestRefreshTimeout(t *testing.T) {
	page := &fakePage{loginAfter: -1}
	exporter := &recordingExporter{}
	snapshots := auth.NewMockStoreWith(savedSnapshot())

	_, err := newController(&fakeBrowser{page: page}, snapshots, exporter, nil).Refresh(context.Background(), Headless, 30*time.Millisecond)
	assert.ErrorIs(t, err, errors.ErrRefreshTimeout)
	assert.Nil(t, exporter.exported)
	assert.Equal(t, 0, snapshots.Saves())
	assert.True(t, page.closed)
}

func TestRefreshStalledNavigationTimesOut(t *testing.T) {
	page := &fakePage{loginAfter: 0, cookieValue: "s", stall: true}
	snapshots := auth.NewMockStoreWith(savedSnapshot())

	done := make(chan error, 1)
	go func() {
		_, err := newController(&fakeBrowser{page: page}, snapshots, &recordingExporter{}, nil).Refresh(context.Background(), Headless, 30*time.Millisecond)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errors.ErrRefreshTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not honour its timeout while the page was loading")
	}
	assert.True(t, page.closed)
}

func TestRefreshCancelledIsNotTimeout(t *testing.T) {
	page := &fakePage{loginAfter: -1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newController(&fakeBrowser{page: page}, auth.NewMockStoreWith(savedSnapshot()), &recordingExporter{}, nil).Refresh(ctx, Headless, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, errors.ErrRefreshTimeout)
}

func TestRefreshEmptyAuthCookieIsNotLogin(t *testing.T) {
	page := &fakePage{loginAfter: 0, cookieValue: "  "}
	_, err := newController(&fakeBrowser{page: page}, auth.NewMockStore(), &recordingExporter{}, nil).Refresh(context.Background(), Interactive, 30*time.Millisecond)
	assert.ErrorIs(t, err, errors.ErrRefreshTimeout)
}

func TestRefreshUnavailable(t *testing.T) {
	_, err := newController(&fakeBrowser{unavailable: true}, auth.NewMockStore(), &recordingExporter{}, nil).Refresh(context.Background(), Headless, time.Second)
	assert.ErrorIs(t, err, errors.ErrRefreshUnavailable)
}

// fakeRefresher records the modes it was asked for
type fakeRefresher struct {
	snapshot bool
	results  map[Mode]error
	calls    []Mode
	timeouts []time.Duration
}

func (f *fakeRefresher) HasSnapshot() bool { return f.snapshot }

func (f *fakeRefresher) Refresh(ctx context.Context, mode Mode, timeout time.Duration) (*cookies.Credential, error) {
	f.calls = append(f.calls, mode)
	f.timeouts = append(f.timeouts, timeout)
	if err := f.results[mode]; err != nil {
		return nil, err
	}
	return &cookies.Credential{Path: mode.String()}, nil
}

type fakeCreds struct{ valid bool }

func (f fakeCreds) IsValid() bool { return f.valid }
func (f fakeCreds) Load() (*cookies.Credential, error) {
	return &cookies.Credential{Path: "current"}, nil
}

func newManager(r *fakeRefresher, valid, allowInteractive bool) *Manager {
	return NewManager(r, fakeCreds{valid: valid}, ManagerOptions{AllowInteractive: allowInteractive}, logger.NewNopLogger())
}

func TestEnsurePolicy(t *testing.T) {
	timeout := stderrors.New("timed out")

	tests := []struct {
		name      string
		valid     bool
		snapshot  bool
		allow     bool
		req       Request
		results   map[Mode]error
		wantCalls []Mode
		wantPath  string
		wantErr   bool
	}{
		{name: "valid credential is reused", valid: true, snapshot: true, wantPath: "current"},
		{name: "forced refresh uses snapshot headless", valid: true, snapshot: true, req: Request{Force: true}, wantCalls: []Mode{Headless}, wantPath: "headless"},
		{name: "login goes interactive", valid: true, req: Request{Force: true, Login: true}, wantCalls: []Mode{Interactive}, wantPath: "interactive"},
		{name: "no snapshot goes interactive", wantCalls: []Mode{Interactive}, wantPath: "interactive"},
		{
			name: "headless failure falls back", snapshot: true, allow: true, req: Request{Headless: true},
			results: map[Mode]error{Headless: timeout}, wantCalls: []Mode{Headless, Interactive}, wantPath: "interactive",
		},
		{
			name: "detached run does not fall back", snapshot: true, allow: false, req: Request{Headless: true},
			results: map[Mode]error{Headless: timeout}, wantCalls: []Mode{Headless}, wantErr: true,
		},
		{name: "detached run without snapshot", allow: false, req: Request{Headless: true}, wantErr: true},
		{
			name: "unavailable browser is not retried", snapshot: true, allow: true,
			results: map[Mode]error{Headless: errors.ErrRefreshUnavailable}, wantCalls: []Mode{Headless}, wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRefresher{snapshot: tt.snapshot, results: tt.results}
			cred, err := newManager(r, tt.valid, tt.allow).Ensure(context.Background(), tt.req)

			assert.Equal(t, tt.wantCalls, r.calls)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, cred.Path)
		})
	}
}

func TestEnsureTimeouts(t *testing.T) {
	r := &fakeRefresher{snapshot: true, results: map[Mode]error{Headless: stderrors.New("x")}}
	_, err := newManager(r, false, true).Ensure(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{60 * time.Second, 120 * time.Second}, r.timeouts)

	r = &fakeRefresher{}
	_, err = newManager(r, false, true).Ensure(context.Background(), Request{Login: true})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{300 * time.Second}, r.timeouts)
}

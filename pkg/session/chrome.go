package session

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"ttharvest/pkg/cookies"
	"ttharvest/pkg/errors"
)

var chromeCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
}

// ChromeBrowser drives Chrome through the DevTools protocol
type ChromeBrowser struct {
	// ExecPath overrides browser discovery
	ExecPath string
	// CookieURLs are the URLs whose cookies are collected
	CookieURLs []string
}

// NewChromeBrowser creates a ChromeBrowser collecting cookies for baseURL
func NewChromeBrowser(execPath, baseURL string) *ChromeBrowser {
	return &ChromeBrowser{ExecPath: execPath, CookieURLs: []string{baseURL}}
}

func (b *ChromeBrowser) Available() error {
	if _, err := b.findExec(); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrRefreshUnavailable, err)
	}
	return nil
}

func (b *ChromeBrowser) findExec() (string, error) {
	if b.ExecPath != "" {
		if _, err := os.Stat(b.ExecPath); err != nil {
			return "", fmt.Errorf("chrome not found at %s", b.ExecPath)
		}
		return b.ExecPath, nil
	}
	for _, c := range chromeCandidates {
		if path, err := exec.LookPath(c); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no chrome or chromium executable in PATH")
}

func (b *ChromeBrowser) Open(ctx context.Context, opts OpenOptions) (Page, error) {
	path, err := b.findExec()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrRefreshUnavailable, err)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(path),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1280, 900),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// Start the browser now so launch failures surface here.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &chromePage{
		ctx:        tabCtx,
		cookieURLs: b.CookieURLs,
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
	}, nil
}

type chromePage struct {
	ctx        context.Context
	cookieURLs []string
	cancel     context.CancelFunc
}

// run executes actions on the tab, aborting them when ctx is done
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (p *chromePage) SetCookies(ctx context.Context, cs []cookies.Cookie) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cs {
			set := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)
			if c.Expires > 0 {
				exp := cdp.TimeSinceEpoch(time.Unix(c.Expires, 0))
				set = set.WithExpires(&exp)
			}
			if err := set.Do(ctx); err != nil {
				return fmt.Errorf("failed to set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) Cookies(ctx context.Context) ([]cookies.Cookie, error) {
	var out []cookies.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		got, err := network.GetCookies().WithURLs(p.cookieURLs).Do(ctx)
		if err != nil {
			return err
		}
		out = make([]cookies.Cookie, 0, len(got))
		for _, c := range got {
			out = append(out, cookies.Cookie{
				Domain:   c.Domain,
				Path:     c.Path,
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
				Expires:  int64(c.Expires),
				Name:     c.Name,
				Value:    c.Value,
			})
		}
		return nil
	}))
	return out, err
}

func (p *chromePage) Scroll(ctx context.Context) error {
	var scrolled bool
	for i := 0; i < 3; i++ {
		err := p.run(ctx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight); true`, &scrolled),
			chromedp.Sleep(time.Second),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

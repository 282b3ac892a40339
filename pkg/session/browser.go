// Package session refreshes the platform cookie credential through a real
// browser, headless from a saved snapshot or interactively with the operator.
package session

import (
	"context"

	"ttharvest/pkg/cookies"
)

// Mode selects how the browser is driven
type Mode int

const (
	// Headless reuses the saved snapshot without showing a window
	Headless Mode = iota
	// Interactive shows a window so the operator can log in
	Interactive
)

func (m Mode) String() string {
	if m == Interactive {
		return "interactive"
	}
	return "headless"
}

// OpenOptions configures a browser page
type OpenOptions struct {
	Headless  bool
	UserAgent string
}

// Browser is the browser automation capability
type Browser interface {
	// Available returns an error when no browser can be launched
	Available() error
	Open(ctx context.Context, opts OpenOptions) (Page, error)
}

// Page is one open browser tab
type Page interface {
	SetCookies(ctx context.Context, cookies []cookies.Cookie) error
	Navigate(ctx context.Context, url string) error
	Cookies(ctx context.Context) ([]cookies.Cookie, error)
	Scroll(ctx context.Context) error
	Close() error
}

package errors

import (
	stderrors "errors"
	"strings"
)

// Category is the closed set of failure classes recovery decisions dispatch on
type Category int

const (
	Unknown Category = iota
	AuthRequired
	RateLimited
	NotResolvable
)

func (c Category) String() string {
	switch c {
	case AuthRequired:
		return "auth_required"
	case RateLimited:
		return "rate_limited"
	case NotResolvable:
		return "not_resolvable"
	default:
		return "unknown"
	}
}

// Keyword sets matched against lower-cased error text. yt-dlp exposes no
// structured error codes, only messages.
var (
	notResolvableKeywords = []string{"unable to extract secondary user id"}
	rateLimitKeywords     = []string{"429", "too many requests"}
	authKeywords          = []string{
		"private",
		"login",
		"log in",
		"sign in",
		"auth",
		"embedding disabled",
		"comfortable",
	}
)

// Classify maps an error to its category
func Classify(err error) Category {
	if err == nil {
		return Unknown
	}
	switch TypeOf(err) {
	case ErrorTypeRateLimited:
		return RateLimited
	case ErrorTypeNotResolvable:
		return NotResolvable
	}
	if c := ClassifyText(causeText(err)); c != Unknown {
		return c
	}
	if TypeOf(err) == ErrorTypeAuthRequired {
		return AuthRequired
	}
	return Unknown
}

// causeText is err's message without the Op prefixes of the *Error values in
// its chain. Ops carry handles and URLs, which must not match keywords.
func causeText(err error) string {
	text := err.Error()
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		if te, ok := e.(*Error); ok && te.Op != "" {
			text = strings.Replace(text, te.Op+": ", "", 1)
		}
	}
	return text
}

// ClassifyText maps raw error text to a category
func ClassifyText(text string) Category {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, notResolvableKeywords):
		return NotResolvable
	case containsAny(lower, rateLimitKeywords):
		return RateLimited
	case containsAny(lower, authKeywords):
		return AuthRequired
	default:
		return Unknown
	}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

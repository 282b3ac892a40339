package recovery

import (
	"ttharvest/pkg/errors"
)

// Decision is the action taken after a failed acquisition attempt
type Decision int

const (
	Fail Decision = iota
	RefreshAndRetryOnce
	BackoffAndContinue
	Skip
)

func (d Decision) String() string {
	switch d {
	case RefreshAndRetryOnce:
		return "refresh_and_retry_once"
	case BackoffAndContinue:
		return "backoff_and_continue"
	case Skip:
		return "skip"
	default:
		return "fail"
	}
}

// Decide maps a failure category and the source's retry count to a decision.
// An auth failure is retried once after a refresh; the second one fails.
func Decide(category errors.Category, retries int) Decision {
	switch category {
	case errors.AuthRequired:
		if retries == 0 {
			return RefreshAndRetryOnce
		}
		return Fail
	case errors.RateLimited:
		return BackoffAndContinue
	case errors.NotResolvable:
		return Skip
	default:
		return Fail
	}
}

// Reasons recorded in the run summary
const (
	ReasonNotResolvable = "Possibly livestream/private"
	ReasonRateLimited   = "Rate limited, deferred to next run"
	ReasonAlreadyStored = "Already exists"

	// MaxReasonLength bounds error text copied into a failure reason
	MaxReasonLength = 80
)

// Package recovery turns a classified failure into a recovery decision and
// provides the randomized, cancellable waits those decisions use.
//
// Decide is a pure function of the failure category and how many times the
// source has already been retried in the current run:
//
//	switch recovery.Decide(errors.Classify(err), retries) {
//	case recovery.RefreshAndRetryOnce:
//	    // refresh the session, wait, try the same source again
//	case recovery.BackoffAndContinue:
//	    // sleep a long window, move on to the next source
//	case recovery.Skip, recovery.Fail:
//	    // record and move on
//	}
package recovery

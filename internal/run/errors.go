package run

import (
	"errors"
	"fmt"
)

// Driver-boundary error kinds. The recovery subsystem classifies these into
// its closed kind set; the executor's retry policy keys off them.
var (
	// ErrNavigationTimeout marks a navigation or page-load timeout.
	// Retryable a bounded number of times.
	ErrNavigationTimeout = errors.New("navigation timeout")

	// ErrElementNotFound marks a missing selector. Retried once, then
	// treated as a per-job failure.
	ErrElementNotFound = errors.New("element not found")

	// ErrCaptchaDetected marks a CAPTCHA or bot-block interstitial. Never
	// auto-retried; requires a human.
	ErrCaptchaDetected = errors.New("captcha or block detected")

	// ErrAlreadyApplied marks a listing the user has already applied to.
	// The job is skipped, not failed.
	ErrAlreadyApplied = errors.New("already applied")

	// ErrProfileLockBusy means another process holds the Chrome profile
	// directory lock.
	ErrProfileLockBusy = errors.New("chrome profile lock busy")

	// ErrBrowserLaunchFailed means Chrome could not be started or connected.
	ErrBrowserLaunchFailed = errors.New("browser launch failed")

	// ErrRunStopped is returned by the executor when a stop request is
	// observed at a suspension point.
	ErrRunStopped = errors.New("run stopped")

	// ErrRunActive rejects starting a run while another one holds the
	// browser profile.
	ErrRunActive = errors.New("another run is already active")
)

// IllegalTransitionError reports a rejected state-machine edge.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal run transition: %s -> %s", e.From, e.To)
}

package recovery

import (
	"errors"

	"github.com/sunshow/jobhuntr/orchestrator/internal/decision"
	"github.com/sunshow/jobhuntr/orchestrator/internal/run"
)

// Kind is the closed classification set for failures. Every error the
// pipeline sees maps to exactly one kind; unrecognized errors map to
// KindUnknown rather than growing the set.
type Kind string

const (
	KindProfileLockBusy        Kind = "profile_lock_busy"
	KindBrowserLaunchFailed    Kind = "browser_launch_failed"
	KindNavigationTimeout      Kind = "navigation_timeout"
	KindElementNotFound        Kind = "element_not_found"
	KindCaptchaOrBlockDetected Kind = "captcha_or_block_detected"
	KindHumanPaused            Kind = "human_paused"
	KindDecisionUnavailable    Kind = "decision_unavailable"
	KindAlreadyApplied         Kind = "already_applied"
	KindEvidenceUploadFailed   Kind = "evidence_upload_failed"
	KindUnknown                Kind = "unknown"
)

// Classify maps an error onto the kind set.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, run.ErrProfileLockBusy):
		return KindProfileLockBusy
	case errors.Is(err, run.ErrBrowserLaunchFailed):
		return KindBrowserLaunchFailed
	case errors.Is(err, run.ErrNavigationTimeout):
		return KindNavigationTimeout
	case errors.Is(err, run.ErrElementNotFound):
		return KindElementNotFound
	case errors.Is(err, run.ErrCaptchaDetected):
		return KindCaptchaOrBlockDetected
	case errors.Is(err, run.ErrAlreadyApplied):
		return KindAlreadyApplied
	case errors.Is(err, decision.ErrDecisionUnavailable):
		return KindDecisionUnavailable
	default:
		return KindUnknown
	}
}

// Verdict maps a kind onto the executor's next move. Session-level failures
// abort the run so a human can take over; a CAPTCHA is a per-job failure,
// never auto-retried, and the run moves on to the next listing; everything
// else skips the job and keeps the run alive.
func (k Kind) Verdict() run.Verdict {
	switch k {
	case KindProfileLockBusy, KindBrowserLaunchFailed:
		return run.VerdictAbortRun
	case KindNavigationTimeout:
		return run.VerdictRetryJob
	default:
		return run.VerdictSkipJob
	}
}

package run

import (
	"context"

	"github.com/sunshow/jobhuntr/orchestrator/internal/decision"
	"github.com/sunshow/jobhuntr/orchestrator/internal/template"
)

// Job is the listing content extracted from a job page.
type Job struct {
	URL         string
	Title       string
	Company     string
	Description string
	Questions   []decision.Question
}

// Driver is the browser surface the executor drives. The production
// implementation wraps a rod page; tests substitute fakes.
type Driver interface {
	// Search runs the platform search with the run's keywords and location
	// and lands on the results page.
	Search(ctx context.Context, p *template.SearchParams, keywords, location string) error

	// ListingCount reports how many result cards the current page exposes.
	ListingCount(ctx context.Context, p *template.OpenListingParams) (int, error)

	// OpenListing opens the i-th result card and returns its canonical URL.
	OpenListing(ctx context.Context, p *template.OpenListingParams, index int) (string, error)

	// ExtractJob pulls title, company, description and application questions
	// from the open listing.
	ExtractJob(ctx context.Context, p *template.ExtractJobParams) (*Job, error)

	// SubmitApplication fills the application form with the decided answers
	// and submits it.
	SubmitApplication(ctx context.Context, p *template.SubmitParams, answers []decision.Answer) error

	// Screenshot captures the current page for failure evidence.
	Screenshot(ctx context.Context) ([]byte, error)
}

// Gate is the human-intervention checkpoint consulted before every
// transition. Gate blocks while a human holds the page and returns once
// automation may resume, or when ctx is cancelled.
type Gate interface {
	Gate(ctx context.Context) error
	Touched() bool
}

// CloseFunc releases a browser session and its profile lock.
type CloseFunc func()

// SessionFactory opens a browser session bound to one run. It returns the
// driver, the page arbiter gate, the session id and a release func.
type SessionFactory interface {
	Open(ctx context.Context, tmpl *template.Template, cfg Config) (Driver, Gate, string, CloseFunc, error)
}

// ─── Failure handling ─────────────────────────────────────────────────────────

// Verdict is the recovery outcome for a failed job.
type Verdict int

const (
	// VerdictSkipJob abandons the current listing and moves on.
	VerdictSkipJob Verdict = iota
	// VerdictRetryJob retries the failed step once more.
	VerdictRetryJob
	// VerdictAbortRun fails the whole run.
	VerdictAbortRun
)

// Failure describes one failed job step for the recovery pipeline.
type Failure struct {
	RunID         string
	ApplicationID string
	TemplateID    string
	Platform      template.Platform
	Step          template.StepKind
	JobURL        string
	JobTitle      string
	Company       string
	Err           error

	// Capture takes a best-effort screenshot of the page at failure time.
	// Nil when no page is available.
	Capture func(ctx context.Context) ([]byte, error)
}

// FailureHandler runs the recovery sequence for a job failure and decides
// what the executor should do next. Implementations must never return an
// error that aborts the run on their own behalf.
type FailureHandler interface {
	HandleFailure(ctx context.Context, f Failure) Verdict
}

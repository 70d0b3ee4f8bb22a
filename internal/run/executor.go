package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sunshow/jobhuntr/orchestrator/internal/activity"
	"github.com/sunshow/jobhuntr/orchestrator/internal/decision"
	"github.com/sunshow/jobhuntr/orchestrator/internal/store"
	"github.com/sunshow/jobhuntr/orchestrator/internal/template"
)

// Stats counts job outcomes during one run. Counters only ever increase.
type Stats struct {
	Queued    int `json:"queued"`
	Skipped   int `json:"skipped"`
	Submitted int `json:"submitted"`
	Failed    int `json:"failed"`
}

// Add folds another run's stats into this one.
func (s *Stats) Add(o Stats) {
	s.Queued += o.Queued
	s.Skipped += o.Skipped
	s.Submitted += o.Submitted
	s.Failed += o.Failed
}

// ExecutorDeps bundles the collaborators an executor drives.
type ExecutorDeps struct {
	Driver   Driver
	Gate     Gate
	Engine   decision.Engine
	Failures FailureHandler
	Store    store.Store
	Activity *activity.Log
	Logger   *zap.SugaredLogger
}

// Executor walks a template's step sequence against one browser session.
// Pause, resume and stop requests take effect at the next suspension point;
// the executor never interrupts a driver call mid-flight.
type Executor struct {
	run  *Run
	tmpl *template.Template
	deps ExecutorDeps

	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewExecutor prepares an executor for a pending run.
func NewExecutor(r *Run, tmpl *template.Template, deps ExecutorDeps) *Executor {
	return &Executor{
		run:    r,
		tmpl:   tmpl,
		deps:   deps,
		stopCh: make(chan struct{}),
	}
}

// Run returns the run this executor drives.
func (e *Executor) Run() *Run { return e.run }

// ─── Control ──────────────────────────────────────────────────────────────────

// RequestPause asks the executor to pause at its next suspension point.
func (e *Executor) RequestPause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused {
		return
	}
	e.paused = true
	e.resumeCh = make(chan struct{})
}

// RequestResume releases an external pause. A pause held by the human
// arbiter is unaffected.
func (e *Executor) RequestResume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.paused {
		return
	}
	e.paused = false
	close(e.resumeCh)
}

// RequestStop asks the executor to stop. Safe to call any number of times
// and in any state.
func (e *Executor) RequestStop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

func (e *Executor) stopRequested() bool {
	select {
	case <-e.stopCh:
		return true
	default:
		return false
	}
}

func (e *Executor) pauseState() (bool, chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused, e.resumeCh
}

// checkpoint is the suspension point consulted before every step and
// transition. It blocks while a human holds the page or an external pause is
// in force, and surfaces stop requests as ErrRunStopped.
func (e *Executor) checkpoint(ctx context.Context) error {
	for {
		if e.stopRequested() {
			return ErrRunStopped
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		touched := e.deps.Gate != nil && e.deps.Gate.Touched()
		pausedExt, resumeCh := e.pauseState()
		if !touched && !pausedExt {
			e.markResumed()
			return nil
		}

		e.markPaused(touched)

		if touched {
			if err := e.deps.Gate.Gate(ctx); err != nil {
				return err
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stopCh:
			// loop handles stop
		case <-resumeCh:
		}
	}
}

func (e *Executor) markPaused(byHuman bool) {
	if e.run.Status() != StatusRunning {
		return
	}
	if err := e.run.Transition(StatusPaused); err != nil {
		return
	}
	reason := "requested"
	if byHuman {
		reason = "human input"
	}
	e.deps.Activity.Append(e.run.ID, activity.SeverityWarning, "Run paused", map[string]any{"reason": reason})
	e.persistStatus(StatusPaused)
}

func (e *Executor) markResumed() {
	if e.run.Status() != StatusPaused {
		return
	}
	if err := e.run.Transition(StatusRunning); err != nil {
		return
	}
	e.deps.Activity.Append(e.run.ID, activity.SeverityInfo, "Run resumed", nil)
	e.persistStatus(StatusRunning)
}

// ─── Execution ────────────────────────────────────────────────────────────────

// Execute drives the run to a terminal state and returns its outcome counts.
// A stop request is a normal outcome, not an error; only run-scoped failures
// return a non-nil error.
func (e *Executor) Execute(ctx context.Context) (Stats, error) {
	var stats Stats

	if e.stopRequested() {
		if err := e.run.Transition(StatusStopped); err == nil {
			e.deps.Activity.Append(e.run.ID, activity.SeverityWarning, "Run stopped", nil)
			e.persistStatus(StatusStopped)
		}
		return stats, nil
	}

	if err := e.run.Transition(StatusRunning); err != nil {
		return stats, err
	}
	e.deps.Activity.Append(e.run.ID, activity.SeverityInfo, "Run started", map[string]any{
		"template": e.tmpl.ID,
		"platform": string(e.tmpl.Platform),
	})
	e.persistStatus(StatusRunning)

	err := e.execute(ctx, &stats)
	switch {
	case err == nil:
		if terr := e.run.Transition(StatusCompleted); terr == nil {
			e.deps.Activity.Append(e.run.ID, activity.SeveritySuccess, "Run completed", statsDetails(stats))
			e.persistStatus(StatusCompleted)
		}
		return stats, nil
	case errors.Is(err, ErrRunStopped):
		if terr := e.run.Transition(StatusStopped); terr == nil {
			e.deps.Activity.Append(e.run.ID, activity.SeverityWarning, "Run stopped", statsDetails(stats))
			e.persistStatus(StatusStopped)
		}
		return stats, nil
	default:
		e.run.SetError(err.Error())
		if terr := e.run.Transition(StatusFailed); terr == nil {
			e.deps.Activity.Append(e.run.ID, activity.SeverityError, "Run failed", map[string]any{"error": err.Error()})
			e.persistStatus(StatusFailed)
		}
		return stats, err
	}
}

type stepSet struct {
	search  *template.SearchParams
	open    *template.OpenListingParams
	extract *template.ExtractJobParams
	decide  *template.DecisionParams
	submit  *template.SubmitParams
}

func (e *Executor) steps() (stepSet, error) {
	var s stepSet
	if st := e.tmpl.FindStep(template.StepSearch); st != nil {
		s.search = st.Search
	}
	if st := e.tmpl.FindStep(template.StepOpenListing); st != nil {
		s.open = st.OpenListing
	}
	if st := e.tmpl.FindStep(template.StepExtractJob); st != nil {
		s.extract = st.ExtractJob
	}
	if st := e.tmpl.FindStep(template.StepDecision); st != nil {
		s.decide = st.Decision
	}
	if st := e.tmpl.FindStep(template.StepSubmitApplication); st != nil {
		s.submit = st.Submit
	}
	if s.search == nil || s.open == nil || s.extract == nil || s.decide == nil || s.submit == nil {
		return s, fmt.Errorf("template %s: incomplete step sequence", e.tmpl.ID)
	}
	return s, nil
}

func (e *Executor) execute(ctx context.Context, stats *Stats) error {
	steps, err := e.steps()
	if err != nil {
		return err
	}
	cfg := e.run.Config

	if err := e.runStep(ctx, "search", func(c context.Context) error {
		return e.deps.Driver.Search(c, steps.search, cfg.Keywords, cfg.Location)
	}); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	e.deps.Activity.Append(e.run.ID, activity.SeverityInfo, "Search submitted", map[string]any{
		"keywords": cfg.Keywords,
		"location": cfg.Location,
	})

	var count int
	if err := e.runStep(ctx, "count listings", func(c context.Context) error {
		var cerr error
		count, cerr = e.deps.Driver.ListingCount(c, steps.open)
		return cerr
	}); err != nil {
		return fmt.Errorf("count listings: %w", err)
	}
	if max := steps.open.MaxListings; max > 0 && count > max {
		count = max
	}
	e.deps.Activity.Append(e.run.ID, activity.SeverityInfo, "Listings found", map[string]any{"count": count})

	for i := 0; i < count; i++ {
		if err := e.checkpoint(ctx); err != nil {
			return err
		}
		done, err := e.processListing(ctx, steps, i, stats, false)
		if err != nil {
			return err
		}
		if done {
			break
		}
	}
	return nil
}

// processListing handles one result card end to end. Job-scoped failures
// fold into stats and never abort the run; only a stop request, context
// cancellation or an abort verdict propagates as an error.
func (e *Executor) processListing(ctx context.Context, steps stepSet, index int, stats *Stats, retried bool) (bool, error) {
	cfg := e.run.Config

	var url string
	if err := e.runStep(ctx, "open listing", func(c context.Context) error {
		var oerr error
		url, oerr = e.deps.Driver.OpenListing(c, steps.open, index)
		return oerr
	}); err != nil {
		if isControl(err) {
			return false, err
		}
		return e.afterJobFailure(ctx, steps, index, stats, retried, failureInfo{step: template.StepOpenListing, err: err})
	}
	stats.Queued++
	e.deps.Activity.Append(e.run.ID, activity.SeverityInfo, "Opened listing", map[string]any{
		"index": index,
		"url":   url,
	})

	if applied, err := e.deps.Store.HasApplied(ctx, url); err != nil {
		e.deps.Logger.Warnw("Duplicate check failed", "run_id", e.run.ID, "url", url, "error", err)
	} else if applied {
		e.recordSkip(ctx, url, "", "", "already applied")
		stats.Skipped++
		return false, nil
	}

	var job *Job
	if err := e.runStep(ctx, "extract job", func(c context.Context) error {
		var xerr error
		job, xerr = e.deps.Driver.ExtractJob(c, steps.extract)
		return xerr
	}); err != nil {
		if isControl(err) {
			return false, err
		}
		return e.afterJobFailure(ctx, steps, index, stats, retried, failureInfo{step: template.StepExtractJob, url: url, err: err})
	}
	if job.URL == "" {
		job.URL = url
	}

	model := cfg.Model
	if steps.decide.Model != "" {
		model = steps.decide.Model
	}
	dec, err := e.decide(ctx, job, model)
	if err != nil {
		if isControl(err) {
			return false, err
		}
		return e.afterJobFailure(ctx, steps, index, stats, retried, failureInfo{step: template.StepDecision, url: job.URL, job: job, err: err})
	}
	if dec.Verdict == decision.VerdictSkip {
		e.recordSkip(ctx, job.URL, job.Company, job.Title, dec.Reasoning)
		stats.Skipped++
		return false, nil
	}

	if cfg.DailyLimit > 0 {
		today, cerr := e.deps.Store.CountApplicationsToday(ctx, string(e.run.Platform))
		if cerr != nil {
			e.deps.Logger.Warnw("Daily limit check failed", "run_id", e.run.ID, "error", cerr)
		} else if today >= cfg.DailyLimit {
			e.deps.Activity.Append(e.run.ID, activity.SeverityWarning, "Daily application limit reached", map[string]any{
				"limit": cfg.DailyLimit,
			})
			return true, nil
		}
	}

	if err := e.checkpoint(ctx); err != nil {
		return false, err
	}
	if err := e.runStep(ctx, "submit application", func(c context.Context) error {
		return e.deps.Driver.SubmitApplication(c, steps.submit, dec.Answers)
	}); err != nil {
		if isControl(err) {
			return false, err
		}
		if errors.Is(err, ErrAlreadyApplied) {
			e.recordSkip(ctx, job.URL, job.Company, job.Title, "already applied")
			stats.Skipped++
			return false, nil
		}
		return e.afterJobFailure(ctx, steps, index, stats, retried, failureInfo{step: template.StepSubmitApplication, url: job.URL, job: job, err: err})
	}

	e.recordApplication(ctx, job, store.AppStatusSubmitted)
	stats.Submitted++
	e.deps.Activity.Append(e.run.ID, activity.SeveritySuccess, "Application submitted", map[string]any{
		"company": job.Company,
		"title":   job.Title,
		"url":     job.URL,
	})
	return false, nil
}

func (e *Executor) decide(ctx context.Context, job *Job, model string) (*decision.Decision, error) {
	jobCtx := decision.JobContext{
		Platform:    string(e.run.Platform),
		URL:         job.URL,
		Title:       job.Title,
		Company:     job.Company,
		Description: job.Description,
		Questions:   job.Questions,
	}
	profile := decision.Profile{
		ResumeText:  e.run.Config.Profile.Summary,
		Preferences: e.run.Config.Keywords,
	}
	dec, err := e.deps.Engine.Decide(ctx, jobCtx, profile, model)
	if err != nil {
		return nil, err
	}
	if err := dec.Validate(job.Questions); err != nil {
		return nil, fmt.Errorf("%w: %v", decision.ErrDecisionUnavailable, err)
	}
	return dec, nil
}

// ─── Failure path ─────────────────────────────────────────────────────────────

type failureInfo struct {
	step template.StepKind
	url  string
	job  *Job
	err  error
}

func (e *Executor) afterJobFailure(ctx context.Context, steps stepSet, index int, stats *Stats, retried bool, fi failureInfo) (bool, error) {
	stats.Failed++
	rec := e.recordFailure(ctx, fi)

	f := Failure{
		RunID:      e.run.ID,
		TemplateID: e.run.TemplateID,
		Platform:   e.run.Platform,
		Step:       fi.step,
		JobURL:     fi.url,
		Err:        fi.err,
		Capture:    e.deps.Driver.Screenshot,
	}
	if rec != nil {
		f.ApplicationID = rec.ID
	}
	if fi.job != nil {
		f.JobTitle = fi.job.Title
		f.Company = fi.job.Company
	}

	verdict := VerdictSkipJob
	if e.deps.Failures != nil {
		verdict = e.deps.Failures.HandleFailure(ctx, f)
	}
	e.deps.Activity.Append(e.run.ID, activity.SeverityError, "Job failed", map[string]any{
		"step":    string(fi.step),
		"url":     fi.url,
		"error":   fi.err.Error(),
		"verdict": verdictName(verdict),
	})

	switch verdict {
	case VerdictRetryJob:
		if !retried {
			return e.processListing(ctx, steps, index, stats, true)
		}
		return false, nil
	case VerdictAbortRun:
		return false, fmt.Errorf("%s: %w", fi.step, fi.err)
	default:
		return false, nil
	}
}

func verdictName(v Verdict) string {
	switch v {
	case VerdictRetryJob:
		return "retry"
	case VerdictAbortRun:
		return "abort"
	default:
		return "skip"
	}
}

// ─── Records ──────────────────────────────────────────────────────────────────

// recordApplication creates the record queued and promotes it so the store
// stamps applied_at on submission.
func (e *Executor) recordApplication(ctx context.Context, job *Job, status string) *store.ApplicationRecord {
	rec := &store.ApplicationRecord{
		ID:       uuid.New().String(),
		RunID:    e.run.ID,
		Platform: string(e.run.Platform),
		URL:      job.URL,
		Company:  job.Company,
		Title:    job.Title,
		Status:   store.AppStatusQueued,
	}
	if err := e.deps.Store.CreateApplication(ctx, rec); err != nil {
		e.deps.Logger.Warnw("Failed to persist application", "run_id", e.run.ID, "url", job.URL, "error", err)
	}
	if status != store.AppStatusQueued {
		if err := e.deps.Store.UpdateApplicationStatus(ctx, rec.ID, status); err != nil {
			e.deps.Logger.Warnw("Failed to update application", "run_id", e.run.ID, "id", rec.ID, "error", err)
		}
		rec.Status = status
	}
	return rec
}

func (e *Executor) recordSkip(ctx context.Context, url, company, title, reason string) {
	rec := &store.ApplicationRecord{
		ID:       uuid.New().String(),
		RunID:    e.run.ID,
		Platform: string(e.run.Platform),
		URL:      url,
		Company:  company,
		Title:    title,
		Status:   store.AppStatusSkipped,
	}
	if err := e.deps.Store.CreateApplication(ctx, rec); err != nil {
		e.deps.Logger.Warnw("Failed to persist application", "run_id", e.run.ID, "url", url, "error", err)
	}
	e.deps.Activity.Append(e.run.ID, activity.SeverityInfo, "Listing skipped", map[string]any{
		"url":    url,
		"reason": reason,
	})
}

func (e *Executor) recordFailure(ctx context.Context, fi failureInfo) *store.ApplicationRecord {
	if fi.url == "" {
		return nil
	}
	rec := &store.ApplicationRecord{
		ID:       uuid.New().String(),
		RunID:    e.run.ID,
		Platform: string(e.run.Platform),
		URL:      fi.url,
		Status:   store.AppStatusFailed,
	}
	if fi.job != nil {
		rec.Company = fi.job.Company
		rec.Title = fi.job.Title
	}
	if err := e.deps.Store.CreateApplication(ctx, rec); err != nil {
		e.deps.Logger.Warnw("Failed to persist application", "run_id", e.run.ID, "url", fi.url, "error", err)
	}
	return rec
}

func (e *Executor) persistStatus(status Status) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errMsg := ""
	if status == StatusFailed {
		errMsg = e.run.LastError()
	}
	if err := e.deps.Store.UpdateRunStatus(ctx, e.run.ID, string(status), errMsg); err != nil {
		e.deps.Logger.Warnw("Failed to persist run status", "run_id", e.run.ID, "status", status, "error", err)
	}
}

// ─── Step retry ───────────────────────────────────────────────────────────────

func (e *Executor) stepTimeout() time.Duration {
	if e.tmpl.StepTimeout > 0 {
		return e.tmpl.StepTimeout
	}
	return e.run.Config.StepTimeout
}

// runStep runs one driver call under the step timeout, retrying transient
// navigation errors up to the configured budget and a missing element once.
// CAPTCHA and already-applied errors are never retried.
func (e *Executor) runStep(ctx context.Context, name string, fn func(context.Context) error) error {
	attempts := e.run.Config.NavRetries + 1
	timeout := e.stepTimeout()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := e.checkpoint(ctx); err != nil {
			return err
		}
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		err := fn(stepCtx)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %s exceeded %s", ErrNavigationTimeout, name, timeout)
		}
		lastErr = err
		if !retryable(err) || attempt == attempts {
			return lastErr
		}
		// A missing element is retried once at most, regardless of the
		// navigation budget.
		if errors.Is(err, ErrElementNotFound) && attempt >= 2 {
			return lastErr
		}
		e.deps.Logger.Warnw("Step failed, retrying",
			"run_id", e.run.ID,
			"step", name,
			"attempt", attempt,
			"error", err,
		)
	}
	return lastErr
}

func retryable(err error) bool {
	return errors.Is(err, ErrNavigationTimeout) || errors.Is(err, ErrElementNotFound)
}

// isControl reports whether an error is a control signal rather than a job
// failure.
func isControl(err error) bool {
	return errors.Is(err, ErrRunStopped) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func statsDetails(s Stats) map[string]any {
	return map[string]any{
		"queued":    s.Queued,
		"skipped":   s.Skipped,
		"submitted": s.Submitted,
		"failed":    s.Failed,
	}
}

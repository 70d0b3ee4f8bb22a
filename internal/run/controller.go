package run

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sunshow/jobhuntr/orchestrator/internal/activity"
	"github.com/sunshow/jobhuntr/orchestrator/internal/decision"
	"github.com/sunshow/jobhuntr/orchestrator/internal/store"
	"github.com/sunshow/jobhuntr/orchestrator/internal/template"
)

// Ticket tracks one launched run. Callers either poll Status or block on
// Wait; the infinite hunt scheduler does the latter.
type Ticket struct {
	run  *Run
	exec *Executor
	done chan struct{}

	mu    sync.Mutex
	stats Stats
	err   error
}

// RunID returns the run's id.
func (t *Ticket) RunID() string { return t.run.ID }

// TemplateID returns the template the run executes.
func (t *Ticket) TemplateID() string { return t.run.TemplateID }

// Platform returns the run's target platform.
func (t *Ticket) Platform() template.Platform { return t.run.Platform }

// Status returns the run's current lifecycle state.
func (t *Ticket) Status() Status { return t.run.Status() }

// Done closes when the run reaches a terminal state.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Wait blocks until the run is terminal and returns its outcome.
func (t *Ticket) Wait(ctx context.Context) (Stats, Status, error) {
	select {
	case <-ctx.Done():
		return Stats{}, t.run.Status(), ctx.Err()
	case <-t.done:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats, t.run.Status(), t.err
}

// Stats returns the outcome counts recorded so far. Final once Done closes.
func (t *Ticket) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Controller admits and supervises runs. At most one run is active at a time
// because runs own the Chrome profile exclusively.
type Controller struct {
	sessions SessionFactory
	engine   decision.Engine
	failures FailureHandler
	store    store.Store
	activity *activity.Log
	logger   *zap.SugaredLogger

	mu     sync.Mutex
	active *Ticket
	runs   map[string]*Ticket
}

// NewController wires a controller over the shared collaborators.
func NewController(sessions SessionFactory, engine decision.Engine, failures FailureHandler, st store.Store, log *activity.Log, logger *zap.SugaredLogger) *Controller {
	return &Controller{
		sessions: sessions,
		engine:   engine,
		failures: failures,
		store:    st,
		activity: log,
		logger:   logger,
		runs:     make(map[string]*Ticket),
	}
}

// Start admits a run for the template and launches it in the background.
// Returns ErrRunActive while another run is in flight. sessionID ties the
// run to an infinite hunt session; empty for one-off runs.
func (c *Controller) Start(tmpl *template.Template, cfg Config, sessionID string) (*Ticket, error) {
	if err := tmpl.Validate(); err != nil {
		return nil, fmt.Errorf("validate template: %w", err)
	}

	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return nil, ErrRunActive
	}
	r := New(tmpl, cfg)
	r.SessionID = sessionID
	t := &Ticket{run: r, done: make(chan struct{})}
	c.active = t
	c.runs[r.ID] = t
	c.mu.Unlock()

	rec := &store.RunRecord{
		ID:         r.ID,
		TemplateID: r.TemplateID,
		Platform:   string(r.Platform),
		Status:     string(StatusPending),
	}
	if sessionID != "" {
		rec.SessionID = &sessionID
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := c.store.CreateRun(ctx, rec); err != nil {
		c.logger.Warnw("Failed to persist run", "run_id", r.ID, "error", err)
	}
	cancel()

	c.logger.Infow("Run admitted",
		"run_id", r.ID,
		"template", tmpl.ID,
		"platform", tmpl.Platform,
		"session_id", sessionID,
	)

	go c.drive(t, tmpl, cfg)
	return t, nil
}

func (c *Controller) drive(t *Ticket, tmpl *template.Template, cfg Config) {
	defer close(t.done)
	defer c.release(t)

	ctx := context.Background()

	driver, gate, browserSession, closeSession, err := c.sessions.Open(ctx, tmpl, cfg)
	if err != nil {
		c.launchFailed(t, err)
		return
	}
	defer closeSession()

	c.logger.Infow("Browser session opened", "run_id", t.run.ID, "browser_session", browserSession)

	exec := NewExecutor(t.run, tmpl, ExecutorDeps{
		Driver:   driver,
		Gate:     gate,
		Engine:   c.engine,
		Failures: c.failures,
		Store:    c.store,
		Activity: c.activity,
		Logger:   c.logger,
	})
	c.attach(t, exec)

	stats, execErr := exec.Execute(ctx)

	t.mu.Lock()
	t.stats = stats
	t.err = execErr
	t.mu.Unlock()

	c.logger.Infow("Run finished",
		"run_id", t.run.ID,
		"status", t.run.Status(),
		"submitted", stats.Submitted,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
}

// attach publishes the executor on the ticket once the session is up, and
// replays any control request that arrived before it existed.
func (c *Controller) attach(t *Ticket, exec *Executor) {
	c.mu.Lock()
	pendingStop := t.exec == stopSentinel
	pendingPause := t.exec == pauseSentinel
	t.exec = exec
	c.mu.Unlock()
	if pendingStop {
		exec.RequestStop()
	}
	if pendingPause {
		exec.RequestPause()
	}
}

// Sentinels mark control requests that arrive during session startup.
var (
	stopSentinel  = &Executor{}
	pauseSentinel = &Executor{}
)

func (c *Controller) launchFailed(t *Ticket, cause error) {
	t.run.SetError(cause.Error())
	if err := t.run.Transition(StatusFailed); err == nil {
		c.activity.Append(t.run.ID, activity.SeverityError, "Browser session failed", map[string]any{"error": cause.Error()})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if serr := c.store.UpdateRunStatus(ctx, t.run.ID, string(StatusFailed), cause.Error()); serr != nil {
			c.logger.Warnw("Failed to persist run status", "run_id", t.run.ID, "error", serr)
		}
		cancel()
	}
	if c.failures != nil {
		c.failures.HandleFailure(context.Background(), Failure{
			RunID:      t.run.ID,
			TemplateID: t.run.TemplateID,
			Platform:   t.run.Platform,
			Err:        cause,
		})
	}
	t.mu.Lock()
	t.err = cause
	t.mu.Unlock()
}

func (c *Controller) release(t *Ticket) {
	c.mu.Lock()
	if c.active == t {
		c.active = nil
	}
	c.mu.Unlock()
}

// Active returns the in-flight ticket, if any.
func (c *Controller) Active() (*Ticket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.active != nil
}

// Get returns the ticket for a run id, live or finished.
func (c *Controller) Get(runID string) (*Ticket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.runs[runID]
	return t, ok
}

// Pause suspends a run at its next suspension point.
func (c *Controller) Pause(runID string) error {
	t, exec, err := c.lookup(runID)
	if err != nil {
		return err
	}
	if t.run.Status().Terminal() {
		return &IllegalTransitionError{From: t.run.Status(), To: StatusPaused}
	}
	if exec == nil {
		c.mu.Lock()
		if t.exec == nil {
			t.exec = pauseSentinel
		}
		c.mu.Unlock()
		return nil
	}
	exec.RequestPause()
	return nil
}

// Resume releases an externally paused run.
func (c *Controller) Resume(runID string) error {
	t, exec, err := c.lookup(runID)
	if err != nil {
		return err
	}
	if t.run.Status().Terminal() {
		return &IllegalTransitionError{From: t.run.Status(), To: StatusRunning}
	}
	if exec == nil {
		c.mu.Lock()
		if t.exec == pauseSentinel {
			t.exec = nil
		}
		c.mu.Unlock()
		return nil
	}
	exec.RequestResume()
	return nil
}

// Stop requests a stop. Stopping an already terminal run is a no-op, never
// an error.
func (c *Controller) Stop(runID string) error {
	t, exec, err := c.lookup(runID)
	if err != nil {
		return err
	}
	if t.run.Status().Terminal() {
		return nil
	}
	if exec == nil {
		c.mu.Lock()
		if t.exec == nil || t.exec == pauseSentinel {
			t.exec = stopSentinel
		}
		c.mu.Unlock()
		return nil
	}
	exec.RequestStop()
	exec.RequestResume()
	return nil
}

// StopAll stops the active run, used during shutdown.
func (c *Controller) StopAll() {
	if t, ok := c.Active(); ok {
		if err := c.Stop(t.RunID()); err != nil {
			c.logger.Warnw("Failed to stop active run", "run_id", t.RunID(), "error", err)
		}
	}
}

func (c *Controller) lookup(runID string) (*Ticket, *Executor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.runs[runID]
	if !ok {
		return nil, nil, fmt.Errorf("run %s: %w", runID, store.ErrNotFound)
	}
	exec := t.exec
	if exec == stopSentinel || exec == pauseSentinel {
		exec = nil
	}
	return t, exec, nil
}

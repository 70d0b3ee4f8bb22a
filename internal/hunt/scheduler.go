package hunt

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sunshow/jobhuntr/orchestrator/internal/run"
	"github.com/sunshow/jobhuntr/orchestrator/internal/template"
)

// ErrHuntActive rejects starting a hunt while one is already in progress.
var ErrHuntActive = errors.New("infinite hunt already active")

// ErrNoHunt is returned by controls when no hunt session exists.
var ErrNoHunt = errors.New("no active hunt session")

// DefaultRestDelay is the pause between consecutive runs of a rotation.
const DefaultRestDelay = 30 * time.Second

// Scheduler drives the infinite hunt: an endless rotation over the
// configured templates, one run at a time, until paused or stopped. A run
// failure advances the rotation, it never ends the hunt.
type Scheduler struct {
	controller *run.Controller
	templates  []*template.Template
	baseCfg    run.Config
	restDelay  time.Duration
	logger     *zap.SugaredLogger

	mu       sync.Mutex
	session  *Session
	running  bool
	paused   bool
	resumeCh chan struct{}
	stopCh   chan struct{}
	loopDone chan struct{}
}

// NewScheduler creates a scheduler over the rotation templates.
func NewScheduler(controller *run.Controller, templates []*template.Template, baseCfg run.Config, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		controller: controller,
		templates:  templates,
		baseCfg:    baseCfg,
		restDelay:  DefaultRestDelay,
		logger:     logger,
	}
}

// SetRestDelay overrides the pause between rotation runs. Call before Start.
func (s *Scheduler) SetRestDelay(d time.Duration) {
	if d > 0 {
		s.restDelay = d
	}
}

// Start launches the hunt loop. Only one hunt may be active.
func (s *Scheduler) Start() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, ErrHuntActive
	}
	if len(s.templates) == 0 {
		return nil, errors.New("no templates configured for hunt")
	}

	s.session = NewSession()
	s.running = true
	s.paused = false
	s.stopCh = make(chan struct{})
	s.loopDone = make(chan struct{})

	s.logger.Infow("Infinite hunt started",
		"session_id", s.session.ID(),
		"templates", len(s.templates),
	)
	go s.loop(s.session, s.stopCh, s.loopDone)
	return s.session, nil
}

// Pause suspends the rotation and forwards the pause to the in-flight run.
// The hunt reports pausing until that run reaches a suspension point.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNoHunt
	}
	if !s.paused {
		s.paused = true
		s.resumeCh = make(chan struct{})
	}
	s.mu.Unlock()

	if t, ok := s.controller.Active(); ok {
		if err := s.controller.Pause(t.RunID()); err != nil {
			s.logger.Warnw("Failed to pause in-flight run", "run_id", t.RunID(), "error", err)
		}
	}
	return nil
}

// Resume releases a paused hunt and its in-flight run.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNoHunt
	}
	if s.paused {
		s.paused = false
		close(s.resumeCh)
	}
	s.mu.Unlock()

	if t, ok := s.controller.Active(); ok {
		if err := s.controller.Resume(t.RunID()); err != nil {
			s.logger.Warnw("Failed to resume in-flight run", "run_id", t.RunID(), "error", err)
		}
	}
	return nil
}

// Stop ends the hunt: the in-flight run is stopped, the loop exits, the
// session goes idle. Stopping an idle scheduler is a no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, loopDone := s.stopCh, s.loopDone
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	if s.paused {
		s.paused = false
		close(s.resumeCh)
	}
	s.mu.Unlock()

	if t, ok := s.controller.Active(); ok {
		if err := s.controller.Stop(t.RunID()); err != nil {
			s.logger.Warnw("Failed to stop in-flight run", "run_id", t.RunID(), "error", err)
		}
	}
	<-loopDone
	return nil
}

// Running reports whether a hunt loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Session returns the current or most recent hunt session.
func (s *Scheduler) Session() (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, s.session != nil
}

// Status derives the externally visible hunt state, including the pausing
// transition while the in-flight run has not yet suspended.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	running, paused := s.running, s.paused
	s.mu.Unlock()

	switch {
	case !running:
		return StatusIdle
	case !paused:
		return StatusRunning
	}
	if t, ok := s.controller.Active(); ok && t.Status() == run.StatusRunning {
		return StatusPausing
	}
	return StatusPaused
}

// Snapshot returns the session aggregate with the derived status.
func (s *Scheduler) Snapshot() (Snapshot, error) {
	sess, ok := s.Session()
	if !ok {
		return Snapshot{}, ErrNoHunt
	}
	return sess.Snapshot(s.Status()), nil
}

func (s *Scheduler) loop(sess *Session, stopCh, loopDone chan struct{}) {
	defer close(loopDone)
	defer func() {
		sess.End()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.logger.Infow("Infinite hunt ended", "session_id", sess.ID())
	}()

	for i := 0; ; i = (i + 1) % len(s.templates) {
		if stopped(stopCh) {
			return
		}
		if !s.waitWhilePaused(stopCh) {
			return
		}

		tmpl := s.templates[i]
		ticket, err := s.controller.Start(tmpl, s.baseCfg, sess.ID())
		if err != nil {
			s.logger.Warnw("Hunt could not start run",
				"session_id", sess.ID(),
				"template", tmpl.ID,
				"error", err,
			)
			if !s.rest(stopCh) {
				return
			}
			continue
		}
		sess.SetCurrent(ticket.RunID(), tmpl.ID)

		stats, status, werr := ticket.Wait(context.Background())
		sess.Fold(tmpl.ID, stats)
		s.logger.Infow("Hunt run finished",
			"session_id", sess.ID(),
			"run_id", ticket.RunID(),
			"template", tmpl.ID,
			"status", status,
			"submitted", stats.Submitted,
			"error", werr,
		)

		if !s.rest(stopCh) {
			return
		}
	}
}

// rest sleeps between runs, waking early on stop. Returns false on stop.
func (s *Scheduler) rest(stopCh chan struct{}) bool {
	timer := time.NewTimer(s.restDelay)
	defer timer.Stop()
	select {
	case <-stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// waitWhilePaused blocks the rotation during an external pause. Returns
// false on stop.
func (s *Scheduler) waitWhilePaused(stopCh chan struct{}) bool {
	for {
		s.mu.Lock()
		paused, resumeCh := s.paused, s.resumeCh
		s.mu.Unlock()
		if !paused {
			return true
		}
		select {
		case <-stopCh:
			return false
		case <-resumeCh:
		}
	}
}

func stopped(stopCh chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

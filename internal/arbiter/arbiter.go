// Package arbiter distinguishes real user input from automation-originated
// events on the driven page. The page-side script only forwards raw signals;
// the host-side Arbiter owns the debounce timer and the per-session state.
package arbiter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the arbiter's externally visible signal.
type State string

const (
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// DefaultDebounceWindow is the tolerance for action-induced event bursts
// before assuming a human has taken control.
const DefaultDebounceWindow = 400 * time.Millisecond

// Arbiter holds the intervention state for one browser session. Automated
// actions synthesize input events indistinguishable from a human's, so a
// primitive input event only marks the session touched if no automation
// event supersedes it within the debounce window.
type Arbiter struct {
	window time.Duration
	logger *zap.SugaredLogger

	mu           sync.Mutex
	touched      bool
	lastSignalAt time.Time
	pending      *time.Timer
	resume       chan struct{} // closed on resume; recreated on pause
	notify       func(State)
}

// New creates an arbiter with the given debounce window; zero means the
// default 400ms.
func New(window time.Duration, logger *zap.SugaredLogger) *Arbiter {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Arbiter{
		window: window,
		logger: logger,
	}
}

// SetNotify registers a callback invoked on every pause/resume transition.
// Must be set before the page script starts reporting.
func (a *Arbiter) SetNotify(fn func(State)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notify = fn
}

// HumanInput reports a primitive input event (click, keydown, input) from
// the page. It arms the debounce timer; if no automation event arrives
// before it fires, the session is marked touched.
func (a *Arbiter) HumanInput() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastSignalAt = time.Now()
	if a.pending != nil {
		a.pending.Stop()
	}
	a.pending = time.AfterFunc(a.window, a.debounceFired)
}

// AutomationEvent reports an automation-originated event. It clears any
// pending debounce timer immediately and resumes a touched session.
func (a *Arbiter) AutomationEvent() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastSignalAt = time.Now()
	if a.pending != nil {
		a.pending.Stop()
		a.pending = nil
	}
	if a.touched {
		a.touched = false
		if a.resume != nil {
			close(a.resume)
			a.resume = nil
		}
		a.logger.Infow("Automation event observed, resuming")
		a.signalLocked(StateRunning)
	}
}

func (a *Arbiter) debounceFired() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending = nil
	if a.touched {
		return
	}
	a.touched = true
	a.resume = make(chan struct{})
	a.logger.Infow("Human interaction detected, pausing", "window", a.window)
	a.signalLocked(StatePaused)
}

func (a *Arbiter) signalLocked(s State) {
	if a.notify != nil {
		// Notify without the lock so callbacks may call back into the arbiter.
		fn := a.notify
		go fn(s)
	}
}

// Touched reports whether the session is currently held by a human.
func (a *Arbiter) Touched() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.touched
}

// LastSignalAt returns the time of the most recent signal of either kind.
func (a *Arbiter) LastSignalAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSignalAt
}

// Gate blocks while the session is touched and returns once automation may
// proceed. Resumption only ever follows an automation event clearing the
// state, never a timer.
func (a *Arbiter) Gate(ctx context.Context) error {
	for {
		a.mu.Lock()
		if !a.touched {
			a.mu.Unlock()
			return nil
		}
		ch := a.resume
		a.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

package hunt

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	// DefaultCheckInterval is how often the monitor looks at the hunt.
	DefaultCheckInterval = 30 * time.Minute
	// DefaultMinRestartGap keeps the monitor from flapping a hunt that just
	// ended.
	DefaultMinRestartGap = 5 * time.Minute
)

// Monitor is the auto-hunt watchdog. While enabled, it periodically checks
// whether a hunt loop is alive and restarts one when it is not.
type Monitor struct {
	scheduler *Scheduler
	interval  time.Duration
	minGap    time.Duration
	logger    *zap.SugaredLogger

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	enabled bool
}

// NewMonitor creates a monitor over the scheduler. Zero durations take the
// defaults.
func NewMonitor(scheduler *Scheduler, interval, minGap time.Duration, logger *zap.SugaredLogger) *Monitor {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	if minGap <= 0 {
		minGap = DefaultMinRestartGap
	}
	return &Monitor{
		scheduler: scheduler,
		interval:  interval,
		minGap:    minGap,
		logger:    logger,
	}
}

// Enable starts the periodic check. Idempotent.
func (m *Monitor) Enable() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enabled {
		return nil
	}

	c := cron.New()
	spec := "@every " + m.interval.String()
	id, err := c.AddFunc(spec, m.check)
	if err != nil {
		return fmt.Errorf("schedule auto-hunt check: %w", err)
	}
	c.Start()

	m.cron = c
	m.entry = id
	m.enabled = true
	m.markSession(true)
	m.logger.Infow("Auto-hunt enabled", "interval", m.interval)
	return nil
}

// Disable stops the periodic check. Idempotent.
func (m *Monitor) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return
	}
	m.cron.Stop()
	m.cron = nil
	m.enabled = false
	m.markSession(false)
	m.logger.Infow("Auto-hunt disabled")
}

// Enabled reports whether the watchdog is on.
func (m *Monitor) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

func (m *Monitor) markSession(enabled bool) {
	if sess, ok := m.scheduler.Session(); ok {
		sess.SetAutoHunt(enabled)
		if enabled && m.cron != nil {
			sess.SetNextCheck(m.cron.Entry(m.entry).Next)
		}
	}
}

// check restarts the hunt when the loop has died and the last run finished
// long enough ago.
func (m *Monitor) check() {
	defer func() {
		m.mu.Lock()
		m.markSession(m.enabled)
		m.mu.Unlock()
	}()

	if m.scheduler.Running() {
		return
	}

	if sess, ok := m.scheduler.Session(); ok {
		if last := sess.LastRunDoneAt(); !last.IsZero() && time.Since(last) < m.minGap {
			m.logger.Debugw("Auto-hunt restart deferred", "last_run_done_at", last)
			return
		}
	}

	m.logger.Infow("Auto-hunt restarting idle hunt")
	if _, err := m.scheduler.Start(); err != nil {
		m.logger.Warnw("Auto-hunt restart failed", "error", err)
	}
}

package run

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sunshow/jobhuntr/orchestrator/internal/template"
)

// ─── Status ───────────────────────────────────────────────────────────────────

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusStopped, StatusFailed:
		return true
	}
	return false
}

// legalEdges is the full transition graph. Anything not listed is rejected.
var legalEdges = map[Status][]Status{
	StatusPending: {StatusRunning, StatusStopped, StatusFailed},
	StatusRunning: {StatusPaused, StatusCompleted, StatusStopped, StatusFailed},
	StatusPaused:  {StatusRunning, StatusStopped, StatusFailed},
}

func legal(from, to Status) bool {
	for _, s := range legalEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ─── Run ──────────────────────────────────────────────────────────────────────

// Config carries the per-run parameters supplied at start time.
type Config struct {
	Identity   string        `yaml:"identity" json:"identity"`
	Keywords   string        `yaml:"keywords" json:"keywords"`
	Location   string        `yaml:"location" json:"location"`
	Headless   bool          `yaml:"headless" json:"headless"`
	DailyLimit int           `yaml:"daily_limit" json:"daily_limit"`
	Model      string        `yaml:"model" json:"model"`
	Profile    ProfileData   `yaml:"profile" json:"profile"`
	NavRetries int           `yaml:"nav_retries" json:"nav_retries"`
	StepTimeout time.Duration `yaml:"step_timeout" json:"step_timeout"`
}

// ProfileData is the applicant profile handed to the decision engine.
type ProfileData struct {
	FullName   string            `yaml:"full_name" json:"full_name"`
	Email      string            `yaml:"email" json:"email"`
	Phone      string            `yaml:"phone" json:"phone"`
	ResumePath string            `yaml:"resume_path" json:"resume_path"`
	Summary    string            `yaml:"summary" json:"summary"`
	Answers    map[string]string `yaml:"answers" json:"answers"`
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.NavRetries <= 0 {
		out.NavRetries = 2
	}
	if out.StepTimeout <= 0 {
		out.StepTimeout = 30 * time.Second
	}
	return out
}

// Run is one execution of a template against one browser session. All status
// mutation goes through Transition so illegal edges can never be taken.
type Run struct {
	ID         string
	TemplateID string
	Platform   template.Platform
	SessionID  string
	Config     Config

	mu          sync.Mutex
	status      Status
	startedAt   time.Time
	completedAt time.Time
	lastErr     string
}

// New creates a pending run for the given template.
func New(tmpl *template.Template, cfg Config) *Run {
	return &Run{
		ID:         uuid.New().String(),
		TemplateID: tmpl.ID,
		Platform:   tmpl.Platform,
		Config:     cfg.withDefaults(),
		status:     StatusPending,
	}
}

// Status returns the current lifecycle state.
func (r *Run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Transition moves the run to the target status, rejecting edges outside the
// lifecycle graph. Terminal states are absorbing.
func (r *Run) Transition(to Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !legal(r.status, to) {
		return &IllegalTransitionError{From: r.status, To: to}
	}
	if r.status == StatusPending && to == StatusRunning {
		r.startedAt = time.Now()
	}
	if to.Terminal() {
		r.completedAt = time.Now()
	}
	r.status = to
	return nil
}

// SetError records the failure reason alongside a terminal transition.
func (r *Run) SetError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = msg
}

// LastError returns the recorded failure reason, if any.
func (r *Run) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// StartedAt returns when the run left pending, zero if it never started.
func (r *Run) StartedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startedAt
}

// CompletedAt returns when the run reached a terminal state.
func (r *Run) CompletedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completedAt
}

package hunt

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sunshow/jobhuntr/orchestrator/internal/run"
)

// Status is the hunt session lifecycle state. Pausing is transitional: the
// pause has been forwarded to the in-flight run but the run has not yet
// reached a suspension point.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusPausing Status = "pausing"
	StatusPaused  Status = "paused"
)

// Snapshot is a consistent read of a hunt session for the control API.
type Snapshot struct {
	ID              string         `json:"id"`
	Status          Status         `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	Stats           run.Stats      `json:"stats"`
	RunsByTemplate  map[string]int `json:"runs_by_template"`
	CurrentRunID    string         `json:"current_run_id,omitempty"`
	CurrentTemplate string         `json:"current_template,omitempty"`
	LastRunDoneAt   *time.Time     `json:"last_run_done_at,omitempty"`
	EndedAt         *time.Time     `json:"ended_at,omitempty"`
	AutoHunt        bool           `json:"auto_hunt"`
	NextCheckAt     *time.Time     `json:"next_check_at,omitempty"`
}

// Session aggregates outcomes across the runs of one infinite hunt. The
// scheduler goroutine is the only writer; stats only ever grow.
type Session struct {
	mu              sync.Mutex
	id              string
	startedAt       time.Time
	stats           run.Stats
	runsByTemplate  map[string]int
	currentRunID    string
	currentTemplate string
	lastRunDoneAt   time.Time
	endedAt         time.Time
	autoHunt        bool
	nextCheckAt     time.Time
}

// NewSession starts an empty aggregate.
func NewSession() *Session {
	return &Session{
		id:             uuid.New().String(),
		startedAt:      time.Now().UTC(),
		runsByTemplate: make(map[string]int),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// SetCurrent records the in-flight run.
func (s *Session) SetCurrent(runID, templateID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentRunID = runID
	s.currentTemplate = templateID
}

// Fold adds one finished run's outcome into the aggregate and clears the
// current run marker.
func (s *Session) Fold(templateID string, st run.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Add(st)
	s.runsByTemplate[templateID]++
	s.currentRunID = ""
	s.currentTemplate = ""
	s.lastRunDoneAt = time.Now().UTC()
}

// SetAutoHunt toggles the auto-hunt flag.
func (s *Session) SetAutoHunt(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoHunt = enabled
}

// SetNextCheck records when the auto-hunt monitor will look again.
func (s *Session) SetNextCheck(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCheckAt = t
}

// End marks the session over. The first call wins; a session never
// un-ends.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endedAt.IsZero() {
		s.endedAt = time.Now().UTC()
	}
}

// EndedAt returns when the hunt loop exited, zero while it is still alive.
func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// LastRunDoneAt returns when the most recent run finished, zero if none has.
func (s *Session) LastRunDoneAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunDoneAt
}

// Snapshot returns a copy of the aggregate under the given lifecycle status.
func (s *Session) Snapshot(status Status) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTemplate := make(map[string]int, len(s.runsByTemplate))
	for k, v := range s.runsByTemplate {
		byTemplate[k] = v
	}
	snap := Snapshot{
		ID:              s.id,
		Status:          status,
		StartedAt:       s.startedAt,
		Stats:           s.stats,
		RunsByTemplate:  byTemplate,
		CurrentRunID:    s.currentRunID,
		CurrentTemplate: s.currentTemplate,
		AutoHunt:        s.autoHunt,
	}
	if !s.lastRunDoneAt.IsZero() {
		t := s.lastRunDoneAt
		snap.LastRunDoneAt = &t
	}
	if !s.endedAt.IsZero() {
		t := s.endedAt
		snap.EndedAt = &t
	}
	if !s.nextCheckAt.IsZero() {
		t := s.nextCheckAt
		snap.NextCheckAt = &t
	}
	return snap
}

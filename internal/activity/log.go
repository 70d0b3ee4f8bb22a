package activity

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sunshow/jobhuntr/orchestrator/internal/event"
)

// Severity classifies an activity entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Entry is one append-only activity record for a run. Entries are never
// edited or deleted once written; Cursor increases strictly per run.
type Entry struct {
	RunID     string         `json:"run_id"`
	Cursor    uint64         `json:"cursor"`
	Timestamp time.Time      `json:"timestamp"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// Log is the append-only per-run event sink. External clients poll with a
// monotonically increasing cursor; live subscribers get fan-out through the
// event bus.
type Log struct {
	mu      sync.RWMutex
	entries map[string][]Entry // run id → ordered entries
	cursors map[string]uint64  // run id → last assigned cursor
	bus     *event.Bus
	logger  *zap.SugaredLogger
}

// NewLog creates an activity log. bus may be nil when fan-out is not needed.
func NewLog(bus *event.Bus, logger *zap.SugaredLogger) *Log {
	return &Log{
		entries: make(map[string][]Entry),
		cursors: make(map[string]uint64),
		bus:     bus,
		logger:  logger,
	}
}

// Append records an entry for a run and returns it with its assigned cursor.
func (l *Log) Append(runID string, severity Severity, message string, details map[string]any) Entry {
	l.mu.Lock()
	l.cursors[runID]++
	entry := Entry{
		RunID:     runID,
		Cursor:    l.cursors[runID],
		Timestamp: time.Now().UTC(),
		Severity:  severity,
		Message:   message,
		Details:   details,
	}
	l.entries[runID] = append(l.entries[runID], entry)
	l.mu.Unlock()

	l.logger.Debugw("Activity appended",
		"run_id", runID,
		"cursor", entry.Cursor,
		"severity", severity,
		"message", message,
	)

	if l.bus != nil {
		l.bus.Publish(&event.Event{
			Type:  "activity.appended",
			RunID: runID,
			Data: map[string]any{
				"cursor":   entry.Cursor,
				"severity": string(severity),
				"message":  message,
			},
		})
	}
	return entry
}

// After returns exactly the entries with cursor > since, in cursor order.
// Previously returned entries are never re-returned or altered.
func (l *Log) After(runID string, since uint64) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	all := l.entries[runID]
	// Cursors are dense and 1-based, so the slice offset is the cursor value.
	if since >= uint64(len(all)) {
		return nil
	}
	out := make([]Entry, len(all)-int(since))
	copy(out, all[since:])
	return out
}

// Latest returns the highest cursor assigned for a run, 0 when none.
func (l *Log) Latest(runID string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cursors[runID]
}

package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store persists run and application records. The in-memory implementation
// backs tests and profile-less deployments; the Postgres implementation is
// selected when DATABASE_URL is configured.
type Store interface {
	CreateRun(ctx context.Context, rec *RunRecord) error
	UpdateRunStatus(ctx context.Context, id, status string, errMsg string) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	CreateApplication(ctx context.Context, rec *ApplicationRecord) error
	UpdateApplicationStatus(ctx context.Context, id, status string) error
	ListApplications(ctx context.Context, runID string) ([]*ApplicationRecord, error)
	HasApplied(ctx context.Context, url string) (bool, error)
	CountApplicationsToday(ctx context.Context, platform string) (int, error)
}

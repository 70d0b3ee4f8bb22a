package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Postgres is the pgx-backed Store.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.SugaredLogger
}

// NewPostgres connects a pool and verifies the connection.
func NewPostgres(ctx context.Context, connStr string, logger *zap.SugaredLogger) (*Postgres, error) {
	if connStr == "" {
		return nil, fmt.Errorf("database connection string is required")
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to PostgreSQL")
	return &Postgres{pool: pool, logger: logger}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// ─── Run Queries ───

func (p *Postgres) CreateRun(ctx context.Context, rec *RunRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO workflow_runs (id, template_id, platform, status, session_id, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`, rec.ID, rec.TemplateID, rec.Platform, rec.Status, rec.SessionID, nilTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateRunStatus(ctx context.Context, id, status string, errMsg string) error {
	var errPtr *string
	if errMsg != "" {
		errPtr = &errMsg
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE workflow_runs
		SET status = $2,
		    error = COALESCE($3, error),
		    started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN now() ELSE started_at END,
		    completed_at = CASE WHEN $2 IN ('completed', 'stopped', 'failed') THEN now() ELSE completed_at END
		WHERE id = $1
	`, id, status, errPtr)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, template_id, platform, status, session_id, error,
		       started_at, completed_at, created_at
		FROM workflow_runs WHERE id = $1
	`, id)

	var rec RunRecord
	err := row.Scan(&rec.ID, &rec.TemplateID, &rec.Platform, &rec.Status, &rec.SessionID,
		&rec.Error, &rec.StartedAt, &rec.CompletedAt, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &rec, nil
}

// ─── Application Queries ───

func (p *Postgres) CreateApplication(ctx context.Context, rec *ApplicationRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO job_applications (id, run_id, platform, url, company, title, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
	`, rec.ID, rec.RunID, rec.Platform, rec.URL, rec.Company, rec.Title, rec.Status, nilTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateApplicationStatus(ctx context.Context, id, status string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE job_applications
		SET status = $2,
		    applied_at = CASE WHEN $2 = 'submitted' THEN now() ELSE applied_at END
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListApplications(ctx context.Context, runID string) ([]*ApplicationRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, run_id, platform, url, company, title, status, applied_at, created_at
		FROM job_applications WHERE run_id = $1
		ORDER BY created_at
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []*ApplicationRecord
	for rows.Next() {
		var rec ApplicationRecord
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Platform, &rec.URL, &rec.Company,
			&rec.Title, &rec.Status, &rec.AppliedAt, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (p *Postgres) HasApplied(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM job_applications WHERE url = $1 AND status = 'submitted'
		)
	`, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has applied: %w", err)
	}
	return exists, nil
}

func (p *Postgres) CountApplicationsToday(ctx context.Context, platform string) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `
		SELECT count(*) FROM job_applications
		WHERE platform = $1 AND status = 'submitted'
		  AND applied_at >= date_trunc('day', now())
	`, platform).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count applications today: %w", err)
	}
	return count, nil
}

func nilTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const jobColumns = `id, kind, status, format, input_path, output_filename, output_path,
	error, project_id, plan_json, timeline_json, created_at, updated_at, started_at, finished_at`

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	plan, err := nullJSON(j.Plan, j.Plan == nil)
	if err != nil {
		return fmt.Errorf("encode render plan: %w", err)
	}
	timeline, err := nullJSON(j.Timeline, j.Timeline == nil)
	if err != nil {
		return fmt.Errorf("encode timeline plan: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Kind, j.Status, j.Format, nullString(j.InputPath), j.OutputFilename,
		nullString(j.Result), nullString(j.Error), nullString(j.ProjectID), plan, timeline,
		formatTime(j.CreatedAt), formatTime(j.UpdatedAt), nullTime(j.StartedAt), nullTime(j.FinishedAt))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListQueuedJobs returns queued jobs oldest first.
func (r *SQLiteRepository) ListQueuedJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE status = 'queued' ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ClaimJob moves a job from queued to running. It returns false when the
// job was not queued, so at most one worker ever runs a given job.
func (r *SQLiteRepository) ClaimJob(ctx context.Context, id string) (bool, error) {
	now := formatTime(time.Now())
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'running', started_at = ?, updated_at = ?
		WHERE id = ? AND status = 'queued'
	`, now, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// FinishJob moves a running job to completed or failed. It returns false
// when the job was not running; a terminal status is never overwritten.
func (r *SQLiteRepository) FinishJob(ctx context.Context, id, status, result, errMsg string) (bool, error) {
	if status != JobStatusCompleted && status != JobStatusFailed {
		return false, fmt.Errorf("%w: %q is not a terminal job status", ErrValidation, status)
	}
	now := formatTime(time.Now())
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, output_path = ?, error = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND status = 'running'
	`, status, nullString(result), nullString(errMsg), now, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	jobs := []*Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func scanJob(s scanner) (*Job, error) {
	var j Job
	var inputPath, outputPath, errMsg, projectID, plan, timeline sql.NullString
	var startedAt, finishedAt sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&j.ID, &j.Kind, &j.Status, &j.Format, &inputPath, &j.OutputFilename,
		&outputPath, &errMsg, &projectID, &plan, &timeline, &createdAt, &updatedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	j.InputPath = inputPath.String
	j.Result = outputPath.String
	j.Error = errMsg.String
	j.ProjectID = projectID.String
	if plan.Valid && plan.String != "" {
		j.Plan = &RenderPlan{}
		if err := json.Unmarshal([]byte(plan.String), j.Plan); err != nil {
			return nil, fmt.Errorf("decode render plan of job %s: %w", j.ID, err)
		}
	}
	if timeline.Valid && timeline.String != "" {
		j.Timeline = &TimelinePlan{}
		if err := json.Unmarshal([]byte(timeline.String), j.Timeline); err != nil {
			return nil, fmt.Errorf("decode timeline plan of job %s: %w", j.ID, err)
		}
	}
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	j.StartedAt = timePtr(startedAt)
	j.FinishedAt = timePtr(finishedAt)
	return &j, nil
}

// nullJSON encodes v, or stores NULL when absent is set.
func nullJSON(v any, absent bool) (sql.NullString, error) {
	if absent {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

package pipeline

import (
	"context"
	"database/sql"
)

// Repository handles database bookkeeping for engine runs
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new run repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateRun creates a new engine run record
func (r *Repository) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO engine_runs (
			period_label, status, total_stages,
			completed_stages, total_rows, started_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	return r.db.QueryRowContext(
		ctx, query,
		run.PeriodLabel, run.Status, run.TotalStages,
		run.CompletedStages, run.TotalRows, run.StartedAt,
	).Scan(&run.ID)
}

// UpdateRun updates an existing engine run
func (r *Repository) UpdateRun(ctx context.Context, run *Run) error {
	query := `
		UPDATE engine_runs
		SET status = $1, completed_stages = $2, total_rows = $3,
		    completed_at = $4, error_message = $5
		WHERE id = $6
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.Status, run.CompletedStages, run.TotalRows,
		run.CompletedAt, run.ErrorMessage, run.ID,
	)
	return err
}

// GetRun retrieves an engine run by ID
func (r *Repository) GetRun(ctx context.Context, id int64) (*Run, error) {
	query := `
		SELECT id, period_label, status, total_stages,
		       completed_stages, total_rows, started_at, completed_at, error_message
		FROM engine_runs
		WHERE id = $1
	`

	run := &Run{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.PeriodLabel, &run.Status, &run.TotalStages,
		&run.CompletedStages, &run.TotalRows, &run.StartedAt,
		&run.CompletedAt, &run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetRunByPeriod retrieves the run for a specific period label
func (r *Repository) GetRunByPeriod(ctx context.Context, periodLabel string) (*Run, error) {
	query := `
		SELECT id, period_label, status, total_stages,
		       completed_stages, total_rows, started_at, completed_at, error_message
		FROM engine_runs
		WHERE period_label = $1
		ORDER BY started_at DESC
		LIMIT 1
	`

	run := &Run{}
	err := r.db.QueryRowContext(ctx, query, periodLabel).Scan(
		&run.ID, &run.PeriodLabel, &run.Status, &run.TotalStages,
		&run.CompletedStages, &run.TotalRows, &run.StartedAt,
		&run.CompletedAt, &run.ErrorMessage,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRecentRuns retrieves the most recent engine runs
func (r *Repository) ListRecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `
		SELECT id, period_label, status, total_stages,
		       completed_stages, total_rows, started_at, completed_at, error_message
		FROM engine_runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		err := rows.Scan(
			&run.ID, &run.PeriodLabel, &run.Status, &run.TotalStages,
			&run.CompletedStages, &run.TotalRows, &run.StartedAt,
			&run.CompletedAt, &run.ErrorMessage,
		)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CreateStageJob creates a new stage job record
func (r *Repository) CreateStageJob(ctx context.Context, job *StageJob) error {
	query := `
		INSERT INTO engine_stage_jobs (
			run_id, stage_name, status, row_count, error_message
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	return r.db.QueryRowContext(
		ctx, query,
		job.RunID, job.StageName, job.Status, job.RowCount, job.ErrorMessage,
	).Scan(&job.ID)
}

// UpdateStageJob updates an existing stage job
func (r *Repository) UpdateStageJob(ctx context.Context, job *StageJob) error {
	query := `
		UPDATE engine_stage_jobs
		SET status = $1, row_count = $2, error_message = $3,
		    processed_at = $4, retry_count = $5
		WHERE id = $6
	`

	_, err := r.db.ExecContext(
		ctx, query,
		job.Status, job.RowCount, job.ErrorMessage,
		job.ProcessedAt, job.RetryCount, job.ID,
	)
	return err
}

// GetStageJobsByRunID retrieves all stage jobs for a run
func (r *Repository) GetStageJobsByRunID(ctx context.Context, runID int64) ([]*StageJob, error) {
	query := `
		SELECT id, run_id, stage_name, status, row_count,
		       error_message, processed_at, retry_count
		FROM engine_stage_jobs
		WHERE run_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*StageJob
	for rows.Next() {
		job := &StageJob{}
		err := rows.Scan(
			&job.ID, &job.RunID, &job.StageName, &job.Status, &job.RowCount,
			&job.ErrorMessage, &job.ProcessedAt, &job.RetryCount,
		)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// IncrementCompletedStages atomically bumps the completed stage counter and
// adds the stage's rows to the run total
func (r *Repository) IncrementCompletedStages(ctx context.Context, runID int64, rowCount int) error {
	query := `
		UPDATE engine_runs
		SET completed_stages = completed_stages + 1,
		    total_rows = total_rows + $1
		WHERE id = $2
	`

	_, err := r.db.ExecContext(ctx, query, rowCount, runID)
	return err
}

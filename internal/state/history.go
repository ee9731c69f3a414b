package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ShayCichocki/weave/pkg/models"
)

// RunRecord is one persisted plan run.
type RunRecord struct {
	ID          string
	PlanID      string
	Mode        string
	Prompt      string
	Status      string
	Usage       models.TokenUsage
	StartedAt   time.Time
	CompletedAt time.Time
	// Steps is populated by GetRun only.
	Steps []StepRecord
}

// StepRecord is one persisted step result within a run.
type StepRecord struct {
	StepID      string
	Status      string
	Output      string
	Error       string
	Model       string
	Duration    time.Duration
	Usage       models.TokenUsage
	StartedAt   time.Time
	CompletedAt time.Time
}

// SaveRun persists a run and its step results in one transaction.
func (db *DB) SaveRun(rec RunRecord) error {
	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO runs (id, plan_id, mode, prompt, status, input_tokens, output_tokens, total_tokens, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, rec.PlanID, rec.Mode, rec.Prompt, rec.Status,
			rec.Usage.InputTokens, rec.Usage.OutputTokens, rec.Usage.TotalTokens,
			formatTime(rec.StartedAt), formatTime(rec.CompletedAt))
		if err != nil {
			return fmt.Errorf("insert run %s: %w", rec.ID, err)
		}

		for _, step := range rec.Steps {
			_, err := tx.Exec(`
				INSERT INTO step_results (run_id, step_id, status, output, error, model, duration_ms, input_tokens, output_tokens, started_at, completed_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, rec.ID, step.StepID, step.Status, step.Output, step.Error, step.Model,
				step.Duration.Milliseconds(), step.Usage.InputTokens, step.Usage.OutputTokens,
				formatTime(step.StartedAt), formatTime(step.CompletedAt))
			if err != nil {
				return fmt.Errorf("insert step %s of run %s: %w", step.StepID, rec.ID, err)
			}
		}

		return nil
	})
}

// GetRun loads a run and its step results.
func (db *DB) GetRun(id string) (*RunRecord, error) {
	var rec RunRecord
	var startedAt string
	var completedAt sql.NullString

	row := db.QueryRow(`
		SELECT id, plan_id, mode, prompt, status, input_tokens, output_tokens, total_tokens, started_at, completed_at
		FROM runs WHERE id = ?
	`, id)
	err := row.Scan(&rec.ID, &rec.PlanID, &rec.Mode, &rec.Prompt, &rec.Status,
		&rec.Usage.InputTokens, &rec.Usage.OutputTokens, &rec.Usage.TotalTokens,
		&startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}

	rec.StartedAt, _ = parseTime(startedAt)
	rec.CompletedAt = parseNullableTime(completedAt)

	rows, err := db.Query(`
		SELECT step_id, status, output, error, model, duration_ms, input_tokens, output_tokens, started_at, completed_at
		FROM step_results WHERE run_id = ? ORDER BY started_at, step_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get steps of run %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var step StepRecord
		var durationMs int64
		var stepStarted, stepCompleted sql.NullString
		err := rows.Scan(&step.StepID, &step.Status, &step.Output, &step.Error, &step.Model,
			&durationMs, &step.Usage.InputTokens, &step.Usage.OutputTokens,
			&stepStarted, &stepCompleted)
		if err != nil {
			return nil, fmt.Errorf("scan step of run %s: %w", id, err)
		}
		step.Duration = time.Duration(durationMs) * time.Millisecond
		step.Usage.TotalTokens = step.Usage.InputTokens + step.Usage.OutputTokens
		step.StartedAt = parseNullableTime(stepStarted)
		step.CompletedAt = parseNullableTime(stepCompleted)
		rec.Steps = append(rec.Steps, step)
	}

	return &rec, rows.Err()
}

// ListRuns returns the most recent runs, newest first, without step details.
// A non-positive limit returns all runs.
func (db *DB) ListRuns(limit int) ([]RunRecord, error) {
	query := `
		SELECT id, plan_id, mode, prompt, status, input_tokens, output_tokens, total_tokens, started_at, completed_at
		FROM runs ORDER BY started_at DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var startedAt string
		var completedAt sql.NullString
		err := rows.Scan(&rec.ID, &rec.PlanID, &rec.Mode, &rec.Prompt, &rec.Status,
			&rec.Usage.InputTokens, &rec.Usage.OutputTokens, &rec.Usage.TotalTokens,
			&startedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.StartedAt, _ = parseTime(startedAt)
		rec.CompletedAt = parseNullableTime(completedAt)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// PurgeOldRuns deletes runs started before the cutoff.
// Returns the number of runs deleted.
func (db *DB) PurgeOldRuns(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	result, err := db.Exec("DELETE FROM runs WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old runs: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

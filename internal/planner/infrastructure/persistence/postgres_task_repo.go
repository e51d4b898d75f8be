package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
)

const pgUniqueViolation = "23505"

// PostgresTaskRepository persists tasks in PostgreSQL.
type PostgresTaskRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTaskRepository creates a PostgreSQL-backed task repository.
func NewPostgresTaskRepository(pool *pgxpool.Pool) *PostgresTaskRepository {
	return &PostgresTaskRepository{pool: pool}
}

// Save upserts a task row.
func (r *PostgresTaskRepository) Save(ctx context.Context, t *domain.Task) error {
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			notes = EXCLUDED.notes,
			status = EXCLUDED.status,
			category = EXCLUDED.category,
			energy_intensity = EXCLUDED.energy_intensity,
			estimated_duration_min = EXCLUDED.estimated_duration_min,
			duration_confidence = EXCLUDED.duration_confidence,
			risk_score = EXCLUDED.risk_score,
			impact_score = EXCLUDED.impact_score,
			deadline = EXCLUDED.deadline,
			start_after = EXCLUDED.start_after,
			due_by = EXCLUDED.due_by,
			flex_window_start = EXCLUDED.flex_window_start,
			flex_window_end = EXCLUDED.flex_window_end,
			ai_excluded = EXCLUDED.ai_excluded,
			manual_priority_locked = EXCLUDED.manual_priority_locked,
			user_locked = EXCLUDED.user_locked,
			manually_scheduled = EXCLUDED.manually_scheduled,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	var windowStart, windowEnd *time.Time
	if w := t.FlexibilityWindow(); w != nil {
		windowStart, windowEnd = &w.Start, &w.End
	}

	_, err := r.pool.Exec(ctx, query,
		t.ID(), t.UserID(), string(t.SourceType()), t.SourceID(), t.Title(), t.Notes(),
		t.Status().String(), t.Category().String(), t.EnergyIntensity().String(),
		t.EstimatedDurationMin(), t.DurationConfidence(), t.RiskScore(), t.ImpactScore(),
		t.Deadline(), t.StartAfter(), t.DueBy(), windowStart, windowEnd,
		t.AIExcluded(), t.ManualPriorityLocked(), t.UserLocked(), t.ManuallyScheduled(),
		t.RecurrenceSeriesID(), t.RecurrenceOccurrenceStart(),
		t.CreatedAt(), t.UpdatedAt(), t.DeletedAt(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrDuplicateOccurrence
		}
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// FindByID fetches a task owned by the user.
func (r *PostgresTaskRepository) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`
	t, err := scanPgTask(r.pool.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	return t, err
}

// FindActive returns non-deleted tasks, newest first.
func (r *PostgresTaskRepository) FindActive(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC`
	return r.queryTasks(ctx, query, userID)
}

// FindOpen returns open non-deleted tasks, newest first.
func (r *PostgresTaskRepository) FindOpen(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE user_id = $1 AND deleted_at IS NULL AND status = 'open'
		ORDER BY created_at DESC, id DESC`
	return r.queryTasks(ctx, query, userID)
}

// FindOpenBySeries returns open occurrences materialized from a series.
func (r *PostgresTaskRepository) FindOpenBySeries(ctx context.Context, userID, seriesID uuid.UUID) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE user_id = $1 AND deleted_at IS NULL AND status = 'open' AND recurrence_series_id = $2
		ORDER BY recurrence_occurrence_start ASC`
	return r.queryTasks(ctx, query, userID, seriesID)
}

// Purge permanently removes a task row.
func (r *PostgresTaskRepository) Purge(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to purge task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *PostgresTaskRepository) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanPgTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanPgTask(row pgx.Row) (*domain.Task, error) {
	var (
		p                            domain.RehydrateTaskParams
		sourceType                   string
		status, category, energy     string
		windowStart, windowEnd       *time.Time
	)

	err := row.Scan(
		&p.ID, &p.UserID, &sourceType, &p.SourceID, &p.Title, &p.Notes, &status, &category,
		&energy, &p.EstimatedDurationMin, &p.DurationConfidence, &p.RiskScore, &p.ImpactScore,
		&p.Deadline, &p.StartAfter, &p.DueBy, &windowStart, &windowEnd,
		&p.AIExcluded, &p.ManualPriorityLocked, &p.UserLocked, &p.ManuallyScheduled,
		&p.RecurrenceSeriesID, &p.RecurrenceOccurrenceStart,
		&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	p.SourceType = domain.SourceType(sourceType)
	p.Status = domain.ParseStatus(status)
	p.Category = domain.ParseCategory(category)
	p.EnergyIntensity = domain.ParseEnergyIntensity(energy)
	if windowStart != nil && windowEnd != nil {
		p.FlexibilityWindow = &domain.FlexibilityWindow{Start: *windowStart, End: *windowEnd}
	}
	return domain.RehydrateTask(p), nil
}

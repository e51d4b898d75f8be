// Package persistence implements the planner repositories for both storage
// backends: embedded SQLite and networked PostgreSQL.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
)

const taskColumns = `id, user_id, source_type, source_id, title, notes, status, category,
	energy_intensity, estimated_duration_min, duration_confidence, risk_score, impact_score,
	deadline, start_after, due_by, flex_window_start, flex_window_end,
	ai_excluded, manual_priority_locked, user_locked, manually_scheduled,
	recurrence_series_id, recurrence_occurrence_start, created_at, updated_at, deleted_at`

// SQLiteTaskRepository persists tasks in the embedded database.
type SQLiteTaskRepository struct {
	db *sql.DB
}

// NewSQLiteTaskRepository creates a SQLite-backed task repository.
func NewSQLiteTaskRepository(db *sql.DB) *SQLiteTaskRepository {
	return &SQLiteTaskRepository{db: db}
}

// Save upserts a task row.
func (r *SQLiteTaskRepository) Save(ctx context.Context, t *domain.Task) error {
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			notes = excluded.notes,
			status = excluded.status,
			category = excluded.category,
			energy_intensity = excluded.energy_intensity,
			estimated_duration_min = excluded.estimated_duration_min,
			duration_confidence = excluded.duration_confidence,
			risk_score = excluded.risk_score,
			impact_score = excluded.impact_score,
			deadline = excluded.deadline,
			start_after = excluded.start_after,
			due_by = excluded.due_by,
			flex_window_start = excluded.flex_window_start,
			flex_window_end = excluded.flex_window_end,
			ai_excluded = excluded.ai_excluded,
			manual_priority_locked = excluded.manual_priority_locked,
			user_locked = excluded.user_locked,
			manually_scheduled = excluded.manually_scheduled,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at
	`

	var windowStart, windowEnd *time.Time
	if w := t.FlexibilityWindow(); w != nil {
		windowStart, windowEnd = &w.Start, &w.End
	}
	var seriesID *string
	if sid := t.RecurrenceSeriesID(); sid != nil {
		s := sid.String()
		seriesID = &s
	}

	_, err := r.db.ExecContext(ctx, query,
		t.ID().String(),
		t.UserID().String(),
		string(t.SourceType()),
		t.SourceID(),
		t.Title(),
		t.Notes(),
		t.Status().String(),
		t.Category().String(),
		t.EnergyIntensity().String(),
		t.EstimatedDurationMin(),
		t.DurationConfidence(),
		t.RiskScore(),
		t.ImpactScore(),
		formatTimePtr(t.Deadline()),
		formatTimePtr(t.StartAfter()),
		formatTimePtr(t.DueBy()),
		formatTimePtr(windowStart),
		formatTimePtr(windowEnd),
		boolToInt(t.AIExcluded()),
		boolToInt(t.ManualPriorityLocked()),
		boolToInt(t.UserLocked()),
		boolToInt(t.ManuallyScheduled()),
		seriesID,
		formatTimePtr(t.RecurrenceOccurrenceStart()),
		formatTime(t.CreatedAt()),
		formatTime(t.UpdatedAt()),
		formatTimePtr(t.DeletedAt()),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return domain.ErrDuplicateOccurrence
		}
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// FindByID fetches a task owned by the user.
func (r *SQLiteTaskRepository) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ? AND user_id = ?`
	t, err := scanTask(r.db.QueryRowContext(ctx, query, id.String(), userID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	return t, err
}

// FindActive returns non-deleted tasks, newest first.
func (r *SQLiteTaskRepository) FindActive(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC`
	return r.queryTasks(ctx, query, userID.String())
}

// FindOpen returns open non-deleted tasks, newest first.
func (r *SQLiteTaskRepository) FindOpen(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE user_id = ? AND deleted_at IS NULL AND status = 'open'
		ORDER BY created_at DESC, id DESC`
	return r.queryTasks(ctx, query, userID.String())
}

// FindOpenBySeries returns open occurrences materialized from a series.
func (r *SQLiteTaskRepository) FindOpenBySeries(ctx context.Context, userID, seriesID uuid.UUID) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE user_id = ? AND deleted_at IS NULL AND status = 'open' AND recurrence_series_id = ?
		ORDER BY recurrence_occurrence_start ASC`
	return r.queryTasks(ctx, query, userID.String(), seriesID.String())
}

// Purge permanently removes a task row.
func (r *SQLiteTaskRepository) Purge(ctx context.Context, userID, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND user_id = ?`, id.String(), userID.String())
	if err != nil {
		return fmt.Errorf("failed to purge task: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *SQLiteTaskRepository) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		idStr, userIDStr, sourceType, title, status, category, energy string
		sourceID, notes, seriesIDStr                                  sql.NullString
		durationMin                                                   int
		confidence, risk, impact                                      float64
		deadline, startAfter, dueBy                                   sql.NullString
		windowStart, windowEnd                                        sql.NullString
		aiExcluded, priorityLocked, userLocked, manuallyScheduled     int
		occurrenceStart                                               sql.NullString
		createdAt, updatedAt                                          string
		deletedAt                                                     sql.NullString
	)

	err := row.Scan(
		&idStr, &userIDStr, &sourceType, &sourceID, &title, &notes, &status, &category,
		&energy, &durationMin, &confidence, &risk, &impact,
		&deadline, &startAfter, &dueBy, &windowStart, &windowEnd,
		&aiExcluded, &priorityLocked, &userLocked, &manuallyScheduled,
		&seriesIDStr, &occurrenceStart, &createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid task id: %w", err)
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}

	params := domain.RehydrateTaskParams{
		ID:                        id,
		UserID:                    userID,
		SourceType:                domain.SourceType(sourceType),
		SourceID:                  nullStringPtr(sourceID),
		Title:                     title,
		Notes:                     nullStringPtr(notes),
		Status:                    domain.ParseStatus(status),
		Category:                  domain.ParseCategory(category),
		EnergyIntensity:           domain.ParseEnergyIntensity(energy),
		EstimatedDurationMin:      durationMin,
		DurationConfidence:        confidence,
		RiskScore:                 risk,
		ImpactScore:               impact,
		Deadline:                  parseTimePtr(deadline),
		StartAfter:                parseTimePtr(startAfter),
		DueBy:                     parseTimePtr(dueBy),
		AIExcluded:                aiExcluded != 0,
		ManualPriorityLocked:      priorityLocked != 0,
		UserLocked:                userLocked != 0,
		ManuallyScheduled:         manuallyScheduled != 0,
		RecurrenceOccurrenceStart: parseTimePtr(occurrenceStart),
		DeletedAt:                 parseTimePtr(deletedAt),
	}
	if ws, we := parseTimePtr(windowStart), parseTimePtr(windowEnd); ws != nil && we != nil {
		params.FlexibilityWindow = &domain.FlexibilityWindow{Start: *ws, End: *we}
	}
	if seriesIDStr.Valid {
		sid, err := uuid.Parse(seriesIDStr.String)
		if err != nil {
			return nil, fmt.Errorf("invalid series id: %w", err)
		}
		params.RecurrenceSeriesID = &sid
	}
	if params.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if params.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return domain.RehydrateTask(params), nil
}

// SQLite stores timestamps as RFC3339 text.

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

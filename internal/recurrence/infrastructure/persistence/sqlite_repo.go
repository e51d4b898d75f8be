// Package persistence implements the recurrence repositories for both
// storage backends. Presets are stored as JSON documents alongside the
// row, so the preset schema can grow without migrations.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/qnz18/qzwhatnext/internal/recurrence/domain"
)

const seriesColumns = `id, user_id, title_template, notes_template,
	estimated_duration_min_default, category_default, recurrence_preset, ai_excluded,
	created_at, updated_at, deleted_at`

const timeBlockColumns = `id, user_id, title, recurrence_preset, calendar_event_id,
	created_at, updated_at, deleted_at`

// SQLiteSeriesRepository persists recurring task series in the embedded
// database.
type SQLiteSeriesRepository struct {
	db *sql.DB
}

func NewSQLiteSeriesRepository(db *sql.DB) *SQLiteSeriesRepository {
	return &SQLiteSeriesRepository{db: db}
}

func (r *SQLiteSeriesRepository) Save(ctx context.Context, s *domain.TaskSeries) error {
	preset, err := json.Marshal(s.Preset())
	if err != nil {
		return fmt.Errorf("failed to encode preset: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO recurring_task_series (`+seriesColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title_template = excluded.title_template,
			notes_template = excluded.notes_template,
			estimated_duration_min_default = excluded.estimated_duration_min_default,
			category_default = excluded.category_default,
			recurrence_preset = excluded.recurrence_preset,
			ai_excluded = excluded.ai_excluded,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at
	`,
		s.ID().String(), s.UserID().String(), s.TitleTemplate(), s.NotesTemplate(),
		s.DurationDefault(), s.CategoryDefault(), string(preset), boolToInt(s.AIExcluded()),
		formatTime(s.CreatedAt()), formatTime(s.UpdatedAt()), formatTimePtr(s.DeletedAt()),
	)
	if err != nil {
		return fmt.Errorf("failed to save series: %w", err)
	}
	return nil
}

func (r *SQLiteSeriesRepository) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.TaskSeries, error) {
	query := `SELECT ` + seriesColumns + ` FROM recurring_task_series WHERE id = ? AND user_id = ?`
	s, err := scanSeries(r.db.QueryRowContext(ctx, query, id.String(), userID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSeriesNotFound
	}
	return s, err
}

func (r *SQLiteSeriesRepository) ListActive(ctx context.Context, userID uuid.UUID) ([]*domain.TaskSeries, error) {
	query := `SELECT ` + seriesColumns + ` FROM recurring_task_series
		WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}
	defer rows.Close()

	var out []*domain.TaskSeries
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteSeriesRepository) ActiveUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM recurring_task_series WHERE deleted_at IS NULL ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query series users: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SQLiteTimeBlockRepository persists recurring time blocks in the
// embedded database.
type SQLiteTimeBlockRepository struct {
	db *sql.DB
}

func NewSQLiteTimeBlockRepository(db *sql.DB) *SQLiteTimeBlockRepository {
	return &SQLiteTimeBlockRepository{db: db}
}

func (r *SQLiteTimeBlockRepository) Save(ctx context.Context, b *domain.TimeBlock) error {
	preset, err := json.Marshal(b.Preset())
	if err != nil {
		return fmt.Errorf("failed to encode preset: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO recurring_time_blocks (`+timeBlockColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			recurrence_preset = excluded.recurrence_preset,
			calendar_event_id = excluded.calendar_event_id,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at
	`,
		b.ID().String(), b.UserID().String(), b.Title(), string(preset), b.CalendarEventID(),
		formatTime(b.CreatedAt()), formatTime(b.UpdatedAt()), formatTimePtr(b.DeletedAt()),
	)
	if err != nil {
		return fmt.Errorf("failed to save time block: %w", err)
	}
	return nil
}

func (r *SQLiteTimeBlockRepository) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.TimeBlock, error) {
	query := `SELECT ` + timeBlockColumns + ` FROM recurring_time_blocks WHERE id = ? AND user_id = ?`
	b, err := scanTimeBlock(r.db.QueryRowContext(ctx, query, id.String(), userID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTimeBlockNotFound
	}
	return b, err
}

func (r *SQLiteTimeBlockRepository) ListActive(ctx context.Context, userID uuid.UUID) ([]*domain.TimeBlock, error) {
	query := `SELECT ` + timeBlockColumns + ` FROM recurring_time_blocks
		WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query time blocks: %w", err)
	}
	defer rows.Close()

	var out []*domain.TimeBlock
	for rows.Next() {
		b, err := scanTimeBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSeries(row rowScanner) (*domain.TaskSeries, error) {
	var (
		idStr, userIDStr, title, category string
		notes                             sql.NullString
		duration                          int
		presetJSON                        string
		aiExcluded                        int
		createdAt, updatedAt              string
		deletedAt                         sql.NullString
	)
	err := row.Scan(&idStr, &userIDStr, &title, &notes, &duration, &category,
		&presetJSON, &aiExcluded, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	params := domain.RehydrateTaskSeriesParams{
		TitleTemplate:   title,
		NotesTemplate:   nullStringPtr(notes),
		DurationDefault: duration,
		CategoryDefault: category,
		AIExcluded:      aiExcluded != 0,
		DeletedAt:       parseTimePtr(deletedAt),
	}
	if params.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid series id: %w", err)
	}
	if params.UserID, err = uuid.Parse(userIDStr); err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}
	if err = json.Unmarshal([]byte(presetJSON), &params.Preset); err != nil {
		return nil, fmt.Errorf("invalid preset document: %w", err)
	}
	if params.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if params.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return domain.RehydrateTaskSeries(params), nil
}

func scanTimeBlock(row rowScanner) (*domain.TimeBlock, error) {
	var (
		idStr, userIDStr, title string
		presetJSON              string
		eventID                 sql.NullString
		createdAt, updatedAt    string
		deletedAt               sql.NullString
	)
	err := row.Scan(&idStr, &userIDStr, &title, &presetJSON, &eventID,
		&createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	params := domain.RehydrateTimeBlockParams{
		Title:           title,
		CalendarEventID: nullStringPtr(eventID),
		DeletedAt:       parseTimePtr(deletedAt),
	}
	if params.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid time block id: %w", err)
	}
	if params.UserID, err = uuid.Parse(userIDStr); err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}
	if err = json.Unmarshal([]byte(presetJSON), &params.Preset); err != nil {
		return nil, fmt.Errorf("invalid preset document: %w", err)
	}
	if params.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if params.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return domain.RehydrateTimeBlock(params), nil
}

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

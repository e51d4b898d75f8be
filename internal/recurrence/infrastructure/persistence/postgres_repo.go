package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qnz18/qzwhatnext/internal/recurrence/domain"
)

// PostgresSeriesRepository persists recurring task series in PostgreSQL.
type PostgresSeriesRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSeriesRepository(pool *pgxpool.Pool) *PostgresSeriesRepository {
	return &PostgresSeriesRepository{pool: pool}
}

func (r *PostgresSeriesRepository) Save(ctx context.Context, s *domain.TaskSeries) error {
	preset, err := json.Marshal(s.Preset())
	if err != nil {
		return fmt.Errorf("failed to encode preset: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO recurring_task_series (`+seriesColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			title_template = EXCLUDED.title_template,
			notes_template = EXCLUDED.notes_template,
			estimated_duration_min_default = EXCLUDED.estimated_duration_min_default,
			category_default = EXCLUDED.category_default,
			recurrence_preset = EXCLUDED.recurrence_preset,
			ai_excluded = EXCLUDED.ai_excluded,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`,
		s.ID(), s.UserID(), s.TitleTemplate(), s.NotesTemplate(),
		s.DurationDefault(), s.CategoryDefault(), preset, s.AIExcluded(),
		s.CreatedAt(), s.UpdatedAt(), s.DeletedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to save series: %w", err)
	}
	return nil
}

func (r *PostgresSeriesRepository) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.TaskSeries, error) {
	query := `SELECT ` + seriesColumns + ` FROM recurring_task_series WHERE id = $1 AND user_id = $2`
	s, err := scanPgSeries(r.pool.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSeriesNotFound
	}
	return s, err
}

func (r *PostgresSeriesRepository) ListActive(ctx context.Context, userID uuid.UUID) ([]*domain.TaskSeries, error) {
	query := `SELECT ` + seriesColumns + ` FROM recurring_task_series
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}
	defer rows.Close()

	var out []*domain.TaskSeries
	for rows.Next() {
		s, err := scanPgSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresSeriesRepository) ActiveUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM recurring_task_series WHERE deleted_at IS NULL ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query series users: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PostgresTimeBlockRepository persists recurring time blocks in PostgreSQL.
type PostgresTimeBlockRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresTimeBlockRepository(pool *pgxpool.Pool) *PostgresTimeBlockRepository {
	return &PostgresTimeBlockRepository{pool: pool}
}

func (r *PostgresTimeBlockRepository) Save(ctx context.Context, b *domain.TimeBlock) error {
	preset, err := json.Marshal(b.Preset())
	if err != nil {
		return fmt.Errorf("failed to encode preset: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO recurring_time_blocks (`+timeBlockColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			recurrence_preset = EXCLUDED.recurrence_preset,
			calendar_event_id = EXCLUDED.calendar_event_id,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`,
		b.ID(), b.UserID(), b.Title(), preset, b.CalendarEventID(),
		b.CreatedAt(), b.UpdatedAt(), b.DeletedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to save time block: %w", err)
	}
	return nil
}

func (r *PostgresTimeBlockRepository) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.TimeBlock, error) {
	query := `SELECT ` + timeBlockColumns + ` FROM recurring_time_blocks WHERE id = $1 AND user_id = $2`
	b, err := scanPgTimeBlock(r.pool.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTimeBlockNotFound
	}
	return b, err
}

func (r *PostgresTimeBlockRepository) ListActive(ctx context.Context, userID uuid.UUID) ([]*domain.TimeBlock, error) {
	query := `SELECT ` + timeBlockColumns + ` FROM recurring_time_blocks
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query time blocks: %w", err)
	}
	defer rows.Close()

	var out []*domain.TimeBlock
	for rows.Next() {
		b, err := scanPgTimeBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanPgSeries(row pgx.Row) (*domain.TaskSeries, error) {
	var (
		p          domain.RehydrateTaskSeriesParams
		presetJSON []byte
	)
	err := row.Scan(&p.ID, &p.UserID, &p.TitleTemplate, &p.NotesTemplate,
		&p.DurationDefault, &p.CategoryDefault, &presetJSON, &p.AIExcluded,
		&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(presetJSON, &p.Preset); err != nil {
		return nil, fmt.Errorf("invalid preset document: %w", err)
	}
	return domain.RehydrateTaskSeries(p), nil
}

func scanPgTimeBlock(row pgx.Row) (*domain.TimeBlock, error) {
	var (
		p          domain.RehydrateTimeBlockParams
		presetJSON []byte
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Title, &presetJSON, &p.CalendarEventID,
		&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(presetJSON, &p.Preset); err != nil {
		return nil, fmt.Errorf("invalid preset document: %w", err)
	}
	return domain.RehydrateTimeBlock(p), nil
}

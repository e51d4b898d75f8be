package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
)

// PostgresBlockRepository persists scheduled blocks in PostgreSQL.
type PostgresBlockRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBlockRepository creates a PostgreSQL-backed block repository.
func NewPostgresBlockRepository(pool *pgxpool.Pool) *PostgresBlockRepository {
	return &PostgresBlockRepository{pool: pool}
}

// Save upserts a block row.
func (r *PostgresBlockRepository) Save(ctx context.Context, b *domain.ScheduledBlock) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO scheduled_blocks (`+blockColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			scheduled_by = EXCLUDED.scheduled_by,
			locked = EXCLUDED.locked,
			calendar_event_id = EXCLUDED.calendar_event_id,
			calendar_event_etag = EXCLUDED.calendar_event_etag,
			calendar_event_updated_at = EXCLUDED.calendar_event_updated_at,
			updated_at = EXCLUDED.updated_at
	`, pgBlockArgs(b)...)
	if err != nil {
		return fmt.Errorf("failed to save block: %w", err)
	}
	return nil
}

// FindByID fetches a block owned by the user.
func (r *PostgresBlockRepository) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.ScheduledBlock, error) {
	query := `SELECT ` + blockColumns + ` FROM scheduled_blocks WHERE id = $1 AND user_id = $2`
	b, err := scanPgBlock(r.pool.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBlockNotFound
	}
	return b, err
}

// FindByUser returns all blocks ordered by (start_time, id).
func (r *PostgresBlockRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]*domain.ScheduledBlock, error) {
	query := `SELECT ` + blockColumns + ` FROM scheduled_blocks
		WHERE user_id = $1 ORDER BY start_time ASC, id ASC`
	return r.queryBlocks(ctx, query, userID)
}

// FindLocked returns locked blocks ordered by (start_time, id).
func (r *PostgresBlockRepository) FindLocked(ctx context.Context, userID uuid.UUID) ([]*domain.ScheduledBlock, error) {
	query := `SELECT ` + blockColumns + ` FROM scheduled_blocks
		WHERE user_id = $1 AND locked ORDER BY start_time ASC, id ASC`
	return r.queryBlocks(ctx, query, userID)
}

// ReplaceUnlocked swaps the regenerable portion of the plan in one
// transaction: delete every unlocked block, insert the new set.
func (r *PostgresBlockRepository) ReplaceUnlocked(ctx context.Context, userID uuid.UUID, blocks []*domain.ScheduledBlock) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM scheduled_blocks WHERE user_id = $1 AND NOT locked`, userID); err != nil {
		return fmt.Errorf("failed to clear unlocked blocks: %w", err)
	}

	for _, b := range blocks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO scheduled_blocks (`+blockColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, pgBlockArgs(b)...); err != nil {
			return fmt.Errorf("failed to insert block: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// DeleteForEntity removes all blocks holding time for an entity.
func (r *PostgresBlockRepository) DeleteForEntity(ctx context.Context, userID, entityID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM scheduled_blocks WHERE user_id = $1 AND entity_id = $2`, userID, entityID)
	if err != nil {
		return fmt.Errorf("failed to delete blocks: %w", err)
	}
	return nil
}

func (r *PostgresBlockRepository) queryBlocks(ctx context.Context, query string, args ...any) ([]*domain.ScheduledBlock, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*domain.ScheduledBlock
	for rows.Next() {
		b, err := scanPgBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func pgBlockArgs(b *domain.ScheduledBlock) []any {
	return []any{
		b.ID(), b.UserID(), string(b.EntityType()), b.EntityID(),
		b.StartTime(), b.EndTime(), string(b.ScheduledBy()), b.Locked(),
		b.CalendarEventID(), b.CalendarEventEtag(), b.CalendarEventUpdatedAt(),
		b.CreatedAt(), b.UpdatedAt(),
	}
}

func scanPgBlock(row pgx.Row) (*domain.ScheduledBlock, error) {
	var (
		p                       domain.RehydrateBlockParams
		entityType, scheduledBy string
	)

	err := row.Scan(
		&p.ID, &p.UserID, &entityType, &p.EntityID, &p.StartTime, &p.EndTime,
		&scheduledBy, &p.Locked, &p.CalendarEventID, &p.CalendarEventEtag,
		&p.CalendarEventUpdatedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.EntityType = domain.BlockEntityType(entityType)
	p.ScheduledBy = domain.ScheduledBy(scheduledBy)
	return domain.RehydrateScheduledBlock(p), nil
}

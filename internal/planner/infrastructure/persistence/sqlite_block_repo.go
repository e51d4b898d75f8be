package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
)

const blockColumns = `id, user_id, entity_type, entity_id, start_time, end_time,
	scheduled_by, locked, calendar_event_id, calendar_event_etag, calendar_event_updated_at,
	created_at, updated_at`

// SQLiteBlockRepository persists scheduled blocks in the embedded database.
type SQLiteBlockRepository struct {
	db *sql.DB
}

// NewSQLiteBlockRepository creates a SQLite-backed block repository.
func NewSQLiteBlockRepository(db *sql.DB) *SQLiteBlockRepository {
	return &SQLiteBlockRepository{db: db}
}

// Save upserts a block row.
func (r *SQLiteBlockRepository) Save(ctx context.Context, b *domain.ScheduledBlock) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scheduled_blocks (`+blockColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			scheduled_by = excluded.scheduled_by,
			locked = excluded.locked,
			calendar_event_id = excluded.calendar_event_id,
			calendar_event_etag = excluded.calendar_event_etag,
			calendar_event_updated_at = excluded.calendar_event_updated_at,
			updated_at = excluded.updated_at
	`, blockArgs(b)...)
	if err != nil {
		return fmt.Errorf("failed to save block: %w", err)
	}
	return nil
}

// FindByID fetches a block owned by the user.
func (r *SQLiteBlockRepository) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.ScheduledBlock, error) {
	query := `SELECT ` + blockColumns + ` FROM scheduled_blocks WHERE id = ? AND user_id = ?`
	b, err := scanBlock(r.db.QueryRowContext(ctx, query, id.String(), userID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBlockNotFound
	}
	return b, err
}

// FindByUser returns all blocks ordered by (start_time, id).
func (r *SQLiteBlockRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]*domain.ScheduledBlock, error) {
	query := `SELECT ` + blockColumns + ` FROM scheduled_blocks
		WHERE user_id = ? ORDER BY start_time ASC, id ASC`
	return r.queryBlocks(ctx, query, userID.String())
}

// FindLocked returns locked blocks ordered by (start_time, id).
func (r *SQLiteBlockRepository) FindLocked(ctx context.Context, userID uuid.UUID) ([]*domain.ScheduledBlock, error) {
	query := `SELECT ` + blockColumns + ` FROM scheduled_blocks
		WHERE user_id = ? AND locked = 1 ORDER BY start_time ASC, id ASC`
	return r.queryBlocks(ctx, query, userID.String())
}

// ReplaceUnlocked swaps the regenerable portion of the plan in one
// transaction: delete every unlocked block, insert the new set.
func (r *SQLiteBlockRepository) ReplaceUnlocked(ctx context.Context, userID uuid.UUID, blocks []*domain.ScheduledBlock) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM scheduled_blocks WHERE user_id = ? AND locked = 0`, userID.String()); err != nil {
		return fmt.Errorf("failed to clear unlocked blocks: %w", err)
	}

	for _, b := range blocks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO scheduled_blocks (`+blockColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, blockArgs(b)...); err != nil {
			return fmt.Errorf("failed to insert block: %w", err)
		}
	}

	return tx.Commit()
}

// DeleteForEntity removes all blocks holding time for an entity.
func (r *SQLiteBlockRepository) DeleteForEntity(ctx context.Context, userID, entityID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM scheduled_blocks WHERE user_id = ? AND entity_id = ?`,
		userID.String(), entityID.String())
	if err != nil {
		return fmt.Errorf("failed to delete blocks: %w", err)
	}
	return nil
}

func (r *SQLiteBlockRepository) queryBlocks(ctx context.Context, query string, args ...any) ([]*domain.ScheduledBlock, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*domain.ScheduledBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func blockArgs(b *domain.ScheduledBlock) []any {
	return []any{
		b.ID().String(),
		b.UserID().String(),
		string(b.EntityType()),
		b.EntityID().String(),
		formatTime(b.StartTime()),
		formatTime(b.EndTime()),
		string(b.ScheduledBy()),
		boolToInt(b.Locked()),
		b.CalendarEventID(),
		b.CalendarEventEtag(),
		formatTimePtr(b.CalendarEventUpdatedAt()),
		formatTime(b.CreatedAt()),
		formatTime(b.UpdatedAt()),
	}
}

func scanBlock(row rowScanner) (*domain.ScheduledBlock, error) {
	var (
		idStr, userIDStr, entityType, entityIDStr  string
		startTime, endTime, scheduledBy            string
		locked                                     int
		eventID, etag, eventUpdatedAt              sql.NullString
		createdAt, updatedAt                       string
	)

	err := row.Scan(
		&idStr, &userIDStr, &entityType, &entityIDStr, &startTime, &endTime,
		&scheduledBy, &locked, &eventID, &etag, &eventUpdatedAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid block id: %w", err)
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}
	entityID, err := uuid.Parse(entityIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid entity id: %w", err)
	}

	params := domain.RehydrateBlockParams{
		ID:                     id,
		UserID:                 userID,
		EntityType:             domain.BlockEntityType(entityType),
		EntityID:               entityID,
		ScheduledBy:            domain.ScheduledBy(scheduledBy),
		Locked:                 locked != 0,
		CalendarEventID:        nullStringPtr(eventID),
		CalendarEventEtag:      nullStringPtr(etag),
		CalendarEventUpdatedAt: parseTimePtr(eventUpdatedAt),
	}
	if params.StartTime, err = parseTime(startTime); err != nil {
		return nil, err
	}
	if params.EndTime, err = parseTime(endTime); err != nil {
		return nil, err
	}
	if params.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if params.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return domain.RehydrateScheduledBlock(params), nil
}

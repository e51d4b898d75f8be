// Package persistence implements the identity repositories for both
// storage backends.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/qnz18/qzwhatnext/internal/identity/domain"
)

const userColumns = `id, email, display_name, calendar_timezone, created_at, updated_at`

const oauthColumns = `user_id, provider, product, scopes,
	refresh_token_encrypted, access_token_encrypted, expiry, created_at, updated_at`

const apiTokenColumns = `id, user_id, token_hash, name, created_at, last_used_at`

// SQLiteUserRepository persists users in the embedded database.
type SQLiteUserRepository struct {
	db *sql.DB
}

func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

func (r *SQLiteUserRepository) Save(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			display_name = excluded.display_name,
			calendar_timezone = excluded.calendar_timezone,
			updated_at = excluded.updated_at
	`,
		u.ID().String(), u.Email(), u.DisplayName(), u.CalendarTimezone(),
		formatTime(u.CreatedAt()), formatTime(u.UpdatedAt()),
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (r *SQLiteUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	return u, err
}

func (r *SQLiteUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	return u, err
}

// SQLiteOAuthTokenRepository persists encrypted OAuth grants.
type SQLiteOAuthTokenRepository struct {
	db *sql.DB
}

func NewSQLiteOAuthTokenRepository(db *sql.DB) *SQLiteOAuthTokenRepository {
	return &SQLiteOAuthTokenRepository{db: db}
}

func (r *SQLiteOAuthTokenRepository) Save(ctx context.Context, t *domain.OAuthToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO google_oauth_tokens (`+oauthColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider, product) DO UPDATE SET
			scopes = excluded.scopes,
			refresh_token_encrypted = excluded.refresh_token_encrypted,
			access_token_encrypted = excluded.access_token_encrypted,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at
	`,
		t.UserID().String(), t.Provider(), t.Product(), t.Scopes(),
		t.RefreshTokenEncrypted(), t.AccessTokenEncrypted(), formatTimePtr(t.Expiry()),
		formatTime(t.CreatedAt()), formatTime(t.UpdatedAt()),
	)
	if err != nil {
		return fmt.Errorf("failed to save oauth token: %w", err)
	}
	return nil
}

func (r *SQLiteOAuthTokenRepository) Find(ctx context.Context, userID uuid.UUID, provider, product string) (*domain.OAuthToken, error) {
	query := `SELECT ` + oauthColumns + ` FROM google_oauth_tokens
		WHERE user_id = ? AND provider = ? AND product = ?`
	row := r.db.QueryRowContext(ctx, query, userID.String(), provider, product)

	var (
		userIDStr, prov, prod, scopes string
		refreshEnc                    []byte
		accessEnc                     []byte
		expiry                        sql.NullString
		createdAt, updatedAt          string
	)
	err := row.Scan(&userIDStr, &prov, &prod, &scopes, &refreshEnc, &accessEnc,
		&expiry, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	uid, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}
	params := domain.RehydrateOAuthTokenParams{
		UserID:                uid,
		Provider:              prov,
		Product:               prod,
		Scopes:                scopes,
		RefreshTokenEncrypted: refreshEnc,
		AccessTokenEncrypted:  accessEnc,
		Expiry:                parseTimePtr(expiry),
	}
	if params.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if params.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return domain.RehydrateOAuthToken(params), nil
}

func (r *SQLiteOAuthTokenRepository) ListUserIDs(ctx context.Context, provider, product string) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM google_oauth_tokens WHERE provider = ? AND product = ? ORDER BY user_id`,
		provider, product)
	if err != nil {
		return nil, fmt.Errorf("failed to list oauth token users: %w", err)
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

func (r *SQLiteOAuthTokenRepository) Delete(ctx context.Context, userID uuid.UUID, provider, product string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM google_oauth_tokens WHERE user_id = ? AND provider = ? AND product = ?`,
		userID.String(), provider, product)
	if err != nil {
		return fmt.Errorf("failed to delete oauth token: %w", err)
	}
	return nil
}

// SQLiteAPITokenRepository persists shortcut token hashes.
type SQLiteAPITokenRepository struct {
	db *sql.DB
}

func NewSQLiteAPITokenRepository(db *sql.DB) *SQLiteAPITokenRepository {
	return &SQLiteAPITokenRepository{db: db}
}

func (r *SQLiteAPITokenRepository) Save(ctx context.Context, t *domain.APIToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_tokens (`+apiTokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			last_used_at = excluded.last_used_at
	`,
		t.ID().String(), t.UserID().String(), t.TokenHash(), t.Name(),
		formatTime(t.CreatedAt()), formatTimePtr(t.LastUsedAt()),
	)
	if err != nil {
		return fmt.Errorf("failed to save api token: %w", err)
	}
	return nil
}

func (r *SQLiteAPITokenRepository) FindByHash(ctx context.Context, tokenHash string) (*domain.APIToken, error) {
	query := `SELECT ` + apiTokenColumns + ` FROM api_tokens WHERE token_hash = ?`
	row := r.db.QueryRowContext(ctx, query, tokenHash)

	var (
		idStr, userIDStr, hash string
		name                   sql.NullString
		createdAt              string
		lastUsedAt             sql.NullString
	)
	err := row.Scan(&idStr, &userIDStr, &hash, &name, &createdAt, &lastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAPITokenNotFound
	}
	if err != nil {
		return nil, err
	}

	params := domain.RehydrateAPITokenParams{
		TokenHash:  hash,
		Name:       nullStringPtr(name),
		LastUsedAt: parseTimePtr(lastUsedAt),
	}
	if params.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid token id: %w", err)
	}
	if params.UserID, err = uuid.Parse(userIDStr); err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}
	if params.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return domain.RehydrateAPIToken(params), nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		idStr, email          string
		displayName, timezone sql.NullString
		createdAt, updatedAt  string
	)
	err := row.Scan(&idStr, &email, &displayName, &timezone, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	params := domain.RehydrateUserParams{
		Email:            email,
		DisplayName:      nullStringPtr(displayName),
		CalendarTimezone: nullStringPtr(timezone),
	}
	if params.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}
	if params.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if params.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return domain.RehydrateUser(params), nil
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

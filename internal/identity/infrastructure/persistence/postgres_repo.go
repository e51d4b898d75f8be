package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qnz18/qzwhatnext/internal/identity/domain"
)

// PostgresUserRepository persists users in PostgreSQL.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

func (r *PostgresUserRepository) Save(ctx context.Context, u *domain.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			calendar_timezone = EXCLUDED.calendar_timezone,
			updated_at = EXCLUDED.updated_at
	`,
		u.ID(), u.Email(), u.DisplayName(), u.CalendarTimezone(),
		u.CreatedAt(), u.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanPgUser(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	return u, err
}

func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	u, err := scanPgUser(r.pool.QueryRow(ctx, query, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	return u, err
}

// PostgresOAuthTokenRepository persists encrypted OAuth grants.
type PostgresOAuthTokenRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresOAuthTokenRepository(pool *pgxpool.Pool) *PostgresOAuthTokenRepository {
	return &PostgresOAuthTokenRepository{pool: pool}
}

func (r *PostgresOAuthTokenRepository) Save(ctx context.Context, t *domain.OAuthToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO google_oauth_tokens (`+oauthColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, provider, product) DO UPDATE SET
			scopes = EXCLUDED.scopes,
			refresh_token_encrypted = EXCLUDED.refresh_token_encrypted,
			access_token_encrypted = EXCLUDED.access_token_encrypted,
			expiry = EXCLUDED.expiry,
			updated_at = EXCLUDED.updated_at
	`,
		t.UserID(), t.Provider(), t.Product(), t.Scopes(),
		t.RefreshTokenEncrypted(), t.AccessTokenEncrypted(), t.Expiry(),
		t.CreatedAt(), t.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to save oauth token: %w", err)
	}
	return nil
}

func (r *PostgresOAuthTokenRepository) Find(ctx context.Context, userID uuid.UUID, provider, product string) (*domain.OAuthToken, error) {
	query := `SELECT ` + oauthColumns + ` FROM google_oauth_tokens
		WHERE user_id = $1 AND provider = $2 AND product = $3`

	var p domain.RehydrateOAuthTokenParams
	err := r.pool.QueryRow(ctx, query, userID, provider, product).Scan(
		&p.UserID, &p.Provider, &p.Product, &p.Scopes,
		&p.RefreshTokenEncrypted, &p.AccessTokenEncrypted, &p.Expiry,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return domain.RehydrateOAuthToken(p), nil
}

func (r *PostgresOAuthTokenRepository) ListUserIDs(ctx context.Context, provider, product string) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM google_oauth_tokens WHERE provider = $1 AND product = $2 ORDER BY user_id`,
		provider, product)
	if err != nil {
		return nil, fmt.Errorf("failed to list oauth token users: %w", err)
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

func (r *PostgresOAuthTokenRepository) Delete(ctx context.Context, userID uuid.UUID, provider, product string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM google_oauth_tokens WHERE user_id = $1 AND provider = $2 AND product = $3`,
		userID, provider, product)
	if err != nil {
		return fmt.Errorf("failed to delete oauth token: %w", err)
	}
	return nil
}

// PostgresAPITokenRepository persists shortcut token hashes.
type PostgresAPITokenRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAPITokenRepository(pool *pgxpool.Pool) *PostgresAPITokenRepository {
	return &PostgresAPITokenRepository{pool: pool}
}

func (r *PostgresAPITokenRepository) Save(ctx context.Context, t *domain.APIToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO api_tokens (`+apiTokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			last_used_at = EXCLUDED.last_used_at
	`,
		t.ID(), t.UserID(), t.TokenHash(), t.Name(), t.CreatedAt(), t.LastUsedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to save api token: %w", err)
	}
	return nil
}

func (r *PostgresAPITokenRepository) FindByHash(ctx context.Context, tokenHash string) (*domain.APIToken, error) {
	query := `SELECT ` + apiTokenColumns + ` FROM api_tokens WHERE token_hash = $1`

	var p domain.RehydrateAPITokenParams
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&p.ID, &p.UserID, &p.TokenHash, &p.Name, &p.CreatedAt, &p.LastUsedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAPITokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return domain.RehydrateAPIToken(p), nil
}

func scanPgUser(row pgx.Row) (*domain.User, error) {
	var p domain.RehydrateUserParams
	err := row.Scan(&p.ID, &p.Email, &p.DisplayName, &p.CalendarTimezone,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return domain.RehydrateUser(p), nil
}

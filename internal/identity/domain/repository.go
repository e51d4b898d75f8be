package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrTokenNotFound    = errors.New("oauth token not found")
	ErrAPITokenNotFound = errors.New("api token not found")
)

type UserRepository interface {
	Save(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

type OAuthTokenRepository interface {
	Save(ctx context.Context, t *OAuthToken) error
	Find(ctx context.Context, userID uuid.UUID, provider, product string) (*OAuthToken, error)
	Delete(ctx context.Context, userID uuid.UUID, provider, product string) error
	ListUserIDs(ctx context.Context, provider, product string) ([]uuid.UUID, error)
}

type APITokenRepository interface {
	Save(ctx context.Context, t *APIToken) error
	FindByHash(ctx context.Context, tokenHash string) (*APIToken, error)
}

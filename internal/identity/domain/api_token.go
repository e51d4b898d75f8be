package domain

import (
	"time"

	"github.com/google/uuid"

	shareddomain "github.com/qnz18/qzwhatnext/internal/shared/domain"
)

// APIToken is an opaque automation credential (the X-Shortcut-Token
// header). Only a peppered HMAC of the token is stored.
type APIToken struct {
	shareddomain.BaseEntity

	userID     uuid.UUID
	tokenHash  string
	name       *string
	lastUsedAt *time.Time
}

func NewAPIToken(userID uuid.UUID, tokenHash string, name *string) *APIToken {
	return &APIToken{
		BaseEntity: shareddomain.NewBaseEntity(),
		userID:     userID,
		tokenHash:  tokenHash,
		name:       name,
	}
}

type RehydrateAPITokenParams struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TokenHash  string
	Name       *string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

func RehydrateAPIToken(p RehydrateAPITokenParams) *APIToken {
	return &APIToken{
		BaseEntity: shareddomain.RehydrateBaseEntity(p.ID, p.CreatedAt, p.CreatedAt),
		userID:     p.UserID,
		tokenHash:  p.TokenHash,
		name:       p.Name,
		lastUsedAt: p.LastUsedAt,
	}
}

func (t *APIToken) UserID() uuid.UUID      { return t.userID }
func (t *APIToken) TokenHash() string      { return t.tokenHash }
func (t *APIToken) Name() *string          { return t.name }
func (t *APIToken) LastUsedAt() *time.Time { return t.lastUsedAt }

func (t *APIToken) MarkUsed(now time.Time) {
	at := now.UTC()
	t.lastUsedAt = &at
}

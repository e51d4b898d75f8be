package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	ProviderGoogle  = "google"
	ProductCalendar = "calendar"
)

// OAuthToken is a stored OAuth grant, keyed by (user, provider, product).
// Token material is AEAD-encrypted before it reaches this struct; the
// plaintext never touches persistence.
type OAuthToken struct {
	userID                uuid.UUID
	provider              string
	product               string
	scopes                string
	refreshTokenEncrypted []byte
	accessTokenEncrypted  []byte
	expiry                *time.Time
	createdAt             time.Time
	updatedAt             time.Time
}

func NewOAuthToken(userID uuid.UUID, provider, product, scopes string, refreshEncrypted []byte) *OAuthToken {
	now := time.Now().UTC()
	return &OAuthToken{
		userID:                userID,
		provider:              provider,
		product:               product,
		scopes:                scopes,
		refreshTokenEncrypted: refreshEncrypted,
		createdAt:             now,
		updatedAt:             now,
	}
}

type RehydrateOAuthTokenParams struct {
	UserID                uuid.UUID
	Provider              string
	Product               string
	Scopes                string
	RefreshTokenEncrypted []byte
	AccessTokenEncrypted  []byte
	Expiry                *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func RehydrateOAuthToken(p RehydrateOAuthTokenParams) *OAuthToken {
	return &OAuthToken{
		userID:                p.UserID,
		provider:              p.Provider,
		product:               p.Product,
		scopes:                p.Scopes,
		refreshTokenEncrypted: p.RefreshTokenEncrypted,
		accessTokenEncrypted:  p.AccessTokenEncrypted,
		expiry:                p.Expiry,
		createdAt:             p.CreatedAt,
		updatedAt:             p.UpdatedAt,
	}
}

func (t *OAuthToken) UserID() uuid.UUID             { return t.userID }
func (t *OAuthToken) Provider() string              { return t.provider }
func (t *OAuthToken) Product() string               { return t.product }
func (t *OAuthToken) Scopes() string                { return t.scopes }
func (t *OAuthToken) RefreshTokenEncrypted() []byte { return t.refreshTokenEncrypted }
func (t *OAuthToken) AccessTokenEncrypted() []byte  { return t.accessTokenEncrypted }
func (t *OAuthToken) Expiry() *time.Time            { return t.expiry }
func (t *OAuthToken) CreatedAt() time.Time          { return t.createdAt }
func (t *OAuthToken) UpdatedAt() time.Time          { return t.updatedAt }

// UpdateRefreshToken replaces the stored grant after a new consent.
func (t *OAuthToken) UpdateRefreshToken(refreshEncrypted []byte, scopes string) {
	t.refreshTokenEncrypted = refreshEncrypted
	t.scopes = scopes
	t.updatedAt = time.Now().UTC()
}

// CacheAccessToken stores the latest short-lived access token so restarts
// do not force a refresh round trip.
func (t *OAuthToken) CacheAccessToken(accessEncrypted []byte, expiry time.Time) {
	t.accessTokenEncrypted = accessEncrypted
	e := expiry.UTC()
	t.expiry = &e
	t.updatedAt = time.Now().UTC()
}

package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qnz18/qzwhatnext/internal/identity/domain"
	"github.com/qnz18/qzwhatnext/internal/identity/infrastructure/persistence"
	"github.com/qnz18/qzwhatnext/internal/shared/clock"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/crypto"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/database/sqlite"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/migrations"
)

// 32 zero bytes, base64url.
const testEncryptionKey = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

func setupIdentityDB(t *testing.T) (*sql.DB, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.RunSQLite(ctx, db))

	userID := uuid.New()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = db.ExecContext(ctx,
		`INSERT INTO users (id, email, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		userID.String(), userID.String()+"@example.com", now, now)
	require.NoError(t, err)

	return db, userID
}

func TestAuthServiceJWT(t *testing.T) {
	db, userID := setupIdentityDB(t)
	svc := NewAuthService(persistence.NewSQLiteAPITokenRepository(db),
		"test-secret", 24*time.Hour, "pepper", clock.SystemClock{}, nil)

	token, err := svc.IssueJWT(userID)
	require.NoError(t, err)

	got, err := svc.VerifyJWT(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	t.Run("tampered token rejected", func(t *testing.T) {
		_, err := svc.VerifyJWT(token + "x")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		other := NewAuthService(persistence.NewSQLiteAPITokenRepository(db),
			"other-secret", 24*time.Hour, "pepper", clock.SystemClock{}, nil)
		_, err := other.VerifyJWT(token)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestAuthServiceShortcutToken(t *testing.T) {
	ctx := context.Background()
	db, userID := setupIdentityDB(t)
	svc := NewAuthService(persistence.NewSQLiteAPITokenRepository(db),
		"test-secret", 24*time.Hour, "pepper", clock.SystemClock{}, nil)

	name := "shortcuts"
	plaintext, err := svc.IssueShortcutToken(ctx, userID, &name)
	require.NoError(t, err)

	got, err := svc.Authenticate(ctx, "", plaintext)
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	t.Run("unknown token rejected", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "", "not-a-token")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("bearer header takes precedence", func(t *testing.T) {
		jwtToken, err := svc.IssueJWT(userID)
		require.NoError(t, err)
		got, err := svc.Authenticate(ctx, "Bearer "+jwtToken, "")
		require.NoError(t, err)
		assert.Equal(t, userID, got)
	})

	t.Run("no credentials rejected", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "", "")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func newOAuthFixture(t *testing.T, tokenURL string) (*GoogleOAuthService, domain.OAuthTokenRepository, uuid.UUID) {
	t.Helper()
	db, userID := setupIdentityDB(t)
	enc, err := crypto.NewAESGCMFromBase64Key(testEncryptionKey)
	require.NoError(t, err)
	repo := persistence.NewSQLiteOAuthTokenRepository(db)
	svc := NewGoogleOAuthService(OAuthConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/callback",
		TokenURL:     tokenURL,
	}, repo, enc, nil)
	return svc, repo, userID
}

func TestGoogleOAuthServiceExchangeAndTokenSource(t *testing.T) {
	ctx := context.Background()

	refreshes := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "access-1",
				"refresh_token": "refresh-1",
				"token_type":    "Bearer",
				"expires_in":    3600,
			})
		case "refresh_token":
			refreshes++
			assert.Equal(t, "refresh-1", r.Form.Get("refresh_token"))
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "access-2",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		default:
			t.Errorf("unexpected grant_type %q", r.Form.Get("grant_type"))
		}
	}))
	defer server.Close()

	svc, repo, userID := newOAuthFixture(t, server.URL)

	require.NoError(t, svc.ExchangeAndStore(ctx, userID, "auth-code"))

	// The stored row is encrypted, not plaintext.
	row, err := repo.Find(ctx, userID, domain.ProviderGoogle, domain.ProductCalendar)
	require.NoError(t, err)
	assert.NotContains(t, string(row.RefreshTokenEncrypted()), "refresh-1")

	src, err := svc.TokenSource(ctx, userID)
	require.NoError(t, err)
	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Zero(t, refreshes, "cached access token should not trigger a refresh")
}

func TestGoogleOAuthServiceRevokedGrantClearsRow(t *testing.T) {
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})
	}))
	defer server.Close()

	svc, repo, userID := newOAuthFixture(t, server.URL)

	enc, err := crypto.NewAESGCMFromBase64Key(testEncryptionKey)
	require.NoError(t, err)
	refreshEnc, err := enc.Encrypt([]byte("stale-refresh"))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx,
		domain.NewOAuthToken(userID, domain.ProviderGoogle, domain.ProductCalendar, "scopes", refreshEnc)))

	src, err := svc.TokenSource(ctx, userID)
	require.NoError(t, err)

	_, err = src.Token()
	assert.ErrorIs(t, err, ErrCalendarAuthRevoked)

	_, err = repo.Find(ctx, userID, domain.ProviderGoogle, domain.ProductCalendar)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestTokenSourceWithoutGrant(t *testing.T) {
	svc, _, _ := newOAuthFixture(t, "http://localhost:1/token")
	_, err := svc.TokenSource(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrCalendarNotConnected)
}

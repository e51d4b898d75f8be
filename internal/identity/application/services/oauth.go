// Package services implements identity workflows: the Google OAuth grant
// lifecycle and request authentication.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/qnz18/qzwhatnext/internal/identity/domain"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/crypto"
)

var (
	ErrCalendarNotConnected = errors.New("calendar is not connected")
	ErrCalendarAuthRevoked  = errors.New("calendar authorization was revoked")
	ErrTokenEncryption      = errors.New("token encryption failure")
	ErrNoRefreshToken       = errors.New("authorization response carried no refresh token")
)

// CalendarScopes requested during consent.
var CalendarScopes = []string{
	"https://www.googleapis.com/auth/calendar",
	"openid",
	"email",
}

// GoogleEndpoint is Google's OAuth2 endpoint pair.
var GoogleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// OAuthConfig configures the consent flow. AuthURL and TokenURL default
// to Google's endpoints when empty.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
}

// GoogleOAuthService owns the stored Google grant for a user: consent URL,
// code exchange, and a refreshing token source for the calendar client.
type GoogleOAuthService struct {
	config *oauth2.Config
	tokens domain.OAuthTokenRepository
	enc    crypto.Encrypter
	logger *slog.Logger
}

func NewGoogleOAuthService(
	cfg OAuthConfig,
	tokens domain.OAuthTokenRepository,
	enc crypto.Encrypter,
	logger *slog.Logger,
) *GoogleOAuthService {
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := GoogleEndpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	return &GoogleOAuthService{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       CalendarScopes,
			Endpoint:     endpoint,
		},
		tokens: tokens,
		enc:    enc,
		logger: logger,
	}
}

// AuthURL builds the consent URL. Offline access with forced consent so
// Google always returns a refresh token.
func (s *GoogleOAuthService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// ExchangeAndStore swaps an authorization code for tokens and stores them
// encrypted, replacing any previous grant for the same product.
func (s *GoogleOAuthService) ExchangeAndStore(ctx context.Context, userID uuid.UUID, code string) error {
	tok, err := s.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if tok.RefreshToken == "" {
		return ErrNoRefreshToken
	}

	refreshEnc, err := s.enc.Encrypt([]byte(tok.RefreshToken))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenEncryption, err)
	}

	scopes := strings.Join(s.config.Scopes, " ")
	row, err := s.tokens.Find(ctx, userID, domain.ProviderGoogle, domain.ProductCalendar)
	switch {
	case err == nil:
		row.UpdateRefreshToken(refreshEnc, scopes)
	case errors.Is(err, domain.ErrTokenNotFound):
		row = domain.NewOAuthToken(userID, domain.ProviderGoogle, domain.ProductCalendar, scopes, refreshEnc)
	default:
		return fmt.Errorf("failed to load stored grant: %w", err)
	}

	if tok.AccessToken != "" {
		accessEnc, err := s.enc.Encrypt([]byte(tok.AccessToken))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTokenEncryption, err)
		}
		row.CacheAccessToken(accessEnc, tok.Expiry)
	}

	return s.tokens.Save(ctx, row)
}

// TokenSource returns a refreshing, persisting token source for the
// user's calendar grant. Missing grant maps to ErrCalendarNotConnected;
// an invalid_grant refresh failure clears the stored row and surfaces
// ErrCalendarAuthRevoked.
func (s *GoogleOAuthService) TokenSource(ctx context.Context, userID uuid.UUID) (oauth2.TokenSource, error) {
	row, err := s.tokens.Find(ctx, userID, domain.ProviderGoogle, domain.ProductCalendar)
	if errors.Is(err, domain.ErrTokenNotFound) {
		return nil, ErrCalendarNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stored grant: %w", err)
	}

	refresh, err := s.enc.Decrypt(row.RefreshTokenEncrypted())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenEncryption, err)
	}

	seed := &oauth2.Token{RefreshToken: string(refresh)}
	if access := row.AccessTokenEncrypted(); len(access) > 0 && row.Expiry() != nil {
		if plain, err := s.enc.Decrypt(access); err == nil {
			seed.AccessToken = string(plain)
			seed.Expiry = *row.Expiry()
		}
	}

	return &persistingTokenSource{
		ctx:     ctx,
		userID:  userID,
		wrapped: s.config.TokenSource(ctx, seed),
		service: s,
		row:     row,
		last:    seed.AccessToken,
	}, nil
}

// Disconnect drops the stored grant.
func (s *GoogleOAuthService) Disconnect(ctx context.Context, userID uuid.UUID) error {
	return s.tokens.Delete(ctx, userID, domain.ProviderGoogle, domain.ProductCalendar)
}

// ConnectedUsers lists users holding a calendar grant, for background sync.
func (s *GoogleOAuthService) ConnectedUsers(ctx context.Context) ([]uuid.UUID, error) {
	return s.tokens.ListUserIDs(ctx, domain.ProviderGoogle, domain.ProductCalendar)
}

// persistingTokenSource caches refreshed access tokens back to storage and
// translates irrecoverable refresh failures.
type persistingTokenSource struct {
	ctx     context.Context
	userID  uuid.UUID
	wrapped oauth2.TokenSource
	service *GoogleOAuthService
	row     *domain.OAuthToken
	last    string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.wrapped.Token()
	if err != nil {
		if isInvalidGrant(err) {
			if delErr := p.service.tokens.Delete(p.ctx, p.userID, domain.ProviderGoogle, domain.ProductCalendar); delErr != nil {
				p.service.logger.Warn("failed to clear revoked grant",
					slog.String("user_id", p.userID.String()),
					slog.String("error", delErr.Error()))
			}
			return nil, ErrCalendarAuthRevoked
		}
		return nil, err
	}

	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		if enc, encErr := p.service.enc.Encrypt([]byte(tok.AccessToken)); encErr == nil {
			p.row.CacheAccessToken(enc, tok.Expiry)
			if saveErr := p.service.tokens.Save(p.ctx, p.row); saveErr != nil {
				p.service.logger.Warn("failed to cache refreshed access token",
					slog.String("user_id", p.userID.String()),
					slog.String("error", saveErr.Error()))
			}
		}
	}
	return tok, nil
}

func isInvalidGrant(err error) bool {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		if rErr.ErrorCode == "invalid_grant" {
			return true
		}
		return strings.Contains(string(rErr.Body), "invalid_grant")
	}
	return false
}

var _ oauth2.TokenSource = (*persistingTokenSource)(nil)

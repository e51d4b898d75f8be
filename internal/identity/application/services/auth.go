package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/qnz18/qzwhatnext/internal/identity/domain"
	"github.com/qnz18/qzwhatnext/internal/shared/clock"
)

var ErrUnauthorized = errors.New("unauthorized")

// AuthService resolves the request principal from either a bearer JWT or
// an opaque shortcut token, and issues both kinds.
type AuthService struct {
	apiTokens domain.APITokenRepository
	jwtSecret []byte
	jwtExpiry time.Duration
	pepper    []byte
	clk       clock.Clock
	logger    *slog.Logger
}

func NewAuthService(
	apiTokens domain.APITokenRepository,
	jwtSecret string,
	jwtExpiry time.Duration,
	shortcutPepper string,
	clk clock.Clock,
	logger *slog.Logger,
) *AuthService {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		apiTokens: apiTokens,
		jwtSecret: []byte(jwtSecret),
		jwtExpiry: jwtExpiry,
		pepper:    []byte(shortcutPepper),
		clk:       clk,
		logger:    logger,
	}
}

// IssueJWT signs a bearer token for the user.
func (s *AuthService) IssueJWT(userID uuid.UUID) (string, error) {
	now := s.clk.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiry)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyJWT validates signature and expiry and returns the subject.
func (s *AuthService) VerifyJWT(raw string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return uuid.Nil, ErrUnauthorized
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return uuid.Nil, ErrUnauthorized
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrUnauthorized
	}
	return userID, nil
}

// HashShortcutToken computes the peppered HMAC stored for an opaque
// automation token. Only this hash ever reaches the database.
func (s *AuthService) HashShortcutToken(token string) string {
	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// IssueShortcutToken mints an opaque token, stores its hash, and returns
// the plaintext exactly once.
func (s *AuthService) IssueShortcutToken(ctx context.Context, userID uuid.UUID, name *string) (string, error) {
	plaintext := uuid.New().String() + uuid.New().String()
	row := domain.NewAPIToken(userID, s.HashShortcutToken(plaintext), name)
	if err := s.apiTokens.Save(ctx, row); err != nil {
		return "", fmt.Errorf("failed to store api token: %w", err)
	}
	return plaintext, nil
}

// Authenticate resolves the principal from an Authorization header value
// and/or an X-Shortcut-Token header value.
func (s *AuthService) Authenticate(ctx context.Context, authorization, shortcutToken string) (uuid.UUID, error) {
	if bearer, ok := strings.CutPrefix(authorization, "Bearer "); ok && bearer != "" {
		return s.VerifyJWT(bearer)
	}
	if shortcutToken != "" {
		return s.authenticateShortcut(ctx, shortcutToken)
	}
	return uuid.Nil, ErrUnauthorized
}

func (s *AuthService) authenticateShortcut(ctx context.Context, token string) (uuid.UUID, error) {
	row, err := s.apiTokens.FindByHash(ctx, s.HashShortcutToken(token))
	if errors.Is(err, domain.ErrAPITokenNotFound) {
		return uuid.Nil, ErrUnauthorized
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up api token: %w", err)
	}

	row.MarkUsed(s.clk.Now())
	if err := s.apiTokens.Save(ctx, row); err != nil {
		s.logger.Warn("failed to record token use", slog.String("error", err.Error()))
	}
	return row.UserID(), nil
}

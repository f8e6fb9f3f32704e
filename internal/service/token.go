// Package service contains application services for sessions, external
// credentials, and activity ingestion.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/trailframes/server/internal/errs"
	"github.com/trailframes/server/internal/model"
	"github.com/trailframes/server/internal/repository"
)

// sessionClaims is the verifiable payload carried by both token kinds.
type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenService issues, validates, and rotates session tokens. Access
// tokens are stateless; refresh tokens are additionally persisted so
// rotation can detect replay.
type TokenService struct {
	sessions   repository.SessionTokenRepository
	signKey    []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      clockwork.Clock
}

// NewTokenService constructs a TokenService with required dependencies.
func NewTokenService(sessions repository.SessionTokenRepository, signKey []byte, accessTTL, refreshTTL time.Duration, clock clockwork.Clock) *TokenService {
	return &TokenService{
		sessions:   sessions,
		signKey:    signKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		clock:      clock,
	}
}

// IssuePair creates a signed HS256 access/refresh pair and persists the
// refresh token as a new session record.
func (s *TokenService) IssuePair(ctx context.Context, accountID uuid.UUID, email string) (model.TokenPair, error) {
	now := s.clock.Now()

	access, accessExp, err := s.sign(accountID, email, now, s.accessTTL)
	if err != nil {
		return model.TokenPair{}, err
	}
	refresh, refreshExp, err := s.sign(accountID, email, now, s.refreshTTL)
	if err != nil {
		return model.TokenPair{}, err
	}

	stID, err := uuid.NewV4()
	if err != nil {
		return model.TokenPair{}, err
	}
	st := &model.SessionToken{
		ID:        stID,
		AccountID: accountID,
		Token:     refresh,
		ExpiresAt: refreshExp,
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, st); err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: accessExp}, nil
}

// ValidateAccess verifies an access token's signature and expiry. It is
// purely stateless; no store lookup happens.
func (s *TokenService) ValidateAccess(token string) (model.TokenPayload, error) {
	return s.verify(token)
}

// RotateRefresh exchanges a refresh token for a new pair. The persisted
// record is claimed by a single conditional delete; a token whose record
// is gone (already rotated, revoked, or swept) fails without issuing
// anything. Of two concurrent rotations with the same token, exactly one
// succeeds.
func (s *TokenService) RotateRefresh(ctx context.Context, oldToken string) (model.TokenPair, error) {
	payload, err := s.verify(oldToken)
	if err != nil {
		return model.TokenPair{}, err
	}

	accountID, err := s.sessions.Claim(ctx, oldToken)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.TokenPair{}, fmt.Errorf("%w: refresh token already consumed", errs.ErrInvalidToken)
		}
		return model.TokenPair{}, err
	}

	return s.IssuePair(ctx, accountID, payload.Email)
}

// Revoke deletes the session record matching token. A token without a
// record is a no-op, not an error.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// SweepExpired removes all session records past their expiry and returns
// how many were removed. It runs on a fixed interval and is safe to
// overlap with request-path deletions.
func (s *TokenService) SweepExpired(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.clock.Now())
}

// sign creates a signed HS256 JWT for the given subject. Each token gets
// a fresh jti so two tokens minted in the same instant still differ.
func (s *TokenService) sign(accountID uuid.UUID, email string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return "", time.Time{}, err
	}
	exp := now.Add(ttl)
	claims := sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			ID:        jti.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

func (s *TokenService) verify(token string) (model.TokenPayload, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signKey, nil
	}, jwt.WithTimeFunc(s.clock.Now), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.TokenPayload{}, errs.ErrTokenExpired
		}
		return model.TokenPayload{}, fmt.Errorf("%w: %v", errs.ErrInvalidToken, err)
	}

	accountID, err := uuid.FromString(claims.Subject)
	if err != nil {
		return model.TokenPayload{}, fmt.Errorf("%w: bad subject", errs.ErrInvalidToken)
	}
	return model.TokenPayload{AccountID: accountID, Email: claims.Email}, nil
}

// Package services – TokenService
//
// This file implements personal API tokens. The raw token is generated once,
// returned to the caller and never stored; the database keeps only its
// SHA-256 digest plus a short display prefix. Validation is a digest lookup:
// malformed tokens are rejected without touching the database, concurrent
// lookups of the same digest are collapsed with singleflight, and the
// last-used timestamp is refreshed in the background without affecting the
// request.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/tbourn/go-status-backend/internal/domain"
	"github.com/tbourn/go-status-backend/internal/observability"
	"github.com/tbourn/go-status-backend/internal/repo"
	"github.com/tbourn/go-status-backend/internal/token"
)

// TokenRepo defines the repository contract required by TokenService.
type TokenRepo interface {
	CreateToken(ctx context.Context, db *gorm.DB, userID, name, tokenHash, prefix string) (*domain.UserToken, error)
	GetTokenByHash(ctx context.Context, db *gorm.DB, tokenHash string) (*domain.UserToken, error)
	TouchToken(ctx context.Context, db *gorm.DB, id string, at time.Time) error
	ListTokens(ctx context.Context, db *gorm.DB, userID string) ([]domain.UserToken, error)
	RevokeToken(ctx context.Context, db *gorm.DB, id, userID string) (bool, error)
}

// TokenService issues, lists, validates, and revokes API tokens.
type TokenService struct {
	DB   *gorm.DB
	Repo TokenRepo

	// TouchTimeout bounds the background last_used_at update.
	TouchTimeout time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time

	group singleflight.Group
}

// NewTokenService constructs a TokenService with default timeouts.
func NewTokenService(db *gorm.DB, r TokenRepo) *TokenService {
	return &TokenService{
		DB:           db,
		Repo:         r,
		TouchTimeout: 5 * time.Second,
		Now:          time.Now,
	}
}

// Create mints a token for owner and returns the stored row together with
// the raw secret. The raw value is only available here.
func (s *TokenService) Create(ctx context.Context, owner, name string) (*domain.UserToken, string, error) {
	name = normalizeName(name)
	if name == "" {
		return nil, "", ErrTokenNameRequired
	}
	if runeLen(name) > MaxTokenNameRunes {
		return nil, "", ErrTokenNameTooLong
	}

	raw, err := token.Generate()
	if err != nil {
		return nil, "", err
	}
	t, err := s.Repo.CreateToken(ctx, s.DB, owner, name, token.Hash(raw), token.DisplayPrefix(raw))
	if err != nil {
		return nil, "", err
	}
	return t, raw, nil
}

// List returns owner's tokens newest first. Secrets are never included.
func (s *TokenService) List(ctx context.Context, owner string) ([]domain.UserToken, error) {
	return s.Repo.ListTokens(ctx, s.DB, owner)
}

// Revoke revokes one of owner's active tokens. Unknown, foreign and already
// revoked tokens all yield ErrTokenNotFound.
func (s *TokenService) Revoke(ctx context.Context, owner, id string) error {
	ok, err := s.Repo.RevokeToken(ctx, s.DB, id, owner)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenNotFound
	}
	return nil
}

// Validate resolves a raw token to its owner. ok is false for malformed,
// unknown, and revoked tokens; err is only set for lookup failures.
func (s *TokenService) Validate(ctx context.Context, raw string) (owner string, ok bool, err error) {
	if !token.ValidFormat(raw) {
		observability.TokenValidations.WithLabelValues(observability.TokenMalformed).Inc()
		return "", false, nil
	}
	hash := token.Hash(raw)

	// The flight is shared by every concurrent caller presenting this token,
	// so one caller going away must not fail the lookup for the rest.
	lookupCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(hash, func() (any, error) {
		return s.Repo.GetTokenByHash(lookupCtx, s.DB, hash)
	})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			observability.TokenValidations.WithLabelValues(observability.TokenUnknown).Inc()
			return "", false, nil
		}
		observability.TokenValidations.WithLabelValues(observability.TokenError).Inc()
		return "", false, err
	}

	t := v.(*domain.UserToken)
	if !t.Active() {
		observability.TokenValidations.WithLabelValues(observability.TokenRevoked).Inc()
		return "", false, nil
	}

	observability.TokenValidations.WithLabelValues(observability.TokenValid).Inc()
	s.touch(t.ID)
	return t.UserID, true, nil
}

// touch records last use in the background. Failures are logged only.
func (s *TokenService) touch(id string) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	at := now()
	timeout := s.TouchTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.Repo.TouchToken(ctx, s.DB, id, at); err != nil {
			log.Warn().Err(err).Str("token_id", id).Msg("update token last_used_at failed")
		}
	}()
}

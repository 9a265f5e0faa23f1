// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for user API
// tokens. Only token digests are stored; callers hash before lookup.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-status-backend/internal/domain"
)

// CreateToken inserts a token row for userID. The ID is a random UUID and
// created_at is the current epoch second. A digest collision is reported as
// ErrDuplicate.
func CreateToken(ctx context.Context, db *gorm.DB, userID, name, tokenHash, prefix string) (*domain.UserToken, error) {
	t := &domain.UserToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		Prefix:    prefix,
		Name:      name,
		CreatedAt: time.Now().Unix(),
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return t, nil
}

// GetTokenByHash looks a token up by digest regardless of revocation state.
// Missing rows return ErrNotFound.
func GetTokenByHash(ctx context.Context, db *gorm.DB, tokenHash string) (*domain.UserToken, error) {
	var t domain.UserToken
	if err := db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// TouchToken sets last_used_at to at for the token with the given ID.
func TouchToken(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.UserToken{}).
		Where("id = ?", id).
		UpdateColumn("last_used_at", at.Unix()).Error
}

// ListTokens returns userID's tokens, newest first, revoked ones included.
func ListTokens(ctx context.Context, db *gorm.DB, userID string) ([]domain.UserToken, error) {
	out := []domain.UserToken{}
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&out).Error
	return out, err
}

// RevokeToken sets revoked_at on a token owned by userID that is not yet
// revoked. It reports whether a row changed; false covers "no such token",
// "not yours" and "already revoked" alike.
func RevokeToken(ctx context.Context, db *gorm.DB, id, userID string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.UserToken{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL", id, userID).
		UpdateColumn("revoked_at", time.Now().Unix())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// isUniqueViolation detects unique-constraint failures across drivers that
// may not map to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite: "UNIQUE constraint failed"; Postgres: "duplicate key value violates unique constraint".
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}

package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/widget-chat-backend/internal/domain"
)

// FindIdempotency returns a non-expired record or ErrNotFound.
func (s *GormStore) FindIdempotency(ctx context.Context, accountID, sessionID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND session_id = ? AND key = ? AND expires_at > ?", accountID, sessionID, key, domain.Normalize(now)).
		First(&rec).Error
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &rec, nil
}

// SaveIdempotency inserts rec and returns ErrDuplicate on unique violation.
// Expired rows for the same key are replaced.
func (s *GormStore) SaveIdempotency(ctx context.Context, rec *domain.Idempotency) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := domain.Now()
	rec.CreatedAt = now
	db := s.db.WithContext(ctx)
	if err := db.Where("account_id = ? AND session_id = ? AND key = ? AND expires_at <= ?", rec.AccountID, rec.SessionID, rec.Key, now).
		Delete(&domain.Idempotency{}).Error; err != nil {
		return fmt.Errorf("purge expired idempotency: %w", err)
	}
	if err := db.Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

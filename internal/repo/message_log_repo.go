package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/tbourn/widget-chat-backend/internal/domain"
)

// InsertMessageLog appends one audit row. ID and Timestamp are filled when empty.
func (s *GormStore) InsertMessageLog(ctx context.Context, l *domain.MessageLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = domain.Now()
	}
	return s.db.WithContext(ctx).Create(l).Error
}

// CountMessageLogs counts an account's log rows with Timestamp within r.
func (s *GormStore) CountMessageLogs(ctx context.Context, accountID string, r TimeRange) (int64, error) {
	var n int64
	q := s.db.WithContext(ctx).Model(&domain.MessageLog{}).Where("account_id = ?", accountID)
	err := applyRange(q, "timestamp", r).Count(&n).Error
	return n, err
}

// ListMessageLogs returns the account's most recent log rows, newest first.
func (s *GormStore) ListMessageLogs(ctx context.Context, accountID string, limit int) ([]domain.MessageLog, error) {
	_, limit = clampPage(0, limit)
	var out []domain.MessageLog
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("timestamp desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

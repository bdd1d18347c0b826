package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/tbourn/widget-chat-backend/internal/domain"
)

// CreateSubscriptionRecord inserts s. Returns ErrDuplicate when the external
// id is already recorded.
func (s *GormStore) CreateSubscriptionRecord(ctx context.Context, rec *domain.SubscriptionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := domain.Now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// FindSubscriptionByExternalID fetches a record by the processor's id.
func (s *GormStore) FindSubscriptionByExternalID(ctx context.Context, externalID string) (*domain.SubscriptionRecord, error) {
	var rec domain.SubscriptionRecord
	if err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateSubscriptionRecord saves every field of rec.
func (s *GormStore) UpdateSubscriptionRecord(ctx context.Context, rec *domain.SubscriptionRecord) error {
	rec.UpdatedAt = domain.Now()
	res := s.db.WithContext(ctx).Model(&domain.SubscriptionRecord{}).Where("id = ?", rec.ID).
		Select("*").Omit("id", "created_at").Updates(rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

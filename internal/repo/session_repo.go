package repo

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/widget-chat-backend/internal/domain"
)

// appendTries bounds optimistic append attempts.
const appendTries = 3

func orderedMessages(db *gorm.DB) *gorm.DB { return db.Order("seq asc") }

// FindActiveSession returns the active record for sessionID owned by
// accountID whose last activity is at or after since, with its messages.
func (s *GormStore) FindActiveSession(ctx context.Context, sessionID, accountID string, since time.Time) (*domain.ChatSession, error) {
	var sess domain.ChatSession
	err := s.db.WithContext(ctx).
		Preload("Messages", orderedMessages).
		Where("session_id = ? AND account_id = ? AND status = ? AND last_activity >= ?",
			sessionID, accountID, domain.SessionActive, since).
		First(&sess).Error
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// CreateSession retires stale active records with the same id and inserts
// sess, all in one transaction.
func (s *GormStore) CreateSession(ctx context.Context, sess *domain.ChatSession, staleBefore time.Time) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	now := domain.Now()
	if sess.StartTime.IsZero() {
		sess.StartTime = now
	}
	if sess.LastActivity.IsZero() {
		sess.LastActivity = sess.StartTime
	}
	sess.Status = domain.SessionActive
	sess.CreatedAt, sess.UpdatedAt = sess.StartTime, sess.StartTime
	sess.Version = 0

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.ChatSession{}).
			Where("session_id = ? AND status = ? AND last_activity < ?", sess.SessionID, domain.SessionActive, staleBefore).
			Updates(map[string]any{"status": domain.SessionTimeout, "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.Omit("Messages").Create(sess).Error
	})
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// AppendMessage appends one message to the active session described by p.
//
// Appends to one session are serialized in-process; across processes the
// version check rejects a stale writer, which is retried a bounded number of
// times before ErrWriteConflict surfaces.
func (s *GormStore) AppendMessage(ctx context.Context, p AppendParams) (*domain.SessionMessage, error) {
	unlock := s.locks.Lock(p.SessionID)
	defer unlock()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 50 * time.Millisecond

	msg, err := backoff.Retry(ctx, func() (*domain.SessionMessage, error) {
		m, err := s.tryAppend(ctx, p)
		if err != nil && !errors.Is(err, ErrWriteConflict) {
			return nil, backoff.Permanent(err)
		}
		return m, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(appendTries))
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *GormStore) appendOnce(ctx context.Context, p AppendParams) (*domain.SessionMessage, error) {
	var sess domain.ChatSession
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND account_id = ? AND status = ? AND last_activity >= ?",
			p.SessionID, p.AccountID, domain.SessionActive, p.Since).
		First(&sess).Error
	if err != nil {
		return nil, err
	}

	at := p.At
	if at.IsZero() {
		at = time.Now()
	}
	ts := domain.NextActivity(sess.LastActivity, at)
	msg := domain.SessionMessage{
		MessageID:  domain.NewMessageID(ts),
		SessionRef: sess.ID,
		Seq:        sess.Summary.TotalMessages,
		Role:       p.Role,
		Content:    p.Content,
		Timestamp:  ts,
		Metadata:   p.Metadata,
	}
	sum := sess.Summary
	sum.Add(msg)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The conditional update comes first so SQLite takes the write lock
		// before any read inside the transaction.
		res := tx.Model(&domain.ChatSession{}).
			Where("id = ? AND version = ?", sess.ID, sess.Version).
			Updates(map[string]any{
				"summary_total_messages":     sum.TotalMessages,
				"summary_user_messages":      sum.UserMessages,
				"summary_assistant_messages": sum.AssistantMessages,
				"summary_system_messages":    sum.SystemMessages,
				"summary_total_tokens":       sum.TotalTokens,
				"summary_total_cost":         sum.TotalCost,
				"last_activity":              ts,
				"updated_at":                 ts,
				"version":                    sess.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrWriteConflict
		}
		if err := tx.Create(&msg).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrWriteConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// FindSession returns the most recent record for sessionID owned by
// accountID regardless of status, with its messages.
func (s *GormStore) FindSession(ctx context.Context, sessionID, accountID string) (*domain.ChatSession, error) {
	var sess domain.ChatSession
	err := s.db.WithContext(ctx).
		Preload("Messages", orderedMessages).
		Where("session_id = ? AND account_id = ?", sessionID, accountID).
		Order("created_at desc").
		First(&sess).Error
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// EndSession marks the active record ended and records its duration in
// whole seconds.
func (s *GormStore) EndSession(ctx context.Context, sessionID, accountID string, at time.Time) (*domain.ChatSession, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	var sess domain.ChatSession
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND account_id = ? AND status = ?", sessionID, accountID, domain.SessionActive).
		First(&sess).Error
	if err != nil {
		return nil, err
	}
	end := domain.NextActivity(sess.LastActivity, at)
	dur := int64(end.Sub(sess.StartTime) / time.Second)
	res := s.db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ? AND status = ?", sess.ID, domain.SessionActive).
		Updates(map[string]any{
			"status":        domain.SessionEnded,
			"end_time":      end,
			"duration":      dur,
			"last_activity": end,
			"updated_at":    end,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.reload(ctx, sess.ID)
}

// RateSession stores a rating on the latest record for sessionID. A second
// rating returns ErrDuplicate.
func (s *GormStore) RateSession(ctx context.Context, sessionID, accountID string, rating domain.SessionRating) (*domain.ChatSession, error) {
	var sess domain.ChatSession
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND account_id = ?", sessionID, accountID).
		Order("created_at desc").
		First(&sess).Error
	if err != nil {
		return nil, err
	}
	ratedAt := domain.Now()
	if rating.RatedAt != nil {
		ratedAt = domain.Normalize(*rating.RatedAt)
	}
	res := s.db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ? AND rating_score = 0", sess.ID).
		Updates(map[string]any{
			"rating_score":    rating.Score,
			"rating_feedback": rating.Feedback,
			"rating_rated_at": ratedAt,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrDuplicate
	}
	return s.reload(ctx, sess.ID)
}

func (s *GormStore) reload(ctx context.Context, id string) (*domain.ChatSession, error) {
	var sess domain.ChatSession
	err := s.db.WithContext(ctx).
		Preload("Messages", orderedMessages).
		Where("id = ?", id).
		First(&sess).Error
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &sess, nil
}

// ExpireSessions marks active sessions idle before the cutoff as timeout
// and returns how many were changed.
func (s *GormStore) ExpireSessions(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("status = ? AND last_activity < ?", domain.SessionActive, before).
		Updates(map[string]any{"status": domain.SessionTimeout, "updated_at": domain.Now()})
	return res.RowsAffected, res.Error
}

// ListSessions returns a page of the account's sessions, newest first,
// without transcripts.
func (s *GormStore) ListSessions(ctx context.Context, accountID string, offset, limit int) ([]domain.ChatSession, error) {
	offset, limit = clampPage(offset, limit)
	var out []domain.ChatSession
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

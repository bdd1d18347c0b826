package domain

import "time"

// Idempotency records the reply produced for a chat turn, keyed by
// (account_id, session_id, key). A retried request with the same key gets the
// recorded reply back without re-running the turn.
type Idempotency struct {
	ID           string    `gorm:"type:char(36);primaryKey"`
	AccountID    string    `gorm:"type:char(36);not null;uniqueIndex:ux_account_session_key,priority:1"`
	SessionID    string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_account_session_key,priority:2"`
	Key          string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_account_session_key,priority:3"`
	ResponseText string    `gorm:"type:text;not null"`
	RespondedAt  time.Time `gorm:"not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	ExpiresAt    time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

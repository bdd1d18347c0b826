// Package repo implements the storage abstraction for accounts, chat
// sessions, message logs, subscriptions, and idempotency records.
//
// Two interchangeable backends satisfy Store:
//
//   - GormStore: durable, GORM over SQLite (pure Go) or Postgres.
//   - MemoryStore: process-lifetime fallback used when the durable backend
//     cannot be reached at startup.
//
// Both apply the same uniqueness rules (case-insensitive email, sparse API
// key, one active record per session id, unique external subscription id),
// the same active-session rule, and the same error sentinels, so callers
// never branch on the backend kind.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/widget-chat-backend/internal/domain"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = gorm.ErrRecordNotFound

	// ErrDuplicate is returned when a write would violate a uniqueness rule.
	ErrDuplicate = errors.New("duplicate")

	// ErrWriteConflict is returned when a session append lost its optimistic
	// check on every retry.
	ErrWriteConflict = errors.New("concurrent write conflict")

	// ErrStorageUnavailable is returned by Open when no backend could be
	// initialized.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Backend kinds reported by BackendStatus.
const (
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
	KindMemory   = "memory"
)

// BackendStatus describes the backend chosen at startup.
type BackendStatus struct {
	Kind     string `json:"kind"`
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`
}

// TimeRange bounds a query. A zero bound is open.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// AppendParams describes a message append to the active session identified
// by (SessionID, AccountID) with activity at or after Since.
type AppendParams struct {
	SessionID string
	AccountID string
	Since     time.Time
	Role      string
	Content   string
	Metadata  domain.MessageMetadata
	At        time.Time
}

// AccountStore persists accounts and their usage ledger.
type AccountStore interface {
	CreateAccount(ctx context.Context, a *domain.Account) error
	FindAccountByID(ctx context.Context, id string) (*domain.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindAccountByAPIKey(ctx context.Context, key string) (*domain.Account, error)
	// UpdateAccount writes profile, credential, subscription, and widget fields.
	// Usage counters are only changed by IncrementUsage and ResetMonthlyUsage.
	UpdateAccount(ctx context.Context, a *domain.Account) error
	ListAccounts(ctx context.Context, offset, limit int) ([]domain.Account, error)
	CountAccounts(ctx context.Context) (int64, error)
	// AccountTotals counts accounts and lifetime messages, overall and per plan.
	AccountTotals(ctx context.Context) (domain.AccountTotals, error)
	IncrementUsage(ctx context.Context, accountID string) error
	ResetMonthlyUsage(ctx context.Context, accountID string, at time.Time) error
}

// SessionStore persists chat sessions and their transcripts.
type SessionStore interface {
	FindActiveSession(ctx context.Context, sessionID, accountID string, since time.Time) (*domain.ChatSession, error)
	// CreateSession inserts s as the active record for s.SessionID. Active
	// records with the same id idle before staleBefore are marked timeout
	// first. Returns ErrDuplicate when another active record holds the id.
	CreateSession(ctx context.Context, s *domain.ChatSession, staleBefore time.Time) error
	AppendMessage(ctx context.Context, p AppendParams) (*domain.SessionMessage, error)
	FindSession(ctx context.Context, sessionID, accountID string) (*domain.ChatSession, error)
	EndSession(ctx context.Context, sessionID, accountID string, at time.Time) (*domain.ChatSession, error)
	// RateSession returns ErrDuplicate when the session is already rated.
	RateSession(ctx context.Context, sessionID, accountID string, rating domain.SessionRating) (*domain.ChatSession, error)
	ExpireSessions(ctx context.Context, before time.Time) (int64, error)
	ListSessions(ctx context.Context, accountID string, offset, limit int) ([]domain.ChatSession, error)
	SessionsStats(ctx context.Context, accountID string) (count int64, maxUpdatedAt *time.Time, err error)
	SessionAggregate(ctx context.Context, accountID string, r TimeRange) (domain.SessionAggregate, error)
}

// MessageLogStore persists the flat per-turn audit log.
type MessageLogStore interface {
	InsertMessageLog(ctx context.Context, l *domain.MessageLog) error
	CountMessageLogs(ctx context.Context, accountID string, r TimeRange) (int64, error)
	ListMessageLogs(ctx context.Context, accountID string, limit int) ([]domain.MessageLog, error)
}

// SubscriptionStore persists payment processor subscriptions.
type SubscriptionStore interface {
	CreateSubscriptionRecord(ctx context.Context, s *domain.SubscriptionRecord) error
	FindSubscriptionByExternalID(ctx context.Context, externalID string) (*domain.SubscriptionRecord, error)
	UpdateSubscriptionRecord(ctx context.Context, s *domain.SubscriptionRecord) error
	// SubscriptionTotals aggregates records whose status is active or trialing.
	SubscriptionTotals(ctx context.Context) (domain.SubscriptionTotals, error)
}

// IdempotencyStore records replies for retried chat turns.
type IdempotencyStore interface {
	FindIdempotency(ctx context.Context, accountID, sessionID, key string, now time.Time) (*domain.Idempotency, error)
	SaveIdempotency(ctx context.Context, rec *domain.Idempotency) error
}

// Store is the full storage abstraction.
type Store interface {
	AccountStore
	SessionStore
	MessageLogStore
	SubscriptionStore
	IdempotencyStore

	Backend() BackendStatus
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*GormStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// isUniqueViolation matches unique errors from gorm's translator and the
// plain-text errors glebarez/sqlite and pgx return.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value") ||
		strings.Contains(low, "sqlstate 23505")
}

func clampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}
	return offset, limit
}

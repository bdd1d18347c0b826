// Package services – SessionService
//
// SessionService owns the chat session lifecycle: lookup-or-create of the
// active record for a client session id, transcript appends, ending, rating,
// and listing. A session stays active while its last activity falls inside
// the retention window; older active records are replaced on the next create
// and swept in the background.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/widget-chat-backend/internal/domain"
	"github.com/tbourn/widget-chat-backend/internal/observability"
	"github.com/tbourn/widget-chat-backend/internal/repo"
	"github.com/tbourn/widget-chat-backend/internal/utils"
)

// DefaultRetention is the inactivity window of an active session.
const DefaultRetention = 24 * time.Hour

// SessionService implements session use-cases over a repo.SessionStore.
type SessionService struct {
	Store     repo.SessionStore
	Retention time.Duration
	Now       func() time.Time
}

// NewSessionService returns a SessionService. A zero retention means 24h.
func NewSessionService(st repo.SessionStore, retention time.Duration) *SessionService {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &SessionService{Store: st, Retention: retention, Now: time.Now}
}

func (s *SessionService) now() time.Time {
	if s.Now == nil {
		return domain.Now()
	}
	return domain.Normalize(s.Now())
}

// activeSince is the oldest last-activity an active session may have.
func (s *SessionService) activeSince() time.Time {
	return s.now().Add(-s.Retention)
}

// GetOrCreate returns the account's active session for sessionID, creating
// one with sc when none is live. A live session held by another account
// yields ErrSessionForbidden.
func (s *SessionService) GetOrCreate(ctx context.Context, sessionID, accountID string, sc domain.SessionContext) (*domain.ChatSession, error) {
	ctx, span := observability.Tracer("services/SessionService").Start(ctx, "GetOrCreate",
		trace.WithAttributes(attribute.String("session.id", sessionID), attribute.String("account.id", accountID)))
	defer span.End()

	sessionID = strings.TrimSpace(sessionID)
	if !domain.ValidSessionID(sessionID) {
		return nil, ErrInvalidSessionID
	}
	since := s.activeSince()

	sess, err := s.Store.FindActiveSession(ctx, sessionID, accountID, since)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	start := s.now()
	fresh := &domain.ChatSession{
		SessionID:    sessionID,
		AccountID:    accountID,
		StartTime:    start,
		LastActivity: start,
		Website:      sc.Website,
		Visitor:      sc.Visitor,
	}
	err = s.Store.CreateSession(ctx, fresh, since)
	if errors.Is(err, repo.ErrDuplicate) {
		// Either a concurrent create by this account won, or the id is
		// live under another account.
		if won, ferr := s.Store.FindActiveSession(ctx, sessionID, accountID, since); ferr == nil {
			return won, nil
		}
		return nil, ErrSessionForbidden
	}
	if err != nil {
		return nil, err
	}
	fresh.Messages = []domain.SessionMessage{}
	span.SetAttributes(attribute.Bool("session.created", true))
	return fresh, nil
}

// Append adds one message to the active session and returns it.
func (s *SessionService) Append(ctx context.Context, sessionID, accountID, role, content string, meta domain.MessageMetadata) (*domain.SessionMessage, error) {
	if !domain.ValidRole(role) {
		return nil, ErrInvalidRole
	}
	msg, err := s.Store.AppendMessage(ctx, repo.AppendParams{
		SessionID: sessionID,
		AccountID: accountID,
		Since:     s.activeSince(),
		Role:      role,
		Content:   content,
		Metadata:  meta,
		At:        s.now(),
	})
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return nil, ErrSessionNotFound
	case errors.Is(err, repo.ErrWriteConflict):
		return nil, ErrConcurrentWriteConflict
	case err != nil:
		return nil, err
	}
	return msg, nil
}

// Get returns the newest record for sessionID with its transcript.
func (s *SessionService) Get(ctx context.Context, sessionID, accountID string) (*domain.ChatSession, error) {
	sess, err := s.Store.FindSession(ctx, sessionID, accountID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// End marks the active session ended.
func (s *SessionService) End(ctx context.Context, sessionID, accountID string) (*domain.ChatSession, error) {
	sess, err := s.Store.EndSession(ctx, sessionID, accountID, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// Rate stores a one-time 1..5 rating on the session.
func (s *SessionService) Rate(ctx context.Context, sessionID, accountID string, score int, feedback string) (*domain.ChatSession, error) {
	if score < 1 || score > 5 {
		return nil, ErrInvalidRating
	}
	at := s.now()
	sess, err := s.Store.RateSession(ctx, sessionID, accountID, domain.SessionRating{
		Score:    score,
		Feedback: strings.TrimSpace(feedback),
		RatedAt:  &at,
	})
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return nil, ErrSessionNotFound
	case errors.Is(err, repo.ErrDuplicate):
		return nil, ErrAlreadyRated
	}
	return sess, err
}

// ListPage returns a page of the account's sessions and the total count.
func (s *SessionService) ListPage(ctx context.Context, accountID string, page, pageSize int) ([]domain.ChatSession, int64, error) {
	_, size, offset := utils.Page(page, pageSize)
	total, _, err := s.Store.SessionsStats(ctx, accountID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ChatSession{}, 0, nil
	}
	items, err := s.Store.ListSessions(ctx, accountID, offset, size)
	return items, total, err
}

// Stats returns the session count and latest update, used for ETags.
func (s *SessionService) Stats(ctx context.Context, accountID string) (int64, *time.Time, error) {
	return s.Store.SessionsStats(ctx, accountID)
}

// ExpireIdle marks active sessions idle past the retention window as timeout.
func (s *SessionService) ExpireIdle(ctx context.Context) (int64, error) {
	return s.Store.ExpireSessions(ctx, s.activeSince())
}

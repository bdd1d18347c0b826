package repo

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/widget-chat-backend/internal/domain"
)

func copySession(s *domain.ChatSession, withMessages bool) *domain.ChatSession {
	c := *s
	c.Messages = nil
	if withMessages {
		c.Messages = append([]domain.SessionMessage{}, s.Messages...)
	}
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	if s.Rating.RatedAt != nil {
		t := *s.Rating.RatedAt
		c.Rating.RatedAt = &t
	}
	return &c
}

// activeRecord returns the stored active record for sessionID if it is
// owned by accountID and has activity at or after since.
func (m *MemoryStore) activeRecord(sessionID, accountID string, since time.Time) (*domain.ChatSession, bool) {
	id, ok := m.active[sessionID]
	if !ok {
		return nil, false
	}
	s := m.sessions[id]
	if s.AccountID != accountID || !s.ActiveSince(since) {
		return nil, false
	}
	return s, true
}

// FindActiveSession returns a copy of the active record with its messages.
func (m *MemoryStore) FindActiveSession(_ context.Context, sessionID, accountID string, since time.Time) (*domain.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.activeRecord(sessionID, accountID, since)
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(s, true), nil
}

// CreateSession makes sess the active record for its session id. A stale
// holder of the slot is marked timeout; a live one yields ErrDuplicate.
func (m *MemoryStore) CreateSession(_ context.Context, sess *domain.ChatSession, staleBefore time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := domain.Now()
	if id, ok := m.active[sess.SessionID]; ok {
		cur := m.sessions[id]
		if !cur.LastActivity.Before(staleBefore) {
			return ErrDuplicate
		}
		cur.Status = domain.SessionTimeout
		cur.UpdatedAt = now
		delete(m.active, sess.SessionID)
	}

	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.StartTime.IsZero() {
		sess.StartTime = now
	}
	if sess.LastActivity.IsZero() {
		sess.LastActivity = sess.StartTime
	}
	sess.Status = domain.SessionActive
	sess.CreatedAt, sess.UpdatedAt = sess.StartTime, sess.StartTime
	sess.Version = 0
	sess.Messages = nil
	sess.Summary = domain.SessionSummary{}

	m.sessions[sess.ID] = copySession(sess, false)
	m.active[sess.SessionID] = sess.ID
	return nil
}

// AppendMessage appends to the active record and recomputes its summary
// from the full transcript. Appends to one session id are serialized by a
// per-id lock; the store mutex is held only to read the record and to swap
// in the new transcript, so other sessions are not held up by the copy.
func (m *MemoryStore) AppendMessage(_ context.Context, p AppendParams) (*domain.SessionMessage, error) {
	unlock := m.locks.Lock(p.SessionID)
	defer unlock()

	m.mu.RLock()
	s, ok := m.activeRecord(p.SessionID, p.AccountID, p.Since)
	if !ok {
		m.mu.RUnlock()
		return nil, ErrNotFound
	}
	id, last, version, prev := s.ID, s.LastActivity, s.Version, s.Messages
	m.mu.RUnlock()

	// prev's backing array is never written after publication; every
	// append installs a fresh slice.
	at := p.At
	if at.IsZero() {
		at = time.Now()
	}
	ts := domain.NextActivity(last, at)
	msg := domain.SessionMessage{
		MessageID:  domain.NewMessageID(ts),
		SessionRef: id,
		Seq:        len(prev),
		Role:       p.Role,
		Content:    p.Content,
		Timestamp:  ts,
		Metadata:   p.Metadata,
	}
	msgs := make([]domain.SessionMessage, len(prev), len(prev)+1)
	copy(msgs, prev)
	msgs = append(msgs, msg)
	sum := domain.Summarize(msgs)

	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[id]
	if !ok || m.active[p.SessionID] != id || !cur.ActiveSince(p.Since) {
		return nil, ErrNotFound
	}
	if cur.Version != version {
		return nil, ErrWriteConflict
	}
	cur.Messages = msgs
	cur.Summary = sum
	cur.LastActivity = ts
	cur.UpdatedAt = ts
	cur.Version++
	return &msg, nil
}

// latestRecord returns the newest record for sessionID owned by accountID.
func (m *MemoryStore) latestRecord(sessionID, accountID string) (*domain.ChatSession, bool) {
	if id, ok := m.active[sessionID]; ok {
		if s := m.sessions[id]; s.AccountID == accountID {
			return s, true
		}
	}
	var best *domain.ChatSession
	for _, s := range m.sessions {
		if s.SessionID != sessionID || s.AccountID != accountID {
			continue
		}
		if best == nil || s.CreatedAt.After(best.CreatedAt) {
			best = s
		}
	}
	return best, best != nil
}

// FindSession returns the newest record for sessionID regardless of status.
func (m *MemoryStore) FindSession(_ context.Context, sessionID, accountID string) (*domain.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.latestRecord(sessionID, accountID)
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(s, true), nil
}

// EndSession marks the active record ended and records its duration.
func (m *MemoryStore) EndSession(_ context.Context, sessionID, accountID string, at time.Time) (*domain.ChatSession, error) {
	unlock := m.locks.Lock(sessionID)
	defer unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.active[sessionID]
	if !ok || m.sessions[id].AccountID != accountID {
		return nil, ErrNotFound
	}
	s := m.sessions[id]
	end := domain.NextActivity(s.LastActivity, at)
	s.Status = domain.SessionEnded
	s.EndTime = &end
	s.Duration = int64(end.Sub(s.StartTime) / time.Second)
	s.LastActivity = end
	s.UpdatedAt = end
	delete(m.active, sessionID)
	return copySession(s, true), nil
}

// RateSession stores a rating once on the newest record for sessionID.
func (m *MemoryStore) RateSession(_ context.Context, sessionID, accountID string, rating domain.SessionRating) (*domain.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.latestRecord(sessionID, accountID)
	if !ok {
		return nil, ErrNotFound
	}
	if s.Rating.Rated() {
		return nil, ErrDuplicate
	}
	ratedAt := domain.Now()
	if rating.RatedAt != nil {
		ratedAt = domain.Normalize(*rating.RatedAt)
	}
	s.Rating = domain.SessionRating{Score: rating.Score, Feedback: rating.Feedback, RatedAt: &ratedAt}
	return copySession(s, true), nil
}

// ExpireSessions marks active records idle before the cutoff as timeout
// and frees their session ids.
func (m *MemoryStore) ExpireSessions(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := domain.Now()
	for sid, id := range m.active {
		s := m.sessions[id]
		if s.LastActivity.Before(before) {
			s.Status = domain.SessionTimeout
			s.UpdatedAt = now
			delete(m.active, sid)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) accountSessions(accountID string) []*domain.ChatSession {
	var out []*domain.ChatSession
	for _, s := range m.sessions {
		if s.AccountID == accountID {
			out = append(out, s)
		}
	}
	return out
}

// ListSessions returns a page of the account's sessions, newest first,
// without transcripts.
func (m *MemoryStore) ListSessions(_ context.Context, accountID string, offset, limit int) ([]domain.ChatSession, error) {
	offset, limit = clampPage(offset, limit)
	m.mu.RLock()
	recs := m.accountSessions(accountID)
	all := make([]domain.ChatSession, 0, len(recs))
	for _, s := range recs {
		all = append(all, *copySession(s, false))
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, offset, limit), nil
}

// SessionsStats returns the session count and greatest UpdatedAt.
func (m *MemoryStore) SessionsStats(_ context.Context, accountID string) (int64, *time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.accountSessions(accountID)
	if len(recs) == 0 {
		return 0, nil, nil
	}
	var latest time.Time
	for _, s := range recs {
		if s.UpdatedAt.After(latest) {
			latest = s.UpdatedAt
		}
	}
	return int64(len(recs)), &latest, nil
}

// SessionAggregate sums session counters over sessions created within r.
func (m *MemoryStore) SessionAggregate(_ context.Context, accountID string, r TimeRange) (domain.SessionAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var agg domain.SessionAggregate
	for _, s := range m.accountSessions(accountID) {
		if !inRange(s.CreatedAt, r) {
			continue
		}
		agg.Sessions++
		agg.Messages += int64(s.Summary.TotalMessages)
		agg.UserMessages += int64(s.Summary.UserMessages)
		agg.AssistantMessages += int64(s.Summary.AssistantMessages)
		agg.Tokens += int64(s.Summary.TotalTokens)
		agg.Cost += s.Summary.TotalCost
		if s.Status == domain.SessionEnded {
			agg.DurationSum += float64(s.Duration)
			agg.EndedSessions++
		}
		if s.Rating.Rated() {
			agg.RatingSum += float64(s.Rating.Score)
			agg.RatedSessions++
		}
	}
	return agg, nil
}

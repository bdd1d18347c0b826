package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Session statuses.
const (
	SessionActive  = "active"
	SessionEnded   = "ended"
	SessionTimeout = "timeout"
)

// MaxSessionIDLen bounds the client-supplied session identifier.
const MaxSessionIDLen = 128

// WebsiteInfo describes where the widget is embedded.
type WebsiteInfo struct {
	Domain string `json:"domain,omitempty" gorm:"type:varchar(255)"`
	Page   string `json:"page,omitempty"   gorm:"type:varchar(1024)"`
	Title  string `json:"title,omitempty"  gorm:"type:varchar(255)"`
}

// VisitorInfo describes the end user chatting through the widget.
type VisitorInfo struct {
	Fingerprint string `json:"fingerprint,omitempty" gorm:"type:varchar(128)"`
	IPAddress   string `json:"ip_address,omitempty"  gorm:"type:varchar(64)"`
	UserAgent   string `json:"user_agent,omitempty"  gorm:"type:varchar(512)"`
	Country     string `json:"country,omitempty"     gorm:"type:varchar(64)"`
	City        string `json:"city,omitempty"        gorm:"type:varchar(128)"`
}

// TokenUsage is the provider-reported token count for one completion.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// MessageMetadata is attached to assistant messages. Error is set when the
// content is the fallback reply.
type MessageMetadata struct {
	ResponseTimeMs int64      `json:"response_time_ms,omitempty"`
	Model          string     `json:"model,omitempty"  gorm:"type:varchar(64)"`
	Tokens         TokenUsage `json:"tokens"           gorm:"embedded;embeddedPrefix:tokens_"`
	Cost           float64    `json:"cost,omitempty"`
	Error          string     `json:"error,omitempty"  gorm:"type:varchar(64)"`
}

// SessionMessage is one entry of a session's transcript. Seq is the
// zero-based position in the session and is unique per session.
type SessionMessage struct {
	MessageID  string          `json:"message_id" gorm:"type:varchar(64);primaryKey"`
	SessionRef string          `json:"-"          gorm:"type:char(36);not null;uniqueIndex:ux_session_seq,priority:1"`
	Seq        int             `json:"seq"        gorm:"not null;uniqueIndex:ux_session_seq,priority:2"`
	Role       string          `json:"role"       gorm:"type:varchar(16);not null;check:role IN ('user','assistant','system')"`
	Content    string          `json:"content"    gorm:"type:text;not null"`
	Timestamp  time.Time       `json:"timestamp"  gorm:"not null"`
	Metadata   MessageMetadata `json:"metadata"   gorm:"embedded;embeddedPrefix:meta_"`
}

// TableName returns the database table name for SessionMessage.
func (SessionMessage) TableName() string { return "session_messages" }

// SessionSummary holds counters derived from a session's messages.
// TotalMessages always equals the number of messages and the per-role
// counters add up to it.
type SessionSummary struct {
	TotalMessages     int     `json:"total_messages"     gorm:"not null;default:0"`
	UserMessages      int     `json:"user_messages"      gorm:"not null;default:0"`
	AssistantMessages int     `json:"assistant_messages" gorm:"not null;default:0"`
	SystemMessages    int     `json:"system_messages"    gorm:"not null;default:0"`
	TotalTokens       int     `json:"total_tokens"       gorm:"not null;default:0"`
	TotalCost         float64 `json:"total_cost"         gorm:"not null;default:0"`
}

// Add folds one message into the summary.
func (s *SessionSummary) Add(m SessionMessage) {
	s.TotalMessages++
	switch m.Role {
	case RoleUser:
		s.UserMessages++
	case RoleAssistant:
		s.AssistantMessages++
	case RoleSystem:
		s.SystemMessages++
	}
	s.TotalTokens += m.Metadata.Tokens.Total
	s.TotalCost += m.Metadata.Cost
}

// Summarize recomputes a summary from scratch.
func Summarize(msgs []SessionMessage) SessionSummary {
	var s SessionSummary
	for _, m := range msgs {
		s.Add(m)
	}
	return s
}

// SessionRating is the visitor's one-time rating. Score 0 means unrated.
type SessionRating struct {
	Score    int        `json:"score,omitempty"    gorm:"not null;default:0"`
	Feedback string     `json:"feedback,omitempty" gorm:"type:text"`
	RatedAt  *time.Time `json:"rated_at,omitempty"`
}

// Rated reports whether a score has been recorded.
func (r SessionRating) Rated() bool { return r.Score > 0 }

// ChatSession is one widget conversation.
//
// SessionID is the client-visible identifier. Only one record per SessionID
// may be active at a time; ended and timed-out records stay for history.
// Version increments on every message append and backs optimistic writes.
type ChatSession struct {
	ID           string           `json:"-"              gorm:"type:char(36);primaryKey"`
	SessionID    string           `json:"session_id"     gorm:"type:varchar(128);not null;index:idx_sessions_session_id;uniqueIndex:ux_sessions_active,where:status = 'active'"`
	AccountID    string           `json:"account_id"     gorm:"type:char(36);not null;index:idx_account_sessions,priority:1"`
	Website      WebsiteInfo      `json:"website"        gorm:"embedded;embeddedPrefix:website_"`
	Visitor      VisitorInfo      `json:"visitor"        gorm:"embedded;embeddedPrefix:visitor_"`
	Messages     []SessionMessage `json:"messages"       gorm:"foreignKey:SessionRef;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Summary      SessionSummary   `json:"summary"        gorm:"embedded;embeddedPrefix:summary_"`
	Status       string           `json:"status"         gorm:"type:varchar(16);not null;default:'active';check:status IN ('active','ended','timeout')"`
	StartTime    time.Time        `json:"start_time"     gorm:"not null"`
	EndTime      *time.Time       `json:"end_time,omitempty"`
	Duration     int64            `json:"duration"       gorm:"not null;default:0"`
	Rating       SessionRating    `json:"rating"         gorm:"embedded;embeddedPrefix:rating_"`
	LastActivity time.Time        `json:"last_activity"  gorm:"not null;index"`
	Version      int              `json:"-"              gorm:"not null;default:0"`
	CreatedAt    time.Time        `json:"created_at"     gorm:"index:idx_account_sessions,priority:2"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// ActiveSince reports whether the session is active with activity at or
// after since.
func (s *ChatSession) ActiveSince(since time.Time) bool {
	return s.Status == SessionActive && !s.LastActivity.Before(since)
}

// SessionContext is the request context recorded when a session is created.
type SessionContext struct {
	Website WebsiteInfo
	Visitor VisitorInfo
}

// ValidRole reports whether r is one of the message roles.
func ValidRole(r string) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ValidSessionID reports whether id is an acceptable client session id.
func ValidSessionID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && len(id) <= MaxSessionIDLen
}

// NewMessageID returns "msg_<12 hex>_<unix millis>".
func NewMessageID(now time.Time) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("msg_%s_%d", hex[:12], now.UnixMilli())
}

// Now returns the current time in the precision both backends persist.
func Now() time.Time { return Normalize(time.Now()) }

// Normalize converts t to UTC at microsecond precision.
func Normalize(t time.Time) time.Time { return t.UTC().Truncate(time.Microsecond) }

// NextActivity returns a timestamp strictly after prev, preferring now.
func NextActivity(prev, now time.Time) time.Time {
	now = Normalize(now)
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}

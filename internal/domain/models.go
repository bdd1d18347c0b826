// Package domain defines the persistence models for accounts, chat sessions,
// message logs, and subscriptions. These types are mapped with GORM and are
// shared unchanged by the durable and in-memory storage backends.
package domain

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Subscription is the billing state embedded in an Account.
type Subscription struct {
	Plan               string    `json:"plan"                   gorm:"type:varchar(32);not null;default:'free'"`
	Status             string    `json:"status"                 gorm:"type:varchar(32);not null;default:'active'"`
	CustomerID         string    `json:"customer_id,omitempty"  gorm:"type:varchar(128)"`
	ExternalID         string    `json:"subscription_id,omitempty" gorm:"type:varchar(128);index"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
	CancelAtPeriodEnd  bool      `json:"cancel_at_period_end"   gorm:"not null;default:false"`
}

// Usage is the message ledger embedded in an Account.
//
// MessagesThisMonth is reset by an explicit monthly reset; TotalMessages only
// ever grows.
type Usage struct {
	MessagesThisMonth int       `json:"messages_this_month" gorm:"not null;default:0"`
	TotalMessages     int64     `json:"total_messages"      gorm:"not null;default:0"`
	LastResetDate     time.Time `json:"last_reset_date"`
}

// Account is a site owner using the widget.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Email: unique, stored lower-cased.
//   - APIKey: unique when present; nil is allowed for many rows.
//   - Subscription / Usage / Widget: embedded columns prefixed subscription_,
//     usage_ and widget_.
//
// Accounts are never hard-deleted.
type Account struct {
	ID           string       `json:"id"                gorm:"type:char(36);primaryKey"`
	Name         string       `json:"name"              gorm:"type:varchar(100);not null"`
	Email        string       `json:"email"             gorm:"type:varchar(255);not null;uniqueIndex:ux_accounts_email"`
	PasswordHash string       `json:"-"                 gorm:"type:varchar(255);not null"`
	APIKey       *string      `json:"api_key,omitempty" gorm:"type:varchar(80);uniqueIndex:ux_accounts_api_key"`
	Company      string       `json:"company,omitempty" gorm:"type:varchar(255)"`
	Website      string       `json:"website,omitempty" gorm:"type:varchar(255)"`
	Subscription Subscription `json:"subscription"      gorm:"embedded;embeddedPrefix:subscription_"`
	Usage        Usage        `json:"usage"             gorm:"embedded;embeddedPrefix:usage_"`
	Widget       WidgetConfig `json:"widget_config"     gorm:"embedded;embeddedPrefix:widget_"`
	LastLoginAt  *time.Time   `json:"last_login_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"        gorm:"index"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// TableName returns the database table name for Account.
func (Account) TableName() string { return "accounts" }

// Key returns the API key or "" when the account has none.
func (a *Account) Key() string {
	if a.APIKey == nil {
		return ""
	}
	return *a.APIKey
}

var emailFold = cases.Lower(language.Und)

// NormalizeEmail trims and lower-cases an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return emailFold.String(strings.TrimSpace(email))
}

// MessageLog is the flat per-turn audit row. Rows are never mutated.
type MessageLog struct {
	ID             string    `json:"id"               gorm:"type:char(36);primaryKey"`
	AccountID      string    `json:"account_id"       gorm:"type:char(36);not null;index:idx_account_logs,priority:1"`
	SessionID      string    `json:"session_id"       gorm:"type:varchar(128);not null;index"`
	Website        string    `json:"website,omitempty" gorm:"type:varchar(255)"`
	UserMessage    string    `json:"user_message"     gorm:"type:text;not null"`
	AIResponse     string    `json:"ai_response"      gorm:"type:text;not null"`
	ResponseTimeMs int64     `json:"response_time_ms" gorm:"not null;default:0"`
	Timestamp      time.Time `json:"timestamp"        gorm:"not null;index:idx_account_logs,priority:2"`
	UserAgent      string    `json:"user_agent,omitempty" gorm:"type:varchar(512)"`
	IPAddress      string    `json:"ip_address,omitempty" gorm:"type:varchar(64)"`
	Country        string    `json:"country,omitempty" gorm:"type:varchar(64)"`
	City           string    `json:"city,omitempty"   gorm:"type:varchar(128)"`
	Error          string    `json:"error,omitempty"  gorm:"type:varchar(64)"`
}

// TableName returns the database table name for MessageLog.
func (MessageLog) TableName() string { return "message_logs" }

// SubscriptionRecord mirrors a subscription held at the payment processor.
type SubscriptionRecord struct {
	ID                 string     `json:"id"                   gorm:"type:char(36);primaryKey"`
	AccountID          string     `json:"account_id"           gorm:"type:char(36);not null;index"`
	ExternalID         string     `json:"subscription_id"      gorm:"type:varchar(128);not null;uniqueIndex:ux_subscriptions_external"`
	PriceID            string     `json:"price_id"             gorm:"type:varchar(128)"`
	Plan               string     `json:"plan"                 gorm:"type:varchar(32);not null"`
	Interval           string     `json:"interval"             gorm:"type:varchar(16);not null;default:'month'"`
	Status             string     `json:"status"               gorm:"type:varchar(32);not null"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end" gorm:"not null;default:false"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`
	Amount             int64      `json:"amount"`
	Currency           string     `json:"currency"             gorm:"type:varchar(8);default:'usd'"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName returns the database table name for SubscriptionRecord.
func (SubscriptionRecord) TableName() string { return "subscriptions" }

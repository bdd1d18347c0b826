package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/widget-chat-backend/internal/domain"
)

// GormStore is the durable Store backed by GORM.
//
// Error semantics:
//   - Missing rows return ErrNotFound (gorm.ErrRecordNotFound).
//   - Unique violations return ErrDuplicate.
//   - Other DB errors are propagated unchanged.
type GormStore struct {
	db    *gorm.DB
	kind  string
	locks *keyLock

	// tryAppend is one optimistic append attempt; tests replace it.
	tryAppend func(context.Context, AppendParams) (*domain.SessionMessage, error)
}

// NewGormStore wraps an opened and migrated *gorm.DB.
func NewGormStore(db *gorm.DB, kind string) *GormStore {
	s := &GormStore{db: db, kind: kind, locks: newKeyLock()}
	s.tryAppend = s.appendOnce
	return s
}

// DB exposes the underlying handle for tests and maintenance tasks.
func (s *GormStore) DB() *gorm.DB { return s.db }

// Backend reports the durable kind; GormStore is never degraded.
func (s *GormStore) Backend() BackendStatus { return BackendStatus{Kind: s.kind} }

// Ping checks connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateAccount inserts a with a generated ID (when empty) and a normalized
// email. Returns ErrDuplicate when the email or API key is taken.
func (s *GormStore) CreateAccount(ctx context.Context, a *domain.Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Email = domain.NormalizeEmail(a.Email)
	now := domain.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *GormStore) findAccount(ctx context.Context, where string, arg any) (*domain.Account, error) {
	var a domain.Account
	if err := s.db.WithContext(ctx).Where(where, arg).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// FindAccountByID fetches an account by primary key.
func (s *GormStore) FindAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	return s.findAccount(ctx, "id = ?", id)
}

// FindAccountByEmail matches emails case-insensitively.
func (s *GormStore) FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return s.findAccount(ctx, "email = ?", domain.NormalizeEmail(email))
}

// FindAccountByAPIKey fetches the account owning key. An empty key never matches.
func (s *GormStore) FindAccountByAPIKey(ctx context.Context, key string) (*domain.Account, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	return s.findAccount(ctx, "api_key = ?", key)
}

// UpdateAccount writes profile, credential, subscription and widget fields.
// Usage counters are left alone.
func (s *GormStore) UpdateAccount(ctx context.Context, a *domain.Account) error {
	a.UpdatedAt = domain.Now()
	sub, w := a.Subscription, a.Widget
	res := s.db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", a.ID).
		Updates(map[string]any{
			"name":                              a.Name,
			"email":                             domain.NormalizeEmail(a.Email),
			"password_hash":                     a.PasswordHash,
			"api_key":                           a.APIKey,
			"company":                           a.Company,
			"website":                           a.Website,
			"last_login_at":                     a.LastLoginAt,
			"updated_at":                        a.UpdatedAt,
			"subscription_plan":                 sub.Plan,
			"subscription_status":               sub.Status,
			"subscription_customer_id":          sub.CustomerID,
			"subscription_external_id":          sub.ExternalID,
			"subscription_current_period_start": sub.CurrentPeriodStart,
			"subscription_current_period_end":   sub.CurrentPeriodEnd,
			"subscription_cancel_at_period_end": sub.CancelAtPeriodEnd,
			"widget_primary_color":              w.PrimaryColor,
			"widget_position":                   w.Position,
			"widget_title":                      w.Title,
			"widget_subtitle":                   w.Subtitle,
			"widget_welcome_message":            w.WelcomeMessage,
			"widget_placeholder":                w.Placeholder,
			"widget_branding":                   w.Branding,
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAccounts returns accounts newest first.
func (s *GormStore) ListAccounts(ctx context.Context, offset, limit int) ([]domain.Account, error) {
	offset, limit = clampPage(offset, limit)
	var out []domain.Account
	err := s.db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountAccounts returns the number of accounts.
func (s *GormStore) CountAccounts(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.Account{}).Count(&n).Error
	return n, err
}

// IncrementUsage adds one message to both usage counters in a single
// statement, so concurrent increments are never lost.
func (s *GormStore) IncrementUsage(ctx context.Context, accountID string) error {
	res := s.db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]any{
			"usage_messages_this_month": gorm.Expr("usage_messages_this_month + 1"),
			"usage_total_messages":      gorm.Expr("usage_total_messages + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetMonthlyUsage zeroes the monthly counter and stamps the reset date.
func (s *GormStore) ResetMonthlyUsage(ctx context.Context, accountID string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]any{
			"usage_messages_this_month": 0,
			"usage_last_reset_date":     domain.Normalize(at),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

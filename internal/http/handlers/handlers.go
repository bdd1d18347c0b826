package handlers

import (
	"context"
	"time"

	"github.com/tbourn/widget-chat-backend/internal/billing"
	"github.com/tbourn/widget-chat-backend/internal/domain"
	"github.com/tbourn/widget-chat-backend/internal/repo"
	"github.com/tbourn/widget-chat-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// TurnSubmitter runs one widget chat turn.
type TurnSubmitter interface {
	SubmitTurn(ctx context.Context, a *domain.Account, req services.TurnRequest) (*services.TurnResult, error)
}

// AccountManager covers registration, login, API keys, and admin changes.
type AccountManager interface {
	Signup(ctx context.Context, in services.SignupInput) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	Profile(ctx context.Context, accountID string) (*domain.Account, error)
	RegenerateAPIKey(ctx context.Context, accountID string) (string, error)
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Account, int64, error)
	SetPlan(ctx context.Context, accountID, plan string) (*domain.Account, error)
	WidgetConfig(ctx context.Context, key string) (domain.WidgetConfig, error)
	UpdateWidgetConfig(ctx context.Context, accountID string, p domain.WidgetConfigPatch) (domain.WidgetConfig, error)
}

// SessionManager reads and closes an account's chat sessions.
type SessionManager interface {
	Get(ctx context.Context, sessionID, accountID string) (*domain.ChatSession, error)
	End(ctx context.Context, sessionID, accountID string) (*domain.ChatSession, error)
	Rate(ctx context.Context, sessionID, accountID string, score int, feedback string) (*domain.ChatSession, error)
	ListPage(ctx context.Context, accountID string, page, pageSize int) ([]domain.ChatSession, int64, error)
	Stats(ctx context.Context, accountID string) (int64, *time.Time, error)
}

// UsageReporter exposes the usage ledger.
type UsageReporter interface {
	Report(ctx context.Context, accountID string) (*services.UsageReport, error)
	ResetMonthly(ctx context.Context, accountID string) error
}

// AnalyticsReader serves dashboard aggregates and the message log.
type AnalyticsReader interface {
	GetAnalytics(ctx context.Context, accountID string, r repo.TimeRange) (*domain.Analytics, error)
	RecentLogs(ctx context.Context, accountID string, limit int) ([]domain.MessageLog, error)
}

// BillingManager handles subscriptions and processor webhooks.
type BillingManager interface {
	Subscribe(ctx context.Context, accountID, plan, paymentMethodID string) (*services.SubscriptionView, error)
	Cancel(ctx context.Context, accountID string) (*services.SubscriptionView, error)
	Reactivate(ctx context.Context, accountID string) (*services.SubscriptionView, error)
	Current(ctx context.Context, accountID string) (*services.SubscriptionView, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*billing.Event, error)
	Plans() []services.PlanView
}

// AdminReporter serves operator-wide reports.
type AdminReporter interface {
	Dashboard(ctx context.Context) (*services.Dashboard, error)
	SubscriptionReport(ctx context.Context) (*domain.SubscriptionTotals, error)
}

// HealthChecker reports the storage backend state.
type HealthChecker interface {
	Backend() repo.BackendStatus
	Ping(ctx context.Context) error
}

//
// Handler wiring
//

// Deps are the services the handlers call.
type Deps struct {
	Turns     TurnSubmitter
	Accounts  AccountManager
	Sessions  SessionManager
	Usage     UsageReporter
	Analytics AnalyticsReader
	Billing   BillingManager
	Admin     AdminReporter
	Health    HealthChecker
}

// Handlers groups the HTTP endpoints. It depends on service interfaces to
// keep transport concerns separate from business logic.
type Handlers struct {
	turns     TurnSubmitter
	accounts  AccountManager
	sessions  SessionManager
	usage     UsageReporter
	analytics AnalyticsReader
	billing   BillingManager
	admin     AdminReporter
	health    HealthChecker
}

// New constructs Handlers bound to d.
func New(d Deps) *Handlers {
	return &Handlers{
		turns:     d.Turns,
		accounts:  d.Accounts,
		sessions:  d.Sessions,
		usage:     d.Usage,
		analytics: d.Analytics,
		billing:   d.Billing,
		admin:     d.Admin,
		health:    d.Health,
	}
}

// Compile-time checks that the services satisfy the handler contracts.
var (
	_ TurnSubmitter   = (*services.TurnService)(nil)
	_ AccountManager  = (*services.AccountService)(nil)
	_ SessionManager  = (*services.SessionService)(nil)
	_ UsageReporter   = (*services.UsageService)(nil)
	_ AnalyticsReader = (*services.AnalyticsService)(nil)
	_ BillingManager  = (*services.BillingService)(nil)
	_ AdminReporter   = (*services.AdminService)(nil)
	_ HealthChecker   = (repo.Store)(nil)
)

package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tbourn/widget-chat-backend/internal/config"
	"github.com/tbourn/widget-chat-backend/internal/domain"
	"github.com/tbourn/widget-chat-backend/internal/repo"
)

// RecentAccounts is how many newest accounts the dashboard lists.
const RecentAccounts = 5

// AccountSummary is the operator view of an account, without credentials.
type AccountSummary struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Plan        string     `json:"plan"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// DashboardStats are operator-wide account counters.
type DashboardStats struct {
	TotalAccounts             int64   `json:"total_accounts"`
	FreeAccounts              int64   `json:"free_accounts"`
	PaidAccounts              int64   `json:"paid_accounts"`
	TotalMessages             int64   `json:"total_messages"`
	AverageMessagesPerAccount float64 `json:"average_messages_per_account"`
}

// Dashboard is the operator overview.
type Dashboard struct {
	Stats            DashboardStats            `json:"stats"`
	PlanDistribution []domain.PlanCount        `json:"plan_distribution"`
	Subscriptions    domain.SubscriptionTotals `json:"subscriptions"`
	RecentAccounts   []AccountSummary          `json:"recent_accounts"`
}

// AdminService computes operator-wide reports.
type AdminService struct {
	Accounts repo.AccountStore
	Subs     repo.SubscriptionStore
}

// Dashboard gathers account totals, subscription revenue and the newest
// accounts concurrently.
func (s *AdminService) Dashboard(ctx context.Context) (*Dashboard, error) {
	var (
		totals domain.AccountTotals
		subs   domain.SubscriptionTotals
		recent []domain.Account
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totals, err = s.Accounts.AccountTotals(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		subs, err = s.Subs.SubscriptionTotals(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = s.Accounts.ListAccounts(gctx, 0, RecentAccounts)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d := &Dashboard{
		PlanDistribution: totals.ByPlan,
		Subscriptions:    subs,
		RecentAccounts:   make([]AccountSummary, 0, len(recent)),
	}
	d.Stats.TotalAccounts = totals.Accounts
	d.Stats.TotalMessages = totals.TotalMessages
	for _, pc := range totals.ByPlan {
		if p, _ := config.NormalizePlan(pc.Plan); p == config.PlanFree {
			d.Stats.FreeAccounts += pc.Count
		}
	}
	d.Stats.PaidAccounts = totals.Accounts - d.Stats.FreeAccounts
	d.Stats.AverageMessagesPerAccount = avg(float64(totals.TotalMessages), totals.Accounts)

	for _, a := range recent {
		d.RecentAccounts = append(d.RecentAccounts, summarize(a))
	}
	return d, nil
}

// SubscriptionReport returns the billable subscription aggregate.
func (s *AdminService) SubscriptionReport(ctx context.Context) (*domain.SubscriptionTotals, error) {
	t, err := s.Subs.SubscriptionTotals(ctx)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func summarize(a domain.Account) AccountSummary {
	return AccountSummary{
		ID:          a.ID,
		Name:        a.Name,
		Email:       a.Email,
		Plan:        a.Subscription.Plan,
		CreatedAt:   a.CreatedAt,
		LastLoginAt: a.LastLoginAt,
	}
}

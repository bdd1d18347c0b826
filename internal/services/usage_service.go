package services

import (
	"context"
	"errors"
	"time"

	"github.com/tbourn/widget-chat-backend/internal/config"
	"github.com/tbourn/widget-chat-backend/internal/domain"
	"github.com/tbourn/widget-chat-backend/internal/repo"
)

// UsageReport is an account's ledger next to its plan allowance. Limit and
// Remaining are -1 for unlimited plans.
type UsageReport struct {
	Usage     domain.Usage `json:"usage"`
	Plan      string       `json:"plan"`
	Limit     int          `json:"limit"`
	Remaining int          `json:"remaining"`
	Unlimited bool         `json:"unlimited"`
}

// UsageService is the usage ledger.
type UsageService struct {
	Accounts repo.AccountStore
	Now      func() time.Time
}

func (s *UsageService) now() time.Time {
	if s.Now == nil {
		return domain.Now()
	}
	return domain.Normalize(s.Now())
}

// Increment records one accepted message for the account.
func (s *UsageService) Increment(ctx context.Context, accountID string) error {
	if err := s.Accounts.IncrementUsage(ctx, accountID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	return nil
}

// ResetMonthly zeroes the monthly counter and stamps the reset date.
func (s *UsageService) ResetMonthly(ctx context.Context, accountID string) error {
	if err := s.Accounts.ResetMonthlyUsage(ctx, accountID, s.now()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	return nil
}

// Report returns the account's usage and plan limits.
func (s *UsageService) Report(ctx context.Context, accountID string) (*UsageReport, error) {
	a, err := s.Accounts.FindAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return reportFor(a), nil
}

func reportFor(a *domain.Account) *UsageReport {
	plan, ok := config.NormalizePlan(a.Subscription.Plan)
	if !ok {
		plan = config.PlanFree
	}
	lim := config.GetPlanLimits(plan)
	r := &UsageReport{
		Usage:     a.Usage,
		Plan:      plan,
		Limit:     lim.MonthlyMessages,
		Remaining: lim.Remaining(a.Usage.MessagesThisMonth),
		Unlimited: lim.Unlimited,
	}
	if lim.Unlimited {
		r.Limit = -1
	}
	return r
}

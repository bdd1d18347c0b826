package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/tbourn/widget-chat-backend/internal/billing"
	"github.com/tbourn/widget-chat-backend/internal/config"
	"github.com/tbourn/widget-chat-backend/internal/domain"
	"github.com/tbourn/widget-chat-backend/internal/repo"
)

// SubscriptionView is an account's billing state.
type SubscriptionView struct {
	Subscription domain.Subscription        `json:"subscription"`
	Record       *domain.SubscriptionRecord `json:"record,omitempty"`
}

// BillingService keeps Account.Subscription and subscription records in
// step with the payment processor.
type BillingService struct {
	Accounts  repo.AccountStore
	Subs      repo.SubscriptionStore
	Processor billing.Processor
	Prices    map[string]string // plan -> price id
}

// accountStatus maps a processor subscription status to an account status.
func accountStatus(s string) string {
	switch s {
	case "active", "trialing":
		return config.StatusActive
	case "canceled", "incomplete_expired":
		return config.StatusCancelled
	case "past_due":
		return config.StatusPastDue
	case "unpaid":
		return config.StatusUnpaid
	}
	return s
}

func (s *BillingService) planForPrice(priceID string) (string, bool) {
	for plan, id := range s.Prices {
		if id != "" && id == priceID {
			return plan, true
		}
	}
	return "", false
}

func (s *BillingService) account(ctx context.Context, accountID string) (*domain.Account, error) {
	a, err := s.Accounts.FindAccountByID(ctx, accountID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	return a, err
}

// Subscribe starts a paid subscription for the account.
func (s *BillingService) Subscribe(ctx context.Context, accountID, plan, paymentMethodID string) (*SubscriptionView, error) {
	p, ok := config.NormalizePlan(plan)
	if !ok || p == config.PlanFree {
		return nil, ErrInvalidPlan
	}
	price := s.Prices[p]
	if price == "" {
		return nil, ErrInvalidPlan
	}
	a, err := s.account(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if a.Subscription.CustomerID == "" {
		cid, err := s.Processor.CreateCustomer(ctx, a.Email, a.Name)
		if err != nil {
			return nil, err
		}
		a.Subscription.CustomerID = cid
		if err := s.Accounts.UpdateAccount(ctx, a); err != nil {
			return nil, err
		}
	}

	sub, err := s.Processor.CreateSubscription(ctx, a.Subscription.CustomerID, price, paymentMethodID)
	if err != nil {
		return nil, err
	}
	rec := recordFrom(a.ID, p, sub)
	if err := s.Subs.CreateSubscriptionRecord(ctx, rec); err != nil && !errors.Is(err, repo.ErrDuplicate) {
		return nil, fmt.Errorf("record subscription: %w", err)
	}

	a.Subscription.Plan = p
	applyToAccount(&a.Subscription, sub)
	if err := s.Accounts.UpdateAccount(ctx, a); err != nil {
		return nil, err
	}
	return &SubscriptionView{Subscription: a.Subscription, Record: rec}, nil
}

// Cancel schedules cancellation at the end of the current period.
func (s *BillingService) Cancel(ctx context.Context, accountID string) (*SubscriptionView, error) {
	return s.setCancel(ctx, accountID, true)
}

// Reactivate withdraws a scheduled cancellation.
func (s *BillingService) Reactivate(ctx context.Context, accountID string) (*SubscriptionView, error) {
	return s.setCancel(ctx, accountID, false)
}

func (s *BillingService) setCancel(ctx context.Context, accountID string, cancel bool) (*SubscriptionView, error) {
	a, err := s.account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a.Subscription.ExternalID == "" {
		return nil, ErrNoSubscription
	}
	sub, err := s.Processor.SetCancelAtPeriodEnd(ctx, a.Subscription.ExternalID, cancel)
	if err != nil {
		return nil, err
	}
	if err := s.applySubscription(ctx, sub); err != nil {
		return nil, err
	}
	return s.Current(ctx, accountID)
}

// Current returns the account's subscription state.
func (s *BillingService) Current(ctx context.Context, accountID string) (*SubscriptionView, error) {
	a, err := s.account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	v := &SubscriptionView{Subscription: a.Subscription}
	if a.Subscription.ExternalID != "" {
		rec, err := s.Subs.FindSubscriptionByExternalID(ctx, a.Subscription.ExternalID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
		v.Record = rec
	}
	return v, nil
}

// HandleWebhook verifies and applies a processor webhook.
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*billing.Event, error) {
	ev, err := s.Processor.ParseWebhook(payload, signature)
	if err != nil {
		return nil, err
	}
	return ev, s.ApplyEvent(ctx, ev)
}

// ApplyEvent updates subscription state for the events the service acts on.
// Events for unknown subscriptions are ignored.
func (s *BillingService) ApplyEvent(ctx context.Context, ev *billing.Event) error {
	switch ev.Type {
	case billing.EventSubscriptionUpdated:
		if ev.Subscription == nil {
			return nil
		}
		return s.applySubscription(ctx, ev.Subscription)

	case billing.EventSubscriptionDeleted:
		if ev.Subscription == nil {
			return nil
		}
		sub := *ev.Subscription
		sub.Status = "canceled"
		sub.CancelAtPeriodEnd = false
		return s.applySubscription(ctx, &sub)

	case billing.EventPaymentFailed:
		rec, a, err := s.lookup(ctx, ev.SubscriptionID)
		if err != nil || rec == nil {
			return err
		}
		rec.Status = "past_due"
		if err := s.Subs.UpdateSubscriptionRecord(ctx, rec); err != nil {
			return err
		}
		a.Subscription.Status = config.StatusPastDue
		return s.Accounts.UpdateAccount(ctx, a)
	}
	return nil
}

// lookup returns the record for externalID and its account, or nils when the
// subscription is unknown.
func (s *BillingService) lookup(ctx context.Context, externalID string) (*domain.SubscriptionRecord, *domain.Account, error) {
	if externalID == "" {
		return nil, nil, nil
	}
	rec, err := s.Subs.FindSubscriptionByExternalID(ctx, externalID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	a, err := s.Accounts.FindAccountByID(ctx, rec.AccountID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return rec, a, nil
}

func (s *BillingService) applySubscription(ctx context.Context, sub *billing.Subscription) error {
	rec, a, err := s.lookup(ctx, sub.ExternalID)
	if err != nil || rec == nil {
		return err
	}

	if plan, ok := s.planForPrice(sub.PriceID); ok {
		rec.Plan = plan
	}
	if sub.PriceID != "" {
		rec.PriceID = sub.PriceID
	}
	rec.Status = sub.Status
	rec.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	if !sub.CurrentPeriodStart.IsZero() {
		rec.CurrentPeriodStart, rec.CurrentPeriodEnd = sub.CurrentPeriodStart, sub.CurrentPeriodEnd
	}
	if sub.CanceledAt != nil {
		rec.CanceledAt = sub.CanceledAt
	}
	if err := s.Subs.UpdateSubscriptionRecord(ctx, rec); err != nil {
		return err
	}

	// Only the subscription this account is on drives its plan.
	if a.Subscription.ExternalID != "" && a.Subscription.ExternalID != sub.ExternalID {
		return nil
	}
	applyToAccount(&a.Subscription, sub)
	if a.Subscription.Status == config.StatusCancelled {
		a.Subscription.Plan = config.PlanFree
		a.Subscription.CancelAtPeriodEnd = false
	} else {
		a.Subscription.Plan = rec.Plan
	}
	return s.Accounts.UpdateAccount(ctx, a)
}

func applyToAccount(dst *domain.Subscription, sub *billing.Subscription) {
	dst.ExternalID = sub.ExternalID
	if sub.CustomerID != "" {
		dst.CustomerID = sub.CustomerID
	}
	dst.Status = accountStatus(sub.Status)
	dst.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	if !sub.CurrentPeriodStart.IsZero() {
		dst.CurrentPeriodStart = domain.Normalize(sub.CurrentPeriodStart)
		dst.CurrentPeriodEnd = domain.Normalize(sub.CurrentPeriodEnd)
	}
}

func recordFrom(accountID, plan string, sub *billing.Subscription) *domain.SubscriptionRecord {
	interval := sub.Interval
	if interval == "" {
		interval = "month"
	}
	currency := sub.Currency
	if currency == "" {
		currency = "usd"
	}
	return &domain.SubscriptionRecord{
		AccountID:          accountID,
		ExternalID:         sub.ExternalID,
		PriceID:            sub.PriceID,
		Plan:               plan,
		Interval:           interval,
		Status:             sub.Status,
		CurrentPeriodStart: domain.Normalize(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   domain.Normalize(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         sub.CanceledAt,
		Amount:             sub.Amount,
		Currency:           currency,
	}
}

// PlanView is one public plan offering.
type PlanView struct {
	ID              string `json:"id"               example:"starter"`
	MonthlyMessages int    `json:"monthly_messages" example:"1000"`
	Unlimited       bool   `json:"unlimited"`
	// Purchasable is false for paid plans without a configured price.
	Purchasable bool `json:"purchasable"`
}

// planOrder lists plans from cheapest to most expensive.
var planOrder = []string{config.PlanFree, config.PlanStarter, config.PlanProfessional, config.PlanEnterprise}

// Plans lists the plan table for pricing pages. The free plan is always
// available without payment.
func (s *BillingService) Plans() []PlanView {
	out := make([]PlanView, 0, len(planOrder))
	for _, id := range planOrder {
		l := config.DefaultPlanLimits[id]
		out = append(out, PlanView{
			ID:              id,
			MonthlyMessages: l.MonthlyMessages,
			Unlimited:       l.Unlimited,
			Purchasable:     id == config.PlanFree || s.Prices[id] != "",
		})
	}
	return out
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/widget-chat-backend/internal/billing"
	"github.com/tbourn/widget-chat-backend/internal/config"
	"github.com/tbourn/widget-chat-backend/internal/repo"
)

type fakeProcessor struct {
	customers int
	subs      map[string]*billing.Subscription
	event     *billing.Event
	parseErr  error
}

func (p *fakeProcessor) CreateCustomer(_ context.Context, email, name string) (string, error) {
	p.customers++
	return "cus_" + email, nil
}

func (p *fakeProcessor) CreateSubscription(_ context.Context, customerID, priceID, _ string) (*billing.Subscription, error) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &billing.Subscription{
		ExternalID:         "sub_1",
		CustomerID:         customerID,
		Status:             "active",
		PriceID:            priceID,
		Interval:           "month",
		Amount:             2900,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   start.AddDate(0, 1, 0),
	}
	if p.subs == nil {
		p.subs = map[string]*billing.Subscription{}
	}
	p.subs[s.ExternalID] = s
	cp := *s
	return &cp, nil
}

func (p *fakeProcessor) SetCancelAtPeriodEnd(_ context.Context, externalID string, cancel bool) (*billing.Subscription, error) {
	s, ok := p.subs[externalID]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	s.CancelAtPeriodEnd = cancel
	cp := *s
	return &cp, nil
}

func (p *fakeProcessor) ParseWebhook([]byte, string) (*billing.Event, error) {
	if p.parseErr != nil {
		return nil, p.parseErr
	}
	return p.event, nil
}

func newBilling(st *repo.MemoryStore, p billing.Processor) *BillingService {
	return &BillingService{
		Accounts:  st,
		Subs:      st,
		Processor: p,
		Prices: map[string]string{
			config.PlanStarter:      "price_starter",
			config.PlanProfessional: "price_pro",
		},
	}
}

func TestBillingService_SubscribeCancelReactivate(t *testing.T) {
	st := newStore()
	a := mustAccount(t, st, "bill@example.com", config.PlanFree)
	p := &fakeProcessor{}
	svc := newBilling(st, p)
	ctx := context.Background()

	if _, err := svc.Subscribe(ctx, a.ID, config.PlanFree, "pm_1"); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("free is not purchasable, got %v", err)
	}
	if _, err := svc.Subscribe(ctx, a.ID, config.PlanEnterprise, "pm_1"); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("plan without price should be ErrInvalidPlan, got %v", err)
	}
	if _, err := svc.Cancel(ctx, a.ID); !errors.Is(err, ErrNoSubscription) {
		t.Fatalf("cancel without subscription should be ErrNoSubscription, got %v", err)
	}

	v, err := svc.Subscribe(ctx, a.ID, "basic", "pm_1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if v.Subscription.Plan != config.PlanStarter || v.Subscription.ExternalID != "sub_1" || v.Subscription.CustomerID != "cus_bill@example.com" {
		t.Fatalf("unexpected subscription: %+v", v.Subscription)
	}
	if v.Record == nil || v.Record.PriceID != "price_starter" || v.Record.Currency != "usd" {
		t.Fatalf("unexpected record: %+v", v.Record)
	}
	stored := mustFind(t, st, a.ID)
	if stored.Subscription.Plan != config.PlanStarter || stored.Subscription.Status != config.StatusActive {
		t.Fatalf("account not updated: %+v", stored.Subscription)
	}

	v, err = svc.Cancel(ctx, a.ID)
	if err != nil || !v.Subscription.CancelAtPeriodEnd || v.Record == nil || !v.Record.CancelAtPeriodEnd {
		t.Fatalf("Cancel: %v %+v", err, v)
	}
	v, err = svc.Reactivate(ctx, a.ID)
	if err != nil || v.Subscription.CancelAtPeriodEnd || v.Subscription.Plan != config.PlanStarter {
		t.Fatalf("Reactivate: %v %+v", err, v)
	}
	if p.customers != 1 {
		t.Fatalf("customer created %d times, want 1", p.customers)
	}
}

func TestBillingService_WebhookEvents(t *testing.T) {
	st := newStore()
	a := mustAccount(t, st, "hook@example.com", config.PlanFree)
	p := &fakeProcessor{}
	svc := newBilling(st, p)
	ctx := context.Background()

	if _, err := svc.Subscribe(ctx, a.ID, config.PlanStarter, "pm_1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	before := mustFind(t, st, a.ID)

	// Upgrade through the processor.
	p.event = &billing.Event{
		Type:           billing.EventSubscriptionUpdated,
		SubscriptionID: "sub_1",
		Subscription:   &billing.Subscription{ExternalID: "sub_1", Status: "active", PriceID: "price_pro"},
	}
	if _, err := svc.HandleWebhook(ctx, []byte("{}"), "sig"); err != nil {
		t.Fatalf("HandleWebhook updated: %v", err)
	}
	after := mustFind(t, st, a.ID)
	if after.Subscription.Plan != config.PlanProfessional {
		t.Fatalf("plan = %q, want professional", after.Subscription.Plan)
	}
	if after.Name != before.Name || after.Usage != before.Usage || after.Key() != before.Key() {
		t.Fatalf("webhook must only touch subscription fields")
	}

	p.event = &billing.Event{Type: billing.EventPaymentFailed, SubscriptionID: "sub_1"}
	if _, err := svc.HandleWebhook(ctx, nil, "sig"); err != nil {
		t.Fatalf("HandleWebhook payment_failed: %v", err)
	}
	if s := mustFind(t, st, a.ID).Subscription; s.Status != config.StatusPastDue {
		t.Fatalf("status = %q, want past_due", s.Status)
	}

	p.event = &billing.Event{
		Type:           billing.EventSubscriptionDeleted,
		SubscriptionID: "sub_1",
		Subscription:   &billing.Subscription{ExternalID: "sub_1", Status: "canceled"},
	}
	if _, err := svc.HandleWebhook(ctx, nil, "sig"); err != nil {
		t.Fatalf("HandleWebhook deleted: %v", err)
	}
	s := mustFind(t, st, a.ID).Subscription
	if s.Plan != config.PlanFree || s.Status != config.StatusCancelled {
		t.Fatalf("deleted subscription should drop to free/cancelled, got %+v", s)
	}
	rec, err := st.FindSubscriptionByExternalID(ctx, "sub_1")
	if err != nil || rec.Status != "canceled" {
		t.Fatalf("record not updated: %v %+v", err, rec)
	}

	// Unknown subscriptions and unhandled types are ignored.
	p.event = &billing.Event{Type: billing.EventPaymentFailed, SubscriptionID: "sub_unknown"}
	if _, err := svc.HandleWebhook(ctx, nil, "sig"); err != nil {
		t.Fatalf("unknown subscription should be ignored: %v", err)
	}
	p.event = &billing.Event{Type: "charge.succeeded"}
	if _, err := svc.HandleWebhook(ctx, nil, "sig"); err != nil {
		t.Fatalf("unhandled type should be ignored: %v", err)
	}

	p.parseErr = billing.ErrInvalidSignature
	if _, err := svc.HandleWebhook(ctx, nil, "bad"); !errors.Is(err, billing.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestBillingService_Plans(t *testing.T) {
	svc := newBilling(newStore(), &fakeProcessor{})
	plans := svc.Plans()
	want := []struct {
		id          string
		purchasable bool
	}{
		{config.PlanFree, true},
		{config.PlanStarter, true},
		{config.PlanProfessional, true},
		{config.PlanEnterprise, false},
	}
	if len(plans) != len(want) {
		t.Fatalf("Plans() = %+v", plans)
	}
	for i, w := range want {
		if plans[i].ID != w.id || plans[i].Purchasable != w.purchasable {
			t.Fatalf("plan %d = %+v; want %s purchasable=%v", i, plans[i], w.id, w.purchasable)
		}
	}
	if !plans[3].Unlimited || plans[0].Unlimited {
		t.Fatalf("unlimited flags wrong: %+v", plans)
	}
}

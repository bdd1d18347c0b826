package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Stripe implements Processor with the Stripe API.
type Stripe struct {
	webhookSecret string
}

// NewStripe configures the Stripe client with secretKey.
func NewStripe(secretKey, webhookSecret string) *Stripe {
	stripe.Key = secretKey
	return &Stripe{webhookSecret: webhookSecret}
}

// CreateCustomer creates a Stripe customer and returns its id.
func (s *Stripe) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cust.ID, nil
}

// CreateSubscription subscribes customerID to priceID.
func (s *Stripe) CreateSubscription(ctx context.Context, customerID, priceID, paymentMethodID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
	}
	if paymentMethodID != "" {
		params.DefaultPaymentMethod = stripe.String(paymentMethodID)
	}
	params.Context = ctx
	sub, err := subscription.New(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe subscription: %w", err)
	}
	return fromStripe(sub), nil
}

// SetCancelAtPeriodEnd schedules or withdraws cancellation at period end.
func (s *Stripe) SetCancelAtPeriodEnd(ctx context.Context, externalID string, cancel bool) (*Subscription, error) {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(cancel)}
	params.Context = ctx
	sub, err := subscription.Update(externalID, params)
	if err != nil {
		return nil, fmt.Errorf("update stripe subscription: %w", err)
	}
	return fromStripe(sub), nil
}

// ParseWebhook verifies the signature and decodes the events the service
// acts on. Other event types are returned with only ID and Type set.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if s.webhookSecret == "" {
		return nil, ErrNotConfigured
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return decodeEvent(ev)
}

func decodeEvent(ev stripe.Event) (*Event, error) {
	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}
	switch out.Type {
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		out.Subscription = fromStripe(&sub)
		out.SubscriptionID = sub.ID
	case EventPaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		out.SubscriptionID = subscriptionIDFromInvoice(inv)
	}
	return out, nil
}

func subscriptionIDFromInvoice(inv stripe.Invoice) string {
	if inv.Parent != nil &&
		inv.Parent.SubscriptionDetails != nil &&
		inv.Parent.SubscriptionDetails.Subscription != nil {
		return inv.Parent.SubscriptionDetails.Subscription.ID
	}
	return ""
}

func unix(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func fromStripe(s *stripe.Subscription) *Subscription {
	out := &Subscription{
		ExternalID:        s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Currency:          string(s.Currency),
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.CanceledAt > 0 {
		t := unix(s.CanceledAt)
		out.CanceledAt = &t
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		it := s.Items.Data[0]
		out.CurrentPeriodStart = unix(it.CurrentPeriodStart)
		out.CurrentPeriodEnd = unix(it.CurrentPeriodEnd)
		if it.Price != nil {
			out.PriceID = it.Price.ID
			out.Amount = it.Price.UnitAmount
			if out.Currency == "" {
				out.Currency = string(it.Price.Currency)
			}
			if it.Price.Recurring != nil {
				out.Interval = string(it.Price.Recurring.Interval)
			}
		}
	}
	return out
}

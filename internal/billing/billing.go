// Package billing talks to the payment processor: customers, subscriptions,
// and signed webhook events.
package billing

import (
	"context"
	"errors"
	"time"
)

// Webhook event types that change account state.
const (
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentFailed       = "invoice.payment_failed"
)

var (
	// ErrNotConfigured is returned when no processor credentials are set.
	ErrNotConfigured = errors.New("billing not configured")

	// ErrInvalidSignature is returned for webhook payloads that fail
	// verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Subscription is the processor's view of a subscription.
type Subscription struct {
	ExternalID         string
	CustomerID         string
	Status             string
	PriceID            string
	Interval           string
	Amount             int64
	Currency           string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
}

// Event is a verified webhook event. Subscription is set for subscription
// events; SubscriptionID alone is set for invoice events.
type Event struct {
	ID             string
	Type           string
	SubscriptionID string
	Subscription   *Subscription
}

// Processor is the payment processor contract.
type Processor interface {
	CreateCustomer(ctx context.Context, email, name string) (string, error)
	CreateSubscription(ctx context.Context, customerID, priceID, paymentMethodID string) (*Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, externalID string, cancel bool) (*Subscription, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

// Disabled rejects every call with ErrNotConfigured.
type Disabled struct{}

func (Disabled) CreateCustomer(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) CreateSubscription(context.Context, string, string, string) (*Subscription, error) {
	return nil, ErrNotConfigured
}

func (Disabled) SetCancelAtPeriodEnd(context.Context, string, bool) (*Subscription, error) {
	return nil, ErrNotConfigured
}

func (Disabled) ParseWebhook([]byte, string) (*Event, error) { return nil, ErrNotConfigured }

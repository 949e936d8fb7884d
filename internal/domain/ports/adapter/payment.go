package adapter

import (
	"context"
	"time"
)

type PaymentLinkRequest struct {
	Amount      int64 // minor units
	Currency    string
	Description string
	ReferenceID string
	Notes       map[string]string
	CallbackURL string
	ExpireBy    time.Time
}

type PaymentLink struct {
	LinkID   string
	ShortURL string
}

type SubscriptionRequest struct {
	PlanID     string
	TotalCount int
	StartAt    time.Time
	Notes      map[string]string
}

type Subscription struct {
	SubscriptionID string
	Status         string
}

// Provider is the hex port for the external payment processor. Every blocking call is
// fallible with a *domain.ProviderError.
type Provider interface {
	Name() string

	CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (PaymentLink, error)
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (Subscription, error)
	// CancelSubscription cancels immediately or at the end of the current cycle.
	CancelSubscription(ctx context.Context, subscriptionID string, immediate bool) error

	// VerifyWebhookSignature checks HMAC-SHA256(rawBody, secret) against the hex signature header.
	VerifyWebhookSignature(rawBody []byte, signature, secret string) bool
	// VerifyCheckoutSignature checks HMAC-SHA256(orderID + "|" + paymentID, secret).
	VerifyCheckoutSignature(orderID, paymentID, signature, secret string) bool
	// ParseWebhookEvent decodes a verified webhook body into the provider-neutral event.
	ParseWebhookEvent(rawBody []byte) (ProviderEvent, error)
}

// Webhook event names understood by the reconciler.
const (
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionCharged   = "subscription.charged"
	EventSubscriptionHalted    = "subscription.halted"
	EventSubscriptionPaused    = "subscription.paused"
	EventSubscriptionResumed   = "subscription.resumed"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventSubscriptionCompleted = "subscription.completed"
	EventPaymentFailed         = "payment.failed"
	EventPaymentLinkPaid       = "payment_link.paid"
	EventRefundProcessed       = "refund.processed"
)

// ProviderEvent is a decoded webhook. ID is the provider event id when the provider sends one.
type ProviderEvent struct {
	ID             string
	Type           string
	CreatedAt      time.Time
	EntityID       string
	SubscriptionID string
	PaymentLinkID  string
	PaymentID      string
	OrderID        string
	RefundID       string
	Amount         int64 // minor units
	Currency       string
	FailureReason  string
	Notes          map[string]string
}

type ChargeRequest struct {
	MandateID              string
	ProviderSubscriptionID string
	Amount                 int64
	Currency               string
	Reference              string
}

// ChargeResult is a definitive answer from the provider. Transport failures are returned as
// errors instead and leave the mandate untouched.
type ChargeResult struct {
	Success           bool
	ProviderPaymentID string
	FailureReason     string
}

// MandateCharger is implemented by providers that expose a mandate-level charge API.
type MandateCharger interface {
	ChargeMandate(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

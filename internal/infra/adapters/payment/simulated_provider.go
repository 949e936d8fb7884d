package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/ports/adapter"
)

var (
	_ adapter.Provider       = (*SimulatedProvider)(nil)
	_ adapter.MandateCharger = (*SimulatedProvider)(nil)
)

// SimulatedProvider is an in-memory processor used in development and tests. It signs
// and parses webhooks in the Razorpay format so the same webhook pipeline runs against it.
type SimulatedProvider struct {
	mu            sync.Mutex
	seq           int64
	links         map[string]adapter.PaymentLinkRequest
	subscriptions map[string]string // id -> status

	// ChargeOutcome decides the result of ChargeMandate. Nil means every charge succeeds.
	ChargeOutcome func(req adapter.ChargeRequest) (adapter.ChargeResult, error)
	// FailNext makes the next N blocking calls return a retryable provider error.
	FailNext int
	BaseURL  string
}

func NewSimulatedProvider() *SimulatedProvider {
	return &SimulatedProvider{
		links:         make(map[string]adapter.PaymentLinkRequest),
		subscriptions: make(map[string]string),
		BaseURL:       "https://rzp.test",
	}
}

func (p *SimulatedProvider) Name() string { return "simulated" }

func (p *SimulatedProvider) next(prefix string) string {
	p.seq++
	return fmt.Sprintf("%s_sim%06d", prefix, p.seq)
}

func (p *SimulatedProvider) injectedFailure(op string) error {
	if p.FailNext > 0 {
		p.FailNext--
		return domain.NewProviderError(op, true, errors.New("simulated outage"))
	}
	return nil
}

func (p *SimulatedProvider) CreatePaymentLink(ctx context.Context, req adapter.PaymentLinkRequest) (adapter.PaymentLink, error) {
	if err := ctx.Err(); err != nil {
		return adapter.PaymentLink{}, domain.NewProviderError("create_payment_link", true, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injectedFailure("create_payment_link"); err != nil {
		return adapter.PaymentLink{}, err
	}
	if req.Amount <= 0 {
		return adapter.PaymentLink{}, domain.NewProviderError("create_payment_link", false, errors.New("amount must be positive"))
	}
	id := p.next("plink")
	p.links[id] = req
	return adapter.PaymentLink{LinkID: id, ShortURL: p.BaseURL + "/l/" + id}, nil
}

func (p *SimulatedProvider) CreateSubscription(ctx context.Context, req adapter.SubscriptionRequest) (adapter.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return adapter.Subscription{}, domain.NewProviderError("create_subscription", true, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injectedFailure("create_subscription"); err != nil {
		return adapter.Subscription{}, err
	}
	id := p.next("sub")
	p.subscriptions[id] = "created"
	return adapter.Subscription{SubscriptionID: id, Status: "created"}, nil
}

func (p *SimulatedProvider) CancelSubscription(ctx context.Context, subscriptionID string, immediate bool) error {
	if err := ctx.Err(); err != nil {
		return domain.NewProviderError("cancel_subscription", true, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injectedFailure("cancel_subscription"); err != nil {
		return err
	}
	if _, ok := p.subscriptions[subscriptionID]; !ok {
		return domain.NewProviderError("cancel_subscription", false, fmt.Errorf("subscription %s not found", subscriptionID))
	}
	p.subscriptions[subscriptionID] = "cancelled"
	return nil
}

// SubscriptionStatus reports the simulated upstream state, "" when unknown.
func (p *SimulatedProvider) SubscriptionStatus(id string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscriptions[id]
}

func (p *SimulatedProvider) ChargeMandate(ctx context.Context, req adapter.ChargeRequest) (adapter.ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return adapter.ChargeResult{}, domain.NewProviderError("charge_mandate", true, err)
	}
	p.mu.Lock()
	if err := p.injectedFailure("charge_mandate"); err != nil {
		p.mu.Unlock()
		return adapter.ChargeResult{}, err
	}
	outcome := p.ChargeOutcome
	p.mu.Unlock()

	if outcome != nil {
		return outcome(req)
	}
	return adapter.ChargeResult{Success: true, ProviderPaymentID: "pay_" + uuid.NewString()[:14]}, nil
}

func (p *SimulatedProvider) VerifyWebhookSignature(rawBody []byte, signature, secret string) bool {
	return VerifySignature(secret, rawBody, signature)
}

func (p *SimulatedProvider) VerifyCheckoutSignature(orderID, paymentID, signature, secret string) bool {
	return VerifySignature(secret, CheckoutPayload(orderID, paymentID), signature)
}

func (p *SimulatedProvider) ParseWebhookEvent(rawBody []byte) (adapter.ProviderEvent, error) {
	return ParseRazorpayEvent(rawBody)
}

// LinkPaidEvent builds a signed payment_link.paid body for a link created by this provider.
func (p *SimulatedProvider) LinkPaidEvent(linkID, paymentID, secret string, at time.Time) (body []byte, signature string, err error) {
	p.mu.Lock()
	req, ok := p.links[linkID]
	p.mu.Unlock()
	if !ok {
		return nil, "", fmt.Errorf("payment link %s not found", linkID)
	}
	payload := map[string]interface{}{
		"entity":     "event",
		"event":      adapter.EventPaymentLinkPaid,
		"created_at": at.Unix(),
		"payload": map[string]interface{}{
			"payment_link": map[string]interface{}{"entity": map[string]interface{}{
				"id": linkID, "amount": req.Amount, "currency": req.Currency,
				"reference_id": req.ReferenceID, "notes": req.Notes, "status": "paid",
			}},
			"payment": map[string]interface{}{"entity": map[string]interface{}{
				"id": paymentID, "amount": req.Amount, "currency": req.Currency, "status": "captured",
			}},
		},
	}
	body, err = json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}
	return body, Sign(secret, body), nil
}

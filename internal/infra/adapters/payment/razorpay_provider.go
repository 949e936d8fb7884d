// File: internal/infra/adapters/payment/razorpay_provider.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/razorpay/razorpay-go"
	"github.com/rs/zerolog"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/ports/adapter"
)

var _ adapter.Provider = (*RazorpayProvider)(nil)

// RazorpayProvider implements adapter.Provider on top of razorpay-go. Razorpay collects
// recurring debits itself, so this adapter does not implement adapter.MandateCharger and
// renewals arrive as subscription.charged webhooks.
type RazorpayProvider struct {
	client *razorpay.Client
	log    *zerolog.Logger
}

func NewRazorpayProvider(keyID, keySecret string, logger *zerolog.Logger) (*RazorpayProvider, error) {
	if keyID == "" || keySecret == "" {
		return nil, errors.New("razorpay: key id and secret are required")
	}
	l := logger.With().Str("component", "RazorpayProvider").Logger()
	return &RazorpayProvider{
		client: razorpay.NewClient(keyID, keySecret),
		log:    &l,
	}, nil
}

func (p *RazorpayProvider) Name() string { return "razorpay" }

func (p *RazorpayProvider) CreatePaymentLink(ctx context.Context, req adapter.PaymentLinkRequest) (adapter.PaymentLink, error) {
	data := map[string]interface{}{
		"amount":          req.Amount,
		"currency":        req.Currency,
		"accept_partial":  false,
		"description":     req.Description,
		"reference_id":    req.ReferenceID,
		"upi_link":        true,
		"notes":           req.Notes,
		"callback_url":    req.CallbackURL,
		"callback_method": "get",
	}
	if !req.ExpireBy.IsZero() {
		data["expire_by"] = req.ExpireBy.Unix()
	}
	out, err := call(ctx, "create_payment_link", func() (map[string]interface{}, error) {
		return p.client.PaymentLink.Create(data, nil)
	})
	if err != nil {
		return adapter.PaymentLink{}, err
	}
	link := adapter.PaymentLink{LinkID: str(out["id"]), ShortURL: str(out["short_url"])}
	if link.LinkID == "" {
		return adapter.PaymentLink{}, domain.NewProviderError("create_payment_link", false, errors.New("response without id"))
	}
	p.log.Debug().Str("link_id", link.LinkID).Str("reference_id", req.ReferenceID).Msg("payment link created")
	return link, nil
}

func (p *RazorpayProvider) CreateSubscription(ctx context.Context, req adapter.SubscriptionRequest) (adapter.Subscription, error) {
	if req.PlanID == "" {
		return adapter.Subscription{}, domain.NewProviderError("create_subscription", false, errors.New("plan id not configured"))
	}
	data := map[string]interface{}{
		"plan_id":         req.PlanID,
		"total_count":     req.TotalCount,
		"customer_notify": 1,
		"notes":           req.Notes,
	}
	if !req.StartAt.IsZero() {
		data["start_at"] = req.StartAt.Unix()
	}
	out, err := call(ctx, "create_subscription", func() (map[string]interface{}, error) {
		return p.client.Subscription.Create(data, nil)
	})
	if err != nil {
		return adapter.Subscription{}, err
	}
	sub := adapter.Subscription{SubscriptionID: str(out["id"]), Status: str(out["status"])}
	if sub.SubscriptionID == "" {
		return adapter.Subscription{}, domain.NewProviderError("create_subscription", false, errors.New("response without id"))
	}
	return sub, nil
}

func (p *RazorpayProvider) CancelSubscription(ctx context.Context, subscriptionID string, immediate bool) error {
	data := map[string]interface{}{"cancel_at_cycle_end": !immediate}
	_, err := call(ctx, "cancel_subscription", func() (map[string]interface{}, error) {
		return p.client.Subscription.Cancel(subscriptionID, data, nil)
	})
	if err != nil && alreadyCancelled(err) {
		p.log.Info().Str("subscription_id", subscriptionID).Msg("subscription already cancelled upstream")
		return nil
	}
	return err
}

func (p *RazorpayProvider) VerifyWebhookSignature(rawBody []byte, signature, secret string) bool {
	return VerifySignature(secret, rawBody, signature)
}

func (p *RazorpayProvider) VerifyCheckoutSignature(orderID, paymentID, signature, secret string) bool {
	return VerifySignature(secret, CheckoutPayload(orderID, paymentID), signature)
}

func (p *RazorpayProvider) ParseWebhookEvent(rawBody []byte) (adapter.ProviderEvent, error) {
	return ParseRazorpayEvent(rawBody)
}

// call runs a blocking SDK request and gives up when ctx ends. razorpay-go takes no context.
func call(ctx context.Context, op string, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	type result struct {
		out map[string]interface{}
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := fn()
		done <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		return nil, domain.NewProviderError(op, true, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, domain.NewProviderError(op, retryable(r.err), r.err)
		}
		return r.out, nil
	}
}

// retryable treats client-side rejections as final and everything else as a transient outage.
func retryable(err error) bool {
	msg := strings.ToUpper(err.Error())
	return !strings.Contains(msg, "BAD_REQUEST") && !strings.Contains(msg, "INVALID")
}

func alreadyCancelled(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "not cancellable in cancelled status")
}

func str(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/ports/adapter"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"payment.failed"}`)
	sig := Sign("whsec", body)

	assert.True(t, VerifySignature("whsec", body, sig))
	assert.True(t, VerifySignature("whsec", body, " "+sig+" "))
	assert.False(t, VerifySignature("other", body, sig))
	assert.False(t, VerifySignature("whsec", []byte(`{"event":"payment.captured"}`), sig))
	assert.False(t, VerifySignature("", body, Sign("", body)), "empty secret never verifies")
	assert.False(t, VerifySignature("whsec", body, ""))
}

func TestVerifyCheckoutSignature(t *testing.T) {
	p := NewSimulatedProvider()
	sig := Sign("key_secret", []byte("order_1|pay_1"))

	assert.True(t, p.VerifyCheckoutSignature("order_1", "pay_1", sig, "key_secret"))
	assert.False(t, p.VerifyCheckoutSignature("order_1", "pay_2", sig, "key_secret"))
}

func TestParseRazorpayEvent(t *testing.T) {
	t.Run("subscription charged carries payment and subscription", func(t *testing.T) {
		body := []byte(`{
			"entity":"event","event":"subscription.charged","created_at":1700000000,
			"payload":{
				"subscription":{"entity":{"id":"sub_1","status":"active","notes":{"mandate_id":"m1","user_id":"u1"}}},
				"payment":{"entity":{"id":"pay_1","amount":900,"currency":"INR","order_id":"order_1","notes":[]}}
			}}`)

		ev, err := ParseRazorpayEvent(body)

		require.NoError(t, err)
		assert.Equal(t, adapter.EventSubscriptionCharged, ev.Type)
		assert.Equal(t, "sub_1", ev.SubscriptionID)
		assert.Equal(t, "sub_1", ev.EntityID)
		assert.Equal(t, "pay_1", ev.PaymentID)
		assert.Equal(t, "order_1", ev.OrderID)
		assert.Equal(t, int64(900), ev.Amount)
		assert.Equal(t, "m1", ev.Notes["mandate_id"])
		assert.Equal(t, time.Unix(1700000000, 0).UTC(), ev.CreatedAt)
	})

	t.Run("payment link reference becomes the mandate id", func(t *testing.T) {
		body := []byte(`{"event":"payment_link.paid","created_at":1,
			"payload":{"payment_link":{"entity":{"id":"plink_1","reference_id":"m9","amount":900,"currency":"INR"}},
			"payment":{"entity":{"id":"pay_9","amount":900,"currency":"INR"}}}}`)

		ev, err := ParseRazorpayEvent(body)

		require.NoError(t, err)
		assert.Equal(t, "plink_1", ev.EntityID)
		assert.Equal(t, "m9", ev.Notes["mandate_id"])
		assert.Equal(t, "pay_9", ev.PaymentID)
	})

	t.Run("refund points at the original payment", func(t *testing.T) {
		body := []byte(`{"event":"refund.processed","payload":{"refund":{"entity":{"id":"rfnd_1","payment_id":"pay_1","amount":900}}}}`)

		ev, err := ParseRazorpayEvent(body)

		require.NoError(t, err)
		assert.Equal(t, "rfnd_1", ev.EntityID)
		assert.Equal(t, "pay_1", ev.PaymentID)
		assert.True(t, ev.CreatedAt.IsZero())
	})

	t.Run("payment failed keeps the reason", func(t *testing.T) {
		body := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_2","error_description":"insufficient funds","notes":{"mandate_id":"m2","attempt":3}}}}}`)

		ev, err := ParseRazorpayEvent(body)

		require.NoError(t, err)
		assert.Equal(t, "pay_2", ev.EntityID)
		assert.Equal(t, "insufficient funds", ev.FailureReason)
		assert.Equal(t, "3", ev.Notes["attempt"])
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := ParseRazorpayEvent([]byte(`not json`))
		assert.ErrorIs(t, err, ErrMalformedEvent)

		_, err = ParseRazorpayEvent([]byte(`{"payload":{}}`))
		assert.ErrorIs(t, err, ErrMalformedEvent)
	})
}

func TestSimulatedProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("link paid event round-trips through the parser", func(t *testing.T) {
		p := NewSimulatedProvider()
		link, err := p.CreatePaymentLink(ctx, adapter.PaymentLinkRequest{
			Amount: 900, Currency: "INR", ReferenceID: "m1",
			Notes: map[string]string{"user_id": "u1"},
		})
		require.NoError(t, err)
		assert.Contains(t, link.ShortURL, link.LinkID)

		body, sig, err := p.LinkPaidEvent(link.LinkID, "pay_1", "whsec", time.Unix(100, 0))
		require.NoError(t, err)
		require.True(t, p.VerifyWebhookSignature(body, sig, "whsec"))

		ev, err := p.ParseWebhookEvent(body)
		require.NoError(t, err)
		assert.Equal(t, "m1", ev.Notes["mandate_id"])
		assert.Equal(t, "u1", ev.Notes["user_id"])
		assert.Equal(t, link.LinkID, ev.PaymentLinkID)
	})

	t.Run("injected outages are retryable", func(t *testing.T) {
		p := NewSimulatedProvider()
		p.FailNext = 1

		_, err := p.CreateSubscription(ctx, adapter.SubscriptionRequest{PlanID: "plan_1"})
		var pe *domain.ProviderError
		require.True(t, errors.As(err, &pe))
		assert.True(t, pe.Retryable)

		sub, err := p.CreateSubscription(ctx, adapter.SubscriptionRequest{PlanID: "plan_1"})
		require.NoError(t, err)
		require.NoError(t, p.CancelSubscription(ctx, sub.SubscriptionID, true))
		assert.Equal(t, "cancelled", p.SubscriptionStatus(sub.SubscriptionID))
	})

	t.Run("charge outcome is pluggable", func(t *testing.T) {
		p := NewSimulatedProvider()
		res, err := p.ChargeMandate(ctx, adapter.ChargeRequest{MandateID: "m1", Amount: 900})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.NotEmpty(t, res.ProviderPaymentID)

		p.ChargeOutcome = func(adapter.ChargeRequest) (adapter.ChargeResult, error) {
			return adapter.ChargeResult{FailureReason: "declined"}, nil
		}
		res, err = p.ChargeMandate(ctx, adapter.ChargeRequest{MandateID: "m1", Amount: 900})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "declined", res.FailureReason)
	})

	t.Run("cancelled context is reported as retryable", func(t *testing.T) {
		p := NewSimulatedProvider()
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := p.CancelSubscription(cctx, "sub_x", false)

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCallRespectsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	release := make(chan struct{})
	defer close(release)

	_, err := call(ctx, "slow", func() (map[string]interface{}, error) {
		<-release
		return nil, nil
	})

	var pe *domain.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.True(t, pe.Retryable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryable(t *testing.T) {
	assert.False(t, retryable(errors.New("BAD_REQUEST_ERROR: The id provided does not exist")))
	assert.True(t, retryable(errors.New("dial tcp: i/o timeout")))
}

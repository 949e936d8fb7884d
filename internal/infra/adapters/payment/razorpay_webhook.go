package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"upi-autopay-subscription/internal/domain/ports/adapter"
)

var ErrMalformedEvent = errors.New("malformed webhook event")

type rzpEnvelope struct {
	Entity    string `json:"entity"`
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Subscription *rzpWrapped `json:"subscription"`
		Payment      *rzpWrapped `json:"payment"`
		PaymentLink  *rzpWrapped `json:"payment_link"`
		Refund       *rzpWrapped `json:"refund"`
		Order        *rzpWrapped `json:"order"`
	} `json:"payload"`
}

type rzpWrapped struct {
	Entity rzpEntity `json:"entity"`
}

type rzpEntity struct {
	ID               string   `json:"id"`
	Amount           int64    `json:"amount"`
	Currency         string   `json:"currency"`
	Status           string   `json:"status"`
	OrderID          string   `json:"order_id"`
	PaymentID        string   `json:"payment_id"`
	SubscriptionID   string   `json:"subscription_id"`
	ReferenceID      string   `json:"reference_id"`
	ErrorDescription string   `json:"error_description"`
	ErrorReason      string   `json:"error_reason"`
	Notes            rzpNotes `json:"notes"`
}

// rzpNotes accepts both an object and the empty array Razorpay sends when no notes were set.
type rzpNotes map[string]string

func (n *rzpNotes) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" || trimmed == "null" || strings.HasPrefix(trimmed, "[") {
		*n = nil
		return nil
	}
	raw := map[string]interface{}{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(rzpNotes, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	*n = out
	return nil
}

// ParseRazorpayEvent decodes a Razorpay webhook body. It does not verify the signature.
func ParseRazorpayEvent(raw []byte) (adapter.ProviderEvent, error) {
	var env rzpEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return adapter.ProviderEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Event == "" {
		return adapter.ProviderEvent{}, fmt.Errorf("%w: missing event type", ErrMalformedEvent)
	}

	ev := adapter.ProviderEvent{
		Type:  env.Event,
		Notes: map[string]string{},
	}
	if env.CreatedAt > 0 {
		ev.CreatedAt = time.Unix(env.CreatedAt, 0).UTC()
	}

	p := env.Payload
	if p.Subscription != nil {
		e := p.Subscription.Entity
		ev.SubscriptionID = e.ID
		mergeNotes(ev.Notes, e.Notes)
	}
	if p.PaymentLink != nil {
		e := p.PaymentLink.Entity
		ev.PaymentLinkID = e.ID
		ev.Amount, ev.Currency = e.Amount, e.Currency
		if e.ReferenceID != "" {
			if _, ok := ev.Notes["mandate_id"]; !ok {
				ev.Notes["mandate_id"] = e.ReferenceID
			}
		}
		mergeNotes(ev.Notes, e.Notes)
	}
	if p.Order != nil {
		ev.OrderID = p.Order.Entity.ID
		mergeNotes(ev.Notes, p.Order.Entity.Notes)
	}
	if p.Payment != nil {
		e := p.Payment.Entity
		ev.PaymentID = e.ID
		ev.Amount, ev.Currency = e.Amount, e.Currency
		if e.OrderID != "" {
			ev.OrderID = e.OrderID
		}
		if ev.SubscriptionID == "" {
			ev.SubscriptionID = e.SubscriptionID
		}
		ev.FailureReason = firstNonEmpty(e.ErrorDescription, e.ErrorReason)
		mergeNotes(ev.Notes, e.Notes)
	}
	if p.Refund != nil {
		e := p.Refund.Entity
		ev.RefundID = e.ID
		ev.Amount, ev.Currency = e.Amount, e.Currency
		if e.PaymentID != "" {
			ev.PaymentID = e.PaymentID
		}
		mergeNotes(ev.Notes, e.Notes)
	}

	ev.EntityID = entityID(ev)
	return ev, nil
}

func entityID(ev adapter.ProviderEvent) string {
	switch {
	case strings.HasPrefix(ev.Type, "subscription."):
		return firstNonEmpty(ev.SubscriptionID, ev.PaymentID)
	case strings.HasPrefix(ev.Type, "payment_link."):
		return firstNonEmpty(ev.PaymentLinkID, ev.PaymentID)
	case strings.HasPrefix(ev.Type, "refund."):
		return firstNonEmpty(ev.RefundID, ev.PaymentID)
	case strings.HasPrefix(ev.Type, "order."):
		return firstNonEmpty(ev.OrderID, ev.PaymentID)
	default:
		return firstNonEmpty(ev.PaymentID, ev.SubscriptionID, ev.PaymentLinkID)
	}
}

// mergeNotes keeps the first value seen for a key.
func mergeNotes(dst map[string]string, src rzpNotes) {
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

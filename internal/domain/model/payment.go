package model

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"upi-autopay-subscription/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// IsFinal reports statuses that are frozen except for completed -> refunded.
func (s PaymentStatus) IsFinal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusRefunded
}

// PaymentKind is the closed set of metadata variants.
type PaymentKind string

const (
	PaymentKindMandateSetup       PaymentKind = "mandate_setup"
	PaymentKindRecurringCharge    PaymentKind = "recurring_charge"
	PaymentKindManualVerification PaymentKind = "manual_verification"
	PaymentKindAdminAction        PaymentKind = "admin_action"
)

// PaymentMetadata carries the typed fields of each kind plus a free-form diagnostic bag.
type PaymentMetadata struct {
	Kind            PaymentKind       `json:"type" bson:"type"`
	MandateID       string            `json:"mandateId,omitempty" bson:"mandate_id,omitempty"`
	ProviderEventID string            `json:"providerEventId,omitempty" bson:"provider_event_id,omitempty"`
	OrderID         string            `json:"orderId,omitempty" bson:"order_id,omitempty"`
	AdminReason     string            `json:"adminReason,omitempty" bson:"admin_reason,omitempty"`
	Diagnostics     map[string]string `json:"diagnostics,omitempty" bson:"diagnostics,omitempty"`
}

// Payment is an append-only money record.
type Payment struct {
	TransactionID     string
	UserID            string
	ProviderPaymentID string
	Amount            int64
	Currency          string
	Status            PaymentStatus
	Metadata          PaymentMetadata
	ValidatedAt       *time.Time
	RefundedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewTransactionID returns a time-sortable id with a TXN_ prefix.
func NewTransactionID(now time.Time) string {
	return "TXN_" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

// NewCompletedPayment records money already captured by the provider.
func NewCompletedPayment(userID, providerPaymentID string, amount int64, currency string, meta PaymentMetadata, now time.Time) (*Payment, error) {
	if strings.TrimSpace(userID) == "" || amount <= 0 || meta.Kind == "" {
		return nil, domain.ErrInvalidArgument
	}
	if currency == "" {
		currency = "INR"
	}
	validated := now
	return &Payment{
		TransactionID:     NewTransactionID(now),
		UserID:            userID,
		ProviderPaymentID: providerPaymentID,
		Amount:            amount,
		Currency:          currency,
		Status:            PaymentStatusCompleted,
		Metadata:          meta,
		ValidatedAt:       &validated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	cp := *p
	cp.ValidatedAt = cloneTime(p.ValidatedAt)
	cp.RefundedAt = cloneTime(p.RefundedAt)
	if p.Metadata.Diagnostics != nil {
		cp.Metadata.Diagnostics = make(map[string]string, len(p.Metadata.Diagnostics))
		for k, v := range p.Metadata.Diagnostics {
			cp.Metadata.Diagnostics[k] = v
		}
	}
	return &cp
}

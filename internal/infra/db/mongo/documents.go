package mongo

import (
	"time"

	"upi-autopay-subscription/internal/domain/model"
)

const (
	colUsers           = "users"
	colMandates        = "mandates"
	colPayments        = "payments"
	colWebhookEvents   = "webhook_events"
	colReconciliations = "reconciliation_tasks"
)

type userDoc struct {
	ID                 string     `bson:"_id"`
	SubscriptionStatus string     `bson:"subscription_status"`
	SubscriptionExpiry *time.Time `bson:"subscription_expiry,omitempty"`
	HasAutoRenewal     bool       `bson:"has_auto_renewal"`
	LastPaymentDate    *time.Time `bson:"last_payment_date,omitempty"`
	UPIMandateID       string     `bson:"upi_mandate_id,omitempty"`
	TrialEndsAt        *time.Time `bson:"trial_ends_at,omitempty"`
	SecurityRiskLevel  string     `bson:"security_risk_level"`
	DeviceFingerprint  string     `bson:"device_fingerprint,omitempty"`
	BlockedReason      string     `bson:"blocked_reason,omitempty"`
	BlockedAt          *time.Time `bson:"blocked_at,omitempty"`
	CreatedAt          time.Time  `bson:"created_at"`
	UpdatedAt          time.Time  `bson:"updated_at"`
}

func toUserDoc(u *model.User) userDoc {
	return userDoc{
		ID:                 u.ID,
		SubscriptionStatus: string(u.SubscriptionStatus),
		SubscriptionExpiry: u.SubscriptionExpiry,
		HasAutoRenewal:     u.HasAutoRenewal,
		LastPaymentDate:    u.LastPaymentDate,
		UPIMandateID:       u.UPIMandateID,
		TrialEndsAt:        u.TrialEndsAt,
		SecurityRiskLevel:  string(u.SecurityRiskLevel),
		DeviceFingerprint:  u.DeviceFingerprint,
		BlockedReason:      u.BlockedReason,
		BlockedAt:          u.BlockedAt,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

func (d userDoc) model() *model.User {
	return &model.User{
		ID:                 d.ID,
		SubscriptionStatus: model.SubscriptionStatus(d.SubscriptionStatus),
		SubscriptionExpiry: d.SubscriptionExpiry,
		HasAutoRenewal:     d.HasAutoRenewal,
		LastPaymentDate:    d.LastPaymentDate,
		UPIMandateID:       d.UPIMandateID,
		TrialEndsAt:        d.TrialEndsAt,
		SecurityRiskLevel:  model.RiskLevel(d.SecurityRiskLevel),
		DeviceFingerprint:  d.DeviceFingerprint,
		BlockedReason:      d.BlockedReason,
		BlockedAt:          d.BlockedAt,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

// mandateDoc carries an Open flag so a partial unique index can hold one PENDING/ACTIVE
// mandate per user.
type mandateDoc struct {
	ID                     string                `bson:"_id"`
	UserID                 string                `bson:"user_id"`
	UPIID                  string                `bson:"upi_id"`
	MerchantVPA            string                `bson:"merchant_vpa"`
	Amount                 int64                 `bson:"amount"`
	Currency               string                `bson:"currency"`
	Frequency              string                `bson:"frequency"`
	StartDate              time.Time             `bson:"start_date"`
	EndDate                time.Time             `bson:"end_date"`
	Status                 string                `bson:"status"`
	Open                   bool                  `bson:"open"`
	ProviderPaymentLinkID  string                `bson:"provider_payment_link_id,omitempty"`
	ProviderSubscriptionID string                `bson:"provider_subscription_id,omitempty"`
	ApprovalReference      string                `bson:"approval_reference,omitempty"`
	ShortURL               string                `bson:"short_url,omitempty"`
	UPIURL                 string                `bson:"upi_url,omitempty"`
	QRPayload              string                `bson:"qr_payload,omitempty"`
	LastChargedDate        *time.Time            `bson:"last_charged_date,omitempty"`
	NextChargeDate         *time.Time            `bson:"next_charge_date,omitempty"`
	ChargeAttempts         []model.ChargeAttempt `bson:"charge_attempts"`
	LastEventAt            *time.Time            `bson:"last_event_at,omitempty"`
	CancelledAt            *time.Time            `bson:"cancelled_at,omitempty"`
	CancelReason           string                `bson:"cancel_reason,omitempty"`
	CreatedAt              time.Time             `bson:"created_at"`
	UpdatedAt              time.Time             `bson:"updated_at"`
	Version                int64                 `bson:"version"`
}

func toMandateDoc(m *model.Mandate) mandateDoc {
	attempts := m.ChargeAttempts
	if attempts == nil {
		attempts = []model.ChargeAttempt{}
	}
	return mandateDoc{
		ID:                     m.ID,
		UserID:                 m.UserID,
		UPIID:                  m.UPIID,
		MerchantVPA:            m.MerchantVPA,
		Amount:                 m.Amount,
		Currency:               m.Currency,
		Frequency:              string(m.Frequency),
		StartDate:              m.StartDate,
		EndDate:                m.EndDate,
		Status:                 string(m.Status),
		Open:                   m.Status.IsOpen(),
		ProviderPaymentLinkID:  m.ProviderPaymentLinkID,
		ProviderSubscriptionID: m.ProviderSubscriptionID,
		ApprovalReference:      m.ApprovalReference,
		ShortURL:               m.ShortURL,
		UPIURL:                 m.UPIURL,
		QRPayload:              m.QRPayload,
		LastChargedDate:        m.LastChargedDate,
		NextChargeDate:         m.NextChargeDate,
		ChargeAttempts:         attempts,
		LastEventAt:            m.LastEventAt,
		CancelledAt:            m.CancelledAt,
		CancelReason:           m.CancelReason,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
		Version:                m.Version,
	}
}

func (d mandateDoc) model() *model.Mandate {
	m := &model.Mandate{
		ID:                     d.ID,
		UserID:                 d.UserID,
		UPIID:                  d.UPIID,
		MerchantVPA:            d.MerchantVPA,
		Amount:                 d.Amount,
		Currency:               d.Currency,
		Frequency:              model.Frequency(d.Frequency),
		StartDate:              d.StartDate,
		EndDate:                d.EndDate,
		Status:                 model.MandateStatus(d.Status),
		ProviderPaymentLinkID:  d.ProviderPaymentLinkID,
		ProviderSubscriptionID: d.ProviderSubscriptionID,
		ApprovalReference:      d.ApprovalReference,
		ShortURL:               d.ShortURL,
		UPIURL:                 d.UPIURL,
		QRPayload:              d.QRPayload,
		LastChargedDate:        d.LastChargedDate,
		NextChargeDate:         d.NextChargeDate,
		LastEventAt:            d.LastEventAt,
		CancelledAt:            d.CancelledAt,
		CancelReason:           d.CancelReason,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
		Version:                d.Version,
	}
	if len(d.ChargeAttempts) > 0 {
		m.ChargeAttempts = d.ChargeAttempts
	}
	return m
}

type paymentDoc struct {
	ID                string                `bson:"_id"`
	UserID            string                `bson:"user_id"`
	ProviderPaymentID string                `bson:"provider_payment_id,omitempty"`
	Amount            int64                 `bson:"amount"`
	Currency          string                `bson:"currency"`
	Status            string                `bson:"status"`
	Metadata          model.PaymentMetadata `bson:"metadata"`
	ValidatedAt       *time.Time            `bson:"validated_at,omitempty"`
	RefundedAt        *time.Time            `bson:"refunded_at,omitempty"`
	CreatedAt         time.Time             `bson:"created_at"`
	UpdatedAt         time.Time             `bson:"updated_at"`
}

func toPaymentDoc(p *model.Payment) paymentDoc {
	return paymentDoc{
		ID:                p.TransactionID,
		UserID:            p.UserID,
		ProviderPaymentID: p.ProviderPaymentID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Status:            string(p.Status),
		Metadata:          p.Metadata,
		ValidatedAt:       p.ValidatedAt,
		RefundedAt:        p.RefundedAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func (d paymentDoc) model() *model.Payment {
	return &model.Payment{
		TransactionID:     d.ID,
		UserID:            d.UserID,
		ProviderPaymentID: d.ProviderPaymentID,
		Amount:            d.Amount,
		Currency:          d.Currency,
		Status:            model.PaymentStatus(d.Status),
		Metadata:          d.Metadata,
		ValidatedAt:       d.ValidatedAt,
		RefundedAt:        d.RefundedAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

type webhookEventDoc struct {
	Key        string    `bson:"_id"`
	Event      string    `bson:"event"`
	EntityID   string    `bson:"entity_id,omitempty"`
	EventAt    time.Time `bson:"event_at"`
	ReceivedAt time.Time `bson:"received_at"`
}

type reconciliationDoc struct {
	ID                     string    `bson:"_id"`
	Kind                   string    `bson:"kind"`
	MandateID              string    `bson:"mandate_id"`
	ProviderSubscriptionID string    `bson:"provider_subscription_id,omitempty"`
	Status                 string    `bson:"status"`
	Attempts               int       `bson:"attempts"`
	LastError              string    `bson:"last_error,omitempty"`
	CreatedAt              time.Time `bson:"created_at"`
	UpdatedAt              time.Time `bson:"updated_at"`
}

func (d reconciliationDoc) model() *model.ReconciliationTask {
	return &model.ReconciliationTask{
		ID:                     d.ID,
		Kind:                   model.ReconciliationKind(d.Kind),
		MandateID:              d.MandateID,
		ProviderSubscriptionID: d.ProviderSubscriptionID,
		Status:                 model.ReconciliationStatus(d.Status),
		Attempts:               d.Attempts,
		LastError:              d.LastError,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
	}
}

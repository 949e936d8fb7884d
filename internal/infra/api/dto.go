package api

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"upi-autopay-subscription/internal/domain/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("upi", func(fl validator.FieldLevel) bool {
		return model.ValidateUPIID(fl.Field().String()) == nil
	})
	return v
}

type createMandateRequest struct {
	UserID    string `json:"userId" validate:"required,max=128"`
	UserUPIID string `json:"userUpiId" validate:"required,upi"`
	Amount    int64  `json:"amount" validate:"omitempty,min=1,max=100000"` // rupees
}

type cancelMandateRequest struct {
	UserID    string `json:"userId" validate:"required"`
	MandateID string `json:"mandateId" validate:"required"`
	Reason    string `json:"reason" validate:"max=256"`
}

type verifyPaymentRequest struct {
	UserID    string `json:"userId" validate:"required"`
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required,hexadecimal"`
	Amount    int64  `json:"amount" validate:"omitempty,min=1"` // rupees
}

type registerUserRequest struct {
	UserID            string `json:"userId" validate:"required,max=128"`
	DeviceFingerprint string `json:"deviceFingerprint" validate:"max=256"`
}

type blockRequest struct {
	Reason string `json:"reason" validate:"max=256"`
}

type blockDeviceRequest struct {
	DeviceFingerprint string `json:"deviceFingerprint" validate:"required"`
	Reason            string `json:"reason" validate:"max=256"`
}

type mandateView struct {
	MandateID       string                `json:"mandateId"`
	UserID          string                `json:"userId"`
	UPIID           string                `json:"upiId"`
	Amount          float64               `json:"amount"`
	Currency        string                `json:"currency"`
	Frequency       model.Frequency       `json:"frequency"`
	Status          model.MandateStatus   `json:"status"`
	StartDate       time.Time             `json:"startDate"`
	EndDate         time.Time             `json:"endDate"`
	NextChargeDate  *time.Time            `json:"nextChargeDate,omitempty"`
	LastChargedDate *time.Time            `json:"lastChargedDate,omitempty"`
	ShortURL        string                `json:"shortUrl,omitempty"`
	UPIURL          string                `json:"upiUrl,omitempty"`
	QRCode          string                `json:"qrCode,omitempty"`
	ChargeAttempts  []model.ChargeAttempt `json:"chargeAttempts"`
	CancelledAt     *time.Time            `json:"cancelledAt,omitempty"`
	CancelReason    string                `json:"cancelReason,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
}

func newMandateView(m *model.Mandate) mandateView {
	attempts := m.ChargeAttempts
	if attempts == nil {
		attempts = []model.ChargeAttempt{}
	}
	return mandateView{
		MandateID:       m.ID,
		UserID:          m.UserID,
		UPIID:           m.UPIID,
		Amount:          float64(m.Amount) / 100,
		Currency:        m.Currency,
		Frequency:       m.Frequency,
		Status:          m.Status,
		StartDate:       m.StartDate,
		EndDate:         m.EndDate,
		NextChargeDate:  m.NextChargeDate,
		LastChargedDate: m.LastChargedDate,
		ShortURL:        m.ShortURL,
		UPIURL:          m.UPIURL,
		QRCode:          m.QRPayload,
		ChargeAttempts:  attempts,
		CancelledAt:     m.CancelledAt,
		CancelReason:    m.CancelReason,
		CreatedAt:       m.CreatedAt,
	}
}

type paymentView struct {
	TransactionID     string                `json:"transactionId"`
	UserID            string                `json:"userId"`
	ProviderPaymentID string                `json:"razorpayPaymentId,omitempty"`
	Amount            float64               `json:"amount"`
	Currency          string                `json:"currency"`
	Status            model.PaymentStatus   `json:"status"`
	Metadata          model.PaymentMetadata `json:"metadata"`
	ValidatedAt       *time.Time            `json:"validatedAt,omitempty"`
	RefundedAt        *time.Time            `json:"refundedAt,omitempty"`
	CreatedAt         time.Time             `json:"createdAt"`
}

func newPaymentView(p *model.Payment) paymentView {
	return paymentView{
		TransactionID:     p.TransactionID,
		UserID:            p.UserID,
		ProviderPaymentID: p.ProviderPaymentID,
		Amount:            float64(p.Amount) / 100,
		Currency:          p.Currency,
		Status:            p.Status,
		Metadata:          p.Metadata,
		ValidatedAt:       p.ValidatedAt,
		RefundedAt:        p.RefundedAt,
		CreatedAt:         p.CreatedAt,
	}
}

type userView struct {
	UserID             string                   `json:"userId"`
	SubscriptionStatus model.SubscriptionStatus `json:"subscriptionStatus"`
	SubscriptionExpiry *time.Time               `json:"subscriptionExpiry,omitempty"`
	HasAutoRenewal     bool                     `json:"hasAutoRenewal"`
	TrialEndsAt        *time.Time               `json:"trialEndsAt,omitempty"`
	UPIMandateID       string                   `json:"upiMandateId,omitempty"`
	SecurityRiskLevel  model.RiskLevel          `json:"securityRiskLevel"`
	BlockedReason      string                   `json:"blockedReason,omitempty"`
	BlockedAt          *time.Time               `json:"blockedAt,omitempty"`
	CreatedAt          time.Time                `json:"createdAt"`
}

func newUserView(u *model.User) userView {
	return userView{
		UserID:             u.ID,
		SubscriptionStatus: u.SubscriptionStatus,
		SubscriptionExpiry: u.SubscriptionExpiry,
		HasAutoRenewal:     u.HasAutoRenewal,
		TrialEndsAt:        u.TrialEndsAt,
		UPIMandateID:       u.UPIMandateID,
		SecurityRiskLevel:  u.SecurityRiskLevel,
		BlockedReason:      u.BlockedReason,
		BlockedAt:          u.BlockedAt,
		CreatedAt:          u.CreatedAt,
	}
}

type countView struct {
	Affected int `json:"affected"`
}

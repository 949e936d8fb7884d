package model

import "time"

// WebhookEvent is the idempotency record of an applied provider webhook.
type WebhookEvent struct {
	Key        string
	Event      string
	EntityID   string
	EventAt    time.Time
	ReceivedAt time.Time
}

type ReconciliationKind string

const (
	ReconciliationProviderCancel ReconciliationKind = "provider_cancel"
)

type ReconciliationStatus string

const (
	ReconciliationPending   ReconciliationStatus = "pending"
	ReconciliationDone      ReconciliationStatus = "done"
	ReconciliationAbandoned ReconciliationStatus = "abandoned"
)

// ReconciliationTask tracks a provider-side effect that failed after the local transition
// already committed, so remote state can be brought in line later.
type ReconciliationTask struct {
	ID                     string
	Kind                   ReconciliationKind
	MandateID              string
	ProviderSubscriptionID string
	Status                 ReconciliationStatus
	Attempts               int
	LastError              string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

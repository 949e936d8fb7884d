package adapter

import "time"

// MandateURI describes a UPI mandate intent (upi://mandate?...).
type MandateURI struct {
	PayeeVPA      string
	PayeeName     string
	Amount        int64 // minor units
	OrgID         string
	MandateID     string
	ValidityStart time.Time
	ValidityEnd   time.Time
}

// QRGenerator renders mandate intents and short URLs as scannable codes.
type QRGenerator interface {
	MandateURI(p MandateURI) string
	// PNGDataURL encodes content as a base64 PNG data URL.
	PNGDataURL(content string) (string, error)
}

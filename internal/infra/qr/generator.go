// Package qr builds UPI mandate intents and renders them as PNG QR codes.
package qr

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	skipqrcode "github.com/skip2/go-qrcode"

	"upi-autopay-subscription/internal/domain/ports/adapter"
)

var (
	ErrEmptyContent = errors.New("qr content cannot be empty")
	ErrEncode       = errors.New("failed to generate QR code")
)

const (
	defaultSize = 256
	dateLayout  = "20060102"
)

var _ adapter.QRGenerator = (*Generator)(nil)

type Generator struct {
	size  int
	level skipqrcode.RecoveryLevel
}

// New returns a generator producing size×size PNGs; size <= 0 uses 256.
func New(size int) *Generator {
	if size <= 0 {
		size = defaultSize
	}
	return &Generator{size: size, level: skipqrcode.Medium}
}

// MandateURI renders upi://mandate with a monthly recurrence. Empty optional fields are omitted.
func (g *Generator) MandateURI(p adapter.MandateURI) string {
	params := []struct{ k, v string }{
		{"pa", p.PayeeVPA},
		{"pn", p.PayeeName},
		{"am", FormatAmount(p.Amount)},
		{"cu", "INR"},
		{"mode", "02"},
		{"purpose", "14"},
		{"orgid", p.OrgID},
		{"mid", p.MandateID},
		{"tr", p.MandateID},
		{"validitystart", formatDate(p.ValidityStart)},
		{"validityend", formatDate(p.ValidityEnd)},
		{"frequency", "30"},
		{"recurring", "1"},
	}

	var b strings.Builder
	b.WriteString("upi://mandate?")
	first := true
	for _, kv := range params {
		if kv.v == "" {
			continue
		}
		if !first {
			b.WriteByte('&')
		}
		first = false
		b.WriteString(kv.k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv.v))
	}
	return b.String()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// FormatAmount prints minor units as a decimal rupee amount, e.g. 900 -> "9.00".
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

func (g *Generator) PNG(content string) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	png, err := skipqrcode.Encode(content, g.level, g.size)
	if err != nil {
		return nil, errors.Join(ErrEncode, err)
	}
	return png, nil
}

func (g *Generator) PNGDataURL(content string) (string, error) {
	png, err := g.PNG(content)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

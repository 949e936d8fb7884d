package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/infra/logging"
	"upi-autopay-subscription/internal/usecase"
)

const (
	maxBodyBytes    = 64 << 10
	maxWebhookBytes = 1 << 20
	historyLimit    = 10
)

// decode reads a JSON body into dst and runs the validator.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", domain.ErrInvalidArgument)
		}
		return fmt.Errorf("%w: malformed JSON", domain.ErrInvalidArgument)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "validation failed"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "upi":
		return "invalid UPI id"
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

func (s *Server) handleCreateMandate(w http.ResponseWriter, r *http.Request) {
	var req createMandateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	ctx := logging.WithUserID(r.Context(), req.UserID)

	m, err := s.deps.Mandates.Create(ctx, req.UserID, req.UserUPIID, req.Amount*100)
	if err != nil {
		logging.With(ctx, s.log).Info().Err(err).
			Str("upi_id", logging.Redact(req.UserUPIID, s.opts.Dev)).
			Msg("create mandate rejected")
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	ok(w, http.StatusCreated, newMandateView(m), "mandate created, complete the approval in your UPI app")
}

type mandateStatusView struct {
	HasMandate bool `json:"hasMandate"`
	*mandateView
}

func (s *Server) handleMandateStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := pathString(r, "userId")
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	m, err := s.deps.Mandates.Current(r.Context(), userID)
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	if m == nil {
		ok(w, http.StatusOK, mandateStatusView{HasMandate: false}, "")
		return
	}
	v := newMandateView(m)
	v.QRCode = ""
	ok(w, http.StatusOK, mandateStatusView{HasMandate: true, mandateView: &v}, "")
}

func (s *Server) handleCancelMandate(w http.ResponseWriter, r *http.Request) {
	var req cancelMandateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "user_requested"
	}
	ctx := logging.WithMandateID(logging.WithUserID(r.Context(), req.UserID), req.MandateID)

	n, err := s.deps.Mandates.Cancel(ctx, req.UserID, req.MandateID, reason, "user")
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	msg := "mandate cancelled"
	if n == 0 {
		msg = "mandate already closed"
	}
	ok(w, http.StatusOK, countView{Affected: n}, msg)
}

func (s *Server) handleMandateHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := pathString(r, "userId")
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	ms, err := s.deps.Mandates.History(r.Context(), userID, historyLimit)
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	out := make([]mandateView, 0, len(ms))
	for _, m := range ms {
		v := newMandateView(m)
		v.QRCode = ""
		out = append(out, v)
	}
	ok(w, http.StatusOK, out, "")
}

// handleCallback is the browser redirect after the payment link checkout. It always answers
// with a redirect to the frontend popup.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cb := usecase.CheckoutCallback{
		PaymentLinkID: q.Get("razorpay_payment_link_id"),
		ReferenceID:   q.Get("razorpay_payment_link_reference_id"),
		Status:        q.Get("razorpay_payment_link_status"),
		PaymentID:     q.Get("razorpay_payment_id"),
		Signature:     q.Get("razorpay_signature"),
	}

	outcome := "success"
	m, err := s.deps.Mandates.HandleCallback(r.Context(), cb)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrCheckoutNotPaid):
		outcome = "failed"
	default:
		outcome = "error"
		logging.With(r.Context(), s.log).Warn().Err(err).
			Str("link_id", cb.PaymentLinkID).
			Msg("checkout callback failed")
	}

	target := strings.TrimRight(s.opts.FrontendURL, "/") + "/popup.html?mandate=" + outcome
	if m != nil {
		target += "&mandateId=" + url.QueryEscape(m.ID)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		fail(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	res, err := s.deps.Webhooks.Handle(r.Context(), body,
		r.Header.Get("x-razorpay-signature"),
		r.Header.Get("x-razorpay-event-id"))
	if err != nil {
		writeError(w, s.log, err, http.StatusUnauthorized)
		return
	}
	ok(w, http.StatusOK, map[string]string{
		"event":   res.Event,
		"outcome": string(res.Outcome),
	}, res.Note)
}

func (s *Server) handleProcessCharges(w http.ResponseWriter, r *http.Request) {
	if s.deps.Billing == nil {
		fail(w, http.StatusServiceUnavailable, "charging is disabled")
		return
	}
	report, err := s.deps.Billing.RunTick(r.Context())
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	ok(w, http.StatusOK, report, "")
}

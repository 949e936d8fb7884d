package api

import (
	"net/http"

	"upi-autopay-subscription/internal/domain/model"
	"upi-autopay-subscription/internal/infra/logging"
	"upi-autopay-subscription/internal/usecase"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	u, created, err := s.deps.Users.Register(logging.WithUserID(r.Context(), req.UserID), req.UserID, req.DeviceFingerprint)
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(w, status, newUserView(u), "")
}

func (s *Server) handleEntitlement(w http.ResponseWriter, r *http.Request) {
	userID, err := pathString(r, "userId")
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	e, err := s.deps.Users.Entitlement(r.Context(), userID)
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	ok(w, http.StatusOK, e, "")
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	p, err := s.deps.Payments.VerifyCheckout(logging.WithUserID(r.Context(), req.UserID), usecase.CheckoutVerification{
		UserID:    req.UserID,
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		Amount:    req.Amount * 100,
	})
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	ok(w, http.StatusOK, newPaymentView(p), "payment verified")
}

func (s *Server) handlePaymentHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := pathString(r, "userId")
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	ps, err := s.deps.Payments.History(r.Context(), userID, limit)
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	out := make([]paymentView, 0, len(ps))
	for _, p := range ps {
		out = append(out, newPaymentView(p))
	}
	ok(w, http.StatusOK, out, "")
}

// ===== admin =====

func (s *Server) adminCount(w http.ResponseWriter, n int, err error) {
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	msg := ""
	if n == 0 {
		msg = "nothing to change"
	}
	ok(w, http.StatusOK, countView{Affected: n}, msg)
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	users, err := s.deps.Admin.ListUsers(r.Context(), usecase.UserFilter{
		Risk:   model.RiskLevel(q.Get("risk")),
		Status: model.SubscriptionStatus(q.Get("status")),
	}, limit)
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, newUserView(u))
	}
	ok(w, http.StatusOK, out, "")
}

func (s *Server) handleAdminBlockUser(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			writeError(w, s.log, err, http.StatusBadRequest)
			return
		}
	}
	userID, err := pathString(r, "userId")
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	n, err := s.deps.Admin.BlockUser(r.Context(), userID, req.Reason)
	s.adminCount(w, n, err)
}

func (s *Server) handleAdminUnblockUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathString(r, "userId")
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	n, err := s.deps.Admin.UnblockUser(r.Context(), userID)
	s.adminCount(w, n, err)
}

func (s *Server) handleAdminBlockDevice(w http.ResponseWriter, r *http.Request) {
	var req blockDeviceRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	n, err := s.deps.Admin.BlockDevice(r.Context(), req.DeviceFingerprint, req.Reason)
	s.adminCount(w, n, err)
}

func (s *Server) handleAdminCancelMandate(w http.ResponseWriter, r *http.Request) {
	var req cancelMandateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	n, err := s.deps.Admin.CancelMandate(r.Context(), req.UserID, req.MandateID)
	s.adminCount(w, n, err)
}

func (s *Server) handleAdminPurgeMandate(w http.ResponseWriter, r *http.Request) {
	mandateID, err := pathString(r, "mandateId")
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	n, err := s.deps.Admin.PurgeMandate(r.Context(), mandateID)
	s.adminCount(w, n, err)
}

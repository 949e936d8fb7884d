package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"upi-autopay-subscription/internal/domain"
	"upi-autopay-subscription/internal/domain/model"
)

type envelope struct {
	Success  bool   `json:"success"`
	Data     any    `json:"data,omitempty"`
	Message  string `json:"message,omitempty"`
	Existing any    `json:"existing,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, status int, data any, msg string) {
	writeJSON(w, status, envelope{Success: true, Data: data, Message: msg})
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

// writeError maps the domain taxonomy to a status. authStatus is used for signature failures
// (401 on webhooks, 400 on checkout verification).
func writeError(w http.ResponseWriter, log *zerolog.Logger, err error, authStatus int) {
	var conflict *domain.ConflictError
	switch {
	case errors.As(err, &conflict):
		body := envelope{Success: false, Message: conflict.Error()}
		if m, isMandate := conflict.Existing.(*model.Mandate); isMandate {
			body.Existing = newMandateView(m)
		} else if conflict.Existing != nil {
			body.Existing = conflict.Existing
		}
		writeJSON(w, http.StatusBadRequest, body)
	case errors.Is(err, domain.ErrAuthFailure):
		// never say what was wrong with the signature
		fail(w, authStatus, "signature verification failed")
	case errors.Is(err, domain.ErrInvalidArgument):
		fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		fail(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrUserBlocked):
		fail(w, http.StatusForbidden, "user is blocked")
	case errors.Is(err, domain.ErrFatal):
		log.Error().Err(err).Msg("invariant violation surfaced to client")
		fail(w, http.StatusInternalServerError, "internal error")
	case errors.Is(err, domain.ErrProvider):
		fail(w, http.StatusBadGateway, "payment provider error")
	case errors.Is(err, domain.ErrTransient):
		// stale records and lock contention
		fail(w, http.StatusServiceUnavailable, "temporarily unavailable, retry")
	default:
		log.Error().Err(err).Msg("unhandled error")
		fail(w, http.StatusInternalServerError, "internal error")
	}
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"havenledger-server/src/models"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNotConnected),
		errors.Is(err, models.ErrAlreadyExists),
		errors.Is(err, models.ErrAlreadyAssigned),
		errors.Is(err, models.ErrIdempotencyMismatch),
		errors.Is(err, models.ErrTokenAlreadyUsed):
		return http.StatusConflict
	case errors.Is(err, models.ErrComplianceViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrGatewayUnavailable),
		errors.Is(err, models.ErrEventTargetMissing):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrGatewayRejected):
		return http.StatusPaymentRequired
	}
	return http.StatusInternalServerError
}

// writeError logs err and answers with its mapped status. Client errors carry
// the error text; provider rejections carry the provider's message as given;
// server errors carry only msg.
func writeError(w http.ResponseWriter, err error, msg string) {
	status := statusFor(err)
	body := msg
	switch {
	case status == http.StatusPaymentRequired:
		var ge *models.GatewayError
		if errors.As(err, &ge) && ge.Message != "" {
			body = ge.Message
		}
		zap.S().Warnf("%s: %v", msg, err)
	case status >= 500:
		zap.S().Errorf("ERROR: %s: %v", msg, err)
	default:
		body = err.Error()
		zap.S().Infof("%s: %v", msg, err)
	}
	http.Error(w, body, status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Errorf("ERROR: Failed to encode response: %v", err)
	}
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"havenledger-server/src/middleware"
	"havenledger-server/src/models"
	"havenledger-server/src/util"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type PayerGateway interface {
	CreateCustomer(ctx context.Context, orgID, payerID int64) (string, error)
	CreateSetupIntent(ctx context.Context, orgID, payerID int64) (string, error)
	ListPaymentMethods(ctx context.Context, orgID, payerID int64) ([]models.PaymentMethod, error)
	DetachPaymentMethod(ctx context.Context, orgID, payerID int64, paymentMethodID string) error
}

type PayerProfiles interface {
	UpsertPayerProfile(ctx context.Context, p *models.PayerProfile) (*models.PayerProfile, error)
}

func validateProfile(p *models.PayerProfile) error {
	if p.Email != "" && !util.ValidateEmail(p.Email) {
		return errors.New("invalid email")
	}
	if p.Phone != "" && !util.ValidatePhone(p.Phone) {
		return errors.New("invalid phone")
	}
	return nil
}

// CreateCustomer registers the payer with the gateway. A request body, when
// present, first refreshes the payer's contact details.
func CreateCustomer(gw PayerGateway, profiles PayerProfiles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgID(r.Context())
		payerID, ok := idParam(r, "payer_id")
		if !ok {
			http.Error(w, "invalid payer id", http.StatusBadRequest)
			return
		}

		var req struct {
			Name  string `json:"name"`
			Email string `json:"email"`
			Phone string `json:"phone"`
		}
		err := json.NewDecoder(r.Body).Decode(&req)
		switch {
		case errors.Is(err, io.EOF):
		case err != nil:
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		default:
			profile := &models.PayerProfile{OrgID: orgID, PayerID: payerID, Name: req.Name, Email: req.Email, Phone: req.Phone}
			if err := validateProfile(profile); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if _, err := profiles.UpsertPayerProfile(r.Context(), profile); err != nil {
				writeError(w, err, "Failed to save payer profile")
				return
			}
		}

		customerID, err := gw.CreateCustomer(r.Context(), orgID, payerID)
		if err != nil {
			writeError(w, err, "Failed to create customer")
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"customer_id": customerID})
	}
}

func CreateSetupIntent(gw PayerGateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payerID, ok := idParam(r, "payer_id")
		if !ok {
			http.Error(w, "invalid payer id", http.StatusBadRequest)
			return
		}

		secret, err := gw.CreateSetupIntent(r.Context(), middleware.OrgID(r.Context()), payerID)
		if err != nil {
			writeError(w, err, "Failed to create setup intent")
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"client_secret": secret})
	}
}

func ListPaymentMethods(gw PayerGateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payerID, ok := idParam(r, "payer_id")
		if !ok {
			http.Error(w, "invalid payer id", http.StatusBadRequest)
			return
		}

		methods, err := gw.ListPaymentMethods(r.Context(), middleware.OrgID(r.Context()), payerID)
		if err != nil {
			writeError(w, err, "Failed to list payment methods")
			return
		}
		if methods == nil {
			methods = []models.PaymentMethod{}
		}

		writeJSON(w, http.StatusOK, methods)
	}
}

func DetachPaymentMethod(gw PayerGateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgID(r.Context())
		payerID, ok := idParam(r, "payer_id")
		if !ok {
			http.Error(w, "invalid payer id", http.StatusBadRequest)
			return
		}
		methodID := chi.URLParam(r, "payment_method_id")

		if err := gw.DetachPaymentMethod(r.Context(), orgID, payerID, methodID); err != nil {
			writeError(w, err, "Failed to detach payment method")
			return
		}

		zap.S().Infow("Detached payment method", "org_id", orgID, "payer_id", payerID)
		w.WriteHeader(http.StatusNoContent)
	}
}

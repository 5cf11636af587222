package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"havenledger-server/src/gateway"
	"havenledger-server/src/middleware"
	"havenledger-server/src/models"
	"havenledger-server/src/money"

	"go.uber.org/zap"
)

type FeeSettings interface {
	GetFeeConfig(ctx context.Context, orgID int64) (*models.FeeConfig, error)
	SetFeeMode(ctx context.Context, orgID int64, mode models.FeeMode) (*models.FeeConfig, error)
	Quote(ctx context.Context, orgID, amountMinorUnits int64) (money.Quote, error)
}

type ConnectedAccounts interface {
	CreateConnectedAccount(ctx context.Context, orgID int64, email string) (*models.OrgPaymentConfig, error)
	CreateOnboardingLink(ctx context.Context, orgID int64) (string, error)
	CreateDashboardLink(ctx context.Context, orgID int64) (string, error)
	SyncAccountStatus(ctx context.Context, orgID int64) (*models.OrgPaymentConfig, error)
}

type PaymentCreator interface {
	ChargeSavedMethod(ctx context.Context, req gateway.PaymentRequest) (*models.PaymentIntentRecord, error)
	CreateCheckoutSession(ctx context.Context, req gateway.PaymentRequest) (*models.PaymentIntentRecord, error)
}

type PaymentLister interface {
	ListPaymentIntents(ctx context.Context, orgID, payerID int64) ([]models.PaymentIntentRecord, error)
}

type GatewayEventApplier interface {
	ApplyGatewayEvent(ctx context.Context, event models.GatewayEvent) (bool, error)
}

// IdempotencyKeyHeader carries the caller's attempt nonce. The same nonce with
// the same payment fields replays the original payment.
const IdempotencyKeyHeader = "Idempotency-Key"

func GetFeeConfig(settings FeeSettings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgID(r.Context())

		cfg, err := settings.GetFeeConfig(r.Context(), orgID)
		if err != nil {
			writeError(w, err, "Failed to load fee configuration")
			return
		}

		writeJSON(w, http.StatusOK, cfg)
	}
}

func UpdateFeeMode(settings FeeSettings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgID(r.Context())

		var req struct {
			FeeMode models.FeeMode `json:"fee_mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			zap.S().Infof("Failed to decode fee mode request body for org %d: %v", orgID, err)
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		cfg, err := settings.SetFeeMode(r.Context(), orgID, req.FeeMode)
		if err != nil {
			writeError(w, err, "Failed to update fee mode")
			return
		}

		zap.S().Infow("Updated fee mode", "org_id", orgID, "fee_mode", cfg.FeeMode)
		writeJSON(w, http.StatusOK, cfg)
	}
}

func QuotePayment(settings FeeSettings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgID(r.Context())
		amount, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
		if err != nil {
			http.Error(w, "invalid amount", http.StatusBadRequest)
			return
		}

		quote, err := settings.Quote(r.Context(), orgID, amount)
		if err != nil {
			writeError(w, err, "Failed to quote payment")
			return
		}

		writeJSON(w, http.StatusOK, quote)
	}
}

func CreateConnectedAccount(accounts ConnectedAccounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgID(r.Context())

		var req struct {
			Email string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			zap.S().Infof("Failed to decode connected account request body for org %d: %v", orgID, err)
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		cfg, err := accounts.CreateConnectedAccount(r.Context(), orgID, req.Email)
		if err != nil {
			writeError(w, err, "Failed to create connected account")
			return
		}

		writeJSON(w, http.StatusCreated, cfg)
	}
}

func CreateOnboardingLink(accounts ConnectedAccounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url, err := accounts.CreateOnboardingLink(r.Context(), middleware.OrgID(r.Context()))
		if err != nil {
			writeError(w, err, "Failed to create onboarding link")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"url": url})
	}
}

func CreateDashboardLink(accounts ConnectedAccounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url, err := accounts.CreateDashboardLink(r.Context(), middleware.OrgID(r.Context()))
		if err != nil {
			writeError(w, err, "Failed to create dashboard link")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"url": url})
	}
}

func RefreshAccountStatus(accounts ConnectedAccounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := accounts.SyncAccountStatus(r.Context(), middleware.OrgID(r.Context()))
		if err != nil {
			writeError(w, err, "Failed to refresh account status")
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

type paymentBody struct {
	PayerID          int64          `json:"payer_id"`
	InvoiceIDs       []int64        `json:"invoice_ids"`
	AmountMinorUnits int64          `json:"amount_minor_units"`
	FeeMode          models.FeeMode `json:"fee_mode"`
	PaymentMethodID  string         `json:"payment_method_id"`
	AttemptNonce     string         `json:"attempt_nonce"`
	Description      string         `json:"description"`
}

// paymentRequest decodes the body. The Idempotency-Key header wins over a body
// nonce; with neither, identical requests map to the same payment.
func paymentRequest(r *http.Request) (gateway.PaymentRequest, error) {
	var body paymentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return gateway.PaymentRequest{}, err
	}
	nonce := r.Header.Get(IdempotencyKeyHeader)
	if nonce == "" {
		nonce = body.AttemptNonce
	}
	return gateway.PaymentRequest{
		OrgID:            middleware.OrgID(r.Context()),
		PayerID:          body.PayerID,
		InvoiceIDs:       body.InvoiceIDs,
		AmountMinorUnits: body.AmountMinorUnits,
		FeeMode:          body.FeeMode,
		PaymentMethodID:  body.PaymentMethodID,
		AttemptNonce:     nonce,
		Description:      body.Description,
	}, nil
}

func ChargeSavedMethod(payments PaymentCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := paymentRequest(r)
		if err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		rec, err := payments.ChargeSavedMethod(r.Context(), req)
		if err != nil {
			writeError(w, err, "Failed to create charge")
			return
		}

		writeJSON(w, http.StatusCreated, rec)
	}
}

func CreateCheckoutSession(payments PaymentCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := paymentRequest(r)
		if err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		rec, err := payments.CreateCheckoutSession(r.Context(), req)
		if err != nil {
			writeError(w, err, "Failed to create checkout session")
			return
		}

		writeJSON(w, http.StatusCreated, rec)
	}
}

func ListPayments(store PaymentLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgID(r.Context())
		var payerID int64
		if s := r.URL.Query().Get("payer_id"); s != "" {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil || id <= 0 {
				http.Error(w, "invalid payer id", http.StatusBadRequest)
				return
			}
			payerID = id
		}

		intents, err := store.ListPaymentIntents(r.Context(), orgID, payerID)
		if err != nil {
			writeError(w, err, "Failed to list payments")
			return
		}
		if intents == nil {
			intents = []models.PaymentIntentRecord{}
		}

		writeJSON(w, http.StatusOK, intents)
	}
}

// StripeWebhook verifies and applies a payment provider event. Failures to apply
// answer 500 so the provider redelivers; duplicates answer 200.
func StripeWebhook(secret string, events GatewayEventApplier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		event, err := gateway.ParseEvent(payload, r.Header.Get("Stripe-Signature"), secret)
		if err != nil {
			zap.S().Warnf("Rejected Stripe webhook: %v", err)
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}

		applied, err := events.ApplyGatewayEvent(r.Context(), event)
		if err != nil {
			writeError(w, err, "Failed to apply gateway event")
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"applied": applied})
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"havenledger-server/src/middleware"
	"havenledger-server/src/models"
	"havenledger-server/src/services"
	"havenledger-server/src/util"

	"go.uber.org/zap"
)

type BankLinker interface {
	CreateLinkToken(ctx context.Context, orgID int64) (string, error)
	ExchangePublicToken(ctx context.Context, orgID int64, publicToken string) (*models.BankConnection, error)
	RemoveConnection(ctx context.Context, orgID, connectionID int64) error
	FetchAccounts(ctx context.Context, orgID, connectionID int64) ([]models.BankAccount, error)
}

type ConnectionLister interface {
	ListBankConnections(ctx context.Context, orgID int64) ([]models.BankConnection, error)
}

type TransactionSyncer interface {
	SyncTransactions(ctx context.Context, orgID, connectionID int64) (*services.SyncResult, error)
}

type WebhookVerifier interface {
	Verify(ctx context.Context, body []byte, token string) error
}

type BankWebhookHandler interface {
	HandleBankWebhook(ctx context.Context, hook services.BankWebhook) (bool, error)
}

const maxWebhookBody = 1 << 20

func CreateLinkToken(bank BankLinker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgID(r.Context())

		linkToken, err := bank.CreateLinkToken(r.Context(), orgID)
		if err != nil {
			writeError(w, err, "Failed to create link token")
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"link_token": linkToken})
	}
}

func ExchangePublicToken(bank BankLinker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgID(r.Context())

		var req struct {
			PublicToken string `json:"public_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			zap.S().Infof("Failed to decode exchange public token request body: %v", err)
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		conn, err := bank.ExchangePublicToken(r.Context(), orgID, req.PublicToken)
		if err != nil {
			writeError(w, err, "Failed to exchange public token")
			return
		}

		zap.S().Infow("Exchanged public token", "org_id", orgID, "connection_id", conn.ID)
		writeJSON(w, http.StatusCreated, conn)
	}
}

func ListConnections(store ConnectionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgID(r.Context())

		conns, err := store.ListBankConnections(r.Context(), orgID)
		if err != nil {
			writeError(w, err, "Failed to retrieve bank connections")
			return
		}
		if conns == nil {
			conns = []models.BankConnection{}
		}

		writeJSON(w, http.StatusOK, conns)
	}
}

func GetConnectionAccounts(bank BankLinker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgID(r.Context())
		connectionID, ok := idParam(r, "connection_id")
		if !ok {
			http.Error(w, "invalid connection id", http.StatusBadRequest)
			return
		}

		accounts, err := bank.FetchAccounts(r.Context(), orgID, connectionID)
		if err != nil {
			writeError(w, err, "Failed to fetch accounts")
			return
		}

		writeJSON(w, http.StatusOK, accounts)
	}
}

func SyncConnection(syncer TransactionSyncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgID(r.Context())
		connectionID, ok := idParam(r, "connection_id")
		if !ok {
			http.Error(w, "invalid connection id", http.StatusBadRequest)
			return
		}

		result, err := syncer.SyncTransactions(r.Context(), orgID, connectionID)
		if err != nil && result != nil && result.Partial {
			zap.S().Warnw("Partial sync", "org_id", orgID, "connection_id", connectionID, "error", err)
			writeJSON(w, http.StatusBadGateway, result)
			return
		}
		if err != nil {
			writeError(w, err, "Failed to sync transactions")
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func RemoveConnection(bank BankLinker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgID(r.Context())
		connectionID, ok := idParam(r, "connection_id")
		if !ok {
			http.Error(w, "invalid connection id", http.StatusBadRequest)
			return
		}

		if err := bank.RemoveConnection(r.Context(), orgID, connectionID); err != nil {
			writeError(w, err, "Failed to remove bank connection")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// PlaidWebhook verifies the signed webhook and hands it to the event service.
// Sync failures are logged but still acknowledged; the next webhook or a
// manual sync picks up from the stored cursor.
func PlaidWebhook(verifier WebhookVerifier, events BankWebhookHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		if err := verifier.Verify(r.Context(), body, r.Header.Get(util.VerificationHeader)); err != nil {
			zap.S().Warnf("Rejected Plaid webhook: %v", err)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		var hook services.BankWebhook
		if err := json.Unmarshal(body, &hook); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		if _, err := events.HandleBankWebhook(r.Context(), hook); err != nil {
			if errors.Is(err, models.ErrInvalidInput) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			zap.S().Errorf("ERROR: Plaid webhook %s/%s for item %s failed: %v", hook.WebhookType, hook.WebhookCode, hook.ItemID, err)
		}

		w.WriteHeader(http.StatusOK)
	}
}

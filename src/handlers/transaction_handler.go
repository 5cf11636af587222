package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"havenledger-server/src/middleware"
	"havenledger-server/src/models"
	"havenledger-server/src/services"

	"go.uber.org/zap"
)

type TransactionAssigner interface {
	AutoAssign(ctx context.Context, orgID, transactionID, houseID int64) (*services.AssignResult, error)
	Ignore(ctx context.Context, orgID, transactionID int64) error
	ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.BankTransaction, error)
}

// transactionFilter reads listing filters from the query string. Unparseable
// numbers are rejected rather than ignored.
func transactionFilter(r *http.Request, orgID int64) (models.TransactionFilter, bool) {
	q := r.URL.Query()
	filter := models.TransactionFilter{OrgID: orgID}

	if s := q.Get("status"); s != "" {
		filter.Status = models.TransactionStatus(s)
		if !filter.Status.Valid() {
			return filter, false
		}
	}
	if s := q.Get("needs_review"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return filter, false
		}
		filter.NeedsReview = &v
	}
	if s := q.Get("include_removed"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return filter, false
		}
		filter.IncludeRemoved = v
	}

	ints := map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset}
	for name, dst := range ints {
		if s := q.Get(name); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 0 {
				return filter, false
			}
			*dst = v
		}
	}
	if s := q.Get("connection_id"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v <= 0 {
			return filter, false
		}
		filter.ConnectionID = v
	}
	return filter, true
}

func ListBankTransactions(assigner TransactionAssigner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgID(r.Context())
		filter, ok := transactionFilter(r, orgID)
		if !ok {
			http.Error(w, "invalid query parameters", http.StatusBadRequest)
			return
		}

		txns, err := assigner.ListTransactions(r.Context(), filter)
		if err != nil {
			writeError(w, err, "Failed to list transactions")
			return
		}
		if txns == nil {
			txns = []models.BankTransaction{}
		}

		writeJSON(w, http.StatusOK, txns)
	}
}

func AssignTransaction(assigner TransactionAssigner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgID(r.Context())
		transactionID, ok := idParam(r, "transaction_id")
		if !ok {
			http.Error(w, "invalid transaction id", http.StatusBadRequest)
			return
		}

		var req struct {
			HouseID int64 `json:"house_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			zap.S().Infof("Failed to decode assign request body for org %d: %v", orgID, err)
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		result, err := assigner.AutoAssign(r.Context(), orgID, transactionID, req.HouseID)
		if err != nil {
			writeError(w, err, "Failed to assign transaction")
			return
		}

		writeJSON(w, http.StatusCreated, result)
	}
}

func IgnoreTransaction(assigner TransactionAssigner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgID(r.Context())
		transactionID, ok := idParam(r, "transaction_id")
		if !ok {
			http.Error(w, "invalid transaction id", http.StatusBadRequest)
			return
		}

		if err := assigner.Ignore(r.Context(), orgID, transactionID); err != nil {
			writeError(w, err, "Failed to ignore transaction")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

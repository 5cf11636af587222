package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"havenledger-server/src/middleware"
	"havenledger-server/src/models"
)

type ExpenseStore interface {
	ListExpenseCategories(ctx context.Context, orgID int64) ([]models.ExpenseCategory, error)
	CreateExpenseCategory(ctx context.Context, orgID int64, name string) (*models.ExpenseCategory, error)
	ListExpenses(ctx context.Context, orgID, houseID int64) ([]models.ExpenseRecord, error)
}

func ListExpenseCategories(store ExpenseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := store.ListExpenseCategories(r.Context(), middleware.OrgID(r.Context()))
		if err != nil {
			writeError(w, err, "Failed to list categories")
			return
		}
		if categories == nil {
			categories = []models.ExpenseCategory{}
		}
		writeJSON(w, http.StatusOK, categories)
	}
}

func CreateExpenseCategory(store ExpenseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		category, err := store.CreateExpenseCategory(r.Context(), middleware.OrgID(r.Context()), strings.TrimSpace(req.Name))
		if err != nil {
			writeError(w, err, "Failed to create category")
			return
		}
		writeJSON(w, http.StatusCreated, category)
	}
}

func ListExpenses(store ExpenseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var houseID int64
		if s := r.URL.Query().Get("house_id"); s != "" {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil || id <= 0 {
				http.Error(w, "invalid house id", http.StatusBadRequest)
				return
			}
			houseID = id
		}

		expenses, err := store.ListExpenses(r.Context(), middleware.OrgID(r.Context()), houseID)
		if err != nil {
			writeError(w, err, "Failed to list expenses")
			return
		}
		if expenses == nil {
			expenses = []models.ExpenseRecord{}
		}
		writeJSON(w, http.StatusOK, expenses)
	}
}

package services

import (
	"context"
	"errors"
	"testing"

	"havenledger-server/src/models"
)

func seedTransaction(t *testing.T, store *memStore, ext string, amount int64, merchant string, tags ...string) int64 {
	t.Helper()
	txn := &models.BankTransaction{
		OrgID:                 1,
		ConnectionID:          10,
		ExternalTransactionID: ext,
		AmountMinorUnits:      amount,
		MerchantName:          merchant,
		RawCategoryTags:       tags,
		Status:                models.TransactionStatusUnassigned,
	}
	if _, err := store.InsertBankTransaction(context.Background(), txn); err != nil {
		t.Fatal(err)
	}
	return store.txns[txnKey{10, ext}].ID
}

func TestAutoAssign(t *testing.T) {
	store := newMemStore()
	store.categories[1] = []models.ExpenseCategory{
		{ID: 100, OrgID: 1, Name: "Utilities"},
		{ID: 101, OrgID: 1, Name: "Repairs & Maintenance"},
		{ID: 102, OrgID: 1, Name: "Groceries and Food"},
	}
	svc := NewAssignService(store, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name         string
		merchant     string
		tags         []string
		wantCategory int64
		wantName     string
	}{
		{name: "exact match", merchant: "Home Depot #123", wantCategory: 101, wantName: "Repairs & Maintenance"},
		{name: "substring match from tags", merchant: "Unknown Store", tags: []string{"Food and Drink"}, wantCategory: 102, wantName: "Groceries and Food"},
		{name: "no suggestion", merchant: "Totally Unknown"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := seedTransaction(t, store, tt.name, int64(1000+i), tt.merchant, tt.tags...)

			res, err := svc.AutoAssign(ctx, 1, id, 7)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantCategory == 0 {
				if res.CategoryID != nil || res.Expense.CategoryID != nil {
					t.Errorf("expected no category, got %+v", res)
				}
			} else {
				if res.CategoryID == nil || *res.CategoryID != tt.wantCategory || res.CategoryName != tt.wantName {
					t.Errorf("category = %v %q, want %d %q", res.CategoryID, res.CategoryName, tt.wantCategory, tt.wantName)
				}
			}
			if res.Expense.HouseID != 7 || res.Expense.AmountMinorUnits != int64(1000+i) {
				t.Errorf("expense = %+v", res.Expense)
			}
			stored := store.byID(id)
			if stored.Status != models.TransactionStatusAssigned || stored.LinkedExpenseID == nil || *stored.LinkedExpenseID != res.Expense.ID {
				t.Errorf("transaction not linked: %+v", stored)
			}
		})
	}
}

func TestAutoAssign_TwiceCreatesOneExpense(t *testing.T) {
	store := newMemStore()
	svc := NewAssignService(store, nil, nil)
	ctx := context.Background()
	id := seedTransaction(t, store, "t1", 4599, "Shell")

	if _, err := svc.AutoAssign(ctx, 1, id, 7); err != nil {
		t.Fatal(err)
	}
	_, err := svc.AutoAssign(ctx, 1, id, 8)
	if !errors.Is(err, models.ErrAlreadyAssigned) {
		t.Fatalf("expected ErrAlreadyAssigned, got %v", err)
	}
	if len(store.expenses) != 1 {
		t.Errorf("expenses = %d, want 1", len(store.expenses))
	}
	if *store.byID(id).AssignedHouseID != 7 {
		t.Error("second assignment overwrote the house")
	}
}

func TestAutoAssign_Rejections(t *testing.T) {
	store := newMemStore()
	svc := NewAssignService(store, nil, nil)
	ctx := context.Background()
	id := seedTransaction(t, store, "t1", 100, "Shell")

	if _, err := svc.AutoAssign(ctx, 1, id, 0); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("missing house: got %v", err)
	}
	if _, err := svc.AutoAssign(ctx, 2, id, 7); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("other org: got %v", err)
	}

	if err := svc.Ignore(ctx, 1, id); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AutoAssign(ctx, 1, id, 7); !errors.Is(err, models.ErrAlreadyAssigned) {
		t.Errorf("ignored: got %v", err)
	}

	removed := seedTransaction(t, store, "t2", 100, "Shell")
	if _, err := store.RemoveBankTransaction(ctx, 1, 10, "t2"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AutoAssign(ctx, 1, removed, 7); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("removed: got %v", err)
	}
}

func TestListTransactions(t *testing.T) {
	store := newMemStore()
	svc := NewAssignService(store, nil, nil)
	ctx := context.Background()
	seedTransaction(t, store, "a", 100, "x")
	b := seedTransaction(t, store, "b", 200, "y")
	if err := svc.Ignore(ctx, 1, b); err != nil {
		t.Fatal(err)
	}

	got, err := svc.ListTransactions(ctx, models.TransactionFilter{OrgID: 1, Status: models.TransactionStatusUnassigned})
	if err != nil {
		t.Fatal(err)
	}
	if ids := externalIDs(got); ids != "a" {
		t.Errorf("unassigned = %q", ids)
	}
	if _, err := svc.ListTransactions(ctx, models.TransactionFilter{OrgID: 1, Status: "bogus"}); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("bad status: got %v", err)
	}
}

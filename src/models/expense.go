package models

import "time"

type ExpenseSource string

const (
	ExpenseSourcePlaid  ExpenseSource = "plaid"
	ExpenseSourceManual ExpenseSource = "manual"
)

type ExpenseCategory struct {
	ID    int64  `json:"id"`
	OrgID int64  `json:"org_id"`
	Name  string `json:"name"`
}

type ExpenseRecord struct {
	ID                    int64         `json:"id"`
	OrgID                 int64         `json:"org_id"`
	HouseID               int64         `json:"house_id"`
	CategoryID            *int64        `json:"category_id"`
	AmountMinorUnits      int64         `json:"amount_minor_units"`
	Merchant              string        `json:"merchant"`
	Date                  time.Time     `json:"date"`
	Source                ExpenseSource `json:"source"`
	ExternalTransactionID string        `json:"external_transaction_id"`
	CreatedAt             time.Time     `json:"created_at"`
}

// Assignment is the input to the atomic transaction-to-expense write.
type Assignment struct {
	OrgID         int64
	TransactionID int64
	HouseID       int64
	CategoryID    *int64
}

package models

import "time"

type TransactionStatus string

const (
	TransactionStatusUnassigned TransactionStatus = "unassigned"
	TransactionStatusAssigned   TransactionStatus = "assigned"
	TransactionStatusIgnored    TransactionStatus = "ignored"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusUnassigned, TransactionStatusAssigned, TransactionStatusIgnored:
		return true
	}
	return false
}

// BankTransaction is an imported expense-side bank transaction. AmountMinorUnits is
// always positive; refunds and credits are never stored.
type BankTransaction struct {
	ID                    int64             `json:"id"`
	OrgID                 int64             `json:"org_id"`
	ConnectionID          int64             `json:"connection_id"`
	ExternalTransactionID string            `json:"external_transaction_id"`
	AmountMinorUnits      int64             `json:"amount_minor_units"`
	MerchantName          string            `json:"merchant_name"`
	RawCategoryTags       []string          `json:"raw_category_tags"`
	Date                  time.Time         `json:"date"`
	Pending               bool              `json:"pending"`
	Status                TransactionStatus `json:"status"`
	AssignedHouseID       *int64            `json:"assigned_house_id"`
	AssignedCategoryID    *int64            `json:"assigned_category_id"`
	LinkedExpenseID       *int64            `json:"linked_expense_id"`
	NeedsReview           bool              `json:"needs_review"`
	RemovedAt             *time.Time        `json:"removed_at,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
}

// RemovalOutcome reports what happened to a transaction the provider removed.
type RemovalOutcome int

const (
	RemovalNotFound RemovalOutcome = iota
	RemovalSoftDeleted
	RemovalFlaggedForReview
)

// TransactionFilter narrows a transaction listing. Zero values match everything;
// removed transactions are only listed when IncludeRemoved is set.
type TransactionFilter struct {
	OrgID          int64
	ConnectionID   int64
	Status         TransactionStatus
	NeedsReview    *bool
	IncludeRemoved bool
	Limit          int
	Offset         int
}

package services

import (
	"context"
	"fmt"

	"havenledger-server/src/classifier"
	"havenledger-server/src/models"

	"go.uber.org/zap"
)

type Classifier interface {
	Classify(merchant string, tags []string) (string, bool)
}

type AssignStore interface {
	GetBankTransaction(ctx context.Context, orgID, transactionID int64) (*models.BankTransaction, error)
	ListBankTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.BankTransaction, error)
	ListExpenseCategories(ctx context.Context, orgID int64) ([]models.ExpenseCategory, error)
	AssignTransaction(ctx context.Context, a models.Assignment) (*models.ExpenseRecord, error)
	IgnoreTransaction(ctx context.Context, orgID, transactionID int64) error
}

// AssignResult describes the expense created for an assigned transaction.
type AssignResult struct {
	TransactionID     int64                 `json:"transaction_id"`
	Expense           *models.ExpenseRecord `json:"expense"`
	SuggestedCategory string                `json:"suggested_category,omitempty"`
	CategoryID        *int64                `json:"category_id"`
	CategoryName      string                `json:"category_name,omitempty"`
}

type AssignService struct {
	store      AssignStore
	classifier Classifier
	logger     *zap.Logger
}

func NewAssignService(store AssignStore, c Classifier, logger *zap.Logger) *AssignService {
	if c == nil {
		c = classifier.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignService{store: store, classifier: c, logger: logger}
}

// AutoAssign turns an unassigned transaction into an expense for the given house.
// The category is suggested by the classifier and matched against the
// organization's own categories; no match leaves the expense uncategorized.
func (s *AssignService) AutoAssign(ctx context.Context, orgID, transactionID, houseID int64) (*AssignResult, error) {
	if houseID <= 0 {
		return nil, fmt.Errorf("%w: house_id is required", models.ErrInvalidInput)
	}

	txn, err := s.store.GetBankTransaction(ctx, orgID, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.RemovedAt != nil {
		return nil, fmt.Errorf("transaction %d: %w", transactionID, models.ErrNotFound)
	}
	if txn.Status != models.TransactionStatusUnassigned {
		return nil, fmt.Errorf("transaction %d: %w", transactionID, models.ErrAlreadyAssigned)
	}

	result := &AssignResult{TransactionID: txn.ID}
	if suggested, ok := s.classifier.Classify(txn.MerchantName, txn.RawCategoryTags); ok {
		result.SuggestedCategory = suggested
		categories, err := s.store.ListExpenseCategories(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("list categories: %w", err)
		}
		if c := classifier.ResolveCategory(suggested, categories); c != nil {
			id := c.ID
			result.CategoryID = &id
			result.CategoryName = c.Name
		}
	}

	expense, err := s.store.AssignTransaction(ctx, models.Assignment{
		OrgID:         orgID,
		TransactionID: txn.ID,
		HouseID:       houseID,
		CategoryID:    result.CategoryID,
	})
	if err != nil {
		return nil, err
	}
	result.Expense = expense

	s.logger.Info("transaction assigned",
		zap.Int64("org_id", orgID),
		zap.Int64("transaction_id", txn.ID),
		zap.Int64("expense_id", expense.ID),
		zap.String("category", result.CategoryName),
	)
	return result, nil
}

func (s *AssignService) Ignore(ctx context.Context, orgID, transactionID int64) error {
	return s.store.IgnoreTransaction(ctx, orgID, transactionID)
}

func (s *AssignService) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.BankTransaction, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrInvalidInput, filter.Status)
	}
	return s.store.ListBankTransactions(ctx, filter)
}

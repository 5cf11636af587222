package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"havenledger-server/src/models"

	"github.com/jackc/pgx/v5"
)

const bankTransactionColumns = `id, org_id, connection_id, external_transaction_id, amount, merchant_name,
	raw_category_tags, date, pending, status, assigned_house_id, assigned_category_id, linked_expense_id,
	needs_review, removed_at, created_at`

func scanBankTransaction(row pgx.Row) (*models.BankTransaction, error) {
	var t models.BankTransaction
	err := row.Scan(&t.ID, &t.OrgID, &t.ConnectionID, &t.ExternalTransactionID, &t.AmountMinorUnits, &t.MerchantName,
		&t.RawCategoryTags, &t.Date, &t.Pending, &t.Status, &t.AssignedHouseID, &t.AssignedCategoryID, &t.LinkedExpenseID,
		&t.NeedsReview, &t.RemovedAt, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// InsertBankTransaction stores a synced transaction. It reports false when the
// provider id is already stored for the connection.
func (s *Store) InsertBankTransaction(ctx context.Context, txn *models.BankTransaction) (bool, error) {
	query := `
		INSERT INTO bank_transactions (org_id, connection_id, external_transaction_id, amount, merchant_name,
			raw_category_tags, date, pending, status)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6::text[], '{}'), $7, $8, 'unassigned')
		ON CONFLICT (org_id, connection_id, external_transaction_id) DO NOTHING
	`
	tag, err := s.pool.Exec(ctx, query,
		txn.OrgID, txn.ConnectionID, txn.ExternalTransactionID, txn.AmountMinorUnits, txn.MerchantName,
		txn.RawCategoryTags, txn.Date, txn.Pending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateBankTransaction refreshes the provider fields of a stored transaction.
// An assigned transaction whose amount changes is flagged for review; its
// expense is left alone.
func (s *Store) UpdateBankTransaction(ctx context.Context, txn *models.BankTransaction) (bool, error) {
	query := `
		UPDATE bank_transactions SET
			needs_review = needs_review OR (status = 'assigned' AND amount <> $1),
			amount = $1,
			merchant_name = $2,
			raw_category_tags = COALESCE($3::text[], '{}'),
			date = $4,
			pending = $5
		WHERE org_id = $6 AND connection_id = $7 AND external_transaction_id = $8
	`
	tag, err := s.pool.Exec(ctx, query,
		txn.AmountMinorUnits, txn.MerchantName, txn.RawCategoryTags, txn.Date, txn.Pending,
		txn.OrgID, txn.ConnectionID, txn.ExternalTransactionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RemoveBankTransaction handles a provider removal. Unassigned rows are soft
// deleted; assigned rows keep their expense and are flagged for review.
func (s *Store) RemoveBankTransaction(ctx context.Context, orgID, connectionID int64, externalID string) (models.RemovalOutcome, error) {
	query := `
		UPDATE bank_transactions SET
			needs_review = CASE WHEN status = 'assigned' THEN TRUE ELSE needs_review END,
			removed_at = CASE WHEN status = 'assigned' THEN removed_at ELSE COALESCE(removed_at, NOW()) END
		WHERE org_id = $1 AND connection_id = $2 AND external_transaction_id = $3
		RETURNING status
	`
	var status models.TransactionStatus
	err := s.pool.QueryRow(ctx, query, orgID, connectionID, externalID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RemovalNotFound, nil
	}
	if err != nil {
		return models.RemovalNotFound, err
	}
	if status == models.TransactionStatusAssigned {
		return models.RemovalFlaggedForReview, nil
	}
	return models.RemovalSoftDeleted, nil
}

func getBankTransaction(ctx context.Context, q Querier, orgID, transactionID int64, forUpdate bool) (*models.BankTransaction, error) {
	query := `SELECT ` + bankTransactionColumns + ` FROM bank_transactions WHERE id = $1 AND org_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	t, err := scanBankTransaction(q.QueryRow(ctx, query, transactionID, orgID))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("transaction %d", transactionID))
	}
	return t, nil
}

func (s *Store) GetBankTransaction(ctx context.Context, orgID, transactionID int64) (*models.BankTransaction, error) {
	return getBankTransaction(ctx, s.pool, orgID, transactionID, false)
}

func (s *Store) ListBankTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.BankTransaction, error) {
	where := []string{"org_id = $1"}
	args := []any{filter.OrgID}
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.ConnectionID != 0 {
		add("connection_id = $%d", filter.ConnectionID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.NeedsReview != nil {
		add("needs_review = $%d", *filter.NeedsReview)
	}
	if !filter.IncludeRemoved {
		where = append(where, "removed_at IS NULL")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)

	query := `SELECT ` + bankTransactionColumns + ` FROM bank_transactions WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(` ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []models.BankTransaction
	for rows.Next() {
		t, err := scanBankTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

// IgnoreTransaction marks an unassigned transaction as not an expense.
func (s *Store) IgnoreTransaction(ctx context.Context, orgID, transactionID int64) error {
	query := `
		UPDATE bank_transactions SET status = 'ignored'
		WHERE id = $1 AND org_id = $2 AND status = 'unassigned' AND removed_at IS NULL
	`
	tag, err := s.pool.Exec(ctx, query, transactionID, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetBankTransaction(ctx, orgID, transactionID); err != nil {
			return err
		}
		return fmt.Errorf("transaction %d: %w", transactionID, models.ErrAlreadyAssigned)
	}
	return nil
}

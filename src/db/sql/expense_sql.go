package db

import (
	"context"
	"fmt"

	cache "havenledger-server/src/db"
	"havenledger-server/src/models"

	"github.com/jackc/pgx/v5"
)

func (s *Store) ListExpenseCategories(ctx context.Context, orgID int64) ([]models.ExpenseCategory, error) {
	key := cache.OrgKey(cache.CategoryGroup, orgID)
	if v, ok := s.cache.Get(key); ok {
		return append([]models.ExpenseCategory(nil), v.([]models.ExpenseCategory)...), nil
	}

	query := `SELECT id, org_id, name FROM expense_categories WHERE org_id = $1 ORDER BY id`
	rows, err := s.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []models.ExpenseCategory
	for rows.Next() {
		var c models.ExpenseCategory
		if err := rows.Scan(&c.ID, &c.OrgID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.cache.Set(cache.CategoryGroup, key, append([]models.ExpenseCategory(nil), categories...))
	return categories, nil
}

func (s *Store) CreateExpenseCategory(ctx context.Context, orgID int64, name string) (*models.ExpenseCategory, error) {
	query := `
		INSERT INTO expense_categories (org_id, name)
		VALUES ($1, $2)
		RETURNING id, org_id, name
	`
	var c models.ExpenseCategory
	err := s.pool.QueryRow(ctx, query, orgID, name).Scan(&c.ID, &c.OrgID, &c.Name)
	if isUniqueViolation(err) {
		return nil, models.ErrAlreadyExists
	}
	if err != nil {
		return nil, err
	}
	s.cache.Del(cache.CategoryGroup, cache.OrgKey(cache.CategoryGroup, orgID))
	return &c, nil
}

// AssignTransaction creates the expense for a transaction and links it, in one
// database transaction. The row is locked first so two concurrent assignments
// cannot both see it unassigned.
func (s *Store) AssignTransaction(ctx context.Context, a models.Assignment) (*models.ExpenseRecord, error) {
	var expense models.ExpenseRecord
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		txn, err := getBankTransaction(ctx, tx, a.OrgID, a.TransactionID, true)
		if err != nil {
			return err
		}
		if txn.RemovedAt != nil {
			return fmt.Errorf("transaction %d: %w", a.TransactionID, models.ErrNotFound)
		}
		if txn.Status != models.TransactionStatusUnassigned {
			return fmt.Errorf("transaction %d: %w", a.TransactionID, models.ErrAlreadyAssigned)
		}

		insert := `
			INSERT INTO expenses (org_id, house_id, category_id, amount, merchant, date, source, external_transaction_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, org_id, house_id, category_id, amount, merchant, date, source, external_transaction_id, created_at
		`
		err = tx.QueryRow(ctx, insert,
			a.OrgID, a.HouseID, a.CategoryID, txn.AmountMinorUnits, txn.MerchantName, txn.Date,
			models.ExpenseSourcePlaid, txn.ExternalTransactionID,
		).Scan(&expense.ID, &expense.OrgID, &expense.HouseID, &expense.CategoryID, &expense.AmountMinorUnits,
			&expense.Merchant, &expense.Date, &expense.Source, &expense.ExternalTransactionID, &expense.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}

		update := `
			UPDATE bank_transactions
			SET status = 'assigned', assigned_house_id = $1, assigned_category_id = $2, linked_expense_id = $3
			WHERE id = $4 AND status = 'unassigned'
		`
		tag, err := tx.Exec(ctx, update, a.HouseID, a.CategoryID, expense.ID, txn.ID)
		if err != nil {
			return fmt.Errorf("link transaction: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("transaction %d: %w", a.TransactionID, models.ErrAlreadyAssigned)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

func (s *Store) ListExpenses(ctx context.Context, orgID, houseID int64) ([]models.ExpenseRecord, error) {
	query := `
		SELECT id, org_id, house_id, category_id, amount, merchant, date, source, COALESCE(external_transaction_id, ''), created_at
		FROM expenses
		WHERE org_id = $1 AND ($2::bigint = 0 OR house_id = $2)
		ORDER BY date DESC, id DESC
	`
	rows, err := s.pool.Query(ctx, query, orgID, houseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expenses []models.ExpenseRecord
	for rows.Next() {
		var e models.ExpenseRecord
		err := rows.Scan(&e.ID, &e.OrgID, &e.HouseID, &e.CategoryID, &e.AmountMinorUnits, &e.Merchant, &e.Date,
			&e.Source, &e.ExternalTransactionID, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

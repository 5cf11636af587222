package db

import (
	"context"
	"time"

	"havenledger-server/src/models"

	"github.com/jackc/pgx/v5"
)

const bankConnectionColumns = `id, org_id, external_item_id, access_token_enc, institution_name, account_mask,
	sync_cursor, last_synced_at, is_active, created_at`

func scanBankConnection(row pgx.Row) (*models.BankConnection, error) {
	var c models.BankConnection
	err := row.Scan(&c.ID, &c.OrgID, &c.ExternalItemID, &c.AccessTokenEnc, &c.InstitutionName, &c.AccountMask,
		&c.Cursor, &c.LastSyncedAt, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func queryBankConnections(ctx context.Context, q Querier, query string, args ...any) ([]models.BankConnection, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []models.BankConnection
	for rows.Next() {
		c, err := scanBankConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *c)
	}
	return conns, rows.Err()
}

// SaveBankConnection stores a newly exchanged item. The access token must
// already be encrypted.
func (s *Store) SaveBankConnection(ctx context.Context, conn *models.BankConnection) (*models.BankConnection, error) {
	query := `
		INSERT INTO bank_connections (org_id, external_item_id, access_token_enc, institution_name, account_mask, sync_cursor)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + bankConnectionColumns

	saved, err := scanBankConnection(s.pool.QueryRow(ctx, query,
		conn.OrgID, conn.ExternalItemID, conn.AccessTokenEnc, conn.InstitutionName, conn.AccountMask, conn.Cursor))
	if isUniqueViolation(err) {
		return nil, models.ErrAlreadyExists
	}
	return saved, err
}

func (s *Store) GetBankConnection(ctx context.Context, orgID, connectionID int64) (*models.BankConnection, error) {
	query := `SELECT ` + bankConnectionColumns + ` FROM bank_connections WHERE id = $1 AND org_id = $2`
	c, err := scanBankConnection(s.pool.QueryRow(ctx, query, connectionID, orgID))
	if err != nil {
		return nil, notFound(err, "bank connection")
	}
	return c, nil
}

// GetBankConnectionByItemID looks up an active connection by provider item id.
// Webhooks carry no organization, so this lookup is not org-scoped.
func (s *Store) GetBankConnectionByItemID(ctx context.Context, itemID string) (*models.BankConnection, error) {
	query := `SELECT ` + bankConnectionColumns + ` FROM bank_connections WHERE external_item_id = $1 AND is_active`
	c, err := scanBankConnection(s.pool.QueryRow(ctx, query, itemID))
	if err != nil {
		return nil, notFound(err, "bank connection")
	}
	return c, nil
}

func (s *Store) ListBankConnections(ctx context.Context, orgID int64) ([]models.BankConnection, error) {
	query := `SELECT ` + bankConnectionColumns + ` FROM bank_connections WHERE org_id = $1 ORDER BY id`
	return queryBankConnections(ctx, s.pool, query, orgID)
}

func (s *Store) ListActiveBankConnections(ctx context.Context, orgID int64) ([]models.BankConnection, error) {
	query := `SELECT ` + bankConnectionColumns + ` FROM bank_connections WHERE org_id = $1 AND is_active ORDER BY id`
	return queryBankConnections(ctx, s.pool, query, orgID)
}

func (s *Store) DeactivateBankConnection(ctx context.Context, orgID, connectionID int64) error {
	query := `UPDATE bank_connections SET is_active = FALSE, access_token_enc = '' WHERE id = $1 AND org_id = $2`
	tag, err := s.pool.Exec(ctx, query, connectionID, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows, "bank connection")
	}
	return nil
}

// UpdateSyncCursor records the cursor after a sync run. A nil syncedAt leaves
// last_synced_at unchanged.
func (s *Store) UpdateSyncCursor(ctx context.Context, connectionID int64, cursor string, syncedAt *time.Time) error {
	query := `
		UPDATE bank_connections
		SET sync_cursor = $1, last_synced_at = COALESCE($2, last_synced_at)
		WHERE id = $3
	`
	_, err := s.pool.Exec(ctx, query, cursor, syncedAt, connectionID)
	return err
}

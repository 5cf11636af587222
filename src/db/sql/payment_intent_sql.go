package db

import (
	"context"
	"errors"
	"fmt"

	"havenledger-server/src/models"

	"github.com/jackc/pgx/v5"
)

const paymentIntentColumns = `id, org_id, payer_id, amount, charge_total, currency, platform_fee, fee_mode,
	connected_account_id, invoice_ids, idempotency_key, external_id, checkout_session_id, checkout_url,
	status, created_at, updated_at`

func scanPaymentIntent(row pgx.Row) (*models.PaymentIntentRecord, error) {
	var p models.PaymentIntentRecord
	err := row.Scan(&p.ID, &p.OrgID, &p.PayerID, &p.AmountMinorUnits, &p.ChargeTotalMinorUnits, &p.Currency,
		&p.PlatformFeeMinorUnits, &p.FeeMode, &p.ConnectedAccountID, &p.InvoiceIDs, &p.IdempotencyKey,
		&p.ExternalID, &p.CheckoutSessionID, &p.CheckoutURL, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePaymentIntent inserts the record, or returns the existing one when the
// idempotency key was already recorded.
func (s *Store) CreatePaymentIntent(ctx context.Context, rec *models.PaymentIntentRecord) (*models.PaymentIntentRecord, error) {
	query := `
		INSERT INTO payment_intents (org_id, payer_id, amount, charge_total, currency, platform_fee, fee_mode,
			connected_account_id, invoice_ids, idempotency_key, external_id, checkout_session_id, checkout_url, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING ` + paymentIntentColumns

	status := rec.Status
	if status == "" {
		status = models.PaymentStatusCreated
	}
	saved, err := scanPaymentIntent(s.pool.QueryRow(ctx, query,
		rec.OrgID, rec.PayerID, rec.AmountMinorUnits, rec.ChargeTotalMinorUnits, rec.Currency,
		rec.PlatformFeeMinorUnits, rec.FeeMode, rec.ConnectedAccountID, rec.InvoiceIDs, rec.IdempotencyKey,
		rec.ExternalID, rec.CheckoutSessionID, rec.CheckoutURL, status,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return s.GetPaymentIntentByIdempotencyKey(ctx, rec.OrgID, rec.IdempotencyKey)
	}
	return saved, err
}

func (s *Store) GetPaymentIntentByIdempotencyKey(ctx context.Context, orgID int64, key string) (*models.PaymentIntentRecord, error) {
	query := `SELECT ` + paymentIntentColumns + ` FROM payment_intents WHERE org_id = $1 AND idempotency_key = $2`
	rec, err := scanPaymentIntent(s.pool.QueryRow(ctx, query, orgID, key))
	if err != nil {
		return nil, notFound(err, "payment intent")
	}
	return rec, nil
}

func (s *Store) ListPaymentIntents(ctx context.Context, orgID, payerID int64) ([]models.PaymentIntentRecord, error) {
	query := `SELECT ` + paymentIntentColumns + ` FROM payment_intents WHERE org_id = $1 AND ($2::bigint = 0 OR payer_id = $2) ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, orgID, payerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []models.PaymentIntentRecord
	for rows.Next() {
		rec, err := scanPaymentIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment intent: %w", err)
		}
		intents = append(intents, *rec)
	}
	return intents, rows.Err()
}

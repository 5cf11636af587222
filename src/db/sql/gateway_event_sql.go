package db

import (
	"context"
	"errors"
	"fmt"

	cache "havenledger-server/src/db"
	"havenledger-server/src/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ApplyGatewayEvent records the event id and applies the event in the same
// transaction, so a redelivered event is a no-op. Succeeded and canceled
// payments never change status again; a failed payment may still succeed.
// A tracked payment event whose record does not exist yet rolls back with
// ErrEventTargetMissing so the provider redelivers it.
func (s *Store) ApplyGatewayEvent(ctx context.Context, event models.GatewayEvent) (bool, error) {
	applied := false
	var touchedOrg int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		record := `
			INSERT INTO gateway_events (event_id, type, object_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (event_id) DO NOTHING
		`
		tag, err := tx.Exec(ctx, record, event.EventID, event.Type, event.ObjectID)
		if err != nil {
			return fmt.Errorf("record event: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		applied = true

		switch event.Type {
		case models.EventPaymentSucceeded, models.EventPaymentFailed, models.EventPaymentCanceled:
			query := `
				UPDATE payment_intents SET status = $1, updated_at = NOW()
				WHERE external_id = $2 AND status NOT IN ('succeeded', 'canceled') AND status <> $1
			`
			var tag pgconn.CommandTag
			tag, err = tx.Exec(ctx, query, event.Status, event.ObjectID)
			if err == nil && tag.RowsAffected() == 0 && event.Tracked {
				err = requirePaymentRecord(ctx, tx, "external_id", event.ObjectID)
			}
		case models.EventCheckoutCompleted, models.EventCheckoutExpired:
			query := `
				UPDATE payment_intents SET
					status = $1,
					external_id = COALESCE(NULLIF($3, ''), external_id),
					updated_at = NOW()
				WHERE checkout_session_id = $2 AND status NOT IN ('succeeded', 'canceled')
			`
			var tag pgconn.CommandTag
			tag, err = tx.Exec(ctx, query, event.Status, event.ObjectID, event.PaymentID)
			if err == nil && tag.RowsAffected() == 0 && event.Tracked {
				err = requirePaymentRecord(ctx, tx, "checkout_session_id", event.ObjectID)
			}
		case models.EventAccountUpdated:
			query := `
				UPDATE org_payment_configs SET
					charges_enabled = $1,
					payouts_enabled = $2,
					onboarding_status = CASE WHEN $1 THEN 'complete' ELSE onboarding_status END,
					updated_at = NOW()
				WHERE connected_account_id = $3
				RETURNING org_id
			`
			err = tx.QueryRow(ctx, query, event.ChargesEnabled, event.PayoutsEnabled, event.AccountID).Scan(&touchedOrg)
			if errors.Is(err, pgx.ErrNoRows) {
				// account belongs to no organization here
				err = nil
			}
		}
		if err != nil {
			return fmt.Errorf("apply %s: %w", event.Type, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if touchedOrg != 0 {
		s.cache.Del(cache.OrgConfigGroup, cache.OrgKey(cache.OrgConfigGroup, touchedOrg))
	}
	return applied, nil
}

// requirePaymentRecord returns ErrEventTargetMissing when no payment intent row
// carries id in column.
func requirePaymentRecord(ctx context.Context, q Querier, column, id string) error {
	query := `SELECT EXISTS (SELECT 1 FROM payment_intents WHERE ` + column + ` = $1)`
	var exists bool
	if err := q.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", models.ErrEventTargetMissing, id)
	}
	return nil
}

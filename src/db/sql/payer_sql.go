package db

import (
	"context"
	"errors"
	"fmt"

	"havenledger-server/src/models"

	"github.com/jackc/pgx/v5"
)

func (s *Store) GetPayerProfile(ctx context.Context, orgID, payerID int64) (*models.PayerProfile, error) {
	query := `
		SELECT id, org_id, payer_id, external_customer_id, name, email, phone, created_at
		FROM payer_profiles WHERE org_id = $1 AND payer_id = $2
	`
	var p models.PayerProfile
	err := s.pool.QueryRow(ctx, query, orgID, payerID).
		Scan(&p.ID, &p.OrgID, &p.PayerID, &p.ExternalCustomerID, &p.Name, &p.Email, &p.Phone, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("payer %d: %w", payerID, models.ErrPayerNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPayerProfile creates or refreshes the contact details of a payer. The
// external customer id is never changed here.
func (s *Store) UpsertPayerProfile(ctx context.Context, p *models.PayerProfile) (*models.PayerProfile, error) {
	query := `
		INSERT INTO payer_profiles (org_id, payer_id, name, email, phone)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (org_id, payer_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone
		RETURNING id, org_id, payer_id, external_customer_id, name, email, phone, created_at
	`
	var out models.PayerProfile
	err := s.pool.QueryRow(ctx, query, p.OrgID, p.PayerID, p.Name, p.Email, p.Phone).
		Scan(&out.ID, &out.OrgID, &out.PayerID, &out.ExternalCustomerID, &out.Name, &out.Email, &out.Phone, &out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SetExternalCustomerID stores the gateway customer id once; a second write fails
// with ErrAlreadyExists.
func (s *Store) SetExternalCustomerID(ctx context.Context, orgID, profileID int64, customerID string) error {
	query := `
		UPDATE payer_profiles SET external_customer_id = $1
		WHERE id = $2 AND org_id = $3 AND external_customer_id IS NULL
	`
	tag, err := s.pool.Exec(ctx, query, customerID, profileID, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payer_profiles WHERE id = $1 AND org_id = $2)`, profileID, orgID).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return models.ErrPayerNotFound
		}
		return models.ErrAlreadyExists
	}
	return nil
}

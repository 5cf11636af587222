package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ClaimIdempotencyKey stores the fingerprint for a new key and returns whatever
// fingerprint the key holds afterwards.
func (s *Store) ClaimIdempotencyKey(ctx context.Context, key, fingerprint string) (string, error) {
	query := `
		WITH ins AS (
			INSERT INTO idempotency_keys (key, fingerprint)
			VALUES ($1, $2)
			ON CONFLICT (key) DO NOTHING
			RETURNING fingerprint
		)
		SELECT fingerprint FROM ins
		UNION ALL
		SELECT fingerprint FROM idempotency_keys WHERE key = $1
		LIMIT 1
	`
	var stored string
	err := s.pool.QueryRow(ctx, query, key, fingerprint).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		// a concurrent claim committed after this statement's snapshot
		err = s.pool.QueryRow(ctx, `SELECT fingerprint FROM idempotency_keys WHERE key = $1`, key).Scan(&stored)
	}
	if err != nil {
		return "", err
	}
	return stored, nil
}

package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS org_payment_configs (
		org_id BIGINT PRIMARY KEY,
		connected_account_id TEXT UNIQUE,
		charges_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		payouts_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		onboarding_status TEXT NOT NULL DEFAULT 'none',
		fee_mode TEXT NOT NULL DEFAULT 'absorb' CHECK (fee_mode IN ('absorb', 'pass_through')),
		platform_fee_percent NUMERIC(6, 3) NOT NULL DEFAULT 2.5,
		platform_fee_fixed BIGINT NOT NULL DEFAULT 30,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS payer_profiles (
		id BIGSERIAL PRIMARY KEY,
		org_id BIGINT NOT NULL,
		payer_id BIGINT NOT NULL,
		external_customer_id TEXT,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (org_id, payer_id)
	);

	CREATE TABLE IF NOT EXISTS idempotency_keys (
		key TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS payment_intents (
		id BIGSERIAL PRIMARY KEY,
		org_id BIGINT NOT NULL,
		payer_id BIGINT NOT NULL,
		amount BIGINT NOT NULL CHECK (amount > 0),
		charge_total BIGINT NOT NULL,
		currency TEXT NOT NULL,
		platform_fee BIGINT NOT NULL,
		fee_mode TEXT NOT NULL,
		connected_account_id TEXT NOT NULL,
		invoice_ids BIGINT[] NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		external_id TEXT,
		checkout_session_id TEXT,
		checkout_url TEXT,
		status TEXT NOT NULL DEFAULT 'created',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS payment_intents_external_id_idx ON payment_intents (external_id);
	CREATE INDEX IF NOT EXISTS payment_intents_checkout_session_idx ON payment_intents (checkout_session_id);

	CREATE TABLE IF NOT EXISTS gateway_events (
		event_id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		object_id TEXT NOT NULL DEFAULT '',
		received_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS bank_connections (
		id BIGSERIAL PRIMARY KEY,
		org_id BIGINT NOT NULL,
		external_item_id TEXT NOT NULL UNIQUE,
		access_token_enc TEXT NOT NULL,
		institution_name TEXT NOT NULL DEFAULT '',
		account_mask TEXT NOT NULL DEFAULT '',
		sync_cursor TEXT,
		last_synced_at TIMESTAMPTZ,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS bank_connections_org_idx ON bank_connections (org_id);

	CREATE TABLE IF NOT EXISTS expense_categories (
		id BIGSERIAL PRIMARY KEY,
		org_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		UNIQUE (org_id, name)
	);

	CREATE TABLE IF NOT EXISTS expenses (
		id BIGSERIAL PRIMARY KEY,
		org_id BIGINT NOT NULL,
		house_id BIGINT NOT NULL,
		category_id BIGINT REFERENCES expense_categories (id),
		amount BIGINT NOT NULL,
		merchant TEXT NOT NULL DEFAULT '',
		date DATE NOT NULL,
		source TEXT NOT NULL,
		external_transaction_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS bank_transactions (
		id BIGSERIAL PRIMARY KEY,
		org_id BIGINT NOT NULL,
		connection_id BIGINT NOT NULL REFERENCES bank_connections (id),
		external_transaction_id TEXT NOT NULL,
		amount BIGINT NOT NULL CHECK (amount > 0),
		merchant_name TEXT NOT NULL DEFAULT '',
		raw_category_tags TEXT[] NOT NULL DEFAULT '{}',
		date DATE NOT NULL,
		pending BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'unassigned',
		assigned_house_id BIGINT,
		assigned_category_id BIGINT,
		linked_expense_id BIGINT REFERENCES expenses (id),
		needs_review BOOLEAN NOT NULL DEFAULT FALSE,
		removed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (org_id, connection_id, external_transaction_id)
	);
	CREATE INDEX IF NOT EXISTS bank_transactions_org_status_idx ON bank_transactions (org_id, status);
`

// legacySettings copies payment settings out of the organizations.settings JSON
// blob, when that table exists, into org_payment_configs. Rows already present
// are left alone so the copy can run on every migrate.
const legacySettings = `
	DO $$
	BEGIN
		IF EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'organizations' AND column_name = 'settings'
		) THEN
			INSERT INTO org_payment_configs (
				org_id, connected_account_id, charges_enabled, payouts_enabled,
				onboarding_status, fee_mode, platform_fee_percent, platform_fee_fixed
			)
			SELECT
				o.id,
				NULLIF(o.settings::jsonb ->> 'stripeAccountId', ''),
				COALESCE((o.settings::jsonb ->> 'stripeChargesEnabled')::boolean, FALSE),
				COALESCE((o.settings::jsonb ->> 'stripePayoutsEnabled')::boolean, FALSE),
				CASE
					WHEN COALESCE((o.settings::jsonb ->> 'stripeChargesEnabled')::boolean, FALSE) THEN 'complete'
					WHEN NULLIF(o.settings::jsonb ->> 'stripeAccountId', '') IS NOT NULL THEN 'pending'
					ELSE 'none'
				END,
				CASE
					WHEN o.settings::jsonb ->> 'feeMode' IN ('absorb', 'pass_through') THEN o.settings::jsonb ->> 'feeMode'
					ELSE 'absorb'
				END,
				COALESCE((o.settings::jsonb ->> 'platformFeePercent')::numeric, 2.5),
				COALESCE((o.settings::jsonb ->> 'platformFeeFixed')::bigint, 30)
			FROM organizations o
			WHERE o.settings IS NOT NULL
				AND (o.settings::jsonb ? 'stripeAccountId' OR o.settings::jsonb ? 'feeMode')
			ON CONFLICT (org_id) DO NOTHING;
		END IF;
	END $$;
`

// Migrate creates the tables this service owns and imports legacy settings.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := pool.Exec(ctx, legacySettings); err != nil {
		return fmt.Errorf("import legacy settings: %w", err)
	}
	return nil
}

// Package idempotency derives deterministic keys for charge-creating gateway calls
// and guards a key against reuse with different parameters.
package idempotency

import (
	"context"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"havenledger-server/src/models"

	"golang.org/x/crypto/blake2b"
)

// DeriveKey returns the same key for the same logical payment attempt. Invoice
// order does not matter; attemptNonce distinguishes an intentional new attempt.
func DeriveKey(orgID, payerID int64, invoiceIDs []int64, amount int64, attemptNonce string) string {
	sorted := slices.Clone(invoiceIDs)
	slices.Sort(sorted)

	invoices := make([]string, len(sorted))
	for i, id := range sorted {
		invoices[i] = strconv.FormatInt(id, 10)
	}

	return "pay_" + digest(
		strconv.FormatInt(orgID, 10),
		strconv.FormatInt(payerID, 10),
		strings.Join(invoices, ","),
		strconv.FormatInt(amount, 10),
		attemptNonce,
	)
}

// Fingerprint hashes the full parameter set sent under a key.
func Fingerprint(parts ...string) string {
	return digest(parts...)
}

func digest(parts ...string) string {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		// length prefix keeps ("ab","c") distinct from ("a","bc")
		h.Write([]byte(strconv.Itoa(len(p))))
		h.Write([]byte{':'})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

type Store interface {
	// ClaimIdempotencyKey stores fingerprint for key if the key is new and returns
	// the fingerprint stored for the key either way.
	ClaimIdempotencyKey(ctx context.Context, key, fingerprint string) (string, error)
}

type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Claim records the first use of key. Reusing key with a different fingerprint
// fails with ErrIdempotencyMismatch.
func (m *Manager) Claim(ctx context.Context, key, fingerprint string) error {
	if key == "" {
		return fmt.Errorf("%w: idempotency key is required", models.ErrInvalidInput)
	}
	stored, err := m.store.ClaimIdempotencyKey(ctx, key, fingerprint)
	if err != nil {
		return fmt.Errorf("claim idempotency key: %w", err)
	}
	if stored != fingerprint {
		return models.ErrIdempotencyMismatch
	}
	return nil
}

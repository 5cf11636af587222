package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"

	"havenledger-server/src/models"
)

func TestDeriveKey(t *testing.T) {
	base := DeriveKey(1, 2, []int64{10, 11, 12}, 12500, "a1")

	tests := []struct {
		name     string
		key      string
		wantSame bool
	}{
		{"same inputs", DeriveKey(1, 2, []int64{10, 11, 12}, 12500, "a1"), true},
		{"invoice order ignored", DeriveKey(1, 2, []int64{12, 10, 11}, 12500, "a1"), true},
		{"different nonce", DeriveKey(1, 2, []int64{10, 11, 12}, 12500, "a2"), false},
		{"different amount", DeriveKey(1, 2, []int64{10, 11, 12}, 12501, "a1"), false},
		{"different payer", DeriveKey(1, 3, []int64{10, 11, 12}, 12500, "a1"), false},
		{"different org", DeriveKey(9, 2, []int64{10, 11, 12}, 12500, "a1"), false},
		{"different invoices", DeriveKey(1, 2, []int64{10, 11}, 12500, "a1"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key == base; got != tt.wantSame {
				t.Errorf("key equality = %v, want %v", got, tt.wantSame)
			}
		})
	}
}

func TestDeriveKey_DoesNotMutateInput(t *testing.T) {
	invoices := []int64{3, 1, 2}
	DeriveKey(1, 1, invoices, 100, "")
	if invoices[0] != 3 || invoices[1] != 1 || invoices[2] != 2 {
		t.Errorf("DeriveKey() reordered caller slice: %v", invoices)
	}
}

func TestFingerprint_LengthPrefixed(t *testing.T) {
	if Fingerprint("ab", "c") == Fingerprint("a", "bc") {
		t.Error("Fingerprint() collided on shifted boundaries")
	}
}

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]string
	err  error
}

func (s *memoryStore) ClaimIdempotencyKey(_ context.Context, key, fingerprint string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.keys[key]; ok {
		return existing, nil
	}
	s.keys[key] = fingerprint
	return fingerprint, nil
}

func TestManager_Claim(t *testing.T) {
	store := &memoryStore{keys: map[string]string{}}
	m := NewManager(store)
	ctx := context.Background()

	if err := m.Claim(ctx, "pay_1", "fp-a"); err != nil {
		t.Fatalf("first Claim() error = %v", err)
	}
	if err := m.Claim(ctx, "pay_1", "fp-a"); err != nil {
		t.Fatalf("replay Claim() error = %v, want nil", err)
	}
	if err := m.Claim(ctx, "pay_1", "fp-b"); !errors.Is(err, models.ErrIdempotencyMismatch) {
		t.Fatalf("mismatched Claim() error = %v, want ErrIdempotencyMismatch", err)
	}
	if err := m.Claim(ctx, "", "fp-a"); err == nil {
		t.Fatal("Claim() with empty key should fail")
	}
}

func TestManager_ClaimStoreError(t *testing.T) {
	storeErr := errors.New("connection reset")
	m := NewManager(&memoryStore{keys: map[string]string{}, err: storeErr})
	if err := m.Claim(context.Background(), "pay_1", "fp"); !errors.Is(err, storeErr) {
		t.Errorf("Claim() error = %v, want wrapped store error", err)
	}
}

package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"havenledger-server/src/banklink"
	"havenledger-server/src/models"
)

type MockFeed struct {
	SyncPageFunc func(ctx context.Context, conn *models.BankConnection, cursor string) (*banklink.SyncPage, error)

	mu      sync.Mutex
	cursors []string
}

func (m *MockFeed) SyncPage(ctx context.Context, conn *models.BankConnection, cursor string) (*banklink.SyncPage, error) {
	m.mu.Lock()
	m.cursors = append(m.cursors, cursor)
	m.mu.Unlock()
	return m.SyncPageFunc(ctx, conn, cursor)
}

// pagedFeed serves a fixed chain of pages keyed by the cursor that requests them.
func pagedFeed(pages map[string]*banklink.SyncPage) *MockFeed {
	return &MockFeed{SyncPageFunc: func(_ context.Context, _ *models.BankConnection, cursor string) (*banklink.SyncPage, error) {
		if p, ok := pages[cursor]; ok {
			return p, nil
		}
		return &banklink.SyncPage{NextCursor: cursor}, nil
	}}
}

type txnKey struct {
	conn int64
	ext  string
}

// memStore is an in-memory store for the sync, assign and event services.
type memStore struct {
	mu           sync.Mutex
	conns        map[int64]*models.BankConnection
	txns         map[txnKey]*models.BankTransaction
	nextTxnID    int64
	categories   map[int64][]models.ExpenseCategory
	expenses     []models.ExpenseRecord
	events       map[string]models.GatewayEvent
	configs      map[int64]*models.OrgPaymentConfig
	cursorWrites int
	failInsertOn string
}

func newMemStore() *memStore {
	return &memStore{
		conns:      map[int64]*models.BankConnection{},
		txns:       map[txnKey]*models.BankTransaction{},
		categories: map[int64][]models.ExpenseCategory{},
		events:     map[string]models.GatewayEvent{},
		configs:    map[int64]*models.OrgPaymentConfig{},
	}
}

func (s *memStore) addConnection(orgID, id int64, itemID string) {
	s.conns[id] = &models.BankConnection{ID: id, OrgID: orgID, ExternalItemID: itemID, IsActive: true}
}

func (s *memStore) GetBankConnection(_ context.Context, orgID, id int64) (*models.BankConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	if !ok || c.OrgID != orgID {
		return nil, models.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) GetBankConnectionByItemID(_ context.Context, itemID string) (*models.BankConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		if c.ExternalItemID == itemID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memStore) ListActiveBankConnections(_ context.Context, orgID int64) ([]models.BankConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BankConnection
	for _, c := range s.conns {
		if c.OrgID == orgID && c.IsActive {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) InsertBankTransaction(_ context.Context, txn *models.BankTransaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsertOn != "" && txn.ExternalTransactionID == s.failInsertOn {
		return false, fmt.Errorf("insert failed")
	}
	k := txnKey{txn.ConnectionID, txn.ExternalTransactionID}
	if _, ok := s.txns[k]; ok {
		return false, nil
	}
	s.nextTxnID++
	cp := *txn
	cp.ID = s.nextTxnID
	s.txns[k] = &cp
	return true, nil
}

func (s *memStore) UpdateBankTransaction(_ context.Context, txn *models.BankTransaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txns[txnKey{txn.ConnectionID, txn.ExternalTransactionID}]
	if !ok {
		return false, nil
	}
	cur.AmountMinorUnits = txn.AmountMinorUnits
	cur.MerchantName = txn.MerchantName
	cur.RawCategoryTags = txn.RawCategoryTags
	cur.Date = txn.Date
	cur.Pending = txn.Pending
	return true, nil
}

func (s *memStore) RemoveBankTransaction(_ context.Context, orgID, connectionID int64, externalID string) (models.RemovalOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txns[txnKey{connectionID, externalID}]
	if !ok || cur.OrgID != orgID {
		return models.RemovalNotFound, nil
	}
	if cur.Status == models.TransactionStatusAssigned {
		cur.NeedsReview = true
		return models.RemovalFlaggedForReview, nil
	}
	now := time.Now()
	cur.RemovedAt = &now
	return models.RemovalSoftDeleted, nil
}

func (s *memStore) UpdateSyncCursor(_ context.Context, connectionID int64, cursor string, syncedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursorWrites++
	c := s.conns[connectionID]
	c.Cursor = &cursor
	if syncedAt != nil {
		c.LastSyncedAt = syncedAt
	}
	return nil
}

func (s *memStore) byID(id int64) *models.BankTransaction {
	for _, t := range s.txns {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (s *memStore) GetBankTransaction(_ context.Context, orgID, id int64) (*models.BankTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.byID(id)
	if t == nil || t.OrgID != orgID {
		return nil, models.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) ListBankTransactions(_ context.Context, f models.TransactionFilter) ([]models.BankTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BankTransaction
	for _, t := range s.txns {
		if t.OrgID != f.OrgID || (f.Status != "" && t.Status != f.Status) {
			continue
		}
		if t.RemovedAt != nil && !f.IncludeRemoved {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ListExpenseCategories(_ context.Context, orgID int64) ([]models.ExpenseCategory, error) {
	return s.categories[orgID], nil
}

func (s *memStore) AssignTransaction(_ context.Context, a models.Assignment) (*models.ExpenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.byID(a.TransactionID)
	if t == nil || t.OrgID != a.OrgID {
		return nil, models.ErrNotFound
	}
	if t.Status != models.TransactionStatusUnassigned {
		return nil, models.ErrAlreadyAssigned
	}
	exp := models.ExpenseRecord{
		ID:                    int64(len(s.expenses) + 1),
		OrgID:                 a.OrgID,
		HouseID:               a.HouseID,
		CategoryID:            a.CategoryID,
		AmountMinorUnits:      t.AmountMinorUnits,
		Merchant:              t.MerchantName,
		Date:                  t.Date,
		Source:                models.ExpenseSourcePlaid,
		ExternalTransactionID: t.ExternalTransactionID,
	}
	s.expenses = append(s.expenses, exp)
	t.Status = models.TransactionStatusAssigned
	t.AssignedHouseID = &a.HouseID
	t.AssignedCategoryID = a.CategoryID
	t.LinkedExpenseID = &exp.ID
	return &exp, nil
}

func (s *memStore) IgnoreTransaction(_ context.Context, orgID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.byID(id)
	if t == nil || t.OrgID != orgID {
		return models.ErrNotFound
	}
	if t.Status != models.TransactionStatusUnassigned {
		return models.ErrAlreadyAssigned
	}
	t.Status = models.TransactionStatusIgnored
	return nil
}

func (s *memStore) ApplyGatewayEvent(_ context.Context, ev models.GatewayEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev.EventID]; ok {
		return false, nil
	}
	s.events[ev.EventID] = ev
	return true, nil
}

func (s *memStore) GetOrgPaymentConfig(_ context.Context, orgID int64) (*models.OrgPaymentConfig, error) {
	if c, ok := s.configs[orgID]; ok {
		cp := *c
		return &cp, nil
	}
	return models.DefaultOrgPaymentConfig(orgID), nil
}

func (s *memStore) UpdateFeeMode(ctx context.Context, orgID int64, mode models.FeeMode) (*models.OrgPaymentConfig, error) {
	cfg, _ := s.GetOrgPaymentConfig(ctx, orgID)
	cfg.FeeMode = mode
	s.configs[orgID] = cfg
	return cfg, nil
}

func raw(id string, amount int64, merchant string, tags ...string) banklink.RawTransaction {
	return banklink.RawTransaction{
		ExternalID:       id,
		AmountMinorUnits: amount,
		MerchantName:     merchant,
		CategoryTags:     tags,
		Date:             time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Currency:         "USD",
	}
}

func externalIDs(txns []models.BankTransaction) string {
	ids := make([]string, len(txns))
	for i, t := range txns {
		ids[i] = t.ExternalTransactionID
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

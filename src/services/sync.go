package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"havenledger-server/src/banklink"
	"havenledger-server/src/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type BankFeed interface {
	SyncPage(ctx context.Context, conn *models.BankConnection, cursor string) (*banklink.SyncPage, error)
}

type SyncStore interface {
	GetBankConnection(ctx context.Context, orgID, connectionID int64) (*models.BankConnection, error)
	GetBankConnectionByItemID(ctx context.Context, itemID string) (*models.BankConnection, error)
	ListActiveBankConnections(ctx context.Context, orgID int64) ([]models.BankConnection, error)
	InsertBankTransaction(ctx context.Context, txn *models.BankTransaction) (bool, error)
	UpdateBankTransaction(ctx context.Context, txn *models.BankTransaction) (bool, error)
	RemoveBankTransaction(ctx context.Context, orgID, connectionID int64, externalID string) (models.RemovalOutcome, error)
	UpdateSyncCursor(ctx context.Context, connectionID int64, cursor string, syncedAt *time.Time) error
}

// SyncResult counts what one sync run did to a connection's transactions.
type SyncResult struct {
	ConnectionID      int64  `json:"connection_id"`
	Added             int    `json:"added"`
	Duplicates        int    `json:"duplicates"`
	Modified          int    `json:"modified"`
	Removed           int    `json:"removed"`
	FlaggedForReview  int    `json:"flagged_for_review"`
	SkippedNonExpense int    `json:"skipped_non_expense"`
	Pages             int    `json:"pages"`
	Partial           bool   `json:"partial"`
	Error             string `json:"error,omitempty"`
	cursor            string
}

const (
	maxPaginationRestarts = 3
	cursorWriteTimeout    = 10 * time.Second
)

type SyncService struct {
	feed        BankFeed
	store       SyncStore
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
	metrics     syncMetrics

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

func NewSyncService(feed BankFeed, store SyncStore, logger *zap.Logger, concurrency int) *SyncService {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		feed:        feed,
		store:       store,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
		metrics:     newSyncMetrics(),
		locks:       make(map[int64]*sync.Mutex),
	}
}

// lock serializes runs against one connection so pages and the cursor are
// never interleaved.
func (s *SyncService) lock(connectionID int64) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[connectionID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[connectionID] = mu
	}
	s.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// SyncTransactions pulls every page of changes since the connection's cursor.
// Rows are written as each page is processed; the cursor is written once at the
// end. If a page fails, the cursor of the last fully applied page is kept and
// the result is marked partial.
func (s *SyncService) SyncTransactions(ctx context.Context, orgID, connectionID int64) (*SyncResult, error) {
	conn, err := s.store.GetBankConnection(ctx, orgID, connectionID)
	if err != nil {
		return nil, err
	}
	if !conn.IsActive {
		return nil, fmt.Errorf("connection %d: %w", connectionID, models.ErrNotFound)
	}

	unlock := s.lock(conn.ID)
	defer unlock()

	// re-read under the lock so a run that just finished is seen
	conn, err = s.store.GetBankConnection(ctx, orgID, connectionID)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, conn)
}

func (s *SyncService) run(ctx context.Context, conn *models.BankConnection) (*SyncResult, error) {
	start := conn.CursorValue()
	result := &SyncResult{ConnectionID: conn.ID, cursor: start}
	log := s.logger.With(zap.Int64("org_id", conn.OrgID), zap.Int64("connection_id", conn.ID))

	cursor := start
	restarts := 0
	var syncErr error
	for {
		page, err := s.feed.SyncPage(ctx, conn, cursor)
		if errors.Is(err, models.ErrSyncMutation) && restarts < maxPaginationRestarts {
			restarts++
			log.Info("transactions changed during pagination, restarting", zap.Int("restart", restarts))
			cursor = start
			result.cursor = start
			continue
		}
		if err != nil {
			syncErr = err
			break
		}
		if err := s.applyPage(ctx, conn, page, result); err != nil {
			syncErr = err
			break
		}
		result.Pages++
		cursor = page.NextCursor
		result.cursor = cursor
		if !page.HasMore {
			break
		}
		if err := ctx.Err(); err != nil {
			syncErr = err
			break
		}
	}

	// the write must land even if the caller has gone away
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cursorWriteTimeout)
	defer cancel()

	var syncedAt *time.Time
	if syncErr == nil {
		now := s.now().UTC()
		syncedAt = &now
	}
	if syncErr == nil || result.cursor != start {
		if err := s.store.UpdateSyncCursor(writeCtx, conn.ID, result.cursor, syncedAt); err != nil {
			log.Error("failed to persist sync cursor", zap.Error(err))
			if syncErr == nil {
				return result, fmt.Errorf("persist sync cursor: %w", err)
			}
		}
	}

	defer s.metrics.record(writeCtx, result)

	if syncErr != nil {
		result.Partial = true
		result.Error = syncErr.Error()
		log.Warn("sync stopped early",
			zap.Int("pages", result.Pages),
			zap.Int("added", result.Added),
			zap.Error(syncErr),
		)
		return result, fmt.Errorf("sync connection %d: %w", conn.ID, syncErr)
	}

	log.Info("sync complete",
		zap.Int("pages", result.Pages),
		zap.Int("added", result.Added),
		zap.Int("modified", result.Modified),
		zap.Int("removed", result.Removed),
		zap.Int("flagged", result.FlaggedForReview),
	)
	return result, nil
}

func (s *SyncService) applyPage(ctx context.Context, conn *models.BankConnection, page *banklink.SyncPage, result *SyncResult) error {
	for _, raw := range page.Added {
		if raw.AmountMinorUnits <= 0 {
			result.SkippedNonExpense++
			continue
		}
		inserted, err := s.store.InsertBankTransaction(ctx, newBankTransaction(conn, raw))
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", raw.ExternalID, err)
		}
		if inserted {
			result.Added++
		} else {
			result.Duplicates++
		}
	}

	for _, raw := range page.Modified {
		// A stored expense that turned into a credit is retired like a removal.
		if raw.AmountMinorUnits <= 0 {
			outcome, err := s.store.RemoveBankTransaction(ctx, conn.OrgID, conn.ID, raw.ExternalID)
			if err != nil {
				return fmt.Errorf("retire modified transaction %s: %w", raw.ExternalID, err)
			}
			s.countRemoval(outcome, result)
			continue
		}
		txn := newBankTransaction(conn, raw)
		updated, err := s.store.UpdateBankTransaction(ctx, txn)
		if err != nil {
			return fmt.Errorf("update transaction %s: %w", raw.ExternalID, err)
		}
		if updated {
			result.Modified++
			continue
		}
		inserted, err := s.store.InsertBankTransaction(ctx, txn)
		if err != nil {
			return fmt.Errorf("insert modified transaction %s: %w", raw.ExternalID, err)
		}
		if inserted {
			result.Added++
		}
	}

	for _, externalID := range page.Removed {
		outcome, err := s.store.RemoveBankTransaction(ctx, conn.OrgID, conn.ID, externalID)
		if err != nil {
			return fmt.Errorf("remove transaction %s: %w", externalID, err)
		}
		if outcome == models.RemovalNotFound {
			continue
		}
		s.countRemoval(outcome, result)
	}
	return nil
}

func (s *SyncService) countRemoval(outcome models.RemovalOutcome, result *SyncResult) {
	switch outcome {
	case models.RemovalSoftDeleted:
		result.Removed++
	case models.RemovalFlaggedForReview:
		result.FlaggedForReview++
	default:
		result.SkippedNonExpense++
	}
}

func newBankTransaction(conn *models.BankConnection, raw banklink.RawTransaction) *models.BankTransaction {
	return &models.BankTransaction{
		OrgID:                 conn.OrgID,
		ConnectionID:          conn.ID,
		ExternalTransactionID: raw.ExternalID,
		AmountMinorUnits:      raw.AmountMinorUnits,
		MerchantName:          raw.MerchantName,
		RawCategoryTags:       raw.CategoryTags,
		Date:                  raw.Date,
		Pending:               raw.Pending,
		Status:                models.TransactionStatusUnassigned,
	}
}

// SyncAll syncs every active connection of the organization, a bounded number
// at a time. One connection failing does not stop the others.
func (s *SyncService) SyncAll(ctx context.Context, orgID int64) ([]*SyncResult, error) {
	conns, err := s.store.ListActiveBankConnections(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	results := make([]*SyncResult, len(conns))
	errs := make([]error, len(conns))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range conns {
		g.Go(func() error {
			results[i], errs[i] = s.SyncTransactions(ctx, orgID, conns[i].ID)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*SyncResult, 0, len(results))
	for i, r := range results {
		if r == nil {
			r = &SyncResult{ConnectionID: conns[i].ID, Partial: true}
			if errs[i] != nil {
				r.Error = errs[i].Error()
			}
		}
		out = append(out, r)
	}
	return out, errors.Join(errs...)
}

// SyncByItemID syncs the connection for a provider item, as named in webhooks.
func (s *SyncService) SyncByItemID(ctx context.Context, itemID string) (*SyncResult, error) {
	conn, err := s.store.GetBankConnectionByItemID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return s.SyncTransactions(ctx, conn.OrgID, conn.ID)
}

package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"havenledger-server/src/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestNotFound(t *testing.T) {
	if err := notFound(pgx.ErrNoRows, "thing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("no rows should map to ErrNotFound, got %v", err)
	}
	other := errors.New("connection reset")
	if err := notFound(other, "thing"); err != other {
		t.Errorf("other errors should pass through, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	if !isUniqueViolation(dup) {
		t.Error("wrapped 23505 should be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation is not a unique violation")
	}
	if isUniqueViolation(nil) {
		t.Error("nil is not a unique violation")
	}
}

type existsRow struct {
	exists bool
	err    error
}

func (r existsRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*bool) = r.exists
	return nil
}

// existsQuerier answers EXISTS lookups from a fixed set of ids.
type existsQuerier struct {
	ids     map[string]bool
	err     error
	queries []string
}

func (q *existsQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("unexpected exec")
}

func (q *existsQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected query")
}

func (q *existsQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.queries = append(q.queries, sql)
	return existsRow{exists: q.ids[args[0].(string)], err: q.err}
}

func TestRequirePaymentRecord(t *testing.T) {
	connErr := errors.New("conn closed")
	tests := []struct {
		name    string
		column  string
		id      string
		err     error
		wantErr error
	}{
		{name: "payment recorded", column: "external_id", id: "pi_1"},
		{name: "payment not recorded yet", column: "external_id", id: "pi_early", wantErr: models.ErrEventTargetMissing},
		{name: "checkout recorded", column: "checkout_session_id", id: "cs_1"},
		{name: "checkout not recorded yet", column: "checkout_session_id", id: "cs_early", wantErr: models.ErrEventTargetMissing},
		{name: "lookup fails", column: "external_id", id: "pi_1", err: connErr, wantErr: connErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &existsQuerier{ids: map[string]bool{"pi_1": true, "cs_1": true}, err: tt.err}
			err := requirePaymentRecord(context.Background(), q, tt.column, tt.id)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(q.queries) != 1 || !strings.Contains(q.queries[0], "WHERE "+tt.column+" = $1") {
				t.Errorf("queries = %v", q.queries)
			}
		})
	}
}

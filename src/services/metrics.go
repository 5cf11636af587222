package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("havenledger/services")

// syncMetrics counts sync outcomes. Instruments come from the global meter
// provider, which is a no-op until telemetry is initialized.
type syncMetrics struct {
	runs         metric.Int64Counter
	transactions metric.Int64Counter
}

func newSyncMetrics() syncMetrics {
	runs, _ := meter.Int64Counter("bank_sync_runs_total",
		metric.WithDescription("Bank sync runs by outcome"))
	transactions, _ := meter.Int64Counter("bank_sync_transactions_total",
		metric.WithDescription("Transactions processed by bank sync, by kind"))
	return syncMetrics{runs: runs, transactions: transactions}
}

func (m syncMetrics) record(ctx context.Context, r *SyncResult) {
	if m.runs == nil {
		return
	}
	outcome := "complete"
	if r.Partial {
		outcome = "partial"
	}
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	for kind, n := range map[string]int{
		"added":       r.Added,
		"duplicate":   r.Duplicates,
		"modified":    r.Modified,
		"removed":     r.Removed,
		"flagged":     r.FlaggedForReview,
		"non_expense": r.SkippedNonExpense,
	} {
		if n > 0 {
			m.transactions.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
		}
	}
}

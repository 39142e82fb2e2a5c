package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[m.Name] += dp.Value
				}
			}
		}
	}
	return totals
}

func TestStockMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewStockMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.LedgerMutation(ctx, "CONSUMPTION", -30)
	m.LedgerMutation(ctx, "RECEIPT", 100)
	m.InsufficientStock(ctx)
	m.TxRetry(ctx)
	m.TxRetry(ctx)
	m.Transition(ctx, "IN_TRANSIT")
	m.ApprovalDecision(ctx, "APPROVED")
	m.IdempotentReplay(ctx)

	totals := collect(t, reader)
	assert.Equal(t, int64(2), totals["stockflow.ledger.mutations"])
	assert.Equal(t, int64(130), totals["stockflow.ledger.quantity"])
	assert.Equal(t, int64(1), totals["stockflow.ledger.insufficient_stock"])
	assert.Equal(t, int64(2), totals["stockflow.tx.retries"])
	assert.Equal(t, int64(1), totals["stockflow.transfer.transitions"])
	assert.Equal(t, int64(1), totals["stockflow.approval.decisions"])
	assert.Equal(t, int64(1), totals["stockflow.idempotency.replays"])
}

func TestStockMetrics_NilIsNoop(t *testing.T) {
	var m *StockMetrics
	assert.NotPanics(t, func() {
		m.LedgerMutation(context.Background(), "RECEIPT", 1)
		m.TxRetry(context.Background())
	})
}

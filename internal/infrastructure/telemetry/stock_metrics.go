package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	attrKind    = attribute.Key("kind")
	attrStatus  = attribute.Key("status")
	attrOutcome = attribute.Key("outcome")
)

// StockMetrics records ledger and transfer activity. A nil *StockMetrics is
// valid and records nothing.
type StockMetrics struct {
	ledgerMutations   metric.Int64Counter
	ledgerQuantity    metric.Int64Counter
	insufficientStock metric.Int64Counter
	txRetries         metric.Int64Counter
	transitions       metric.Int64Counter
	approvalDecisions metric.Int64Counter
	idempotentReplays metric.Int64Counter
}

// NewStockMetrics registers the instruments on meter
func NewStockMetrics(meter metric.Meter) (*StockMetrics, error) {
	m := &StockMetrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.ledgerMutations, "stockflow.ledger.mutations", "Committed ledger mutations by entry kind", "{mutations}"},
		{&m.ledgerQuantity, "stockflow.ledger.quantity", "Absolute quantity moved by entry kind", "{units}"},
		{&m.insufficientStock, "stockflow.ledger.insufficient_stock", "Draws rejected for insufficient stock", "{rejections}"},
		{&m.txRetries, "stockflow.tx.retries", "Transactions retried after serialization failures", "{retries}"},
		{&m.transitions, "stockflow.transfer.transitions", "Transfer status transitions by target status", "{transitions}"},
		{&m.approvalDecisions, "stockflow.approval.decisions", "Approval level decisions by outcome", "{decisions}"},
		{&m.idempotentReplays, "stockflow.idempotency.replays", "Requests answered from a stored idempotent result", "{requests}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return m, nil
}

func (m *StockMetrics) LedgerMutation(ctx context.Context, kind string, qty int64) {
	if m == nil {
		return
	}
	if qty < 0 {
		qty = -qty
	}
	opt := metric.WithAttributes(attrKind.String(kind))
	m.ledgerMutations.Add(ctx, 1, opt)
	m.ledgerQuantity.Add(ctx, qty, opt)
}

func (m *StockMetrics) InsufficientStock(ctx context.Context) {
	if m == nil {
		return
	}
	m.insufficientStock.Add(ctx, 1)
}

func (m *StockMetrics) TxRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.txRetries.Add(ctx, 1)
}

func (m *StockMetrics) Transition(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(attrStatus.String(status)))
}

func (m *StockMetrics) ApprovalDecision(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.approvalDecisions.Add(ctx, 1, metric.WithAttributes(attrOutcome.String(outcome)))
}

func (m *StockMetrics) IdempotentReplay(ctx context.Context) {
	if m == nil {
		return
	}
	m.idempotentReplays.Add(ctx, 1)
}

// Package settle flips confirmed orders to won/lost once the exchange
// reports their markets resolved, and posts payout and fees to the ledger.
package settle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dnavarro/kalshibot/internal/domain"
	"github.com/dnavarro/kalshibot/internal/ports"
)

// Syncer matches exchange settlements against confirmed, undecided orders.
type Syncer struct {
	source ports.SettlementSource
	ledger ports.Ledger
}

func New(source ports.SettlementSource, ledger ports.Ledger) *Syncer {
	return &Syncer{source: source, ledger: ledger}
}

// Sync settles every confirmed order whose market has resolved. Per-order
// failures are logged and skipped; the next sync retries them.
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	confirmed, err := s.ledger.GetOrdersByPlacementStatus(ctx, domain.PlacementConfirmed)
	if err != nil {
		return 0, fmt.Errorf("settle.Sync: load confirmed orders: %w", err)
	}

	var open []domain.Order
	for _, o := range confirmed {
		if o.ResultStatus == domain.ResultUndecided {
			open = append(open, o)
		}
	}
	if len(open) == 0 {
		return 0, nil
	}

	settlements, err := s.source.GetSettlements(ctx)
	if err != nil {
		return 0, fmt.Errorf("settle.Sync: get settlements: %w", err)
	}
	byTicker := make(map[string]domain.Settlement, len(settlements))
	for _, st := range settlements {
		byTicker[st.Ticker] = st
	}

	settled := 0
	for _, o := range open {
		st, ok := byTicker[o.Ticker]
		if !ok {
			continue
		}
		if err := s.settleOrder(ctx, o, st); err != nil {
			slog.Warn("settle: order failed", "order_id", o.ID, "ticker", o.Ticker, "err", err)
			continue
		}
		settled++
	}

	if settled > 0 {
		slog.Info("settle: orders settled", "count", settled)
	}
	return settled, nil
}

func (s *Syncer) settleOrder(ctx context.Context, o domain.Order, st domain.Settlement) error {
	won := o.Side == st.MarketResult

	result := domain.ResultLost
	status := domain.SettlementClosed
	payout := 0
	if won {
		result = domain.ResultWon
		status = domain.SettlementSuccess
		payout = 100 * filledUnits(o)
	}

	if err := s.ledger.MarkOrderResult(ctx, o.ID, result); err != nil {
		return err
	}
	return s.ledger.MarkOrderSettled(ctx, o.ID, status, payout, st.FeeCents)
}

// filledUnits is the unit count actually filled, derived from the execution
// economics when the fill was partial.
func filledUnits(o domain.Order) int {
	if o.ExecutedCostCents != nil && o.ExecutedPriceCents != nil && *o.ExecutedPriceCents > 0 {
		return *o.ExecutedCostCents / *o.ExecutedPriceCents
	}
	return o.Units
}

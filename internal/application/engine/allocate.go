package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dnavarro/kalshibot/internal/domain"
)

// allocate sizes one order per candidate under the even-distribution target
// and the per-event cap. Greedy fill-to-cap would exhaust the balance on the
// first few events; instead every candidate gets at most
// min(available/candidates, cap headroom), and capital a capped market left
// on the table is NOT redistributed within the same pass.
func (e *Engine) allocate(st *runState, candidates []domain.Candidate) []domain.Order {
	if len(candidates) == 0 || st.availableCents <= 0 {
		return nil
	}

	evenShare := st.availableCents / len(candidates)
	remaining := st.availableCents

	var orders []domain.Order
	for _, c := range candidates {
		if remaining <= 0 {
			break
		}
		if c.PriceCents < 1 || c.PriceCents > maxPriceCents {
			continue
		}

		headroom := st.perEventCapCents - st.exposure.Committed(c.EventTicker)
		if headroom <= 0 {
			continue
		}

		target := evenShare
		if headroom < target {
			target = headroom
		}
		if remaining < target {
			target = remaining
		}

		units := target / c.PriceCents
		if units < 1 {
			continue
		}

		o := domain.NewOrder(c.Ticker, c.EventTicker, c.Title, c.Side, c.PriceCents, units)
		o.OpenInterest = c.OpenInterest
		o.MarketCloseTime = c.CloseTime
		o.BatchID = st.batch.ID

		remaining -= o.CostCents
		orders = append(orders, o)
	}

	slog.Info("engine: allocation",
		"candidates", len(candidates),
		"orders", len(orders),
		"even_share_cents", evenShare,
		"per_event_cap_cents", st.perEventCapCents,
	)
	return orders
}

// capViolation is the final, non-bypassable pre-submission check. It never
// clamps: a violating order is routed to `queue` for operator review.
func (e *Engine) capViolation(st *runState, o domain.Order) (string, bool) {
	if o.CostCents > e.cfg.MaxOrderCents {
		return fmt.Sprintf("order cost %d¢ exceeds per-order ceiling %d¢", o.CostCents, e.cfg.MaxOrderCents), true
	}
	if existing := st.exposure.Committed(o.EventTicker); existing+o.CostCents > st.perEventCapCents {
		return fmt.Sprintf("event exposure %d¢ + order %d¢ exceeds cap %d¢",
			existing, o.CostCents, st.perEventCapCents), true
	}
	return "", false
}

// placeAllocations persists fresh allocations and, if the execution gate is
// open, submits them immediately. Behind the gate they stay pending for a
// later run's gated execution phase.
func (e *Engine) placeAllocations(ctx context.Context, st *runState, orders []domain.Order) {
	if len(orders) == 0 {
		return
	}
	if st.batch.IsPaused {
		st.report.detail("skipped", "", "", fmt.Sprintf("batch %s is paused", st.batch.BatchDate))
		slog.Warn("engine: batch paused, holding allocations", "batch_date", st.batch.BatchDate)
		return
	}

	gateOpen := e.gateOpen()
	for _, o := range orders {
		if err := e.ledger.SaveOrder(ctx, o); err != nil {
			st.report.fail("save order", o.Ticker, err)
			continue
		}
		if !gateOpen {
			st.report.detail("pending", o.ID, o.Ticker, "awaiting execution window")
			continue
		}
		e.submitOrder(ctx, st, o)
	}
}

// submitOrder runs the final cap check and places one pending order. The
// shared balance accumulator and the exposure ledger move only on success.
func (e *Engine) submitOrder(ctx context.Context, st *runState, o domain.Order) {
	if reason, violated := e.capViolation(st, o); violated {
		if err := e.ledger.MarkOrderQueued(ctx, o.ID, reason); err != nil {
			st.report.fail("queue order", o.ID, err)
			return
		}
		st.report.detail("queued", o.ID, o.Ticker, reason)
		slog.Warn("engine: order routed to queue", "ticker", o.Ticker, "reason", reason)
		return
	}

	e.pace(ctx)
	placed, err := e.exchange.PlaceOrder(ctx, domain.PlaceOrderRequest{
		Ticker:     o.Ticker,
		Side:       o.Side,
		Count:      o.Units,
		PriceCents: o.PriceCents,
	})
	if err != nil {
		st.report.fail("place order", o.Ticker, err)
		// The ledger row stays pending and still commits capital; keep the
		// event's exposure in step so discovery does not re-target it.
		st.exposure.Add(o.EventTicker, o.CostCents)
		return
	}

	now := e.now()
	if err := e.ledger.MarkOrderPlaced(ctx, o.ID, placed.ExchangeOrderID, now); err != nil {
		st.report.fail("record placement (manual reconciliation required)", o.ID, err)
	}
	if err := e.ledger.AddBatchTotals(ctx, o.BatchID, 1, o.CostCents); err != nil {
		st.report.fail("update batch totals", o.BatchID, err)
	}

	st.availableCents -= o.CostCents
	st.exposure.Add(o.EventTicker, o.CostCents)
	st.report.Actions.Placed++
	st.report.detail("placed", o.ID, o.Ticker,
		fmt.Sprintf("%s %d units @ %d¢", o.Side, o.Units, o.PriceCents))
	slog.Info("engine: order placed",
		"ticker", o.Ticker, "side", o.Side, "units", o.Units, "price_cents", o.PriceCents)

	if placed.Status == domain.DetailExecuted {
		o.ExchangeOrderID = placed.ExchangeOrderID
		e.confirmImmediate(ctx, st, o)
	}
}

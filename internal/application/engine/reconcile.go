package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dnavarro/kalshibot/internal/domain"
	"github.com/dnavarro/kalshibot/internal/ports"
)

// reconcilePlaced resolves every placed order against the exchange's
// resting-order snapshot. Exchange state wins over the ledger: an order still
// on the book is left to the resting policy; anything else is looked up
// individually and settled as a fill, an upstream cancel, or a ghost.
func (e *Engine) reconcilePlaced(ctx context.Context, st *runState) {
	placed, err := e.ledger.GetOrdersByPlacementStatus(ctx, domain.PlacementPlaced)
	if err != nil {
		st.report.fail("load placed orders", "-", err)
		return
	}

	for _, o := range placed {
		if o.ExchangeOrderID == "" {
			continue
		}
		if _, live := st.restingByID[o.ExchangeOrderID]; live {
			continue // still on the book; resting policy's problem
		}

		detail, err := e.exchange.GetOrderDetail(ctx, o.ExchangeOrderID)
		if errors.Is(err, ports.ErrOrderNotFound) {
			// Ghost order: the exchange has no record at all. Without this
			// branch the order would sit in `placed` forever.
			e.cancelLocal(ctx, st, o, "not found on exchange")
			continue
		}
		if err != nil {
			st.report.fail("order detail", o.ID, err)
			continue
		}

		switch detail.Status {
		case domain.DetailExecuted:
			e.confirmFill(ctx, st, o, detail)
		case domain.DetailCancelled:
			e.cancelLocal(ctx, st, o, "cancelled upstream")
		case domain.DetailResting:
			// Live but missing from the snapshot (race with placement).
			// Leave it for the next run.
		}
	}
}

// confirmFill transitions placed → confirmed using the actual fill economics:
// fills can be partial, so executed cost comes from filled_count, never from
// the creation estimate.
func (e *Engine) confirmFill(ctx context.Context, st *runState, o domain.Order, detail domain.OrderDetail) {
	executedCost := detail.PriceCents * detail.FilledCount
	if err := e.ledger.MarkOrderConfirmed(ctx, o.ID, detail.PriceCents, executedCost); err != nil {
		st.report.fail("confirm order (manual reconciliation required)", o.ID, err)
		return
	}

	// Exposure tracked the estimate; true it up to what was actually spent.
	if diff := o.CostCents - executedCost; diff > 0 {
		st.exposure.Release(o.EventTicker, diff)
	} else if diff < 0 {
		st.exposure.Add(o.EventTicker, -diff)
	}

	st.report.detail("confirmed", o.ID, o.Ticker,
		fmt.Sprintf("%d units @ %d¢ = %d¢", detail.FilledCount, detail.PriceCents, executedCost))
	slog.Info("engine: order confirmed",
		"ticker", o.Ticker, "filled", detail.FilledCount, "price_cents", detail.PriceCents)
}

// confirmImmediate resolves a submission the exchange reported executed on
// arrival. The acknowledgement carries no fill count, so the actual economics
// come from a detail lookup; even an immediate fill can be partial. A failed
// lookup leaves the order placed for the next run's reconciliation.
func (e *Engine) confirmImmediate(ctx context.Context, st *runState, o domain.Order) {
	e.pace(ctx)
	detail, err := e.exchange.GetOrderDetail(ctx, o.ExchangeOrderID)
	if err != nil {
		st.report.fail("confirm order (manual reconciliation required)", o.ID, err)
		return
	}
	e.confirmFill(ctx, st, o, detail)
}

// cancelLocal transitions placed → cancelled and reclaims exactly the
// order's cost into the run's shared balance accumulator.
func (e *Engine) cancelLocal(ctx context.Context, st *runState, o domain.Order, reason string) {
	if err := e.ledger.MarkOrderCancelled(ctx, o.ID, reason); err != nil {
		st.report.fail("cancel order (manual reconciliation required)", o.ID, err)
		return
	}
	st.reclaim(o.EventTicker, o.CostCents)
	st.report.Actions.Cancelled++
	st.report.detail("cancelled", o.ID, o.Ticker, reason)
	slog.Info("engine: order cancelled", "ticker", o.Ticker, "reason", reason, "reclaimed_cents", o.CostCents)
}

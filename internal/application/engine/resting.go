package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dnavarro/kalshibot/internal/domain"
)

// applyRestingPolicy walks every placed order still live on the book and
// applies the age state machine: hold while young, re-price one step after
// ImproveAfter, cancel and blacklist after CancelAfter. Units never change
// during an improvement; only price moves.
func (e *Engine) applyRestingPolicy(ctx context.Context, st *runState) {
	placed, err := e.ledger.GetOrdersByPlacementStatus(ctx, domain.PlacementPlaced)
	if err != nil {
		st.report.fail("load resting orders", "-", err)
		return
	}

	now := e.now()
	for _, o := range placed {
		if _, live := st.restingByID[o.ExchangeOrderID]; !live {
			continue // resolved by reconciliation, or never placed
		}

		age := o.Age(now)
		switch {
		case age >= e.cfg.CancelAfter:
			e.cancelStale(ctx, st, o, int(age.Minutes()))
		case age >= e.cfg.ImproveAfter:
			e.improvePrice(ctx, st, o)
		}
	}
}

// cancelStale pulls an order that never filled, blacklists its market so the
// next discovery pass skips it, and reclaims its cost.
func (e *Engine) cancelStale(ctx context.Context, st *runState, o domain.Order, ageMins int) {
	e.pace(ctx)
	if err := e.exchange.CancelOrder(ctx, o.ExchangeOrderID); err != nil {
		st.report.fail("cancel stale order", o.ID, err)
		return
	}

	reason := fmt.Sprintf("unfilled after %dm", ageMins)
	if err := e.ledger.MarkOrderCancelled(ctx, o.ID, reason); err != nil {
		st.report.fail("cancel order (manual reconciliation required)", o.ID, err)
		return
	}
	if err := e.ledger.UpsertIlliquidMarket(ctx, domain.IlliquidMarket{
		Ticker:      o.Ticker,
		EventTicker: o.EventTicker,
		Reason:      reason,
		OrderID:     o.ID,
	}); err != nil {
		st.report.fail("blacklist market", o.Ticker, err)
	}

	st.reclaim(o.EventTicker, o.CostCents)
	st.report.Actions.Cancelled++
	st.report.detail("cancelled", o.ID, o.Ticker, reason)
	slog.Info("engine: stale order cancelled and market blacklisted",
		"ticker", o.Ticker, "age_mins", ageMins)
}

// improvePrice replaces the resting order with one priced a step higher:
// cancel the old exchange order, place a new one for the same side and units,
// update the ledger row in place. An immediate fill goes straight to confirmed.
func (e *Engine) improvePrice(ctx context.Context, st *runState, o domain.Order) {
	newPrice := o.PriceCents + e.cfg.ImproveStepCents
	if newPrice > maxPriceCents {
		newPrice = maxPriceCents
	}
	if newPrice == o.PriceCents {
		return // already at the ceiling, nothing to improve
	}

	e.pace(ctx)
	if err := e.exchange.CancelOrder(ctx, o.ExchangeOrderID); err != nil {
		st.report.fail("cancel for improvement", o.ID, err)
		return
	}

	e.pace(ctx)
	placed, err := e.exchange.PlaceOrder(ctx, domain.PlaceOrderRequest{
		Ticker:     o.Ticker,
		Side:       o.Side,
		Count:      o.Units,
		PriceCents: newPrice,
	})
	if err != nil {
		// The old order is already gone from the book; the ledger must not
		// keep claiming a live placement.
		reason := fmt.Sprintf("improvement replacement failed: %v", err)
		if lerr := e.ledger.MarkOrderCancelled(ctx, o.ID, reason); lerr != nil {
			st.report.fail("cancel order (manual reconciliation required)", o.ID, lerr)
			return
		}
		st.reclaim(o.EventTicker, o.CostCents)
		st.report.Actions.Cancelled++
		st.report.detail("cancelled", o.ID, o.Ticker, reason)
		return
	}

	now := e.now()
	if err := e.ledger.UpdateOrderPrice(ctx, o.ID, newPrice, placed.ExchangeOrderID, now); err != nil {
		st.report.fail("update order price (manual reconciliation required)", o.ID, err)
		return
	}

	st.report.Actions.Improved++
	st.report.detail("improved", o.ID, o.Ticker,
		fmt.Sprintf("%d¢ → %d¢", o.PriceCents, newPrice))
	slog.Info("engine: order re-priced",
		"ticker", o.Ticker, "old_cents", o.PriceCents, "new_cents", newPrice)

	if placed.Status == domain.DetailExecuted {
		o.ExchangeOrderID = placed.ExchangeOrderID
		e.confirmImmediate(ctx, st, o)
	}
}

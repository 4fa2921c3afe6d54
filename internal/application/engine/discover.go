package engine

import (
	"context"
	"log/slog"

	"github.com/dnavarro/kalshibot/internal/domain"
)

// discoverCandidates asks the feed for the trading day's markets and drops
// anything the run already has skin in: blacklisted tickers and events with
// any committed order or exposed position. The feed owns the odds logic and
// delivers one market per event, best liquidity first.
func (e *Engine) discoverCandidates(ctx context.Context, st *runState) []domain.Candidate {
	candidates, err := e.feed.Candidates(ctx, st.tradingDay)
	if err != nil {
		st.report.fail("discover candidates", "-", err)
		return nil
	}

	blacklist, err := e.ledger.GetIlliquidTickers(ctx)
	if err != nil {
		st.report.fail("load blacklist", "-", err)
		blacklist = map[string]bool{}
	}

	queuedEvents := make(map[string]bool)
	if queued, err := e.ledger.GetOrdersByPlacementStatus(ctx, domain.PlacementQueue); err != nil {
		st.report.fail("load queued orders", "-", err)
	} else {
		for _, o := range queued {
			queuedEvents[o.EventTicker] = true
		}
	}

	var eligible []domain.Candidate
	for _, c := range candidates {
		if blacklist[c.Ticker] {
			continue
		}
		if st.exposure.Committed(c.EventTicker) > 0 || queuedEvents[c.EventTicker] {
			continue
		}
		eligible = append(eligible, c)
	}

	st.report.Actions.Discovered = len(eligible)
	slog.Info("engine: discovery",
		"feed", len(candidates), "eligible", len(eligible), "blacklisted", len(blacklist))
	return eligible
}

// executePending submits the day's pending orders once the execution gate
// opens, re-sizing each one against current available capital instead of the
// estimate recorded when it was created.
func (e *Engine) executePending(ctx context.Context, st *runState) {
	if !e.gateOpen() {
		return
	}
	if st.batch.ID == "" {
		return
	}

	pending, err := e.ledger.GetOrdersByBatch(ctx, st.batch.ID, domain.PlacementPending)
	if err != nil {
		st.report.fail("load pending orders", st.batch.ID, err)
		return
	}
	if len(pending) == 0 {
		return
	}
	if st.batch.IsPaused {
		st.report.detail("skipped", "", "", "batch paused, pending orders held")
		return
	}

	evenShare := st.availableCents / len(pending)
	for _, o := range pending {
		// The exposure ledger counted the order's stale creation estimate.
		// Lift it out: sizing and the final cap check work on current state,
		// and submitOrder re-commits the recomputed cost for any order that
		// stays committed (placed, or pending after a failed submission).
		st.exposure.Release(o.EventTicker, o.CostCents)

		headroom := st.perEventCapCents - st.exposure.Committed(o.EventTicker)
		target := evenShare
		if headroom < target {
			target = headroom
		}
		if st.availableCents < target {
			target = st.availableCents
		}

		units := 0
		if o.PriceCents > 0 && target > 0 {
			units = target / o.PriceCents
		}
		if units < 1 {
			if err := e.ledger.MarkOrderCancelled(ctx, o.ID, "no affordable units at execution time"); err != nil {
				st.report.fail("cancel unaffordable order", o.ID, err)
				continue
			}
			st.report.detail("cancelled", o.ID, o.Ticker, "no affordable units at execution time")
			continue
		}

		if units != o.Units {
			cost := units * o.PriceCents
			if err := e.ledger.UpdateOrderUnits(ctx, o.ID, units, cost); err != nil {
				st.report.fail("resize pending order", o.ID, err)
				st.exposure.Add(o.EventTicker, o.CostCents) // restore the estimate
				continue
			}
			o.Units = units
			o.CostCents = cost
			o.PotentialPayoutCents = 100 * units
		}

		e.submitOrder(ctx, st, o)
	}
}

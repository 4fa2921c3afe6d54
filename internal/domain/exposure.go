package domain

// exposure.go — per-run event exposure aggregation.
//
// Every cent of committed capital is attributed to exactly one source, in a
// fixed precedence order:
//   1. ledger orders in {pending, placed, confirmed}, grouped by event
//   2. exchange positions whose ticker no ledger order already covers
//   3. exchange resting orders whose exchange ID no ledger order already covers
//
// The precedence replaces the old "did we already count this" presence checks:
// sources 2 and 3 are filtered by the cover sets built during pass 1, never by
// inspecting the running totals.

// ExposureLedger maps event ticker → cents committed. Rebuilt every run,
// never persisted.
type ExposureLedger struct {
	cents map[string]int
}

// exposureStatuses are the ledger order states that commit capital.
var exposureStatuses = map[PlacementStatus]bool{
	PlacementPending:   true,
	PlacementPlaced:    true,
	PlacementConfirmed: true,
}

// BuildExposureLedger aggregates committed capital per event from the three
// sources. eventFor resolves a ticker to its event when the ledger has no
// record of it; pass nil to fall back to ticker-prefix derivation.
func BuildExposureLedger(orders []Order, positions []Position, resting []RestingOrder, eventFor func(ticker string) string) *ExposureLedger {
	if eventFor == nil {
		eventFor = EventTickerFromTicker
	}

	led := &ExposureLedger{cents: make(map[string]int)}
	coveredTickers := make(map[string]bool)
	coveredExchangeIDs := make(map[string]bool)

	for _, o := range orders {
		if !exposureStatuses[o.PlacementStatus] {
			continue
		}
		cost := o.CostCents
		if o.ExecutedCostCents != nil {
			cost = *o.ExecutedCostCents
		}
		led.cents[o.EventTicker] += cost
		coveredTickers[o.Ticker] = true
		if o.ExchangeOrderID != "" {
			coveredExchangeIDs[o.ExchangeOrderID] = true
		}
	}

	for _, p := range positions {
		if coveredTickers[p.Ticker] {
			continue
		}
		led.cents[eventFor(p.Ticker)] += p.CostCents
	}

	for _, r := range resting {
		if coveredExchangeIDs[r.ExchangeID] {
			continue
		}
		led.cents[eventFor(r.Ticker)] += r.NotionalCents()
	}

	return led
}

// Committed returns the cents committed on an event.
func (l *ExposureLedger) Committed(eventTicker string) int {
	return l.cents[eventTicker]
}

// Add records newly committed capital, e.g. an order placed later in the
// same run.
func (l *ExposureLedger) Add(eventTicker string, cents int) {
	l.cents[eventTicker] += cents
}

// Release returns reclaimed capital to the pool, e.g. a cancelled order.
// Never drives an event negative.
func (l *ExposureLedger) Release(eventTicker string, cents int) {
	l.cents[eventTicker] -= cents
	if l.cents[eventTicker] <= 0 {
		delete(l.cents, eventTicker)
	}
}

// TotalCents returns the capital committed across all events.
func (l *ExposureLedger) TotalCents() int {
	total := 0
	for _, c := range l.cents {
		total += c
	}
	return total
}

// Events returns the event tickers with non-zero exposure.
func (l *ExposureLedger) Events() []string {
	events := make([]string, 0, len(l.cents))
	for e := range l.cents {
		events = append(events, e)
	}
	return events
}

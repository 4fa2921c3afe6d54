package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ledgerOrder(ticker, event string, status PlacementStatus, priceCents, units int, exchangeID string) Order {
	o := NewOrder(ticker, event, "test market", SideYes, priceCents, units)
	o.PlacementStatus = status
	o.ExchangeOrderID = exchangeID
	return o
}

func TestBuildExposureLedger_OrdersGroupedByEvent(t *testing.T) {
	orders := []Order{
		ledgerOrder("EVT-A-M1", "EVT-A", PlacementPlaced, 60, 10, "x1"),
		ledgerOrder("EVT-A-M2", "EVT-A", PlacementConfirmed, 40, 5, "x2"),
		ledgerOrder("EVT-B-M1", "EVT-B", PlacementPending, 50, 4, ""),
	}

	led := BuildExposureLedger(orders, nil, nil, nil)

	assert.Equal(t, 600+200, led.Committed("EVT-A"))
	assert.Equal(t, 200, led.Committed("EVT-B"))
	assert.Equal(t, 1000, led.TotalCents())
}

func TestBuildExposureLedger_CancelledAndQueueExcluded(t *testing.T) {
	orders := []Order{
		ledgerOrder("EVT-A-M1", "EVT-A", PlacementCancelled, 60, 10, "x1"),
		ledgerOrder("EVT-A-M2", "EVT-A", PlacementQueue, 40, 5, ""),
	}

	led := BuildExposureLedger(orders, nil, nil, nil)
	assert.Zero(t, led.Committed("EVT-A"))
}

func TestBuildExposureLedger_PositionNotDoubleCounted(t *testing.T) {
	// A confirmed order already accounts for the position on the same ticker.
	orders := []Order{
		ledgerOrder("EVT-A-M1", "EVT-A", PlacementConfirmed, 60, 10, "x1"),
	}
	positions := []Position{
		{Ticker: "EVT-A-M1", CostCents: 600}, // covered by the order
		{Ticker: "EVT-C-M1", CostCents: 350}, // only the exchange knows this one
	}

	led := BuildExposureLedger(orders, positions, nil, nil)

	assert.Equal(t, 600, led.Committed("EVT-A"))
	assert.Equal(t, 350, led.Committed("EVT-C"))
	assert.Equal(t, 950, led.TotalCents())
}

func TestBuildExposureLedger_RestingNotDoubleCounted(t *testing.T) {
	orders := []Order{
		ledgerOrder("EVT-A-M1", "EVT-A", PlacementPlaced, 60, 10, "x1"),
	}
	resting := []RestingOrder{
		{ExchangeID: "x1", Ticker: "EVT-A-M1", Side: SideYes, PriceCents: 60, RemainingUnits: 10},
		{ExchangeID: "x9", Ticker: "EVT-D-M1", Side: SideNo, PriceCents: 30, RemainingUnits: 4},
	}

	led := BuildExposureLedger(orders, nil, resting, nil)

	assert.Equal(t, 600, led.Committed("EVT-A"))
	assert.Equal(t, 120, led.Committed("EVT-D"))
}

func TestBuildExposureLedger_ExecutedCostWinsOverEstimate(t *testing.T) {
	o := ledgerOrder("EVT-A-M1", "EVT-A", PlacementConfirmed, 60, 10, "x1")
	executed := 360 // partial fill: 6 of 10 units
	o.ExecutedCostCents = &executed

	led := BuildExposureLedger([]Order{o}, nil, nil, nil)
	assert.Equal(t, 360, led.Committed("EVT-A"))
}

func TestBuildExposureLedger_EventForFallback(t *testing.T) {
	positions := []Position{{Ticker: "KXNBAGAME-25AUG31LALBOS-LAL", CostCents: 500}}

	led := BuildExposureLedger(nil, positions, nil, nil)
	assert.Equal(t, 500, led.Committed("KXNBAGAME-25AUG31LALBOS"))
}

func TestExposureLedger_AddRelease(t *testing.T) {
	led := BuildExposureLedger(nil, nil, nil, nil)
	led.Add("EVT-A", 300)
	led.Release("EVT-A", 100)
	assert.Equal(t, 200, led.Committed("EVT-A"))

	led.Release("EVT-A", 500)
	assert.Zero(t, led.Committed("EVT-A"))
	assert.Empty(t, led.Events())
}

func TestOrderAge(t *testing.T) {
	o := NewOrder("EVT-A-M1", "EVT-A", "t", SideYes, 50, 2)
	now := time.Now().UTC()
	assert.Zero(t, o.Age(now))

	placed := now.Add(-65 * time.Minute)
	o.PlacedAt = &placed
	assert.Equal(t, 65*time.Minute, o.Age(now))
}

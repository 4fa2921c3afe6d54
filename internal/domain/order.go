package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Side is the binary contract side an order buys.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// PlacementStatus tracks where an order is in its submission lifecycle.
type PlacementStatus string

const (
	// PlacementPending: created locally, not yet submitted to the exchange.
	PlacementPending PlacementStatus = "pending"
	// PlacementPlaced: submitted, resting on the exchange book.
	PlacementPlaced PlacementStatus = "placed"
	// PlacementConfirmed: filled on the exchange (possibly partially).
	PlacementConfirmed PlacementStatus = "confirmed"
	// PlacementCancelled: terminal, never filled (or cancelled upstream).
	PlacementCancelled PlacementStatus = "cancelled"
	// PlacementQueue: held back by a safety cap, awaiting operator review.
	PlacementQueue PlacementStatus = "queue"
)

// ResultStatus is the market outcome for the order's side.
type ResultStatus string

const (
	ResultUndecided ResultStatus = "undecided"
	ResultWon       ResultStatus = "won"
	ResultLost      ResultStatus = "lost"
)

// SettlementStatus tracks whether payout and fees have posted.
type SettlementStatus string

const (
	SettlementPending SettlementStatus = "pending"
	SettlementClosed  SettlementStatus = "closed"
	SettlementSuccess SettlementStatus = "success"
)

// Order is one limit order on a single market. All money fields are integer cents.
// CostCents is fixed at creation (price × units estimate); the actual spend lands
// in ExecutedCostCents once the exchange confirms the fill.
type Order struct {
	ID          string
	Ticker      string
	EventTicker string
	Title       string
	Side        Side
	PriceCents  int
	Units       int
	CostCents   int

	ExecutedPriceCents   *int
	ExecutedCostCents    *int
	PotentialPayoutCents int
	ActualPayoutCents    *int
	FeeCents             *int

	OpenInterest    int64
	MarketCloseTime time.Time

	PlacementStatus  PlacementStatus
	ResultStatus     ResultStatus
	SettlementStatus SettlementStatus

	ExchangeOrderID string
	CancelReason    string
	BatchID         string

	CreatedAt time.Time
	PlacedAt  *time.Time
}

// NewOrder builds a pending order with derived cost and payout fields.
func NewOrder(ticker, eventTicker, title string, side Side, priceCents, units int) Order {
	return Order{
		ID:                   uuid.New().String(),
		Ticker:               ticker,
		EventTicker:          eventTicker,
		Title:                title,
		Side:                 side,
		PriceCents:           priceCents,
		Units:                units,
		CostCents:            priceCents * units,
		PotentialPayoutCents: 100 * units,
		PlacementStatus:      PlacementPending,
		ResultStatus:         ResultUndecided,
		SettlementStatus:     SettlementPending,
		CreatedAt:            time.Now().UTC(),
	}
}

// Age returns how long the order has been resting on the book. Zero before placement.
func (o Order) Age(now time.Time) time.Duration {
	if o.PlacedAt == nil {
		return 0
	}
	return now.Sub(*o.PlacedAt)
}

// Validate checks the creation-time invariants.
func (o Order) Validate() error {
	if o.PriceCents < 1 || o.PriceCents > 99 {
		return fmt.Errorf("order %s: price %d¢ out of [1,99]", o.ID, o.PriceCents)
	}
	if o.Units < 1 {
		return fmt.Errorf("order %s: units %d < 1", o.ID, o.Units)
	}
	if o.CostCents != o.PriceCents*o.Units {
		return fmt.Errorf("order %s: cost %d != price %d × units %d", o.ID, o.CostCents, o.PriceCents, o.Units)
	}
	return nil
}

// OrderBatch groups the orders of one trading day. IsPaused is the operator
// kill switch: a paused batch accepts no new submissions.
type OrderBatch struct {
	ID             string
	BatchDate      string // trading day, "2006-01-02" in the exchange timezone
	UnitSizeCents  int
	TotalOrders    int
	TotalCostCents int
	IsPaused       bool
	CreatedAt      time.Time
}

// NewOrderBatch creates a batch for the given trading day.
func NewOrderBatch(batchDate string, unitSizeCents int) OrderBatch {
	return OrderBatch{
		ID:            uuid.New().String(),
		BatchDate:     batchDate,
		UnitSizeCents: unitSizeCents,
		CreatedAt:     time.Now().UTC(),
	}
}

// IlliquidMarket blacklists a ticker after an order failed to fill within its
// cancellation window. Upserted by ticker so repeat offenders stay listed.
type IlliquidMarket struct {
	Ticker      string
	EventTicker string
	Reason      string
	OrderID     string
	CreatedAt   time.Time
}

// Position is an exchange-side filled position snapshot.
type Position struct {
	Ticker    string
	CostCents int
}

// RestingOrder is an exchange-side open limit order snapshot.
type RestingOrder struct {
	ExchangeID     string
	Ticker         string
	Side           Side
	PriceCents     int
	RemainingUnits int
	CreatedTime    time.Time
}

// NotionalCents is the capital the resting order would commit if fully filled.
func (r RestingOrder) NotionalCents() int {
	return r.PriceCents * r.RemainingUnits
}

// OrderDetailStatus is the exchange's view of a single order.
type OrderDetailStatus string

const (
	DetailResting   OrderDetailStatus = "resting"
	DetailExecuted  OrderDetailStatus = "executed"
	DetailCancelled OrderDetailStatus = "cancelled"
)

// OrderDetail is the per-order lookup result from the exchange.
type OrderDetail struct {
	Status      OrderDetailStatus
	FilledCount int
	PriceCents  int
}

// PlaceOrderRequest is what the engine submits to the exchange.
type PlaceOrderRequest struct {
	Ticker     string
	Side       Side
	Count      int
	PriceCents int
}

// PlacedOrder is the exchange's acknowledgement of a submission.
type PlacedOrder struct {
	ExchangeOrderID string
	Status          OrderDetailStatus
}

// Candidate is a market the feed considers worth deploying capital on.
// The feed has already applied odds/liquidity thresholds and deduplicated
// to one market per event.
type Candidate struct {
	Ticker       string
	EventTicker  string
	Title        string
	Side         Side
	PriceCents   int
	OpenInterest int64
	CloseTime    time.Time
}

// EventTickerFromTicker derives the event ticker when no ledger record maps the
// market. Kalshi market tickers append a market suffix to the event ticker with
// a dash: KXNBAGAME-25AUG31LALBOS-LAL → KXNBAGAME-25AUG31LALBOS.
func EventTickerFromTicker(ticker string) string {
	idx := strings.LastIndex(ticker, "-")
	if idx <= 0 {
		return ticker
	}
	return ticker[:idx]
}

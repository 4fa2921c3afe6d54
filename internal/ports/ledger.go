package ports

import (
	"context"
	"errors"
	"time"

	"github.com/dnavarro/kalshibot/internal/domain"
)

// ErrNotFound is returned by lookups for records the ledger does not hold.
var ErrNotFound = errors.New("record not found")

// Ledger is the durable order store. Exchange state always wins over stale
// ledger state; the engine writes here after the exchange acknowledges.
type Ledger interface {
	ApplySchema(ctx context.Context) error

	// Orders
	SaveOrder(ctx context.Context, o domain.Order) error
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	GetOrdersByPlacementStatus(ctx context.Context, statuses ...domain.PlacementStatus) ([]domain.Order, error)
	GetOrdersByBatch(ctx context.Context, batchID string, status domain.PlacementStatus) ([]domain.Order, error)
	MarkOrderPlaced(ctx context.Context, id, exchangeOrderID string, placedAt time.Time) error
	MarkOrderConfirmed(ctx context.Context, id string, executedPriceCents, executedCostCents int) error
	MarkOrderCancelled(ctx context.Context, id, reason string) error
	MarkOrderQueued(ctx context.Context, id, reason string) error
	UpdateOrderPrice(ctx context.Context, id string, priceCents int, exchangeOrderID string, placedAt time.Time) error
	UpdateOrderUnits(ctx context.Context, id string, units, costCents int) error
	MarkOrderResult(ctx context.Context, id string, result domain.ResultStatus) error
	MarkOrderSettled(ctx context.Context, id string, settlement domain.SettlementStatus, payoutCents, feeCents int) error
	GetSettledOrders(ctx context.Context) ([]domain.Order, error)

	// Batches (upsert keyed on batch_date)
	UpsertBatch(ctx context.Context, b domain.OrderBatch) (domain.OrderBatch, error)
	GetBatch(ctx context.Context, batchDate string) (domain.OrderBatch, error)
	SetBatchPaused(ctx context.Context, batchDate string, paused bool) error
	AddBatchTotals(ctx context.Context, batchID string, orders, costCents int) error

	// Illiquid-market blacklist (upsert keyed on ticker)
	UpsertIlliquidMarket(ctx context.Context, m domain.IlliquidMarket) error
	GetIlliquidTickers(ctx context.Context) (map[string]bool, error)

	Close() error
}

package ports

import (
	"context"
	"errors"

	"github.com/dnavarro/kalshibot/internal/domain"
)

// ErrOrderNotFound is returned by Exchange.GetOrderDetail when the exchange
// has no record of the order ID (the ghost-order case).
var ErrOrderNotFound = errors.New("order not found on exchange")

// Exchange is the signed trading API surface the engine consumes.
type Exchange interface {
	// GetBalance returns the available balance in cents.
	GetBalance(ctx context.Context) (int, error)

	// GetPositions returns filled positions with their cost in cents.
	GetPositions(ctx context.Context) ([]domain.Position, error)

	// GetRestingOrders returns the snapshot of open limit orders on the book.
	GetRestingOrders(ctx context.Context) ([]domain.RestingOrder, error)

	// GetOrderDetail looks up a single order. Returns ErrOrderNotFound when
	// the exchange does not recognize the ID.
	GetOrderDetail(ctx context.Context, exchangeOrderID string) (domain.OrderDetail, error)

	// PlaceOrder submits a limit order.
	PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error)

	// CancelOrder cancels a resting order by its exchange ID.
	CancelOrder(ctx context.Context, exchangeOrderID string) error
}

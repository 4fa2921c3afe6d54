package kalshi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/dnavarro/kalshibot/internal/domain"
	"github.com/dnavarro/kalshibot/internal/ports"
)

const pageLimit = "1000"

// Trading implements the signed portfolio surface of the trade API.
type Trading struct {
	client *Client
}

var _ ports.Exchange = (*Trading)(nil)

func NewTrading(client *Client) *Trading {
	return &Trading{client: client}
}

// GetBalance returns the available (uncommitted) balance in cents.
func (t *Trading) GetBalance(ctx context.Context) (int, error) {
	var resp balanceResponse
	if err := t.client.do(ctx, http.MethodGet, "/portfolio/balance", nil, nil, &resp); err != nil {
		return 0, fmt.Errorf("kalshi.GetBalance: %w", err)
	}
	return int(resp.BalanceCents), nil
}

// GetPositions returns filled market positions with nonzero exposure.
func (t *Trading) GetPositions(ctx context.Context) ([]domain.Position, error) {
	var positions []domain.Position

	query := url.Values{"limit": {pageLimit}}
	for {
		var resp positionsResponse
		if err := t.client.do(ctx, http.MethodGet, "/portfolio/positions", query, nil, &resp); err != nil {
			return nil, fmt.Errorf("kalshi.GetPositions: %w", err)
		}
		for _, p := range resp.MarketPositions {
			if p.MarketExposureCents <= 0 {
				continue
			}
			positions = append(positions, domain.Position{
				Ticker:    p.Ticker,
				CostCents: p.MarketExposureCents,
			})
		}
		if resp.Cursor == "" {
			return positions, nil
		}
		query.Set("cursor", resp.Cursor)
	}
}

// GetRestingOrders returns the open limit orders on the book.
func (t *Trading) GetRestingOrders(ctx context.Context) ([]domain.RestingOrder, error) {
	var resting []domain.RestingOrder

	query := url.Values{"status": {"resting"}, "limit": {pageLimit}}
	for {
		var resp ordersResponse
		if err := t.client.do(ctx, http.MethodGet, "/portfolio/orders", query, nil, &resp); err != nil {
			return nil, fmt.Errorf("kalshi.GetRestingOrders: %w", err)
		}
		for _, o := range resp.Orders {
			created, _ := time.Parse(time.RFC3339, o.CreatedTime)
			side := sideFromAPI(o.Side)
			resting = append(resting, domain.RestingOrder{
				ExchangeID:     o.OrderID,
				Ticker:         o.Ticker,
				Side:           side,
				PriceCents:     priceForSide(o, side),
				RemainingUnits: o.RemainingCount,
				CreatedTime:    created,
			})
		}
		if resp.Cursor == "" {
			return resting, nil
		}
		query.Set("cursor", resp.Cursor)
	}
}

// GetOrderDetail looks up one order by its exchange ID. A 404 maps to
// ports.ErrOrderNotFound so the engine can resolve ghosts.
func (t *Trading) GetOrderDetail(ctx context.Context, exchangeOrderID string) (domain.OrderDetail, error) {
	var resp orderResponse
	err := t.client.do(ctx, http.MethodGet, "/portfolio/orders/"+exchangeOrderID, nil, nil, &resp)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return domain.OrderDetail{}, ports.ErrOrderNotFound
		}
		return domain.OrderDetail{}, fmt.Errorf("kalshi.GetOrderDetail %s: %w", exchangeOrderID, err)
	}

	o := resp.Order
	side := sideFromAPI(o.Side)
	return domain.OrderDetail{
		Status:      detailStatus(o.Status),
		FilledCount: o.InitialCount - o.RemainingCount,
		PriceCents:  priceForSide(o, side),
	}, nil
}

// PlaceOrder submits a buy limit order.
func (t *Trading) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	body := createOrderRequest{
		Ticker:        req.Ticker,
		ClientOrderID: uuid.New().String(),
		Side:          apiSide(req.Side),
		Action:        "buy",
		Count:         req.Count,
		Type:          "limit",
	}
	if req.Side == domain.SideYes {
		body.YesPriceCents = req.PriceCents
	} else {
		body.NoPriceCents = req.PriceCents
	}

	var resp orderResponse
	if err := t.client.do(ctx, http.MethodPost, "/portfolio/orders", nil, body, &resp); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("kalshi.PlaceOrder %s: %w", req.Ticker, err)
	}
	return domain.PlacedOrder{
		ExchangeOrderID: resp.Order.OrderID,
		Status:          detailStatus(resp.Order.Status),
	}, nil
}

// CancelOrder cancels a resting order by its exchange ID.
func (t *Trading) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	err := t.client.do(ctx, http.MethodDelete, "/portfolio/orders/"+exchangeOrderID, nil, nil, nil)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return ports.ErrOrderNotFound
		}
		return fmt.Errorf("kalshi.CancelOrder %s: %w", exchangeOrderID, err)
	}
	return nil
}

// GetSettlements returns the account's resolved markets.
func (t *Trading) GetSettlements(ctx context.Context) ([]domain.Settlement, error) {
	var settlements []domain.Settlement

	query := url.Values{"limit": {pageLimit}}
	for {
		var resp settlementsResponse
		if err := t.client.do(ctx, http.MethodGet, "/portfolio/settlements", query, nil, &resp); err != nil {
			return nil, fmt.Errorf("kalshi.GetSettlements: %w", err)
		}
		for _, s := range resp.Settlements {
			settled, _ := time.Parse(time.RFC3339, s.SettledTime)
			settlements = append(settlements, domain.Settlement{
				Ticker:       s.Ticker,
				MarketResult: sideFromAPI(s.MarketResult),
				RevenueCents: s.RevenueCents,
				FeeCents:     s.FeeCents,
				SettledTime:  settled,
			})
		}
		if resp.Cursor == "" {
			return settlements, nil
		}
		query.Set("cursor", resp.Cursor)
	}
}

func sideFromAPI(s string) domain.Side {
	if s == "no" {
		return domain.SideNo
	}
	return domain.SideYes
}

func apiSide(s domain.Side) string {
	if s == domain.SideNo {
		return "no"
	}
	return "yes"
}

func priceForSide(o apiOrder, side domain.Side) int {
	if side == domain.SideNo {
		return o.NoPriceCents
	}
	return o.YesPriceCents
}

func detailStatus(s string) domain.OrderDetailStatus {
	switch s {
	case "executed":
		return domain.DetailExecuted
	case "canceled", "cancelled":
		return domain.DetailCancelled
	default:
		return domain.DetailResting
	}
}

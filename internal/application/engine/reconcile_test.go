package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnavarro/kalshibot/internal/domain"
)

func TestReconcileGhostOrder(t *testing.T) {
	ex := &fakeExchange{balanceCents: 5_000}
	e, l := newTestEngine(t, ex, &fakeFeed{}, Config{})

	ctx := context.Background()
	o := domain.NewOrder("KXNBAGAME-26MAR02LALBOS-LAL", "KXNBAGAME-26MAR02LALBOS", "LAL", domain.SideYes, 50, 20)
	o = seedPlaced(t, l, o, "X123", gateOpenNow.Add(-10*time.Minute))

	report, err := e.RunOnce(ctx)
	require.NoError(t, err)

	got, err := l.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlacementCancelled, got.PlacementStatus)
	assert.Contains(t, got.CancelReason, "not found")

	// The ghost's 1000¢ cost returns to the pool.
	assert.Equal(t, 1, report.Actions.Cancelled)
	assert.Equal(t, 6_000, report.Capital.RemainingCents)
	assert.Zero(t, report.Capital.DeployedCents)

	// A second run sees no placed orders and changes nothing.
	report, err = e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Actions.Cancelled)
	assert.Equal(t, 5_000, report.Capital.RemainingCents)
}

func TestReconcileUpstreamCancellation(t *testing.T) {
	ex := &fakeExchange{
		balanceCents: 5_000,
		details:      map[string]domain.OrderDetail{"X1": {Status: domain.DetailCancelled}},
	}
	e, l := newTestEngine(t, ex, &fakeFeed{}, Config{})

	ctx := context.Background()
	o := domain.NewOrder("KXNBAGAME-26MAR02LALBOS-LAL", "KXNBAGAME-26MAR02LALBOS", "LAL", domain.SideYes, 40, 10)
	o = seedPlaced(t, l, o, "X1", gateOpenNow.Add(-5*time.Minute))

	report, err := e.RunOnce(ctx)
	require.NoError(t, err)

	got, err := l.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlacementCancelled, got.PlacementStatus)
	assert.Equal(t, "cancelled upstream", got.CancelReason)
	assert.Equal(t, 5_400, report.Capital.RemainingCents)
}

func TestReconcilePartialFill(t *testing.T) {
	ex := &fakeExchange{
		balanceCents: 5_000,
		details: map[string]domain.OrderDetail{
			"X9": {Status: domain.DetailExecuted, FilledCount: 7, PriceCents: 85},
		},
	}
	e, l := newTestEngine(t, ex, &fakeFeed{}, Config{})

	ctx := context.Background()
	o := domain.NewOrder("KXNBAGAME-26MAR02LALBOS-LAL", "KXNBAGAME-26MAR02LALBOS", "LAL", domain.SideYes, 85, 10)
	o = seedPlaced(t, l, o, "X9", gateOpenNow.Add(-5*time.Minute))

	report, err := e.RunOnce(ctx)
	require.NoError(t, err)

	got, err := l.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlacementConfirmed, got.PlacementStatus)
	require.NotNil(t, got.ExecutedCostCents)
	assert.Equal(t, 595, *got.ExecutedCostCents) // 7 × 85¢
	require.NotNil(t, got.ExecutedPriceCents)
	assert.Equal(t, 85, *got.ExecutedPriceCents)

	// Creation estimate stays; deployed exposure trues up to the real spend.
	assert.Equal(t, 850, got.CostCents)
	assert.Equal(t, 595, report.Capital.DeployedCents)
	assert.Equal(t, 5_000, report.Capital.RemainingCents)
}

func TestReconcileLeavesLiveOrdersAlone(t *testing.T) {
	placedAt := gateOpenNow.Add(-10 * time.Minute)
	ex := &fakeExchange{
		balanceCents: 5_000,
		resting: []domain.RestingOrder{{
			ExchangeID:     "X5",
			Ticker:         "KXNBAGAME-26MAR02LALBOS-LAL",
			Side:           domain.SideYes,
			PriceCents:     50,
			RemainingUnits: 10,
			CreatedTime:    placedAt,
		}},
	}
	e, l := newTestEngine(t, ex, &fakeFeed{}, Config{})

	ctx := context.Background()
	o := domain.NewOrder("KXNBAGAME-26MAR02LALBOS-LAL", "KXNBAGAME-26MAR02LALBOS", "LAL", domain.SideYes, 50, 10)
	o = seedPlaced(t, l, o, "X5", placedAt)

	report, err := e.RunOnce(ctx)
	require.NoError(t, err)

	got, err := l.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlacementPlaced, got.PlacementStatus)
	assert.Zero(t, report.Actions.Cancelled)
	assert.Equal(t, 500, report.Capital.DeployedCents)
}

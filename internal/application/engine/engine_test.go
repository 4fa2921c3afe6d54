package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnavarro/kalshibot/internal/adapters/storage"
	"github.com/dnavarro/kalshibot/internal/domain"
	"github.com/dnavarro/kalshibot/internal/ports"
)

// 16:00 UTC is 11:00 in New York: past the execution gate, same trading day.
var (
	gateOpenNow   = time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	gateClosedNow = time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)
)

type fakeExchange struct {
	balanceCents int
	balanceErr   error
	positions    []domain.Position
	resting      []domain.RestingOrder
	details      map[string]domain.OrderDetail

	placeStatus domain.OrderDetailStatus
	placeErr    error

	placeReqs []domain.PlaceOrderRequest
	cancelled []string
	nextID    int
}

func (f *fakeExchange) GetBalance(ctx context.Context) (int, error) {
	return f.balanceCents, f.balanceErr
}

func (f *fakeExchange) GetPositions(ctx context.Context) ([]domain.Position, error) {
	return f.positions, nil
}

func (f *fakeExchange) GetRestingOrders(ctx context.Context) ([]domain.RestingOrder, error) {
	return f.resting, nil
}

func (f *fakeExchange) GetOrderDetail(ctx context.Context, exchangeOrderID string) (domain.OrderDetail, error) {
	d, ok := f.details[exchangeOrderID]
	if !ok {
		return domain.OrderDetail{}, ports.ErrOrderNotFound
	}
	return d, nil
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	if f.placeErr != nil {
		return domain.PlacedOrder{}, f.placeErr
	}
	f.placeReqs = append(f.placeReqs, req)
	f.nextID++
	status := f.placeStatus
	if status == "" {
		status = domain.DetailResting
	}
	return domain.PlacedOrder{
		ExchangeOrderID: fmt.Sprintf("EX-%d", f.nextID),
		Status:          status,
	}, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	f.cancelled = append(f.cancelled, exchangeOrderID)
	return nil
}

type fakeFeed struct {
	candidates []domain.Candidate
	err        error
}

func (f *fakeFeed) Candidates(ctx context.Context, tradingDay time.Time) ([]domain.Candidate, error) {
	return f.candidates, f.err
}

func newTestLedger(t *testing.T) *storage.SQLiteLedger {
	t.Helper()
	l, err := storage.NewSQLiteLedger(":memory:")
	require.NoError(t, err)
	require.NoError(t, l.ApplySchema(context.Background()))
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func newTestEngine(t *testing.T, ex *fakeExchange, feed *fakeFeed, cfg Config) (*Engine, *storage.SQLiteLedger) {
	t.Helper()
	l := newTestLedger(t)
	if cfg.CallInterval == 0 {
		cfg.CallInterval = time.Millisecond
	}
	e, err := New(ex, l, feed, cfg)
	require.NoError(t, err)
	e.now = func() time.Time { return gateOpenNow }
	return e, l
}

// seedPlaced writes an already-submitted order the way a previous run would
// have: saved pending, then marked placed with an exchange ID.
func seedPlaced(t *testing.T, l ports.Ledger, o domain.Order, exchangeID string, placedAt time.Time) domain.Order {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, l.SaveOrder(ctx, o))
	require.NoError(t, l.MarkOrderPlaced(ctx, o.ID, exchangeID, placedAt))
	o.PlacementStatus = domain.PlacementPlaced
	o.ExchangeOrderID = exchangeID
	o.PlacedAt = &placedAt
	return o
}

func candidate(ticker string, priceCents int) domain.Candidate {
	return domain.Candidate{
		Ticker:      ticker,
		EventTicker: domain.EventTickerFromTicker(ticker),
		Title:       ticker,
		Side:        domain.SideYes,
		PriceCents:  priceCents,
	}
}

func TestRunOnceEvenSplitUnderCap(t *testing.T) {
	ex := &fakeExchange{balanceCents: 10_000}
	feed := &fakeFeed{candidates: []domain.Candidate{
		candidate("KXNBAGAME-26MAR02LALBOS-LAL", 50),
		candidate("KXNHLGAME-26MAR02NYRBUF-NYR", 50),
	}}
	e, l := newTestEngine(t, ex, feed, Config{MaxEventFraction: 0.30})

	report, err := e.RunOnce(context.Background())
	require.NoError(t, err)

	// $100 across 2 events with a $30 cap: $30 each, $40 stays unspent.
	assert.Equal(t, 2, report.Actions.Placed)
	assert.Equal(t, 4_000, report.Capital.RemainingCents)
	assert.Equal(t, 6_000, report.Capital.DeployedCents)

	require.Len(t, ex.placeReqs, 2)
	for _, req := range ex.placeReqs {
		assert.Equal(t, 60, req.Count) // 3000¢ / 50¢
		assert.Equal(t, 50, req.PriceCents)
	}

	placed, err := l.GetOrdersByPlacementStatus(context.Background(), domain.PlacementPlaced)
	require.NoError(t, err)
	require.Len(t, placed, 2)
	for _, o := range placed {
		assert.Equal(t, 3_000, o.CostCents)
		assert.NotEmpty(t, o.ExchangeOrderID)
		assert.NotEmpty(t, o.BatchID)
	}
}

func TestRunOnceZeroBalancePlacesNothing(t *testing.T) {
	ex := &fakeExchange{balanceCents: 0}
	feed := &fakeFeed{candidates: []domain.Candidate{candidate("KXNBAGAME-26MAR02LALBOS-LAL", 50)}}
	e, _ := newTestEngine(t, ex, feed, Config{})

	report, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Actions.Placed)
	assert.Empty(t, ex.placeReqs)
}

func TestRunOnceNoCandidates(t *testing.T) {
	ex := &fakeExchange{balanceCents: 10_000}
	e, _ := newTestEngine(t, ex, &fakeFeed{}, Config{})

	report, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Actions.Placed)
	assert.Equal(t, 10_000, report.Capital.RemainingCents)
}

func TestRunOnceBalanceFailureIsFatal(t *testing.T) {
	ex := &fakeExchange{balanceErr: errors.New("503")}
	e, _ := newTestEngine(t, ex, &fakeFeed{}, Config{})

	report, err := e.RunOnce(context.Background())
	require.Error(t, err)
	assert.Nil(t, report)
}

func TestRunOncePerOrderCeilingRoutesToQueue(t *testing.T) {
	ex := &fakeExchange{balanceCents: 10_000}
	feed := &fakeFeed{candidates: []domain.Candidate{candidate("KXNBAGAME-26MAR02LALBOS-LAL", 50)}}
	e, l := newTestEngine(t, ex, feed, Config{MaxEventFraction: 0.90, MaxOrderCents: 1_000})

	report, err := e.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.Actions.Placed)
	assert.Empty(t, ex.placeReqs)

	queued, err := l.GetOrdersByPlacementStatus(context.Background(), domain.PlacementQueue)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Contains(t, queued[0].CancelReason, "per-order ceiling")
	assert.Equal(t, 10_000, report.Capital.RemainingCents)
}

func TestRunOncePausedBatchHoldsAllocations(t *testing.T) {
	ex := &fakeExchange{balanceCents: 10_000}
	feed := &fakeFeed{candidates: []domain.Candidate{candidate("KXNBAGAME-26MAR02LALBOS-LAL", 50)}}
	e, l := newTestEngine(t, ex, feed, Config{MaxEventFraction: 0.30})

	ctx := context.Background()
	_, err := l.UpsertBatch(ctx, domain.NewOrderBatch("2026-03-02", 500))
	require.NoError(t, err)
	require.NoError(t, l.SetBatchPaused(ctx, "2026-03-02", true))

	report, err := e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Actions.Placed)
	assert.Empty(t, ex.placeReqs)

	orders, err := l.GetOrdersByPlacementStatus(ctx,
		domain.PlacementPending, domain.PlacementPlaced)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestRunOnceDefersExecutionUntilGateOpens(t *testing.T) {
	ex := &fakeExchange{balanceCents: 10_000}
	feed := &fakeFeed{candidates: []domain.Candidate{candidate("KXNBAGAME-26MAR02LALBOS-LAL", 60)}}
	e, l := newTestEngine(t, ex, feed, Config{MaxEventFraction: 0.30})
	e.now = func() time.Time { return gateClosedNow }

	ctx := context.Background()
	report, err := e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Actions.Placed)
	assert.Empty(t, ex.placeReqs)

	pending, err := l.GetOrdersByPlacementStatus(ctx, domain.PlacementPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 50, pending[0].Units) // 3000¢ cap / 60¢
	assert.Equal(t, 3_000, pending[0].CostCents)

	// Next run past the gate: the pending order is re-sized against the
	// current cap (portfolio grew by the pending exposure) and submitted.
	e.now = func() time.Time { return gateOpenNow }
	report, err = e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Actions.Placed)

	o, err := l.GetOrder(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlacementPlaced, o.PlacementStatus)
	assert.Equal(t, 65, o.Units) // 3900¢ cap / 60¢
	assert.Equal(t, 3_900, o.CostCents)
	assert.Equal(t, 6_100, report.Capital.RemainingCents)
}

// flakyLedger fails the next n GetOrdersByPlacementStatus calls, then
// delegates to the real ledger.
type flakyLedger struct {
	ports.Ledger
	failLoads int
}

func (f *flakyLedger) GetOrdersByPlacementStatus(ctx context.Context, statuses ...domain.PlacementStatus) ([]domain.Order, error) {
	if f.failLoads > 0 {
		f.failLoads--
		return nil, errors.New("database is locked")
	}
	return f.Ledger.GetOrdersByPlacementStatus(ctx, statuses...)
}

func TestRunOnceCommittedLoadFailureBlocksDeployment(t *testing.T) {
	ex := &fakeExchange{balanceCents: 10_000}
	feed := &fakeFeed{candidates: []domain.Candidate{
		candidate("KXNBAGAME-26MAR02LALBOS-LAL", 50),
	}}
	l := newTestLedger(t)
	ctx := context.Background()

	// A pending order already commits 2900¢ on the candidate's event. If the
	// committed load fails, the run must not size new capital against an
	// exposure view that cannot see it.
	existing := domain.NewOrder("KXNBAGAME-26MAR02LALBOS-LAL", "KXNBAGAME-26MAR02LALBOS", "LAL", domain.SideYes, 50, 58)
	require.NoError(t, l.SaveOrder(ctx, existing))

	e, err := New(ex, &flakyLedger{Ledger: l, failLoads: 1}, feed, Config{
		MaxEventFraction: 0.30,
		CallInterval:     time.Millisecond,
	})
	require.NoError(t, err)
	e.now = func() time.Time { return gateOpenNow }

	report, err := e.RunOnce(ctx)
	require.NoError(t, err)

	require.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Errors[0], "load committed orders")
	assert.Zero(t, report.Actions.Placed)
	assert.Empty(t, ex.placeReqs)

	orders, err := l.GetOrdersByPlacementStatus(ctx,
		domain.PlacementPending, domain.PlacementPlaced, domain.PlacementQueue)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, existing.ID, orders[0].ID)
}

func TestRunOncePlaceFailureKeepsEventCommitted(t *testing.T) {
	ex := &fakeExchange{balanceCents: 10_000, placeErr: errors.New("insufficient liquidity")}
	feed := &fakeFeed{candidates: []domain.Candidate{
		candidate("KXNBAGAME-26MAR02LALBOS-BOS", 50), // same event as the pending order
	}}
	e, l := newTestEngine(t, ex, feed, Config{MaxEventFraction: 0.30})
	ctx := context.Background()

	batch, err := l.UpsertBatch(ctx, domain.NewOrderBatch("2026-03-02", 500))
	require.NoError(t, err)
	o := domain.NewOrder("KXNBAGAME-26MAR02LALBOS-LAL", "KXNBAGAME-26MAR02LALBOS", "LAL", domain.SideYes, 50, 58)
	o.BatchID = batch.ID
	require.NoError(t, l.SaveOrder(ctx, o))

	report, err := e.RunOnce(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, report.Errors)

	// The failed submission leaves the order pending and still committed, so
	// discovery must not re-target its event in the same pass.
	assert.Zero(t, report.Actions.Discovered)
	orders, err := l.GetOrdersByPlacementStatus(ctx,
		domain.PlacementPending, domain.PlacementPlaced, domain.PlacementQueue)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, o.ID, orders[0].ID)
	assert.Equal(t, domain.PlacementPending, orders[0].PlacementStatus)

	// Re-sized against the cap before the failed attempt: 30% of 12900¢.
	assert.Equal(t, 77, orders[0].Units)
	assert.Equal(t, 3_850, report.Capital.DeployedCents)
	assert.Equal(t, 10_000, report.Capital.RemainingCents)
}

func TestRunOncePartialImmediateFillRecordsActualCost(t *testing.T) {
	ex := &fakeExchange{
		balanceCents: 10_000,
		placeStatus:  domain.DetailExecuted,
		details: map[string]domain.OrderDetail{
			"EX-1": {Status: domain.DetailExecuted, FilledCount: 30, PriceCents: 50},
		},
	}
	feed := &fakeFeed{candidates: []domain.Candidate{candidate("KXNBAGAME-26MAR02LALBOS-LAL", 50)}}
	e, l := newTestEngine(t, ex, feed, Config{MaxEventFraction: 0.30})

	ctx := context.Background()
	report, err := e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Actions.Placed)

	orders, err := l.GetOrdersByPlacementStatus(ctx, domain.PlacementConfirmed)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 60, orders[0].Units) // 3000¢ cap / 50¢
	require.NotNil(t, orders[0].ExecutedCostCents)
	assert.Equal(t, 1_500, *orders[0].ExecutedCostCents) // 30 of 60 filled
	assert.Equal(t, 1_500, report.Capital.DeployedCents)
}

func TestRunOnceSkipsEventsWithExposure(t *testing.T) {
	ex := &fakeExchange{
		balanceCents: 10_000,
		positions:    []domain.Position{{Ticker: "KXNBAGAME-26MAR02LALBOS-LAL", CostCents: 2_000}},
	}
	feed := &fakeFeed{candidates: []domain.Candidate{
		candidate("KXNBAGAME-26MAR02LALBOS-BOS", 50), // same event as the position
		candidate("KXNHLGAME-26MAR02NYRBUF-NYR", 50),
	}}
	e, _ := newTestEngine(t, ex, feed, Config{MaxEventFraction: 0.30})

	report, err := e.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Actions.Discovered)
	require.Len(t, ex.placeReqs, 1)
	assert.Equal(t, "KXNHLGAME-26MAR02NYRBUF-NYR", ex.placeReqs[0].Ticker)
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/dnavarro/kalshibot/internal/domain"
	"github.com/dnavarro/kalshibot/internal/ports"
)

const (
	defaultMaxEventFraction = 0.03
	defaultMaxOrderCents    = 10_000 // $100 absolute per-order ceiling
	defaultImproveAfter     = 60 * time.Minute
	defaultCancelAfter      = 240 * time.Minute
	defaultImproveStep      = 1
	defaultExecuteAfterHour = 10
	defaultRolloverHour     = 4
	defaultCallInterval     = 500 * time.Millisecond
	maxPriceCents           = 99
)

// Config holds the engine's policy knobs. Odds thresholds live in the
// candidate feed, not here.
type Config struct {
	MaxEventFraction float64       // fraction of total portfolio allowed on one event
	MaxOrderCents    int           // absolute per-order ceiling, independent of portfolio size
	ImproveAfter     time.Duration // resting age at which an order is re-priced
	CancelAfter      time.Duration // resting age at which an order is cancelled + blacklisted
	ImproveStepCents int           // price bump per improvement
	ExecuteAfterHour int           // local hour gate for executing pending orders
	RolloverHour     int           // local hour before which the previous trading day applies
	Timezone         string
	CallInterval     time.Duration // min spacing between exchange place/cancel/lookup calls
	UnitSizeCents    int           // recorded on the day's batch
}

// Actions counts what one run did.
type Actions struct {
	Improved   int `json:"improved"`
	Cancelled  int `json:"cancelled"`
	Placed     int `json:"placed"`
	Discovered int `json:"discovered"`
}

// Capital is the run's money view, all cents.
type Capital struct {
	AvailableCents int `json:"available_cents"`
	DeployedCents  int `json:"deployed_cents"`
	RemainingCents int `json:"remaining_cents"`
}

// Action is one per-item log entry in the run report.
type Action struct {
	Op      string `json:"op"` // improved | cancelled | placed | confirmed | queued | skipped
	OrderID string `json:"order_id,omitempty"`
	Ticker  string `json:"ticker,omitempty"`
	Note    string `json:"note,omitempty"`
}

// RunReport is returned by every invocation so an operator can audit the run
// without reconstructing it from logs.
type RunReport struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	TradingDay string    `json:"trading_day"`
	Actions    Actions   `json:"actions"`
	Capital    Capital   `json:"capital"`
	Details    []Action  `json:"details"`
	Errors     []string  `json:"errors"`
}

func (r *RunReport) detail(op, orderID, ticker, note string) {
	r.Details = append(r.Details, Action{Op: op, OrderID: orderID, Ticker: ticker, Note: note})
}

func (r *RunReport) fail(op, id string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s %s: %v", op, id, err))
	slog.Warn("engine: item failed", "op", op, "id", id, "err", err)
}

// runState is the single piece of run-local mutable shared state: the
// available-balance accumulator plus the exposure view, threaded through
// every phase of one run. Not safe across overlapping runs; overlap
// protection is the scheduler's job.
type runState struct {
	availableCents   int
	perEventCapCents int
	exposure         *domain.ExposureLedger
	restingByID      map[string]domain.RestingOrder
	tradingDay       time.Time
	batch            domain.OrderBatch
	report           *RunReport
}

// reclaim returns a cancelled/ghosted order's full cost to the pool.
func (st *runState) reclaim(eventTicker string, cents int) {
	st.availableCents += cents
	st.exposure.Release(eventTicker, cents)
}

// Engine sequences reconciliation, resting-order policy, queued execution,
// discovery and allocation, once per invocation.
type Engine struct {
	exchange ports.Exchange
	ledger   ports.Ledger
	feed     ports.CandidateFeed
	cfg      Config
	loc      *time.Location
	pacer    *rate.Limiter

	now func() time.Time
}

// New creates an engine. Zero config fields get conservative defaults.
func New(exchange ports.Exchange, ledger ports.Ledger, feed ports.CandidateFeed, cfg Config) (*Engine, error) {
	if cfg.MaxEventFraction <= 0 {
		cfg.MaxEventFraction = defaultMaxEventFraction
	}
	if cfg.MaxOrderCents <= 0 {
		cfg.MaxOrderCents = defaultMaxOrderCents
	}
	if cfg.ImproveAfter <= 0 {
		cfg.ImproveAfter = defaultImproveAfter
	}
	if cfg.CancelAfter <= 0 {
		cfg.CancelAfter = defaultCancelAfter
	}
	if cfg.ImproveStepCents <= 0 {
		cfg.ImproveStepCents = defaultImproveStep
	}
	if cfg.ExecuteAfterHour <= 0 {
		cfg.ExecuteAfterHour = defaultExecuteAfterHour
	}
	if cfg.RolloverHour <= 0 {
		cfg.RolloverHour = defaultRolloverHour
	}
	if cfg.Timezone == "" {
		cfg.Timezone = domain.DefaultExchangeTimezone
	}
	if cfg.CallInterval <= 0 {
		cfg.CallInterval = defaultCallInterval
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine.New: load timezone %q: %w", cfg.Timezone, err)
	}

	return &Engine{
		exchange: exchange,
		ledger:   ledger,
		feed:     feed,
		cfg:      cfg,
		loc:      loc,
		pacer:    rate.NewLimiter(rate.Every(cfg.CallInterval), 1),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// RunOnce executes one full pass: balance + positions → reconcile placed
// orders → resting-order policy → gated execution of pending orders →
// discovery → allocation + submission. Scheduler ticks and operator calls
// produce the identical run.
func (e *Engine) RunOnce(ctx context.Context) (*RunReport, error) {
	now := e.now()
	report := &RunReport{
		StartedAt:  now,
		TradingDay: domain.TradingDayString(now, e.loc, e.cfg.RolloverHour),
	}

	// The only fatal precondition: without a balance there is no capital math.
	balanceCents, err := e.exchange.GetBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.RunOnce: get balance: %w", err)
	}
	slog.Info("engine: run start", "trading_day", report.TradingDay, "balance_cents", balanceCents)

	positions, posErr := e.exchange.GetPositions(ctx)
	if posErr != nil {
		report.fail("get positions", "-", posErr)
	}

	resting, restingErr := e.exchange.GetRestingOrders(ctx)
	if restingErr != nil {
		report.fail("get resting orders", "-", restingErr)
	}
	restingByID := make(map[string]domain.RestingOrder, len(resting))
	for _, r := range resting {
		restingByID[r.ExchangeID] = r
	}

	committed, commitErr := e.ledger.GetOrdersByPlacementStatus(ctx,
		domain.PlacementPending, domain.PlacementPlaced, domain.PlacementConfirmed)
	if commitErr != nil {
		report.fail("load committed orders", "-", commitErr)
	}

	exposure := domain.BuildExposureLedger(committed, positions, resting, e.eventResolver(committed))

	st := &runState{
		availableCents: balanceCents,
		exposure:       exposure,
		restingByID:    restingByID,
		tradingDay:     domain.TradingDay(now, e.loc, e.cfg.RolloverHour),
		report:         report,
	}
	totalPortfolio := st.availableCents + exposure.TotalCents()
	// Floor of portfolio × fraction. The nudge keeps binary float drift from
	// shaving a cent off an exact product (10000 × 0.30 must cap at 3000).
	st.perEventCapCents = int(math.Floor(float64(totalPortfolio)*e.cfg.MaxEventFraction + 1e-6))

	batch, err := e.ledger.UpsertBatch(ctx, domain.NewOrderBatch(report.TradingDay, e.cfg.UnitSizeCents))
	if err != nil {
		report.fail("upsert batch", report.TradingDay, err)
	}
	st.batch = batch

	// Phases 2–3 need the resting snapshot to tell live orders from dead ones.
	if restingErr == nil {
		e.reconcilePlaced(ctx, st)
		e.applyRestingPolicy(ctx, st)
	}

	// Phases 4–6 deploy capital against the exposure view, so a failed
	// committed-order load blocks them: an exposure ledger blind to the
	// ledger's own orders would let the per-event cap check pass against
	// understated commitments.
	if commitErr == nil {
		e.executePending(ctx, st)
	}

	// Phases 5–6 additionally need both exchange snapshots.
	if posErr == nil && restingErr == nil && commitErr == nil {
		candidates := e.discoverCandidates(ctx, st)
		orders := e.allocate(st, candidates)
		e.placeAllocations(ctx, st, orders)
	}

	report.Capital = Capital{
		AvailableCents: balanceCents,
		DeployedCents:  st.exposure.TotalCents(),
		RemainingCents: st.availableCents,
	}
	report.FinishedAt = e.now()

	slog.Info("engine: run complete",
		"improved", report.Actions.Improved,
		"cancelled", report.Actions.Cancelled,
		"placed", report.Actions.Placed,
		"discovered", report.Actions.Discovered,
		"remaining_cents", report.Capital.RemainingCents,
		"errors", len(report.Errors),
	)
	return report, nil
}

// eventResolver maps tickers to events via the ledger's own orders, falling
// back to ticker-prefix derivation for markets the ledger never saw.
func (e *Engine) eventResolver(orders []domain.Order) func(string) string {
	byTicker := make(map[string]string, len(orders))
	for _, o := range orders {
		byTicker[o.Ticker] = o.EventTicker
	}
	return func(ticker string) string {
		if evt, ok := byTicker[ticker]; ok {
			return evt
		}
		return domain.EventTickerFromTicker(ticker)
	}
}

// pace enforces the fixed inter-call delay on exchange mutations.
func (e *Engine) pace(ctx context.Context) {
	_ = e.pacer.Wait(ctx)
}

// gateOpen reports whether the local exchange-timezone time has passed the
// execution hour.
func (e *Engine) gateOpen() bool {
	return e.now().In(e.loc).Hour() >= e.cfg.ExecuteAfterHour
}

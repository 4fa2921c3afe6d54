package storage

// sqlite.go — durable ledger for orders, batches and the illiquid-market
// blacklist.
//
// Tables:
//   orders           — one row per order, full lifecycle columns
//   order_batches    — one row per trading day (upsert by batch_date)
//   illiquid_markets — blacklisted tickers (upsert by ticker)

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dnavarro/kalshibot/internal/domain"
	"github.com/dnavarro/kalshibot/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id                     TEXT PRIMARY KEY,   -- local UUID
    ticker                 TEXT NOT NULL,
    event_ticker           TEXT NOT NULL,
    title                  TEXT,
    side                   TEXT NOT NULL,      -- YES / NO
    price_cents            INTEGER NOT NULL,
    units                  INTEGER NOT NULL,
    cost_cents             INTEGER NOT NULL,
    executed_price_cents   INTEGER,
    executed_cost_cents    INTEGER,
    potential_payout_cents INTEGER NOT NULL DEFAULT 0,
    actual_payout_cents    INTEGER,
    fee_cents              INTEGER,
    open_interest          INTEGER NOT NULL DEFAULT 0,
    market_close_time      DATETIME,
    placement_status       TEXT NOT NULL DEFAULT 'pending',
    result_status          TEXT NOT NULL DEFAULT 'undecided',
    settlement_status      TEXT NOT NULL DEFAULT 'pending',
    exchange_order_id      TEXT NOT NULL DEFAULT '',
    cancel_reason          TEXT NOT NULL DEFAULT '',
    batch_id               TEXT NOT NULL DEFAULT '',
    created_at             DATETIME NOT NULL,
    placed_at              DATETIME
);

CREATE INDEX IF NOT EXISTS orders_placement ON orders(placement_status);
CREATE INDEX IF NOT EXISTS orders_event     ON orders(event_ticker);
CREATE INDEX IF NOT EXISTS orders_batch     ON orders(batch_id);

CREATE TABLE IF NOT EXISTS order_batches (
    id               TEXT PRIMARY KEY,
    batch_date       TEXT NOT NULL UNIQUE,    -- trading day, YYYY-MM-DD
    unit_size_cents  INTEGER NOT NULL DEFAULT 0,
    total_orders     INTEGER NOT NULL DEFAULT 0,
    total_cost_cents INTEGER NOT NULL DEFAULT 0,
    is_paused        INTEGER NOT NULL DEFAULT 0,
    created_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS illiquid_markets (
    ticker       TEXT PRIMARY KEY,
    event_ticker TEXT NOT NULL,
    reason       TEXT NOT NULL DEFAULT '',
    order_id     TEXT NOT NULL DEFAULT '',
    created_at   DATETIME NOT NULL
);
`

// SQLiteLedger implements ports.Ledger on SQLite (pure Go, no CGo).
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens (or creates) the database at the given path and
// applies the schema.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteLedger: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	s := &SQLiteLedger{db: db}
	if err := s.ApplySchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// ApplySchema creates the ledger tables if they don't exist.
func (s *SQLiteLedger) ApplySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("storage.ApplySchema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

// ─── Orders ──────────────────────────────────────────────────────────────────

// SaveOrder inserts a new order row.
func (s *SQLiteLedger) SaveOrder(ctx context.Context, o domain.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders
		  (id, ticker, event_ticker, title, side, price_cents, units, cost_cents,
		   executed_price_cents, executed_cost_cents, potential_payout_cents,
		   actual_payout_cents, fee_cents, open_interest, market_close_time,
		   placement_status, result_status, settlement_status,
		   exchange_order_id, cancel_reason, batch_id, created_at, placed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.Ticker, o.EventTicker, o.Title, string(o.Side), o.PriceCents, o.Units, o.CostCents,
		nullInt(o.ExecutedPriceCents), nullInt(o.ExecutedCostCents), o.PotentialPayoutCents,
		nullInt(o.ActualPayoutCents), nullInt(o.FeeCents), o.OpenInterest, nullTimeVal(o.MarketCloseTime),
		string(o.PlacementStatus), string(o.ResultStatus), string(o.SettlementStatus),
		o.ExchangeOrderID, o.CancelReason, o.BatchID, o.CreatedAt.UTC(), nullTime(o.PlacedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveOrder %s: %w", o.ID, err)
	}
	return nil
}

// GetOrder returns a single order by local ID.
func (s *SQLiteLedger) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	orders, err := s.queryOrders(ctx, `WHERE id=?`, id)
	if err != nil {
		return domain.Order{}, err
	}
	if len(orders) == 0 {
		return domain.Order{}, ports.ErrNotFound
	}
	return orders[0], nil
}

// GetOrdersByPlacementStatus returns orders in any of the given states,
// oldest first so repeated runs process items in arrival order.
func (s *SQLiteLedger) GetOrdersByPlacementStatus(ctx context.Context, statuses ...domain.PlacementStatus) ([]domain.Order, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	return s.queryOrders(ctx, `WHERE placement_status IN (`+placeholders+`)`, args...)
}

// GetOrdersByBatch returns orders in a batch with the given placement status.
func (s *SQLiteLedger) GetOrdersByBatch(ctx context.Context, batchID string, status domain.PlacementStatus) ([]domain.Order, error) {
	return s.queryOrders(ctx, `WHERE batch_id=? AND placement_status=?`, batchID, string(status))
}

// MarkOrderPlaced records the exchange acknowledgement of a submission.
func (s *SQLiteLedger) MarkOrderPlaced(ctx context.Context, id, exchangeOrderID string, placedAt time.Time) error {
	return s.exec(ctx, "MarkOrderPlaced", id,
		`UPDATE orders SET placement_status='placed', exchange_order_id=?, placed_at=? WHERE id=?`,
		exchangeOrderID, placedAt.UTC(), id)
}

// MarkOrderConfirmed records an executed fill with the actual fill economics.
func (s *SQLiteLedger) MarkOrderConfirmed(ctx context.Context, id string, executedPriceCents, executedCostCents int) error {
	return s.exec(ctx, "MarkOrderConfirmed", id,
		`UPDATE orders SET placement_status='confirmed', executed_price_cents=?, executed_cost_cents=?
		 WHERE id=? AND exchange_order_id != ''`,
		executedPriceCents, executedCostCents, id)
}

// MarkOrderCancelled moves an order to its terminal cancelled state.
func (s *SQLiteLedger) MarkOrderCancelled(ctx context.Context, id, reason string) error {
	return s.exec(ctx, "MarkOrderCancelled", id,
		`UPDATE orders SET placement_status='cancelled', cancel_reason=? WHERE id=?`, reason, id)
}

// MarkOrderQueued routes a cap-violating order to operator review.
func (s *SQLiteLedger) MarkOrderQueued(ctx context.Context, id, reason string) error {
	return s.exec(ctx, "MarkOrderQueued", id,
		`UPDATE orders SET placement_status='queue', cancel_reason=? WHERE id=?`, reason, id)
}

// UpdateOrderPrice re-prices an order in place after an improvement: new
// exchange ID, new price, fresh placement time. Units and cost are untouched.
func (s *SQLiteLedger) UpdateOrderPrice(ctx context.Context, id string, priceCents int, exchangeOrderID string, placedAt time.Time) error {
	return s.exec(ctx, "UpdateOrderPrice", id,
		`UPDATE orders SET price_cents=?, exchange_order_id=?, placed_at=? WHERE id=?`,
		priceCents, exchangeOrderID, placedAt.UTC(), id)
}

// UpdateOrderUnits recomputes the unit count of a still-pending order before
// submission. Cost tracks the new estimate.
func (s *SQLiteLedger) UpdateOrderUnits(ctx context.Context, id string, units, costCents int) error {
	return s.exec(ctx, "UpdateOrderUnits", id,
		`UPDATE orders SET units=?, cost_cents=?, potential_payout_cents=? WHERE id=? AND placement_status='pending'`,
		units, costCents, 100*units, id)
}

// MarkOrderResult flips the outcome once the market settles. Only the
// undecided → won/lost transition is allowed.
func (s *SQLiteLedger) MarkOrderResult(ctx context.Context, id string, result domain.ResultStatus) error {
	return s.exec(ctx, "MarkOrderResult", id,
		`UPDATE orders SET result_status=? WHERE id=? AND result_status='undecided'`, string(result), id)
}

// MarkOrderSettled records payout and fees once they post.
func (s *SQLiteLedger) MarkOrderSettled(ctx context.Context, id string, settlement domain.SettlementStatus, payoutCents, feeCents int) error {
	return s.exec(ctx, "MarkOrderSettled", id,
		`UPDATE orders SET settlement_status=?, actual_payout_cents=?, fee_cents=? WHERE id=?`,
		string(settlement), payoutCents, feeCents, id)
}

// GetSettledOrders returns confirmed orders whose market has resolved.
func (s *SQLiteLedger) GetSettledOrders(ctx context.Context) ([]domain.Order, error) {
	return s.queryOrders(ctx,
		`WHERE placement_status='confirmed' AND result_status IN ('won','lost')`)
}

func (s *SQLiteLedger) exec(ctx context.Context, op, id, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("storage.%s %s: %w", op, id, err)
	}
	return nil
}

func (s *SQLiteLedger) queryOrders(ctx context.Context, where string, args ...any) ([]domain.Order, error) {
	q := `SELECT id, ticker, event_ticker, title, side, price_cents, units, cost_cents,
	             executed_price_cents, executed_cost_cents, potential_payout_cents,
	             actual_payout_cents, fee_cents, open_interest, market_close_time,
	             placement_status, result_status, settlement_status,
	             exchange_order_id, cancel_reason, batch_id, created_at, placed_at
	      FROM orders ` + where + ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.queryOrders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.queryOrders: scan: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanOrder(rows *sql.Rows) (domain.Order, error) {
	var o domain.Order
	var side, placement, result, settlement string
	var execPrice, execCost, actualPayout, fee sql.NullInt64
	var closeTime, placedAt sql.NullString

	err := rows.Scan(
		&o.ID, &o.Ticker, &o.EventTicker, &o.Title, &side, &o.PriceCents, &o.Units, &o.CostCents,
		&execPrice, &execCost, &o.PotentialPayoutCents,
		&actualPayout, &fee, &o.OpenInterest, &closeTime,
		&placement, &result, &settlement,
		&o.ExchangeOrderID, &o.CancelReason, &o.BatchID, &o.CreatedAt, &placedAt,
	)
	if err != nil {
		return o, err
	}

	o.Side = domain.Side(side)
	o.PlacementStatus = domain.PlacementStatus(placement)
	o.ResultStatus = domain.ResultStatus(result)
	o.SettlementStatus = domain.SettlementStatus(settlement)
	o.ExecutedPriceCents = intPtr(execPrice)
	o.ExecutedCostCents = intPtr(execCost)
	o.ActualPayoutCents = intPtr(actualPayout)
	o.FeeCents = intPtr(fee)
	o.MarketCloseTime = parseStoredTime(closeTime)
	if t := parseStoredTime(placedAt); !t.IsZero() {
		o.PlacedAt = &t
	}
	return o, nil
}

// ─── Batches ─────────────────────────────────────────────────────────────────

// UpsertBatch creates the batch for a trading day if missing and returns the
// stored row either way. The natural key is batch_date.
func (s *SQLiteLedger) UpsertBatch(ctx context.Context, b domain.OrderBatch) (domain.OrderBatch, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_batches (id, batch_date, unit_size_cents, total_orders, total_cost_cents, is_paused, created_at)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(batch_date) DO UPDATE SET unit_size_cents = excluded.unit_size_cents`,
		b.ID, b.BatchDate, b.UnitSizeCents, b.TotalOrders, b.TotalCostCents, boolToInt(b.IsPaused), b.CreatedAt.UTC(),
	)
	if err != nil {
		return domain.OrderBatch{}, fmt.Errorf("storage.UpsertBatch %s: %w", b.BatchDate, err)
	}
	return s.GetBatch(ctx, b.BatchDate)
}

// GetBatch returns the batch for a trading day.
func (s *SQLiteLedger) GetBatch(ctx context.Context, batchDate string) (domain.OrderBatch, error) {
	var b domain.OrderBatch
	var paused int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, batch_date, unit_size_cents, total_orders, total_cost_cents, is_paused, created_at
		FROM order_batches WHERE batch_date=?`, batchDate).Scan(
		&b.ID, &b.BatchDate, &b.UnitSizeCents, &b.TotalOrders, &b.TotalCostCents, &paused, &b.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return b, ports.ErrNotFound
	}
	if err != nil {
		return b, fmt.Errorf("storage.GetBatch %s: %w", batchDate, err)
	}
	b.IsPaused = paused != 0
	return b, nil
}

// SetBatchPaused flips the operator kill switch for a trading day.
func (s *SQLiteLedger) SetBatchPaused(ctx context.Context, batchDate string, paused bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE order_batches SET is_paused=? WHERE batch_date=?`, boolToInt(paused), batchDate)
	if err != nil {
		return fmt.Errorf("storage.SetBatchPaused %s: %w", batchDate, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// AddBatchTotals accumulates submitted order counts and cost into the batch row.
func (s *SQLiteLedger) AddBatchTotals(ctx context.Context, batchID string, orders, costCents int) error {
	return s.exec(ctx, "AddBatchTotals", batchID,
		`UPDATE order_batches SET total_orders = total_orders + ?, total_cost_cents = total_cost_cents + ? WHERE id=?`,
		orders, costCents, batchID)
}

// ─── Illiquid markets ────────────────────────────────────────────────────────

// UpsertIlliquidMarket blacklists a ticker. Idempotent: re-blacklisting
// refreshes the reason and originating order.
func (s *SQLiteLedger) UpsertIlliquidMarket(ctx context.Context, m domain.IlliquidMarket) error {
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO illiquid_markets (ticker, event_ticker, reason, order_id, created_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(ticker) DO UPDATE SET
		  reason   = excluded.reason,
		  order_id = excluded.order_id`,
		m.Ticker, m.EventTicker, m.Reason, m.OrderID, created.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.UpsertIlliquidMarket %s: %w", m.Ticker, err)
	}
	return nil
}

// GetIlliquidTickers returns the blacklist as a lookup set.
func (s *SQLiteLedger) GetIlliquidTickers(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ticker FROM illiquid_markets`)
	if err != nil {
		return nil, fmt.Errorf("storage.GetIlliquidTickers: %w", err)
	}
	defer rows.Close()

	tickers := make(map[string]bool)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("storage.GetIlliquidTickers: scan: %w", err)
		}
		tickers[t] = true
	}
	return tickers, rows.Err()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullTimeVal(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func parseStoredTime(v sql.NullString) time.Time {
	if !v.Valid || v.String == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, v.String)
	if t.IsZero() {
		t, _ = time.Parse("2006-01-02 15:04:05", v.String)
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

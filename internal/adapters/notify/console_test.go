package notify_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dnavarro/kalshibot/internal/adapters/notify"
	"github.com/dnavarro/kalshibot/internal/application/engine"
	"github.com/dnavarro/kalshibot/internal/application/whatif"
	"github.com/dnavarro/kalshibot/internal/domain"
)

func TestConsole_PrintRunReport_Compact(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	c.PrintRunReport(&engine.RunReport{
		TradingDay: "2026-03-02",
		Actions:    engine.Actions{Placed: 3, Improved: 1, Cancelled: 2, Discovered: 5},
		Capital:    engine.Capital{AvailableCents: 10_000, DeployedCents: 6_000, RemainingCents: 4_000},
	})

	out := buf.String()
	assert.Contains(t, out, "2026-03-02")
	assert.Contains(t, out, "placed:3")
	assert.Contains(t, out, "improved:1")
	assert.Contains(t, out, "remaining:$40.00")
	assert.NotContains(t, out, "Capital:") // table-only section
}

func TestConsole_PrintRunReport_Table(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	c.PrintRunReport(&engine.RunReport{
		TradingDay: "2026-03-02",
		Details: []engine.Action{
			{Op: "placed", OrderID: "aabbccdd-1111", Ticker: "KXNBA-26MAR02LALBOS-LAL", Note: "YES 60 units @ 50¢"},
		},
		Capital: engine.Capital{AvailableCents: 10_000, DeployedCents: 3_000, RemainingCents: 7_000},
		Errors:  []string{"get positions -: timeout"},
	})

	out := buf.String()
	assert.Contains(t, out, "KXNBA-26MAR02LALBOS-LAL")
	assert.Contains(t, out, "aabbccdd")
	assert.Contains(t, out, "deployed $30.00")
	assert.Contains(t, out, "ERROR: get positions")
}

func TestConsole_PrintOrders(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	o := domain.NewOrder("KXNBA-26MAR02LALBOS-LAL", "KXNBA-26MAR02LALBOS", "LAL", domain.SideYes, 90, 10)
	placedAt := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	o.PlacedAt = &placedAt
	o.PlacementStatus = domain.PlacementPlaced

	c.PrintOrders([]domain.Order{o})

	out := buf.String()
	assert.Contains(t, out, "KXNBA-26MAR02LALBOS-LAL")
	assert.Contains(t, out, "90¢")
	assert.Contains(t, out, "$9.00")
	assert.Contains(t, out, "1 orders, $9.00 committed")
}

func TestConsole_PrintOrders_Empty(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	c.PrintOrders(nil)
	assert.Contains(t, buf.String(), "no orders")
}

func TestConsole_PrintWhatIf(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	c.PrintWhatIf(whatif.Report{
		Settled: whatif.Summary{
			Orders: 10, Won: 9, Lost: 1,
			CostCents: 9_000, PayoutCents: 9_500, FeeCents: 100, NetCents: 400,
			WinRate: 0.9, ImpliedWinRate: 0.92,
		},
		Open: whatif.Projection{
			Orders: 2, AtRiskCents: 1_800, ExpectedNetCents: 50,
			WorstNetCents: -1_800, BestNetCents: 200, ProfitProbability: 0.83,
		},
	})

	out := buf.String()
	assert.Contains(t, out, "SETTLED (10 orders)")
	assert.Contains(t, out, "won 9 / lost 1")
	assert.Contains(t, out, "net $4.00")
	assert.Contains(t, out, "OPEN BOOK (2 orders, $18.00 at risk)")
	assert.Contains(t, out, "P(profit) 83.0%")
}

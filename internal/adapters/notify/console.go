package notify

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/dnavarro/kalshibot/internal/application/engine"
	"github.com/dnavarro/kalshibot/internal/application/whatif"
	"github.com/dnavarro/kalshibot/internal/domain"
)

// Console renders run reports and ledger views for an operator terminal.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole writes to stdout. table selects the full table output over the
// one-line summary.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter targets an arbitrary writer, for tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// PrintRunReport renders what one engine pass did.
func (c *Console) PrintRunReport(r *engine.RunReport) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "[%s] day %s — placed:%d improved:%d cancelled:%d discovered:%d remaining:%s errors:%d\n",
		now, r.TradingDay,
		r.Actions.Placed, r.Actions.Improved, r.Actions.Cancelled, r.Actions.Discovered,
		usd(r.Capital.RemainingCents), len(r.Errors))

	if !c.table {
		return
	}

	if len(r.Details) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Op", "Order", "Ticker", "Note")
		for _, d := range r.Details {
			table.Append(d.Op, shortID(d.OrderID), d.Ticker, d.Note)
		}
		table.Render()
	}

	fmt.Fprintf(c.out, "  Capital: available %s | deployed %s | remaining %s\n",
		usd(r.Capital.AvailableCents), usd(r.Capital.DeployedCents), usd(r.Capital.RemainingCents))
	for _, e := range r.Errors {
		fmt.Fprintf(c.out, "  ERROR: %s\n", e)
	}
}

// PrintOrders renders a ledger slice, newest last.
func (c *Console) PrintOrders(orders []domain.Order) {
	if len(orders) == 0 {
		fmt.Fprintln(c.out, "no orders")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Order", "Ticker", "Side", "Price", "Units", "Cost", "Status", "Result", "Placed")

	var totalCost int
	for _, o := range orders {
		placed := "-"
		if o.PlacedAt != nil {
			placed = o.PlacedAt.Format("01-02 15:04")
		}
		cost := o.CostCents
		if o.ExecutedCostCents != nil {
			cost = *o.ExecutedCostCents
		}
		totalCost += cost

		table.Append(
			shortID(o.ID),
			o.Ticker,
			string(o.Side),
			fmt.Sprintf("%d¢", o.PriceCents),
			fmt.Sprintf("%d", o.Units),
			usd(cost),
			string(o.PlacementStatus),
			string(o.ResultStatus),
			placed,
		)
	}
	table.Render()
	fmt.Fprintf(c.out, "  %d orders, %s committed\n", len(orders), usd(totalCost))
}

// PrintWhatIf renders realized results plus the open-book projection.
func (c *Console) PrintWhatIf(rep whatif.Report) {
	s := rep.Settled
	fmt.Fprintf(c.out, "=== SETTLED (%d orders) ===\n", s.Orders)
	if s.Orders > 0 {
		fmt.Fprintf(c.out, "  won %d / lost %d (%.1f%% vs %.1f%% implied)\n",
			s.Won, s.Lost, s.WinRate*100, s.ImpliedWinRate*100)
		fmt.Fprintf(c.out, "  cost %s  payout %s  fees %s  net %s\n",
			usd(s.CostCents), usd(s.PayoutCents), usd(s.FeeCents), usd(s.NetCents))
	}

	o := rep.Open
	fmt.Fprintf(c.out, "=== OPEN BOOK (%d orders, %s at risk) ===\n", o.Orders, usd(o.AtRiskCents))
	if o.Orders > 0 {
		fmt.Fprintf(c.out, "  expected %s  range [%s, %s]  P(profit) %.1f%%\n",
			usd(o.ExpectedNetCents), usd(o.WorstNetCents), usd(o.BestNetCents), o.ProfitProbability*100)
	}
}

func usd(cents int) string {
	return fmt.Sprintf("$%.2f", float64(cents)/100)
}

// shortID keeps the first UUID group, enough to grep the ledger with.
func shortID(id string) string {
	if idx := strings.Index(id, "-"); idx > 0 {
		return id[:idx]
	}
	return id
}

// Package whatif summarizes realized performance from settled orders and
// projects the open book by treating each contract price as a win
// probability. All randomness in the repo is confined to this package.
package whatif

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/dnavarro/kalshibot/internal/domain"
	"github.com/dnavarro/kalshibot/internal/ports"
)

const defaultTrials = 10_000

// Summary aggregates settled orders.
type Summary struct {
	Orders           int
	Won              int
	Lost             int
	CostCents        int
	PayoutCents      int
	FeeCents         int
	NetCents         int
	WinRate          float64
	ImpliedWinRate   float64 // average entry price, what the market charged
	EdgePercentPoint float64 // WinRate - ImpliedWinRate, in points
}

// Projection is the Monte Carlo estimate for confirmed, undecided orders.
type Projection struct {
	Orders            int
	AtRiskCents       int
	ExpectedNetCents  int
	WorstNetCents     int
	BestNetCents      int
	ProfitProbability float64
}

// Report bundles both views for the CLI and the operator API.
type Report struct {
	Settled Summary
	Open    Projection
}

// Analyzer reads the ledger and never touches the exchange.
type Analyzer struct {
	ledger ports.Ledger
	rng    *rand.Rand
}

func New(ledger ports.Ledger, seed int64) *Analyzer {
	return &Analyzer{ledger: ledger, rng: rand.New(rand.NewSource(seed))}
}

// Report computes realized results plus a projection of the open book.
func (a *Analyzer) Report(ctx context.Context) (Report, error) {
	settled, err := a.ledger.GetSettledOrders(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("whatif.Report: load settled orders: %w", err)
	}

	confirmed, err := a.ledger.GetOrdersByPlacementStatus(ctx, domain.PlacementConfirmed)
	if err != nil {
		return Report{}, fmt.Errorf("whatif.Report: load open orders: %w", err)
	}
	var open []domain.Order
	for _, o := range confirmed {
		if o.ResultStatus == domain.ResultUndecided {
			open = append(open, o)
		}
	}

	return Report{
		Settled: Summarize(settled),
		Open:    Simulate(open, defaultTrials, a.rng),
	}, nil
}

// Summarize folds settled orders into realized totals. Orders without a
// decided result are skipped.
func Summarize(orders []domain.Order) Summary {
	var s Summary
	var priceSum int
	for _, o := range orders {
		if o.ResultStatus == domain.ResultUndecided {
			continue
		}
		s.Orders++
		s.CostCents += spend(o)
		priceSum += o.PriceCents
		if o.ActualPayoutCents != nil {
			s.PayoutCents += *o.ActualPayoutCents
		}
		if o.FeeCents != nil {
			s.FeeCents += *o.FeeCents
		}
		if o.ResultStatus == domain.ResultWon {
			s.Won++
		} else {
			s.Lost++
		}
	}
	s.NetCents = s.PayoutCents - s.CostCents - s.FeeCents
	if s.Orders > 0 {
		s.WinRate = float64(s.Won) / float64(s.Orders)
		s.ImpliedWinRate = float64(priceSum) / float64(s.Orders) / 100
		s.EdgePercentPoint = (s.WinRate - s.ImpliedWinRate) * 100
	}
	return s
}

// Simulate runs a price-weighted coin flip over the open book: each order
// wins a trial with probability price/100 and pays 100¢ per unit.
func Simulate(open []domain.Order, trials int, rng *rand.Rand) Projection {
	p := Projection{Orders: len(open)}
	if len(open) == 0 || trials <= 0 {
		return p
	}

	for _, o := range open {
		p.AtRiskCents += spend(o)
	}

	var totalNet int64
	profitable := 0
	for t := 0; t < trials; t++ {
		net := 0
		for _, o := range open {
			net -= spend(o)
			if rng.Float64()*100 < float64(o.PriceCents) {
				net += 100 * units(o)
			}
		}
		totalNet += int64(net)
		if net > 0 {
			profitable++
		}
		if t == 0 || net < p.WorstNetCents {
			p.WorstNetCents = net
		}
		if t == 0 || net > p.BestNetCents {
			p.BestNetCents = net
		}
	}

	p.ExpectedNetCents = int(totalNet / int64(trials))
	p.ProfitProbability = float64(profitable) / float64(trials)
	return p
}

// spend is what the order actually cost: the fill economics when known,
// the creation estimate otherwise.
func spend(o domain.Order) int {
	if o.ExecutedCostCents != nil {
		return *o.ExecutedCostCents
	}
	return o.CostCents
}

// units is the filled unit count backing the payout.
func units(o domain.Order) int {
	if o.ExecutedCostCents != nil && o.ExecutedPriceCents != nil && *o.ExecutedPriceCents > 0 {
		return *o.ExecutedCostCents / *o.ExecutedPriceCents
	}
	return o.Units
}

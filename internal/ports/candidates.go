package ports

import (
	"context"
	"time"

	"github.com/dnavarro/kalshibot/internal/domain"
)

// CandidateFeed supplies odds/liquidity-filtered markets for a trading day,
// already deduplicated to one market per event and sorted by descending
// liquidity. The engine applies no odds logic of its own.
type CandidateFeed interface {
	Candidates(ctx context.Context, tradingDay time.Time) ([]domain.Candidate, error)
}

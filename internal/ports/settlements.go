package ports

import (
	"context"

	"github.com/dnavarro/kalshibot/internal/domain"
)

// SettlementSource reports markets that resolved for this account.
type SettlementSource interface {
	GetSettlements(ctx context.Context) ([]domain.Settlement, error)
}

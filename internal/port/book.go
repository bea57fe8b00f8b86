package port

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/spotdesk/escrow-reconciler/internal/domain"
)

// BookDepth is the order-book depth cache: a sparse map from
// (symbol, side, price) to the aggregate remaining amount at that level.
// Absence of a level means zero depth.
type BookDepth interface {
	// GetLevel returns the aggregate amount at a level; ok is false
	// when the level does not exist.
	GetLevel(ctx context.Context, symbol string, side domain.Side, price decimal.Decimal) (amount decimal.Decimal, ok bool, err error)

	SetLevel(ctx context.Context, symbol string, side domain.Side, price, amount decimal.Decimal) error

	DeleteLevel(ctx context.Context, symbol string, side domain.Side, price decimal.Decimal) error
}

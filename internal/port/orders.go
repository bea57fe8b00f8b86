package port

import (
	"context"
	"time"

	"github.com/spotdesk/escrow-reconciler/internal/domain"
)

// OrderStore is the read/repair surface of the order store consumed by
// the reconciler. The reconciler never creates orders: it lists the open
// set once per pass and conditionally cancels individual orders.
type OrderStore interface {
	// ListOpenOrders materializes all OPEN orders with remaining > 0,
	// optionally scoped to one symbol ("" means all symbols).
	ListOpenOrders(ctx context.Context, symbol string) ([]*domain.Order, error)

	// CancelOpenOrder is a compare-and-set on the order's full
	// identifying tuple: the cancel applies only while the order is
	// still OPEN. Returns false (and no error) when a concurrent fill
	// or cancel got there first.
	CancelOpenOrder(ctx context.Context, ownerID string, createdAt time.Time, orderID string) (bool, error)
}

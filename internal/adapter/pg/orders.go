package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spotdesk/escrow-reconciler/internal/domain"
	"github.com/spotdesk/escrow-reconciler/internal/port"
)

var _ port.OrderStore = (*OrderStore)(nil)

type OrderStore struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// call Close when finished with the store.
func NewOrderStore(ctx context.Context, dsn string, log *zap.Logger) (*OrderStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create order pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping order store: %w", err)
	}
	return &OrderStore{pool: pool, log: log}, nil
}

func (s *OrderStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ListOpenOrders returns open orders with remaining > 0, FIFO by
// created_at. Rows whose numeric or enum fields cannot be read are
// logged and skipped rather than failing the whole scan: an unreadable
// record must not block recovery of the rest of the book.
func (s *OrderStore) ListOpenOrders(ctx context.Context, symbol string) ([]*domain.Order, error) {
	q := `
SELECT id, owner_id, symbol, side, price, quantity, remaining, cost, status, created_at, updated_at
FROM orders
WHERE status = 'OPEN' AND COALESCE(remaining, 0) > 0
`
	args := []any{}
	if symbol != "" {
		q += ` AND symbol = $1`
		args = append(args, symbol)
	}
	q += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pg: list open orders: %w", err)
	}
	defer rows.Close()

	var res []*domain.Order
	for rows.Next() {
		var o domain.Order
		var side, status string
		if err := rows.Scan(&o.ID, &o.OwnerID, &o.Symbol, &side, &o.Price,
			&o.Quantity, &o.Remaining, &o.Cost, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			s.log.Warn("skipping unreadable order row", zap.Error(err))
			continue
		}
		o.Side = domain.Side(side)
		o.Status = domain.OrderStatus(status)
		if !o.Side.Valid() || o.Remaining.IsNegative() || o.Remaining.GreaterThan(o.Quantity) {
			s.log.Warn("skipping malformed order row",
				zap.String("order_id", o.ID),
				zap.String("side", side),
				zap.String("remaining", o.Remaining.String()))
			continue
		}
		res = append(res, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pg: list open orders: %w", err)
	}
	return res, nil
}

// CancelOpenOrder cancels the order identified by its full key tuple,
// only while it is still OPEN. A concurrent fill or cancel by the live
// matching engine makes the update match zero rows, which is reported
// as (false, nil) rather than an error.
func (s *OrderStore) CancelOpenOrder(ctx context.Context, ownerID string, createdAt time.Time, orderID string) (bool, error) {
	res, err := s.pool.Exec(ctx, `
UPDATE orders
SET status = 'CANCELLED', updated_at = NOW()
WHERE owner_id = $1 AND created_at = $2 AND id = $3 AND status = 'OPEN'
`, ownerID, createdAt, orderID)
	if err != nil {
		return false, fmt.Errorf("pg: cancel order %s: %w", orderID, err)
	}
	return res.RowsAffected() > 0, nil
}

package in_memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spotdesk/escrow-reconciler/internal/domain"
	"github.com/spotdesk/escrow-reconciler/internal/port"
)

var _ port.OrderStore = (*OrderStore)(nil)

type OrderStore struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]*domain.Order)}
}

func (s *OrderStore) Put(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.orders[o.ID] = &cp
}

func (s *OrderStore) Get(orderID string) *domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil
	}
	cp := *o
	return &cp
}

func (s *OrderStore) ListOpenOrders(ctx context.Context, symbol string) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*domain.Order
	for _, o := range s.orders {
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		if o.Status != domain.Open || !o.Remaining.IsPositive() {
			continue
		}
		cp := *o
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (s *OrderStore) CancelOpenOrder(ctx context.Context, ownerID string, createdAt time.Time, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.OwnerID != ownerID || !o.CreatedAt.Equal(createdAt) || o.Status != domain.Open {
		return false, nil
	}
	o.Status = domain.Cancelled
	o.UpdatedAt = time.Now()
	return true, nil
}

package in_memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/spotdesk/escrow-reconciler/internal/domain"
	"github.com/spotdesk/escrow-reconciler/internal/port"
)

var _ port.BookDepth = (*Book)(nil)

// Book mirrors the sparse depth cache: absent key means zero depth.
type Book struct {
	mu     sync.Mutex
	levels map[string]decimal.Decimal
}

func NewBook() *Book {
	return &Book{levels: make(map[string]decimal.Decimal)}
}

func levelKey(symbol string, side domain.Side, price decimal.Decimal) string {
	return symbol + ":" + side.BookLabel() + ":" + price.String()
}

func (b *Book) GetLevel(ctx context.Context, symbol string, side domain.Side, price decimal.Decimal) (decimal.Decimal, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	amt, ok := b.levels[levelKey(symbol, side, price)]
	if !ok {
		return decimal.Zero, false, nil
	}
	return amt, true, nil
}

func (b *Book) SetLevel(ctx context.Context, symbol string, side domain.Side, price, amount decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.levels[levelKey(symbol, side, price)] = amount
	return nil
}

func (b *Book) DeleteLevel(ctx context.Context, symbol string, side domain.Side, price decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.levels, levelKey(symbol, side, price))
	return nil
}

// Len reports how many non-empty levels exist; used by tests asserting
// dust deletion.
func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.levels)
}

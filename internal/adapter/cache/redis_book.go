package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/spotdesk/escrow-reconciler/internal/domain"
	"github.com/spotdesk/escrow-reconciler/internal/port"
)

var _ port.BookDepth = (*RedisBook)(nil)

// RedisBook stores order-book depth as one hash per (symbol, side):
// key "depth:<symbol>:<bids|asks>", field price, value aggregate amount.
// A missing field means zero depth at that level.
type RedisBook struct {
	client *redis.Client
}

func NewRedisBook(addr, password string, db int) *RedisBook {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisBook{client: rdb}
}

func (b *RedisBook) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBook) Close() error { return b.client.Close() }

func key(symbol string, side domain.Side) string {
	return "depth:" + symbol + ":" + side.BookLabel()
}

func (b *RedisBook) GetLevel(ctx context.Context, symbol string, side domain.Side, price decimal.Decimal) (decimal.Decimal, bool, error) {
	v, err := b.client.HGet(ctx, key(symbol, side), price.String()).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("redis: get level %s %s @%s: %w", symbol, side, price, err)
	}
	amt, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("redis: level %s %s @%s holds non-numeric value %q: %w", symbol, side, price, v, err)
	}
	return amt, true, nil
}

func (b *RedisBook) SetLevel(ctx context.Context, symbol string, side domain.Side, price, amount decimal.Decimal) error {
	if err := b.client.HSet(ctx, key(symbol, side), price.String(), amount.String()).Err(); err != nil {
		return fmt.Errorf("redis: set level %s %s @%s: %w", symbol, side, price, err)
	}
	return nil
}

func (b *RedisBook) DeleteLevel(ctx context.Context, symbol string, side domain.Side, price decimal.Decimal) error {
	if err := b.client.HDel(ctx, key(symbol, side), price.String()).Err(); err != nil {
		return fmt.Errorf("redis: delete level %s %s @%s: %w", symbol, side, price, err)
	}
	return nil
}

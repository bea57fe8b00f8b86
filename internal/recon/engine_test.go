package recon_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spotdesk/escrow-reconciler/internal/adapter/in_memory"
	"github.com/spotdesk/escrow-reconciler/internal/domain"
	"github.com/spotdesk/escrow-reconciler/internal/port"
	"github.com/spotdesk/escrow-reconciler/internal/recon"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	orders *in_memory.OrderStore
	ledger *in_memory.Ledger
	book   *in_memory.Book
	params recon.Params
}

func newFixture() *fixture {
	p := recon.DefaultParams()
	p.BotOwners = map[string]struct{}{"mm-bot": {}}
	return &fixture{
		orders: in_memory.NewOrderStore(),
		ledger: in_memory.NewLedger(),
		book:   in_memory.NewBook(),
		params: p,
	}
}

func (f *fixture) engine() *recon.Engine {
	return recon.New(f.orders, f.ledger, f.book, f.params, zap.NewNop())
}

func (f *fixture) engineWith(orders port.OrderStore, ledger port.EscrowLedger) *recon.Engine {
	if orders == nil {
		orders = f.orders
	}
	if ledger == nil {
		ledger = f.ledger
	}
	return recon.New(orders, ledger, f.book, f.params, zap.NewNop())
}

func sellOrder(id, owner string, remaining, price string) *domain.Order {
	return &domain.Order{
		ID:        id,
		OwnerID:   owner,
		Symbol:    "BTC/USDT",
		Side:      domain.Sell,
		Price:     d(price),
		Quantity:  d(remaining),
		Remaining: d(remaining),
		Cost:      decimal.Zero,
		Status:    domain.Open,
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func account(id, owner, currency, available, locked string) *domain.WalletAccount {
	return &domain.WalletAccount{
		ID:        id,
		OwnerID:   owner,
		Currency:  currency,
		Domain:    domain.CustodyGeneral,
		Available: d(available),
		Locked:    d(locked),
	}
}

// SELL with 2.0 BTC remaining but only 1.5 BTC locked: the order can
// never fully execute, so the pass unlocks the 1.5, cancels the order
// and reduces the ask level by the full remaining.
func TestRepairSellShortfall(t *testing.T) {
	f := newFixture()
	f.orders.Put(sellOrder("o1", "u1", "2.0", "50000"))
	f.ledger.Put(account("a1", "u1", "BTC", "3.0", "1.5"))
	require.NoError(t, f.book.SetLevel(context.Background(), "BTC/USDT", domain.Sell, d("50000"), d("5.0")))

	sum, err := f.engine().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Scanned)
	assert.Equal(t, 1, sum.Faulty)
	assert.Equal(t, 1, sum.Repaired)
	assert.Equal(t, 0, sum.Failed)

	a := f.ledger.Get("a1")
	assert.True(t, a.Available.Equal(d("4.5")), "available %s", a.Available)
	assert.True(t, a.Locked.IsZero(), "locked %s", a.Locked)

	assert.Equal(t, domain.Cancelled, f.orders.Get("o1").Status)

	amt, ok, err := f.book.GetLevel(context.Background(), "BTC/USDT", domain.Sell, d("50000"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, amt.Equal(d("3.0")), "level %s", amt)
}

// BUY fully unfilled with cost exactly locked: fill ratio 1, required
// escrow equals cost, nothing to repair.
func TestConsistentBuyUntouched(t *testing.T) {
	f := newFixture()
	o := &domain.Order{
		ID:        "o1",
		OwnerID:   "u1",
		Symbol:    "ETH/USDT",
		Side:      domain.Buy,
		Price:     d("50"),
		Quantity:  d("10"),
		Remaining: d("10"),
		Cost:      d("500"),
		Status:    domain.Open,
		CreatedAt: time.Now(),
	}
	f.orders.Put(o)
	f.ledger.Put(account("a1", "u1", "USDT", "100", "500"))

	sum, err := f.engine().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Scanned)
	assert.Equal(t, 0, sum.Faulty)
	assert.Equal(t, 0, sum.Repaired)

	a := f.ledger.Get("a1")
	assert.True(t, a.Available.Equal(d("100")))
	assert.True(t, a.Locked.Equal(d("500")))
	assert.Equal(t, domain.Open, f.orders.Get("o1").Status)
}

func TestRepairBuyShortfall(t *testing.T) {
	f := newFixture()
	o := &domain.Order{
		ID:        "o1",
		OwnerID:   "u1",
		Symbol:    "ETH/USDT",
		Side:      domain.Buy,
		Price:     d("50"),
		Quantity:  d("10"),
		Remaining: d("4"),
		Cost:      d("500"),
		Status:    domain.Open,
		CreatedAt: time.Now(),
	}
	f.orders.Put(o)
	// required = 500 * 4/10 = 200 USDT, only 150 locked
	f.ledger.Put(account("a1", "u1", "USDT", "0", "150"))
	require.NoError(t, f.book.SetLevel(context.Background(), "ETH/USDT", domain.Buy, d("50"), d("9")))

	sum, err := f.engine().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Faulty)
	assert.Equal(t, 1, sum.Repaired)

	a := f.ledger.Get("a1")
	assert.True(t, a.Available.Equal(d("150")))
	assert.True(t, a.Locked.IsZero())

	amt, ok, err := f.book.GetLevel(context.Background(), "ETH/USDT", domain.Buy, d("50"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, amt.Equal(d("5")), "bid level %s", amt)
}

// Market-maker orders bypass user wallets and are excluded from the
// scan entirely, whatever the ledger says.
func TestBotOrdersExcluded(t *testing.T) {
	f := newFixture()
	f.orders.Put(sellOrder("o1", "mm-bot", "5.0", "40000"))
	f.orders.Put(sellOrder("o2", "0", "1.0", "40000"))
	f.orders.Put(sellOrder("o3", "", "1.0", "40000"))

	sum, err := f.engine().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Scanned)
	assert.Equal(t, 0, sum.Faulty)
}

// noCancelStore simulates the live engine closing the order between the
// scan read and the repair's conditional cancel.
type noCancelStore struct {
	*in_memory.OrderStore
}

func (s *noCancelStore) CancelOpenOrder(ctx context.Context, ownerID string, createdAt time.Time, orderID string) (bool, error) {
	return false, nil
}

func TestConcurrentlyClosedOrderStillReducesDepth(t *testing.T) {
	f := newFixture()
	f.orders.Put(sellOrder("o1", "u1", "2.0", "50000"))
	f.ledger.Put(account("a1", "u1", "BTC", "0", "1.0"))
	require.NoError(t, f.book.SetLevel(context.Background(), "BTC/USDT", domain.Sell, d("50000"), d("6.0")))

	eng := f.engineWith(&noCancelStore{f.orders}, nil)
	sum, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Faulty)
	assert.Equal(t, 1, sum.Repaired)

	// Ledger and book repairs still ran with the last-read remaining.
	a := f.ledger.Get("a1")
	assert.True(t, a.Available.Equal(d("1.0")))
	assert.True(t, a.Locked.IsZero())

	amt, ok, err := f.book.GetLevel(context.Background(), "BTC/USDT", domain.Sell, d("50000"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, amt.Equal(d("4.0")), "level %s", amt)
}

// A level reduced to at or below the dust threshold is deleted, never
// left as a zero-amount row.
func TestDustLevelDeleted(t *testing.T) {
	f := newFixture()
	f.orders.Put(sellOrder("o1", "u1", "2.0", "50000"))
	f.ledger.Put(account("a1", "u1", "BTC", "0", "0.5"))
	require.NoError(t, f.book.SetLevel(context.Background(), "BTC/USDT", domain.Sell, d("50000"), d("2.0")))

	_, err := f.engine().Run(context.Background())
	require.NoError(t, err)

	_, ok, err := f.book.GetLevel(context.Background(), "BTC/USDT", domain.Sell, d("50000"))
	require.NoError(t, err)
	assert.False(t, ok, "dust level must be deleted")
	assert.Equal(t, 0, f.book.Len())
}

func TestIdempotentPass(t *testing.T) {
	f := newFixture()
	f.orders.Put(sellOrder("o1", "u1", "2.0", "50000"))
	f.orders.Put(sellOrder("o2", "u2", "1.0", "51000"))
	f.ledger.Put(account("a1", "u1", "BTC", "0", "1.5"))
	f.ledger.Put(account("a2", "u2", "BTC", "0", "1.0"))
	require.NoError(t, f.book.SetLevel(context.Background(), "BTC/USDT", domain.Sell, d("50000"), d("2.0")))
	require.NoError(t, f.book.SetLevel(context.Background(), "BTC/USDT", domain.Sell, d("51000"), d("1.0")))

	first, err := f.engine().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Repaired)

	a1After := f.ledger.Get("a1")
	a2After := f.ledger.Get("a2")
	levels := f.book.Len()

	second, err := f.engine().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Faulty)
	assert.Equal(t, 0, second.Repaired)

	assert.True(t, f.ledger.Get("a1").Available.Equal(a1After.Available))
	assert.True(t, f.ledger.Get("a1").Locked.Equal(a1After.Locked))
	assert.True(t, f.ledger.Get("a2").Available.Equal(a2After.Available))
	assert.True(t, f.ledger.Get("a2").Locked.Equal(a2After.Locked))
	assert.Equal(t, levels, f.book.Len())
}

// The full previously-locked amount comes back to available; nothing is
// destroyed or duplicated, and locked never goes negative.
func TestRepairConservesFunds(t *testing.T) {
	f := newFixture()
	f.orders.Put(sellOrder("o1", "u1", "3.0", "45000"))
	f.ledger.Put(account("a1", "u1", "BTC", "1.25", "2.75"))

	before := f.ledger.Get("a1")
	total := before.Available.Add(before.Locked)

	_, err := f.engine().Run(context.Background())
	require.NoError(t, err)

	after := f.ledger.Get("a1")
	assert.True(t, after.Available.Add(after.Locked).Equal(total),
		"total before %s after %s", total, after.Available.Add(after.Locked))
	assert.False(t, after.Locked.IsNegative())
	assert.False(t, after.Available.IsNegative())
}

func TestWithinEpsilonIsConsistent(t *testing.T) {
	f := newFixture()
	f.orders.Put(sellOrder("o1", "u1", "2.0", "50000"))
	// short by half of epsilon
	f.ledger.Put(account("a1", "u1", "BTC", "0", "1.99995"))

	sum, err := f.engine().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Faulty)
	assert.Equal(t, domain.Open, f.orders.Get("o1").Status)
}

func TestMalformedSymbolSkipped(t *testing.T) {
	f := newFixture()
	o := sellOrder("o1", "u1", "2.0", "50000")
	o.Symbol = "BTCUSDT"
	f.orders.Put(o)

	sum, err := f.engine().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Scanned)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 0, sum.Faulty)
	assert.Equal(t, domain.Open, f.orders.Get("o1").Status)
}

func TestMissingAccountSkipped(t *testing.T) {
	f := newFixture()
	f.orders.Put(sellOrder("o1", "u1", "2.0", "50000"))

	sum, err := f.engine().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 0, sum.Faulty)
	assert.Equal(t, domain.Open, f.orders.Get("o1").Status)
}

// failOnceLedger fails unlocks for one account id; other accounts work.
type failOnceLedger struct {
	*in_memory.Ledger
	failAccountID string
}

func (l *failOnceLedger) CreditAndUnlock(ctx context.Context, accountID string, amount decimal.Decimal) error {
	if accountID == l.failAccountID {
		return errors.New("ledger write failed")
	}
	return l.Ledger.CreditAndUnlock(ctx, accountID, amount)
}

// One order failing mid-repair is counted and logged but must not stop
// the rest of the scan.
func TestFailureDoesNotAbortScan(t *testing.T) {
	f := newFixture()
	bad := sellOrder("o1", "u1", "2.0", "50000")
	bad.CreatedAt = time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC) // scanned first
	f.orders.Put(bad)
	f.orders.Put(sellOrder("o2", "u2", "2.0", "51000"))
	f.ledger.Put(account("a1", "u1", "BTC", "0", "1.0"))
	f.ledger.Put(account("a2", "u2", "BTC", "0", "1.0"))

	eng := f.engineWith(nil, &failOnceLedger{Ledger: f.ledger, failAccountID: "a1"})
	sum, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Scanned)
	assert.Equal(t, 2, sum.Faulty)
	assert.Equal(t, 1, sum.Repaired)
	assert.Equal(t, 1, sum.Failed)

	// the failing order is untouched, the healthy one repaired
	assert.Equal(t, domain.Open, f.orders.Get("o1").Status)
	assert.Equal(t, domain.Cancelled, f.orders.Get("o2").Status)
	assert.True(t, f.ledger.Get("a2").Locked.IsZero())
}

func TestSymbolScopedPass(t *testing.T) {
	f := newFixture()
	f.params.Symbol = "BTC/USDT"
	f.orders.Put(sellOrder("o1", "u1", "2.0", "50000"))
	eth := sellOrder("o2", "u2", "2.0", "3000")
	eth.Symbol = "ETH/USDT"
	f.orders.Put(eth)
	f.ledger.Put(account("a1", "u1", "BTC", "0", "1.0"))
	f.ledger.Put(account("a2", "u2", "ETH", "0", "1.0"))

	sum, err := f.engine().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Scanned)
	assert.Equal(t, domain.Cancelled, f.orders.Get("o1").Status)
	assert.Equal(t, domain.Open, f.orders.Get("o2").Status)
}

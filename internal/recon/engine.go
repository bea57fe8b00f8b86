package recon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spotdesk/escrow-reconciler/internal/domain"
	"github.com/spotdesk/escrow-reconciler/internal/port"
)

// Params tune one reconciliation pass.
type Params struct {
	// Epsilon is the absolute tolerance when comparing locked funds to
	// the required escrow, in the currency's display unit.
	Epsilon decimal.Decimal
	// DustThreshold is the aggregate amount at or below which a depth
	// level is considered empty and deleted.
	DustThreshold decimal.Decimal
	// CustodyDomain selects which wallet subsystem holds the accounts
	// this pass repairs.
	CustodyDomain string
	// BotOwners are owner ids whose orders bypass user escrow
	// (market makers, internal bots); such orders are never scanned.
	BotOwners map[string]struct{}
	// Symbol optionally scopes the pass to one trading pair.
	Symbol string
}

func DefaultParams() Params {
	return Params{
		Epsilon:       decimal.RequireFromString("0.0001"),
		DustThreshold: decimal.RequireFromString("0.00000001"),
		CustodyDomain: domain.CustodyGeneral,
		BotOwners:     map[string]struct{}{},
	}
}

// Summary is the outcome of one pass.
type Summary struct {
	RunID    string        `json:"run_id"`
	Scanned  int           `json:"scanned"`
	Skipped  int           `json:"skipped"`
	Faulty   int           `json:"faulty"`
	Repaired int           `json:"repaired"`
	Failed   int           `json:"failed"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Engine compares the escrow each open order requires against what the
// wallet ledger actually has locked, and repairs orders whose locked
// funds can no longer satisfy them. It is a corrective writer only: it
// cancels orders, it never creates or fills them.
type Engine struct {
	orders port.OrderStore
	ledger port.EscrowLedger
	book   port.BookDepth
	params Params
	log    *zap.Logger
}

func New(orders port.OrderStore, ledger port.EscrowLedger, book port.BookDepth, params Params, log *zap.Logger) *Engine {
	return &Engine{
		orders: orders,
		ledger: ledger,
		book:   book,
		params: params,
		log:    log,
	}
}

// Run executes one reconciliation pass. The open-order set is
// materialized once; each order is then checked and, when faulty,
// repaired independently. A failure on one order is logged and counted
// but never aborts the rest of the scan. Only the initial listing can
// fail the pass as a whole.
//
// The pass is idempotent: an order repaired by a previous run is either
// CANCELLED (and not listed) or already holds locked at its post-repair
// value, so re-running immediately performs no further mutations.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	s := &Summary{RunID: uuid.NewString()}
	started := time.Now()
	log := e.log.With(zap.String("run_id", s.RunID))

	open, err := e.orders.ListOpenOrders(ctx, e.params.Symbol)
	if err != nil {
		return nil, fmt.Errorf("recon: list open orders: %w", err)
	}
	log.Info("reconciliation pass started",
		zap.Int("open_orders", len(open)),
		zap.String("custody_domain", e.params.CustodyDomain))

	for _, o := range open {
		if !o.UserOwned(e.params.BotOwners) || !o.Remaining.IsPositive() {
			continue
		}
		s.Scanned++
		faulty, err := e.reconcileOrder(ctx, log, o, s)
		if faulty {
			s.Faulty++
		}
		if err != nil {
			s.Failed++
			log.Error("order reconciliation failed",
				zap.String("order_id", o.ID),
				zap.String("owner", o.OwnerID),
				zap.Error(err))
		}
	}

	s.Elapsed = time.Since(started)
	log.Info("reconciliation pass finished",
		zap.Int("scanned", s.Scanned),
		zap.Int("skipped", s.Skipped),
		zap.Int("faulty", s.Faulty),
		zap.Int("repaired", s.Repaired),
		zap.Int("failed", s.Failed),
		zap.Duration("elapsed", s.Elapsed))
	return s, nil
}

// reconcileOrder checks a single order and repairs it when its escrow
// is short. Returns whether the order was classified faulty.
func (e *Engine) reconcileOrder(ctx context.Context, log *zap.Logger, o *domain.Order, s *Summary) (bool, error) {
	lockCurrency, err := o.LockCurrency()
	if err != nil {
		// Malformed symbol is a data-shape anomaly, not a known fault.
		s.Skipped++
		log.Warn("skipping order with malformed symbol",
			zap.String("order_id", o.ID),
			zap.String("symbol", o.Symbol))
		return false, nil
	}
	required := o.RequiredEscrow()

	acct, err := e.ledger.FindAccount(ctx, o.OwnerID, lockCurrency, e.params.CustodyDomain)
	if err != nil {
		return false, fmt.Errorf("find account %s/%s: %w", o.OwnerID, lockCurrency, err)
	}
	if acct == nil {
		// An absent account cannot be repaired in place; it is a
		// different anomaly class than an under-funded one.
		s.Skipped++
		log.Warn("skipping order without wallet account",
			zap.String("order_id", o.ID),
			zap.String("owner", o.OwnerID),
			zap.String("currency", lockCurrency),
			zap.String("custody_domain", e.params.CustodyDomain))
		return false, nil
	}

	// locked + epsilon >= required means the escrow still covers the
	// unfilled portion.
	if acct.Locked.Add(e.params.Epsilon).GreaterThanOrEqual(required) {
		return false, nil
	}

	log.Warn("escrow shortfall detected",
		zap.String("order_id", o.ID),
		zap.String("owner", o.OwnerID),
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.String("locked", acct.Locked.String()),
		zap.String("required", required.String()),
		zap.String("deficit", required.Sub(acct.Locked).String()))

	if err := e.repair(ctx, log, o, acct); err != nil {
		return true, err
	}
	s.Repaired++
	return true, nil
}

// repair runs the three-step compensating action for a faulty order.
// There is no cross-store transaction here: the steps are ordered so
// that a crash between them errs toward the user having access to
// funds. The ledger is unlocked before the order is cancelled; the
// inverse order could strand funds behind a cancelled order forever.
func (e *Engine) repair(ctx context.Context, log *zap.Logger, o *domain.Order, acct *domain.WalletAccount) error {
	// Step 1: return whatever is actually locked to the available
	// balance. Only the locked amount comes back; the shortfall is not
	// manufactured.
	if err := e.ledger.CreditAndUnlock(ctx, acct.ID, acct.Locked); err != nil {
		return fmt.Errorf("unlock account %s: %w", acct.ID, err)
	}
	log.Info("ledger repaired",
		zap.String("order_id", o.ID),
		zap.String("account_id", acct.ID),
		zap.String("unlocked", acct.Locked.String()))

	// Step 2: cancel the order, conditional on it still being OPEN. A
	// no-match means the live engine closed it concurrently; the depth
	// cache may still carry its stale remaining, so step 3 runs anyway.
	matched, err := e.orders.CancelOpenOrder(ctx, o.OwnerID, o.CreatedAt, o.ID)
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", o.ID, err)
	}
	if !matched {
		log.Info("order already closed concurrently, still reducing depth",
			zap.String("order_id", o.ID))
	}

	// Step 3: reduce the depth level by the order's last-read remaining.
	if err := e.reduceLevel(ctx, log, o); err != nil {
		return fmt.Errorf("reduce depth level for order %s: %w", o.ID, err)
	}
	return nil
}

func (e *Engine) reduceLevel(ctx context.Context, log *zap.Logger, o *domain.Order) error {
	amt, ok, err := e.book.GetLevel(ctx, o.Symbol, o.Side, o.Price)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug("depth level already gone",
			zap.String("symbol", o.Symbol),
			zap.String("side", string(o.Side)),
			zap.String("price", o.Price.String()))
		return nil
	}
	reduced := amt.Sub(o.Remaining)
	if reduced.LessThanOrEqual(e.params.DustThreshold) {
		if err := e.book.DeleteLevel(ctx, o.Symbol, o.Side, o.Price); err != nil {
			return err
		}
		log.Info("depth level deleted",
			zap.String("symbol", o.Symbol),
			zap.String("side", string(o.Side)),
			zap.String("price", o.Price.String()))
		return nil
	}
	if err := e.book.SetLevel(ctx, o.Symbol, o.Side, o.Price, reduced); err != nil {
		return err
	}
	log.Info("depth level reduced",
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.String("price", o.Price.String()),
		zap.String("amount", reduced.String()))
	return nil
}

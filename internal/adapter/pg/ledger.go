package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/spotdesk/escrow-reconciler/internal/domain"
	"github.com/spotdesk/escrow-reconciler/internal/port"
)

var _ port.EscrowLedger = (*Ledger)(nil)

type Ledger struct {
	pool *pgxpool.Pool
}

// call Close when finished with the ledger.
func NewLedger(ctx context.Context, dsn string) (*Ledger, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create ledger pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping ledger: %w", err)
	}
	return &Ledger{pool: pool}, nil
}

func (l *Ledger) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}

// FindAccount returns nil (no error) when the owner has no account for
// the currency and custody domain.
func (l *Ledger) FindAccount(ctx context.Context, ownerID, currency, custodyDomain string) (*domain.WalletAccount, error) {
	var a domain.WalletAccount
	err := l.pool.QueryRow(ctx, `
SELECT id, owner_id, currency, domain, available, locked
FROM wallet_accounts
WHERE owner_id = $1 AND currency = $2 AND domain = $3
`, ownerID, currency, custodyDomain).Scan(&a.ID, &a.OwnerID, &a.Currency, &a.Domain, &a.Available, &a.Locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pg: find account %s/%s/%s: %w", ownerID, currency, custodyDomain, err)
	}
	return &a, nil
}

// CreditAndUnlock moves amount back into the available balance and
// releases it from locked in a single statement. GREATEST keeps locked
// at zero when the ledger already under-counted it.
func (l *Ledger) CreditAndUnlock(ctx context.Context, accountID string, amount decimal.Decimal) error {
	res, err := l.pool.Exec(ctx, `
UPDATE wallet_accounts
SET available = available + $2, locked = GREATEST(0, locked - $2)
WHERE id = $1
`, accountID, amount)
	if err != nil {
		return fmt.Errorf("pg: credit account %s: %w", accountID, err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("pg: credit account %s: account not found", accountID)
	}
	return nil
}

package port

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/spotdesk/escrow-reconciler/internal/domain"
)

// EscrowLedger is the wallet-ledger surface consumed by the reconciler.
type EscrowLedger interface {
	// FindAccount returns the account for (owner, currency, custody
	// domain), or nil when no such account exists.
	FindAccount(ctx context.Context, ownerID, currency, custodyDomain string) (*domain.WalletAccount, error)

	// CreditAndUnlock atomically applies
	//   available += amount; locked = max(0, locked - amount)
	// to one account. The floor at zero is mandatory: a repair must
	// never drive locked negative even when upstream bookkeeping
	// already under-counted it.
	CreditAndUnlock(ctx context.Context, accountID string, amount decimal.Decimal) error
}

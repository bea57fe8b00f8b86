package in_memory

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/spotdesk/escrow-reconciler/internal/domain"
	"github.com/spotdesk/escrow-reconciler/internal/port"
)

var _ port.EscrowLedger = (*Ledger)(nil)

type Ledger struct {
	mu       sync.Mutex
	accounts map[string]*domain.WalletAccount // by account id
}

func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]*domain.WalletAccount)}
}

func (l *Ledger) Put(a *domain.WalletAccount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *a
	l.accounts[a.ID] = &cp
}

func (l *Ledger) Get(accountID string) *domain.WalletAccount {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[accountID]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (l *Ledger) FindAccount(ctx context.Context, ownerID, currency, custodyDomain string) (*domain.WalletAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.accounts {
		if a.OwnerID == ownerID && a.Currency == currency && a.Domain == custodyDomain {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (l *Ledger) CreditAndUnlock(ctx context.Context, accountID string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[accountID]
	if !ok {
		return errors.New("account not found")
	}
	a.Available = a.Available.Add(amount)
	a.Locked = a.Locked.Sub(amount)
	if a.Locked.IsNegative() {
		a.Locked = decimal.Zero
	}
	return nil
}

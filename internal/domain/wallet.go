package domain

import "github.com/shopspring/decimal"

// Custody domains distinguish which wallet subsystem holds an account.
const (
	CustodyGeneral  = "GENERAL"
	CustodyExtended = "EXTENDED"
)

// WalletAccount is one escrow-ledger row: the available balance and the
// amount locked behind open orders for (owner, currency, domain).
// Available and Locked are both non-negative at all times.
type WalletAccount struct {
	ID        string
	OwnerID   string
	Currency  string
	Domain    string
	Available decimal.Decimal
	Locked    decimal.Decimal
}

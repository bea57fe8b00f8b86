package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string
type OrderStatus string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"

	Open            OrderStatus = "OPEN"
	PartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	Filled          OrderStatus = "FILLED"
	Cancelled       OrderStatus = "CANCELLED"
)

// BookLabel maps an order side to the depth-cache side tag: buys sit on
// the bid side of the book, sells on the ask side.
func (s Side) BookLabel() string {
	if s == Buy {
		return "bids"
	}
	return "asks"
}

func (s Side) Valid() bool { return s == Buy || s == Sell }

// Order is an escrow-backed spot order as stored by the order store.
// All monetary fields are decimal; float64 never enters a comparison.
type Order struct {
	ID        string
	OwnerID   string
	Symbol    string
	Side      Side
	Price     decimal.Decimal
	Quantity  decimal.Decimal // original amount
	Remaining decimal.Decimal
	Cost      decimal.Decimal // cumulative quote spent so far, relevant to BUY
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SplitSymbol splits "BTC/USDT" into base and quote currencies.
func SplitSymbol(symbol string) (base, quote string, err error) {
	base, quote, ok := strings.Cut(symbol, "/")
	if !ok || base == "" || quote == "" {
		return "", "", fmt.Errorf("malformed symbol %q", symbol)
	}
	return base, quote, nil
}

// UserOwned reports whether the order locks funds out of a real user
// wallet. Orders with no owner, a zero owner id, or an owner in the
// bot/market-maker set bypass user escrow entirely.
func (o *Order) UserOwned(botOwners map[string]struct{}) bool {
	if o.OwnerID == "" || o.OwnerID == "0" {
		return false
	}
	_, bot := botOwners[o.OwnerID]
	return !bot
}

// LockCurrency is the currency the escrow for this order is held in:
// quote for a BUY (spending quote to acquire base), base for a SELL.
func (o *Order) LockCurrency() (string, error) {
	base, quote, err := SplitSymbol(o.Symbol)
	if err != nil {
		return "", err
	}
	if o.Side == Buy {
		return quote, nil
	}
	return base, nil
}

// RequiredEscrow is the amount that must still be locked to back the
// unfilled portion of the order, in LockCurrency units.
//
// SELL reserves the remaining base amount. BUY reserves
// cost * remaining/quantity of quote, an approximation of the unfilled
// quote exposure that can drift under non-uniform partial fills; kept
// as-is because the placement flow reserves with the same formula.
func (o *Order) RequiredEscrow() decimal.Decimal {
	if o.Side == Sell {
		return o.Remaining
	}
	if o.Quantity.IsZero() {
		return decimal.Zero
	}
	return o.Cost.Mul(o.Remaining).Div(o.Quantity)
}

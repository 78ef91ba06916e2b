package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a posted or pending transaction fetched on demand. Transactions are never persisted.
type Transaction struct {
	ID        string
	AccountID string
	Date      time.Time
	Name      string
	Amount    decimal.Decimal // Positive amounts are money leaving the account
	Currency  string
}

func (t Transaction) IsDeposit() bool {
	return t.Amount.IsNegative()
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type (
	AccountType string
	Partition   string
)

const (
	AccountTypeDepository AccountType = "depository"
	AccountTypeCredit     AccountType = "credit"

	PartitionCash   Partition = "cash"
	PartitionCredit Partition = "credit"
)

// Partition reports which partition an account of this type belongs to.
// Only depository and credit accounts are tracked; every other type returns false.
func (t AccountType) Partition() (Partition, bool) {
	switch t {
	case AccountTypeDepository:
		return PartitionCash, true
	case AccountTypeCredit:
		return PartitionCredit, true
	default:
		return "", false
	}
}

func (t AccountType) IsTracked() bool {
	_, ok := t.Partition()
	return ok
}

// Account is a tracked bank or card account.
// Everything except Balance is fixed when the account is first added.
type Account struct {
	ID         string          `json:"id"`
	Credential string          `json:"credential"`
	Type       AccountType     `json:"type"`
	Subtype    string          `json:"subtype,omitempty"`
	Name       string          `json:"name,omitempty"`
	Mask       string          `json:"mask,omitempty"`
	Balance    decimal.Decimal `json:"balance"`
	Currency   string          `json:"currency,omitempty"`
	DateAdded  time.Time       `json:"dateAdded"`
}

func (a Account) Partition() Partition {
	partition, _ := a.Type.Partition()
	return partition
}

func (a Account) WithBalance(balance decimal.Decimal) Account {
	a.Balance = balance
	return a
}

// RemoteAccount is an account as reported by the aggregator, before it is tracked.
type RemoteAccount struct {
	ID       string
	Type     AccountType
	Subtype  string
	Name     string
	Mask     string
	Balance  decimal.Decimal
	Currency string
}

// Track stamps a remote account with its owning credential and the time it was added.
func (r RemoteAccount) Track(credential string, dateAdded time.Time) Account {
	return Account{
		ID:         r.ID,
		Credential: credential,
		Type:       r.Type,
		Subtype:    r.Subtype,
		Name:       r.Name,
		Mask:       r.Mask,
		Balance:    r.Balance,
		Currency:   r.Currency,
		DateAdded:  dateAdded,
	}
}

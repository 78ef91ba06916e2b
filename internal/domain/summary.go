package domain

import "github.com/shopspring/decimal"

// Summary totals the tracked balances. Net is cash minus credit.
type Summary struct {
	Cash        decimal.Decimal
	Credit      decimal.Decimal
	Net         decimal.Decimal
	CashCount   int
	CreditCount int
}

func Summarise(cash []Account, credit []Account) Summary {
	summary := Summary{
		Cash:        decimal.Zero,
		Credit:      decimal.Zero,
		CashCount:   len(cash),
		CreditCount: len(credit),
	}

	for _, account := range cash {
		summary.Cash = summary.Cash.Add(account.Balance)
	}

	for _, account := range credit {
		summary.Credit = summary.Credit.Add(account.Balance)
	}

	summary.Net = summary.Cash.Sub(summary.Credit)

	return summary
}

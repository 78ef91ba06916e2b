package domain

import (
	"fmt"
	"math"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Money represents a monetary amount in a specific currency, stored in minor units (e.g. cents for USD).
type Money struct {
	MinorUnit int64  `json:"minorUnits"` // Amount in the currency's smallest unit (e.g. 100 for $1.00 USD)
	Currency  string `json:"currency"`   // ISO4217 Alpha Currency code (e.g. USD, EUR, GBP)
}

// NewMoney converts a decimal major-unit amount into Money, rounding half away from zero to the currency's precision.
// Unknown currencies keep the integer part of the amount as the minor unit.
//
// Example:
//
//	m := NewMoney(decimal.RequireFromString("100.505"), "USD") // Money{MinorUnit: 10051, Currency: "USD"}
func NewMoney(amount decimal.Decimal, currency string) Money {
	c := money.GetCurrency(currency)
	if c == nil {
		return Money{MinorUnit: amount.IntPart(), Currency: currency}
	}

	return Money{
		MinorUnit: amount.Round(int32(c.Fraction)).Shift(int32(c.Fraction)).IntPart(),
		Currency:  currency,
	}
}

// ToMajorUnit converts the Money amount from minor units to major units (e.g., cents to dollars).
// If the currency is invalid or not found, it returns the minor unit as a float64 without conversion.
func (m Money) ToMajorUnit() float64 {
	currency := money.GetCurrency(m.Currency)
	if currency == nil {
		return float64(m.MinorUnit)
	}

	return float64(m.MinorUnit) / math.Pow10(currency.Fraction)
}

// String returns the amount in major units with the currency's fractional precision.
//
// Example:
//
//	Money{MinorUnit: 10050, Currency: "USD"}.String()     // "100.50"
//	Money{MinorUnit: 10050, Currency: "JPY"}.String()     // "10050"
//	Money{MinorUnit: 10050, Currency: "INVALID"}.String() // "invalid currency: 10050 (INVALID)"
func (m Money) String() string {
	currency := money.GetCurrency(m.Currency)
	if currency == nil {
		return fmt.Sprintf("invalid currency: %d (%s)", m.MinorUnit, m.Currency)
	}

	return fmt.Sprintf("%.*f", currency.Fraction, m.ToMajorUnit())
}

// Display formats the amount with the currency's symbol using go-money's template, e.g. "$1,234.50".
func (m Money) Display() string {
	if money.GetCurrency(m.Currency) == nil {
		return m.String()
	}

	return money.New(m.MinorUnit, m.Currency).Display()
}

// FormatAmount renders amount with the currency's fraction digits, or unchanged when the currency is unknown.
//
// Example:
//
//	FormatAmount(decimal.RequireFromString("4.2"), "USD") // "4.20"
func FormatAmount(amount decimal.Decimal, currency string) string {
	c := money.GetCurrency(currency)
	if c == nil {
		return amount.String()
	}

	return amount.StringFixed(int32(c.Fraction))
}

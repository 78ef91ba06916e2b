package format

import (
	"io"
	"time"

	"github.com/HallyG/knot/internal/domain"
)

const (
	moneyDanceTimeFormat            = "2006-01-02" // date format expected by MoneyDance (YYYY-MM-DD)
	FormatTypeMoneyDance FormatType = "moneydance"
)

func init() {
	register(FormatTypeMoneyDance, func(w io.Writer, location *time.Location) Formatter {
		return &MoneyDanceFormatter{
			CSVFormatter: NewCSVFormatter(w),
			location:     location,
		}
	})
}

// MoneyDanceFormatter formats transactions for import into MoneyDance.
// It outputs CSV with columns: check number, date, description, amount, memo.
// Deposits are marked "Dep" and everything else "Trn" in the check number field.
type MoneyDanceFormatter struct {
	*CSVFormatter
	location *time.Location
}

func (m *MoneyDanceFormatter) WriteHeader() error {
	return m.writer.Write([]string{"check number", "date", "description", "amount", "memo"})
}

func (m *MoneyDanceFormatter) WriteTransaction(t domain.Transaction) error {
	checkNumber := "Trn"
	if t.IsDeposit() {
		checkNumber = "Dep"
	}

	return m.writer.Write([]string{
		checkNumber,
		t.Date.In(m.location).Format(moneyDanceTimeFormat),
		t.Name,
		domain.FormatAmount(t.Amount.Neg(), t.Currency),
		t.ID,
	})
}

package format

import (
	"io"
	"time"

	"github.com/HallyG/knot/internal/domain"
)

const (
	ynabTimeFormat            = "01/02/2006" // MM/DD/YYYY
	FormatTypeYNAB FormatType = "ynab"
)

func init() {
	register(FormatTypeYNAB, func(w io.Writer, location *time.Location) Formatter {
		return newYNABFormatter(w, location)
	})
}

// YNABFormatter writes YNAB's CSV import format. YNAB treats positive amounts as inflows,
// so amounts are negated.
type YNABFormatter struct {
	*CSVFormatter
	location *time.Location
}

func newYNABFormatter(w io.Writer, location *time.Location) *YNABFormatter {
	return &YNABFormatter{
		CSVFormatter: NewCSVFormatter(w),
		location:     location,
	}
}

func (y *YNABFormatter) WriteHeader() error {
	return y.writer.Write([]string{"Date", "Payee", "Memo", "Amount"})
}

func (y *YNABFormatter) WriteTransaction(t domain.Transaction) error {
	return y.writer.Write([]string{
		t.Date.In(y.location).Format(ynabTimeFormat),
		t.Name,
		t.AccountID,
		domain.FormatAmount(t.Amount.Neg(), t.Currency),
	})
}

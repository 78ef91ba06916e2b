package format

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/HallyG/knot/internal/domain"
)

const (
	csvTimeFormat            = "2006-01-02"
	FormatTypeCSV FormatType = "csv"
)

func init() {
	register(FormatTypeCSV, func(w io.Writer, location *time.Location) Formatter {
		return &PlainFormatter{
			CSVFormatter: NewCSVFormatter(w),
			location:     location,
		}
	})
}

// CSVFormatter provides CSV output functionality for transaction formatters.
// It wraps the standard csv.Writer.
type CSVFormatter struct {
	writer *csv.Writer
}

// NewCSVFormatter creates a new CSV formatter that writes to the provided io.Writer.
func NewCSVFormatter(w io.Writer) *CSVFormatter {
	return &CSVFormatter{
		writer: csv.NewWriter(w),
	}
}

func (f *CSVFormatter) Flush() error {
	f.writer.Flush()

	return f.writer.Error()
}

// PlainFormatter writes every transaction field, keeping the aggregator's sign convention
// (positive amounts leave the account).
type PlainFormatter struct {
	*CSVFormatter
	location *time.Location
}

func (p *PlainFormatter) WriteHeader() error {
	return p.writer.Write([]string{"id", "date", "account_id", "name", "amount", "currency"})
}

func (p *PlainFormatter) WriteTransaction(t domain.Transaction) error {
	return p.writer.Write([]string{
		t.ID,
		t.Date.In(p.location).Format(csvTimeFormat),
		t.AccountID,
		t.Name,
		domain.FormatAmount(t.Amount, t.Currency),
		t.Currency,
	})
}

// Package format writes transactions in formats accepted by budgeting tools.
package format

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/HallyG/knot/internal/domain"
)

type FormatType string

type Formatter interface {
	WriteHeader() error
	WriteTransaction(t domain.Transaction) error
	Flush() error
}

type constructor func(io.Writer, *time.Location) Formatter

var registry = make(map[FormatType]constructor)

func register(format FormatType, constructor constructor) {
	registry[format] = constructor
}

// NewFormatter returns the formatter registered for format. Transaction dates are calendar dates in UTC
// and are written without conversion.
func NewFormatter(format FormatType, w io.Writer) (Formatter, error) {
	constructor, exists := registry[format]
	if !exists {
		return nil, fmt.Errorf("unsupported format type: %s", format)
	}

	return constructor(w, time.UTC), nil
}

func All() []FormatType {
	formats := make([]FormatType, 0, len(registry))
	for format := range registry {
		formats = append(formats, format)
	}

	slices.Sort(formats)

	return formats
}

// WriteCollection writes the header, every transaction and flushes.
func WriteCollection(formatter Formatter, transactions []domain.Transaction) error {
	if err := formatter.WriteHeader(); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, transaction := range transactions {
		if err := formatter.WriteTransaction(transaction); err != nil {
			return fmt.Errorf("write transaction %s: %w", transaction.ID, err)
		}
	}

	if err := formatter.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	return nil
}

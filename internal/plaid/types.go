package plaid

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type Balances struct {
	Current         decimal.NullDecimal `json:"current"`
	Available       decimal.NullDecimal `json:"available"`
	Limit           decimal.NullDecimal `json:"limit"`
	ISOCurrencyCode string              `json:"iso_currency_code"`
}

type Account struct {
	ID           string   `json:"account_id"`
	Name         string   `json:"name"`
	OfficialName string   `json:"official_name"`
	Mask         string   `json:"mask"`
	Type         string   `json:"type"`
	Subtype      string   `json:"subtype"`
	Balances     Balances `json:"balances"`
}

type Item struct {
	ItemID        string `json:"item_id"`
	InstitutionID string `json:"institution_id"`
}

type AccountsResponse struct {
	Accounts  []*Account `json:"accounts"`
	Item      Item       `json:"item"`
	RequestID string     `json:"request_id"`
}

type Transaction struct {
	ID              string          `json:"transaction_id"`
	AccountID       string          `json:"account_id"`
	Date            string          `json:"date"` // YYYY-MM-DD
	Name            string          `json:"name"`
	MerchantName    string          `json:"merchant_name"`
	Amount          decimal.Decimal `json:"amount"`
	ISOCurrencyCode string          `json:"iso_currency_code"`
	Pending         bool            `json:"pending"`
}

type TransactionsResponse struct {
	Accounts          []*Account     `json:"accounts"`
	Transactions      []*Transaction `json:"transactions"`
	TotalTransactions int            `json:"total_transactions"`
	RequestID         string         `json:"request_id"`
}

type ExchangeResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
	RequestID   string `json:"request_id"`
}

// Error is the error payload returned with every non-2xx response.
type Error struct {
	HTTPStatus     int
	Type           string `json:"error_type"`
	Code           string `json:"error_code"`
	Message        string `json:"error_message"`
	DisplayMessage string `json:"display_message"`
	RequestID      string `json:"request_id"`
}

func (err Error) Error() string {
	var sb strings.Builder

	if err.Code != "" {
		sb.WriteString(err.Code)
		sb.WriteString(": ")
	}

	sb.WriteString(err.Message)

	if err.HTTPStatus != 0 {
		sb.WriteString(" (http status=")
		sb.WriteString(strconv.Itoa(err.HTTPStatus))
		sb.WriteString(")")
	}

	return strings.TrimSpace(sb.String())
}

// UnmarshalError decodes a Plaid error payload. Bodies that are not Plaid errors are kept verbatim in Message.
func UnmarshalError(status int, body []byte) error {
	apiError := Error{}
	if len(body) != 0 {
		if err := json.Unmarshal(body, &apiError); err == nil && (apiError.Code != "" || apiError.Message != "") {
			apiError.HTTPStatus = status
			return &apiError
		}
	}

	return &Error{
		HTTPStatus: status,
		Message:    strings.TrimSpace(string(body)),
	}
}

package plaid

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/HallyG/knot/internal/api"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	baseURLFormat          = "https://%s.plaid.com"
	exchangeTokenRoute     = "/item/public_token/exchange"
	getAccountsRoute       = "/accounts/get"
	getTransactionsRoute   = "/transactions/get"
	DateFormat             = "2006-01-02"
	MaxTransactionsPerPage = 500
)

var _ Client = (*client)(nil)

type (
	Client interface {
		ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResponse, error)
		FetchAccounts(ctx context.Context, opts FetchAccountsOptions) (*AccountsResponse, error)
		FetchTransactions(ctx context.Context, opts FetchTransactionsOptions) (*TransactionsResponse, error)
	}
	client struct {
		api      *api.BaseClient
		clientID string
		secret   string
	}
)

// BaseURL returns the API host for an environment such as "sandbox" or "production".
func BaseURL(environment string) string {
	return fmt.Sprintf(baseURLFormat, environment)
}

func New(httpClient *http.Client, clientID string, secret string, opts ...api.Option) *client {
	opts = append([]api.Option{api.WithErrorUnmarshaller(UnmarshalError)}, opts...)

	return &client{
		api:      api.New(BaseURL("sandbox"), httpClient, opts...),
		clientID: clientID,
		secret:   secret,
	}
}

type credentials struct {
	ClientID string `json:"client_id"`
	Secret   string `json:"secret"`
}

func (c *client) credentials() credentials {
	return credentials{ClientID: c.clientID, Secret: c.secret}
}

func (c *client) ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResponse, error) {
	if err := validation.Validate(publicToken, validation.Required.Error("public token is required")); err != nil {
		return nil, err
	}

	result, err := api.ExecuteRequest[ExchangeResponse](ctx, c.api, http.MethodPost, exchangeTokenRoute, struct {
		credentials
		PublicToken string `json:"public_token"`
	}{
		credentials: c.credentials(),
		PublicToken: publicToken,
	})
	if err != nil {
		return nil, fmt.Errorf("exchange public token: %w", err)
	}

	return result, nil
}

type FetchAccountsOptions struct {
	AccessToken string
	AccountIDs  []string // Optional: restricts the response to these accounts
}

func (o FetchAccountsOptions) Validate(ctx context.Context) error {
	return validation.ValidateStructWithContext(ctx, &o,
		validation.Field(&o.AccessToken, validation.Required.Error("is required")),
	)
}

type accountsRequestOptions struct {
	AccountIDs []string `json:"account_ids,omitempty"`
}

func (c *client) FetchAccounts(ctx context.Context, opts FetchAccountsOptions) (*AccountsResponse, error) {
	if err := opts.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	body := struct {
		credentials
		AccessToken string                  `json:"access_token"`
		Options     *accountsRequestOptions `json:"options,omitempty"`
	}{
		credentials: c.credentials(),
		AccessToken: opts.AccessToken,
	}

	if len(opts.AccountIDs) > 0 {
		body.Options = &accountsRequestOptions{AccountIDs: opts.AccountIDs}
	}

	result, err := api.ExecuteRequest[AccountsResponse](ctx, c.api, http.MethodPost, getAccountsRoute, body)
	if err != nil {
		return nil, fmt.Errorf("fetch accounts: %w", err)
	}

	return result, nil
}

type FetchTransactionsOptions struct {
	AccessToken string
	Start       time.Time
	End         time.Time
	Count       int // Page size, at most MaxTransactionsPerPage. Zero means MaxTransactionsPerPage.
	Offset      int
}

func (o FetchTransactionsOptions) Validate(ctx context.Context) error {
	return validation.ValidateStructWithContext(ctx, &o,
		validation.Field(&o.AccessToken, validation.Required.Error("is required")),
		validation.Field(&o.Start,
			validation.Required.Error("is required"),
			validation.When(!o.End.IsZero(), validation.By(func(value any) error {
				start, _ := value.(time.Time)
				if start.After(o.End) {
					return validation.NewError("validation_invalid_time_range", "must not be after End")
				}

				return nil
			})),
		),
		validation.Field(&o.End, validation.Required.Error("is required")),
		validation.Field(&o.Count, validation.Min(0).Error("must not be negative"), validation.Max(MaxTransactionsPerPage).Error("must be at most 500")),
		validation.Field(&o.Offset, validation.Min(0).Error("must not be negative")),
	)
}

type transactionsRequestOptions struct {
	Count  int `json:"count"`
	Offset int `json:"offset"`
}

func (c *client) FetchTransactions(ctx context.Context, opts FetchTransactionsOptions) (*TransactionsResponse, error) {
	if err := opts.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	if opts.Count == 0 {
		opts.Count = MaxTransactionsPerPage
	}

	result, err := api.ExecuteRequest[TransactionsResponse](ctx, c.api, http.MethodPost, getTransactionsRoute, struct {
		credentials
		AccessToken string                     `json:"access_token"`
		StartDate   string                     `json:"start_date"`
		EndDate     string                     `json:"end_date"`
		Options     transactionsRequestOptions `json:"options"`
	}{
		credentials: c.credentials(),
		AccessToken: opts.AccessToken,
		StartDate:   opts.Start.Format(DateFormat),
		EndDate:     opts.End.Format(DateFormat),
		Options: transactionsRequestOptions{
			Count:  opts.Count,
			Offset: opts.Offset,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}

	return result, nil
}

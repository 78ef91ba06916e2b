// Package remote normalises aggregator responses into domain entities.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HallyG/knot/internal/domain"
	"github.com/HallyG/knot/internal/log"
	"github.com/HallyG/knot/internal/plaid"
	"github.com/samber/lo"
)

const defaultTimeout = 30 * time.Second

var (
	// DefaultStart and DefaultEnd bound the transaction window when the caller leaves it open.
	DefaultStart = time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)
	DefaultEnd   = time.Date(3000, time.December, 31, 0, 0, 0, 0, time.UTC)

	ErrNoAccessToken  = errors.New("exchange returned no access token")
	ErrMissingBalance = errors.New("current balance is missing")
)

// Client is the remote sync contract consumed by the account store.
type Client struct {
	api     plaid.Client
	timeout time.Duration
}

type Option func(*Client)

// WithTimeout bounds every individual remote call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func New(api plaid.Client, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("plaid client is required")
	}

	c := &Client{
		api:     api,
		timeout: defaultTimeout,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		opt(c)
	}

	return c, nil
}

// ExchangeLinkToken swaps the public token handed over by the link flow for a long-lived access token.
func (c *Client) ExchangeLinkToken(ctx context.Context, publicToken string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return "", err
	}

	if resp.AccessToken == "" {
		return "", ErrNoAccessToken
	}

	log.FromContext(ctx).DebugContext(ctx, "exchanged public token",
		log.Token("credential", resp.AccessToken),
		slog.String("item.id", resp.ItemID),
	)

	return resp.AccessToken, nil
}

// FetchAccounts returns every account the credential unlocks. knownAccountIDs narrows the request
// when present; nil or empty means a full refresh.
func (c *Client) FetchAccounts(ctx context.Context, credential string, knownAccountIDs []string) ([]domain.RemoteAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.FetchAccounts(ctx, plaid.FetchAccountsOptions{
		AccessToken: credential,
		AccountIDs:  knownAccountIDs,
	})
	if err != nil {
		return nil, err
	}

	// A tracked account without a balance would overwrite the stored one with zero.
	if account, found := lo.Find(resp.Accounts, missingBalance); found {
		return nil, fmt.Errorf("fetch accounts: account %s: %w", account.ID, ErrMissingBalance)
	}

	accounts := lo.FilterMap(resp.Accounts, func(account *plaid.Account, _ int) (domain.RemoteAccount, bool) {
		if account == nil || account.ID == "" {
			return domain.RemoteAccount{}, false
		}

		return toRemoteAccount(account), true
	})

	log.FromContext(ctx).DebugContext(ctx, "fetched accounts",
		log.Token("credential", credential),
		slog.Int("account.total", len(accounts)),
	)

	return accounts, nil
}

func missingBalance(account *plaid.Account) bool {
	if account == nil || account.ID == "" {
		return false
	}

	return domain.AccountType(account.Type).IsTracked() && !account.Balances.Current.Valid
}

func toRemoteAccount(account *plaid.Account) domain.RemoteAccount {
	return domain.RemoteAccount{
		ID:       account.ID,
		Type:     domain.AccountType(account.Type),
		Subtype:  account.Subtype,
		Name:     account.Name,
		Mask:     account.Mask,
		Balance:  account.Balances.Current.Decimal,
		Currency: account.Balances.ISOCurrencyCode,
	}
}

// FetchTransactions pages through every transaction for the credential between start and end inclusive.
// Zero dates default to DefaultStart and DefaultEnd.
func (c *Client) FetchTransactions(ctx context.Context, credential string, start time.Time, end time.Time) ([]domain.Transaction, error) {
	if start.IsZero() {
		start = DefaultStart
	}

	if end.IsZero() {
		end = DefaultEnd
	}

	var transactions []domain.Transaction

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch transactions: %w", ctx.Err())
		default:
		}

		page, total, err := c.fetchTransactionPage(ctx, credential, start, end, len(transactions))
		if err != nil {
			return nil, err
		}

		transactions = append(transactions, page...)

		if len(page) == 0 || len(transactions) >= total {
			break
		}
	}

	log.FromContext(ctx).DebugContext(ctx, "fetched transactions",
		log.Token("credential", credential),
		slog.String("start", start.Format(plaid.DateFormat)),
		slog.String("end", end.Format(plaid.DateFormat)),
		slog.Int("transaction.total", len(transactions)),
	)

	return transactions, nil
}

func (c *Client) fetchTransactionPage(ctx context.Context, credential string, start time.Time, end time.Time, offset int) ([]domain.Transaction, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.FetchTransactions(ctx, plaid.FetchTransactionsOptions{
		AccessToken: credential,
		Start:       start,
		End:         end,
		Count:       plaid.MaxTransactionsPerPage,
		Offset:      offset,
	})
	if err != nil {
		return nil, 0, err
	}

	page := make([]domain.Transaction, 0, len(resp.Transactions))
	for _, txn := range resp.Transactions {
		if txn == nil {
			continue
		}

		transaction, err := toTransaction(txn)
		if err != nil {
			return nil, 0, fmt.Errorf("fetch transactions: %w", err)
		}

		page = append(page, transaction)
	}

	return page, resp.TotalTransactions, nil
}

func toTransaction(txn *plaid.Transaction) (domain.Transaction, error) {
	date, err := time.Parse(plaid.DateFormat, txn.Date)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction %s: invalid date %q: %w", txn.ID, txn.Date, err)
	}

	return domain.Transaction{
		ID:        txn.ID,
		AccountID: txn.AccountID,
		Date:      date,
		Name:      txn.Name,
		Amount:    txn.Amount,
		Currency:  txn.ISOCurrencyCode,
	}, nil
}

package store

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/HallyG/knot/internal/domain"
	"github.com/HallyG/knot/internal/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

type TransactionsResult struct {
	Transactions []domain.Transaction
	Failures     []CredentialFailure
}

type transactionsFetch struct {
	token        string
	accountIDs   []string
	transactions []domain.Transaction
	err          error
}

// Transactions fetches every credential's transactions between start and end concurrently, keeps those
// belonging to tracked accounts and orders them newest first. Failed credentials are reported alongside the
// rows that were fetched.
func (s *Store) Transactions(ctx context.Context, start time.Time, end time.Time) (TransactionsResult, error) {
	s.mu.RLock()
	fetches := make([]transactionsFetch, 0, s.registry.Len())
	for _, token := range s.registry.Tokens() {
		fetches = append(fetches, transactionsFetch{token: token, accountIDs: s.registry.AccountIDs(token)})
	}
	s.mu.RUnlock()

	if len(fetches) == 0 {
		return TransactionsResult{}, ErrNoTrackedAccounts
	}

	var g errgroup.Group
	if s.maxConcurrent > 0 {
		g.SetLimit(s.maxConcurrent)
	}

	for i := range fetches {
		g.Go(func() error {
			fetch := &fetches[i]
			fetch.transactions, fetch.err = s.remote.FetchTransactions(ctx, fetch.token, start, end)
			return nil
		})
	}

	_ = g.Wait()

	var result TransactionsResult
	for _, fetch := range fetches {
		if fetch.err != nil {
			s.metrics.fetchFailures.WithLabelValues(operationTransactions).Inc()
			log.FromContext(ctx).WarnContext(ctx, "failed to fetch transactions",
				log.Token("credential", fetch.token),
				slog.Any("error", fetch.err),
			)
			result.Failures = append(result.Failures, CredentialFailure{AccountIDs: fetch.accountIDs, Err: fetch.err})
			continue
		}

		tracked := lo.Filter(fetch.transactions, func(txn domain.Transaction, _ int) bool {
			return slices.Contains(fetch.accountIDs, txn.AccountID)
		})
		result.Transactions = append(result.Transactions, tracked...)
	}

	slices.SortStableFunc(result.Transactions, func(a, b domain.Transaction) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return result, nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/HallyG/knot/internal/domain"
	"github.com/HallyG/knot/internal/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// CredentialFailure is a credential whose fetch failed. It is identified by the accounts it authorises
// so the token itself never leaves the store.
type CredentialFailure struct {
	AccountIDs []string
	Err        error
}

func (f CredentialFailure) Error() string {
	return fmt.Sprintf("accounts [%s]: %v", strings.Join(f.AccountIDs, ", "), f.Err)
}

func (f CredentialFailure) Unwrap() error {
	return f.Err
}

// Violation is a refreshed account the store refused to merge.
type Violation struct {
	AccountID string
	Reason    string
}

func (v Violation) Error() string {
	return fmt.Sprintf("account %s: %s", v.AccountID, v.Reason)
}

type RefreshResult struct {
	Cycle      string
	Updated    int
	Failures   []CredentialFailure
	Violations []Violation
}

// Err joins every failure and violation, or returns nil if the cycle was clean.
func (r RefreshResult) Err() error {
	errs := make([]error, 0, len(r.Failures)+len(r.Violations))
	for _, failure := range r.Failures {
		errs = append(errs, failure)
	}

	for _, violation := range r.Violations {
		errs = append(errs, violation)
	}

	return errors.Join(errs...)
}

type accountsFetch struct {
	token      string
	accountIDs []string
	accounts   []domain.RemoteAccount
	err        error
}

// RefreshAll fetches every credential's accounts concurrently and, once all fetches have finished,
// replaces the balances of the accounts already tracked in a single step. A failed credential keeps its
// previous balances.
//
// Concurrent callers share one cycle. The cycle ignores the cancellation of any single caller and is only
// abandoned, before anything is merged, once every caller waiting on it has gone. A caller whose ctx is done
// gets ctx.Err().
func (s *Store) RefreshAll(ctx context.Context) (RefreshResult, error) {
	cycleCtx := s.joinCycle(ctx)
	results := s.refreshes.DoChan(refreshKey, func() (any, error) {
		return s.refresh(cycleCtx)
	})

	select {
	case <-ctx.Done():
		s.leaveCycle(true)
		log.FromContext(ctx).DebugContext(ctx, "stopped waiting for refresh", slog.Any("error", ctx.Err()))
		return RefreshResult{}, ctx.Err()
	case res := <-results:
		s.leaveCycle(false)
		if res.Shared {
			log.FromContext(ctx).DebugContext(ctx, "joined in-flight refresh")
		}

		if res.Err != nil {
			return RefreshResult{}, res.Err
		}

		return res.Val.(RefreshResult), nil
	}
}

// joinCycle registers a caller and returns the context the shared cycle runs on.
func (s *Store) joinCycle(ctx context.Context) context.Context {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	if s.cycleWaiters == 0 {
		s.cycleCtx, s.cycleCancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	s.cycleWaiters++

	return s.cycleCtx
}

// leaveCycle unregisters a caller. The last caller to leave cancels the cycle context; if it gave up
// early the in-flight cycle is forgotten so the next caller starts afresh.
func (s *Store) leaveCycle(abandoned bool) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.cycleWaiters--
	if s.cycleWaiters > 0 {
		return
	}

	s.cycleCancel()
	if abandoned {
		s.refreshes.Forget(refreshKey)
	}
}

func (s *Store) refresh(ctx context.Context) (RefreshResult, error) {
	start := time.Now()
	cycle := uuid.NewString()
	logger := log.FromContext(ctx).With(slog.String("refresh.cycle", cycle))
	ctx = log.WithContext(ctx, logger)

	s.mu.RLock()
	fetches := make([]accountsFetch, 0, s.registry.Len())
	for _, token := range s.registry.Tokens() {
		fetches = append(fetches, accountsFetch{token: token, accountIDs: s.registry.AccountIDs(token)})
	}
	s.mu.RUnlock()

	if len(fetches) == 0 {
		return RefreshResult{}, ErrNoTrackedAccounts
	}

	logger.DebugContext(ctx, "refreshing accounts", slog.Int("credential.total", len(fetches)))

	var g errgroup.Group
	if s.maxConcurrent > 0 {
		g.SetLimit(s.maxConcurrent)
	}

	for i := range fetches {
		g.Go(func() error {
			fetch := &fetches[i]
			fetch.accounts, fetch.err = s.remote.FetchAccounts(ctx, fetch.token, fetch.accountIDs)
			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		logger.WarnContext(ctx, "abandoned refresh", slog.Any("error", err))
		return RefreshResult{}, err
	}

	s.mu.Lock()
	result := s.merge(ctx, fetches)
	result.Cycle = cycle
	s.persist(ctx)
	s.mu.Unlock()

	s.metrics.refreshTotal.Inc()
	s.metrics.refreshDuration.Observe(time.Since(start).Seconds())
	s.metrics.lastRefresh.SetToCurrentTime()
	s.metrics.balancesUpdated.Add(float64(result.Updated))

	logger.InfoContext(ctx, "refreshed accounts",
		slog.Int("account.updated.total", result.Updated),
		slog.Int("credential.failed.total", len(result.Failures)),
		slog.Int("violation.total", len(result.Violations)),
		slog.Duration("duration", time.Since(start)),
	)
	s.publish()

	return result, nil
}

// merge applies every fetch to copies of the partitions and swaps them in. It must be called with mu held.
func (s *Store) merge(ctx context.Context, fetches []accountsFetch) RefreshResult {
	logger := log.FromContext(ctx)

	cash := append([]domain.Account(nil), s.cash...)
	credit := append([]domain.Account(nil), s.credit...)

	type position struct {
		accounts []domain.Account
		index    int
	}

	positions := make(map[string]position, len(cash)+len(credit))
	for i, account := range cash {
		positions[account.ID] = position{accounts: cash, index: i}
	}

	for i, account := range credit {
		positions[account.ID] = position{accounts: credit, index: i}
	}

	var result RefreshResult

	for _, fetch := range fetches {
		if fetch.err != nil {
			s.metrics.fetchFailures.WithLabelValues(operationAccounts).Inc()
			logger.WarnContext(ctx, "failed to refresh credential",
				log.Token("credential", fetch.token),
				slog.Any("error", fetch.err),
			)
			result.Failures = append(result.Failures, CredentialFailure{AccountIDs: fetch.accountIDs, Err: fetch.err})
			continue
		}

		requested := make(map[string]struct{}, len(fetch.accountIDs))
		for _, accountID := range fetch.accountIDs {
			requested[accountID] = struct{}{}
		}

		for _, remote := range fetch.accounts {
			pos, tracked := positions[remote.ID]
			if !tracked {
				if _, ok := requested[remote.ID]; ok {
					logger.DebugContext(ctx, "skipping account deleted during refresh", slog.String("account.id", remote.ID))
					continue
				}

				if !remote.Type.IsTracked() {
					continue
				}

				result.Violations = append(result.Violations, s.violation(ctx, remote.ID, "not tracked by the store"))
				continue
			}

			if owner, _ := s.registry.CredentialFor(remote.ID); owner != fetch.token {
				result.Violations = append(result.Violations, s.violation(ctx, remote.ID, "authorised by a different credential"))
				continue
			}

			pos.accounts[pos.index] = pos.accounts[pos.index].WithBalance(remote.Balance)
			result.Updated++
		}
	}

	s.cash = cash
	s.credit = credit

	return result
}

func (s *Store) violation(ctx context.Context, accountID string, reason string) Violation {
	s.metrics.violations.Inc()
	log.FromContext(ctx).ErrorContext(ctx, "refusing to merge refreshed account",
		slog.String("account.id", accountID),
		slog.String("reason", reason),
	)

	return Violation{AccountID: accountID, Reason: reason}
}

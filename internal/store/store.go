// Package store owns the tracked accounts, the credentials that unlock them and the institutions they belong to.
// Every mutation is persisted as a snapshot and announced to subscribers.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/HallyG/knot/internal/credential"
	"github.com/HallyG/knot/internal/domain"
	"github.com/HallyG/knot/internal/log"
	"github.com/HallyG/knot/internal/snapshot"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrNoTrackedAccounts  = errors.New("no tracked accounts")
	ErrNoAccountsAdded    = errors.New("no accounts added")
	ErrCredentialRequired = errors.New("credential is required")
)

const refreshKey = "refresh"

type (
	// Remote fetches accounts and transactions for a single credential.
	Remote interface {
		FetchAccounts(ctx context.Context, credential string, knownAccountIDs []string) ([]domain.RemoteAccount, error)
		FetchTransactions(ctx context.Context, credential string, start time.Time, end time.Time) ([]domain.Transaction, error)
	}
	Persister interface {
		Load(ctx context.Context) *snapshot.Snapshot
		Save(ctx context.Context, snapshot *snapshot.Snapshot) error
	}
	Publisher interface {
		Publish()
	}
)

type Store struct {
	mu           sync.RWMutex
	registry     *credential.Registry
	institutions map[string]domain.Institution // account ID -> institution
	cash         []domain.Account
	credit       []domain.Account

	remote        Remote
	persister     Persister
	publisher     Publisher
	metrics       *Metrics
	now           func() time.Time
	maxConcurrent int
	refreshes     singleflight.Group

	cycleMu      sync.Mutex
	cycleCtx     context.Context
	cycleCancel  context.CancelFunc
	cycleWaiters int
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(s *Store) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

func WithPublisher(publisher Publisher) Option {
	return func(s *Store) {
		s.publisher = publisher
	}
}

// WithMaxConcurrentFetches limits how many credentials are fetched at once. Zero or less means no limit.
func WithMaxConcurrentFetches(limit int) Option {
	return func(s *Store) {
		s.maxConcurrent = limit
	}
}

// New loads the persisted snapshot and returns a store serving it.
func New(ctx context.Context, remote Remote, persister Persister, opts ...Option) (*Store, error) {
	err := validation.Errors{
		"remote":    validation.Validate(remote, validation.NotNil),
		"persister": validation.Validate(persister, validation.NotNil),
	}.Filter()
	if err != nil {
		return nil, fmt.Errorf("invalid store: %w", err)
	}

	s := &Store{
		remote:    remote,
		persister: persister,
		now:       time.Now,
		metrics:   NewMetrics(nil),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		opt(s)
	}

	s.restore(ctx, persister.Load(ctx))
	s.observe()

	return s, nil
}

// restore replaces the in-memory state with snap. Accounts are deduplicated by ID and every
// account is authorised by the credential it was added with.
func (s *Store) restore(ctx context.Context, snap *snapshot.Snapshot) {
	if snap == nil {
		snap = snapshot.Empty()
	}

	s.registry = credential.NewRegistryFromMap(snap.Credentials)
	s.institutions = make(map[string]domain.Institution, len(snap.Institutions))
	seen := make(map[string]struct{})

	keep := func(account domain.Account) bool {
		if _, dup := seen[account.ID]; dup {
			log.FromContext(ctx).WarnContext(ctx, "dropping duplicate account from snapshot", slog.String("account.id", account.ID))
			return false
		}

		seen[account.ID] = struct{}{}

		if _, ok := s.registry.CredentialFor(account.ID); !ok && account.Credential != "" {
			s.registry.Authorize(account.Credential, account.ID)
		}

		return true
	}

	s.cash = lo.Filter(snap.CashAccounts, func(account domain.Account, _ int) bool { return keep(account) })
	s.credit = lo.Filter(snap.CreditAccounts, func(account domain.Account, _ int) bool { return keep(account) })

	for _, token := range s.registry.Tokens() {
		for _, accountID := range s.registry.AccountIDs(token) {
			if _, ok := seen[accountID]; !ok {
				s.registry.Revoke(token, accountID)
			}
		}
	}

	for accountID, institution := range snap.Institutions {
		if _, ok := seen[accountID]; ok {
			s.institutions[accountID] = institution
		}
	}
}

// AddAccounts fetches every account the credential unlocks and tracks the depository and credit
// accounts not already present. The credential is only kept if at least one account was added.
func (s *Store) AddAccounts(ctx context.Context, token string, institution domain.Institution) ([]domain.Account, error) {
	if token == "" {
		return nil, ErrCredentialRequired
	}

	if err := institution.Validate(); err != nil {
		return nil, fmt.Errorf("invalid institution: %w", err)
	}

	logger := log.FromContext(ctx).With(log.Token("credential", token), slog.String("institution.name", institution.Name))

	remoteAccounts, err := s.remote.FetchAccounts(ctx, token, nil)
	if err != nil {
		s.metrics.fetchFailures.WithLabelValues(operationAdd).Inc()
		return nil, fmt.Errorf("add accounts: %w", err)
	}

	s.mu.Lock()

	added := make([]domain.Account, 0, len(remoteAccounts))
	for _, remote := range remoteAccounts {
		if _, _, exists := s.find(remote.ID); exists {
			logger.DebugContext(ctx, "skipping known account", slog.String("account.id", remote.ID))
			continue
		}

		partition, tracked := remote.Type.Partition()
		if !tracked {
			logger.DebugContext(ctx, "skipping untracked account type",
				slog.String("account.id", remote.ID),
				slog.String("account.type", string(remote.Type)),
			)
			continue
		}

		account := remote.Track(token, s.now())
		s.registry.Authorize(token, account.ID)
		s.institutions[account.ID] = institution

		switch partition {
		case domain.PartitionCash:
			s.cash = append(s.cash, account)
		case domain.PartitionCredit:
			s.credit = append(s.credit, account)
		}

		added = append(added, account)
	}

	if len(added) == 0 {
		s.mu.Unlock()
		logger.InfoContext(ctx, "no accounts added", slog.Int("account.remote.total", len(remoteAccounts)))
		return nil, ErrNoAccountsAdded
	}

	s.persist(ctx)
	s.mu.Unlock()

	logger.InfoContext(ctx, "added accounts", slog.Int("account.added.total", len(added)))
	s.publish()

	return added, nil
}

// DeleteAccount stops tracking accountID. Its credential is discarded once it authorises no other account.
func (s *Store) DeleteAccount(ctx context.Context, accountID string) error {
	s.mu.Lock()

	account, partition, exists := s.find(accountID)
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}

	removeByID := func(accounts []domain.Account) []domain.Account {
		return slices.DeleteFunc(accounts, func(a domain.Account) bool { return a.ID == accountID })
	}

	switch partition {
	case domain.PartitionCash:
		s.cash = removeByID(s.cash)
	case domain.PartitionCredit:
		s.credit = removeByID(s.credit)
	}

	token, ok := s.registry.CredentialFor(accountID)
	if !ok {
		token = account.Credential
	}

	removed := s.registry.Revoke(token, accountID)
	delete(s.institutions, accountID)

	s.persist(ctx)
	s.mu.Unlock()

	log.FromContext(ctx).InfoContext(ctx, "deleted account",
		slog.String("account.id", accountID),
		slog.Bool("credential.removed", removed),
	)
	s.publish()

	return nil
}

// DeleteAll forgets every account, credential and institution. It returns how many accounts were removed.
func (s *Store) DeleteAll(ctx context.Context) int {
	s.mu.Lock()

	removed := len(s.cash) + len(s.credit)
	s.registry.Clear()
	clear(s.institutions)
	s.cash = []domain.Account{}
	s.credit = []domain.Account{}

	s.persist(ctx)
	s.mu.Unlock()

	log.FromContext(ctx).InfoContext(ctx, "deleted all accounts", slog.Int("account.removed.total", removed))
	s.publish()

	return removed
}

func (s *Store) Lookup(accountID string) (domain.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, _, exists := s.find(accountID)
	return account, exists
}

func (s *Store) CredentialFor(accountID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.registry.CredentialFor(accountID)
}

// Institution returns the institution accountID was linked through.
func (s *Store) Institution(accountID string) (domain.Institution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	institution, ok := s.institutions[accountID]
	return institution, ok
}

func (s *Store) CashAccounts() []domain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.cash)
}

func (s *Store) CreditAccounts() []domain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.credit)
}

// Accounts returns the cash accounts followed by the credit accounts.
func (s *Store) Accounts() []domain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Concat(s.cash, s.credit)
}

func (s *Store) Balances() domain.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return domain.Summarise(s.cash, s.credit)
}

// find must be called with mu held.
func (s *Store) find(accountID string) (domain.Account, domain.Partition, bool) {
	if account, ok := lo.Find(s.cash, func(a domain.Account) bool { return a.ID == accountID }); ok {
		return account, domain.PartitionCash, true
	}

	if account, ok := lo.Find(s.credit, func(a domain.Account) bool { return a.ID == accountID }); ok {
		return account, domain.PartitionCredit, true
	}

	return domain.Account{}, "", false
}

// persist must be called with mu held. Failures are logged and counted; the in-memory state stays authoritative.
func (s *Store) persist(ctx context.Context) {
	snap := &snapshot.Snapshot{
		Version:        snapshot.Version,
		Credentials:    s.registry.Export(),
		Institutions:   make(map[string]domain.Institution, len(s.institutions)),
		CashAccounts:   slices.Clone(s.cash),
		CreditAccounts: slices.Clone(s.credit),
	}

	for accountID, institution := range s.institutions {
		snap.Institutions[accountID] = institution
	}

	if snap.CashAccounts == nil {
		snap.CashAccounts = []domain.Account{}
	}

	if snap.CreditAccounts == nil {
		snap.CreditAccounts = []domain.Account{}
	}

	if err := s.persister.Save(ctx, snap); err != nil {
		s.metrics.snapshotSaves.WithLabelValues("failure").Inc()
		log.FromContext(ctx).ErrorContext(ctx, "failed to save snapshot", slog.Any("error", err))
	} else {
		s.metrics.snapshotSaves.WithLabelValues("success").Inc()
	}

	s.observe()
}

func (s *Store) observe() {
	s.metrics.trackedAccounts.WithLabelValues(string(domain.PartitionCash)).Set(float64(len(s.cash)))
	s.metrics.trackedAccounts.WithLabelValues(string(domain.PartitionCredit)).Set(float64(len(s.credit)))
	s.metrics.registeredTokens.Set(float64(s.registry.Len()))
}

func (s *Store) publish() {
	if s.publisher != nil {
		s.publisher.Publish()
	}
}

// Package snapshot persists the account store's durable state as a single versioned JSON file.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/HallyG/knot/internal/domain"
	"github.com/HallyG/knot/internal/log"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Version is the schema version written by Save. Files without a version are read as version 1.
const Version = 1

const filePerm = 0o600

type Snapshot struct {
	Version        int                           `json:"version"`
	Credentials    map[string][]string           `json:"credentials"`  // access token -> account IDs
	Institutions   map[string]domain.Institution `json:"institutions"` // account ID -> institution
	CashAccounts   []domain.Account              `json:"cashAccounts"`
	CreditAccounts []domain.Account              `json:"creditAccounts"`
}

// Empty returns a snapshot with no credentials, institutions or accounts.
func Empty() *Snapshot {
	return &Snapshot{
		Version:        Version,
		Credentials:    map[string][]string{},
		Institutions:   map[string]domain.Institution{},
		CashAccounts:   []domain.Account{},
		CreditAccounts: []domain.Account{},
	}
}

func (s Snapshot) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Version, validation.Required, validation.Max(Version)),
		validation.Field(&s.Credentials, validation.Each(validation.Each(validation.Required))),
		validation.Field(&s.Institutions),
		validation.Field(&s.CashAccounts, validation.Each(validation.By(inPartition(domain.PartitionCash)))),
		validation.Field(&s.CreditAccounts, validation.Each(validation.By(inPartition(domain.PartitionCredit)))),
	)
}

func inPartition(partition domain.Partition) validation.RuleFunc {
	return func(value any) error {
		account, ok := value.(domain.Account)
		if !ok {
			return errors.New("must be an account")
		}

		if account.ID == "" {
			return errors.New("id is required")
		}

		if account.Partition() != partition {
			return fmt.Errorf("account %s of type %q does not belong in %s", account.ID, account.Type, partition)
		}

		return nil
	}
}

// File reads and atomically replaces a snapshot at a fixed path.
// It performs no locking; callers serialise Save.
type File struct {
	path string
}

func NewFile(path string) (*File, error) {
	if err := validation.Validate(path, validation.Required.Error("snapshot path is required")); err != nil {
		return nil, err
	}

	return &File{path: filepath.Clean(path)}, nil
}

func (f *File) Path() string {
	return f.path
}

// Load returns the stored snapshot. A missing, unreadable, corrupt or newer-versioned file is logged and
// an empty snapshot returned in its place.
func (f *File) Load(ctx context.Context) *Snapshot {
	logger := log.FromContext(ctx).With(slog.String("snapshot.path", f.path))

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.DebugContext(ctx, "no snapshot found, starting empty")
		} else {
			logger.WarnContext(ctx, "failed to read snapshot, starting empty", slog.Any("error", err))
		}

		return Empty()
	}

	snapshot, err := decode(data)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode snapshot, starting empty", slog.Any("error", err))
		return Empty()
	}

	if snapshot.Version > Version {
		logger.WarnContext(ctx, "snapshot written by a newer version, starting empty",
			slog.Int("snapshot.version", snapshot.Version),
			slog.Int("supported.version", Version),
		)
		return Empty()
	}

	if err := snapshot.Validate(); err != nil {
		logger.WarnContext(ctx, "invalid snapshot, starting empty", slog.Any("error", err))
		return Empty()
	}

	logger.DebugContext(ctx, "loaded snapshot",
		slog.Int("credential.total", len(snapshot.Credentials)),
		slog.Int("account.cash.total", len(snapshot.CashAccounts)),
		slog.Int("account.credit.total", len(snapshot.CreditAccounts)),
	)

	return snapshot
}

func decode(data []byte) (*Snapshot, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}

	if snapshot.Version == 0 {
		snapshot.Version = 1
	}

	if snapshot.Credentials == nil {
		snapshot.Credentials = map[string][]string{}
	}

	if snapshot.Institutions == nil {
		snapshot.Institutions = map[string]domain.Institution{}
	}

	if snapshot.CashAccounts == nil {
		snapshot.CashAccounts = []domain.Account{}
	}

	if snapshot.CreditAccounts == nil {
		snapshot.CreditAccounts = []domain.Account{}
	}

	return &snapshot, nil
}

// Save writes snapshot to a temporary file in the same directory and renames it over the target,
// so a reader sees either the previous file or the new one.
func (f *File) Save(ctx context.Context, snapshot *Snapshot) (err error) {
	if snapshot == nil {
		snapshot = Empty()
	}

	if snapshot.Version == 0 {
		snapshot.Version = Version
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary snapshot: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	if err = tmp.Chmod(filePerm); err != nil {
		return fmt.Errorf("chmod snapshot: %w", err)
	}

	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync snapshot: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err = os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	syncDir(dir)

	log.FromContext(ctx).DebugContext(ctx, "saved snapshot",
		slog.String("snapshot.path", f.path),
		slog.Int("snapshot.bytes", len(data)),
	)

	return nil
}

// syncDir flushes the rename to disk. Not every platform supports fsync on a directory.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}

	_ = d.Sync()
	_ = d.Close()
}

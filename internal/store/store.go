// Package store defines the persistence boundary of the sync engine: the raw
// record cache, canonical entities, sync profiles, the sync job ledger and
// per-provider config documents.
package store

import (
	"context"
	"errors"

	"github.com/dvloznov/pocketsync/internal/domain"
)

// ErrNotFound is returned when a lookup by key matches nothing.
var ErrNotFound = errors.New("not found")

// UpsertResult reports the outcome of an idempotent upsert and the row ID.
type UpsertResult struct {
	Outcome domain.UpsertOutcome
	ID      int64
}

// RawRecordStore is the idempotent cache of last-seen provider payloads.
type RawRecordStore interface {
	// UpsertRaw inserts rec, or replaces the stored payload when it differs
	// structurally. LastSeenAt is refreshed only on create or update.
	UpsertRaw(ctx context.Context, rec domain.RawRecord) (UpsertResult, error)

	// RawRecordsByID returns the records for ids in no particular order.
	RawRecordsByID(ctx context.Context, ids []int64) ([]domain.RawRecord, error)
}

// AccountStore persists canonical accounts keyed by (user, provider, ref).
type AccountStore interface {
	UpsertAccount(ctx context.Context, a *domain.Account) (UpsertResult, error)
	AccountByID(ctx context.Context, id int64) (*domain.Account, error)
	AccountsByProvider(ctx context.Context, userID, providerID int64) ([]domain.Account, error)
}

// CategoryStore persists canonical categories and the cross-provider map.
type CategoryStore interface {
	UpsertCategory(ctx context.Context, c *domain.Category) (UpsertResult, error)
	CategoryByExternalRef(ctx context.Context, owner domain.Owner, ref string) (*domain.Category, error)
	CategoriesByProvider(ctx context.Context, owner domain.Owner) ([]domain.Category, error)

	// MapCategory links two categories of different providers. The link is
	// symmetric.
	MapCategory(ctx context.Context, leftID, rightID int64) error

	// MappedCategoryRef returns the external ref of the category on
	// targetProviderID linked to categoryID, or ErrNotFound.
	MappedCategoryRef(ctx context.Context, categoryID, targetProviderID int64) (string, error)
}

// TransactionStore persists canonical transactions keyed by (account, ref).
type TransactionStore interface {
	UpsertTransaction(ctx context.Context, t *domain.Transaction) (UpsertResult, error)
	TransactionsByID(ctx context.Context, ids []int64) ([]*domain.Transaction, error)

	// DeleteTransactions removes the transactions and every ledger entry
	// referencing them.
	DeleteTransactions(ctx context.Context, ids []int64) error
}

// LedgerStore is the durable queue of transactions pending upload per
// profile.
type LedgerStore interface {
	// AddLedgerEntry is idempotent on (profileID, transactionID).
	AddLedgerEntry(ctx context.Context, profileID, transactionID int64) error
	LedgerEntries(ctx context.Context, profileID int64) ([]domain.LedgerEntry, error)
	DeleteLedgerEntries(ctx context.Context, profileID int64, transactionIDs []int64) error
}

// ProfileStore persists sync profiles.
type ProfileStore interface {
	// CreateProfile returns a DuplicateName error when the name is taken.
	CreateProfile(ctx context.Context, p *domain.SyncProfile) error
	ProfilesByUser(ctx context.Context, userID int64) ([]domain.SyncProfile, error)
	ProfileByName(ctx context.Context, userID int64, name string) (*domain.SyncProfile, error)
}

// ConfigStore holds one JSON document per (user, provider).
type ConfigStore interface {
	// ProviderConfig returns nil with no error when nothing is stored.
	ProviderConfig(ctx context.Context, owner domain.Owner) (map[string]any, error)
	SaveProviderConfig(ctx context.Context, owner domain.Owner, cfg map[string]any) error
}

// ProviderStore persists registered providers.
type ProviderStore interface {
	// UpsertProvider inserts or updates by name and sets p.ID.
	UpsertProvider(ctx context.Context, p *domain.Provider) error
	ProviderByName(ctx context.Context, name string) (*domain.Provider, error)
	ProviderByID(ctx context.Context, id int64) (*domain.Provider, error)
}

// UserStore persists users.
type UserStore interface {
	// EnsureUser returns the user named name, creating it if needed.
	EnsureUser(ctx context.Context, name string) (*domain.User, error)
}

// EntityStore is the write side the normalizer needs.
type EntityStore interface {
	AccountStore
	CategoryStore
	TransactionStore
}

// Store is the full persistence surface.
type Store interface {
	RawRecordStore
	EntityStore
	LedgerStore
	ProfileStore
	ConfigStore
	ProviderStore
	UserStore
	Close() error
}

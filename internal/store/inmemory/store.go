package inmemory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/store"
)

type rawKey struct {
	owner domain.Owner
	typ   domain.RecordType
	ref   string
}

type accountKey struct {
	owner domain.Owner
	ref   string
}

type transactionKey struct {
	accountID int64
	ref       string
}

type ledgerKey struct {
	profileID     int64
	transactionID int64
}

// Store is an in-memory implementation of store.Store.
// It is safe for concurrent use. Data is lost when the process exits - for
// persistence, use the Postgres store.
type Store struct {
	mu     sync.RWMutex
	nextID int64
	now    func() time.Time

	raw        map[int64]domain.RawRecord
	rawByKey   map[rawKey]int64
	accounts   map[int64]domain.Account
	accountIdx map[accountKey]int64
	categories map[int64]domain.Category
	catIdx     map[accountKey]int64
	catMap     map[[2]int64]struct{}
	txs        map[int64]*domain.Transaction
	txIdx      map[transactionKey]int64
	ledger     map[ledgerKey]struct{}
	profiles   map[int64]domain.SyncProfile
	configs    map[domain.Owner]map[string]any
	providers  map[int64]domain.Provider
	users      map[string]domain.User
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		now:        time.Now,
		raw:        make(map[int64]domain.RawRecord),
		rawByKey:   make(map[rawKey]int64),
		accounts:   make(map[int64]domain.Account),
		accountIdx: make(map[accountKey]int64),
		categories: make(map[int64]domain.Category),
		catIdx:     make(map[accountKey]int64),
		catMap:     make(map[[2]int64]struct{}),
		txs:        make(map[int64]*domain.Transaction),
		txIdx:      make(map[transactionKey]int64),
		ledger:     make(map[ledgerKey]struct{}),
		profiles:   make(map[int64]domain.SyncProfile),
		configs:    make(map[domain.Owner]map[string]any),
		providers:  make(map[int64]domain.Provider),
		users:      make(map[string]domain.User),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// UpsertRaw implements the store.RawRecordStore interface.
func (s *Store) UpsertRaw(ctx context.Context, rec domain.RawRecord) (store.UpsertResult, error) {
	if rec.ExternalRef == "" {
		return store.UpsertResult{}, fmt.Errorf("UpsertRaw: external ref is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := rawKey{owner: rec.Owner, typ: rec.Type, ref: rec.ExternalRef}
	if id, ok := s.rawByKey[key]; ok {
		existing := s.raw[id]
		if store.PayloadEqual(existing.Payload, rec.Payload) {
			return store.UpsertResult{Outcome: domain.Unchanged, ID: id}, nil
		}
		existing.Payload = slices.Clone(rec.Payload)
		existing.LastSeenAt = s.now()
		s.raw[id] = existing
		return store.UpsertResult{Outcome: domain.Updated, ID: id}, nil
	}

	rec.ID = s.id()
	rec.Payload = slices.Clone(rec.Payload)
	rec.LastSeenAt = s.now()
	s.raw[rec.ID] = rec
	s.rawByKey[key] = rec.ID
	return store.UpsertResult{Outcome: domain.Created, ID: rec.ID}, nil
}

// RawRecordsByID implements the store.RawRecordStore interface.
func (s *Store) RawRecordsByID(ctx context.Context, ids []int64) ([]domain.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.RawRecord
	for _, id := range ids {
		if rec, ok := s.raw[id]; ok {
			rec.Payload = slices.Clone(rec.Payload)
			result = append(result, rec)
		}
	}
	return result, nil
}

// UpsertAccount implements the store.AccountStore interface.
func (s *Store) UpsertAccount(ctx context.Context, a *domain.Account) (store.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountKey{owner: domain.Owner{UserID: a.UserID, ProviderID: a.ProviderID}, ref: a.ExternalRef}
	if id, ok := s.accountIdx[key]; ok {
		a.ID = id
		existing := s.accounts[id]
		if existing.SameContent(a) {
			return store.UpsertResult{Outcome: domain.Unchanged, ID: id}, nil
		}
		s.accounts[id] = *a
		return store.UpsertResult{Outcome: domain.Updated, ID: id}, nil
	}

	a.ID = s.id()
	s.accounts[a.ID] = *a
	s.accountIdx[key] = a.ID
	return store.UpsertResult{Outcome: domain.Created, ID: a.ID}, nil
}

// AccountByID implements the store.AccountStore interface.
func (s *Store) AccountByID(ctx context.Context, id int64) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("AccountByID: account %d: %w", id, store.ErrNotFound)
	}
	return &a, nil
}

// AccountsByProvider implements the store.AccountStore interface.
func (s *Store) AccountsByProvider(ctx context.Context, userID, providerID int64) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Account
	for _, a := range s.accounts {
		if a.UserID == userID && a.ProviderID == providerID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// UpsertCategory implements the store.CategoryStore interface.
func (s *Store) UpsertCategory(ctx context.Context, c *domain.Category) (store.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountKey{owner: domain.Owner{UserID: c.UserID, ProviderID: c.ProviderID}, ref: c.ExternalRef}
	stored := *c
	stored.Tree = slices.Clone(c.Tree)
	if id, ok := s.catIdx[key]; ok {
		c.ID, stored.ID = id, id
		existing := s.categories[id]
		if existing.SameContent(c) {
			return store.UpsertResult{Outcome: domain.Unchanged, ID: id}, nil
		}
		s.categories[id] = stored
		return store.UpsertResult{Outcome: domain.Updated, ID: id}, nil
	}

	c.ID = s.id()
	stored.ID = c.ID
	s.categories[c.ID] = stored
	s.catIdx[key] = c.ID
	return store.UpsertResult{Outcome: domain.Created, ID: c.ID}, nil
}

// CategoryByExternalRef implements the store.CategoryStore interface.
func (s *Store) CategoryByExternalRef(ctx context.Context, owner domain.Owner, ref string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.catIdx[accountKey{owner: owner, ref: ref}]
	if !ok {
		return nil, fmt.Errorf("CategoryByExternalRef: category %q: %w", ref, store.ErrNotFound)
	}
	c := s.categories[id]
	c.Tree = slices.Clone(c.Tree)
	return &c, nil
}

// CategoriesByProvider implements the store.CategoryStore interface.
func (s *Store) CategoriesByProvider(ctx context.Context, owner domain.Owner) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Category
	for _, c := range s.categories {
		if c.UserID == owner.UserID && c.ProviderID == owner.ProviderID {
			c.Tree = slices.Clone(c.Tree)
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// MapCategory implements the store.CategoryStore interface.
func (s *Store) MapCategory(ctx context.Context, leftID, rightID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[leftID]; !ok {
		return fmt.Errorf("MapCategory: category %d: %w", leftID, store.ErrNotFound)
	}
	if _, ok := s.categories[rightID]; !ok {
		return fmt.Errorf("MapCategory: category %d: %w", rightID, store.ErrNotFound)
	}
	s.catMap[[2]int64{leftID, rightID}] = struct{}{}
	return nil
}

// MappedCategoryRef implements the store.CategoryStore interface.
func (s *Store) MappedCategoryRef(ctx context.Context, categoryID, targetProviderID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for pair := range s.catMap {
		var other int64
		switch categoryID {
		case pair[0]:
			other = pair[1]
		case pair[1]:
			other = pair[0]
		default:
			continue
		}
		if c := s.categories[other]; c.ProviderID == targetProviderID {
			return c.ExternalRef, nil
		}
	}
	return "", fmt.Errorf("MappedCategoryRef: category %d: %w", categoryID, store.ErrNotFound)
}

// UpsertTransaction implements the store.TransactionStore interface.
func (s *Store) UpsertTransaction(ctx context.Context, t *domain.Transaction) (store.UpsertResult, error) {
	if t.ExternalRef == "" {
		return store.UpsertResult{}, fmt.Errorf("UpsertTransaction: external ref is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := transactionKey{accountID: t.AccountID, ref: t.ExternalRef}
	if id, ok := s.txIdx[key]; ok {
		t.ID = id
		if s.txs[id].SameContent(t) {
			return store.UpsertResult{Outcome: domain.Unchanged, ID: id}, nil
		}
		s.txs[id] = t.Clone()
		return store.UpsertResult{Outcome: domain.Updated, ID: id}, nil
	}

	t.ID = s.id()
	s.txs[t.ID] = t.Clone()
	s.txIdx[key] = t.ID
	return store.UpsertResult{Outcome: domain.Created, ID: t.ID}, nil
}

// TransactionsByID implements the store.TransactionStore interface.
func (s *Store) TransactionsByID(ctx context.Context, ids []int64) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, id := range ids {
		if t, ok := s.txs[id]; ok {
			result = append(result, t.Clone())
		}
	}
	return result, nil
}

// DeleteTransactions implements the store.TransactionStore interface.
func (s *Store) DeleteTransactions(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		t, ok := s.txs[id]
		if !ok {
			continue
		}
		delete(s.txIdx, transactionKey{accountID: t.AccountID, ref: t.ExternalRef})
		delete(s.txs, id)
		for k := range s.ledger {
			if k.transactionID == id {
				delete(s.ledger, k)
			}
		}
	}
	return nil
}

// AddLedgerEntry implements the store.LedgerStore interface.
func (s *Store) AddLedgerEntry(ctx context.Context, profileID, transactionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[profileID]; !ok {
		return fmt.Errorf("AddLedgerEntry: profile %d: %w", profileID, store.ErrNotFound)
	}
	if _, ok := s.txs[transactionID]; !ok {
		return fmt.Errorf("AddLedgerEntry: transaction %d: %w", transactionID, store.ErrNotFound)
	}
	s.ledger[ledgerKey{profileID: profileID, transactionID: transactionID}] = struct{}{}
	return nil
}

// LedgerEntries implements the store.LedgerStore interface.
func (s *Store) LedgerEntries(ctx context.Context, profileID int64) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.LedgerEntry
	for k := range s.ledger {
		if k.profileID == profileID {
			result = append(result, domain.LedgerEntry{ProfileID: k.profileID, TransactionID: k.transactionID})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TransactionID < result[j].TransactionID })
	return result, nil
}

// DeleteLedgerEntries implements the store.LedgerStore interface.
func (s *Store) DeleteLedgerEntries(ctx context.Context, profileID int64, transactionIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range transactionIDs {
		delete(s.ledger, ledgerKey{profileID: profileID, transactionID: id})
	}
	return nil
}

// CreateProfile implements the store.ProfileStore interface.
func (s *Store) CreateProfile(ctx context.Context, p *domain.SyncProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.profiles {
		if existing.UserID == p.UserID && existing.Name == p.Name {
			return apperr.DuplicateName(p.Name)
		}
	}
	p.ID = s.id()
	s.profiles[p.ID] = *p
	return nil
}

// ProfilesByUser implements the store.ProfileStore interface.
func (s *Store) ProfilesByUser(ctx context.Context, userID int64) ([]domain.SyncProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.SyncProfile
	for _, p := range s.profiles {
		if p.UserID == userID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// ProfileByName implements the store.ProfileStore interface.
func (s *Store) ProfileByName(ctx context.Context, userID int64, name string) (*domain.SyncProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.profiles {
		if p.UserID == userID && p.Name == name {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("ProfileByName: profile %q: %w", name, store.ErrNotFound)
}

// ProviderConfig implements the store.ConfigStore interface.
func (s *Store) ProviderConfig(ctx context.Context, owner domain.Owner) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[owner]
	if !ok {
		return nil, nil
	}
	return deepCopy(cfg), nil
}

// SaveProviderConfig implements the store.ConfigStore interface.
func (s *Store) SaveProviderConfig(ctx context.Context, owner domain.Owner, cfg map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.configs[owner] = deepCopy(cfg)
	return nil
}

// UpsertProvider implements the store.ProviderStore interface.
func (s *Store) UpsertProvider(ctx context.Context, p *domain.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.providers {
		if existing.Name == p.Name {
			p.ID = id
			s.providers[id] = *p
			return nil
		}
	}
	p.ID = s.id()
	s.providers[p.ID] = *p
	return nil
}

// ProviderByName implements the store.ProviderStore interface.
func (s *Store) ProviderByName(ctx context.Context, name string) (*domain.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.providers {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("ProviderByName: provider %q: %w", name, store.ErrNotFound)
}

// ProviderByID implements the store.ProviderStore interface.
func (s *Store) ProviderByID(ctx context.Context, id int64) (*domain.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.providers[id]
	if !ok {
		return nil, fmt.Errorf("ProviderByID: provider %d: %w", id, store.ErrNotFound)
	}
	return &p, nil
}

// EnsureUser implements the store.UserStore interface.
func (s *Store) EnsureUser(ctx context.Context, name string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[name]; ok {
		return &u, nil
	}
	u := domain.User{ID: s.id(), Name: name}
	s.users[name] = u
	return &u, nil
}

// Close implements the store.Store interface.
func (s *Store) Close() error {
	return nil
}

func deepCopy(m map[string]any) map[string]any {
	out := maps.Clone(m)
	for k, v := range out {
		if nested, ok := v.(map[string]any); ok {
			out[k] = deepCopy(nested)
		}
	}
	return out
}

// Ensure Store implements the store.Store interface.
var _ store.Store = (*Store)(nil)

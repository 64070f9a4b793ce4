// Package postgres is the durable store.Store backed by PostgreSQL via
// lib/pq. The schema lives in embedded migrations; see Migrate.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/lib/pq"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/store"
)

const uniqueViolation = "23505"

// Store implements store.Store on a *sql.DB.
type Store struct {
	db *sql.DB
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, apperr.Config("postgres DSN is empty")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("Open: pinging database: %w", err)
	}
	return New(db), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the pool for migrations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close implements the store.Store interface.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertRaw implements the store.RawRecordStore interface.
func (s *Store) UpsertRaw(ctx context.Context, rec domain.RawRecord) (store.UpsertResult, error) {
	if rec.ExternalRef == "" {
		return store.UpsertResult{}, fmt.Errorf("UpsertRaw: external ref is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.UpsertResult{}, fmt.Errorf("UpsertRaw: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		id      int64
		payload []byte
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, payload FROM raw_records
		WHERE user_id = $1 AND provider_id = $2 AND type = $3 AND external_ref = $4
		FOR UPDATE`,
		rec.Owner.UserID, rec.Owner.ProviderID, string(rec.Type), rec.ExternalRef).Scan(&id, &payload)

	var res store.UpsertResult
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = tx.QueryRowContext(ctx, `
			INSERT INTO raw_records (type, user_id, provider_id, external_ref, payload, last_seen_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			RETURNING id`,
			string(rec.Type), rec.Owner.UserID, rec.Owner.ProviderID, rec.ExternalRef, []byte(rec.Payload)).Scan(&id)
		if err != nil {
			return store.UpsertResult{}, fmt.Errorf("UpsertRaw: inserting: %w", err)
		}
		res = store.UpsertResult{Outcome: domain.Created, ID: id}
	case err != nil:
		return store.UpsertResult{}, fmt.Errorf("UpsertRaw: selecting: %w", err)
	case store.PayloadEqual(payload, rec.Payload):
		return store.UpsertResult{Outcome: domain.Unchanged, ID: id}, nil
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE raw_records SET payload = $1, last_seen_at = NOW() WHERE id = $2`,
			[]byte(rec.Payload), id); err != nil {
			return store.UpsertResult{}, fmt.Errorf("UpsertRaw: updating: %w", err)
		}
		res = store.UpsertResult{Outcome: domain.Updated, ID: id}
	}

	if err := tx.Commit(); err != nil {
		return store.UpsertResult{}, fmt.Errorf("UpsertRaw: committing: %w", err)
	}
	return res, nil
}

// RawRecordsByID implements the store.RawRecordStore interface.
func (s *Store) RawRecordsByID(ctx context.Context, ids []int64) ([]domain.RawRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, user_id, provider_id, external_ref, payload, last_seen_at
		FROM raw_records WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("RawRecordsByID: querying: %w", err)
	}
	defer rows.Close()

	var result []domain.RawRecord
	for rows.Next() {
		var (
			r       domain.RawRecord
			typ     string
			payload []byte
		)
		if err := rows.Scan(&r.ID, &typ, &r.Owner.UserID, &r.Owner.ProviderID, &r.ExternalRef, &payload, &r.LastSeenAt); err != nil {
			return nil, fmt.Errorf("RawRecordsByID: scanning: %w", err)
		}
		r.Type = domain.RecordType(typ)
		r.Payload = json.RawMessage(payload)
		result = append(result, r)
	}
	return result, rows.Err()
}

// UpsertAccount implements the store.AccountStore interface.
func (s *Store) UpsertAccount(ctx context.Context, a *domain.Account) (store.UpsertResult, error) {
	var existing domain.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider_id, external_ref, name, currency FROM accounts
		WHERE user_id = $1 AND provider_id = $2 AND external_ref = $3`,
		a.UserID, a.ProviderID, a.ExternalRef).
		Scan(&existing.ID, &existing.UserID, &existing.ProviderID, &existing.ExternalRef, &existing.Name, &existing.Currency)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = s.db.QueryRowContext(ctx, `
			INSERT INTO accounts (user_id, provider_id, external_ref, name, currency)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, provider_id, external_ref)
			DO UPDATE SET name = EXCLUDED.name, currency = EXCLUDED.currency
			RETURNING id`,
			a.UserID, a.ProviderID, a.ExternalRef, a.Name, a.Currency).Scan(&a.ID)
		if err != nil {
			return store.UpsertResult{}, fmt.Errorf("UpsertAccount: inserting: %w", err)
		}
		return store.UpsertResult{Outcome: domain.Created, ID: a.ID}, nil
	case err != nil:
		return store.UpsertResult{}, fmt.Errorf("UpsertAccount: selecting: %w", err)
	}

	a.ID = existing.ID
	if existing.SameContent(a) {
		return store.UpsertResult{Outcome: domain.Unchanged, ID: a.ID}, nil
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET name = $1, currency = $2 WHERE id = $3`, a.Name, a.Currency, a.ID); err != nil {
		return store.UpsertResult{}, fmt.Errorf("UpsertAccount: updating: %w", err)
	}
	return store.UpsertResult{Outcome: domain.Updated, ID: a.ID}, nil
}

const accountColumns = `id, user_id, provider_id, external_ref, name, currency`

func scanAccount(row interface{ Scan(...any) error }) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.UserID, &a.ProviderID, &a.ExternalRef, &a.Name, &a.Currency)
	return a, err
}

// AccountByID implements the store.AccountStore interface.
func (s *Store) AccountByID(ctx context.Context, id int64) (*domain.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("AccountByID: account %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("AccountByID: %w", err)
	}
	return &a, nil
}

// AccountsByProvider implements the store.AccountStore interface.
func (s *Store) AccountsByProvider(ctx context.Context, userID, providerID int64) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 AND provider_id = $2 ORDER BY id`,
		userID, providerID)
	if err != nil {
		return nil, fmt.Errorf("AccountsByProvider: querying: %w", err)
	}
	defer rows.Close()

	var result []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("AccountsByProvider: scanning: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

const categoryColumns = `id, user_id, provider_id, external_ref, name, tree`

func scanCategory(row interface{ Scan(...any) error }) (domain.Category, error) {
	var (
		c    domain.Category
		tree []byte
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.ProviderID, &c.ExternalRef, &c.Name, &tree); err != nil {
		return c, err
	}
	if err := json.Unmarshal(tree, &c.Tree); err != nil {
		return c, fmt.Errorf("decoding tree: %w", err)
	}
	return c, nil
}

// UpsertCategory implements the store.CategoryStore interface.
func (s *Store) UpsertCategory(ctx context.Context, c *domain.Category) (store.UpsertResult, error) {
	tree, err := json.Marshal(nonNil(c.Tree))
	if err != nil {
		return store.UpsertResult{}, fmt.Errorf("UpsertCategory: encoding tree: %w", err)
	}

	existing, err := scanCategory(s.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = $1 AND provider_id = $2 AND external_ref = $3`,
		c.UserID, c.ProviderID, c.ExternalRef))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = s.db.QueryRowContext(ctx, `
			INSERT INTO categories (user_id, provider_id, external_ref, name, tree)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, provider_id, external_ref)
			DO UPDATE SET name = EXCLUDED.name, tree = EXCLUDED.tree
			RETURNING id`,
			c.UserID, c.ProviderID, c.ExternalRef, c.Name, tree).Scan(&c.ID)
		if err != nil {
			return store.UpsertResult{}, fmt.Errorf("UpsertCategory: inserting: %w", err)
		}
		return store.UpsertResult{Outcome: domain.Created, ID: c.ID}, nil
	case err != nil:
		return store.UpsertResult{}, fmt.Errorf("UpsertCategory: selecting: %w", err)
	}

	c.ID = existing.ID
	if existing.SameContent(c) {
		return store.UpsertResult{Outcome: domain.Unchanged, ID: c.ID}, nil
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE categories SET name = $1, tree = $2 WHERE id = $3`, c.Name, tree, c.ID); err != nil {
		return store.UpsertResult{}, fmt.Errorf("UpsertCategory: updating: %w", err)
	}
	return store.UpsertResult{Outcome: domain.Updated, ID: c.ID}, nil
}

// CategoryByExternalRef implements the store.CategoryStore interface.
func (s *Store) CategoryByExternalRef(ctx context.Context, owner domain.Owner, ref string) (*domain.Category, error) {
	c, err := scanCategory(s.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = $1 AND provider_id = $2 AND external_ref = $3`,
		owner.UserID, owner.ProviderID, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("CategoryByExternalRef: category %q: %w", ref, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("CategoryByExternalRef: %w", err)
	}
	return &c, nil
}

// CategoriesByProvider implements the store.CategoryStore interface.
func (s *Store) CategoriesByProvider(ctx context.Context, owner domain.Owner) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = $1 AND provider_id = $2 ORDER BY id`,
		owner.UserID, owner.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("CategoriesByProvider: querying: %w", err)
	}
	defer rows.Close()

	var result []domain.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("CategoriesByProvider: scanning: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// MapCategory implements the store.CategoryStore interface.
func (s *Store) MapCategory(ctx context.Context, leftID, rightID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO category_map (left_category_id, right_category_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, leftID, rightID)
	if err != nil {
		return fmt.Errorf("MapCategory: %w", err)
	}
	return nil
}

// MappedCategoryRef implements the store.CategoryStore interface.
func (s *Store) MappedCategoryRef(ctx context.Context, categoryID, targetProviderID int64) (string, error) {
	var ref string
	err := s.db.QueryRowContext(ctx, `
		SELECT c.external_ref
		FROM category_map m
		JOIN categories c ON c.id = m.right_category_id
		WHERE m.left_category_id = $1 AND c.provider_id = $2
		UNION
		SELECT c.external_ref
		FROM category_map m
		JOIN categories c ON c.id = m.left_category_id
		WHERE m.right_category_id = $1 AND c.provider_id = $2
		LIMIT 1`, categoryID, targetProviderID).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("MappedCategoryRef: category %d: %w", categoryID, store.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("MappedCategoryRef: %w", err)
	}
	return ref, nil
}

const transactionColumns = `id, account_id, external_ref, payee, amount, date, is_transfer, category_id, attachments`

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var (
		t           domain.Transaction
		date        time.Time
		categoryID  sql.NullInt64
		attachments []byte
	)
	if err := row.Scan(&t.ID, &t.AccountID, &t.ExternalRef, &t.Payee, &t.Amount, &date, &t.IsTransfer, &categoryID, &attachments); err != nil {
		return nil, err
	}
	t.Date = civil.DateOf(date)
	if categoryID.Valid {
		id := categoryID.Int64
		t.CategoryID = &id
	}
	if err := json.Unmarshal(attachments, &t.Attachments); err != nil {
		return nil, fmt.Errorf("decoding attachments: %w", err)
	}
	if len(t.Attachments) == 0 {
		t.Attachments = nil
	}
	return &t, nil
}

// UpsertTransaction implements the store.TransactionStore interface.
func (s *Store) UpsertTransaction(ctx context.Context, t *domain.Transaction) (store.UpsertResult, error) {
	if t.ExternalRef == "" {
		return store.UpsertResult{}, fmt.Errorf("UpsertTransaction: external ref is required")
	}
	attachments, err := json.Marshal(nonNil(t.Attachments))
	if err != nil {
		return store.UpsertResult{}, fmt.Errorf("UpsertTransaction: encoding attachments: %w", err)
	}
	var categoryID sql.NullInt64
	if t.CategoryID != nil {
		categoryID = sql.NullInt64{Int64: *t.CategoryID, Valid: true}
	}

	existing, err := scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE account_id = $1 AND external_ref = $2`,
		t.AccountID, t.ExternalRef))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = s.db.QueryRowContext(ctx, `
			INSERT INTO transactions (account_id, external_ref, payee, amount, date, is_transfer, category_id, attachments)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (account_id, external_ref)
			DO UPDATE SET payee = EXCLUDED.payee, amount = EXCLUDED.amount, date = EXCLUDED.date,
				is_transfer = EXCLUDED.is_transfer, category_id = EXCLUDED.category_id, attachments = EXCLUDED.attachments
			RETURNING id`,
			t.AccountID, t.ExternalRef, t.Payee, t.Amount, t.Date.String(), t.IsTransfer, categoryID, attachments).Scan(&t.ID)
		if err != nil {
			return store.UpsertResult{}, fmt.Errorf("UpsertTransaction: inserting: %w", err)
		}
		return store.UpsertResult{Outcome: domain.Created, ID: t.ID}, nil
	case err != nil:
		return store.UpsertResult{}, fmt.Errorf("UpsertTransaction: selecting: %w", err)
	}

	t.ID = existing.ID
	if existing.SameContent(t) {
		return store.UpsertResult{Outcome: domain.Unchanged, ID: t.ID}, nil
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET payee = $1, amount = $2, date = $3, is_transfer = $4, category_id = $5, attachments = $6
		WHERE id = $7`,
		t.Payee, t.Amount, t.Date.String(), t.IsTransfer, categoryID, attachments, t.ID); err != nil {
		return store.UpsertResult{}, fmt.Errorf("UpsertTransaction: updating: %w", err)
	}
	return store.UpsertResult{Outcome: domain.Updated, ID: t.ID}, nil
}

// TransactionsByID implements the store.TransactionStore interface.
func (s *Store) TransactionsByID(ctx context.Context, ids []int64) ([]*domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ANY($1) ORDER BY date, id`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("TransactionsByID: querying: %w", err)
	}
	defer rows.Close()

	var result []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("TransactionsByID: scanning: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// DeleteTransactions implements the store.TransactionStore interface.
// Ledger rows go with them through ON DELETE CASCADE.
func (s *Store) DeleteTransactions(ctx context.Context, ids []int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return fmt.Errorf("DeleteTransactions: %w", err)
	}
	return nil
}

// AddLedgerEntry implements the store.LedgerStore interface.
func (s *Store) AddLedgerEntry(ctx context.Context, profileID, transactionID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_ledger (profile_id, transaction_id)
		VALUES ($1, $2)
		ON CONFLICT (profile_id, transaction_id) DO NOTHING`, profileID, transactionID)
	if err != nil {
		return fmt.Errorf("AddLedgerEntry: %w", err)
	}
	return nil
}

// LedgerEntries implements the store.LedgerStore interface.
func (s *Store) LedgerEntries(ctx context.Context, profileID int64) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT profile_id, transaction_id FROM sync_ledger
		WHERE profile_id = $1 ORDER BY transaction_id`, profileID)
	if err != nil {
		return nil, fmt.Errorf("LedgerEntries: querying: %w", err)
	}
	defer rows.Close()

	var result []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ProfileID, &e.TransactionID); err != nil {
			return nil, fmt.Errorf("LedgerEntries: scanning: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// DeleteLedgerEntries implements the store.LedgerStore interface.
func (s *Store) DeleteLedgerEntries(ctx context.Context, profileID int64, transactionIDs []int64) error {
	if len(transactionIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_ledger WHERE profile_id = $1 AND transaction_id = ANY($2)`,
		profileID, pq.Array(transactionIDs))
	if err != nil {
		return fmt.Errorf("DeleteLedgerEntries: %w", err)
	}
	return nil
}

// CreateProfile implements the store.ProfileStore interface.
func (s *Store) CreateProfile(ctx context.Context, p *domain.SyncProfile) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sync_profiles (user_id, name, source_account_id, target_account_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, p.UserID, p.Name, p.SourceAccountID, p.TargetAccountID).Scan(&p.ID)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return apperr.DuplicateName(p.Name)
	}
	if err != nil {
		return fmt.Errorf("CreateProfile: %w", err)
	}
	return nil
}

const profileColumns = `id, user_id, name, source_account_id, target_account_id`

func scanProfile(row interface{ Scan(...any) error }) (domain.SyncProfile, error) {
	var p domain.SyncProfile
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.SourceAccountID, &p.TargetAccountID)
	return p, err
}

// ProfilesByUser implements the store.ProfileStore interface.
func (s *Store) ProfilesByUser(ctx context.Context, userID int64) ([]domain.SyncProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM sync_profiles WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("ProfilesByUser: querying: %w", err)
	}
	defer rows.Close()

	var result []domain.SyncProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("ProfilesByUser: scanning: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// ProfileByName implements the store.ProfileStore interface.
func (s *Store) ProfileByName(ctx context.Context, userID int64, name string) (*domain.SyncProfile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM sync_profiles WHERE user_id = $1 AND name = $2`, userID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ProfileByName: profile %q: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ProfileByName: %w", err)
	}
	return &p, nil
}

// ProviderConfig implements the store.ConfigStore interface.
func (s *Store) ProviderConfig(ctx context.Context, owner domain.Owner) (map[string]any, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT config FROM configs WHERE user_id = $1 AND provider_id = $2`,
		owner.UserID, owner.ProviderID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ProviderConfig: %w", err)
	}
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("ProviderConfig: decoding: %w", err)
	}
	return cfg, nil
}

// SaveProviderConfig implements the store.ConfigStore interface.
func (s *Store) SaveProviderConfig(ctx context.Context, owner domain.Owner, cfg map[string]any) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("SaveProviderConfig: encoding: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO configs (user_id, provider_id, config, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, provider_id)
		DO UPDATE SET config = EXCLUDED.config, updated_at = NOW()`,
		owner.UserID, owner.ProviderID, raw)
	if err != nil {
		return fmt.Errorf("SaveProviderConfig: %w", err)
	}
	return nil
}

// UpsertProvider implements the store.ProviderStore interface.
func (s *Store) UpsertProvider(ctx context.Context, p *domain.Provider) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO providers (name, code, is_source, is_target)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name)
		DO UPDATE SET code = EXCLUDED.code, is_source = EXCLUDED.is_source, is_target = EXCLUDED.is_target
		RETURNING id`, p.Name, p.Code, p.IsSource, p.IsTarget).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("UpsertProvider: %w", err)
	}
	return nil
}

const providerColumns = `id, name, code, is_source, is_target`

func (s *Store) providerWhere(ctx context.Context, where string, arg any) (*domain.Provider, error) {
	var p domain.Provider
	err := s.db.QueryRowContext(ctx, `SELECT `+providerColumns+` FROM providers WHERE `+where, arg).
		Scan(&p.ID, &p.Name, &p.Code, &p.IsSource, &p.IsTarget)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ProviderByName implements the store.ProviderStore interface.
func (s *Store) ProviderByName(ctx context.Context, name string) (*domain.Provider, error) {
	p, err := s.providerWhere(ctx, "name = $1", name)
	if err != nil {
		return nil, fmt.Errorf("ProviderByName: provider %q: %w", name, err)
	}
	return p, nil
}

// ProviderByID implements the store.ProviderStore interface.
func (s *Store) ProviderByID(ctx context.Context, id int64) (*domain.Provider, error) {
	p, err := s.providerWhere(ctx, "id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("ProviderByID: provider %d: %w", id, err)
	}
	return p, nil
}

// EnsureUser implements the store.UserStore interface.
func (s *Store) EnsureUser(ctx context.Context, name string) (*domain.User, error) {
	u := domain.User{Name: name}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, name).Scan(&u.ID)
	if err != nil {
		return nil, fmt.Errorf("EnsureUser: %w", err)
	}
	return &u, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Ensure Store implements the store.Store interface.
var _ store.Store = (*Store)(nil)

// Package notion writes transactions into a Notion database and reads them
// back. The configured database is exposed as a single account.
package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/currency"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/ingest"
	"github.com/dvloznov/pocketsync/internal/providers"
)

const (
	// Name is the registered provider name.
	Name = "Notion"
	// Code prefixes correlation tokens for transactions read from Notion.
	Code = "NOTION"

	// BatchSize is the page size for database queries.
	BatchSize = 100

	defaultCurrency = "GBP"
)

// Meta is the registration row for this provider.
var Meta = providers.Meta{Name: Name, Code: Code, IsTarget: true}

// Adapter implements providers.Target for a Notion database.
type Adapter struct {
	env providers.Env

	mu      sync.Mutex
	service Service
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithService replaces the SDK-backed client.
func WithService(s Service) Option {
	return func(a *Adapter) { a.service = s }
}

// New creates an Adapter. The SDK client is built on first use from the
// token config.
func New(env providers.Env, opts ...Option) *Adapter {
	a := &Adapter{env: env}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ providers.Target = (*Adapter)(nil)

type settings struct {
	databaseID string
	currency   string
}

// connect returns the Notion service and database settings.
func (a *Adapter) connect(ctx context.Context) (Service, settings, error) {
	cfg, err := a.env.Config.Require(ctx, "token", "databaseId")
	if err != nil {
		return nil, settings{}, err
	}
	cur, err := a.env.Config.String(ctx, "currency")
	if err != nil {
		return nil, settings{}, err
	}
	if cur == "" {
		cur = defaultCurrency
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.service == nil {
		a.service = NewClient(cfg["token"])
	}
	return a.service, settings{databaseID: cfg["databaseId"], currency: strings.ToUpper(cur)}, nil
}

var databaseSchema = ingest.MustCompileSchema("notion_database", []byte(`{
	"type": "object",
	"required": ["id", "title"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"title": {"type": "array"}
	}
}`))

// FetchAccounts implements the providers.Adapter interface.
func (a *Adapter) FetchAccounts(ctx context.Context) ([]*domain.Account, error) {
	svc, s, err := a.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchAccounts: %w", err)
	}
	db, err := svc.RetrieveDatabase(ctx, s.databaseID)
	if err != nil {
		return nil, apperr.Transport(err, "FetchAccounts")
	}
	payload, err := json.Marshal(db)
	if err != nil {
		return nil, fmt.Errorf("FetchAccounts: encoding database: %w", err)
	}

	owner := a.env.Owner()
	items := []ingest.Item{{Ref: s.databaseID, Payload: payload}}
	return ingest.Process(ctx, a.env.Sink(), domain.RecordAccount, ingest.SinglePage(items), databaseSchema,
		func(ctx context.Context, rec domain.RawRecord) (*domain.Account, bool, error) {
			var db struct {
				Title []notionapi.RichText `json:"title"`
			}
			if err := json.Unmarshal(rec.Payload, &db); err != nil {
				return nil, false, apperr.Validation(err, "decoding database")
			}
			name := plainText(db.Title)
			if name == "" {
				name = rec.ExternalRef
			}
			return &domain.Account{
				UserID:      owner.UserID,
				ProviderID:  owner.ProviderID,
				ExternalRef: rec.ExternalRef,
				Name:        name,
				Currency:    s.currency,
			}, true, nil
		})
}

var pageSchema = ingest.MustCompileSchema("notion_page", []byte(`{
	"type": "object",
	"required": ["id", "properties"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"archived": {"type": "boolean"},
		"properties": {"type": "object", "required": ["Description", "Date", "Amount"]}
	}
}`))

// pages walks a database query by cursor. The cursor doubles as the page
// boundary for the progress guard.
func pages(svc Service, databaseID string, base notionapi.DatabaseQueryRequest) ingest.PageFunc {
	var (
		cursor notionapi.Cursor
		done   bool
	)
	return func(ctx context.Context) (ingest.Page, error) {
		if done {
			return ingest.Page{}, nil
		}
		req := base
		req.PageSize = BatchSize

		// Only set StartCursor if we have a cursor value
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := svc.QueryDatabase(ctx, databaseID, &req)
		if err != nil {
			return ingest.Page{}, apperr.Transport(err, "querying database")
		}

		var out ingest.Page
		for _, p := range resp.Results {
			payload, err := json.Marshal(p)
			if err != nil {
				return ingest.Page{}, fmt.Errorf("encoding page %s: %w", p.ID, err)
			}
			out.Items = append(out.Items, ingest.Item{Ref: string(p.ID), Payload: payload})
		}
		if !resp.HasMore {
			done = true
		}
		cursor = resp.NextCursor
		out.Boundary = string(cursor)
		return out, nil
	}
}

func dateFilter(from civil.Date) notionapi.Filter {
	if from.IsZero() {
		return nil
	}
	return notionapi.PropertyFilter{
		Property: propDate,
		Date:     &notionapi.DateFilterCondition{OnOrAfter: notionDate(from)},
	}
}

// DownloadTransactions implements the providers.TransactionDownloader interface.
func (a *Adapter) DownloadTransactions(ctx context.Context, account *domain.Account, from civil.Date) ([]*domain.Transaction, error) {
	svc, _, err := a.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("DownloadTransactions: %w", err)
	}

	next := pages(svc, account.ExternalRef, notionapi.DatabaseQueryRequest{Filter: dateFilter(from)})
	txs, err := ingest.Process(ctx, a.env.Sink(), domain.RecordTransaction, next, pageSchema, normalizePage(account))
	if err != nil {
		return nil, fmt.Errorf("DownloadTransactions: %s: %w", account.Name, err)
	}
	return txs, nil
}

func normalizePage(account *domain.Account) ingest.NormalizeFunc[*domain.Transaction] {
	return func(ctx context.Context, rec domain.RawRecord) (*domain.Transaction, bool, error) {
		var page notionapi.Page
		if err := json.Unmarshal(rec.Payload, &page); err != nil {
			return nil, false, apperr.Validation(err, "decoding page")
		}
		if page.Archived {
			return nil, false, nil
		}
		r := pageToRow(page)
		if r.Date == nil {
			return nil, false, apperr.Validation(nil, "page %s has no date", rec.ExternalRef)
		}
		if !r.HasAmount {
			return nil, false, apperr.Validation(nil, "page %s has no amount", rec.ExternalRef)
		}
		code := account.Currency
		if r.Currency != "" {
			code = r.Currency
		}

		tx := &domain.Transaction{
			AccountID:   account.ID,
			ExternalRef: rec.ExternalRef,
			Payee:       r.Payee,
			Amount:      currency.ToLowestUnit(decimal.NewFromFloat(r.Amount), code),
			Date:        civil.DateOf(r.Date.UTC()),
			IsTransfer:  r.IsTransfer,
		}
		if r.Receipt != "" {
			tx.Attachments = []domain.Attachment{{URL: r.Receipt, Filename: receiptName(r.Receipt)}}
		}
		return tx, true, nil
	}
}

func receiptName(u string) string {
	u, _, _ = strings.Cut(u, "?")
	if i := strings.LastIndex(u, "/"); i >= 0 && i < len(u)-1 {
		return u[i+1:]
	}
	return "receipt"
}

// NewestTransactionDate implements the providers.Target interface.
func (a *Adapter) NewestTransactionDate(ctx context.Context, account *domain.Account) (civil.Date, bool, error) {
	svc, _, err := a.connect(ctx)
	if err != nil {
		return civil.Date{}, false, fmt.Errorf("NewestTransactionDate: %w", err)
	}

	resp, err := svc.QueryDatabase(ctx, account.ExternalRef, &notionapi.DatabaseQueryRequest{
		Sorts:    []notionapi.SortObject{{Property: propDate, Direction: notionapi.SortOrderDESC}},
		PageSize: 1,
	})
	if err != nil {
		return civil.Date{}, false, apperr.Transport(err, "NewestTransactionDate")
	}
	for _, p := range resp.Results {
		if r := pageToRow(p); r.Date != nil {
			return civil.DateOf(r.Date.UTC()), true, nil
		}
	}
	return civil.Date{}, false, nil
}

// UploadTransactions implements the providers.Target interface. Each page
// creation is confirmed individually, so each transaction is yielded as soon
// as its page exists.
func (a *Adapter) UploadTransactions(ctx context.Context, req providers.UploadRequest) iter.Seq2[*domain.Transaction, error] {
	return func(yield func(*domain.Transaction, error) bool) {
		svc, _, err := a.connect(ctx)
		if err != nil {
			yield(nil, fmt.Errorf("UploadTransactions: %w", err))
			return
		}

		log := a.env.Log
		for _, t := range req.Transactions {
			page, err := svc.CreatePage(ctx, req.Account.ExternalRef, TransactionToProperties(req, t))
			if err != nil {
				yield(nil, apperr.Transport(err, "UploadTransactions: creating page for %s", t.ExternalRef))
				return
			}
			log.Debug().
				Str("external_ref", t.ExternalRef).
				Str("page_id", string(page.ID)).
				Msg("Created Notion page for transaction")
			if !yield(t, nil) {
				return
			}
		}
	}
}

package pocketsmith

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/currency"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/ingest"
	"github.com/dvloznov/pocketsync/internal/providers"
	"github.com/dvloznov/pocketsync/internal/store"
)

// pageOutOfBounds is the 400 body PocketSmith returns past the last page.
const pageOutOfBounds = "Requested page is out of bounds"

var transactionSchema = ingest.MustCompileSchema("pocketsmith_transaction", []byte(`{
	"type": "object",
	"required": ["id", "original_payee", "amount", "date"],
	"properties": {
		"id": {"type": "integer"},
		"original_payee": {"type": "string"},
		"amount": {"type": "number"},
		"date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
		"is_transfer": {"type": ["boolean", "null"]},
		"status": {"type": "string"},
		"category": {"type": ["object", "null"]}
	}
}`))

type transaction struct {
	ID            int64       `json:"id"`
	OriginalPayee string      `json:"original_payee"`
	Amount        json.Number `json:"amount"`
	Date          string      `json:"date"`
	IsTransfer    bool        `json:"is_transfer"`
	Status        string      `json:"status"`
	Category      *struct {
		ID int64 `json:"id"`
	} `json:"category"`
}

type attachment struct {
	Title       string `json:"title"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	OriginalURL string `json:"original_url"`
}

type transactionQuery struct {
	account string
	from    civil.Date
	to      civil.Date
	perPage int
}

func (q transactionQuery) values(page int) url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	perPage := q.perPage
	if perPage == 0 {
		perPage = pageSize
	}
	v.Set("per_page", strconv.Itoa(perPage))
	if !q.from.IsZero() {
		v.Set("start_date", q.from.String())
		v.Set("end_date", q.to.String())
	}
	return v
}

// fetchPage returns one page of transactions. Past the last page it returns
// an empty page rather than the API's 400.
func (a *Adapter) fetchPage(ctx context.Context, q transactionQuery, page int) ([]json.RawMessage, error) {
	var raw []json.RawMessage
	err := a.client.Do(ctx, providers.Get("transaction_accounts/"+q.account+"/transactions", q.values(page)), &raw)
	if h, ok := providers.AsHTTPError(err); ok && h.Status == http.StatusBadRequest && h.DecodedString("error") == pageOutOfBounds {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching transactions page %d: %w", page, err)
	}
	return raw, nil
}

func (a *Adapter) pages(q transactionQuery) ingest.PageFunc {
	page := 0
	return func(ctx context.Context) (ingest.Page, error) {
		page++
		raw, err := a.fetchPage(ctx, q, page)
		if err != nil {
			return ingest.Page{}, err
		}
		var out ingest.Page
		for _, r := range raw {
			var t transaction
			if err := json.Unmarshal(r, &t); err != nil {
				return ingest.Page{}, apperr.Transport(err, "decoding transaction")
			}
			ref := strconv.FormatInt(t.ID, 10)
			out.Items = append(out.Items, ingest.Item{Ref: ref, Payload: r})
			out.Boundary = ref
		}
		return out, nil
	}
}

// DownloadTransactions implements the providers.TransactionDownloader interface.
func (a *Adapter) DownloadTransactions(ctx context.Context, account *domain.Account, from civil.Date) ([]*domain.Transaction, error) {
	sink := a.env.Sink()
	q := transactionQuery{account: account.ExternalRef, from: from, to: civil.DateOf(time.Now())}

	records, err := ingest.Fetch(ctx, sink, domain.RecordTransaction, a.pages(q))
	if err != nil {
		return nil, fmt.Errorf("DownloadTransactions: %s: %w", account.Name, err)
	}
	attachments, err := a.fetchAttachments(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("DownloadTransactions: %s: %w", account.Name, err)
	}

	txs, err := ingest.Normalize(ctx, sink, records, transactionSchema, a.normalizeTransaction(account, attachments))
	if err != nil {
		return nil, fmt.Errorf("DownloadTransactions: %s: %w", account.Name, err)
	}
	return txs, nil
}

// fetchAttachments looks up the attachments of every record with a bounded
// pool. Results are keyed by external ref.
func (a *Adapter) fetchAttachments(ctx context.Context, records []domain.RawRecord) (map[string][]domain.Attachment, error) {
	var (
		mu  sync.Mutex
		out = make(map[string][]domain.Attachment, len(records))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(attachmentConcurrency)
	for _, rec := range records {
		ref := rec.ExternalRef
		g.Go(func() error {
			var resp []attachment
			if err := a.client.Do(gctx, providers.Get("transactions/"+ref+"/attachments", nil), &resp); err != nil {
				return fmt.Errorf("fetching attachments of %s: %w", ref, err)
			}
			if len(resp) == 0 {
				return nil
			}
			files := make([]domain.Attachment, 0, len(resp))
			for _, at := range resp {
				files = append(files, domain.Attachment{
					URL:         at.OriginalURL,
					Filename:    at.FileName,
					Description: at.Title,
					ContentType: at.ContentType,
				})
			}
			mu.Lock()
			out[ref] = files
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) normalizeTransaction(account *domain.Account, attachments map[string][]domain.Attachment) ingest.NormalizeFunc[*domain.Transaction] {
	owner := a.env.Owner()
	return func(ctx context.Context, rec domain.RawRecord) (*domain.Transaction, bool, error) {
		var t transaction
		if err := json.Unmarshal(rec.Payload, &t); err != nil {
			return nil, false, apperr.Validation(err, "decoding transaction")
		}
		if t.Status == "pending" {
			return nil, false, nil
		}
		date, err := civil.ParseDate(t.Date)
		if err != nil {
			return nil, false, apperr.Validation(err, "date")
		}
		amount, err := currency.ParseToLowestUnit(t.Amount.String(), account.Currency)
		if err != nil {
			return nil, false, apperr.Validation(err, "amount")
		}

		tx := &domain.Transaction{
			AccountID:   account.ID,
			ExternalRef: rec.ExternalRef,
			Payee:       t.OriginalPayee,
			Amount:      amount,
			Date:        date,
			IsTransfer:  t.IsTransfer,
			Attachments: attachments[rec.ExternalRef],
		}

		if t.Category != nil {
			cat, err := a.env.Store.CategoryByExternalRef(ctx, owner, strconv.FormatInt(t.Category.ID, 10))
			switch {
			case errors.Is(err, store.ErrNotFound):
				// Categories not downloaded yet; leave unset.
			case err != nil:
				return nil, false, fmt.Errorf("resolving category: %w", err)
			default:
				tx.CategoryID = &cat.ID
			}
		}
		return tx, true, nil
	}
}

// NewestTransactionDate implements the providers.Target interface.
func (a *Adapter) NewestTransactionDate(ctx context.Context, account *domain.Account) (civil.Date, bool, error) {
	raw, err := a.fetchPage(ctx, transactionQuery{account: account.ExternalRef, perPage: 10}, 1)
	if err != nil {
		return civil.Date{}, false, fmt.Errorf("NewestTransactionDate: %w", err)
	}
	var (
		newest civil.Date
		found  bool
	)
	for _, r := range raw {
		var t transaction
		if err := json.Unmarshal(r, &t); err != nil {
			continue
		}
		d, err := civil.ParseDate(t.Date)
		if err != nil {
			continue
		}
		if !found || d.After(newest) {
			newest, found = d, true
		}
	}
	return newest, found, nil
}

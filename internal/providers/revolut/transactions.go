package revolut

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/currency"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/ingest"
	"github.com/dvloznov/pocketsync/internal/providers"
)

var transactionSchema = ingest.MustCompileSchema("revolut_transaction", []byte(`{
	"type": "object",
	"required": ["id", "type", "created_at", "legs"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"type": {"type": "string"},
		"created_at": {"type": "string"},
		"completed_at": {"type": "string"},
		"legs": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["leg_id", "account_id", "amount"],
				"properties": {
					"leg_id": {"type": "string"},
					"account_id": {"type": "string"},
					"amount": {"type": "number"},
					"description": {"type": "string"}
				}
			}
		}
	}
}`))

type transaction struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	CreatedAt   string `json:"created_at"`
	CompletedAt string `json:"completed_at"`
	Legs        []leg  `json:"legs"`
}

type leg struct {
	LegID       string      `json:"leg_id"`
	AccountID   string      `json:"account_id"`
	Amount      json.Number `json:"amount"`
	Description string      `json:"description"`
}

// DownloadTransactions implements the providers.TransactionDownloader interface.
func (a *Adapter) DownloadTransactions(ctx context.Context, account *domain.Account, from civil.Date) ([]*domain.Transaction, error) {
	txs, err := ingest.Process(ctx, a.env.Sink(), domain.RecordTransaction, a.pages(from), transactionSchema, normalizeTransaction(account))
	if err != nil {
		return nil, fmt.Errorf("DownloadTransactions: %s: %w", account.Name, err)
	}
	return txs, nil
}

// pages walks the API backwards in time. Each request is bounded above by the
// end of the day of the previous page's oldest transaction, so consecutive
// pages overlap by up to one day; the loop ends when the oldest transaction
// stops changing.
func (a *Adapter) pages(from civil.Date) ingest.PageFunc {
	q := url.Values{}
	q.Set("count", strconv.Itoa(pageSize))
	if !from.IsZero() {
		q.Set("from", from.In(time.UTC).Format(time.RFC3339))
	} else {
		q.Set("from", time.Unix(0, 0).UTC().Format(time.RFC3339))
	}
	q.Set("to", endOfDay(a.now()).Format(time.RFC3339))

	return func(ctx context.Context) (ingest.Page, error) {
		var raw []json.RawMessage
		if err := a.client.Do(ctx, providers.Get("transactions", q), &raw); err != nil {
			return ingest.Page{}, fmt.Errorf("fetching transactions: %w", err)
		}

		var (
			page       ingest.Page
			oldestID   string
			oldestTime time.Time
		)
		for _, r := range raw {
			var t transaction
			if err := json.Unmarshal(r, &t); err != nil {
				return ingest.Page{}, apperr.Transport(err, "decoding transaction")
			}
			page.Items = append(page.Items, ingest.Item{Ref: t.ID, Payload: r})
			created, err := time.Parse(time.RFC3339, t.CreatedAt)
			if err != nil {
				// Left for the schema gate and normalizer to reject.
				continue
			}
			if oldestID == "" || created.Before(oldestTime) {
				oldestID, oldestTime = t.ID, created
			}
		}
		if oldestID != "" {
			page.Boundary = oldestID
			q.Set("to", endOfDay(oldestTime).Format(time.RFC3339))
		}
		return page, nil
	}
}

func endOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999_000_000, time.UTC)
}

func normalizeTransaction(account *domain.Account) ingest.NormalizeFunc[*domain.Transaction] {
	return func(ctx context.Context, rec domain.RawRecord) (*domain.Transaction, bool, error) {
		var t transaction
		if err := json.Unmarshal(rec.Payload, &t); err != nil {
			return nil, false, apperr.Validation(err, "decoding transaction")
		}
		if t.CompletedAt == "" {
			return nil, false, nil
		}

		i := slices.IndexFunc(t.Legs, func(l leg) bool { return l.AccountID == account.ExternalRef })
		if i < 0 {
			return nil, false, nil
		}
		l := t.Legs[i]

		created, err := time.Parse(time.RFC3339, t.CreatedAt)
		if err != nil {
			return nil, false, apperr.Validation(err, "created_at")
		}

		amount, err := currency.ParseToLowestUnit(l.Amount.String(), account.Currency)
		if err != nil {
			return nil, false, apperr.Validation(err, "leg %s amount", l.LegID)
		}

		return &domain.Transaction{
			AccountID:   account.ID,
			ExternalRef: l.LegID,
			Payee:       l.Description,
			Amount:      amount,
			Date:        civil.DateOf(created.UTC()),
			IsTransfer:  len(t.Legs) == 2 && (t.Type == "exchange" || t.Type == "transfer"),
		}, true, nil
	}
}

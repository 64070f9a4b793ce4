package freeagent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/currency"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/ingest"
	"github.com/dvloznov/pocketsync/internal/providers"
)

var transactionSchema = ingest.MustCompileSchema("freeagent_bank_transaction", []byte(`{
	"type": "object",
	"required": ["url", "amount", "dated_on", "description"],
	"properties": {
		"url": {"type": "string"},
		"amount": {"type": ["string", "number"]},
		"dated_on": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
		"description": {"type": "string"},
		"bank_transaction_explanations": {"type": "array"}
	}
}`))

// FreeAgent renders statement lines as "NAME/MEMO/.../".
var descriptionPattern = regexp.MustCompile(`(.+)/(.*)/(.*)/$`)

type bankTransaction struct {
	URL          string      `json:"url"`
	Amount       json.Number `json:"amount"`
	DatedOn      string      `json:"dated_on"`
	Description  string      `json:"description"`
	Explanations []struct {
		LinkedTransferAccount string `json:"linked_transfer_account"`
	} `json:"bank_transaction_explanations"`
}

// payeeAndMemo splits the statement description. A description that does not
// follow the statement format is all payee.
func (t bankTransaction) payeeAndMemo() (payee, memo string) {
	m := descriptionPattern.FindStringSubmatch(t.Description)
	if m == nil {
		return t.Description, ""
	}
	return m[1], m[2]
}

type transactionQuery struct {
	account      string
	from         civil.Date
	perPage      int
	lastUploaded bool
}

func (q transactionQuery) values(page int) url.Values {
	v := url.Values{}
	v.Set("bank_account", q.account)
	v.Set("page", strconv.Itoa(page))
	perPage := q.perPage
	if perPage == 0 {
		perPage = pageSize
	}
	v.Set("per_page", strconv.Itoa(perPage))
	if !q.from.IsZero() {
		v.Set("from_date", q.from.String())
	}
	if q.lastUploaded {
		v.Set("last_uploaded", "true")
	}
	return v
}

// fetchPage returns one page of bank transactions with raw payloads.
func (a *Adapter) fetchPage(ctx context.Context, q transactionQuery, page int) ([]json.RawMessage, error) {
	var resp struct {
		BankTransactions []json.RawMessage `json:"bank_transactions"`
	}
	if err := a.client.Do(ctx, providers.Get("bank_transactions", q.values(page)), &resp); err != nil {
		return nil, fmt.Errorf("fetching bank transactions page %d: %w", page, err)
	}
	return resp.BankTransactions, nil
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
			var bt bankTransaction
			if err := json.Unmarshal(r, &bt); err != nil {
				return ingest.Page{}, apperr.Transport(err, "decoding bank transaction")
			}
			ref, err := a.extractID("bank_transactions", bt.URL)
			if err != nil {
				a.env.Log.Warn().Err(err).Msg("Skipping bank transaction without a usable URL")
				continue
			}
			out.Items = append(out.Items, ingest.Item{Ref: ref, Payload: r})
			out.Boundary = ref
		}
		return out, nil
	}
}

// DownloadTransactions implements the providers.TransactionDownloader interface.
func (a *Adapter) DownloadTransactions(ctx context.Context, account *domain.Account, from civil.Date) ([]*domain.Transaction, error) {
	q := transactionQuery{account: account.ExternalRef, from: from}
	txs, err := ingest.Process(ctx, a.env.Sink(), domain.RecordTransaction, a.pages(q), transactionSchema, normalizeTransaction(account))
	if err != nil {
		return nil, fmt.Errorf("DownloadTransactions: %s: %w", account.Name, err)
	}
	return txs, nil
}

// NewestTransactionDate implements the providers.Target interface.
func (a *Adapter) NewestTransactionDate(ctx context.Context, account *domain.Account) (civil.Date, bool, error) {
	raw, err := a.fetchPage(ctx, transactionQuery{account: account.ExternalRef, perPage: 1}, 1)
	if err != nil {
		return civil.Date{}, false, fmt.Errorf("NewestTransactionDate: %w", err)
	}

	var (
		newest civil.Date
		found  bool
	)
	for _, r := range raw {
		var bt bankTransaction
		if err := json.Unmarshal(r, &bt); err != nil {
			continue
		}
		d, err := civil.ParseDate(bt.DatedOn)
		if err != nil {
			continue
		}
		if !found || d.After(newest) {
			newest, found = d, true
		}
	}
	return newest, found, nil
}

func normalizeTransaction(account *domain.Account) ingest.NormalizeFunc[*domain.Transaction] {
	return func(ctx context.Context, rec domain.RawRecord) (*domain.Transaction, bool, error) {
		var bt bankTransaction
		if err := json.Unmarshal(rec.Payload, &bt); err != nil {
			return nil, false, apperr.Validation(err, "decoding bank transaction")
		}
		date, err := civil.ParseDate(bt.DatedOn)
		if err != nil {
			return nil, false, apperr.Validation(err, "dated_on")
		}
		amount, err := currency.ParseToLowestUnit(bt.Amount.String(), account.Currency)
		if err != nil {
			return nil, false, apperr.Validation(err, "amount")
		}
		payee, _ := bt.payeeAndMemo()

		return &domain.Transaction{
			AccountID:   account.ID,
			ExternalRef: rec.ExternalRef,
			Payee:       payee,
			Amount:      amount,
			Date:        date,
			IsTransfer:  len(bt.Explanations) > 0 && bt.Explanations[0].LinkedTransferAccount != "",
		}, true, nil
	}
}

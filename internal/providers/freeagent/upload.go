package freeagent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"

	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/providers"
	"github.com/dvloznov/pocketsync/internal/store"
)

// defaultCategory is used for explanations when the source category has no
// FreeAgent mapping ("Accommodation and Meals").
const defaultCategory = "285"

type explanation struct {
	MarkedForReview bool                   `json:"marked_for_review"`
	Category        string                 `json:"category"`
	BankTransaction string                 `json:"bank_transaction"`
	Description     string                 `json:"description"`
	DatedOn         string                 `json:"dated_on"`
	GrossValue      string                 `json:"gross_value"`
	Attachment      *explanationAttachment `json:"attachment,omitempty"`
}

type explanationAttachment struct {
	Data        string `json:"data"`
	FileName    string `json:"file_name"`
	Description string `json:"description,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// UploadTransactions implements the providers.Target interface. The whole
// batch is sent as one statement; a transaction is yielded only once it is
// found in the uploaded set carrying its correlation token. Each confirmed
// transaction is then explained with its category and first attachment.
func (a *Adapter) UploadTransactions(ctx context.Context, req providers.UploadRequest) iter.Seq2[*domain.Transaction, error] {
	return func(yield func(*domain.Transaction, error) bool) {
		if len(req.Transactions) == 0 {
			return
		}
		log := a.env.Log.With().Str("account", req.Account.Name).Logger()

		statement, err := buildStatement(req)
		if err != nil {
			yield(nil, err)
			return
		}
		err = a.client.Do(ctx, providers.Request{
			Method:      http.MethodPost,
			Path:        "bank_transactions/statement",
			Query:       url.Values{"bank_account": {req.Account.ExternalRef}},
			Body:        []byte(url.Values{"statement": {statement}}.Encode()),
			ContentType: "application/x-www-form-urlencoded",
		}, nil)
		if err != nil {
			yield(nil, fmt.Errorf("UploadTransactions: posting statement: %w", err))
			return
		}
		log.Info().Int("count", len(req.Transactions)).Msg("Statement uploaded, confirming")

		if err := sleepContext(ctx, a.readBackDelay); err != nil {
			yield(nil, err)
			return
		}
		uploaded, err := a.lastUploaded(ctx, req.Account.ExternalRef)
		if err != nil {
			yield(nil, fmt.Errorf("UploadTransactions: reading back statement: %w", err))
			return
		}

		byRef := make(map[string]*domain.Transaction, len(req.Transactions))
		for _, t := range req.Transactions {
			byRef[t.ExternalRef] = t
		}
		acked := make(map[string]bool, len(req.Transactions))

		for _, bt := range uploaded {
			_, memo := bt.payeeAndMemo()
			origin, ref, ok := providers.ParseToken(memo)
			if !ok || !origin.Matches(req.Origin) {
				continue
			}
			t, ok := byRef[ref]
			if !ok || acked[ref] {
				continue
			}

			if err := a.explain(ctx, bt, t); err != nil {
				log.Warn().
					Err(err).
					Str("bank_transaction", bt.URL).
					Msg("Could not explain uploaded transaction")
			}
			acked[ref] = true
			if !yield(t, nil) {
				return
			}
		}

		if pending := req.Pending(acked); len(pending) > 0 {
			log.Warn().
				Int("unconfirmed", len(pending)).
				Msg("Uploaded transactions missing from read-back, leaving them pending")
		}
	}
}

// lastUploaded pages through the transactions of the most recent statement.
// Paging stops on a short page or when a page ends on the same transaction
// as the one before it.
func (a *Adapter) lastUploaded(ctx context.Context, account string) ([]bankTransaction, error) {
	q := transactionQuery{account: account, lastUploaded: true}
	var (
		out      []bankTransaction
		seen     = make(map[string]bool)
		prevLast string
	)
	for page := 1; ; page++ {
		raw, err := a.fetchPage(ctx, q, page)
		if err != nil {
			return nil, err
		}
		var last string
		for _, r := range raw {
			var bt bankTransaction
			if err := json.Unmarshal(r, &bt); err != nil {
				return nil, fmt.Errorf("lastUploaded: decoding: %w", err)
			}
			last = bt.URL
			if seen[bt.URL] {
				continue
			}
			seen[bt.URL] = true
			out = append(out, bt)
		}
		if len(raw) < pageSize {
			return out, nil
		}
		if page > 1 && last == prevLast {
			a.env.Log.Debug().
				Int("page", page).
				Str("last", last).
				Msg("Read-back page did not advance, stopping")
			return out, nil
		}
		prevLast = last
	}
}

func (a *Adapter) explain(ctx context.Context, bt bankTransaction, t *domain.Transaction) error {
	payee, _ := bt.payeeAndMemo()
	category, err := a.categoryFor(ctx, t)
	if err != nil {
		return err
	}
	body := explanation{
		MarkedForReview: true,
		Category:        a.resourceURL("categories", category),
		BankTransaction: bt.URL,
		Description:     payee,
		DatedOn:         bt.DatedOn,
		GrossValue:      bt.Amount.String(),
	}

	if len(t.Attachments) > 0 {
		file := t.Attachments[0]
		data, contentType, err := providers.Download(ctx, a.env.HTTPClient(), file.URL)
		if err != nil {
			a.env.Log.Warn().Err(err).Str("url", file.URL).Msg("Could not fetch attachment")
		} else {
			if file.ContentType != "" {
				contentType = file.ContentType
			}
			body.Attachment = &explanationAttachment{
				Data:        base64.StdEncoding.EncodeToString(data),
				FileName:    file.Filename,
				Description: file.Description,
				ContentType: contentType,
			}
		}
	}

	return a.client.Do(ctx, providers.Request{
		Method: http.MethodPost,
		Path:   "bank_transaction_explanations",
		JSON:   map[string]explanation{"bank_transaction_explanation": body},
	}, nil)
}

// categoryFor resolves t's category to a FreeAgent category id through the
// category map, falling back to defaultCategory.
func (a *Adapter) categoryFor(ctx context.Context, t *domain.Transaction) (string, error) {
	if t.CategoryID == nil {
		return defaultCategory, nil
	}
	ref, err := a.env.Store.MappedCategoryRef(ctx, *t.CategoryID, a.env.Provider.ID)
	if errors.Is(err, store.ErrNotFound) {
		return defaultCategory, nil
	}
	if err != nil {
		return "", fmt.Errorf("categoryFor: %w", err)
	}
	return ref, nil
}

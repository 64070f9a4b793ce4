package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/ingest"
)

var accountSchema = ingest.MustCompileSchema("bigquery_account", []byte(`{
	"type": "object",
	"required": ["account_id", "currency"],
	"properties": {
		"account_id": {"type": "string", "minLength": 1},
		"account_name": {"type": "string"},
		"currency": {"type": "string", "minLength": 3}
	}
}`))

type accountPayload struct {
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name"`
	Currency    string `json:"currency"`
}

// FetchAccounts implements the providers.Adapter interface.
func (a *Adapter) FetchAccounts(ctx context.Context) ([]*domain.Account, error) {
	w, err := a.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchAccounts: %w", err)
	}
	rows, err := w.ListOpenAccounts(ctx)
	if err != nil {
		return nil, apperr.Transport(err, "FetchAccounts")
	}

	items := make([]ingest.Item, 0, len(rows))
	for _, r := range rows {
		payload, err := json.Marshal(accountPayload{AccountID: r.AccountID, AccountName: r.AccountName, Currency: r.Currency})
		if err != nil {
			return nil, fmt.Errorf("FetchAccounts: encoding account: %w", err)
		}
		items = append(items, ingest.Item{Ref: r.AccountID, Payload: payload})
	}

	owner := a.env.Owner()
	return ingest.Process(ctx, a.env.Sink(), domain.RecordAccount, ingest.SinglePage(items), accountSchema,
		func(ctx context.Context, rec domain.RawRecord) (*domain.Account, bool, error) {
			var p accountPayload
			if err := json.Unmarshal(rec.Payload, &p); err != nil {
				return nil, false, apperr.Validation(err, "decoding account")
			}
			name := p.AccountName
			if name == "" {
				name = p.AccountID
			}
			return &domain.Account{
				UserID:      owner.UserID,
				ProviderID:  owner.ProviderID,
				ExternalRef: rec.ExternalRef,
				Name:        name,
				Currency:    strings.ToUpper(p.Currency),
			}, true, nil
		})
}

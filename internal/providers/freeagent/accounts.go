package freeagent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/ingest"
	"github.com/dvloznov/pocketsync/internal/providers"
)

var accountSchema = ingest.MustCompileSchema("freeagent_bank_account", []byte(`{
	"type": "object",
	"required": ["url", "name", "currency"],
	"properties": {
		"url": {"type": "string"},
		"name": {"type": "string"},
		"currency": {"type": "string", "minLength": 3}
	}
}`))

type bankAccount struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

// FetchAccounts implements the providers.Adapter interface.
func (a *Adapter) FetchAccounts(ctx context.Context) ([]*domain.Account, error) {
	var resp struct {
		BankAccounts []json.RawMessage `json:"bank_accounts"`
	}
	if err := a.client.Do(ctx, providers.Get("bank_accounts", url.Values{"view": {"all"}}), &resp); err != nil {
		return nil, fmt.Errorf("FetchAccounts: %w", err)
	}

	items := make([]ingest.Item, 0, len(resp.BankAccounts))
	for _, raw := range resp.BankAccounts {
		var ba bankAccount
		if err := json.Unmarshal(raw, &ba); err != nil {
			return nil, apperr.Transport(err, "FetchAccounts: decoding bank account")
		}
		ref, err := a.extractID("bank_accounts", ba.URL)
		if err != nil {
			a.env.Log.Warn().Err(err).Msg("Skipping bank account without a usable URL")
			continue
		}
		items = append(items, ingest.Item{Ref: ref, Payload: raw})
	}

	owner := a.env.Owner()
	return ingest.Process(ctx, a.env.Sink(), domain.RecordAccount, ingest.SinglePage(items), accountSchema,
		func(ctx context.Context, rec domain.RawRecord) (*domain.Account, bool, error) {
			var ba bankAccount
			if err := json.Unmarshal(rec.Payload, &ba); err != nil {
				return nil, false, apperr.Validation(err, "decoding bank account")
			}
			return &domain.Account{
				UserID:      owner.UserID,
				ProviderID:  owner.ProviderID,
				ExternalRef: rec.ExternalRef,
				Name:        ba.Name,
				Currency:    strings.ToUpper(ba.Currency),
			}, true, nil
		})
}

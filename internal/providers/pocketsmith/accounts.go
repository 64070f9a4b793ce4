package pocketsmith

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/ingest"
	"github.com/dvloznov/pocketsync/internal/providers"
)

var accountSchema = ingest.MustCompileSchema("pocketsmith_transaction_account", []byte(`{
	"type": "object",
	"required": ["id", "name", "currency_code"],
	"properties": {
		"id": {"type": "integer"},
		"name": {"type": "string"},
		"currency_code": {"type": "string", "minLength": 3}
	}
}`))

type transactionAccount struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	CurrencyCode string `json:"currency_code"`
}

// FetchAccounts implements the providers.Adapter interface.
func (a *Adapter) FetchAccounts(ctx context.Context) ([]*domain.Account, error) {
	userID, err := a.me(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchAccounts: %w", err)
	}

	var raw []json.RawMessage
	if err := a.client.Do(ctx, providers.Get("users/"+userID+"/transaction_accounts", nil), &raw); err != nil {
		return nil, fmt.Errorf("FetchAccounts: %w", err)
	}
	items := make([]ingest.Item, 0, len(raw))
	for _, r := range raw {
		var ta transactionAccount
		if err := json.Unmarshal(r, &ta); err != nil {
			return nil, apperr.Transport(err, "FetchAccounts: decoding transaction account")
		}
		items = append(items, ingest.Item{Ref: strconv.FormatInt(ta.ID, 10), Payload: r})
	}

	owner := a.env.Owner()
	return ingest.Process(ctx, a.env.Sink(), domain.RecordAccount, ingest.SinglePage(items), accountSchema,
		func(ctx context.Context, rec domain.RawRecord) (*domain.Account, bool, error) {
			var ta transactionAccount
			if err := json.Unmarshal(rec.Payload, &ta); err != nil {
				return nil, false, apperr.Validation(err, "decoding transaction account")
			}
			return &domain.Account{
				UserID:      owner.UserID,
				ProviderID:  owner.ProviderID,
				ExternalRef: rec.ExternalRef,
				Name:        ta.Name,
				Currency:    strings.ToUpper(ta.CurrencyCode),
			}, true, nil
		})
}

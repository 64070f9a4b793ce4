package revolut

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/ingest"
	"github.com/dvloznov/pocketsync/internal/providers"
)

var accountSchema = ingest.MustCompileSchema("revolut_account", []byte(`{
	"type": "object",
	"required": ["id", "name", "currency"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"name": {"type": "string"},
		"currency": {"type": "string", "minLength": 3}
	}
}`))

type account struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

func (a *Adapter) fetchAccounts(ctx context.Context) ([]ingest.Item, error) {
	var raw []json.RawMessage
	if err := a.client.Do(ctx, providers.Get("accounts", nil), &raw); err != nil {
		return nil, fmt.Errorf("fetchAccounts: %w", err)
	}
	items := make([]ingest.Item, 0, len(raw))
	for _, r := range raw {
		var acc account
		if err := json.Unmarshal(r, &acc); err != nil {
			return nil, apperr.Transport(err, "fetchAccounts: decoding account")
		}
		items = append(items, ingest.Item{Ref: acc.ID, Payload: r})
	}
	return items, nil
}

func ingestAccounts(ctx context.Context, env providers.Env, items []ingest.Item) ([]*domain.Account, error) {
	owner := env.Owner()
	return ingest.Process(ctx, env.Sink(), domain.RecordAccount, ingest.SinglePage(items), accountSchema,
		func(ctx context.Context, rec domain.RawRecord) (*domain.Account, bool, error) {
			var acc account
			if err := json.Unmarshal(rec.Payload, &acc); err != nil {
				return nil, false, apperr.Validation(err, "decoding account")
			}
			return &domain.Account{
				UserID:      owner.UserID,
				ProviderID:  owner.ProviderID,
				ExternalRef: rec.ExternalRef,
				Name:        acc.Name,
				Currency:    strings.ToUpper(acc.Currency),
			}, true, nil
		})
}

package pocketsmith

import (
	"context"
	"fmt"
	"iter"
	"net/http"

	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/providers"
)

type newTransaction struct {
	Payee      string `json:"payee"`
	Amount     string `json:"amount"`
	Date       string `json:"date"`
	IsTransfer bool   `json:"is_transfer"`
	Memo       string `json:"memo"`
}

// UploadTransactions implements the providers.Target interface. PocketSmith
// creates transactions one at a time, so each is yielded as soon as its
// create call succeeds.
func (a *Adapter) UploadTransactions(ctx context.Context, req providers.UploadRequest) iter.Seq2[*domain.Transaction, error] {
	return func(yield func(*domain.Transaction, error) bool) {
		path := "transaction_accounts/" + req.Account.ExternalRef + "/transactions"
		for _, t := range req.Transactions {
			err := a.client.Do(ctx, providers.Request{
				Method: http.MethodPost,
				Path:   path,
				JSON: newTransaction{
					Payee:      t.Payee,
					Amount:     req.Amount(t),
					Date:       t.Date.String(),
					IsTransfer: t.IsTransfer,
					Memo:       req.Origin.Token(t.ExternalRef),
				},
			}, nil)
			if err != nil {
				yield(nil, fmt.Errorf("UploadTransactions: creating %s: %w", t.ExternalRef, err))
				return
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}

// Package providers defines the capability set every external ledger
// integration implements, and the shared plumbing adapters are built on.
package providers

import (
	"context"
	"fmt"
	"iter"
	"regexp"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/pocketsync/internal/currency"
	"github.com/dvloznov/pocketsync/internal/domain"
)

// Meta describes a provider as it is registered in the store.
type Meta struct {
	Name     string
	Code     string
	IsSource bool
	IsTarget bool
}

// Adapter is the capability every provider offers.
type Adapter interface {
	// FetchAccounts lists the provider's accounts, caching the raw payloads
	// and upserting canonical accounts.
	FetchAccounts(ctx context.Context) ([]*domain.Account, error)
}

// TransactionDownloader pages through an account's transactions dated on or
// after from. A zero from means no lower bound.
type TransactionDownloader interface {
	DownloadTransactions(ctx context.Context, account *domain.Account, from civil.Date) ([]*domain.Transaction, error)
}

// Source is a provider transactions can be read from.
type Source interface {
	Adapter
	TransactionDownloader
}

// Target is a provider transactions can be pushed to. Targets also download,
// so the engine can match against what they already hold.
type Target interface {
	Adapter
	TransactionDownloader

	// NewestTransactionDate reports the date of the most recent transaction
	// in account; ok is false when the account is empty.
	NewestTransactionDate(ctx context.Context, account *domain.Account) (date civil.Date, ok bool, err error)

	// UploadTransactions pushes req.Transactions and yields each one once
	// the target has confirmed it. A yielded error ends the stream;
	// transactions not yielded before it are unconfirmed.
	UploadTransactions(ctx context.Context, req UploadRequest) iter.Seq2[*domain.Transaction, error]
}

// Authorizer is implemented by providers that obtain credentials through an
// OAuth authorization-code redirect.
type Authorizer interface {
	AuthCodeURL(ctx context.Context, state string) (string, error)
	Exchange(ctx context.Context, code string) error
}

// CategorySource is implemented by providers with transaction categories.
type CategorySource interface {
	FetchCategories(ctx context.Context) ([]*domain.Category, error)
}

// UploadRequest is one batch pushed to a target account.
type UploadRequest struct {
	Account      *domain.Account
	Origin       Origin
	Transactions []*domain.Transaction
}

// Origin identifies where uploaded transactions came from. Targets embed its
// token in each pushed item so it can be recognised on read-back.
type Origin struct {
	ProviderCode string
	AccountRef   string
	// Currency of the source account; amounts are in its lowest unit.
	Currency string
}

var tokenPattern = regexp.MustCompile(`^@([^:]+):([^:]+):([^@]+)@$`)

// Token returns the correlation token for a source transaction ref.
func (o Origin) Token(transactionRef string) string {
	return fmt.Sprintf("@%s:%s:%s@", o.ProviderCode, o.AccountRef, transactionRef)
}

// Matches reports whether o and other name the same source account.
func (o Origin) Matches(other Origin) bool {
	return o.ProviderCode == other.ProviderCode && o.AccountRef == other.AccountRef
}

// ParseToken splits a correlation token. ok is false for anything else.
func ParseToken(s string) (origin Origin, transactionRef string, ok bool) {
	m := tokenPattern.FindStringSubmatch(s)
	if m == nil {
		return Origin{}, "", false
	}
	return Origin{ProviderCode: m[1], AccountRef: m[2]}, m[3], true
}

// Amount formats t's amount as a decimal string in the source currency.
func (r UploadRequest) Amount(t *domain.Transaction) string {
	code := r.Origin.Currency
	if code == "" && r.Account != nil {
		code = r.Account.Currency
	}
	return currency.FromLowestUnit(t.Amount, code)
}

// Pending returns the request transactions whose source ref is not in acked.
// Adapters use it to report what a read-back failed to confirm.
func (r UploadRequest) Pending(acked map[string]bool) []*domain.Transaction {
	var out []*domain.Transaction
	for _, t := range r.Transactions {
		if !acked[t.ExternalRef] {
			out = append(out, t)
		}
	}
	return out
}

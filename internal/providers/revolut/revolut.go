// Package revolut reads accounts and completed transactions from the
// Revolut Business API. It is a source only.
package revolut

import (
	"context"
	"net/http"
	"time"

	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/providers"
)

const (
	// Name is the registered provider name.
	Name = "RevolutBusiness"
	// Code prefixes correlation tokens for transactions read from Revolut.
	Code = "REVBIZ"

	defaultBaseURL = "https://b2b.revolut.com/api/1.0"
	pageSize       = 1000
)

// Meta is the registration row for this provider.
var Meta = providers.Meta{Name: Name, Code: Code, IsSource: true}

// Adapter implements providers.Source for Revolut Business.
type Adapter struct {
	env    providers.Env
	client *providers.Client
	now    func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL points the adapter at another API root, e.g. the sandbox.
func WithBaseURL(u string) Option {
	return func(a *Adapter) { a.client.BaseURL = u }
}

// WithClock overrides the clock used for the upper bound of the first page.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// New creates an Adapter. The access token is read from the provider config
// on every request.
func New(env providers.Env, opts ...Option) *Adapter {
	a := &Adapter{env: env, now: time.Now}
	a.client = &providers.Client{
		BaseURL:   defaultBaseURL,
		HTTP:      env.HTTPClient(),
		UserAgent: "PocketSync",
		Auth:      a.authorize,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ providers.Source = (*Adapter)(nil)

func (a *Adapter) authorize(ctx context.Context, req *http.Request) error {
	cfg, err := a.env.Config.Require(ctx, "accessToken")
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cfg["accessToken"])
	return nil
}

// FetchAccounts implements the providers.Adapter interface.
func (a *Adapter) FetchAccounts(ctx context.Context) ([]*domain.Account, error) {
	items, err := a.fetchAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return ingestAccounts(ctx, a.env, items)
}

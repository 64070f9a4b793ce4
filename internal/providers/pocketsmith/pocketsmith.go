// Package pocketsmith reads and writes PocketSmith transaction accounts.
package pocketsmith

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/dvloznov/pocketsync/internal/providers"
)

const (
	// Name is the registered provider name.
	Name = "PocketSmith"
	// Code prefixes correlation tokens for transactions read from PocketSmith.
	Code = "POCKSM"

	defaultBaseURL = "https://api.pocketsmith.com/v2"
	pageSize       = 100

	// attachmentConcurrency bounds parallel attachment lookups.
	attachmentConcurrency = 5
)

// Meta is the registration row for this provider.
var Meta = providers.Meta{Name: Name, Code: Code, IsSource: true, IsTarget: true}

// Adapter implements providers.Target for PocketSmith.
type Adapter struct {
	env    providers.Env
	client *providers.Client

	mu     sync.Mutex
	userID string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL points the adapter at another API root.
func WithBaseURL(u string) Option {
	return func(a *Adapter) { a.client.BaseURL = u }
}

// New creates an Adapter.
func New(env providers.Env, opts ...Option) *Adapter {
	a := &Adapter{env: env}
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

var (
	_ providers.Target         = (*Adapter)(nil)
	_ providers.CategorySource = (*Adapter)(nil)
)

func (a *Adapter) authorize(ctx context.Context, req *http.Request) error {
	cfg, err := a.env.Config.Require(ctx, "accessToken")
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Key "+cfg["accessToken"])
	return nil
}

// me returns the id of the user the access token belongs to.
func (a *Adapter) me(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.userID != "" {
		return a.userID, nil
	}

	var resp struct {
		ID int64 `json:"id"`
	}
	if err := a.client.Do(ctx, providers.Get("me", nil), &resp); err != nil {
		return "", fmt.Errorf("me: %w", err)
	}
	a.userID = strconv.FormatInt(resp.ID, 10)
	return a.userID, nil
}

// Package freeagent reads and writes FreeAgent bank accounts. Uploads go in
// as an OFX statement and are confirmed by reading the uploaded transactions
// back.
package freeagent

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/pocketsync/internal/providers"
)

const (
	// Name is the registered provider name.
	Name = "FreeAgent"
	// Code prefixes correlation tokens for transactions read from FreeAgent.
	Code = "FREEAG"

	defaultBaseURL = "https://api.freeagent.com/v2"
	pageSize       = 100

	// defaultReadBackDelay gives FreeAgent time to process a statement
	// before its transactions are listed.
	defaultReadBackDelay = 3 * time.Second
)

// Meta is the registration row for this provider.
var Meta = providers.Meta{Name: Name, Code: Code, IsSource: true, IsTarget: true}

// Adapter implements providers.Target for FreeAgent.
type Adapter struct {
	env           providers.Env
	baseURL       string
	client        *providers.Client
	readBackDelay time.Duration
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL points the adapter at another API root, e.g. the sandbox.
func WithBaseURL(u string) Option {
	return func(a *Adapter) { a.baseURL = strings.TrimRight(u, "/") }
}

// WithReadBackDelay overrides the pause between a statement upload and the
// read-back that confirms it.
func WithReadBackDelay(d time.Duration) Option {
	return func(a *Adapter) { a.readBackDelay = d }
}

// New creates an Adapter.
func New(env providers.Env, opts ...Option) *Adapter {
	a := &Adapter{env: env, baseURL: defaultBaseURL, readBackDelay: defaultReadBackDelay}
	for _, opt := range opts {
		opt(a)
	}
	a.client = &providers.Client{
		BaseURL:   a.baseURL,
		HTTP:      env.HTTPClient(),
		UserAgent: "PocketSync",
		Auth:      a.authorize,
		Refresher: a,
	}
	return a
}

var (
	_ providers.Target         = (*Adapter)(nil)
	_ providers.CategorySource = (*Adapter)(nil)
	_ providers.Authorizer     = (*Adapter)(nil)
)

func (a *Adapter) authorize(ctx context.Context, req *http.Request) error {
	cfg, err := a.env.Config.Require(ctx, "accessToken")
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cfg["accessToken"])
	return nil
}

// extractID returns the id at the end of a FreeAgent resource URL such as
// https://api.freeagent.com/v2/bank_accounts/123.
func (a *Adapter) extractID(key, resourceURL string) (string, error) {
	id, ok := strings.CutPrefix(resourceURL, a.baseURL+"/"+key+"/")
	if !ok || id == "" {
		return "", fmt.Errorf("extractID: %s missing from %q", key, resourceURL)
	}
	return id, nil
}

func (a *Adapter) resourceURL(key, id string) string {
	return a.baseURL + "/" + key + "/" + id
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package providertest builds adapter environments backed by the in-memory
// store for adapter tests.
package providertest

import (
	"bytes"
	"context"
	"testing"

	"github.com/dvloznov/pocketsync/internal/config"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/logger"
	"github.com/dvloznov/pocketsync/internal/providers"
	"github.com/dvloznov/pocketsync/internal/store/inmemory"
)

// Env returns an Env for meta with its provider registered and cfg stored as
// the provider config. Logs go to the returned buffer.
func Env(t *testing.T, meta providers.Meta, cfg map[string]any) (providers.Env, *bytes.Buffer) {
	t.Helper()
	ctx := context.Background()
	st := inmemory.NewStore()

	user, err := st.EnsureUser(ctx, "default")
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	prov := &domain.Provider{Name: meta.Name, Code: meta.Code, IsSource: meta.IsSource, IsTarget: meta.IsTarget}
	if err := st.UpsertProvider(ctx, prov); err != nil {
		t.Fatalf("UpsertProvider: %v", err)
	}

	logs := &bytes.Buffer{}
	env := providers.Env{
		Log:      logger.NewWithWriter(logs),
		Store:    st,
		User:     *user,
		Provider: *prov,
		App:      config.Default(),
	}
	env.Config = providers.NewConfig(st, env.Owner(), meta.Name)
	if cfg != nil {
		if err := env.Config.Set(ctx, cfg, providers.SetOptions{Replace: true}); err != nil {
			t.Fatalf("Config.Set: %v", err)
		}
	}
	return env, logs
}

// Account upserts an account for env's provider and returns it with its ID.
func Account(t *testing.T, env providers.Env, ref, name, currency string) *domain.Account {
	t.Helper()
	acc := &domain.Account{
		UserID:      env.User.ID,
		ProviderID:  env.Provider.ID,
		ExternalRef: ref,
		Name:        name,
		Currency:    currency,
	}
	if _, err := env.Store.UpsertAccount(context.Background(), acc); err != nil {
		t.Fatalf("UpsertAccount: %v", err)
	}
	return acc
}

// Transaction upserts a transaction into acc and returns it with its ID.
func Transaction(t *testing.T, env providers.Env, acc *domain.Account, tx domain.Transaction) *domain.Transaction {
	t.Helper()
	tx.AccountID = acc.ID
	if _, err := env.Store.UpsertTransaction(context.Background(), &tx); err != nil {
		t.Fatalf("UpsertTransaction: %v", err)
	}
	return &tx
}

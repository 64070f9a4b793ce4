package revolut

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/providers/providertest"
)

const accountRef = "acc-gbp"

var fixtures = []map[string]any{
	{
		"id": "t1", "type": "card_payment", "created_at": "2020-01-04T10:00:00Z", "completed_at": "2020-01-04T10:00:01Z",
		"legs": []any{map[string]any{"leg_id": "l1", "account_id": accountRef, "amount": -12.5, "description": "Coffee"}},
	},
	{
		"id": "t2", "type": "card_payment", "created_at": "2020-01-03T10:00:00Z",
		"legs": []any{map[string]any{"leg_id": "l2", "account_id": accountRef, "amount": -3, "description": "Pending"}},
	},
	{
		"id": "t3", "type": "transfer", "created_at": "2020-01-02T10:00:00Z", "completed_at": "2020-01-02T10:00:01Z",
		"legs": []any{
			map[string]any{"leg_id": "l3a", "account_id": "acc-eur", "amount": -10, "description": "To GBP"},
			map[string]any{"leg_id": "l3b", "account_id": accountRef, "amount": 8.61, "description": "From EUR"},
		},
	},
	{
		"id": "t4", "type": "card_payment", "created_at": "2020-01-01T10:00:00Z", "completed_at": "2020-01-01T10:00:01Z",
		"legs": []any{map[string]any{"leg_id": "l4", "account_id": "acc-eur", "amount": -1, "description": "Elsewhere"}},
	},
}

// newServer serves fixtures newest first, two per page, bounded by `to`.
func newServer(t *testing.T, calls *int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/accounts":
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"id": accountRef, "name": "Main", "currency": "gbp"},
				{"id": "acc-eur", "name": "Euro", "currency": "EUR"},
			})
		case "/transactions":
			*calls++
			to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
			require.NoError(t, err)
			var page []map[string]any
			for _, f := range fixtures {
				created, _ := time.Parse(time.RFC3339, f["created_at"].(string))
				if !created.After(to) {
					page = append(page, f)
				}
			}
			sort.Slice(page, func(i, j int) bool {
				return page[i]["created_at"].(string) > page[j]["created_at"].(string)
			})
			if len(page) > 2 {
				page = page[:2]
			}
			_ = json.NewEncoder(w).Encode(page)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestFetchAccounts(t *testing.T) {
	calls := 0
	srv := newServer(t, &calls)
	defer srv.Close()

	env, _ := providertest.Env(t, Meta, map[string]any{"accessToken": "secret"})
	a := New(env, WithBaseURL(srv.URL))

	accounts, err := a.FetchAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "GBP", accounts[0].Currency)
	assert.NotZero(t, accounts[0].ID)
}

func TestFetchAccounts_MissingToken(t *testing.T) {
	env, _ := providertest.Env(t, Meta, nil)
	a := New(env, WithBaseURL("http://127.0.0.1:0"))

	_, err := a.FetchAccounts(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))
}

func TestDownloadTransactions(t *testing.T) {
	calls := 0
	srv := newServer(t, &calls)
	defer srv.Close()

	env, _ := providertest.Env(t, Meta, map[string]any{"accessToken": "secret"})
	acc := providertest.Account(t, env, accountRef, "Main", "GBP")
	a := New(env, WithBaseURL(srv.URL), WithClock(func() time.Time {
		return time.Date(2020, 1, 10, 0, 0, 0, 0, time.UTC)
	}))

	txs, err := a.DownloadTransactions(context.Background(), acc, civil.Date{})
	require.NoError(t, err)
	assert.Equal(t, 4, calls, "paging should stop once the oldest transaction repeats")

	require.Len(t, txs, 2)
	assert.Equal(t, "l1", txs[0].ExternalRef)
	assert.Equal(t, int64(-1250), txs[0].Amount)
	assert.Equal(t, civil.Date{Year: 2020, Month: 1, Day: 4}, txs[0].Date)
	assert.False(t, txs[0].IsTransfer)

	assert.Equal(t, "l3b", txs[1].ExternalRef)
	assert.Equal(t, int64(861), txs[1].Amount)
	assert.Equal(t, "From EUR", txs[1].Payee)
	assert.True(t, txs[1].IsTransfer)
}

package notion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/providers"
	"github.com/dvloznov/pocketsync/internal/providers/providertest"
)

// fakeNotion keeps pages in memory and returns them through a JSON round
// trip, the way the SDK decodes API responses.
type fakeNotion struct {
	t        *testing.T
	pages    []notionapi.Page
	queries  []notionapi.DatabaseQueryRequest
	failOn   int
	creates  int
	pageSize int
}

func (f *fakeNotion) RetrieveDatabase(ctx context.Context, databaseID string) (*notionapi.Database, error) {
	return &notionapi.Database{
		ID:    notionapi.ObjectID(databaseID),
		Title: richText("Household"),
	}, nil
}

func (f *fakeNotion) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	f.creates++
	if f.failOn > 0 && f.creates == f.failOn {
		return nil, errors.New("rate limited")
	}
	page := notionapi.Page{
		ID:         notionapi.ObjectID(fmt.Sprintf("page-%d", len(f.pages)+1)),
		Properties: properties,
	}
	f.pages = append(f.pages, page)
	return &page, nil
}

func (f *fakeNotion) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	f.queries = append(f.queries, *req)

	all := f.pages
	if len(req.Sorts) > 0 {
		// Stored newest last.
		all = make([]notionapi.Page, 0, len(f.pages))
		for i := len(f.pages) - 1; i >= 0; i-- {
			all = append(all, f.pages[i])
		}
	}

	size := req.PageSize
	if f.pageSize > 0 && f.pageSize < size {
		size = f.pageSize
	}
	start := 0
	if req.StartCursor != "" {
		_, err := fmt.Sscanf(string(req.StartCursor), "c%d", &start)
		require.NoError(f.t, err)
	}
	end := min(start+size, len(all))

	resp := notionapi.DatabaseQueryResponse{
		Results: roundTrip(f.t, all[start:end]),
		HasMore: end < len(all),
	}
	if resp.HasMore {
		resp.NextCursor = notionapi.Cursor(fmt.Sprintf("c%d", end))
	}
	return &resp, nil
}

func roundTrip(t *testing.T, pages []notionapi.Page) []notionapi.Page {
	t.Helper()
	b, err := json.Marshal(pages)
	require.NoError(t, err)
	var out []notionapi.Page
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func newAdapter(t *testing.T, fake *fakeNotion) (*Adapter, providers.Env) {
	env, _ := providertest.Env(t, Meta, map[string]any{"token": "secret", "databaseId": "db1", "currency": "eur"})
	return New(env, WithService(fake)), env
}

var origin = providers.Origin{ProviderCode: "REVBIZ", AccountRef: "acc-1", Currency: "EUR"}

func TestFetchAccounts_DatabaseIsTheAccount(t *testing.T) {
	a, _ := newAdapter(t, &fakeNotion{t: t})

	accounts, err := a.FetchAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "db1", accounts[0].ExternalRef)
	assert.Equal(t, "Household", accounts[0].Name)
	assert.Equal(t, "EUR", accounts[0].Currency)
	assert.NotZero(t, accounts[0].ID)
}

func TestFetchAccounts_MissingToken(t *testing.T) {
	env, _ := providertest.Env(t, Meta, map[string]any{"databaseId": "db1"})
	_, err := New(env, WithService(&fakeNotion{t: t})).FetchAccounts(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfig))
}

func TestUploadThenDownload(t *testing.T) {
	fake := &fakeNotion{t: t, pageSize: 1}
	a, env := newAdapter(t, fake)
	ctx := context.Background()
	acc := providertest.Account(t, env, "db1", "Household", "EUR")

	txs := []*domain.Transaction{
		{ExternalRef: "l1", Payee: "Coffee", Amount: -450, Date: civil.Date{Year: 2024, Month: time.March, Day: 1}},
		{ExternalRef: "l2", Payee: "Salary", Amount: 250000, Date: civil.Date{Year: 2024, Month: time.March, Day: 2},
			Attachments: []domain.Attachment{{URL: "https://files.example/payslip.pdf?sig=1", Filename: "payslip.pdf"}}},
	}

	var acked []string
	for tx, err := range a.UploadTransactions(ctx, providers.UploadRequest{Account: acc, Origin: origin, Transactions: txs}) {
		require.NoError(t, err)
		acked = append(acked, tx.ExternalRef)
	}
	assert.Equal(t, []string{"l1", "l2"}, acked)
	require.Len(t, fake.pages, 2)

	got := pageToRow(roundTrip(t, fake.pages[:1])[0])
	assert.Equal(t, "Coffee", got.Payee)
	assert.Equal(t, -4.5, got.Amount)
	assert.Equal(t, "EUR", got.Currency)
	assert.Equal(t, "@REVBIZ:acc-1:l1@", got.TransactionID)

	newest, ok, err := a.NewestTransactionDate(ctx, acc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.March, Day: 2}, newest)

	downloaded, err := a.DownloadTransactions(ctx, acc, civil.Date{})
	require.NoError(t, err)
	require.Len(t, downloaded, 2)
	assert.Equal(t, "page-1", downloaded[0].ExternalRef)
	assert.Equal(t, int64(-450), downloaded[0].Amount)
	assert.Equal(t, int64(250000), downloaded[1].Amount)
	require.Len(t, downloaded[1].Attachments, 1)
	assert.Equal(t, "payslip.pdf", downloaded[1].Attachments[0].Filename)
}

func TestDownloadTransactions_FiltersByDate(t *testing.T) {
	fake := &fakeNotion{t: t}
	a, env := newAdapter(t, fake)
	acc := providertest.Account(t, env, "db1", "Household", "EUR")

	_, err := a.DownloadTransactions(context.Background(), acc, civil.Date{Year: 2024, Month: time.January, Day: 5})
	require.NoError(t, err)
	require.Len(t, fake.queries, 1)
	f, ok := fake.queries[0].Filter.(notionapi.PropertyFilter)
	require.True(t, ok)
	assert.Equal(t, propDate, f.Property)
	require.NotNil(t, f.Date.OnOrAfter)
	assert.Equal(t, "2024-01-05", time.Time(*f.Date.OnOrAfter).Format(time.DateOnly))
}

func TestUploadTransactions_StopsOnFailure(t *testing.T) {
	fake := &fakeNotion{t: t, failOn: 2}
	a, env := newAdapter(t, fake)
	acc := providertest.Account(t, env, "db1", "Household", "EUR")

	txs := []*domain.Transaction{
		{ExternalRef: "a", Payee: "A", Amount: -1, Date: civil.Date{Year: 2024, Month: time.May, Day: 1}},
		{ExternalRef: "b", Payee: "B", Amount: -2, Date: civil.Date{Year: 2024, Month: time.May, Day: 2}},
		{ExternalRef: "c", Payee: "C", Amount: -3, Date: civil.Date{Year: 2024, Month: time.May, Day: 3}},
	}

	var (
		acked []string
		errs  []error
	)
	for tx, err := range a.UploadTransactions(context.Background(), providers.UploadRequest{Account: acc, Origin: origin, Transactions: txs}) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		acked = append(acked, tx.ExternalRef)
	}
	assert.Equal(t, []string{"a"}, acked)
	require.Len(t, errs, 1)
	assert.True(t, apperr.Is(errs[0], apperr.KindTransport))
	assert.Equal(t, 2, fake.creates)
}

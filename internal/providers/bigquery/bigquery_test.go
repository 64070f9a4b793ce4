package bigquery

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gbq "cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/gcsuploader"
	bq "github.com/dvloznov/pocketsync/internal/infra/bigquery"
	"github.com/dvloznov/pocketsync/internal/providers"
	"github.com/dvloznov/pocketsync/internal/providers/providertest"
)

type fakeWarehouse struct {
	accounts []*bq.AccountRow
	rows     []*bq.TransactionRow
	// hidden refs are inserted but never read back.
	hidden    map[string]bool
	insertErr error
	inserts   int
}

func (f *fakeWarehouse) ListOpenAccounts(ctx context.Context) ([]*bq.AccountRow, error) {
	return f.accounts, nil
}

func (f *fakeWarehouse) InsertTransactions(ctx context.Context, rows []*bq.TransactionRow) error {
	f.inserts++
	if f.insertErr != nil {
		return f.insertErr
	}
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeWarehouse) ConfirmedReferences(ctx context.Context, accountID string, refs []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, r := range f.rows {
		ref := r.ExternalReference.StringVal
		if r.AccountID == accountID && !f.hidden[ref] {
			out[ref] = true
		}
	}
	return out, nil
}

func (f *fakeWarehouse) QueryTransactionsSince(ctx context.Context, accountID string, from civil.Date) ([]*bq.TransactionRow, error) {
	var out []*bq.TransactionRow
	for _, r := range f.rows {
		if r.AccountID == accountID && !r.TransactionDate.Before(from) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeWarehouse) NewestTransactionDate(ctx context.Context, accountID string) (civil.Date, bool, error) {
	var (
		newest civil.Date
		found  bool
	)
	for _, r := range f.rows {
		if r.AccountID == accountID && (!found || r.TransactionDate.After(newest)) {
			newest, found = r.TransactionDate, true
		}
	}
	return newest, found, nil
}

func (f *fakeWarehouse) Close() error { return nil }

type fakeStorage struct {
	objects map[string][]byte
}

func (s *fakeStorage) UploadObject(ctx context.Context, bucketName, objectName string, data []byte, contentType string) (string, error) {
	s.objects[bucketName+"/"+objectName] = data
	return gcsuploader.GCSURI(bucketName, objectName), nil
}

func (s *fakeStorage) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	bucket, object, err := gcsuploader.ParseGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}
	data, ok := s.objects[bucket+"/"+object]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

var origin = providers.Origin{ProviderCode: "POCKSM", AccountRef: "5", Currency: "GBP"}

func day(d int) civil.Date { return civil.Date{Year: 2024, Month: time.June, Day: d} }

func TestFetchAccounts(t *testing.T) {
	w := &fakeWarehouse{accounts: []*bq.AccountRow{
		{AccountID: "acc-1", AccountName: "Joint", Currency: "gbp"},
		{AccountID: "acc-2", Currency: "EUR"},
		{AccountID: "acc-3", AccountName: "No currency"},
	}}
	env, logs := providertest.Env(t, Meta, nil)
	accounts, err := New(env, WithWarehouse(w)).FetchAccounts(context.Background())
	require.NoError(t, err)

	require.Len(t, accounts, 2)
	assert.Equal(t, "Joint", accounts[0].Name)
	assert.Equal(t, "GBP", accounts[0].Currency)
	assert.Equal(t, "acc-2", accounts[1].Name)
	assert.Contains(t, logs.String(), "Skipping raw record")
}

func TestUpload_MirrorsAttachmentsAndAcksReadBack(t *testing.T) {
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF"))
	}))
	defer files.Close()

	w := &fakeWarehouse{hidden: map[string]bool{"@POCKSM:5:c@": true}}
	storage := &fakeStorage{objects: map[string][]byte{}}
	env, _ := providertest.Env(t, Meta, map[string]any{"bucket": "receipts"})
	a := New(env, WithWarehouse(w), WithStorage(storage))
	acc := providertest.Account(t, env, "acc-1", "Joint", "GBP")

	txs := []*domain.Transaction{
		{ExternalRef: "a", Payee: "Shop", Amount: -1234, Date: day(1),
			Attachments: []domain.Attachment{{URL: files.URL + "/r.pdf", Filename: "r.pdf"}}},
		{ExternalRef: "b", Payee: "Savings", Amount: 5000, Date: day(2), IsTransfer: true},
		{ExternalRef: "c", Payee: "Late", Amount: -1, Date: day(3)},
	}

	var acked []string
	for tx, err := range a.UploadTransactions(context.Background(), providers.UploadRequest{Account: acc, Origin: origin, Transactions: txs}) {
		require.NoError(t, err)
		acked = append(acked, tx.ExternalRef)
	}
	assert.Equal(t, []string{"a", "b"}, acked)

	require.Len(t, w.rows, 3)
	first := w.rows[0]
	assert.Equal(t, "@POCKSM:5:a@", first.ExternalReference.StringVal)
	assert.Equal(t, 0, first.Amount.Cmp(big.NewRat(-1234, 100)))
	assert.Equal(t, "GBP", first.Currency)
	assert.JSONEq(t, `{"attachments":[{"url":"gs://receipts/attachments/acc-1/a/r.pdf","filename":"r.pdf","content_type":"application/pdf"}]}`, first.Extra.JSONVal)
	assert.Equal(t, []byte("%PDF"), storage.objects["receipts/attachments/acc-1/a/r.pdf"])
	assert.True(t, w.rows[1].IsInternalTransfer.Bool)
	assert.NotEqual(t, w.rows[0].TransactionID, w.rows[1].TransactionID)
}

func TestUpload_CopiesGCSAttachments(t *testing.T) {
	w := &fakeWarehouse{}
	storage := &fakeStorage{objects: map[string][]byte{"scans/2024/june.pdf": []byte("%PDF-scan")}}
	env, _ := providertest.Env(t, Meta, map[string]any{"bucket": "receipts"})
	a := New(env, WithWarehouse(w), WithStorage(storage))
	acc := providertest.Account(t, env, "acc-1", "Joint", "GBP")

	txs := []*domain.Transaction{{
		ExternalRef: "a", Payee: "Shop", Amount: -100, Date: day(1),
		Attachments: []domain.Attachment{
			{URL: "gs://scans/2024/june.pdf"},
			{URL: "gs://receipts/attachments/acc-1/a/kept.pdf", Filename: "kept.pdf"},
			{URL: "gs://scans/missing.pdf", Filename: "missing.pdf"},
		},
	}}
	for _, err := range a.UploadTransactions(context.Background(), providers.UploadRequest{Account: acc, Origin: origin, Transactions: txs}) {
		require.NoError(t, err)
	}

	require.Len(t, w.rows, 1)
	assert.JSONEq(t, `{"attachments":[
		{"url":"gs://receipts/attachments/acc-1/a/june.pdf","filename":"june.pdf"},
		{"url":"gs://receipts/attachments/acc-1/a/kept.pdf","filename":"kept.pdf"},
		{"url":"gs://scans/missing.pdf","filename":"missing.pdf"}
	]}`, w.rows[0].Extra.JSONVal)
	assert.Equal(t, []byte("%PDF-scan"), storage.objects["receipts/attachments/acc-1/a/june.pdf"])
}

func TestUpload_InsertFailureYieldsError(t *testing.T) {
	w := &fakeWarehouse{insertErr: errors.New("quota exceeded")}
	env, _ := providertest.Env(t, Meta, nil)
	a := New(env, WithWarehouse(w))
	acc := providertest.Account(t, env, "acc-1", "Joint", "GBP")

	var errs []error
	for tx, err := range a.UploadTransactions(context.Background(), providers.UploadRequest{
		Account:      acc,
		Origin:       origin,
		Transactions: []*domain.Transaction{{ExternalRef: "a", Payee: "x", Amount: 1, Date: day(1)}},
	}) {
		assert.Nil(t, tx)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.True(t, apperr.Is(errs[0], apperr.KindTransport))
}

func TestDownloadAndNewest(t *testing.T) {
	w := &fakeWarehouse{rows: []*bq.TransactionRow{
		{TransactionID: "t1", AccountID: "acc-1", TransactionDate: day(1), Amount: big.NewRat(-45, 10), Currency: "GBP", RawDescription: "Coffee"},
		{TransactionID: "t2", AccountID: "acc-1", TransactionDate: day(9), Amount: big.NewRat(100, 1), Currency: "GBP", RawDescription: "Refund",
			IsInternalTransfer: gbq.NullBool{Bool: true, Valid: true},
			Extra:              gbq.NullJSON{JSONVal: `{"attachments":[{"url":"gs://b/o.pdf","filename":"o.pdf"}]}`, Valid: true}},
		{TransactionID: "t3", AccountID: "acc-2", TransactionDate: day(20), Amount: big.NewRat(1, 1), Currency: "GBP"},
	}}
	env, _ := providertest.Env(t, Meta, nil)
	a := New(env, WithWarehouse(w))
	acc := providertest.Account(t, env, "acc-1", "Joint", "GBP")
	ctx := context.Background()

	newest, ok, err := a.NewestTransactionDate(ctx, acc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day(9), newest)

	txs, err := a.DownloadTransactions(ctx, acc, day(2))
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "t2", txs[0].ExternalRef)
	assert.Equal(t, int64(10000), txs[0].Amount)
	assert.True(t, txs[0].IsTransfer)
	require.Len(t, txs[0].Attachments, 1)

	all, err := a.DownloadTransactions(ctx, acc, civil.Date{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(-450), all[0].Amount)
}

func TestConnect_RequiresProject(t *testing.T) {
	env, _ := providertest.Env(t, Meta, nil)
	_, err := New(env).FetchAccounts(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfig))
}

package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/currency"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/gcsuploader"
	bq "github.com/dvloznov/pocketsync/internal/infra/bigquery"
	"github.com/dvloznov/pocketsync/internal/ingest"
	"github.com/dvloznov/pocketsync/internal/providers"
)

// extra is the JSON held in the extra column.
type extra struct {
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

var transactionSchema = ingest.MustCompileSchema("bigquery_transaction", []byte(`{
	"type": "object",
	"required": ["transaction_id", "transaction_date", "amount", "currency", "raw_description"],
	"properties": {
		"transaction_id": {"type": "string", "minLength": 1},
		"transaction_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
		"amount": {"type": "string", "pattern": "^-?\\d+(\\.\\d+)?$"},
		"currency": {"type": "string", "minLength": 3},
		"raw_description": {"type": "string"},
		"is_internal_transfer": {"type": "boolean"},
		"attachments": {"type": "array"}
	}
}`))

// transactionPayload is the raw record form of a warehouse row.
type transactionPayload struct {
	TransactionID      string              `json:"transaction_id"`
	TransactionDate    string              `json:"transaction_date"`
	Amount             string              `json:"amount"`
	Currency           string              `json:"currency"`
	RawDescription     string              `json:"raw_description"`
	IsInternalTransfer bool                `json:"is_internal_transfer"`
	ExternalReference  string              `json:"external_reference,omitempty"`
	Attachments        []domain.Attachment `json:"attachments,omitempty"`
}

func toPayload(r *bq.TransactionRow) transactionPayload {
	p := transactionPayload{
		TransactionID:      r.TransactionID,
		TransactionDate:    r.TransactionDate.String(),
		Currency:           r.Currency,
		RawDescription:     r.RawDescription,
		IsInternalTransfer: r.IsInternalTransfer.Valid && r.IsInternalTransfer.Bool,
		ExternalReference:  r.ExternalReference.StringVal,
	}
	if r.Amount != nil {
		p.Amount = r.Amount.FloatString(int(currency.Scale(r.Currency)))
	}
	if r.Extra.Valid {
		var e extra
		if err := json.Unmarshal([]byte(r.Extra.JSONVal), &e); err == nil {
			p.Attachments = e.Attachments
		}
	}
	return p
}

// DownloadTransactions implements the providers.TransactionDownloader interface.
func (a *Adapter) DownloadTransactions(ctx context.Context, account *domain.Account, from civil.Date) ([]*domain.Transaction, error) {
	w, err := a.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("DownloadTransactions: %w", err)
	}
	rows, err := w.QueryTransactionsSince(ctx, account.ExternalRef, from)
	if err != nil {
		return nil, apperr.Transport(err, "DownloadTransactions: %s", account.Name)
	}

	items := make([]ingest.Item, 0, len(rows))
	for _, r := range rows {
		payload, err := json.Marshal(toPayload(r))
		if err != nil {
			return nil, fmt.Errorf("DownloadTransactions: encoding row %s: %w", r.TransactionID, err)
		}
		items = append(items, ingest.Item{Ref: r.TransactionID, Payload: payload})
	}

	txs, err := ingest.Process(ctx, a.env.Sink(), domain.RecordTransaction, ingest.SinglePage(items), transactionSchema,
		func(ctx context.Context, rec domain.RawRecord) (*domain.Transaction, bool, error) {
			var p transactionPayload
			if err := json.Unmarshal(rec.Payload, &p); err != nil {
				return nil, false, apperr.Validation(err, "decoding row")
			}
			date, err := civil.ParseDate(p.TransactionDate)
			if err != nil {
				return nil, false, apperr.Validation(err, "transaction_date")
			}
			amount, err := currency.ParseToLowestUnit(p.Amount, p.Currency)
			if err != nil {
				return nil, false, apperr.Validation(err, "amount")
			}
			return &domain.Transaction{
				AccountID:   account.ID,
				ExternalRef: rec.ExternalRef,
				Payee:       p.RawDescription,
				Amount:      amount,
				Date:        date,
				IsTransfer:  p.IsInternalTransfer,
				Attachments: p.Attachments,
			}, true, nil
		})
	if err != nil {
		return nil, fmt.Errorf("DownloadTransactions: %s: %w", account.Name, err)
	}
	return txs, nil
}

// NewestTransactionDate implements the providers.Target interface.
func (a *Adapter) NewestTransactionDate(ctx context.Context, account *domain.Account) (civil.Date, bool, error) {
	w, err := a.connect(ctx)
	if err != nil {
		return civil.Date{}, false, fmt.Errorf("NewestTransactionDate: %w", err)
	}
	d, ok, err := w.NewestTransactionDate(ctx, account.ExternalRef)
	if err != nil {
		return civil.Date{}, false, apperr.Transport(err, "NewestTransactionDate")
	}
	return d, ok, nil
}

// UploadTransactions implements the providers.Target interface. Rows are
// streamed in batches of BatchSize; after each batch only the rows whose
// external reference reads back are yielded.
func (a *Adapter) UploadTransactions(ctx context.Context, req providers.UploadRequest) iter.Seq2[*domain.Transaction, error] {
	return func(yield func(*domain.Transaction, error) bool) {
		w, err := a.connect(ctx)
		if err != nil {
			yield(nil, fmt.Errorf("UploadTransactions: %w", err))
			return
		}
		bucket, storage, err := a.attachmentStore(ctx)
		if err != nil {
			yield(nil, fmt.Errorf("UploadTransactions: %w", err))
			return
		}

		log := a.env.Log
		var unconfirmed int
		for start := 0; start < len(req.Transactions); start += BatchSize {
			batch := req.Transactions[start:min(start+BatchSize, len(req.Transactions))]

			rows := make([]*bq.TransactionRow, 0, len(batch))
			tokens := make([]string, 0, len(batch))
			for _, t := range batch {
				files := t.Attachments
				if bucket != "" {
					files = a.mirrorAttachments(ctx, storage, bucket, req.Account, t)
				}
				row, err := a.toRow(req, t, files)
				if err != nil {
					yield(nil, fmt.Errorf("UploadTransactions: %w", err))
					return
				}
				rows = append(rows, row)
				tokens = append(tokens, row.ExternalReference.StringVal)
			}

			if err := w.InsertTransactions(ctx, rows); err != nil {
				yield(nil, apperr.Transport(err, "UploadTransactions: inserting batch at %d", start))
				return
			}
			confirmed, err := w.ConfirmedReferences(ctx, req.Account.ExternalRef, tokens)
			if err != nil {
				yield(nil, apperr.Transport(err, "UploadTransactions: reading back batch at %d", start))
				return
			}

			for i, t := range batch {
				if !confirmed[tokens[i]] {
					unconfirmed++
					continue
				}
				if !yield(t, nil) {
					return
				}
			}
		}

		if unconfirmed > 0 {
			log.Warn().
				Int("unconfirmed", unconfirmed).
				Str("account", req.Account.Name).
				Msg("Inserted rows not visible on read-back; they stay pending")
		}
	}
}

func (a *Adapter) toRow(req providers.UploadRequest, t *domain.Transaction, files []domain.Attachment) (*bq.TransactionRow, error) {
	code := req.Origin.Currency
	if code == "" {
		code = req.Account.Currency
	}
	token := req.Origin.Token(t.ExternalRef)

	row := &bq.TransactionRow{
		TransactionID:      uuid.NewSHA1(uuid.NameSpaceURL, []byte(token)).String(),
		AccountID:          req.Account.ExternalRef,
		TransactionDate:    t.Date,
		Amount:             currency.Decimal(t.Amount, code).Rat(),
		Currency:           code,
		RawDescription:     t.Payee,
		IsInternalTransfer: bigquery.NullBool{Bool: t.IsTransfer, Valid: true},
		ExternalReference:  bigquery.NullString{StringVal: token, Valid: true},
		CreatedTS:          time.Now().UTC(),
	}
	if len(files) > 0 {
		b, err := json.Marshal(extra{Attachments: files})
		if err != nil {
			return nil, fmt.Errorf("encoding extra for %s: %w", t.ExternalRef, err)
		}
		row.Extra = bigquery.NullJSON{JSONVal: string(b), Valid: true}
	}
	return row, nil
}

// mirrorAttachments copies each attachment into the bucket and returns the
// list with gs:// URLs. Attachments that cannot be copied keep their source
// URL.
func (a *Adapter) mirrorAttachments(ctx context.Context, storage gcsuploader.StorageService, bucket string, account *domain.Account, t *domain.Transaction) []domain.Attachment {
	if len(t.Attachments) == 0 {
		return nil
	}
	log := a.env.Log
	out := make([]domain.Attachment, 0, len(t.Attachments))
	for _, at := range t.Attachments {
		if b, _, err := gcsuploader.ParseGCSURI(at.URL); err == nil && b == bucket {
			out = append(out, at)
			continue
		}
		if at.Filename == "" && strings.HasPrefix(at.URL, "gs://") {
			at.Filename = gcsuploader.ExtractFilenameFromGCSURI(at.URL)
		}
		data, contentType, err := a.fetchAttachment(ctx, storage, at.URL)
		if err != nil {
			log.Warn().Err(err).Str("external_ref", t.ExternalRef).Str("filename", at.Filename).Msg("Failed to download attachment")
			out = append(out, at)
			continue
		}
		if at.ContentType != "" {
			contentType = at.ContentType
		}
		object := gcsuploader.AttachmentObjectName(account.ExternalRef, t.ExternalRef, at.Filename)
		uri, err := storage.UploadObject(ctx, bucket, object, data, contentType)
		if err != nil {
			log.Warn().Err(err).Str("external_ref", t.ExternalRef).Str("object", object).Msg("Failed to mirror attachment")
			out = append(out, at)
			continue
		}
		mirrored := at
		mirrored.URL = uri
		mirrored.ContentType = contentType
		out = append(out, mirrored)
	}
	return out
}

// fetchAttachment reads gs:// URLs through storage and anything else over
// HTTP.
func (a *Adapter) fetchAttachment(ctx context.Context, storage gcsuploader.StorageService, url string) ([]byte, string, error) {
	if strings.HasPrefix(url, "gs://") {
		data, err := storage.FetchFromGCS(ctx, url)
		return data, "", err
	}
	return providers.Download(ctx, a.env.HTTPClient(), url)
}

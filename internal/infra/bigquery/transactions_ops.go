package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
)

const transactionColumns = `
			transaction_id,
			account_id,
			transaction_date,
			amount,
			currency,
			raw_description,
			is_internal_transfer,
			external_reference,
			created_ts,
			extra`

// InsertTransactionsWithClient streams rows into the transactions table.
// Each row carries its external reference as insert ID so a retried batch is
// deduplicated by BigQuery.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, t Tables, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	savers := make([]*bigquery.StructSaver, 0, len(rows))
	for _, r := range rows {
		savers = append(savers, &bigquery.StructSaver{Struct: r, InsertID: r.ExternalReference.StringVal})
	}

	inserter := client.DatasetInProject(t.Project, t.Dataset).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, savers); err != nil {
		return fmt.Errorf("InsertTransactionsWithClient: inserting rows: %w", err)
	}

	return nil
}

// ConfirmedReferencesWithClient returns which refs are present in the
// account's rows.
func ConfirmedReferencesWithClient(ctx context.Context, client *bigquery.Client, t Tables, accountID string, refs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(refs))
	if len(refs) == 0 {
		return out, nil
	}

	q := client.Query(fmt.Sprintf(`
		SELECT DISTINCT external_reference
		FROM `+"`%s`"+`
		WHERE account_id = @account_id
		  AND external_reference IN UNNEST(@refs)
	`, t.Transactions()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
		{Name: "refs", Value: refs},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ConfirmedReferencesWithClient: query read: %w", err)
	}
	for {
		var r struct {
			ExternalReference bigquery.NullString `bigquery:"external_reference"`
		}
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ConfirmedReferencesWithClient: iter next: %w", err)
		}
		if r.ExternalReference.Valid {
			out[r.ExternalReference.StringVal] = true
		}
	}
	return out, nil
}

// QueryTransactionsSinceWithClient returns the account's rows dated on or
// after from. A zero from returns every row.
func QueryTransactionsSinceWithClient(ctx context.Context, client *bigquery.Client, t Tables, accountID string, from civil.Date) ([]*TransactionRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT%s
		FROM `+"`%s`"+`
		WHERE account_id = @account_id
		  AND transaction_date >= @start_date
		ORDER BY transaction_date, created_ts
	`, transactionColumns, t.Transactions()))
	start := from
	if start.IsZero() {
		start = civil.Date{Year: 1970, Month: 1, Day: 1}
	}
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
		{Name: "start_date", Value: start},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsSinceWithClient: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryTransactionsSinceWithClient: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

// NewestTransactionDateWithClient returns the latest transaction_date of the
// account, or ok=false when it has no rows.
func NewestTransactionDateWithClient(ctx context.Context, client *bigquery.Client, t Tables, accountID string) (civil.Date, bool, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT MAX(transaction_date) AS newest
		FROM `+"`%s`"+`
		WHERE account_id = @account_id
	`, t.Transactions()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return civil.Date{}, false, fmt.Errorf("NewestTransactionDateWithClient: query read: %w", err)
	}
	var r struct {
		Newest bigquery.NullDate `bigquery:"newest"`
	}
	if err := it.Next(&r); err != nil && err != iterator.Done {
		return civil.Date{}, false, fmt.Errorf("NewestTransactionDateWithClient: iter next: %w", err)
	}
	return r.Newest.Date, r.Newest.Valid, nil
}

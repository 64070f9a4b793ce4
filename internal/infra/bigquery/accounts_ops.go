package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// ListOpenAccountsWithClient retrieves every account without a closed date.
func ListOpenAccountsWithClient(ctx context.Context, client *bigquery.Client, t Tables) ([]*AccountRow, error) {
	query := fmt.Sprintf(`
		SELECT
			account_id,
			account_name,
			currency,
			closed_date,
			created_ts
		FROM `+"`%s`"+`
		WHERE closed_date IS NULL
		ORDER BY created_ts DESC
	`, t.Accounts())

	it, err := client.Query(query).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListOpenAccountsWithClient: reading query: %w", err)
	}

	var accounts []*AccountRow
	for {
		var row AccountRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListOpenAccountsWithClient: iterating: %w", err)
		}
		accounts = append(accounts, &row)
	}

	return accounts, nil
}

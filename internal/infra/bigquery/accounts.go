package bigquery

import "cloud.google.com/go/bigquery"

// AccountRow is a row of the accounts table. Each row is exposed as one
// target account.
type AccountRow struct {
	AccountID   string `bigquery:"account_id"`   // REQUIRED
	AccountName string `bigquery:"account_name"` // NULLABLE
	Currency    string `bigquery:"currency"`     // NULLABLE

	ClosedDate bigquery.NullDate      `bigquery:"closed_date"` // DATE, NULLABLE
	CreatedTS  bigquery.NullTimestamp `bigquery:"created_ts"`  // TIMESTAMP, NULLABLE
}

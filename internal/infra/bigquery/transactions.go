package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// TransactionRow is a row of the transactions table.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	AccountID     string `bigquery:"account_id"`     // NULLABLE

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED in schema

	Amount   *big.Rat `bigquery:"amount"`   // REQUIRED NUMERIC
	Currency string   `bigquery:"currency"` // REQUIRED STRING

	RawDescription string `bigquery:"raw_description"` // REQUIRED STRING

	IsInternalTransfer bigquery.NullBool `bigquery:"is_internal_transfer"`

	// ExternalReference carries the correlation token of the source
	// transaction. Uploads are confirmed by reading it back.
	ExternalReference bigquery.NullString `bigquery:"external_reference"` // NULLABLE

	CreatedTS time.Time         `bigquery:"created_ts"` // REQUIRED (default CURRENT_TIMESTAMP)
	Extra     bigquery.NullJSON `bigquery:"extra"`      // NULLABLE JSON
}

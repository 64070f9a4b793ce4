// Package bigquery is the warehouse layer: typed rows and queries over the
// accounts and transactions tables of one dataset.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

const (
	accountsTable     = "accounts"
	transactionsTable = "transactions"
)

// Tables names the dataset the warehouse reads and writes.
type Tables struct {
	Project string
	Dataset string
}

// Accounts returns the fully qualified accounts table name.
func (t Tables) Accounts() string {
	return fmt.Sprintf("%s.%s.%s", t.Project, t.Dataset, accountsTable)
}

// Transactions returns the fully qualified transactions table name.
func (t Tables) Transactions() string {
	return fmt.Sprintf("%s.%s.%s", t.Project, t.Dataset, transactionsTable)
}

// Warehouse defines the operations the BigQuery provider needs.
// This interface enables mocking and testing of warehouse operations.
type Warehouse interface {
	ListOpenAccounts(ctx context.Context) ([]*AccountRow, error)
	InsertTransactions(ctx context.Context, rows []*TransactionRow) error
	ConfirmedReferences(ctx context.Context, accountID string, refs []string) (map[string]bool, error)
	QueryTransactionsSince(ctx context.Context, accountID string, from civil.Date) ([]*TransactionRow, error)
	NewestTransactionDate(ctx context.Context, accountID string) (civil.Date, bool, error)
	Close() error
}

// BigQueryWarehouse is the concrete implementation of Warehouse. It holds a
// shared BigQuery client to avoid creating a new connection for each
// operation.
type BigQueryWarehouse struct {
	client *bigquery.Client
	tables Tables
}

var _ Warehouse = (*BigQueryWarehouse)(nil)

// NewBigQueryWarehouse creates a new instance of BigQueryWarehouse with a
// shared BigQuery client.
func NewBigQueryWarehouse(ctx context.Context, t Tables) (*BigQueryWarehouse, error) {
	client, err := bigquery.NewClient(ctx, t.Project)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryWarehouse: creating client: %w", err)
	}
	return &BigQueryWarehouse{
		client: client,
		tables: t,
	}, nil
}

// Close closes the BigQuery client connection.
func (w *BigQueryWarehouse) Close() error {
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}

// ListOpenAccounts delegates to ListOpenAccountsWithClient with the shared client.
func (w *BigQueryWarehouse) ListOpenAccounts(ctx context.Context) ([]*AccountRow, error) {
	return ListOpenAccountsWithClient(ctx, w.client, w.tables)
}

// InsertTransactions delegates to InsertTransactionsWithClient with the shared client.
func (w *BigQueryWarehouse) InsertTransactions(ctx context.Context, rows []*TransactionRow) error {
	return InsertTransactionsWithClient(ctx, w.client, w.tables, rows)
}

// ConfirmedReferences delegates to ConfirmedReferencesWithClient with the shared client.
func (w *BigQueryWarehouse) ConfirmedReferences(ctx context.Context, accountID string, refs []string) (map[string]bool, error) {
	return ConfirmedReferencesWithClient(ctx, w.client, w.tables, accountID, refs)
}

// QueryTransactionsSince delegates to QueryTransactionsSinceWithClient with the shared client.
func (w *BigQueryWarehouse) QueryTransactionsSince(ctx context.Context, accountID string, from civil.Date) ([]*TransactionRow, error) {
	return QueryTransactionsSinceWithClient(ctx, w.client, w.tables, accountID, from)
}

// NewestTransactionDate delegates to NewestTransactionDateWithClient with the shared client.
func (w *BigQueryWarehouse) NewestTransactionDate(ctx context.Context, accountID string) (civil.Date, bool, error) {
	return NewestTransactionDateWithClient(ctx, w.client, w.tables, accountID)
}

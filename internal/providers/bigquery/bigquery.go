// Package bigquery uploads transactions into a BigQuery warehouse and mirrors
// their attachments into Cloud Storage.
package bigquery

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/gcsuploader"
	bq "github.com/dvloznov/pocketsync/internal/infra/bigquery"
	"github.com/dvloznov/pocketsync/internal/providers"
)

const (
	// Name is the registered provider name.
	Name = "BigQuery"
	// Code prefixes correlation tokens for transactions read from BigQuery.
	Code = "BIGQRY"

	// BatchSize bounds rows per streaming insert.
	BatchSize = 100
)

// Meta is the registration row for this provider.
var Meta = providers.Meta{Name: Name, Code: Code, IsTarget: true}

// Adapter implements providers.Target for a BigQuery dataset.
type Adapter struct {
	env providers.Env

	mu        sync.Mutex
	warehouse bq.Warehouse
	storage   gcsuploader.StorageService
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithWarehouse replaces the BigQuery-backed warehouse.
func WithWarehouse(w bq.Warehouse) Option {
	return func(a *Adapter) { a.warehouse = w }
}

// WithStorage replaces the Cloud Storage client used for attachments.
func WithStorage(s gcsuploader.StorageService) Option {
	return func(a *Adapter) { a.storage = s }
}

// New creates an Adapter. Clients are created on first use from the
// project, dataset and bucket config keys, falling back to the process
// config.
func New(env providers.Env, opts ...Option) *Adapter {
	a := &Adapter{env: env}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ providers.Target = (*Adapter)(nil)

func (a *Adapter) setting(ctx context.Context, key, fallback string) (string, error) {
	v, err := a.env.Config.String(ctx, key)
	if err != nil {
		return "", err
	}
	if v == "" {
		v = fallback
	}
	return v, nil
}

func (a *Adapter) connect(ctx context.Context) (bq.Warehouse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.warehouse != nil {
		return a.warehouse, nil
	}

	project, err := a.setting(ctx, "project", a.env.App.BigQueryProject)
	if err != nil {
		return nil, err
	}
	dataset, err := a.setting(ctx, "dataset", a.env.App.BigQueryDataset)
	if err != nil {
		return nil, err
	}
	if project == "" {
		return nil, apperr.Config("%s: missing %q config. Set it with `pocketsync config %s -set project=...`", Name, "project", Name)
	}

	w, err := bq.NewBigQueryWarehouse(ctx, bq.Tables{Project: project, Dataset: dataset})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	a.warehouse = w
	return w, nil
}

// attachmentStore returns the bucket and storage client, or an empty bucket
// when attachments are not mirrored.
func (a *Adapter) attachmentStore(ctx context.Context) (string, gcsuploader.StorageService, error) {
	bucket, err := a.setting(ctx, "bucket", a.env.App.AttachmentBucket)
	if err != nil || bucket == "" {
		return "", nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.storage == nil {
		s, err := gcsuploader.NewGCSStorageService(ctx)
		if err != nil {
			return "", nil, err
		}
		a.storage = s
	}
	return bucket, a.storage, nil
}

// Package ingest drives provider pages through the raw record cache and the
// normalizer into canonical records.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/metrics"
	"github.com/dvloznov/pocketsync/internal/store"
)

// Item is one raw provider object and its provider-scoped identifier.
type Item struct {
	Ref     string
	Payload json.RawMessage
}

// Page is one response from a paginated endpoint. Boundary identifies the
// oldest or newest item of the page in the endpoint's natural order; an
// empty Boundary disables the no-progress guard for that page.
type Page struct {
	Items    []Item
	Boundary string
}

// PageFunc returns the next page. It owns its own paging state (page number,
// shrinking `to` date, cursor) and is called until it returns an empty page.
type PageFunc func(ctx context.Context) (Page, error)

// Writer is the store surface ingest writes to.
type Writer interface {
	store.RawRecordStore
	store.EntityStore
}

// Sink is where fetched and normalized data lands.
type Sink struct {
	Store    Writer
	Owner    domain.Owner
	Provider string
	Log      zerolog.Logger
	Metrics  *metrics.Recorder
}

// SinglePage adapts an unpaginated response to a PageFunc.
func SinglePage(items []Item) PageFunc {
	done := false
	return func(context.Context) (Page, error) {
		if done {
			return Page{}, nil
		}
		done = true
		return Page{Items: items}, nil
	}
}

// StoreRaw upserts items into the raw record cache and returns the stored
// records with IDs set. A store failure aborts the batch; records already
// written stay written.
func StoreRaw(ctx context.Context, sink Sink, recordType domain.RecordType, items []Item) ([]domain.RawRecord, Counter, error) {
	var (
		counter Counter
		records = make([]domain.RawRecord, 0, len(items))
	)
	for _, item := range items {
		rec := domain.RawRecord{
			Type:        recordType,
			Owner:       sink.Owner,
			ExternalRef: item.Ref,
			Payload:     item.Payload,
		}
		res, err := sink.Store.UpsertRaw(ctx, rec)
		if err != nil {
			return records, counter, fmt.Errorf("StoreRaw: %s %q: %w", recordType, item.Ref, err)
		}
		rec.ID = res.ID
		records = append(records, rec)
		counter.Add(res)
		sink.Metrics.RecordRaw(string(recordType), res.Outcome.String())
	}
	return records, counter, nil
}

// Fetch drains next until it returns an empty page or a page whose Boundary
// equals the previous page's, persisting each page to the raw cache before
// requesting the next. The result holds each external ref once, in first-seen
// order.
func Fetch(ctx context.Context, sink Sink, recordType domain.RecordType, next PageFunc) ([]domain.RawRecord, error) {
	var (
		total        Counter
		records      []domain.RawRecord
		seen         = make(map[string]int)
		prevBoundary string
		pages        int
	)

	for {
		page, err := next(ctx)
		if err != nil {
			return nil, fmt.Errorf("Fetch: page %d: %w", pages+1, err)
		}
		if len(page.Items) == 0 {
			break
		}
		if pages > 0 && page.Boundary != "" && page.Boundary == prevBoundary {
			sink.Log.Debug().
				Int("page", pages+1).
				Str("boundary", page.Boundary).
				Msg("Page boundary did not advance, stopping")
			break
		}
		pages++
		prevBoundary = page.Boundary

		stored, counter, err := StoreRaw(ctx, sink, recordType, page.Items)
		if err != nil {
			return nil, fmt.Errorf("Fetch: %w", err)
		}
		total.Merge(counter)

		for _, rec := range stored {
			if i, ok := seen[rec.ExternalRef]; ok {
				records[i] = rec
				continue
			}
			seen[rec.ExternalRef] = len(records)
			records = append(records, rec)
		}
	}

	sink.Log.Debug().
		Str("type", string(recordType)).
		Int("pages", pages).
		Int("created", total.Created).
		Int("updated", total.Updated).
		Int("total", total.Total).
		Msg("Raw records stored")

	return records, nil
}

package ingest

import (
	"context"
	"fmt"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/store"
)

// NormalizeFunc maps a validated raw record to a canonical entity. Returning
// ok=false skips the record (not settled, needs review, belongs to another
// account). A Validation error also skips it; any other error is fatal.
type NormalizeFunc[E domain.Entity] func(ctx context.Context, rec domain.RawRecord) (entity E, ok bool, err error)

// Normalize validates each record against schema (when non-nil), maps it with
// fn and upserts the result. Records that fail validation are counted,
// logged and skipped.
func Normalize[E domain.Entity](ctx context.Context, sink Sink, records []domain.RawRecord, schema *Schema, fn NormalizeFunc[E]) ([]E, error) {
	var (
		counter Counter
		skipped int
		out     []E
	)

	for _, rec := range records {
		if schema != nil {
			if err := schema.Validate(rec.Payload); err != nil {
				skipped++
				sink.Metrics.RecordValidationSkip(sink.Provider, string(rec.Type))
				sink.Log.Warn().
					Err(err).
					Int64("raw_record_id", rec.ID).
					Str("external_ref", rec.ExternalRef).
					Msg("Skipping raw record")
				continue
			}
		}

		entity, ok, err := fn(ctx, rec)
		if apperr.Is(err, apperr.KindValidation) {
			skipped++
			sink.Metrics.RecordValidationSkip(sink.Provider, string(rec.Type))
			sink.Log.Warn().
				Err(err).
				Int64("raw_record_id", rec.ID).
				Str("external_ref", rec.ExternalRef).
				Msg("Skipping raw record")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("Normalize: raw record %d: %w", rec.ID, err)
		}
		if !ok {
			continue
		}

		res, err := store.UpsertEntity(ctx, sink.Store, entity)
		if err != nil {
			return nil, fmt.Errorf("Normalize: raw record %d: %w", rec.ID, err)
		}
		counter.Add(res)
		sink.Metrics.RecordNormalized(string(entity.Kind()), res.Outcome.String())
		out = append(out, entity)
	}

	sink.Log.Debug().
		Int("created", counter.Created).
		Int("updated", counter.Updated).
		Int("total", counter.Total).
		Int("skipped", skipped).
		Msg("Records normalized")

	return out, nil
}

// Process runs Fetch then Normalize for one record type.
func Process[E domain.Entity](ctx context.Context, sink Sink, recordType domain.RecordType, next PageFunc, schema *Schema, fn NormalizeFunc[E]) ([]E, error) {
	records, err := Fetch(ctx, sink, recordType, next)
	if err != nil {
		return nil, err
	}
	return Normalize(ctx, sink, records, schema, fn)
}

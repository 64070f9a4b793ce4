// Package metrics records counters for sync runs. A run is a short-lived CLI
// process, so counters live in a private registry and are pushed to a
// Pushgateway at the end instead of being scraped.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Recorder provides observability for the sync engine.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	RawRecords      *prometheus.CounterVec
	Normalized      *prometheus.CounterVec
	ValidationSkips *prometheus.CounterVec
	Uploaded        *prometheus.CounterVec
	Duplicates      *prometheus.CounterVec
	AuthRefreshes   *prometheus.CounterVec
	Runs            *prometheus.CounterVec
}

// New creates a Recorder with all sync metrics registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		RawRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pocketsync_raw_records_total",
			Help: "Raw provider payloads stored, by record type and upsert outcome",
		}, []string{"type", "outcome"}),
		Normalized: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pocketsync_normalized_total",
			Help: "Canonical records written, by record type and upsert outcome",
		}, []string{"type", "outcome"}),
		ValidationSkips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pocketsync_validation_skips_total",
			Help: "Raw payloads skipped because they failed schema validation",
		}, []string{"provider", "type"}),
		Uploaded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pocketsync_uploaded_transactions_total",
			Help: "Transactions acknowledged by the target",
		}, []string{"profile"}),
		Duplicates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pocketsync_duplicates_total",
			Help: "Source transactions matched to an existing target transaction",
		}, []string{"profile"}),
		AuthRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pocketsync_auth_refresh_total",
			Help: "Credential refresh attempts, by provider and result",
		}, []string{"provider", "result"}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pocketsync_runs_total",
			Help: "Sync runs by profile and final state",
		}, []string{"profile", "state"}),
	}
}

// Registry exposes the private registry, e.g. for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordRaw counts one raw upsert outcome.
func (r *Recorder) RecordRaw(recordType, outcome string) {
	if r == nil {
		return
	}
	r.RawRecords.WithLabelValues(recordType, outcome).Inc()
}

// RecordNormalized counts one canonical upsert outcome.
func (r *Recorder) RecordNormalized(recordType, outcome string) {
	if r == nil {
		return
	}
	r.Normalized.WithLabelValues(recordType, outcome).Inc()
}

// RecordValidationSkip counts one payload rejected by its schema.
func (r *Recorder) RecordValidationSkip(provider, recordType string) {
	if r == nil {
		return
	}
	r.ValidationSkips.WithLabelValues(provider, recordType).Inc()
}

// RecordUploaded counts one acknowledged transaction.
func (r *Recorder) RecordUploaded(profile string) {
	if r == nil {
		return
	}
	r.Uploaded.WithLabelValues(profile).Inc()
}

// RecordDuplicates counts matched source transactions.
func (r *Recorder) RecordDuplicates(profile string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.Duplicates.WithLabelValues(profile).Add(float64(n))
}

// RecordAuthRefresh counts a credential refresh attempt.
func (r *Recorder) RecordAuthRefresh(provider string, ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	r.AuthRefreshes.WithLabelValues(provider, result).Inc()
}

// RecordRun counts a finished run by its final state.
func (r *Recorder) RecordRun(profile, state string) {
	if r == nil {
		return
	}
	r.Runs.WithLabelValues(profile, state).Inc()
}

// Push sends every collected metric to the Pushgateway at url under job.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if r == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("Push: pushing to %s: %w", url, err)
	}
	return nil
}

// Package authretry retries a provider call once after refreshing
// credentials when the call fails with the provider's transient-auth
// signature.
package authretry

import (
	"context"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/logger"
)

// MaxAttempts bounds calls per operation: the first call plus one retry
// after a refresh.
const MaxAttempts = 2

// Refresher recognises a provider's transient-auth failure and renews the
// credential it uses. Refresh must persist the new credential before
// returning so the retried call picks it up.
type Refresher interface {
	IsTransientAuth(err error) bool
	Refresh(ctx context.Context) error
}

// Do calls fn, refreshing and retrying once if it fails with r's
// transient-auth signature. A second transient-auth failure is returned as a
// TransientAuth error wrapping it. Non-matching errors and refresh errors are
// returned unchanged. A nil r calls fn once.
func Do[T any](ctx context.Context, r Refresher, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if r == nil {
		return fn(ctx)
	}

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !r.IsTransientAuth(err) {
			return zero, err
		}
		lastErr = err
		if attempt == MaxAttempts {
			break
		}

		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Msg("Credential rejected, refreshing")
		if err := r.Refresh(ctx); err != nil {
			return zero, err
		}
	}
	return zero, apperr.TransientAuth(lastErr, "credential rejected after %d attempts", MaxAttempts)
}

// Run is Do for calls without a result.
func Run(ctx context.Context, r Refresher, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

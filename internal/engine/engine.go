// Package engine runs sync profiles: it fetches new source transactions,
// drops those the target already has, records the rest in the sync job
// ledger and uploads them, pruning the ledger as the target acknowledges
// each one.
package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/dvloznov/pocketsync/internal/metrics"
	"github.com/dvloznov/pocketsync/internal/providers/registry"
	"github.com/dvloznov/pocketsync/internal/store"
)

// Loader resolves a provider row to its adapter instance.
type Loader interface {
	LoadByID(ctx context.Context, providerID int64) (registry.Instance, error)
}

var _ Loader = (*registry.Loader)(nil)

// Engine holds the collaborators of every run.
type Engine struct {
	Store   store.Store
	Loader  Loader
	Prompt  Prompter
	Out     io.Writer
	Log     zerolog.Logger
	Metrics *metrics.Recorder
}

// Options control one run.
type Options struct {
	// DryRun prints the transactions that would be pushed and uploads nothing.
	DryRun bool
	// Unattended answers yes to every prompt.
	Unattended bool
}

func (e *Engine) printf(format string, args ...any) {
	if e.Out == nil {
		return
	}
	fmt.Fprintf(e.Out, format+"\n", args...)
}

func (e *Engine) confirm(ctx context.Context, opts Options, question string, def bool) (bool, error) {
	if opts.Unattended {
		return true, nil
	}
	if e.Prompt == nil {
		return def, nil
	}
	ok, err := e.Prompt.Confirm(ctx, question, def)
	if err != nil {
		return false, fmt.Errorf("prompt: %w", err)
	}
	return ok, nil
}

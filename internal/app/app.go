// Package app wires the process configuration into a ready engine: store,
// local user, provider registry and metrics.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/config"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/engine"
	"github.com/dvloznov/pocketsync/internal/metrics"
	"github.com/dvloznov/pocketsync/internal/providers"
	"github.com/dvloznov/pocketsync/internal/providers/registry"
	"github.com/dvloznov/pocketsync/internal/store"
	"github.com/dvloznov/pocketsync/internal/store/inmemory"
	"github.com/dvloznov/pocketsync/internal/store/postgres"
)

// metricsJob is the Pushgateway job name runs are pushed under.
const metricsJob = "pocketsync"

// OpenStore opens the store named by dsn: memory:// or a postgres:// DSN.
func OpenStore(ctx context.Context, dsn string) (store.Store, error) {
	u, err := url.Parse(strings.TrimSpace(dsn))
	if err != nil {
		return nil, apperr.Config("Invalid database URL %q: %v", dsn, err)
	}
	switch u.Scheme {
	case "memory", "":
		return inmemory.NewStore(), nil
	case "postgres", "postgresql":
		st, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		return st, nil
	default:
		return nil, apperr.Config("Unsupported database URL scheme %q. Use memory:// or postgres://", u.Scheme)
	}
}

// App is a bootstrapped process.
type App struct {
	Config  config.Config
	Log     zerolog.Logger
	Store   store.Store
	User    *domain.User
	Loader  *registry.Loader
	Metrics *metrics.Recorder
	Engine  *engine.Engine
}

// Options supplies the parts of App the caller owns.
type Options struct {
	// Registrations defaults to registry.Default.
	Registrations []registry.Registration
	// Store skips OpenStore when set.
	Store  store.Store
	Prompt engine.Prompter
	Out    io.Writer
}

// New opens the store, ensures the configured user exists and registers
// every provider.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger, opts Options) (*App, error) {
	st := opts.Store
	if st == nil {
		var err error
		if st, err = OpenStore(ctx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}

	user, err := st.EnsureUser(ctx, cfg.DefaultUser)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("New: user %s: %w", cfg.DefaultUser, err)
	}

	regs := opts.Registrations
	if regs == nil {
		regs = registry.Default()
	}
	rec := metrics.New()
	base := providers.Env{
		Log:     log,
		User:    *user,
		HTTP:    &http.Client{Timeout: cfg.HTTPTimeout},
		Metrics: rec,
		App:     cfg,
	}
	loader, err := registry.Setup(ctx, st, base, regs)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("New: %w", err)
	}

	log.Debug().
		Str("user", user.Name).
		Str("database", redact(cfg.DatabaseURL)).
		Msg("Application ready")

	return &App{
		Config:  cfg,
		Log:     log,
		Store:   st,
		User:    user,
		Loader:  loader,
		Metrics: rec,
		Engine: &engine.Engine{
			Store:   st,
			Loader:  loader,
			Prompt:  opts.Prompt,
			Out:     opts.Out,
			Log:     log,
			Metrics: rec,
		},
	}, nil
}

// Close pushes the collected metrics when a Pushgateway is configured and
// closes the store. A failed push is logged, not returned.
func (a *App) Close(ctx context.Context) error {
	if err := a.Metrics.Push(ctx, a.Config.PushgatewayURL, metricsJob); err != nil {
		a.Log.Warn().Err(err).Msg("Failed to push metrics")
	}
	return a.Store.Close()
}

// redact drops the password from a DSN for logging.
func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}

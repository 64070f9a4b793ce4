// Package registry maps provider names to adapter constructors. Setup
// registers every provider row once; the returned Loader is the only way to
// obtain adapters.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/logger"
	"github.com/dvloznov/pocketsync/internal/providers"
	"github.com/dvloznov/pocketsync/internal/providers/bigquery"
	"github.com/dvloznov/pocketsync/internal/providers/freeagent"
	"github.com/dvloznov/pocketsync/internal/providers/notion"
	"github.com/dvloznov/pocketsync/internal/providers/pocketsmith"
	"github.com/dvloznov/pocketsync/internal/providers/revolut"
	"github.com/dvloznov/pocketsync/internal/store"
)

// Constructor builds an adapter bound to env.
type Constructor func(env providers.Env) providers.Adapter

// Registration is one entry of the static registry.
type Registration struct {
	Meta providers.Meta
	New  Constructor
}

// Default returns every built-in provider.
func Default() []Registration {
	return []Registration{
		{Meta: revolut.Meta, New: func(env providers.Env) providers.Adapter { return revolut.New(env) }},
		{Meta: freeagent.Meta, New: func(env providers.Env) providers.Adapter { return freeagent.New(env) }},
		{Meta: pocketsmith.Meta, New: func(env providers.Env) providers.Adapter { return pocketsmith.New(env) }},
		{Meta: notion.Meta, New: func(env providers.Env) providers.Adapter { return notion.New(env) }},
		{Meta: bigquery.Meta, New: func(env providers.Env) providers.Adapter { return bigquery.New(env) }},
	}
}

// Instance is an adapter bound to its provider row and environment.
type Instance struct {
	Provider domain.Provider
	Env      providers.Env
	Adapter  providers.Adapter
}

// Source returns the adapter as a providers.Source, or a Param error when
// the provider cannot be synced from.
func (i Instance) Source() (providers.Source, error) {
	s, ok := i.Adapter.(providers.Source)
	if !ok || !i.Provider.IsSource {
		return nil, apperr.Param("Provider %s cannot be used as a sync source", i.Provider.Name)
	}
	return s, nil
}

// Target returns the adapter as a providers.Target, or a Param error when
// the provider cannot be synced to.
func (i Instance) Target() (providers.Target, error) {
	t, ok := i.Adapter.(providers.Target)
	if !ok || !i.Provider.IsTarget {
		return nil, apperr.Param("Provider %s cannot be used as a sync target", i.Provider.Name)
	}
	return t, nil
}

// Loader builds adapters for registered providers. Instances are cached per
// provider.
type Loader struct {
	store store.Store
	base  providers.Env
	regs  map[string]Registration
	names []string

	mu    sync.Mutex
	cache map[int64]Instance
}

// Setup upserts a provider row for every registration and returns a Loader.
// base supplies the shared parts of every adapter Env (store, user, logger,
// HTTP client, metrics, process config).
func Setup(ctx context.Context, st store.Store, base providers.Env, regs []Registration) (*Loader, error) {
	l := &Loader{
		store: st,
		base:  base,
		regs:  make(map[string]Registration, len(regs)),
		cache: make(map[int64]Instance),
	}
	l.base.Store = st

	for _, r := range regs {
		if _, dup := l.regs[r.Meta.Name]; dup {
			return nil, fmt.Errorf("Setup: provider %s registered twice", r.Meta.Name)
		}
		p := &domain.Provider{
			Name:     r.Meta.Name,
			Code:     r.Meta.Code,
			IsSource: r.Meta.IsSource,
			IsTarget: r.Meta.IsTarget,
		}
		if err := st.UpsertProvider(ctx, p); err != nil {
			return nil, fmt.Errorf("Setup: registering %s: %w", r.Meta.Name, err)
		}
		l.regs[r.Meta.Name] = r
		l.names = append(l.names, r.Meta.Name)
	}
	slices.Sort(l.names)

	base.Log.Debug().Int("providers", len(l.names)).Msg("Providers registered")
	return l, nil
}

// Providers returns the registered provider metadata sorted by name.
func (l *Loader) Providers() []providers.Meta {
	out := make([]providers.Meta, 0, len(l.names))
	for _, n := range l.names {
		out = append(out, l.regs[n].Meta)
	}
	return out
}

// Names returns the names of registered providers matching keep, sorted.
func (l *Loader) Names(keep func(providers.Meta) bool) []string {
	var out []string
	for _, m := range l.Providers() {
		if keep == nil || keep(m) {
			out = append(out, m.Name)
		}
	}
	return out
}

// Load returns the instance for the provider named name. Unknown names are a
// Param error listing the registered providers.
func (l *Loader) Load(ctx context.Context, name string) (Instance, error) {
	if _, ok := l.regs[name]; !ok {
		return Instance{}, apperr.Param("Provider %s does not exist.\nAvailable providers:\n- %s", name, strings.Join(l.names, "\n- "))
	}
	p, err := l.store.ProviderByName(ctx, name)
	if err != nil {
		return Instance{}, fmt.Errorf("Load: %s: %w", name, err)
	}
	return l.instance(*p)
}

// LoadByID returns the instance for the provider with the given row ID.
func (l *Loader) LoadByID(ctx context.Context, id int64) (Instance, error) {
	l.mu.Lock()
	inst, ok := l.cache[id]
	l.mu.Unlock()
	if ok {
		return inst, nil
	}

	p, err := l.store.ProviderByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return Instance{}, apperr.Param("Provider %d does not exist", id)
	}
	if err != nil {
		return Instance{}, fmt.Errorf("LoadByID: %d: %w", id, err)
	}
	if _, ok := l.regs[p.Name]; !ok {
		return Instance{}, apperr.Param("Provider %s is not registered", p.Name)
	}
	return l.instance(*p)
}

func (l *Loader) instance(p domain.Provider) (Instance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if inst, ok := l.cache[p.ID]; ok {
		return inst, nil
	}

	env := l.base
	env.Provider = p
	env.Log = logger.ForProvider(l.base.Log, l.base.User.Name, p.Name)
	env.Config = providers.NewConfig(l.store, env.Owner(), p.Name)

	inst := Instance{Provider: p, Env: env, Adapter: l.regs[p.Name].New(env)}
	l.cache[p.ID] = inst
	return inst, nil
}

package providers

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"

	"dario.cat/mergo"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/store"
)

// SetOptions controls Config.Set.
type SetOptions struct {
	// Replace discards the stored document instead of merging into it.
	Replace bool
}

// Config is the credential and settings document of one provider for one
// user.
type Config struct {
	store    store.ConfigStore
	owner    domain.Owner
	provider string
}

// NewConfig binds a config document to its owner.
func NewConfig(s store.ConfigStore, owner domain.Owner, provider string) *Config {
	return &Config{store: s, owner: owner, provider: provider}
}

// All returns the whole document. It is never nil.
func (c *Config) All(ctx context.Context) (map[string]any, error) {
	cfg, err := c.store.ProviderConfig(ctx, c.owner)
	if err != nil {
		return nil, fmt.Errorf("Config.All: %s: %w", c.provider, err)
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	return cfg, nil
}

// Get returns one value and whether it is set.
func (c *Config) Get(ctx context.Context, key string) (any, bool, error) {
	cfg, err := c.All(ctx)
	if err != nil {
		return nil, false, err
	}
	v, ok := cfg[key]
	return v, ok, nil
}

// String returns key as a string, or "" when it is unset or not a string.
func (c *Config) String(ctx context.Context, key string) (string, error) {
	v, _, err := c.Get(ctx, key)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// Require returns the string values of keys, or a ConfigError naming the
// first key that is missing or empty.
func (c *Config) Require(ctx context.Context, keys ...string) (map[string]string, error) {
	cfg, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		s, _ := cfg[key].(string)
		if strings.TrimSpace(s) == "" {
			return nil, apperr.Config("%s: missing %q config. Set it with `pocketsync config %s -set %s=...`",
				c.provider, key, c.provider, key)
		}
		out[key] = s
	}
	return out, nil
}

// Set writes partial into the document: merged over the stored values by
// default, or in place of them with Replace.
func (c *Config) Set(ctx context.Context, partial map[string]any, opts SetOptions) error {
	next := maps.Clone(partial)
	if next == nil {
		next = map[string]any{}
	}
	if !opts.Replace {
		current, err := c.All(ctx)
		if err != nil {
			return err
		}
		if err := mergo.Merge(&current, next, mergo.WithOverride); err != nil {
			return fmt.Errorf("Config.Set: merging %s: %w", c.provider, err)
		}
		next = current
	}
	if err := c.store.SaveProviderConfig(ctx, c.owner, next); err != nil {
		return fmt.Errorf("Config.Set: %s: %w", c.provider, err)
	}
	return nil
}

// Keys returns the sorted keys of the stored document.
func (c *Config) Keys(ctx context.Context) ([]string, error) {
	cfg, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

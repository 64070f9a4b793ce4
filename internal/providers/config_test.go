package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/store/inmemory"
)

func newTestConfig() *Config {
	return NewConfig(inmemory.NewStore(), domain.Owner{UserID: 1, ProviderID: 2}, "FreeAgent")
}

func TestConfig_SetMergesByDefault(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig()

	require.NoError(t, cfg.Set(ctx, map[string]any{"identifier": "id", "secret": "s"}, SetOptions{}))
	require.NoError(t, cfg.Set(ctx, map[string]any{"accessToken": "tok", "secret": "s2"}, SetOptions{}))

	all, err := cfg.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"identifier": "id", "secret": "s2", "accessToken": "tok"}, all)
}

func TestConfig_SetReplace(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig()

	require.NoError(t, cfg.Set(ctx, map[string]any{"identifier": "id", "secret": "s"}, SetOptions{}))
	require.NoError(t, cfg.Set(ctx, map[string]any{"accessToken": "tok"}, SetOptions{Replace: true}))

	all, err := cfg.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"accessToken": "tok"}, all)
}

func TestConfig_GetMissing(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig()

	all, err := cfg.All(ctx)
	require.NoError(t, err)
	assert.NotNil(t, all)

	_, ok, err := cfg.Get(ctx, "accessToken")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfig_Require(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig()
	require.NoError(t, cfg.Set(ctx, map[string]any{"identifier": "id", "secret": ""}, SetOptions{Replace: true}))

	_, err := cfg.Require(ctx, "identifier", "secret")
	require.Error(t, err)
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))
	assert.Contains(t, err.Error(), `"secret"`)

	got, err := cfg.Require(ctx, "identifier")
	require.NoError(t, err)
	assert.Equal(t, "id", got["identifier"])
}

func TestConfig_Keys(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig()
	require.NoError(t, cfg.Set(ctx, map[string]any{"b": "1", "a": "2"}, SetOptions{}))

	keys, err := cfg.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/logger"
	"github.com/dvloznov/pocketsync/internal/providers"
	"github.com/dvloznov/pocketsync/internal/store/inmemory"
)

func setup(t *testing.T) (*Loader, *inmemory.Store) {
	t.Helper()
	ctx := context.Background()
	st := inmemory.NewStore()
	user, err := st.EnsureUser(ctx, "default")
	require.NoError(t, err)

	l, err := Setup(ctx, st, providers.Env{Log: logger.NewWithWriter(nil), User: *user}, Default())
	require.NoError(t, err)
	return l, st
}

func TestSetup_RegistersEveryProvider(t *testing.T) {
	l, st := setup(t)

	assert.Equal(t, []string{"BigQuery", "FreeAgent", "Notion", "PocketSmith", "RevolutBusiness"}, l.Names(nil))
	assert.Equal(t, []string{"FreeAgent", "PocketSmith", "RevolutBusiness"}, l.Names(func(m providers.Meta) bool { return m.IsSource }))

	p, err := st.ProviderByName(context.Background(), "RevolutBusiness")
	require.NoError(t, err)
	assert.Equal(t, "REVBIZ", p.Code)
	assert.True(t, p.IsSource)
	assert.False(t, p.IsTarget)
}

func TestSetup_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := inmemory.NewStore()
	base := providers.Env{Log: logger.NewWithWriter(nil)}

	_, err := Setup(ctx, st, base, Default())
	require.NoError(t, err)
	first, err := st.ProviderByName(ctx, "Notion")
	require.NoError(t, err)

	_, err = Setup(ctx, st, base, Default())
	require.NoError(t, err)
	second, err := st.ProviderByName(ctx, "Notion")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestSetup_RejectsDuplicateRegistration(t *testing.T) {
	regs := append(Default(), Default()[0])
	_, err := Setup(context.Background(), inmemory.NewStore(), providers.Env{Log: logger.NewWithWriter(nil)}, regs)
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()

	inst, err := l.Load(ctx, "PocketSmith")
	require.NoError(t, err)
	assert.Equal(t, "PocketSmith", inst.Provider.Name)
	assert.Equal(t, inst.Provider.ID, inst.Env.Owner().ProviderID)
	require.NotNil(t, inst.Env.Config)

	again, err := l.LoadByID(ctx, inst.Provider.ID)
	require.NoError(t, err)
	assert.Same(t, inst.Adapter, again.Adapter)

	_, err = inst.Source()
	assert.NoError(t, err)
	_, err = inst.Target()
	assert.NoError(t, err)
}

func TestLoad_UnknownProvider(t *testing.T) {
	l, _ := setup(t)
	_, err := l.Load(context.Background(), "Monzo")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindParam))
	assert.Contains(t, err.Error(), "- RevolutBusiness")

	_, err = l.LoadByID(context.Background(), 9999)
	assert.True(t, apperr.Is(err, apperr.KindParam))
}

func TestInstance_CapabilityMismatch(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()

	rev, err := l.Load(ctx, "RevolutBusiness")
	require.NoError(t, err)
	_, err = rev.Target()
	assert.True(t, apperr.Is(err, apperr.KindParam))

	nt, err := l.Load(ctx, "Notion")
	require.NoError(t, err)
	_, err = nt.Source()
	assert.True(t, apperr.Is(err, apperr.KindParam))
}

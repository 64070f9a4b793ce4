package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/logger"
	"github.com/dvloznov/pocketsync/internal/store/inmemory"
)

func profileEngine(t *testing.T) (*Engine, *scriptedPrompt, int64) {
	t.Helper()
	st := inmemory.NewStore()
	user, err := st.EnsureUser(context.Background(), "default")
	require.NoError(t, err)
	p := &scriptedPrompt{}
	return &Engine{Store: st, Prompt: p, Log: logger.NewWithWriter(nil)}, p, user.ID
}

func TestCreateProfile(t *testing.T) {
	e, _, userID := profileEngine(t)
	ctx := context.Background()
	src := &domain.Account{ID: 1, Name: "Main"}
	tgt := &domain.Account{ID: 2, Name: "Everyday"}
	req := ProfileRequest{UserID: userID, Source: src, Target: tgt, SourceProvider: "RevolutBusiness", TargetProvider: "PocketSmith"}

	p, err := e.CreateProfile(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "RevolutBusiness: Main >> PocketSmith: Everyday", p.Name)
	assert.NotZero(t, p.ID)

	taken, err := e.NameTaken(ctx, userID, p.Name)
	require.NoError(t, err)
	assert.True(t, taken)

	_, err = e.CreateProfile(ctx, req)
	assert.True(t, apperr.Is(err, apperr.KindDuplicateName), "got %v", err)

	req.Target = src
	_, err = e.CreateProfile(ctx, req)
	assert.True(t, apperr.Is(err, apperr.KindParam), "got %v", err)
}

func TestResolveProfiles(t *testing.T) {
	e, prompt, userID := profileEngine(t)
	ctx := context.Background()

	_, err := e.ResolveProfiles(ctx, userID, "", false, Options{})
	assert.True(t, apperr.Is(err, apperr.KindConfig), "got %v", err)

	for _, name := range []string{"beta", "alpha"} {
		require.NoError(t, e.Store.CreateProfile(ctx, &domain.SyncProfile{UserID: userID, Name: name, SourceAccountID: 1, TargetAccountID: 2}))
	}

	got, err := e.ResolveProfiles(ctx, userID, "beta", false, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "beta", got[0].Name)

	_, err = e.ResolveProfiles(ctx, userID, "gamma", false, Options{})
	require.True(t, apperr.Is(err, apperr.KindParam))
	assert.Contains(t, err.Error(), "- alpha\n- beta")

	all, err := e.ResolveProfiles(ctx, userID, "", true, Options{Unattended: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, profileNames(all))

	_, err = e.ResolveProfiles(ctx, userID, "", false, Options{Unattended: true})
	assert.True(t, apperr.Is(err, apperr.KindParam))

	prompt.selects = []int{1}
	got, err = e.ResolveProfiles(ctx, userID, "", false, Options{})
	require.NoError(t, err)
	assert.Equal(t, "beta", got[0].Name)
	assert.Equal(t, []string{"Select a sync profile:"}, prompt.questions)
}

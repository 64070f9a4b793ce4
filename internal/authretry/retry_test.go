package authretry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/pocketsync/internal/apperr"
)

var errTokenRejected = errors.New("Access token not recognised")

type fakeRefresher struct {
	refreshes  int
	refreshErr error
}

func (f *fakeRefresher) IsTransientAuth(err error) bool {
	return errors.Is(err, errTokenRejected)
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.refreshes++
	return f.refreshErr
}

func TestDo_SucceedsAfterOneRefresh(t *testing.T) {
	r := &fakeRefresher{}
	calls := 0

	got, err := Do(context.Background(), r, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errTokenRejected
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, r.refreshes)
}

func TestDo_BoundedToOneRefresh(t *testing.T) {
	r := &fakeRefresher{}
	calls := 0

	_, err := Do(context.Background(), r, func(ctx context.Context) (int, error) {
		calls++
		return 0, errTokenRejected
	})

	require.Error(t, err)
	assert.Equal(t, MaxAttempts, calls)
	assert.Equal(t, 1, r.refreshes)
	assert.True(t, apperr.Is(err, apperr.KindTransientAuth))
	assert.ErrorIs(t, err, errTokenRejected)
}

func TestDo_NonMatchingErrorPropagatesUnchanged(t *testing.T) {
	r := &fakeRefresher{}
	boom := errors.New("503 service unavailable")

	err := Run(context.Background(), r, func(ctx context.Context) error {
		return boom
	})

	assert.Same(t, boom, err)
	assert.Zero(t, r.refreshes)
}

func TestDo_RefreshFailurePropagatesUnchanged(t *testing.T) {
	refreshErr := errors.New("refresh token revoked")
	r := &fakeRefresher{refreshErr: refreshErr}
	calls := 0

	err := Run(context.Background(), r, func(ctx context.Context) error {
		calls++
		return errTokenRejected
	})

	assert.Same(t, refreshErr, err)
	assert.Equal(t, 1, calls)
}

func TestDo_NilRefresherCallsOnce(t *testing.T) {
	calls := 0
	err := Run(context.Background(), nil, func(ctx context.Context) error {
		calls++
		return errTokenRejected
	})

	assert.ErrorIs(t, err, errTokenRejected)
	assert.Equal(t, 1, calls)
}

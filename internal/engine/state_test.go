package engine

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/pocketsync/internal/logger"
	"github.com/dvloznov/pocketsync/internal/metrics"
)

func TestRun_FreshPath(t *testing.T) {
	m := metrics.New()
	r := newRun("p", logger.NewWithWriter(nil), m)
	for _, s := range []State{Fetching, Deduping, AwaitingConfirmation, Uploading, Completed} {
		require.NoError(t, r.to(s))
	}
	assert.Equal(t, Completed, r.state)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("p", "completed")))
}

func TestRun_IllegalTransitions(t *testing.T) {
	tests := []struct {
		from, to State
	}{
		{Idle, Uploading},
		{Fetching, AwaitingConfirmation},
		{Deduping, Uploading},
		{Uploading, Cancelled},
		{Completed, Fetching},
		{Empty, Uploading},
	}
	for _, tt := range tests {
		r := newRun("p", logger.NewWithWriter(nil), nil)
		r.state = tt.from
		assert.Error(t, r.to(tt.to), "%s -> %s", tt.from, tt.to)
		assert.Equal(t, tt.from, r.state)
	}
}

func TestRun_FailIsNoopWhenTerminal(t *testing.T) {
	r := newRun("p", logger.NewWithWriter(nil), nil)
	require.NoError(t, r.to(Cancelled))
	r.fail()
	assert.Equal(t, Cancelled, r.state)

	r = newRun("p", logger.NewWithWriter(nil), nil)
	require.NoError(t, r.to(Fetching))
	r.fail()
	assert.Equal(t, Failed, r.state)
}

func TestState_Terminal(t *testing.T) {
	for _, s := range []State{Completed, Cancelled, Empty, Failed} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []State{Idle, Fetching, Deduping, AwaitingConfirmation, Uploading} {
		assert.False(t, s.Terminal(), s)
	}
}

package oauthcallback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/pocketsync/internal/logger"
)

func get(t *testing.T, r *Receiver, query string) (int, string) {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://%s/callback?%s", r.Addr(), query))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestReceiver_Code(t *testing.T) {
	r, err := Listen("127.0.0.1:0", "xyz", logger.NewWithWriter(nil))
	require.NoError(t, err)

	status, _ := get(t, r, "code=abc&state=wrong")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = get(t, r, "state=xyz")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := get(t, r, "code=abc&state=xyz")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Authorisation complete")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	code, err := r.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", code)
}

func TestReceiver_Denied(t *testing.T) {
	r, err := Listen("127.0.0.1:0", "", logger.NewWithWriter(nil))
	require.NoError(t, err)

	status, _ := get(t, r, "error=access_denied&error_description=user+said+no")
	assert.Equal(t, http.StatusOK, status)

	_, err = r.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_denied: user said no")
}

func TestReceiver_ContextCancelled(t *testing.T) {
	r, err := Listen("127.0.0.1:0", "", logger.NewWithWriter(nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

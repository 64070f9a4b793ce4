package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.RecordRaw("transaction", "created")
	r.RecordUploaded("p")
	r.RecordAuthRefresh("FreeAgent", false)
	assert.NoError(t, r.Push(context.Background(), "http://unused", "job"))
	assert.Nil(t, r.Registry())
}

func TestRecorder_Counts(t *testing.T) {
	r := New()
	r.RecordRaw("transaction", "created")
	r.RecordRaw("transaction", "created")
	r.RecordRaw("transaction", "unchanged")
	r.RecordDuplicates("nightly", 3)
	r.RecordDuplicates("nightly", 0)
	r.RecordAuthRefresh("FreeAgent", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.RawRecords.WithLabelValues("transaction", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RawRecords.WithLabelValues("transaction", "unchanged")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.Duplicates.WithLabelValues("nightly")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.AuthRefreshes.WithLabelValues("FreeAgent", "ok")))
}

func TestRecorder_Push(t *testing.T) {
	var body string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		path = req.URL.Path
		b, _ := io.ReadAll(req.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	r.RecordUploaded("nightly")

	require.NoError(t, r.Push(context.Background(), srv.URL, "pocketsync"))
	assert.Equal(t, "/metrics/job/pocketsync", path)
	assert.True(t, strings.Contains(body, "pocketsync_uploaded_transactions_total"), "pushed body should carry the counter")
}

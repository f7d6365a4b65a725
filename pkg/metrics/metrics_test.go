package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pancaim/cdm/pkg/cdmerrors"
)

func TestCollector(t *testing.T) {
	c := NewCollector()
	c.SubjectExported()
	c.SubjectExported()
	c.RowsExported("lab", 12)
	c.RowsExported("lab", 3)
	c.RowsExported("tumor", 1)
	c.FileWritten(100)
	c.ObserveRun(1500*time.Millisecond, "success")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.subjects))
	assert.Equal(t, 15.0, testutil.ToFloat64(c.rows.WithLabelValues("lab")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rows.WithLabelValues("tumor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.files))
	assert.Equal(t, 100.0, testutil.ToFloat64(c.bytesWritten))
	assert.Equal(t, 1.5, testutil.ToFloat64(c.runDuration.WithLabelValues("success")))

	n, err := testutil.GatherAndCount(c.Registry(), "cdm_export_rows_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPush(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewCollector()
	c.SubjectExported()
	require.NoError(t, c.Push(context.Background(), srv.URL, ""))

	assert.Equal(t, "/metrics/job/"+DefaultJob, gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestPushErrors(t *testing.T) {
	c := NewCollector()

	err := c.Push(context.Background(), "", "job")
	require.Error(t, err)
	assert.True(t, cdmerrors.IsType(err, cdmerrors.ErrorTypeConfig))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err = c.Push(context.Background(), srv.URL, "job")
	require.Error(t, err)
	assert.True(t, cdmerrors.IsType(err, cdmerrors.ErrorTypeConnection))
	assert.True(t, strings.Contains(err.Error(), "job=job"))
}

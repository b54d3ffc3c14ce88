package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersMove(t *testing.T) {
	before := testutil.ToFloat64(batchJobsTotal.WithLabelValues("completed"))
	IncBatchJob(" Completed ")
	assert.Equal(t, before+1, testutil.ToFloat64(batchJobsTotal.WithLabelValues("completed")))

	beforeFiles := testutil.ToFloat64(batchFilesTotal.WithLabelValues("audio", "error"))
	IncBatchFile(true, false)
	assert.Equal(t, beforeFiles+1, testutil.ToFloat64(batchFilesTotal.WithLabelValues("audio", "error")))
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	MustRegister()
	MustRegister()
	IncRetry("outcome")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "retry_attempts_total")
}

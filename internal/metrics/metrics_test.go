package metrics

import (
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordExperiment(t *testing.T) {
	r := New()
	r.RecordExperiment(OutcomeOK, 0.2)
	r.RecordExperiment(OutcomeOK, 0.4)
	r.RecordExperiment(OutcomeSkipped, 0)
	r.RecordBest(12.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.experiments.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.experiments.WithLabelValues(OutcomeSkipped)))
	assert.Equal(t, 12.5, testutil.ToFloat64(r.best))
	assert.Equal(t, 2, testutil.CollectAndCount(r.experiments))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordExperiment(OutcomeFailed, 1)
		r.RecordBest(1)
	})
}

func TestHandlerAndTextfile(t *testing.T) {
	r := New()
	r.RecordExperiment(OutcomeFailed, 0)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `backtester_experiments_total{outcome="failed"} 1`)

	path := filepath.Join(t.TempDir(), "backtester.prom")
	require.NoError(t, r.WriteTextfile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "backtester_best_total_return_pct 0")
}

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRelayCounts(t *testing.T) {
	r := NewRecorder()
	r.ObserveRelay("delivered", 2048, 1500*time.Millisecond)
	r.ObserveRelay("delivered", 1024, time.Second)
	r.ObserveRelay("too_large", 0, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.outcomes.WithLabelValues("delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.outcomes.WithLabelValues("too_large")))
	assert.Equal(t, 3072.0, testutil.ToFloat64(r.bytes))
}

func TestInflightGauge(t *testing.T) {
	r := NewRecorder()
	r.JobStarted()
	r.JobStarted()
	r.JobFinished()
	assert.Equal(t, 1.0, testutil.ToFloat64(r.queued))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRecorder()
	r.ObserveUpdate("accepted")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `tunerelay_webhook_updates_total{result="accepted"} 1`), string(body))
}

func TestRegistryHoldsOnlyOwnCollectors(t *testing.T) {
	r := NewRecorder()
	r.ObserveRelay("delivered", 1, time.Millisecond)
	r.ObserveUpdate("ignored")

	families, err := r.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		assert.True(t, strings.HasPrefix(mf.GetName(), "tunerelay_"), mf.GetName())
	}
	assert.Equal(t, 1, testutil.CollectAndCount(r.updates))
}

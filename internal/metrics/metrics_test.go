// ABOUTME: Tests for stream metrics
// ABOUTME: Verifies recorder events land in the right collectors
package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-radio/pkg/streaming"
)

var _ streaming.Recorder = (*StreamMetrics)(nil)

func TestRecorderEvents(t *testing.T) {
	m, err := NewWithRegistry(prometheus.NewRegistry())
	require.NoError(t, err)

	m.StreamOpened("http://radio.example")
	m.StreamOpened("http://radio.example")
	m.OpenFailed("http://radio.example")
	m.Retry(1)
	m.Retry(2)
	m.StarvationPaused()
	m.MetadataPublished()
	m.DeadTransports(3)
	m.Buffered(42)
	m.ObservePeak(0.5)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.opened))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.openFailures))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.retries))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.starvation))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.metadata))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.deadTransports))
	assert.Equal(t, float64(42), testutil.ToFloat64(m.buffered))
	assert.Equal(t, float64(0.5), testutil.ToFloat64(m.peak))

	m.DeadTransports(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.deadTransports))
}

func TestDoubleRegistrationFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewWithRegistry(registry)
	require.NoError(t, err)

	_, err = NewWithRegistry(registry)
	assert.Error(t, err)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	m.Retry(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "resonate_radio_stream_retries_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
